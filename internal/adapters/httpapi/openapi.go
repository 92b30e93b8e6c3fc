package httpapi

func openapiSpec() map[string]any {
	op := func(summary string) map[string]any { return map[string]any{"summary": summary} }
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "trustgate",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearer": map[string]any{"type": "http", "scheme": "bearer"},
			},
		},
		"paths": map[string]any{
			"/healthz":          map[string]any{"get": op("Readiness check")},
			"/metrics":          map[string]any{"get": op("Prometheus metrics")},
			"/v1/auth/register": map[string]any{"post": op("Register an account")},
			"/v1/auth/login":    map[string]any{"post": op("Log in and open a session")},
			"/v1/auth/logout":   map[string]any{"post": op("Revoke the current session")},
			"/v1/me":            map[string]any{"get": op("Current user and session")},
			"/v1/sessions":      map[string]any{"get": op("List the caller's sessions")},
			"/v1/sessions/{id}": map[string]any{"delete": op("Revoke one session")},
			"/v1/sessions:revoke-others": map[string]any{
				"post": op("Revoke every session except the current one"),
			},
			"/v1/audit":    map[string]any{"post": op("Append an audit entry")},
			"/v1/audit/me": map[string]any{"get": op("Audit entries about the caller")},
			"/v1/audit/users/{userID}": map[string]any{
				"get": op("Audit entries by user"),
			},
			"/v1/audit/actions/{action}": map[string]any{
				"get": op("Audit entries by action"),
			},
			"/v1/audit/resources/{resourceType}/{resourceID}": map[string]any{
				"get": op("Audit entries by resource"),
			},
			"/v1/audit/recent": map[string]any{"get": op("Audit entries within a time window")},
			"/v1/audit/stats":  map[string]any{"get": op("Audit counts by severity and period")},
			"/v1/audit/schemas/{action}": map[string]any{
				"put":    op("Register a details schema"),
				"get":    op("Get a details schema"),
				"delete": op("Delete a details schema"),
			},
			"/v1/projects": map[string]any{
				"get":  op("List projects"),
				"post": op("Create project"),
			},
			"/v1/projects/{id}": map[string]any{
				"get":    op("Get project"),
				"patch":  op("Update project"),
				"delete": op("Delete project"),
			},
		},
	}
}
