package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/adapters/device"
	"github.com/atvirokodosprendimai/trustgate/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/trustgate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/atvirokodosprendimai/trustgate/internal/core/usecase"
	"github.com/atvirokodosprendimai/trustgate/migrations"
	"github.com/rs/zerolog"
)

const (
	testPassword = "correct-horse"
	testUA       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

type fixture struct {
	t        *testing.T
	router   http.Handler
	accounts *usecase.AccountService
	audit    *usecase.AuditService
	limiter  *usecase.MemoryRateLimiter
	observed []string
}

type fixtureOption func(*Options)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	db, err := gormsqlite.Open(filepath.Join(t.TempDir(), "api.sqlite"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	sqlDB, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("writer sql db: %v", err)
	}
	if err := migrations.Up(context.Background(), sqlDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := zerolog.Nop()
	users := sqlite.NewUserRepository(db)
	schemas := usecase.NewDetailSchemaService(sqlite.NewDetailSchemaRepository(db))
	audit := usecase.NewAuditService(sqlite.NewAuditLogRepository(db), users, schemas, nil, logger)
	sessions := usecase.NewSessionService(sqlite.NewSessionRepository(db), nil, device.NewDetector(), nil, time.Hour, logger)
	accounts := usecase.NewAccountService(users, sessions, audit, logger)
	projects := usecase.NewProjectService(sqlite.NewProjectRepository(db), audit)
	limiter := usecase.NewMemoryRateLimiter(100, logger)

	f := &fixture{t: t, accounts: accounts, audit: audit, limiter: limiter}
	o := Options{
		AuthPolicy: domain.RateLimitPolicy{Name: "auth", Limit: 50, Window: time.Minute},
		APIPolicy:  domain.RateLimitPolicy{Name: "api", Limit: 100, Window: time.Minute},
		Logger:     logger,
		ObserveHTTP: func(method, route string, status int, _ float64) {
			f.observed = append(f.observed, method+" "+route)
		},
		Ready: func(context.Context) error { return nil },
	}
	for _, opt := range opts {
		opt(&o)
	}
	f.router = NewHandler(Services{
		Accounts: accounts,
		Sessions: sessions,
		Audit:    audit,
		Schemas:  schemas,
		Projects: projects,
		Limiter:  limiter,
	}, o).Router()
	return f
}

func (f *fixture) do(method, path, token string, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("User-Agent", testUA)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) register(email string) string {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/v1/auth/register", "", `{"email":"`+email+`","password":"`+testPassword+`","name":"Test"}`)
	if rec.Code != http.StatusCreated {
		f.t.Fatalf("register %s: %d %s", email, rec.Code, rec.Body.String())
	}
	var user userResponse
	decodeBody(f.t, rec, &user)
	return user.ID
}

func (f *fixture) login(email string) string {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/v1/auth/login", "", `{"email":"`+email+`","password":"`+testPassword+`"}`)
	if rec.Code != http.StatusOK {
		f.t.Fatalf("login %s: %d %s", email, rec.Code, rec.Body.String())
	}
	var payload struct {
		Token string `json:"token"`
	}
	decodeBody(f.t, rec, &payload)
	if payload.Token == "" {
		f.t.Fatal("expected token in login response")
	}
	return payload.Token
}

func (f *fixture) admin() string {
	f.t.Helper()
	if _, err := f.accounts.EnsureAdmin(context.Background(), "root@example.com", testPassword); err != nil {
		f.t.Fatalf("ensure admin: %v", err)
	}
	return f.login("root@example.com")
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestProtectedRouteWithoutToken(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/v1/me", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = f.do(http.MethodGet, "/v1/me", "not-a-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %d", rec.Code)
	}
}

func TestRegisterRejectsUnknownFieldsAndTrailingJSON(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/auth/register", "", `{"email":"a@example.com","password":"`+testPassword+`","extra":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
	rec = f.do(http.MethodPost, "/v1/auth/register", "", `{"email":"a@example.com","password":"`+testPassword+`"} {}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for trailing json, got %d", rec.Code)
	}
}

func TestRegisterValidationReportsFields(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/auth/register", "", `{"email":"nope","password":"short"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var payload struct {
		Fields []string `json:"fields"`
	}
	decodeBody(t, rec, &payload)
	joined := strings.Join(payload.Fields, ",")
	if !strings.Contains(joined, "email: email") || !strings.Contains(joined, "password: min") {
		t.Fatalf("unexpected field errors: %v", payload.Fields)
	}
}

func TestRegisterDuplicateEmailConflict(t *testing.T) {
	f := newFixture(t)
	f.register("dup@example.com")
	rec := f.do(http.MethodPost, "/v1/auth/register", "", `{"email":"DUP@example.com","password":"`+testPassword+`"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestLoginWrongPasswordUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.register("a@example.com")
	rec := f.do(http.MethodPost, "/v1/auth/login", "", `{"email":"a@example.com","password":"wrong-password"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginMeAndLogout(t *testing.T) {
	f := newFixture(t)
	f.register("a@example.com")
	token := f.login("a@example.com")

	rec := f.do(http.MethodGet, "/v1/me", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("me: %d %s", rec.Code, rec.Body.String())
	}
	var me struct {
		User    userResponse    `json:"user"`
		Session sessionResponse `json:"session"`
	}
	decodeBody(t, rec, &me)
	if me.User.Email != "a@example.com" || me.User.Role != "member" {
		t.Fatalf("unexpected user: %+v", me.User)
	}
	if me.Session.Device.Browser != "Chrome" || me.Session.DeviceLabel != "Chrome on macOS" {
		t.Fatalf("unexpected device: %+v", me.Session)
	}
	if !me.Session.Current {
		t.Fatal("expected current session flag")
	}

	if rec := f.do(http.MethodPost, "/v1/auth/logout", token, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodGet, "/v1/me", token, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestSessionsListRevokeAndRevokeOthers(t *testing.T) {
	f := newFixture(t)
	f.register("a@example.com")
	first := f.login("a@example.com")
	second := f.login("a@example.com")
	third := f.login("a@example.com")

	rec := f.do(http.MethodGet, "/v1/sessions", first, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	var list struct {
		Items []sessionResponse `json:"items"`
	}
	decodeBody(t, rec, &list)
	if len(list.Items) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list.Items))
	}
	var currentCount int
	var other string
	for _, s := range list.Items {
		if s.Current {
			currentCount++
		} else if other == "" {
			other = s.ID
		}
	}
	if currentCount != 1 {
		t.Fatalf("expected exactly one current session, got %d", currentCount)
	}

	if rec := f.do(http.MethodDelete, "/v1/sessions/"+other, first, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("revoke: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodDelete, "/v1/sessions/"+other, first, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for revoked session, got %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/v1/sessions:revoke-others", first, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke others: %d %s", rec.Code, rec.Body.String())
	}
	var revoked struct {
		Revoked int64 `json:"revoked"`
	}
	decodeBody(t, rec, &revoked)
	if revoked.Revoked != 1 {
		t.Fatalf("expected 1 revoked, got %d", revoked.Revoked)
	}
	for _, tok := range []string{second, third} {
		if rec := f.do(http.MethodGet, "/v1/me", tok, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected revoked token to be rejected, got %d", rec.Code)
		}
	}
	if rec := f.do(http.MethodGet, "/v1/me", first, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected current session to survive, got %d", rec.Code)
	}
}

func TestSessionRevokeCannotTouchOtherUsers(t *testing.T) {
	f := newFixture(t)
	f.register("a@example.com")
	f.register("b@example.com")
	tokenA := f.login("a@example.com")
	tokenB := f.login("b@example.com")

	rec := f.do(http.MethodGet, "/v1/me", tokenB, "")
	var me struct {
		Session sessionResponse `json:"session"`
	}
	decodeBody(t, rec, &me)

	if rec := f.do(http.MethodDelete, "/v1/sessions/"+me.Session.ID, tokenA, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/v1/me", tokenB, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected b's session intact, got %d", rec.Code)
	}
}

func TestAuthRateLimitByIP(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.AuthPolicy = domain.RateLimitPolicy{Name: "auth", Limit: 2, Window: time.Minute}
	})
	body := `{"email":"ghost@example.com","password":"whatever-pw"}`
	for i, wantRemaining := range []string{"1", "0"} {
		rec := f.do(http.MethodPost, "/v1/auth/login", "", body)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("call %d: expected 401, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != wantRemaining {
			t.Fatalf("call %d: remaining %q, want %q", i+1, got, wantRemaining)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("call %d: unexpected limit header %q", i+1, rec.Header().Get("X-RateLimit-Limit"))
		}
	}
	rec := f.do(http.MethodPost, "/v1/auth/login", "", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestAPIRateLimitAuditsAuthenticatedCaller(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.APIPolicy = domain.RateLimitPolicy{Name: "api", Limit: 1, Window: time.Minute}
	})
	userID := f.register("a@example.com")
	token := f.login("a@example.com")

	if rec := f.do(http.MethodGet, "/v1/me", token, ""); rec.Code != http.StatusOK {
		t.Fatalf("first call: %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/v1/me", token, ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	entries, err := f.audit.ByAction(context.Background(), "rate_limit.exceeded", domain.AuditQuery{})
	if err != nil {
		t.Fatalf("by action: %v", err)
	}
	if len(entries) != 1 || entries[0].UserID != userID || entries[0].Severity != domain.SeverityWarning {
		t.Fatalf("unexpected rate limit audit: %+v", entries)
	}
}

func TestAuditLogAndMyAudit(t *testing.T) {
	f := newFixture(t)
	userID := f.register("a@example.com")
	token := f.login("a@example.com")

	rec := f.do(http.MethodPost, "/v1/audit", token, `{"action":"project.viewed","resource_type":"project","resource_id":"p1","details":{"tab":"budget"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("log: %d %s", rec.Code, rec.Body.String())
	}
	var entry auditEntryResponse
	decodeBody(t, rec, &entry)
	if entry.UserID != userID || entry.Severity != domain.SeverityInfo || entry.UserAgent != testUA {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	rec = f.do(http.MethodGet, "/v1/audit/me?limit=2", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("my audit: %d", rec.Code)
	}
	var page auditPageResponse
	decodeBody(t, rec, &page)
	// register, login, project.viewed
	if len(page.Items) != 2 || page.Items[0].Action != "project.viewed" || page.NextBefore == 0 {
		t.Fatalf("unexpected page: %+v", page)
	}

	rec = f.do(http.MethodGet, "/v1/audit/me?before="+strconv.FormatInt(page.NextBefore, 10), token, "")
	var next auditPageResponse
	decodeBody(t, rec, &next)
	if len(next.Items) != 1 || next.Items[0].Action != "auth.register" || next.NextBefore != 0 {
		t.Fatalf("unexpected second page: %+v", next)
	}
}

func TestAuditLogRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	f.register("a@example.com")
	token := f.login("a@example.com")

	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad action", `{"action":"has space"}`, http.StatusBadRequest},
		{"bad severity", `{"action":"x.y","severity":"fatal"}`, http.StatusBadRequest},
		{"details not object", `{"action":"x.y","details":[1,2]}`, http.StatusBadRequest},
		{"resource id without type", `{"action":"x.y","resource_id":"p1"}`, http.StatusBadRequest},
		{"foreign user", `{"action":"x.y","user_id":"someone-else"}`, http.StatusForbidden},
		{"error severity", `{"action":"x.y","severity":"error"}`, http.StatusForbidden},
		{"critical severity", `{"action":"x.y","severity":"critical"}`, http.StatusForbidden},
		{"auth namespace", `{"action":"auth.login_failed"}`, http.StatusForbidden},
		{"session namespace", `{"action":"session.revoked"}`, http.StatusForbidden},
		{"rate limit namespace", `{"action":"rate_limit.exceeded"}`, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/v1/audit", token, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAuditLogSystemEntriesByAdmin(t *testing.T) {
	f := newFixture(t)
	f.register("a@example.com")
	memberToken := f.login("a@example.com")
	adminToken := f.admin()

	rec := f.do(http.MethodPost, "/v1/audit", memberToken, `{"action":"note.added","severity":"warning"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("member warning entry: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(http.MethodPost, "/v1/audit", adminToken, `{"action":"auth.breach","severity":"critical"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin system entry: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAdminAuditQueriesForbiddenForMembers(t *testing.T) {
	f := newFixture(t)
	f.register("a@example.com")
	token := f.login("a@example.com")
	for _, path := range []string{"/v1/audit/stats", "/v1/audit/recent", "/v1/audit/actions/auth.login", "/v1/audit/schemas/x.y"} {
		if rec := f.do(http.MethodGet, path, token, ""); rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, rec.Code)
		}
	}
}

func TestAdminAuditQueries(t *testing.T) {
	f := newFixture(t)
	memberID := f.register("a@example.com")
	memberToken := f.login("a@example.com")
	adminToken := f.admin()

	rec := f.do(http.MethodPost, "/v1/projects", memberToken, `{"name":"Roadmap"}`)
	var project projectResponse
	decodeBody(t, rec, &project)

	rec = f.do(http.MethodGet, "/v1/audit/users/"+memberID, adminToken, "")
	var page auditPageResponse
	decodeBody(t, rec, &page)
	if len(page.Items) != 3 || page.Items[0].Action != "project.created" {
		t.Fatalf("unexpected by-user page: %+v", page)
	}

	rec = f.do(http.MethodGet, "/v1/audit/actions/auth.login", adminToken, "")
	decodeBody(t, rec, &page)
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 logins, got %d", len(page.Items))
	}

	rec = f.do(http.MethodGet, "/v1/audit/resources/project/"+project.ID, adminToken, "")
	decodeBody(t, rec, &page)
	if len(page.Items) != 1 || page.Items[0].ResourceID != project.ID {
		t.Fatalf("unexpected by-resource page: %+v", page)
	}

	if rec := f.do(http.MethodGet, "/v1/audit/recent?window=bogus", adminToken, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad window, got %d", rec.Code)
	}
	rec = f.do(http.MethodGet, "/v1/audit/recent?window=1h", adminToken, "")
	decodeBody(t, rec, &page)
	if len(page.Items) < 4 {
		t.Fatalf("expected recent entries, got %d", len(page.Items))
	}

	rec = f.do(http.MethodGet, "/v1/audit/stats", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
	var stats domain.AuditStats
	decodeBody(t, rec, &stats)
	if stats.Total != int64(len(page.Items)) || stats.Last24h != stats.Total || stats.BySeverity[domain.SeverityInfo] != stats.Total {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDetailSchemaLifecycle(t *testing.T) {
	f := newFixture(t)
	adminToken := f.admin()

	schema := `{"schema":{"type":"object","required":["tab"],"properties":{"tab":{"type":"string"}}}}`
	if rec := f.do(http.MethodPut, "/v1/audit/schemas/project.viewed", adminToken, schema); rec.Code != http.StatusOK {
		t.Fatalf("upsert schema: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodGet, "/v1/audit/schemas/project.viewed", adminToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("get schema: %d", rec.Code)
	}

	rec := f.do(http.MethodPost, "/v1/audit", adminToken, `{"action":"project.viewed","details":{"tab":7}}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", rec.Code, rec.Body.String())
	}
	var violation struct {
		Details []string `json:"details"`
	}
	decodeBody(t, rec, &violation)
	if len(violation.Details) == 0 {
		t.Fatal("expected schema violation details")
	}

	if rec := f.do(http.MethodPost, "/v1/audit", adminToken, `{"action":"project.viewed","details":{"tab":"budget"}}`); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for valid details, got %d", rec.Code)
	}

	if rec := f.do(http.MethodPut, "/v1/audit/schemas/project.viewed", adminToken, `{"schema":{"type":7}}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid schema, got %d", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/v1/audit/schemas/project.viewed", adminToken, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete schema: %d", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/v1/audit/schemas/project.viewed", adminToken, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestAdminLogsForAnotherUser(t *testing.T) {
	f := newFixture(t)
	memberID := f.register("a@example.com")
	adminToken := f.admin()

	rec := f.do(http.MethodPost, "/v1/audit", adminToken, `{"action":"account.locked","user_id":"`+memberID+`","severity":"critical"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("log: %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(http.MethodPost, "/v1/audit", adminToken, `{"action":"account.locked","user_id":"missing"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown user, got %d", rec.Code)
	}
}

func TestProjectCRUDAndOwnership(t *testing.T) {
	f := newFixture(t)
	f.register("owner@example.com")
	f.register("other@example.com")
	owner := f.login("owner@example.com")
	other := f.login("other@example.com")

	rec := f.do(http.MethodPost, "/v1/projects", owner, `{"name":"Launch","budget_cents":125000,"due_date":"2026-12-01T00:00:00Z"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var p projectResponse
	decodeBody(t, rec, &p)
	if p.Status != "planning" || p.BudgetCents != 125000 || p.DueDate == "" {
		t.Fatalf("unexpected project: %+v", p)
	}

	if rec := f.do(http.MethodPost, "/v1/projects", owner, `{"name":"x","status":"archived"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/v1/projects/"+p.ID, other, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign read, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPatch, "/v1/projects/"+p.ID, other, `{"status":"active"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign update, got %d", rec.Code)
	}

	rec = f.do(http.MethodPatch, "/v1/projects/"+p.ID, owner, `{"status":"active"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &p)
	if p.Status != "active" {
		t.Fatalf("expected active, got %s", p.Status)
	}

	rec = f.do(http.MethodGet, "/v1/projects", other, "")
	var list struct {
		Items []projectResponse `json:"items"`
	}
	decodeBody(t, rec, &list)
	if len(list.Items) != 0 {
		t.Fatalf("expected other user to see no projects, got %d", len(list.Items))
	}

	if rec := f.do(http.MethodDelete, "/v1/projects/"+p.ID, owner, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/v1/projects/"+p.ID, owner, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}

	entries, err := f.audit.ByResource(context.Background(), domain.ProjectResourceType, p.ID, domain.AuditQuery{})
	if err != nil {
		t.Fatalf("by resource: %v", err)
	}
	if len(entries) != 3 || entries[0].Action != "project.deleted" || entries[0].Severity != domain.SeverityWarning {
		t.Fatalf("unexpected project audit trail: %+v", entries)
	}
}

func TestHealthzMetricsAndAccessObserver(t *testing.T) {
	metricsHit := false
	f := newFixture(t, func(o *Options) {
		o.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			metricsHit = true
			w.WriteHeader(http.StatusOK)
		})
	})
	if rec := f.do(http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/metrics", "", ""); rec.Code != http.StatusOK || !metricsHit {
		t.Fatalf("metrics: %d hit=%v", rec.Code, metricsHit)
	}
	if rec := f.do(http.MethodGet, "/v1/projects/abc", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	want := []string{"GET /healthz", "GET /metrics", "GET /v1/projects/{id}"}
	if strings.Join(f.observed, "|") != strings.Join(want, "|") {
		t.Fatalf("observed routes %v, want %v", f.observed, want)
	}
}

func TestHealthzReportsUnready(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("db gone") }
	})
	if rec := f.do(http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.CORSOrigins = []string{"https://app.example.com"}
	})
	req := httptest.NewRequest(http.MethodOptions, "/v1/me", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestWriteJSONEncodeErrorHandled(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	writeJSON(rec, req, http.StatusOK, map[string]any{"bad": func() {}})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal server error") {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}

func TestHandleDomainErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidAction, http.StatusBadRequest},
		{domain.ErrUnknownUser, http.StatusUnprocessableEntity},
		{&domain.ErrSchemaViolation{Errors: []string{"x"}}, http.StatusUnprocessableEntity},
		{domain.ErrDuplicateEmail, http.StatusConflict},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handleDomainError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
		var payload map[string]any
		if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&payload); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if payload["error"] == "" || payload["error"] == nil {
			t.Fatalf("%v: expected error message", tc.err)
		}
	}
}

func TestOpenAPIEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/openapi.json", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc map[string]any
	decodeBody(t, rec, &doc)
	if _, ok := doc["paths"].(map[string]any)["/v1/sessions:revoke-others"]; !ok {
		t.Fatal("expected revoke-others path in openapi document")
	}
}
