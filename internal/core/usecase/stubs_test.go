package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
)

type stubUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newStubUserRepo(users ...domain.User) *stubUserRepo {
	r := &stubUserRepo{users: make(map[string]domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *stubUserRepo) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return domain.ErrDuplicateEmail
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *stubUserRepo) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[id]
	return ok, nil
}

type appendCall struct {
	entry      domain.AuditLogEntry
	alertTopic string
}

type stubAuditRepo struct {
	appended []appendCall
	filters  []domain.AuditFilter
	listFn   func(filter domain.AuditFilter) ([]domain.AuditLogEntry, error)
	statsFn  func(now time.Time) (domain.AuditStats, error)
}

func (r *stubAuditRepo) Append(_ context.Context, entry domain.AuditLogEntry, alertTopic string) (domain.AuditLogEntry, error) {
	entry.ID = int64(len(r.appended) + 1)
	r.appended = append(r.appended, appendCall{entry: entry, alertTopic: alertTopic})
	return entry, nil
}

func (r *stubAuditRepo) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	r.filters = append(r.filters, filter)
	if r.listFn != nil {
		return r.listFn(filter)
	}
	return nil, nil
}

func (r *stubAuditRepo) Stats(_ context.Context, now time.Time) (domain.AuditStats, error) {
	if r.statsFn != nil {
		return r.statsFn(now)
	}
	return domain.AuditStats{}, nil
}

func (r *stubAuditRepo) actions() []string {
	out := make([]string, 0, len(r.appended))
	for _, c := range r.appended {
		out = append(out, c.entry.Action)
	}
	return out
}

type stubSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.Session // by id
	touched  []string
	// beforeTouch runs before Touch looks the session up.
	beforeTouch func(id string)
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: make(map[string]domain.Session)}
}

func (r *stubSessionRepo) Create(_ context.Context, s domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *stubSessionRepo) FindByTokenHash(_ context.Context, hash string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.TokenHash == hash {
			return s, nil
		}
	}
	return domain.Session{}, domain.ErrNotFound
}

func (r *stubSessionRepo) Touch(_ context.Context, id string, at time.Time) error {
	if r.beforeTouch != nil {
		r.beforeTouch(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.LastActivityAt = at
	r.sessions[id] = s
	r.touched = append(r.touched, id)
	return nil
}

func (r *stubSessionRepo) ListByUser(_ context.Context, userID string) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

func (r *stubSessionRepo) Delete(_ context.Context, userID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return false, nil
	}
	delete(r.sessions, id)
	return true, nil
}

func (r *stubSessionRepo) DeleteByTokenHash(_ context.Context, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.TokenHash == hash {
			delete(r.sessions, id)
			return true, nil
		}
	}
	return false, nil
}

func (r *stubSessionRepo) DeleteOthers(_ context.Context, userID, keep string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.UserID == userID && s.TokenHash != keep {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *stubSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

type stubGeo struct {
	geo   *domain.Geolocation
	calls []string
}

func (g *stubGeo) Locate(_ context.Context, ip string) *domain.Geolocation {
	g.calls = append(g.calls, ip)
	return g.geo
}

type stubDevices struct{}

func (stubDevices) Detect(ua string) domain.DeviceInfo {
	return domain.DeviceInfo{Browser: "Firefox", OS: "Linux", DeviceType: "desktop", UserAgent: ua}
}

type recordingMetrics struct {
	decisions map[bool]int
	severity  map[domain.Severity]int
	revoked   map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		decisions: make(map[bool]int),
		severity:  make(map[domain.Severity]int),
		revoked:   make(map[string]int),
	}
}

func (m *recordingMetrics) RateLimitDecision(_ string, allowed bool) { m.decisions[allowed]++ }
func (m *recordingMetrics) AuditLogged(s domain.Severity)            { m.severity[s]++ }
func (m *recordingMetrics) SessionsRevoked(reason string, n int)     { m.revoked[reason] += n }

type stubSchemaRepo struct {
	schemas map[string]domain.DetailSchema
	gets    int
	// beforeWrite runs inside Upsert and Delete ahead of the change.
	beforeWrite func()
}

func newStubSchemaRepo() *stubSchemaRepo {
	return &stubSchemaRepo{schemas: make(map[string]domain.DetailSchema)}
}

func (r *stubSchemaRepo) Upsert(_ context.Context, schema domain.DetailSchema) (domain.DetailSchema, error) {
	if r.beforeWrite != nil {
		r.beforeWrite()
	}
	r.schemas[schema.Action] = schema
	return schema, nil
}

func (r *stubSchemaRepo) Get(_ context.Context, action string) (domain.DetailSchema, error) {
	r.gets++
	s, ok := r.schemas[action]
	if !ok {
		return domain.DetailSchema{}, domain.ErrNotFound
	}
	return s, nil
}

func (r *stubSchemaRepo) Delete(_ context.Context, action string) (bool, error) {
	if r.beforeWrite != nil {
		r.beforeWrite()
	}
	if _, ok := r.schemas[action]; !ok {
		return false, nil
	}
	delete(r.schemas, action)
	return true, nil
}

type stubProjectRepo struct {
	projects map[string]domain.Project
}

func newStubProjectRepo() *stubProjectRepo {
	return &stubProjectRepo{projects: make(map[string]domain.Project)}
}

func (r *stubProjectRepo) Create(_ context.Context, p domain.Project) (domain.Project, error) {
	r.projects[p.ID] = p
	return p, nil
}

func (r *stubProjectRepo) Get(_ context.Context, id string) (domain.Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return domain.Project{}, domain.ErrNotFound
	}
	return p, nil
}

func (r *stubProjectRepo) List(_ context.Context, filter domain.ProjectFilter) ([]domain.Project, error) {
	var out []domain.Project
	for _, p := range r.projects {
		if filter.OwnerID != "" && p.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *stubProjectRepo) Update(_ context.Context, p domain.Project) (domain.Project, error) {
	if _, ok := r.projects[p.ID]; !ok {
		return domain.Project{}, domain.ErrNotFound
	}
	r.projects[p.ID] = p
	return p, nil
}

func (r *stubProjectRepo) Delete(_ context.Context, id string) (bool, error) {
	if _, ok := r.projects[id]; !ok {
		return false, nil
	}
	delete(r.projects, id)
	return true, nil
}
