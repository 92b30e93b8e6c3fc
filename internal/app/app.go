package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/adapters/device"
	"github.com/atvirokodosprendimai/trustgate/internal/adapters/events"
	"github.com/atvirokodosprendimai/trustgate/internal/adapters/geo"
	"github.com/atvirokodosprendimai/trustgate/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/trustgate/internal/adapters/metrics"
	"github.com/atvirokodosprendimai/trustgate/internal/adapters/redislimit"
	sqliteadapter "github.com/atvirokodosprendimai/trustgate/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/trustgate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/atvirokodosprendimai/trustgate/internal/core/ports"
	"github.com/atvirokodosprendimai/trustgate/internal/core/usecase"
	"github.com/atvirokodosprendimai/trustgate/migrations"
	"github.com/rs/zerolog"
)

type Config struct {
	Addr   string
	DBPath string

	SessionTTL time.Duration

	AuthRateLimit    int
	AuthRateWindow   time.Duration
	APIRateLimit     int
	APIRateWindow    time.Duration
	RateLimitMaxKeys int
	RedisAddr        string

	// GeoIPURL disables geolocation when empty.
	GeoIPURL string

	WebhookURL    string
	WebhookSecret string

	CORSOrigins []string
	TrustProxy  bool

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

func (c Config) policies() (auth, api domain.RateLimitPolicy, err error) {
	auth = domain.RateLimitPolicy{Name: "auth", Limit: c.AuthRateLimit, Window: c.AuthRateWindow}
	api = domain.RateLimitPolicy{Name: "api", Limit: c.APIRateLimit, Window: c.APIRateWindow}
	if err := auth.Validate(); err != nil {
		return auth, api, fmt.Errorf("auth policy: %w", err)
	}
	if err := api.Validate(); err != nil {
		return auth, api, fmt.Errorf("api policy: %w", err)
	}
	return auth, api, nil
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewServer(ctx context.Context, cfg Config, logger zerolog.Logger) (*http.Server, io.Closer, error) {
	authPolicy, apiPolicy, err := cfg.policies()
	if err != nil {
		return nil, nil, err
	}

	db, err := gormsqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	closers := resourceCloser{closers: []io.Closer{db}}
	fail := func(err error) (*http.Server, io.Closer, error) {
		_ = closers.Close()
		return nil, nil, err
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		return fail(fmt.Errorf("resolve writer sql db: %w", err))
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		return fail(err)
	}

	recorder := metrics.NewRecorder()

	users := sqliteadapter.NewUserRepository(db)
	schemas := usecase.NewDetailSchemaService(sqliteadapter.NewDetailSchemaRepository(db))
	audit := usecase.NewAuditService(sqliteadapter.NewAuditLogRepository(db), users, schemas, recorder, logger)

	var locator ports.GeoLocator
	if cfg.GeoIPURL != "" {
		locator = geo.NewHTTPLocator(cfg.GeoIPURL, 0, logger)
	}
	sessions := usecase.NewSessionService(sqliteadapter.NewSessionRepository(db), locator, device.NewDetector(), recorder, cfg.SessionTTL, logger)
	accounts := usecase.NewAccountService(users, sessions, audit, logger)
	projects := usecase.NewProjectService(sqliteadapter.NewProjectRepository(db), audit)

	var limiter ports.RateLimiter
	if cfg.RedisAddr != "" {
		dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := redislimit.Dial(dialCtx, cfg.RedisAddr)
		dialCancel()
		if err != nil {
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		closers.closers = append(closers.closers, client)
		limiter = redislimit.New(client, logger)
		logger.Info().Str("redis", cfg.RedisAddr).Msg("using shared redis rate limiter")
	} else {
		memory := usecase.NewMemoryRateLimiter(cfg.RateLimitMaxKeys, logger)
		recorder.WatchRateLimiter(memory)
		limiter = memory
	}

	var publisher ports.EventPublisher = events.NewLogPublisher(logger)
	if cfg.WebhookURL != "" {
		publisher = events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, 0)
	}
	dispatcher := usecase.NewAlertDispatcher(sqliteadapter.NewOutboxRepository(db), publisher, 2*time.Second, 100, logger)
	recorder.WatchAlerts(dispatcher)
	janitor := usecase.NewSessionJanitor(sessions, 10*time.Minute, logger)

	if cfg.BootstrapAdminEmail != "" {
		bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 5*time.Second)
		admin, err := accounts.EnsureAdmin(bootstrapCtx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
		bootstrapCancel()
		if err != nil {
			return fail(fmt.Errorf("bootstrap admin: %w", err))
		}
		logger.Info().Str("user_id", admin.ID).Msg("bootstrap admin ready")
	}

	dispatcher.Start(context.Background())
	janitor.Start(context.Background())
	// Background workers stop before the database closes.
	closers.closers = append([]io.Closer{janitor, dispatcher}, closers.closers...)

	handler := httpapi.NewHandler(httpapi.Services{
		Accounts: accounts,
		Sessions: sessions,
		Audit:    audit,
		Schemas:  schemas,
		Projects: projects,
		Limiter:  limiter,
		Metrics:  recorder,
	}, httpapi.Options{
		AuthPolicy:     authPolicy,
		APIPolicy:      apiPolicy,
		TrustProxy:     cfg.TrustProxy,
		CORSOrigins:    cfg.CORSOrigins,
		Logger:         logger,
		MetricsHandler: recorder.Handler(),
		ObserveHTTP:    recorder.ObserveHTTP,
		Ready:          db.Ping,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, closers, nil
}
