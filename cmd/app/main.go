package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/app"
	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/atvirokodosprendimai/trustgate/internal/logging"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "trustgate",
		Usage: "Rate limiting, audit logging and session registry service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("TRUSTGATE_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./trustgate.sqlite",
				Sources: cli.EnvVars("TRUSTGATE_DB_PATH"),
				Usage:   "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("TRUSTGATE_LOG_LEVEL"),
				Usage:   "Log level (trace, debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Sources: cli.EnvVars("TRUSTGATE_LOG_FORMAT"),
				Usage:   "Log format (json or console)",
			},
			&cli.DurationFlag{
				Name:    "session-ttl",
				Value:   domain.DefaultSessionTTL,
				Sources: cli.EnvVars("TRUSTGATE_SESSION_TTL"),
				Usage:   "Lifetime of a login session",
			},
			&cli.IntFlag{
				Name:    "auth-rate-limit",
				Value:   5,
				Sources: cli.EnvVars("TRUSTGATE_AUTH_RATE_LIMIT"),
				Usage:   "Login and register attempts allowed per client IP per window",
			},
			&cli.DurationFlag{
				Name:    "auth-rate-window",
				Value:   time.Minute,
				Sources: cli.EnvVars("TRUSTGATE_AUTH_RATE_WINDOW"),
				Usage:   "Window for the auth rate limit",
			},
			&cli.IntFlag{
				Name:    "api-rate-limit",
				Value:   120,
				Sources: cli.EnvVars("TRUSTGATE_API_RATE_LIMIT"),
				Usage:   "Authenticated requests allowed per user per window",
			},
			&cli.DurationFlag{
				Name:    "api-rate-window",
				Value:   time.Minute,
				Sources: cli.EnvVars("TRUSTGATE_API_RATE_WINDOW"),
				Usage:   "Window for the API rate limit",
			},
			&cli.IntFlag{
				Name:    "rate-limit-max-keys",
				Value:   10000,
				Sources: cli.EnvVars("TRUSTGATE_RATE_LIMIT_MAX_KEYS"),
				Usage:   "Tracked keys above which the in-memory limiter sweeps expired windows",
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Sources: cli.EnvVars("TRUSTGATE_REDIS_ADDR"),
				Usage:   "Redis URL or host:port for a limiter shared across instances",
			},
			&cli.StringFlag{
				Name:    "geoip-url",
				Value:   "http://ip-api.com/json",
				Sources: cli.EnvVars("TRUSTGATE_GEOIP_URL"),
				Usage:   "ip-api compatible geolocation endpoint; empty disables lookups",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("TRUSTGATE_WEBHOOK_URL"),
				Usage:   "Alert webhook target URL; alerts are logged when unset",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("TRUSTGATE_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
			&cli.StringSliceFlag{
				Name:    "cors-origins",
				Sources: cli.EnvVars("TRUSTGATE_CORS_ORIGINS"),
				Usage:   "Allowed CORS origins for the web and mobile clients",
			},
			&cli.BoolFlag{
				Name:    "trust-proxy",
				Sources: cli.EnvVars("TRUSTGATE_TRUST_PROXY"),
				Usage:   "Take the client IP from X-Forwarded-For / X-Real-IP",
			},
			&cli.StringFlag{
				Name:    "bootstrap-admin-email",
				Sources: cli.EnvVars("TRUSTGATE_BOOTSTRAP_ADMIN_EMAIL"),
				Usage:   "Optional admin account to create at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-admin-password",
				Sources: cli.EnvVars("TRUSTGATE_BOOTSTRAP_ADMIN_PASSWORD"),
				Usage:   "Password for the bootstrap admin account",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger, err := logging.New(logging.Config{
				Level:  c.String("log-level"),
				Format: c.String("log-format"),
			})
			if err != nil {
				return err
			}

			cfg := app.Config{
				Addr:                   c.String("addr"),
				DBPath:                 c.String("db-path"),
				SessionTTL:             c.Duration("session-ttl"),
				AuthRateLimit:          int(c.Int("auth-rate-limit")),
				AuthRateWindow:         c.Duration("auth-rate-window"),
				APIRateLimit:           int(c.Int("api-rate-limit")),
				APIRateWindow:          c.Duration("api-rate-window"),
				RateLimitMaxKeys:       int(c.Int("rate-limit-max-keys")),
				RedisAddr:              c.String("redis-addr"),
				GeoIPURL:               c.String("geoip-url"),
				WebhookURL:             c.String("webhook-url"),
				WebhookSecret:          c.String("webhook-secret"),
				CORSOrigins:            c.StringSlice("cors-origins"),
				TrustProxy:             c.Bool("trust-proxy"),
				BootstrapAdminEmail:    c.String("bootstrap-admin-email"),
				BootstrapAdminPassword: c.String("bootstrap-admin-password"),
			}

			server, closer, err := app.NewServer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					logger.Error().Err(closeErr).Msg("close resources")
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", cfg.Addr).Msg("listening")
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case sig := <-sigCh:
				logger.Info().Str("signal", sig.String()).Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
