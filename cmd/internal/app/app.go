// Package app wires the pinboard server runtime: config, logging, stores,
// the auth and pin HTTP surfaces and the notification gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"pinboard/cmd/identity"
	authapi "pinboard/cmd/internal/auth/api"
	"pinboard/cmd/internal/auth/refresh"
	"pinboard/cmd/internal/auth/session"
	authtoken "pinboard/cmd/internal/auth/token"
	"pinboard/cmd/internal/notify"
	"pinboard/cmd/internal/pins"
	"pinboard/cmd/security/password"
)

// App owns the wired server runtime and its backing resources.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool
	redis     *redis.Client

	refreshStore refresh.Store

	auth   *authapi.Handler
	pinAPI *pins.Handler
	ws     *notify.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogPretty)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}

	refreshCfg := refresh.Config{TTL: cfg.RefreshTTL, SecretBytes: cfg.RefreshTokenBytes}

	var (
		ids      authapi.IdentityStore
		pinStore pins.Store
	)
	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool
		a.dbEnabled = true

		idStore, err := identity.NewPostgresStore(pool)
		if err != nil {
			a.close()
			return nil, err
		}
		refStore, err := refresh.NewPostgresStore(pool, refreshCfg)
		if err != nil {
			a.close()
			return nil, err
		}
		pStore, err := pins.NewPostgresStore(pool)
		if err != nil {
			a.close()
			return nil, err
		}
		ids, a.refreshStore, pinStore = idStore, refStore, pStore
		log.Info("store.postgres")
	} else {
		// Storeless development mode. Nothing survives a restart.
		ids = identity.NewMemoryStore(password.DefaultParams())
		a.refreshStore = refresh.NewMemoryStore(refreshCfg)
		pinStore = pins.NewMemoryStore()
		log.Info("store.inmemory")
	}

	var (
		sessions authapi.Sessions
		limiter  authapi.LoginLimiter
	)
	if cfg.RedisAddr != "" {
		client, err := NewRedisClient(ctx, cfg)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = client

		if cfg.AuthStrategy == "session" {
			st, err := session.NewStore(client, session.Config{
				TTL:     cfg.SessionTTL,
				Rolling: cfg.SessionRolling,
			})
			if err != nil {
				a.close()
				return nil, err
			}
			sessions = st
		}
		lim, err := authapi.NewRedisLoginLimiter(client, cfg.LoginMax, cfg.LoginWindow)
		if err != nil {
			a.close()
			return nil, err
		}
		limiter = lim
		log.Info("redis.enabled")
	} else {
		limiter = authapi.NoopLimiter{}
		log.Info("redis.disabled.login_throttle_off")
	}

	var tokens *authtoken.Manager
	if cfg.AuthStrategy == "bearer" {
		tm, err := authtoken.NewManager("pinboard", cfg.AccessTTL, cfg.JWTSecret)
		if err != nil {
			a.close()
			return nil, err
		}
		tokens = tm
	}

	authCfg := authapi.DefaultConfig()
	authCfg.Strategy = authapi.Strategy(cfg.AuthStrategy)
	authCfg.Production = cfg.Production
	authCfg.RefreshTTL = cfg.RefreshTTL
	authCfg.SessionTTL = cfg.SessionTTL
	authCfg.LoginMax = cfg.LoginMax
	authCfg.LoginWindow = cfg.LoginWindow

	authHandler, err := authapi.NewHandler(log, authCfg, ids, tokens, a.refreshStore, sessions, limiter)
	if err != nil {
		a.close()
		return nil, err
	}
	a.auth = authHandler

	hub := notify.NewHub(log, func(userID string) string {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		u, err := ids.UserByID(ctx, userID)
		if err != nil {
			return ""
		}
		return u.Username
	})
	a.ws = notify.NewGateway(log, notify.GatewayConfig{
		OriginPatterns: originPatterns(cfg.AllowedOrigin),
	}, hub)

	pinAPI, err := pins.NewHandler(log, pins.HandlerConfig{Production: cfg.Production}, pinStore, ids, hub)
	if err != nil {
		a.close()
		return nil, err
	}
	a.pinAPI = pinAPI

	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.auth, a.pinAPI, a.ws)

	var handler http.Handler = mux
	handler = WithCSRF(handler, a.cfg.Production)
	handler = WithCORS(handler, a.cfg.AllowedOrigin)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"strategy", a.cfg.AuthStrategy,
		"db_enabled", a.dbEnabled,
	)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweepExpiredSecrets(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
	}
	a.close()
	a.log.Info("server.stopped")
	return err
}

// sweepExpiredSecrets reclaims storage held by expired refresh records.
// Expiry is also enforced logically on redeem, so this loop is purely
// housekeeping.
func (a *App) sweepExpiredSecrets(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := a.refreshStore.DeleteExpired(opCtx, time.Now())
			cancel()
			if err != nil {
				a.log.Warn("refresh.sweep.fail", "err", err)
				continue
			}
			if n > 0 {
				a.log.Info("refresh.sweep", "deleted", n)
			}
		}
	}
}

func (a *App) close() {
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

// originPatterns derives websocket host patterns from the CORS origin.
func originPatterns(allowedOrigin string) []string {
	u, err := url.Parse(allowedOrigin)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
