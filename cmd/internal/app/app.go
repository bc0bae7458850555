// Package app wires the UniDash server runtime: config, logging, storage
// selection, HTTP routes, and metrics.
package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"unidash/cmd/internal/api"
	"unidash/cmd/internal/delivery"
	"unidash/cmd/internal/member"
	"unidash/cmd/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is the UniDash server runtime.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	handler  *api.Handler
	registry *prometheus.Registry
}

// stores groups the per-domain persistence picked by newStores.
type stores struct {
	members    member.Store
	sessions   session.Store
	deliveries delivery.Store
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg, sessCfg); err != nil {
		return nil, err
	}
	apiCfg, err := api.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	st, pool, dbEnabled, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := api.NewMetrics(registry)

	provider, err := newIdentityProvider(apiCfg, log)
	if err != nil {
		closePool(pool)
		return nil, err
	}

	members, err := member.NewService(provider, st.members, member.WithAllowedDomain(apiCfg.AllowedEmailDomain))
	if err != nil {
		closePool(pool)
		return nil, err
	}
	sessions, err := session.NewService(sessCfg, st.sessions)
	if err != nil {
		closePool(pool)
		return nil, err
	}
	deliveries, err := delivery.NewService(st.deliveries)
	if err != nil {
		closePool(pool)
		return nil, err
	}

	handler, err := api.NewHandler(log, apiCfg, members, sessions, deliveries, metrics)
	if err != nil {
		closePool(pool)
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    pool,
		dbEnabled: dbEnabled,
		handler:   handler,
		registry:  registry,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.registry, a.handler)

	var root http.Handler = mux
	root = WithSecurityHeaders(root)
	root = WithCORS(root, a.cfg, a.log)
	root = WithRequestLogging(root, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           root,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"url", runtimeBaseURL(a.cfg.HTTPAddr),
		"db_enabled", a.dbEnabled,
	)

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
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	closePool(a.dbPool)
	a.log.Info("server.stopped")
	return nil
}

// newStores decides between Postgres-backed persistence and in-memory dev
// stores. All three domains follow the same mode; mixing them would split a
// member's data across backends.
func newStores(ctx context.Context, cfg Config, log Logger) (stores, *pgxpool.Pool, bool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")

		memberStore := member.NewMemoryStore()
		lookup := func(ctx context.Context, memberID string) (string, *string, error) {
			m, err := memberStore.GetByID(ctx, memberID)
			if err != nil {
				return "", nil, err
			}
			return m.Name, m.Phone, nil
		}
		return stores{
			members:    memberStore,
			sessions:   session.NewMemoryStore(),
			deliveries: delivery.NewMemoryStore(lookup),
		}, nil, false, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return stores{}, nil, false, err
	}
	log.Info("db.enabled.postgres_store")

	memberStore, err := member.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return stores{}, nil, false, err
	}
	sessionStore, err := session.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return stores{}, nil, false, err
	}
	deliveryStore, err := delivery.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return stores{}, nil, false, err
	}

	return stores{
		members:    memberStore,
		sessions:   sessionStore,
		deliveries: deliveryStore,
	}, pool, true, nil
}

// newIdentityProvider builds the Google provider, or a disabled stand-in when
// no client registration is configured so a dev server can still boot.
func newIdentityProvider(apiCfg api.Config, log Logger) (member.IdentityProvider, error) {
	if strings.TrimSpace(apiCfg.GoogleClientID) == "" {
		log.Warn("auth.google.disabled", "reason", "no client id configured")
		return disabledProvider{}, nil
	}
	return member.NewGoogleProvider(member.GoogleConfig{
		ClientID:     apiCfg.GoogleClientID,
		ClientSecret: apiCfg.GoogleClientSecret,
		RedirectURI:  apiCfg.GoogleRedirectURI,
	})
}

// disabledProvider rejects every login until Google credentials are configured.
type disabledProvider struct{}

func (disabledProvider) AuthCodeURL(string) string { return "" }

func (disabledProvider) ResolveCode(context.Context, string) (member.Profile, error) {
	return member.Profile{}, member.OpError{
		Op:   "app.disabledProvider",
		Kind: member.ErrProvider,
		Msg:  "google login is not configured",
	}
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL renders a clickable startup URL from a bind address.
func runtimeBaseURL(addr string) string {
	host := addr
	switch {
	case strings.HasPrefix(addr, "0.0.0.0:"):
		host = "127.0.0.1:" + strings.TrimPrefix(addr, "0.0.0.0:")
	case strings.HasPrefix(addr, "[::]:"):
		host = "127.0.0.1:" + strings.TrimPrefix(addr, "[::]:")
	}
	return "http://" + host
}
