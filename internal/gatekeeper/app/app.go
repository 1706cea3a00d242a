package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/audit"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/gate"
	httpapi "github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/http"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	redisstore "github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store/drivers/redis"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/pkg/clock"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/ratelimit"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	sentryFlushTimeout = 2 * time.Second
)

// Application encapsulates the gatekeeper service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger
	clock  clock.Clock

	// Core dependencies
	db           *sqlite.Store
	redis        redis.UniversalClient // nil unless REFRESH_STORE=redis
	refreshStore store.RefreshCredentials
	refreshPing  httpapi.Pinger
	limiter      *ratelimit.Limiter
	pipeline     *audit.Pipeline
	sentryOn     bool

	// Services
	tokenService        *service.TokenService
	refreshService      *service.RefreshService
	identityService     *service.IdentityService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router

	housekeeping atomic.Bool // set once the background sweeper runs
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg:   cfg,
		clock: clock.Real{},
		logger: slogx.New(slogx.Config{
			Service: "gatekeeper",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initSentry(); err != nil {
		return nil, err
	}
	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initRefreshStore(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		app.closeStores()
		return nil, err
	}
	if err := app.bootstrapAdmin(); err != nil {
		app.pipeline.Close()
		app.closeStores()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler is the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run serves until ctx is cancelled or the server fails, then shuts down.
func (app *Application) Run(ctx context.Context) error {
	if app.housekeeping.CompareAndSwap(false, true) {
		app.housekeepingService.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.logger.Info("gatekeeper starting",
			slog.String("addr", app.server.Addr),
			slog.String("version", BuildVersion),
			slog.String("refresh_store", app.cfg.RefreshStore),
		)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutdown requested")
		return app.Shutdown()
	})
	return g.Wait()
}

// Shutdown drains requests, then the audit queue, then closes the stores.
// Calling it more than once returns the first result.
func (app *Application) Shutdown() error {
	app.shutdownOnce.Do(func() {
		app.logger.Info("shutting down gatekeeper...")

		ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
		defer cancel()

		if err := app.server.Shutdown(ctx); err != nil {
			app.logger.Error("graceful server shutdown failed", slogx.Err(err))
			if err := app.server.Close(); err != nil {
				app.logger.Error("error closing server", slogx.Err(err))
			}
		}

		if app.housekeeping.Load() {
			app.housekeepingService.Stop()
		}
		app.pipeline.Close()

		stats := app.pipeline.Stats()
		app.logger.Info("audit pipeline drained",
			slog.Uint64("written", stats.Written),
			slog.Uint64("failed", stats.Failed),
			slog.Uint64("dropped", stats.Dropped),
		)

		app.shutdownErr = app.closeStores()
		if app.sentryOn {
			sentry.Flush(sentryFlushTimeout)
		}
		app.logger.Info("gatekeeper stopped")
	})
	return app.shutdownErr
}

func (app *Application) initSentry() error {
	if app.cfg.SentryDSN == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              app.cfg.SentryDSN,
		Environment:      app.cfg.Env,
		Release:          BuildVersion,
		AttachStacktrace: true,
	}); err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	app.sentryOn = true
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(sqlite.FileDSN(app.cfg.DatabaseFile))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initRefreshStore() error {
	if app.cfg.RefreshStore != RefreshStoreRedis {
		app.refreshStore = app.db.RefreshCredentials()
		app.refreshPing = app.db
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})
	rs := redisstore.NewRefreshCredentials(client, "gk", redisstore.DefaultRetention)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rs.Ping(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	app.redis = client
	app.refreshStore = rs
	app.refreshPing = rs
	app.logger.Info("refresh credentials stored in redis", slog.String("addr", app.cfg.RedisAddr))
	return nil
}

// initServices initializes the token, refresh, identity, limiter and audit
// layers.
func (app *Application) initServices() error {
	key, err := app.cfg.signingKey()
	if err != nil {
		return err
	}
	app.tokenService, err = service.NewTokenService(key, app.cfg.TokenIssuer, app.cfg.AccessTokenTTL, app.clock)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	app.refreshService = &service.RefreshService{
		Store: app.refreshStore,
		Clock: app.clock,
		TTL:   app.cfg.RefreshTokenTTL,
	}
	app.identityService = &service.IdentityService{Store: app.db, Clock: app.clock}

	app.limiter, err = ratelimit.New(app.cfg.rateLimitConfig(), app.clock)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	auditKey, err := app.cfg.auditKey()
	if err != nil {
		return err
	}
	app.pipeline = audit.New(audit.Config{
		BufferSize: app.cfg.AuditBufferSize,
		Workers:    app.cfg.AuditWorkers,
	}, app.db.AuditEvents(), audit.NewSigner(auditKey), app.clock, app.logger)

	app.housekeepingService = service.NewHousekeepingService(
		app.refreshStore,
		app.limiter,
		app.clock,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

func (app *Application) bootstrapAdmin() error {
	created, err := app.identityService.EnsureAdmin(context.Background(), app.cfg.AdminEmail, app.cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	if created {
		app.logger.Info("bootstrap admin created", slog.String("email", app.cfg.AdminEmail))
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	// Both were validated at load.
	cookies, _ := app.cfg.cookieConfig()
	proxies, _ := httpx.ParseTrustedProxies(app.cfg.TrustedProxies)

	router := httpapi.NewRouter(
		gate.New(app.tokenService, app.limiter, app.pipeline),
		cookies,
		BuildVersion,
		app.logger,
	)

	// Wire services to router
	router.Database = app.db
	router.RefreshStore = app.refreshPing
	router.TokenService = app.tokenService
	router.RefreshService = app.refreshService
	router.IdentityService = app.identityService
	router.TrustedProxies = proxies
	router.AuditReader = &audit.Reader{Store: app.db.AuditEvents(), Signer: app.pipeline.Signer()}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

func (app *Application) closeStores() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", slogx.Err(err))
			errs = append(errs, err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", slogx.Err(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
