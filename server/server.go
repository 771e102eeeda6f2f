package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"musinotes/cache"
	"musinotes/config"
	"musinotes/core/auth"
	"musinotes/core/mail"
	"musinotes/core/oauth"
	"musinotes/db"
	"musinotes/logger"
	"musinotes/repository"
	"musinotes/service"
	"musinotes/storage"
	"musinotes/telemetry"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

// Deps are the collaborators the router needs.
type Deps struct {
	Config       *config.Config
	Accounts     *service.AccountService
	Songs        *service.SongService
	Tokens       *auth.TokenManager
	LoginLimiter cache.Limiter
	APILimiter   cache.Limiter
	DBPing       PingFunc
	RedisPing    PingFunc // nil when Redis is disabled
}

// NewRouter builds the full handler tree.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	errs := errorWriter{exposeDetails: !cfg.Server.IsProduction()}

	authHandler := NewAuthHandler(d.Accounts, errs, cfg.Server.FrontendURL)
	songHandler := NewSongHandler(d.Songs, errs)
	health := &HealthHandler{env: cfg.Server.Env, dbPing: d.DBPing, redisPing: d.RedisPing}

	loginLimit := rateLimit(d.LoginLimiter, cfg.Server.TrustProxy, "Too many login attempts, please try again later")
	apiLimit := rateLimit(d.APILimiter, cfg.Server.TrustProxy, "Too many requests, please try again later")
	authed := requireAuth(d.Tokens, errs)

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.Handle("/health", health).Methods(http.MethodGet)

	// Account endpoints
	a := api.PathPrefix("/auth").Subrouter()
	a.HandleFunc("/register", authHandler.RegisterHandler).Methods(http.MethodPost)
	a.Handle("/login", chain(http.HandlerFunc(authHandler.LoginHandler), loginLimit)).Methods(http.MethodPost)
	a.Handle("/me", chain(http.HandlerFunc(authHandler.MeHandler), authed)).Methods(http.MethodGet)
	a.HandleFunc("/forgot-password", authHandler.ForgotPasswordHandler).Methods(http.MethodPost)
	a.HandleFunc("/reset-password", authHandler.ResetPasswordHandler).Methods(http.MethodPost)
	a.Handle("/delete-account", chain(http.HandlerFunc(authHandler.DeleteAccountHandler), authed)).Methods(http.MethodDelete)
	a.HandleFunc("/google", authHandler.GoogleLoginHandler).Methods(http.MethodGet)
	a.HandleFunc("/google/callback", authHandler.GoogleCallbackHandler).Methods(http.MethodGet)

	// Song endpoints: rate limit first, then the auth gate.
	songs := api.PathPrefix("/songs").Subrouter()
	songs.Use(apiLimit, authed)
	songs.HandleFunc("", songHandler.ListSongsHandler).Methods(http.MethodGet)
	songs.HandleFunc("", songHandler.CreateSongHandler).Methods(http.MethodPost)
	songs.HandleFunc("/{id}", songHandler.GetSongHandler).Methods(http.MethodGet)
	songs.HandleFunc("/{id}", songHandler.UpdateSongHandler).Methods(http.MethodPut)
	songs.HandleFunc("/{id}", songHandler.DeleteSongHandler).Methods(http.MethodDelete)
	songs.HandleFunc("/{id}/pdf", songHandler.PDFHandler).Methods(http.MethodGet)
	songs.HandleFunc("/{id}/txt", songHandler.TextHandler).Methods(http.MethodGet)
	songs.HandleFunc("/{id}/sheet", songHandler.SheetHandler).Methods(http.MethodGet)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Warn("Route not found", logger.String("method", r.Method), logger.String("path", r.URL.Path))
		errs.write(w, r, errRouteNotFound)
	})
	router.NotFoundHandler = notFound
	router.MethodNotAllowedHandler = notFound

	return chain(router,
		recoverer(errs),
		requestLogger,
		corsMiddleware(cfg.CORS),
		securityHeaders,
		limitBody(cfg.Server.MaxBodyBytes),
	)
}

// Start wires every dependency, serves HTTP and shuts down gracefully on SIGINT/SIGTERM.
func Start(cfg *config.Config) error {
	shutdownTracing, err := telemetry.Init(context.Background(), cfg.Telemetry)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(gormDB); err != nil {
			return err
		}
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = db.ConnectRedis(cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info("Successfully connected to Redis", logger.String("addr", cfg.Redis.Addr()))
	}

	var loginLimiter, apiLimiter cache.Limiter
	var states cache.StateStore
	var redisPing PingFunc
	if redisClient != nil {
		loginLimiter = cache.NewRedisLimiter(redisClient, "login", cfg.RateLimit.Login)
		apiLimiter = cache.NewRedisLimiter(redisClient, "api", cfg.RateLimit.API)
		states = cache.NewRedisStateStore(redisClient)
		redisPing = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		loginLimiter = cache.NewMemoryLimiter(cfg.RateLimit.Login)
		apiLimiter = cache.NewMemoryLimiter(cfg.RateLimit.API)
		states = cache.NewMemoryStateStore()
	}

	var archive storage.ExportArchive
	if cfg.Minio.Enabled() {
		store, err := storage.NewMinioStore(cfg.Minio)
		if err != nil {
			// Exports still work without the archive.
			logger.Warn("MinIO unavailable, PDF archive disabled", logger.ErrorField(err))
		} else {
			archive = storage.NewBreakerArchive(store)
		}
	}

	var google oauth.Provider
	if cfg.Google.Enabled() {
		google = oauth.NewGoogleProvider(cfg.Google)
	} else {
		logger.Warn("Google OAuth not configured")
	}

	tokens := auth.NewTokenManager(cfg.JWT)
	users := repository.NewUserRepository(sqlDB)
	songRepo := repository.NewSongRepository(sqlDB)

	handler := NewRouter(Deps{
		Config: cfg,
		Accounts: service.NewAccountService(users, tokens, mail.New(cfg.Mail), archive, google, states,
			service.AccountOptions{BcryptCost: cfg.BcryptCost, FrontendURL: cfg.Server.FrontendURL}),
		Songs:        service.NewSongService(songRepo, archive),
		Tokens:       tokens,
		LoginLimiter: loginLimiter,
		APILimiter:   apiLimiter,
		DBPing:       sqlDB.PingContext,
		RedisPing:    redisPing,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("MusiNotes server starting",
			logger.String("addr", srv.Addr),
			logger.String("environment", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case sig := <-stop:
		logger.Info("Shutting down server", logger.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
