package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minus-twelve/taskauth"
	"github.com/minus-twelve/taskauth/internal/api"
	"github.com/minus-twelve/taskauth/internal/logging"
	"github.com/minus-twelve/taskauth/internal/users"
	"github.com/minus-twelve/taskauth/storage"
	"github.com/minus-twelve/taskauth/token"
	"github.com/minus-twelve/taskauth/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", os.Getenv("TASKAUTH_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := taskauth.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)
	if err := run(cfg, logger); err != nil {
		logger.Error("taskauthd stopped with error", "err", err)
		os.Exit(1)
	}
	logger.Info("taskauthd stopped cleanly")
}

func openStore(ctx context.Context, name string, cfg types.StoreConfig, logger *slog.Logger) (taskauth.Store, error) {
	store, err := taskauth.CreateStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s store: %w", name, err)
	}
	if mem, ok := store.(*storage.MemoryStore); ok {
		go mem.Run(ctx, time.Minute)
	}
	logger.Info(name+" store ready", "type", cfg.StoreType)
	return store, nil
}

func run(cfg taskauth.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionStore, err := openStore(ctx, "session", cfg.SessionStore(), logger)
	if err != nil {
		return err
	}
	defer sessionStore.Close()

	tokenStore, err := openStore(ctx, "token", cfg.TokenStore, logger)
	if err != nil {
		return err
	}
	defer tokenStore.Close()

	userStore, err := users.Open(ctx, cfg.Database.File)
	if err != nil {
		return fmt.Errorf("user store: %w", err)
	}
	defer userStore.Close()
	logger.Info("database ready", "file", cfg.Database.File)

	signer, err := token.NewSigner(cfg.Token)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := taskauth.NewMetrics(registry)

	opts := []taskauth.Option{taskauth.WithLogger(logger), taskauth.WithMetrics(metrics)}
	sessions := taskauth.NewManager(sessionStore, userStore, cfg.Session, opts...)
	tokens := taskauth.NewTokenRegistry(tokenStore, signer, opts...)

	var authenticator taskauth.Authenticator
	switch cfg.AuthMode {
	case types.AuthModeBearer:
		authenticator = taskauth.NewBearerAuthenticator(signer, tokens, userStore, opts...)
	case types.AuthModeSession:
		authenticator = taskauth.NewSessionAuthenticator(sessions, opts...)
	default:
		return fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}

	limiter := taskauth.NewRateLimiter(cfg.Security.RateLimit)
	go limiter.Run(ctx)
	trusted := taskauth.ParseTrustedProxies(cfg.Security.TrustedProxies)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		logging.RequestLogger(logger),
		taskauth.RefreshMiddleware(sessions, nil),
	)

	handler := api.NewHandler(userStore, sessions, tokens, signer, sessionStore, tokenStore)
	handler.RegisterRoutes(router, authenticator, taskauth.RateLimitMiddleware(limiter, trusted))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("taskauthd started", "addr", cfg.HTTP.Addr, "auth_mode", cfg.AuthMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
