package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/integreat/contentapi/internal/api"
	"github.com/integreat/contentapi/internal/config"
	"github.com/integreat/contentapi/internal/content"
	httpserver "github.com/integreat/contentapi/internal/http"
	"github.com/integreat/contentapi/internal/http/ratelimit"
	"github.com/integreat/contentapi/internal/logging"
	"github.com/integreat/contentapi/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	logger.Info("starting content api", zap.String("listen_addr", cfg.ListenAddr), zap.String("base_url", cfg.BaseURL))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("failed to create db pool", zap.Error(err))
	}
	defer pool.Close()

	prefix := cfg.DB.TablePrefix
	verifyCtx, cancelVerify := context.WithTimeout(ctx, 10*time.Second)
	err = store.VerifySchema(verifyCtx, pool, append(store.NetworkTables(prefix), store.SiteTables(prefix)...))
	cancelVerify()
	if err != nil {
		logger.Fatal("content schema check failed", zap.Error(err))
	}

	stor, err := store.New(pool, prefix)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}

	svc := content.NewService(logger.Named("content"), content.Options{
		BaseURL:  cfg.BaseURL,
		Location: cfg.Location(),
		Sites:    stor,
	})
	logger.Debug("content pipeline", zap.Strings("stages", svc.Stages()))

	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 5*time.Minute, cfg.TrustedProxies)
	go limiter.Run(ctx)

	handler := api.NewHandler(cfg, stor, svc, logger.Named("api"))
	r := httpserver.NewRouter(cfg, logger.Named("http"), stor, handler, limiter)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
