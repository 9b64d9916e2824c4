package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"license-server/internal/cache"
	"license-server/internal/config"
	"license-server/internal/database"
	"license-server/internal/handler"
	"license-server/internal/logger"
	"license-server/internal/metrics"
	"license-server/internal/middleware"
	"license-server/internal/server"
	"license-server/internal/service"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("license server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting license server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("database", cfg.Database.Driver))

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	if err := database.Migrate(db); err != nil {
		return err
	}
	if err := database.Seed(ctx, db, cfg.Auth, log); err != nil {
		return err
	}
	store := database.NewStore(db)
	m := metrics.New()

	var catalogCache service.Cache
	if cfg.Redis.Enabled() {
		client, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, serving the catalog from the database", zap.Error(err))
		} else {
			rc := cache.New(client, cfg.Redis.CatalogTTL)
			defer func() { _ = rc.Close() }()
			catalogCache = rc
			log.Info("catalog cache enabled")
		}
	}

	opts := []service.Option{service.WithMetrics(m)}
	sheetSync, err := service.NewSheetSyncService(ctx, cfg.Sheets, log)
	if err != nil {
		return err
	}
	if sheetSync != nil {
		opts = append(opts, service.WithSyncer(sheetSync))
	}

	licenses := service.NewLicenseManager(store, cfg.License, log, opts...)
	catalog := service.NewCatalog(store, catalogCache, m, log)
	auth := service.NewAuthService(store, cfg.Auth, log)
	audit := service.NewAuditor(store, log)

	if sheetSync != nil {
		all, err := licenses.List(ctx)
		if err != nil {
			return err
		}
		if err := sheetSync.BatchSyncLicenses(ctx, all); err != nil {
			log.Warn("initial sheet sync failed", zap.Error(err))
		}
	}

	h := handler.New(licenses, catalog, auth, audit, log)
	limiter := middleware.NewLimiter(cfg.Rate)
	srv := server.NewServer(cfg.Server, h, auth, limiter, m, store, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	licenses.Wait()
	log.Info("shutdown complete")
	return nil
}
