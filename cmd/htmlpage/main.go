// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/olegiv/ocms-htmlpage/internal/auth"
	"github.com/olegiv/ocms-htmlpage/internal/cache"
	"github.com/olegiv/ocms-htmlpage/internal/config"
	"github.com/olegiv/ocms-htmlpage/internal/handler"
	"github.com/olegiv/ocms-htmlpage/internal/handler/api"
	"github.com/olegiv/ocms-htmlpage/internal/i18n"
	"github.com/olegiv/ocms-htmlpage/internal/indexer"
	"github.com/olegiv/ocms-htmlpage/internal/logging"
	"github.com/olegiv/ocms-htmlpage/internal/middleware"
	"github.com/olegiv/ocms-htmlpage/internal/render"
	"github.com/olegiv/ocms-htmlpage/internal/scheduler"
	"github.com/olegiv/ocms-htmlpage/internal/service"
	"github.com/olegiv/ocms-htmlpage/internal/session"
	"github.com/olegiv/ocms-htmlpage/internal/store"
	"github.com/olegiv/ocms-htmlpage/internal/version"
	"github.com/olegiv/ocms-htmlpage/web"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

const (
	adminAPIPrefix = "/admin/api"
	requestTimeout = 30 * time.Second
)

func main() {
	showVersion := flag.BoolP("version", "v", false, "Show version information")
	showHelp := flag.BoolP("help", "h", false, "Show help information")
	hashToken := flag.String("hash-token", "", "Print the argon2id hash of an admin token and exit")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "htmlpage - HTML page publishing service\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  HTMLPAGE_ADMIN_TOKEN            Admin API token or argon2id hash (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  HTMLPAGE_DB_PATH                SQLite database path (default: ./data/htmlpage.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  HTMLPAGE_SERVER_PORT            Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  HTMLPAGE_ENV                    Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  HTMLPAGE_AUTHENTICATION_ENABLED Enforce page roles (default: true)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  HTMLPAGE_REDIS_URL              Redis URL for cross-node cache invalidation (optional)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	info := version.Info{Version: appVersion, GitCommit: appGitCommit, BuildTime: appBuildTime}
	if *showVersion {
		_, _ = fmt.Println(info.String())
		os.Exit(0)
	}

	if *hashToken != "" {
		hash, err := auth.HashToken(*hashToken)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "hashing token: %v\n", err)
			os.Exit(1)
		}
		_, _ = fmt.Println(hash)
		os.Exit(0)
	}

	if err := run(info); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(info version.Info) error {
	// Load .env files if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	// WARN and above also land in the event log table.
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	logger = slog.New(logging.NewEventLogHandler(textHandler, db))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DoSeed {
		n, err := store.Seed(ctx, db)
		if err != nil {
			return fmt.Errorf("seeding database: %w", err)
		}
		if n > 0 {
			slog.Info("sample pages inserted", "count", n)
		}
	}

	catalog, err := i18n.New(logger)
	if err != nil {
		return fmt.Errorf("initializing i18n: %w", err)
	}

	templatesFS, err := fs.Sub(web.Templates, "templates")
	if err != nil {
		return fmt.Errorf("getting templates fs: %w", err)
	}
	renderer, err := render.New(render.Config{TemplatesFS: templatesFS, Catalog: catalog})
	if err != nil {
		return fmt.Errorf("initializing renderer: %w", err)
	}

	sessionManager := session.New(db, cfg.IsDevelopment())

	var bus cache.Bus = cache.NopBus{}
	if cfg.UseRedis() {
		opts := cache.DefaultRedisBusOptions()
		opts.URL = cfg.RedisURL
		opts.Channel = cfg.RedisChannel
		opts.Logger = logger
		redisBus, err := cache.NewRedisBus(opts)
		if err != nil {
			slog.Warn("redis unavailable, cache invalidation stays local", "category", "cache", "error", err)
		} else {
			bus = redisBus
			slog.Info("cache invalidation bus connected", "channel", cfg.RedisChannel, "node", redisBus.Node())
		}
	}
	defer func() { _ = bus.Close() }()

	queries := store.New(db)
	ix := indexer.New(db, indexer.Options{
		Name:    cfg.IndexerName,
		Enabled: cfg.IndexerEnabled,
		BaseURL: cfg.SiteURL,
		Logger:  logger,
	})
	pages := service.NewHtmlPageService(service.HtmlPageServiceConfig{
		Store:                 queries,
		Notifier:              ix.Notifier(indexer.NewQueue(queries)),
		Search:                ix,
		Bus:                   bus,
		AuthenticationEnabled: cfg.AuthenticationEnabled,
		Logger:                logger,
	})
	events := service.NewEventService(db)

	if _, err := pages.RefreshCache(ctx); err != nil {
		slog.Warn("initial page cache load failed", "category", "cache", "error", err)
	}
	go func() {
		if err := pages.Cache().Follow(ctx, bus); err != nil {
			slog.Error("cache invalidation listener stopped", "error", err)
		}
	}()

	schedCfg := scheduler.Config{
		Events:          events,
		IndexSchedule:   cfg.IndexSchedule,
		ReindexSchedule: cfg.ReindexSchedule,
		EventRetention:  cfg.EventRetention,
		Logger:          logger,
	}
	if cfg.IndexerEnabled {
		schedCfg.Indexer = ix
	}
	sched := scheduler.New(schedCfg)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	verifier := auth.NewTokenVerifier(cfg.AdminToken)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitMaxClients, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment())))

	health := handler.NewHealthHandler(handler.HealthConfig{
		DB:       db,
		Cache:    pages.Cache(),
		Index:    ix,
		Verifier: verifier,
		Version:  info,
	})
	r.With(middleware.NoStore).Get(handler.RouteHealth, health.Health)

	r.Group(func(r chi.Router) {
		r.Use(sessionManager.LoadAndSave)
		if cfg.SyncRoles() {
			r.Use(middleware.SyncRoles(sessionManager, middleware.RolesSyncConfig{
				Header:   cfg.RolesHeader,
				Verifier: auth.NewTokenVerifier(cfg.RolesSecret),
				Logger:   logger,
			}))
		}
		r.Use(middleware.LoadViewer(sessionManager))
		r.Use(limiter.HTMLMiddleware())
		r.Use(middleware.NoStore)
		handler.NewPublicHandler(pages, renderer, logger).Routes(r)
	})

	r.Route(adminAPIPrefix, func(r chi.Router) {
		r.Use(limiter.Middleware())
		r.Use(middleware.AdminAuth(verifier, logger))
		r.Use(middleware.NoStore)
		api.NewHandler(api.Config{
			Service:    pages,
			Events:     events,
			Jobs:       sched.Registry(),
			Workgroups: cfg.AdminWorkgroups,
			Logger:     logger,
		}).Routes(r)
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "version", info.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
