package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/docket/pkg/acl"
	"github.com/platinummonkey/docket/pkg/actions"
	"github.com/platinummonkey/docket/pkg/api"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/config"
	"github.com/platinummonkey/docket/pkg/documents"
	"github.com/platinummonkey/docket/pkg/groups"
	"github.com/platinummonkey/docket/pkg/middleware"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/principal"
	"github.com/platinummonkey/docket/pkg/routing"
	"github.com/platinummonkey/docket/pkg/schema"
	"github.com/platinummonkey/docket/pkg/tags"
	"github.com/platinummonkey/docket/pkg/users"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("fatal error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}
	defer providers.Shutdown(context.Background())

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)
	if err := db.PingContext(ctx); err != nil {
		return err
	}

	if err := schema.RunMigrations(ctx, db); err != nil {
		return err
	}
	logger.Info("database migrations applied")

	metrics := observability.NewMetrics(nil)

	auditRecorder := audit.NewRecorder(db, metrics)
	aclStore := acl.NewStore(db, auditRecorder)
	checker := acl.NewChecker(db, metrics)
	userStore := users.NewStore(db, auditRecorder)
	groupStore := groups.NewStore(db, auditRecorder)
	tagStore := tags.NewStore(db, auditRecorder)
	documentStore := documents.NewStore(db, aclStore, checker, auditRecorder)
	resolver := principal.NewResolver(userStore, groupStore)
	executor := actions.NewExecutor(tagStore, nil, logger, metrics)
	modelStore := routing.NewModelStore(db, aclStore, auditRecorder, executor)
	routeStore := routing.NewStore(db, auditRecorder)
	engine := routing.NewEngine(db, modelStore, routeStore, aclStore, checker,
		resolver, executor, tagStore, auditRecorder, logger, metrics)

	if cfg.SeedFile != "" {
		seed, err := routing.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return err
		}
		seeder := &principal.Principal{UserID: audit.AdminUserID, Username: audit.AdminUserID, Superuser: true}
		if err := routing.Seed(ctx, modelStore, seed, seeder, logger); err != nil {
			return err
		}
		logger.WithField("file", cfg.SeedFile).Info("route models seeded")
	}

	var rateLimit *middleware.RateLimitMiddleware
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		rateLimit = middleware.NewRateLimitMiddleware(redisClient, logger)
	}

	server := api.NewServer(api.Options{
		Users:     userStore,
		Groups:    groupStore,
		Tags:      tagStore,
		Documents: documentStore,
		ACLs:      aclStore,
		Checker:   checker,
		Resolver:  resolver,
		Models:    modelStore,
		Engine:    engine,
		Audit:     auditRecorder,
		Logger:    logger,
		Metrics:   metrics,
		RateLimit: rateLimit,
	})

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Audit.CleanupSchedule, func() {
		deleted, err := auditRecorder.Cleanup(context.Background(), cfg.Audit.RetentionDays)
		if err != nil {
			logger.WithError(err).Error("audit cleanup failed")
			return
		}
		logger.WithField("deleted", deleted).Info("audit cleanup completed")
	})
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.HealthAddr(),
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
