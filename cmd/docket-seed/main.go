// docket-seed loads a YAML route model catalog into the database and can
// keep watching the file, re-applying it on change. Meant for dev setups
// and CI fixtures; the server also seeds once at startup.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/docket/pkg/acl"
	"github.com/platinummonkey/docket/pkg/actions"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/principal"
	"github.com/platinummonkey/docket/pkg/routing"
	"github.com/platinummonkey/docket/pkg/schema"
	"github.com/platinummonkey/docket/pkg/tags"
)

func main() {
	dbURL := flag.String("db-url", os.Getenv("DOCKET_POSTGRES_URL"), "PostgreSQL connection URL")
	seedFile := flag.String("seed-file", "routemodels.yaml", "YAML route model catalog")
	watch := flag.Bool("watch", false, "Keep running and re-apply the catalog on file change")
	migrate := flag.Bool("migrate", false, "Run database migrations before seeding")
	flag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	if *dbURL == "" {
		logger.Fatal("database URL is required (-db-url or DOCKET_POSTGRES_URL)")
	}

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Fatal("failed to ping database")
	}
	if *migrate {
		if err := schema.RunMigrations(ctx, db); err != nil {
			logger.WithError(err).Fatal("migration failed")
		}
		logger.Info("migrations applied")
	}

	coreLogger := observability.NewLogger(observability.InfoLevel, os.Stdout)
	metrics := observability.NewMetrics(nil)
	recorder := audit.NewRecorder(db, metrics)
	aclStore := acl.NewStore(db, recorder)
	tagStore := tags.NewStore(db, recorder)
	executor := actions.NewExecutor(tagStore, nil, coreLogger, metrics)
	models := routing.NewModelStore(db, aclStore, recorder, executor)

	seeder := &principal.Principal{
		UserID:    audit.AdminUserID,
		Username:  audit.AdminUserID,
		Superuser: true,
	}

	apply := func() {
		seed, err := routing.LoadSeedFile(*seedFile)
		if err != nil {
			logger.WithError(err).Error("failed to load seed file")
			return
		}
		if err := routing.Seed(ctx, models, seed, seeder, coreLogger); err != nil {
			logger.WithError(err).Error("failed to apply seed file")
			return
		}
		logger.WithField("models", len(seed.Models)).Info("seed applied")
	}

	apply()
	if !*watch {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithError(err).Fatal("failed to create watcher")
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops a
	// watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(*seedFile)); err != nil {
		logger.WithError(err).Fatal("failed to watch seed directory")
	}
	logger.WithField("file", *seedFile).Info("watching for changes")

	target := filepath.Clean(*seedFile)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				logger.WithField("event", event.Op.String()).Info("seed file changed")
				apply()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.WithError(err).Warn("watcher error")
		}
	}
}
