// Package main wires together the URL curation service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/entityscope/urlcurator/internal/api"
	"github.com/entityscope/urlcurator/internal/approval"
	"github.com/entityscope/urlcurator/internal/clock/system"
	"github.com/entityscope/urlcurator/internal/config"
	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/events"
	memorypublisher "github.com/entityscope/urlcurator/internal/events/memory"
	pubsubpublisher "github.com/entityscope/urlcurator/internal/events/pubsub"
	"github.com/entityscope/urlcurator/internal/fetcher"
	directfetcher "github.com/entityscope/urlcurator/internal/fetcher/direct"
	headlessfetcher "github.com/entityscope/urlcurator/internal/fetcher/headless"
	"github.com/entityscope/urlcurator/internal/id/uuid"
	"github.com/entityscope/urlcurator/internal/logging"
	"github.com/entityscope/urlcurator/internal/metrics"
	"github.com/entityscope/urlcurator/internal/orchestrator"
	"github.com/entityscope/urlcurator/internal/snapshot"
	snapshotgcs "github.com/entityscope/urlcurator/internal/snapshot/gcs"
	snapshotlocal "github.com/entityscope/urlcurator/internal/snapshot/local"
	snapshotmemory "github.com/entityscope/urlcurator/internal/snapshot/memory"
	"github.com/entityscope/urlcurator/internal/store"
	memorystore "github.com/entityscope/urlcurator/internal/store/memory"
	postgresstore "github.com/entityscope/urlcurator/internal/store/postgres"
	"github.com/entityscope/urlcurator/internal/submodule/catalog"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	var st store.Store
	if cfg.DB.DSN != "" {
		pgStore, err := postgresstore.New(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Fatal("postgres store init failed", zap.Error(err))
		}
		st = pgStore
	} else {
		logger.Warn("no database DSN configured, using in-memory store")
		st = memorystore.New()
	}
	defer st.Close()

	direct := directfetcher.New(directfetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	var browser curation.Fetcher
	if cfg.Headless.Enabled {
		headless, err := headlessfetcher.New(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			browser = headless
			defer headless.Close()
		}
	}
	detector := fetcher.NewBlockDetector(cfg.Fetch.MinHTMLBytes, nil)
	engine := fetcher.NewEngine(direct, browser, detector, logger.Named("fetcher"))

	archiver := buildArchiver(ctx, cfg, logger)
	publisher := buildPublisher(ctx, cfg, logger)

	registry, err := catalog.New()
	if err != nil {
		logger.Fatal("submodule registration failed", zap.Error(err))
	}

	approvals := approval.New(st, publisher, cfg.PubSub.TopicName, clock, logger.Named("approval"))
	orch := orchestrator.New(
		registry,
		st,
		engine,
		archiver,
		publisher,
		cfg.PubSub.TopicName,
		clock,
		idGen,
		logger.Named("orchestrator"),
	)

	apiServer := api.NewServer(registry, orch, approvals, st, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildArchiver resolves the configured snapshot backend; an empty backend
// disables archiving.
func buildArchiver(ctx context.Context, cfg config.Config, logger *zap.Logger) *snapshot.Archiver {
	var blobs snapshot.BlobStore
	switch cfg.Snapshot.Backend {
	case "":
	case "memory":
		blobs = snapshotmemory.NewBlobStore()
	case "local":
		localStore, err := snapshotlocal.New(snapshotlocal.Config{BaseDir: cfg.Snapshot.LocalDir})
		if err != nil {
			logger.Warn("local snapshot store init failed", zap.Error(err))
		} else {
			blobs = localStore
		}
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			logger.Warn("gcs client init failed", zap.Error(err))
			break
		}
		gcsStore, err := snapshotgcs.New(client, snapshotgcs.Config{Bucket: cfg.Snapshot.GCSBucket})
		if err != nil {
			logger.Warn("gcs snapshot store init failed", zap.Error(err))
		} else {
			blobs = gcsStore
		}
	default:
		logger.Warn("unknown snapshot backend", zap.String("backend", cfg.Snapshot.Backend))
	}
	return snapshot.New(blobs, cfg.Snapshot.Prefix, logger.Named("snapshot"))
}

// buildPublisher returns the Pub/Sub publisher when a project is configured
// and an in-memory one otherwise; events stay best effort either way.
func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) events.Publisher {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return memorypublisher.New()
	}
	publisher, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Warn("pubsub publisher init failed, events disabled", zap.Error(err))
		return memorypublisher.New()
	}
	return publisher
}
