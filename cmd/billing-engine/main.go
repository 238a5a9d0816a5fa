// cmd/billing-engine/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"courtside-billing/internal/billing/auditor"
	"courtside-billing/internal/billing/catalog"
	"courtside-billing/internal/billing/ledger"
	"courtside-billing/internal/billing/limits"
	"courtside-billing/internal/billing/notify"
	"courtside-billing/internal/billing/provider"
	"courtside-billing/internal/billing/reconcile"
	"courtside-billing/internal/common/aws"
	"courtside-billing/internal/common/config"
	"courtside-billing/internal/common/database"
	httpserver "courtside-billing/internal/common/http"
	"courtside-billing/internal/common/logger"
	"courtside-billing/internal/common/observability"
	"courtside-billing/internal/store"
	"courtside-billing/internal/transport/webhook"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting billing engine...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New("billing-engine")
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	healthChecks := map[string]webhook.Pinger{
		"postgres": pg,
	}

	// --- Init Redis with retry (optional snapshot cache) ---
	var snapshotCache *store.SnapshotCache
	if cfg.Cache.Enabled {
		var redis *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		zapLog.Info("Redis connected successfully")

		snapshotCache = store.NewSnapshotCache(redis.Client,
			time.Duration(cfg.Cache.SnapshotTTL)*time.Second, log)
		healthChecks["redis"] = redis
	}

	// --- Init Elasticsearch with retry (optional ledger mirror) ---
	var indexer *ledger.Indexer
	if cfg.Search.Enabled && cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")

		indexer = ledger.NewIndexer(esClient.Client, cfg.Database.Elasticsearch.Index, log)
	}

	// --- Core wiring ---
	cat := catalog.New(cfg.Stripe.PriceIDs)
	workspaces := store.NewWorkspaceStore(pg.DB, log)
	ledgerStore := ledger.NewPostgresStore(pg.DB, log)
	stripeClient := provider.NewStripeClient(cfg.Stripe.APIKey, log)

	var notifier *notify.Service
	if cfg.Notifications.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.Region)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		notifier = notify.NewService(sesClient, snsClient, cat,
			cfg.Notifications.FromAddress, cfg.Notifications.OpsTopicARN, log)
		zapLog.Info("Notifications enabled", zap.String("region", cfg.Notifications.Region))
	}

	engineOpts := []reconcile.Option{reconcile.WithObservability(obs)}
	if snapshotCache != nil {
		engineOpts = append(engineOpts, reconcile.WithCache(snapshotCache))
	}
	if notifier != nil {
		engineOpts = append(engineOpts, reconcile.WithNotifier(notifier))
	}
	if indexer != nil {
		engineOpts = append(engineOpts, reconcile.WithIndexer(indexer))
	}
	engine := reconcile.NewEngine(pg.DB, workspaces, ledgerStore, cat, log, engineOpts...)

	// --- Drift auditor ---
	if cfg.Auditor.Enabled {
		drift := auditor.New(workspaces, stripeClient, engine, cat,
			time.Duration(cfg.Auditor.WorkspaceTimeout)*time.Millisecond, log)
		go drift.Run(ctx, time.Duration(cfg.Auditor.Interval)*time.Second)
	}

	// --- HTTP surface ---
	stripeHandler, err := webhook.NewStripeHandler(cfg.Stripe.WebhookSecret,
		engine, workspaces, stripeClient, cat, log)
	if err != nil {
		zapLog.Fatal("webhook handler init failed", zap.Error(err))
	}
	apiHandler := webhook.NewAPIHandler(workspaces, ledgerStore, limits.New(cat), log)
	healthHandler := webhook.NewHealthHandler(healthChecks)

	mux := webhook.NewRouter(stripeHandler, apiHandler, healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	server := httpserver.NewServer(cfg.Server.Address, mux, log)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// --- Graceful Shutdown ---
	select {
	case <-ctx.Done():
		zapLog.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Billing engine stopped gracefully")
}
