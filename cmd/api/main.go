package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/marcusai/insights-backend/api/routes"
	"github.com/marcusai/insights-backend/internal/adapters"
	"github.com/marcusai/insights-backend/internal/adapters/googleads"
	"github.com/marcusai/insights-backend/internal/adapters/metaads"
	"github.com/marcusai/insights-backend/internal/aggregator"
	"github.com/marcusai/insights-backend/internal/reports"
	"github.com/marcusai/insights-backend/internal/reports/warehouse"
	"github.com/marcusai/insights-backend/pkg/bigquery"
	"github.com/marcusai/insights-backend/pkg/config"
	"github.com/marcusai/insights-backend/pkg/db"
	"github.com/marcusai/insights-backend/pkg/enums"
	"github.com/marcusai/insights-backend/pkg/logger"
	pkgmetrics "github.com/marcusai/insights-backend/pkg/metrics"
	"github.com/marcusai/insights-backend/pkg/migrate"
	"github.com/marcusai/insights-backend/pkg/pubsub"
	"github.com/marcusai/insights-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	var deps routes.Dependencies
	params := reports.ServiceParams{Logger: logg}

	if cfg.DB.Configured() {
		dbClient, err := db.New(context.Background(), cfg.DB, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap database", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing database", err)
			}
		}()

		if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
			logg.Error(context.Background(), "failed to run dev migrations", err)
			os.Exit(1)
		}

		deps.DB = dbClient
		params.Repo = reports.NewRepository(dbClient.DB())
	} else {
		logg.Warn(context.Background(), "database not configured, report history disabled")
	}

	var quotaGuard *redis.QuotaGuard
	if cfg.Redis.Configured() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()

		deps.Redis = redisClient
		if cfg.Adapter.QuotaPerMinute > 0 {
			quotaGuard, err = redis.NewQuotaGuard(redisClient, cfg.Adapter.QuotaPerMinute)
			if err != nil {
				logg.Error(context.Background(), "failed to create quota guard", err)
				os.Exit(1)
			}
		}
	}

	if cfg.GCP.Configured() {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()

		notifier, err := reports.NewPubSubNotifier(pubsubClient.ReportsPublisher())
		if err != nil {
			logg.Error(context.Background(), "failed to create report notifier", err)
			os.Exit(1)
		}
		deps.PubSub = pubsubClient
		params.Notifier = notifier

		bigqueryClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bigqueryClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()

		writer, err := warehouse.New(bigqueryClient, warehouse.Config{Table: cfg.BigQuery.SnapshotFactsTable})
		if err != nil {
			logg.Error(context.Background(), "failed to create warehouse writer", err)
			os.Exit(1)
		}
		deps.BigQuery = bigqueryClient
		params.Warehouse = writer
	}

	metricsCollector := pkgmetrics.NewAdapterMetrics(prometheus.DefaultRegisterer)
	params.Metrics = metricsCollector

	policy := adapters.PolicyFromConfig(cfg.Adapter)
	httpc := &http.Client{Timeout: cfg.Adapter.RequestTimeout}

	var adapterList []adapters.Adapter
	aggOpts := []aggregator.Option{aggregator.WithMetrics(metricsCollector)}

	if cfg.GoogleAds.Configured() {
		var opts []googleads.AdapterOption
		if quotaGuard != nil {
			opts = append(opts, googleads.WithQuotaGuard(quotaGuard))
		}
		client := googleads.NewClient(cfg.GoogleAds, logg, googleads.WithHTTPClient(httpc))
		adapterList = append(adapterList, googleads.NewAdapter(client, policy, opts...))
		if budget, ok := parseBudget(cfg.GoogleAds.DailyBudget); ok {
			aggOpts = append(aggOpts, aggregator.WithDailyBudget(enums.PlatformGoogleAds, budget))
		}
	}
	if cfg.MetaAds.Configured() {
		var opts []metaads.AdapterOption
		if quotaGuard != nil {
			opts = append(opts, metaads.WithQuotaGuard(quotaGuard))
		}
		client := metaads.NewClient(cfg.MetaAds, logg, metaads.WithHTTPClient(httpc))
		adapterList = append(adapterList, metaads.NewAdapter(client, policy, opts...))
		if budget, ok := parseBudget(cfg.MetaAds.DailyBudget); ok {
			aggOpts = append(aggOpts, aggregator.WithDailyBudget(enums.PlatformMetaAds, budget))
		}
	}

	if len(adapterList) == 0 {
		logg.Error(context.Background(), "no advertising platform configured", errors.New("at least one platform credential set is required"))
		os.Exit(1)
	}

	agg, err := aggregator.New(logg, adapterList, aggOpts...)
	if err != nil {
		logg.Error(context.Background(), "failed to create aggregator", err)
		os.Exit(1)
	}
	params.Builder = agg

	reportsService, err := reports.NewService(params)
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, deps, reportsService),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}

func parseBudget(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, false
	}
	budget, err := decimal.NewFromString(raw)
	if err != nil || !budget.IsPositive() {
		return decimal.Decimal{}, false
	}
	return budget, true
}
