package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/marcusai/insights-backend/internal/adapters"
	"github.com/marcusai/insights-backend/internal/adapters/googleads"
	"github.com/marcusai/insights-backend/internal/adapters/metaads"
	"github.com/marcusai/insights-backend/internal/aggregator"
	"github.com/marcusai/insights-backend/internal/metrics"
	"github.com/marcusai/insights-backend/pkg/config"
	"github.com/marcusai/insights-backend/pkg/enums"
	"github.com/marcusai/insights-backend/pkg/logger"
)

// adsdiag exercises platform credentials from the command line without
// standing up the API: probe connections, or pull one report window and
// print it as JSON.
func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "adsdiag"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "connections", "diagnostic command: connections|snapshot")
	start := flag.String("start", "", "window start (YYYY-MM-DD), defaults to yesterday")
	end := flag.String("end", "", "window end (YYYY-MM-DD), defaults to start")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "adsdiag",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	adapterList := buildAdapters(cfg, logg)
	if len(adapterList) == 0 {
		fmt.Fprintln(os.Stderr, "no advertising platform configured")
		os.Exit(1)
	}

	switch *cmd {
	case "connections":
		runConnections(ctx, adapterList)

	case "snapshot":
		window, err := parseWindow(*start, *end)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid window: %v\n", err)
			os.Exit(1)
		}
		runSnapshot(ctx, logg, adapterList, window)

	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
}

func buildAdapters(cfg *config.Config, logg *logger.Logger) []adapters.Adapter {
	policy := adapters.PolicyFromConfig(cfg.Adapter)
	httpc := &http.Client{Timeout: cfg.Adapter.RequestTimeout}

	var out []adapters.Adapter
	if cfg.GoogleAds.Configured() {
		client := googleads.NewClient(cfg.GoogleAds, logg, googleads.WithHTTPClient(httpc))
		out = append(out, googleads.NewAdapter(client, policy))
	}
	if cfg.MetaAds.Configured() {
		client := metaads.NewClient(cfg.MetaAds, logg, metaads.WithHTTPClient(httpc))
		out = append(out, metaads.NewAdapter(client, policy))
	}
	return out
}

type connectionResult struct {
	Platform enums.Platform           `json:"platform"`
	Info     *adapters.ConnectionInfo `json:"info,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

func runConnections(ctx context.Context, adapterList []adapters.Adapter) {
	results := make([]connectionResult, 0, len(adapterList))
	failed := false
	for _, adapter := range adapterList {
		result := connectionResult{Platform: adapter.Platform()}
		info, err := adapter.TestConnection(ctx)
		if err != nil {
			failed = true
			result.Error = err.Error()
		} else {
			result.Info = info
		}
		results = append(results, result)
	}

	printJSON(results)
	if failed {
		os.Exit(1)
	}
}

func runSnapshot(ctx context.Context, logg *logger.Logger, adapterList []adapters.Adapter, window metrics.Window) {
	agg, err := aggregator.New(logg, adapterList)
	requireResource(ctx, logg, "aggregator", err)

	report, err := agg.BuildReport(ctx, nil, window)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		os.Exit(1)
	}

	printJSON(report)
}

func parseWindow(start, end string) (metrics.Window, error) {
	if start == "" {
		return metrics.Day(time.Now().UTC().AddDate(0, 0, -1)), nil
	}
	startDay, err := time.Parse("2006-01-02", start)
	if err != nil {
		return metrics.Window{}, fmt.Errorf("parse -start: %w", err)
	}
	endDay := startDay
	if end != "" {
		if endDay, err = time.Parse("2006-01-02", end); err != nil {
			return metrics.Window{}, fmt.Errorf("parse -end: %w", err)
		}
	}
	return metrics.NewWindow(startDay, endDay)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
