package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marcusai/insights-backend/internal/adapters"
	"github.com/marcusai/insights-backend/internal/metrics"
	"github.com/marcusai/insights-backend/pkg/enums"
	pkgerrors "github.com/marcusai/insights-backend/pkg/errors"
	"github.com/marcusai/insights-backend/pkg/logger"
	pkgmetrics "github.com/marcusai/insights-backend/pkg/metrics"
	"github.com/shopspring/decimal"
)

// PlatformEntry is one platform's contribution to a report. A failed platform
// keeps its entry with a nil snapshot and a populated error so callers can
// tell "no data" from "platform omitted".
type PlatformEntry struct {
	Snapshot          *metrics.Snapshot   `json:"snapshot"`
	Comparison        *metrics.Comparison `json:"comparison"`
	Health            adapters.Health     `json:"health"`
	Error             string              `json:"error,omitempty"`
	BudgetUtilization *decimal.Decimal    `json:"budget_utilization,omitempty"`
}

// Report is the merged cross-platform view for one window. Built fresh on
// every call; nothing here is cached.
type Report struct {
	Window      metrics.Window                   `json:"window"`
	Platforms   map[enums.Platform]PlatformEntry `json:"platforms"`
	GeneratedAt time.Time                        `json:"generated_at"`
}

// Aggregator fans a report request out over the registered adapters and
// merges results. Retry lives below in the adapters; this layer is single
// pass, best effort.
type Aggregator struct {
	byPlatform map[enums.Platform]adapters.Adapter
	budgets    map[enums.Platform]decimal.Decimal
	logg       *logger.Logger
	metrics    *pkgmetrics.AdapterMetrics
	now        func() time.Time
}

// Option customizes aggregator construction.
type Option func(*Aggregator)

// WithDailyBudget enables budget utilization for one platform. Without a
// configured budget the field is simply absent from the entry.
func WithDailyBudget(platform enums.Platform, daily decimal.Decimal) Option {
	return func(a *Aggregator) {
		if daily.IsPositive() {
			a.budgets[platform] = daily
		}
	}
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithMetrics records adapter call outcomes on the given collector.
func WithMetrics(m *pkgmetrics.AdapterMetrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// New validates its dependencies and builds an aggregator over the given
// adapters.
func New(logg *logger.Logger, adapterList []adapters.Adapter, opts ...Option) (*Aggregator, error) {
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "aggregator requires a logger")
	}
	if len(adapterList) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "aggregator requires at least one adapter")
	}
	byPlatform := make(map[enums.Platform]adapters.Adapter, len(adapterList))
	for _, adapter := range adapterList {
		platform := adapter.Platform()
		if _, dup := byPlatform[platform]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("duplicate adapter for platform %s", platform))
		}
		byPlatform[platform] = adapter
	}
	a := &Aggregator{
		byPlatform: byPlatform,
		budgets:    map[enums.Platform]decimal.Decimal{},
		logg:       logg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Platforms lists the registered platforms in stable order.
func (a *Aggregator) Platforms() []enums.Platform {
	out := make([]enums.Platform, 0, len(a.byPlatform))
	for platform := range a.byPlatform {
		out = append(out, platform)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AdapterFor exposes a registered adapter for diagnostics and health probes.
func (a *Aggregator) AdapterFor(platform enums.Platform) (adapters.Adapter, bool) {
	adapter, ok := a.byPlatform[platform]
	return adapter, ok
}

// BuildReport fetches every requested platform concurrently and merges the
// results. A single platform's failure never aborts the call; the only
// top-level failures are caller contract violations (bad window, unknown
// platform).
func (a *Aggregator) BuildReport(ctx context.Context, platforms []enums.Platform, window metrics.Window) (*Report, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if len(platforms) == 0 {
		platforms = a.Platforms()
	}

	requested := make([]enums.Platform, 0, len(platforms))
	seen := map[enums.Platform]bool{}
	for _, platform := range platforms {
		if seen[platform] {
			continue
		}
		seen[platform] = true
		if _, ok := a.byPlatform[platform]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown platform %q", platform)).
				WithDetails(map[string]any{"known": a.Platforms()})
		}
		requested = append(requested, platform)
	}

	report := &Report{
		Window:    window,
		Platforms: make(map[enums.Platform]PlatformEntry, len(requested)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, platform := range requested {
		adapter := a.byPlatform[platform]
		wg.Add(1)
		go func(platform enums.Platform, adapter adapters.Adapter) {
			defer wg.Done()
			entry := a.buildEntry(ctx, adapter, window)
			mu.Lock()
			report.Platforms[platform] = entry
			mu.Unlock()
		}(platform, adapter)
	}
	wg.Wait()

	report.GeneratedAt = a.now().UTC()
	return report, nil
}

func (a *Aggregator) buildEntry(ctx context.Context, adapter adapters.Adapter, window metrics.Window) PlatformEntry {
	platform := adapter.Platform().String()
	ctx = a.logg.WithPlatform(ctx, platform)

	started := time.Now()
	snapshot, err := adapter.FetchSnapshot(ctx, window)
	a.metrics.ObserveDuration(platform, "fetch_snapshot", time.Since(started))
	if err != nil {
		a.metrics.IncFailure(platform, "fetch_snapshot", string(pkgerrors.CodeOf(err)))
		a.logg.Warn(ctx, fmt.Sprintf("platform excluded from report: %v", err))
		return PlatformEntry{Health: adapter.Health(), Error: err.Error()}
	}
	a.metrics.IncSuccess(platform, "fetch_snapshot")

	entry := PlatformEntry{
		Snapshot: &snapshot,
		Health:   adapter.Health(),
	}

	if baseline, baseErr := adapter.FetchSnapshot(ctx, window.Previous()); baseErr == nil {
		comparison, cmpErr := metrics.Compare(snapshot, baseline)
		if cmpErr != nil {
			// Same adapter produced both snapshots, so a platform mismatch
			// here is a bug, not a degraded upstream.
			a.logg.Error(ctx, "comparison contract violation", cmpErr)
			entry.Error = cmpErr.Error()
		} else {
			entry.Comparison = comparison
		}
	} else {
		a.logg.Warn(ctx, fmt.Sprintf("baseline unavailable, comparison degraded: %v", baseErr))
	}

	entry.Health = adapter.Health()
	entry.BudgetUtilization = a.budgetUtilization(adapter.Platform(), snapshot, window)
	return entry
}

// budgetUtilization is spend as a percentage of the window's total budget.
// Nil when no budget is configured for the platform.
func (a *Aggregator) budgetUtilization(platform enums.Platform, snapshot metrics.Snapshot, window metrics.Window) *decimal.Decimal {
	daily, ok := a.budgets[platform]
	if !ok {
		return nil
	}
	total := daily.Mul(decimal.NewFromInt(int64(window.Days())))
	if total.IsZero() {
		return nil
	}
	utilization := snapshot.Spend.Div(total).Mul(decimal.NewFromInt(100))
	return &utilization
}
