package adapters

import (
	"context"
	"time"

	"github.com/marcusai/insights-backend/internal/metrics"
	"github.com/marcusai/insights-backend/pkg/enums"
)

// ConnectionInfo is the result of a lightweight identity probe against a
// platform account. It is intentionally separate from snapshot fetching so
// health checks never burn reporting quota.
type ConnectionInfo struct {
	Connected   bool   `json:"connected"`
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	Currency    string `json:"currency"`
	Timezone    string `json:"timezone"`
}

// Adapter wraps one advertising platform behind a vendor-neutral surface.
// Implementations own their credentials and their health state; every call
// attempt updates health as its only persistent side effect. Upstream
// failures never escape as panics or untyped errors: they come back as
// pkg/errors codes the aggregator can interpret.
type Adapter interface {
	// Platform returns the identifier this adapter serves.
	Platform() enums.Platform

	// Authenticate resolves credentials into a usable session. Missing or
	// rejected credentials fail with MISSING_CREDENTIALS or AUTH_EXPIRED.
	Authenticate(ctx context.Context) error

	// FetchSnapshot returns the canonical metric totals for the window.
	FetchSnapshot(ctx context.Context, window metrics.Window) (metrics.Snapshot, error)

	// FetchHourlyBreakdown returns exactly 24 snapshots for the given day,
	// one per hour 0-23. Hours without data are zero snapshots, never omitted.
	FetchHourlyBreakdown(ctx context.Context, day time.Time) ([]metrics.Snapshot, error)

	// TestConnection runs the identity probe.
	TestConnection(ctx context.Context) (*ConnectionInfo, error)

	// Health returns a copy of the adapter's current health state.
	Health() Health
}

// QuotaGuard rations calls against an upstream platform. A denied call is
// reported as RATE_LIMITED without touching the vendor API.
type QuotaGuard interface {
	Allow(ctx context.Context, platform enums.Platform) (bool, error)
}
