package metaads

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/marcusai/insights-backend/internal/adapters"
	"github.com/marcusai/insights-backend/internal/metrics"
	"github.com/marcusai/insights-backend/pkg/enums"
	pkgerrors "github.com/marcusai/insights-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Action types counted as conversions. Meta splits purchases across several
// attribution channels; these cover web pixel, app, and omni events.
var purchaseActions = map[string]bool{
	"purchase":                             true,
	"omni_purchase":                        true,
	"offsite_conversion.fb_pixel_purchase": true,
	"app_custom_event.fb_mobile_purchase":  true,
	"onsite_conversion.purchase":           true,
}

// Adapter serves Meta Ads metrics through the common adapter surface.
type Adapter struct {
	client *Client
	health *adapters.HealthTracker
	retry  adapters.RetryPolicy
	quota  adapters.QuotaGuard
}

// AdapterOption customizes adapter construction.
type AdapterOption func(*Adapter)

// WithQuotaGuard rations upstream calls through the given guard.
func WithQuotaGuard(guard adapters.QuotaGuard) AdapterOption {
	return func(a *Adapter) { a.quota = guard }
}

// NewAdapter wraps a client with retry and health tracking.
func NewAdapter(client *Client, policy adapters.RetryPolicy, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		client: client,
		health: adapters.NewHealthTracker(),
		retry:  policy,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Platform() enums.Platform {
	return enums.PlatformMetaAds
}

func (a *Adapter) Health() adapters.Health {
	return a.health.Snapshot()
}

func (a *Adapter) Authenticate(ctx context.Context) error {
	err := a.client.Authenticate(ctx)
	a.record(err)
	return err
}

func (a *Adapter) record(err error) {
	if err != nil {
		a.health.RecordFailure(err)
		return
	}
	a.health.RecordSuccess()
}

func (a *Adapter) checkQuota(ctx context.Context) error {
	if a.quota == nil {
		return nil
	}
	allowed, err := a.quota.Allow(ctx, a.Platform())
	if err != nil {
		// A broken guard must not block reporting.
		return nil
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimited, "meta ads local quota exhausted")
	}
	return nil
}

func (a *Adapter) insights(ctx context.Context, params url.Values) ([]insightsRow, error) {
	if err := a.checkQuota(ctx); err != nil {
		a.record(err)
		return nil, err
	}
	var rows []insightsRow
	err := adapters.WithRetry(ctx, a.retry, func() error {
		var fetchErr error
		rows, fetchErr = a.client.Insights(ctx, params)
		return fetchErr
	})
	a.record(err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

const graphDate = "2006-01-02"

func windowParams(window metrics.Window) url.Values {
	params := url.Values{}
	params.Set("level", "account")
	params.Set("fields", "impressions,clicks,spend,actions,action_values")
	params.Set("time_range", fmt.Sprintf(`{"since":"%s","until":"%s"}`,
		window.Start.Format(graphDate), window.End.Format(graphDate)))
	return params
}

// FetchSnapshot sums account insights over the window into one snapshot.
func (a *Adapter) FetchSnapshot(ctx context.Context, window metrics.Window) (metrics.Snapshot, error) {
	if err := window.Validate(); err != nil {
		return metrics.Snapshot{}, err
	}
	rows, err := a.insights(ctx, windowParams(window))
	if err != nil {
		return metrics.Snapshot{}, err
	}
	raw, err := rowsToRaw(rows)
	if err != nil {
		a.health.RecordFailure(err)
		return metrics.Snapshot{}, err
	}
	return metrics.Normalize(a.Platform(), window, raw), nil
}

// FetchHourlyBreakdown returns a fixed 24-entry slice for the day. Meta
// reports hours as "HH:00:00 - HH:59:59" buckets in the advertiser timezone.
func (a *Adapter) FetchHourlyBreakdown(ctx context.Context, day time.Time) ([]metrics.Snapshot, error) {
	window := metrics.Day(day)
	params := windowParams(window)
	params.Set("breakdowns", "hourly_stats_aggregated_by_advertiser_time_zone")

	rows, err := a.insights(ctx, params)
	if err != nil {
		return nil, err
	}

	byHour := make([][]metrics.RawRow, 24)
	for _, row := range rows {
		h, err := parseHourBucket(row.HourlyBucket)
		if err != nil {
			a.health.RecordFailure(err)
			return nil, err
		}
		raw, err := rawFromRow(row)
		if err != nil {
			a.health.RecordFailure(err)
			return nil, err
		}
		byHour[h] = append(byHour[h], raw)
	}

	out := make([]metrics.Snapshot, 24)
	for h := range byHour {
		out[h] = metrics.Normalize(a.Platform(), window, byHour[h])
	}
	return out, nil
}

func parseHourBucket(bucket string) (int, error) {
	if len(bucket) < 2 {
		return 0, pkgerrors.New(pkgerrors.CodeMalformedResponse, "meta ads returned empty hour bucket")
	}
	h, err := strconv.Atoi(bucket[:2])
	if err != nil || h < 0 || h > 23 {
		return 0, pkgerrors.New(pkgerrors.CodeMalformedResponse, "meta ads returned unparseable hour bucket").
			WithDetails(map[string]any{"bucket": bucket})
	}
	return h, nil
}

// TestConnection probes the ad account object without spending insights quota.
func (a *Adapter) TestConnection(ctx context.Context) (*adapters.ConnectionInfo, error) {
	if err := a.checkQuota(ctx); err != nil {
		a.record(err)
		return nil, err
	}
	var info *accountInfo
	err := adapters.WithRetry(ctx, a.retry, func() error {
		var fetchErr error
		info, fetchErr = a.client.Account(ctx)
		return fetchErr
	})
	a.record(err)
	if err != nil {
		return nil, err
	}
	return &adapters.ConnectionInfo{
		Connected:   true,
		AccountID:   info.ID,
		AccountName: info.Name,
		Currency:    info.Currency,
		Timezone:    info.TimezoneName,
	}, nil
}

func rowsToRaw(rows []insightsRow) ([]metrics.RawRow, error) {
	out := make([]metrics.RawRow, 0, len(rows))
	for _, row := range rows {
		raw, err := rawFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func rawFromRow(row insightsRow) (metrics.RawRow, error) {
	impressions, err := parseCount(row.Impressions)
	if err != nil {
		return metrics.RawRow{}, err
	}
	clicks, err := parseCount(row.Clicks)
	if err != nil {
		return metrics.RawRow{}, err
	}
	spend, err := parseAmount(row.Spend)
	if err != nil {
		return metrics.RawRow{}, err
	}
	conversions := sumActions(row.Actions)
	revenue := sumActions(row.ActionValues)
	return metrics.RawRow{
		Impressions:     &impressions,
		Clicks:          &clicks,
		Cost:            &spend,
		Conversions:     &conversions,
		ConversionValue: &revenue,
	}, nil
}

func sumActions(entries []actionEntry) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		if !purchaseActions[entry.ActionType] || entry.Value == nil {
			continue
		}
		total = total.Add(*entry.Value)
	}
	return total
}

var _ adapters.Adapter = (*Adapter)(nil)
