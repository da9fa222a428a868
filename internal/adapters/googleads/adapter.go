package googleads

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/marcusai/insights-backend/internal/adapters"
	"github.com/marcusai/insights-backend/internal/metrics"
	"github.com/marcusai/insights-backend/pkg/enums"
	pkgerrors "github.com/marcusai/insights-backend/pkg/errors"
)

// Adapter serves Google Ads metrics through the common adapter surface.
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
	return enums.PlatformGoogleAds
}

func (a *Adapter) Health() adapters.Health {
	return a.health.Snapshot()
}

func (a *Adapter) Authenticate(ctx context.Context) error {
	err := a.client.Authenticate(ctx)
	a.record(err)
	return err
}

// record folds one upstream outcome into health state.
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
		return pkgerrors.New(pkgerrors.CodeRateLimited, "google ads local quota exhausted")
	}
	return nil
}

func (a *Adapter) search(ctx context.Context, gaql string) ([]searchRow, error) {
	if err := a.checkQuota(ctx); err != nil {
		a.record(err)
		return nil, err
	}
	var rows []searchRow
	err := adapters.WithRetry(ctx, a.retry, func() error {
		var searchErr error
		rows, searchErr = a.client.Search(ctx, gaql)
		return searchErr
	})
	a.record(err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

const gaqlDate = "2006-01-02"

// FetchSnapshot sums campaign metrics over the window into one snapshot.
func (a *Adapter) FetchSnapshot(ctx context.Context, window metrics.Window) (metrics.Snapshot, error) {
	if err := window.Validate(); err != nil {
		return metrics.Snapshot{}, err
	}
	gaql := fmt.Sprintf(
		"SELECT metrics.impressions, metrics.clicks, metrics.cost_micros, metrics.conversions, metrics.conversions_value "+
			"FROM campaign WHERE segments.date BETWEEN '%s' AND '%s'",
		window.Start.Format(gaqlDate), window.End.Format(gaqlDate),
	)
	rows, err := a.search(ctx, gaql)
	if err != nil {
		return metrics.Snapshot{}, err
	}
	return metrics.Normalize(a.Platform(), window, rowsToRaw(rows)), nil
}

// FetchHourlyBreakdown returns a fixed 24-entry slice for the day, hour 0
// through 23, filling hours the API omits with zero snapshots.
func (a *Adapter) FetchHourlyBreakdown(ctx context.Context, day time.Time) ([]metrics.Snapshot, error) {
	window := metrics.Day(day)
	gaql := fmt.Sprintf(
		"SELECT segments.hour, metrics.impressions, metrics.clicks, metrics.cost_micros, metrics.conversions, metrics.conversions_value "+
			"FROM campaign WHERE segments.date = '%s'",
		window.Start.Format(gaqlDate),
	)
	rows, err := a.search(ctx, gaql)
	if err != nil {
		return nil, err
	}

	byHour := make([][]metrics.RawRow, 24)
	for _, row := range rows {
		if row.Segments.Hour == nil {
			continue
		}
		h := *row.Segments.Hour
		if h < 0 || h > 23 {
			return nil, pkgerrors.New(pkgerrors.CodeMalformedResponse, "google ads returned hour outside 0-23").
				WithDetails(map[string]any{"hour": h})
		}
		byHour[h] = append(byHour[h], rawFromRow(row))
	}

	out := make([]metrics.Snapshot, 24)
	for h := range byHour {
		out[h] = metrics.Normalize(a.Platform(), window, byHour[h])
	}
	return out, nil
}

// TestConnection probes the customer resource without touching metrics quota.
func (a *Adapter) TestConnection(ctx context.Context) (*adapters.ConnectionInfo, error) {
	gaql := "SELECT customer.id, customer.descriptive_name, customer.currency_code, customer.time_zone FROM customer LIMIT 1"
	rows, err := a.search(ctx, gaql)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		err := pkgerrors.New(pkgerrors.CodeMalformedResponse, "google ads returned no customer row")
		a.health.RecordFailure(err)
		return nil, err
	}
	customer := rows[0].Customer
	return &adapters.ConnectionInfo{
		Connected:   true,
		AccountID:   strconv.FormatInt(int64(customer.ID), 10),
		AccountName: customer.DescriptiveName,
		Currency:    customer.CurrencyCode,
		Timezone:    customer.TimeZone,
	}, nil
}

func rowsToRaw(rows []searchRow) []metrics.RawRow {
	out := make([]metrics.RawRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, rawFromRow(row))
	}
	return out
}

func rawFromRow(row searchRow) metrics.RawRow {
	impressions := int64(row.Metrics.Impressions)
	clicks := int64(row.Metrics.Clicks)
	costMicros := int64(row.Metrics.CostMicros)
	return metrics.RawRow{
		Impressions:     &impressions,
		Clicks:          &clicks,
		CostMicros:      &costMicros,
		Conversions:     row.Metrics.Conversions,
		ConversionValue: row.Metrics.ConversionsValue,
	}
}

var _ adapters.Adapter = (*Adapter)(nil)
