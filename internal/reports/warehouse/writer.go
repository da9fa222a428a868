package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/marcusai/insights-backend/internal/aggregator"
	pkgbigquery "github.com/marcusai/insights-backend/pkg/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// SnapshotFactRow mirrors the snapshot_facts BigQuery schema: one row per
// platform per generated report, including failed platforms so gap analysis
// can see outages.
type SnapshotFactRow struct {
	Platform     string    `bigquery:"platform"`
	WindowStart  time.Time `bigquery:"window_start"`
	WindowEnd    time.Time `bigquery:"window_end"`
	Impressions  *int64    `bigquery:"impressions"`
	Clicks       *int64    `bigquery:"clicks"`
	Spend        *float64  `bigquery:"spend"`
	Conversions  *float64  `bigquery:"conversions"`
	Revenue      *float64  `bigquery:"revenue"`
	CTR          *float64  `bigquery:"ctr"`
	AvgCPC       *float64  `bigquery:"avg_cpc"`
	ROAS         *float64  `bigquery:"roas"`
	Connected    bool      `bigquery:"connected"`
	ErrorMessage *string   `bigquery:"error_message"`
	GeneratedAt  time.Time `bigquery:"generated_at"`
}

// Config controls the warehouse writer behavior.
type Config struct {
	Table       string
	RetryPolicy RetryPolicy
}

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Writer streams snapshot fact rows into BigQuery with bounded retries.
type Writer struct {
	client tableInserter
	table  string
	retry  RetryPolicy
}

// New creates a Writer backed by a shared BigQuery client.
func New(client *pkgbigquery.Client, cfg Config) (*Writer, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, errors.New("snapshot facts table is required")
	}

	retry := cfg.RetryPolicy
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultMaximumBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = retry.InitialBackoff
	}

	return &Writer{
		client: client,
		table:  table,
		retry:  retry,
	}, nil
}

// InsertReport explodes a report into per-platform fact rows and inserts
// them in one batch.
func (w *Writer) InsertReport(ctx context.Context, report *aggregator.Report) error {
	if report == nil {
		return errors.New("report required")
	}
	rows := RowsFromReport(report)
	if len(rows) == 0 {
		return nil
	}
	anyRows := make([]any, len(rows))
	for i := range rows {
		anyRows[i] = &rows[i]
	}
	return w.insertWithRetry(ctx, anyRows)
}

// RowsFromReport flattens the report into fact rows.
func RowsFromReport(report *aggregator.Report) []SnapshotFactRow {
	rows := make([]SnapshotFactRow, 0, len(report.Platforms))
	for platform, entry := range report.Platforms {
		row := SnapshotFactRow{
			Platform:    platform.String(),
			WindowStart: report.Window.Start,
			WindowEnd:   report.Window.End,
			Connected:   entry.Health.Connected,
			GeneratedAt: report.GeneratedAt,
		}
		if entry.Error != "" {
			msg := entry.Error
			row.ErrorMessage = &msg
		}
		if snap := entry.Snapshot; snap != nil {
			impressions := snap.Impressions
			clicks := snap.Clicks
			spend := snap.Spend.InexactFloat64()
			conversions := snap.Conversions.InexactFloat64()
			revenue := snap.Revenue.InexactFloat64()
			ctr := snap.CTR().InexactFloat64()
			avgCPC := snap.AvgCPC().InexactFloat64()
			roas := snap.ROAS().InexactFloat64()
			row.Impressions = &impressions
			row.Clicks = &clicks
			row.Spend = &spend
			row.Conversions = &conversions
			row.Revenue = &revenue
			row.CTR = &ctr
			row.AvgCPC = &avgCPC
			row.ROAS = &roas
		}
		rows = append(rows, row)
	}
	return rows
}

func (w *Writer) insertWithRetry(ctx context.Context, rows []any) error {
	attempts := 0
	backoff := w.retry.InitialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := w.client.InsertRows(ctx, w.table, rows)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= w.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %s rows: %w", w.table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		timer.Stop()

		backoff = minDuration(backoff*2, w.retry.MaximumBackoff)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	// MultiError and PutMultiError implement error with value receivers and
	// the inserter returns them as values, so match the value types here.
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		if len(multi) == 0 {
			return false
		}
		for _, inner := range multi {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var pme cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if len(pme) == 0 {
			return false
		}
		for _, rowErr := range pme {
			if !isRetryableBigQueryError(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var rowErr *cbigquery.RowInsertionError
	if errors.As(err, &rowErr) {
		if rowErr == nil || len(rowErr.Errors) == 0 {
			return false
		}
		for _, inner := range rowErr.Errors {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal:
		return true
	default:
		return false
	}
}
