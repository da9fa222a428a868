package metrics

import (
	"fmt"
	"time"

	"github.com/marcusai/insights-backend/pkg/enums"
	pkgerrors "github.com/marcusai/insights-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Window is an inclusive calendar date range. Start and End are truncated to
// midnight in their own location; a single-day window has Start == End.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Day returns the single-day window containing t.
func Day(t time.Time) Window {
	d := truncateToDay(t)
	return Window{Start: d, End: d}
}

// NewWindow builds a validated window from two dates.
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: truncateToDay(start), End: truncateToDay(end)}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Validate rejects zero and inverted windows.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "window start and end are required")
	}
	if w.End.Before(w.Start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "window end precedes start")
	}
	return nil
}

// Days returns the number of calendar days the window spans.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// Previous returns the window of equal length immediately before this one,
// used as the comparison baseline.
func (w Window) Previous() Window {
	span := w.Days()
	return Window{
		Start: w.Start.AddDate(0, 0, -span),
		End:   w.End.AddDate(0, 0, -span),
	}
}

// String renders the window as "2006-01-02..2006-01-02".
func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Snapshot is the canonical per-platform metric record for one window.
// Only the base fields are stored; every rate is derived on demand so the
// two can never drift apart.
type Snapshot struct {
	Platform    enums.Platform  `json:"platform"`
	Window      Window          `json:"window"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Spend       decimal.Decimal `json:"spend"`
	Conversions decimal.Decimal `json:"conversions"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// Zero returns an all-zero snapshot for the platform and window.
func Zero(platform enums.Platform, window Window) Snapshot {
	return Snapshot{
		Platform:    platform,
		Window:      window,
		Spend:       decimal.Zero,
		Conversions: decimal.Zero,
		Revenue:     decimal.Zero,
	}
}

// CTR is the click-through rate as a percentage, 0 when there were no impressions.
func (s Snapshot) CTR() decimal.Decimal {
	if s.Impressions == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(s.Clicks).Div(decimal.NewFromInt(s.Impressions)).Mul(hundred)
}

// AvgCPC is spend per click, 0 when there were no clicks.
func (s Snapshot) AvgCPC() decimal.Decimal {
	if s.Clicks == 0 {
		return decimal.Zero
	}
	return s.Spend.Div(decimal.NewFromInt(s.Clicks))
}

// ConversionRate is conversions per click as a percentage, 0 when there were no clicks.
func (s Snapshot) ConversionRate() decimal.Decimal {
	if s.Clicks == 0 {
		return decimal.Zero
	}
	return s.Conversions.Div(decimal.NewFromInt(s.Clicks)).Mul(hundred)
}

// ROAS is revenue divided by spend, 0 when nothing was spent.
func (s Snapshot) ROAS() decimal.Decimal {
	if s.Spend.IsZero() {
		return decimal.Zero
	}
	return s.Revenue.Div(s.Spend)
}

// Rates bundles the derived fields for serialization.
type Rates struct {
	CTR            decimal.Decimal `json:"ctr"`
	AvgCPC         decimal.Decimal `json:"avg_cpc"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
	ROAS           decimal.Decimal `json:"roas"`
}

// Rates computes every derived field from the base fields.
func (s Snapshot) Rates() Rates {
	return Rates{
		CTR:            s.CTR(),
		AvgCPC:         s.AvgCPC(),
		ConversionRate: s.ConversionRate(),
		ROAS:           s.ROAS(),
	}
}
