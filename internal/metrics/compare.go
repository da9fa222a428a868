package metrics

import (
	pkgerrors "github.com/marcusai/insights-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Comparison holds the percentage change per metric between two snapshots of
// the same platform. A value of 100 where the baseline was zero is a
// growth-from-nothing sentinel, not a true percentage; callers rendering
// these numbers should label that case accordingly.
type Comparison struct {
	Impressions    decimal.Decimal `json:"impressions"`
	Clicks         decimal.Decimal `json:"clicks"`
	Spend          decimal.Decimal `json:"spend"`
	Conversions    decimal.Decimal `json:"conversions"`
	Revenue        decimal.Decimal `json:"revenue"`
	CTR            decimal.Decimal `json:"ctr"`
	AvgCPC         decimal.Decimal `json:"avg_cpc"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
	ROAS           decimal.Decimal `json:"roas"`
}

// PercentChange computes the relative change from baseline to current.
// baseline == 0 yields 100 when current > 0 and 0 otherwise.
func PercentChange(current, baseline decimal.Decimal) decimal.Decimal {
	if baseline.IsZero() {
		if current.IsPositive() {
			return hundred
		}
		return decimal.Zero
	}
	return current.Sub(baseline).Div(baseline).Mul(hundred)
}

// Compare pairs a current snapshot with its baseline. Mismatched platforms
// are a caller error.
func Compare(current, baseline Snapshot) (*Comparison, error) {
	if current.Platform != baseline.Platform {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "snapshots belong to different platforms").
			WithDetails(map[string]any{
				"current":  current.Platform.String(),
				"baseline": baseline.Platform.String(),
			})
	}

	return &Comparison{
		Impressions:    PercentChange(decimal.NewFromInt(current.Impressions), decimal.NewFromInt(baseline.Impressions)),
		Clicks:         PercentChange(decimal.NewFromInt(current.Clicks), decimal.NewFromInt(baseline.Clicks)),
		Spend:          PercentChange(current.Spend, baseline.Spend),
		Conversions:    PercentChange(current.Conversions, baseline.Conversions),
		Revenue:        PercentChange(current.Revenue, baseline.Revenue),
		CTR:            PercentChange(current.CTR(), baseline.CTR()),
		AvgCPC:         PercentChange(current.AvgCPC(), baseline.AvgCPC()),
		ConversionRate: PercentChange(current.ConversionRate(), baseline.ConversionRate()),
		ROAS:           PercentChange(current.ROAS(), baseline.ROAS()),
	}, nil
}
