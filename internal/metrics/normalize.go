package metrics

import (
	"github.com/marcusai/insights-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// RawRow is one platform-reported result row before normalization. Pointer
// fields model the nulls and omissions upstream APIs routinely produce; a nil
// or negative value counts as zero. Platforms that report cost in micro-units
// set CostMicros, platforms that report native currency set Cost.
type RawRow struct {
	Impressions     *int64
	Clicks          *int64
	CostMicros      *int64
	Cost            *decimal.Decimal
	Conversions     *decimal.Decimal
	ConversionValue *decimal.Decimal
}

// Normalize folds raw platform rows into one canonical snapshot. It is a pure
// function: it never errors, never mutates its input, and an empty input
// yields the zero snapshot for the window.
func Normalize(platform enums.Platform, window Window, rows []RawRow) Snapshot {
	snap := Zero(platform, window)
	for _, row := range rows {
		snap.Impressions += nonNegativeInt(row.Impressions)
		snap.Clicks += nonNegativeInt(row.Clicks)
		snap.Spend = snap.Spend.Add(rowSpend(row))
		snap.Conversions = snap.Conversions.Add(nonNegativeDec(row.Conversions))
		snap.Revenue = snap.Revenue.Add(nonNegativeDec(row.ConversionValue))
	}
	return snap
}

// rowSpend prefers the native-currency Cost; CostMicros is only consulted
// when Cost is absent, so a row carrying both is never double counted.
func rowSpend(row RawRow) decimal.Decimal {
	if row.Cost != nil {
		return nonNegativeDec(row.Cost)
	}
	if row.CostMicros != nil && *row.CostMicros > 0 {
		// micro-units: 1,000,000 micros per currency unit
		return decimal.New(*row.CostMicros, -6)
	}
	return decimal.Zero
}

func nonNegativeInt(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

func nonNegativeDec(v *decimal.Decimal) decimal.Decimal {
	if v == nil || v.IsNegative() {
		return decimal.Zero
	}
	return *v
}
