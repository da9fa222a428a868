package metrics

import (
	"testing"
	"time"

	"github.com/marcusai/insights-backend/pkg/enums"
	pkgerrors "github.com/marcusai/insights-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

func TestPercentChange(t *testing.T) {
	cases := []struct {
		name              string
		current, baseline string
		want              string
	}{
		{"both zero", "0", "0", "0"},
		{"growth from nothing", "25", "0", "100"},
		{"halved", "50", "100", "-50"},
		{"up fifty", "150", "100", "50"},
		{"to zero", "0", "40", "-100"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PercentChange(decimal.RequireFromString(tc.current), decimal.RequireFromString(tc.baseline))
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("PercentChange(%s, %s) = %s, want %s", tc.current, tc.baseline, got, tc.want)
			}
		})
	}
}

func TestCompareSpendScenarios(t *testing.T) {
	w := day(2026, time.August, 30)
	base := Zero(enums.PlatformGoogleAds, w.Previous())
	cur := Zero(enums.PlatformGoogleAds, w)
	cur.Spend = decimal.RequireFromString("25")

	cmp, err := Compare(cur, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cmp.Spend.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("spend change = %s, want 100", cmp.Spend)
	}

	cmp, err = Compare(Zero(enums.PlatformGoogleAds, w), base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cmp.Spend.IsZero() {
		t.Fatalf("spend change = %s, want 0", cmp.Spend)
	}
}

func TestComparePlatformMismatch(t *testing.T) {
	w := day(2026, time.August, 30)
	_, err := Compare(Zero(enums.PlatformGoogleAds, w), Zero(enums.PlatformMetaAds, w.Previous()))
	if err == nil {
		t.Fatal("expected error for mismatched platforms")
	}
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCompareDerivedFields(t *testing.T) {
	w := day(2026, time.August, 30)
	base := Snapshot{
		Platform:    enums.PlatformGoogleAds,
		Window:      w.Previous(),
		Impressions: 1000,
		Clicks:      10,
		Spend:       decimal.RequireFromString("10"),
		Revenue:     decimal.RequireFromString("20"),
	}
	cur := Snapshot{
		Platform:    enums.PlatformGoogleAds,
		Window:      w,
		Impressions: 1000,
		Clicks:      20,
		Spend:       decimal.RequireFromString("10"),
		Revenue:     decimal.RequireFromString("20"),
	}

	cmp, err := Compare(cur, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// CTR doubled, so did conversion denominator effects on avg cpc
	if !cmp.CTR.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("ctr change = %s, want 100", cmp.CTR)
	}
	if !cmp.AvgCPC.Equal(decimal.RequireFromString("-50")) {
		t.Fatalf("avg cpc change = %s, want -50", cmp.AvgCPC)
	}
}

func TestWindowPrevious(t *testing.T) {
	w, err := NewWindow(
		time.Date(2026, time.August, 25, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.August, 27, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prev := w.Previous()
	if prev.Days() != 3 {
		t.Fatalf("previous window spans %d days, want 3", prev.Days())
	}
	if !prev.End.Equal(w.Start.AddDate(0, 0, -1)) {
		t.Fatalf("previous window must end the day before the current starts, got %s", prev)
	}
}

func TestWindowValidate(t *testing.T) {
	_, err := NewWindow(
		time.Date(2026, time.August, 27, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.August, 25, 0, 0, 0, 0, time.UTC),
	)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("inverted window must fail validation, got %v", err)
	}
}
