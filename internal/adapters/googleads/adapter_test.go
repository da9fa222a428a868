package googleads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marcusai/insights-backend/internal/adapters"
	"github.com/marcusai/insights-backend/internal/metrics"
	"github.com/marcusai/insights-backend/pkg/config"
	"github.com/marcusai/insights-backend/pkg/enums"
	pkgerrors "github.com/marcusai/insights-backend/pkg/errors"
	"github.com/marcusai/insights-backend/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
)

func testConfig() config.GoogleAdsConfig {
	return config.GoogleAdsConfig{
		ClientID:       "client",
		ClientSecret:   "secret",
		DeveloperToken: "dev-token",
		RefreshToken:   "refresh",
		CustomerID:     "123-456-7890",
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard})
}

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func staticToken() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"})
}

func noRetry() adapters.RetryPolicy {
	return adapters.RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(testConfig(), testLogger(),
		WithBaseURL(srv.URL),
		WithTokenSource(staticToken()),
	)
	return NewAdapter(client, noRetry()), srv
}

func TestCredentialsValidateMissing(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshToken = ""
	cfg.DeveloperToken = ""
	err := CredentialsFromConfig(cfg).validate()
	if pkgerrors.CodeOf(err) != pkgerrors.CodeMissingCredentials {
		t.Fatalf("expected MISSING_CREDENTIALS, got %v", err)
	}
}

func TestCredentialsFromConfigStripsDashes(t *testing.T) {
	creds := CredentialsFromConfig(testConfig())
	if creds.CustomerID != "1234567890" {
		t.Fatalf("expected dashes stripped, got %q", creds.CustomerID)
	}
}

func TestFetchSnapshotSumsRows(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("developer-token") != "dev-token" {
			t.Errorf("missing developer-token header")
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer token")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"metrics": map[string]any{
					"impressions": "600", "clicks": "30",
					"costMicros": "15000000", "conversions": 3, "conversionsValue": 300,
				}},
				{"metrics": map[string]any{
					"impressions": "400", "clicks": "20",
					"costMicros": "10000000", "conversions": 2, "conversionsValue": 200,
				}},
			},
		})
	})

	window, _ := metrics.NewWindow(
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 7, 0, 0, 0, 0, time.UTC),
	)
	snap, err := adapter.FetchSnapshot(context.Background(), window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Platform != enums.PlatformGoogleAds {
		t.Fatalf("wrong platform %s", snap.Platform)
	}
	if snap.Impressions != 1000 || snap.Clicks != 50 {
		t.Fatalf("bad totals: %d impressions %d clicks", snap.Impressions, snap.Clicks)
	}
	if !snap.Spend.Equal(decimalFromString(t, "25")) {
		t.Fatalf("expected spend 25 from summed micros, got %s", snap.Spend)
	}
	if h := adapter.Health(); !h.Connected {
		t.Fatalf("expected healthy after success, got %+v", h)
	}
}

func TestFetchSnapshotFollowsPagination(t *testing.T) {
	calls := 0
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req searchRequest
		json.NewDecoder(r.Body).Decode(&req)
		if calls == 1 {
			if req.PageToken != "" {
				t.Errorf("first page should have no token")
			}
			json.NewEncoder(w).Encode(map[string]any{
				"results":       []map[string]any{{"metrics": map[string]any{"clicks": "10"}}},
				"nextPageToken": "page-2",
			})
			return
		}
		if req.PageToken != "page-2" {
			t.Errorf("expected page token propagated, got %q", req.PageToken)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"metrics": map[string]any{"clicks": "5"}}},
		})
	})

	snap, err := adapter.FetchSnapshot(context.Background(), metrics.Day(time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 pages fetched, got %d", calls)
	}
	if snap.Clicks != 15 {
		t.Fatalf("expected clicks summed across pages, got %d", snap.Clicks)
	}
}

func TestFetchSnapshotRejectsInvalidWindow(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called for invalid window")
	})
	_, err := adapter.FetchSnapshot(context.Background(), metrics.Window{})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestFetchSnapshotMissingCredentials(t *testing.T) {
	client := NewClient(config.GoogleAdsConfig{}, testLogger())
	adapter := NewAdapter(client, noRetry())
	_, err := adapter.FetchSnapshot(context.Background(), metrics.Day(time.Now()))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeMissingCredentials {
		t.Fatalf("expected MISSING_CREDENTIALS, got %v", err)
	}
	if h := adapter.Health(); h.Connected || h.LastError == "" {
		t.Fatalf("expected failure recorded in health, got %+v", h)
	}
}

func TestStatusErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   pkgerrors.Code
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, pkgerrors.CodeAuthExpired},
		{"forbidden", http.StatusForbidden, `{}`, pkgerrors.CodeAuthExpired},
		{"rate limited", http.StatusTooManyRequests, `{}`, pkgerrors.CodeRateLimited},
		{"quota status", http.StatusConflict, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, pkgerrors.CodeRateLimited},
		{"bad query", http.StatusBadRequest, `{"error":{"message":"invalid GAQL"}}`, pkgerrors.CodeMalformedResponse},
		{"server error", http.StatusInternalServerError, `{}`, pkgerrors.CodeUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pkgerrors.CodeOf(mapStatusError(tt.status, []byte(tt.body))); got != tt.code {
				t.Fatalf("status %d expected %s got %s", tt.status, tt.code, got)
			}
		})
	}
}

func TestFetchSnapshotRecordsUpstreamFailure(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := adapter.FetchSnapshot(context.Background(), metrics.Day(time.Now()))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
	if h := adapter.Health(); h.Connected {
		t.Fatalf("expected unhealthy after 429, got %+v", h)
	}
}

func TestFetchSnapshotMalformedBody(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [{`))
	})
	_, err := adapter.FetchSnapshot(context.Background(), metrics.Day(time.Now()))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeMalformedResponse {
		t.Fatalf("expected MALFORMED_RESPONSE, got %v", err)
	}
}

func TestFetchHourlyBreakdownFillsGaps(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"segments": map[string]any{"hour": 9}, "metrics": map[string]any{"clicks": "7"}},
				{"segments": map[string]any{"hour": 14}, "metrics": map[string]any{"clicks": "3"}},
				{"segments": map[string]any{"hour": 14}, "metrics": map[string]any{"clicks": "2"}},
			},
		})
	})

	hours, err := adapter.FetchHourlyBreakdown(context.Background(), time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hours) != 24 {
		t.Fatalf("expected exactly 24 entries, got %d", len(hours))
	}
	if hours[9].Clicks != 7 {
		t.Fatalf("expected hour 9 clicks 7, got %d", hours[9].Clicks)
	}
	if hours[14].Clicks != 5 {
		t.Fatalf("expected hour 14 clicks summed to 5, got %d", hours[14].Clicks)
	}
	if hours[0].Clicks != 0 || !hours[0].Spend.IsZero() {
		t.Fatalf("expected zero snapshot for empty hour, got %+v", hours[0])
	}
}

func TestFetchHourlyBreakdownRejectsBadHour(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"segments": map[string]any{"hour": 24}, "metrics": map[string]any{"clicks": "1"}},
			},
		})
	})
	_, err := adapter.FetchHourlyBreakdown(context.Background(), time.Now())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeMalformedResponse {
		t.Fatalf("expected MALFORMED_RESPONSE for hour 24, got %v", err)
	}
}

func TestTestConnection(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"customer": map[string]any{
					"id": "1234567890", "descriptiveName": "Acme Ads",
					"currencyCode": "USD", "timeZone": "America/New_York",
				}},
			},
		})
	})
	info, err := adapter.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.Connected || info.AccountID != "1234567890" || info.AccountName != "Acme Ads" {
		t.Fatalf("unexpected connection info: %+v", info)
	}
	if info.Currency != "USD" || info.Timezone != "America/New_York" {
		t.Fatalf("unexpected locale fields: %+v", info)
	}
}

func TestQuotaGuardDeniesBeforeUpstream(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(srv.Close)
	client := NewClient(testConfig(), testLogger(), WithBaseURL(srv.URL), WithTokenSource(staticToken()))
	adapter := NewAdapter(client, noRetry(), WithQuotaGuard(denyAllGuard{}))

	_, err := adapter.FetchSnapshot(context.Background(), metrics.Day(time.Now()))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeRateLimited {
		t.Fatalf("expected RATE_LIMITED from guard, got %v", err)
	}
	if called {
		t.Fatal("upstream called despite quota denial")
	}
}

type denyAllGuard struct{}

func (denyAllGuard) Allow(ctx context.Context, platform enums.Platform) (bool, error) {
	return false, nil
}

func TestSearchConcurrentRefreshTokenFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/token") {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "refreshed-token", "token_type": "Bearer", "expires_in": 3600,
			})
			return
		}
		if r.Header.Get("Authorization") != "Bearer refreshed-token" {
			t.Errorf("missing refreshed bearer token")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"metrics": map[string]any{"impressions": "10", "clicks": "1"}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	// No WithTokenSource here: the client builds its own source from the
	// refresh token, and that source must be shared across goroutines.
	client := NewClient(testConfig(), testLogger(),
		WithBaseURL(srv.URL),
		WithTokenURL(srv.URL+"/token"),
	)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows, err := client.Search(context.Background(), "SELECT metrics.clicks FROM customer")
			if err == nil && len(rows) != 1 {
				err = fmt.Errorf("expected 1 row, got %d", len(rows))
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("search %d failed: %v", i, err)
		}
	}
}
