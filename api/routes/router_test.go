package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marcusai/insights-backend/internal/adapters"
	"github.com/marcusai/insights-backend/internal/aggregator"
	"github.com/marcusai/insights-backend/internal/metrics"
	"github.com/marcusai/insights-backend/internal/reports"
	"github.com/marcusai/insights-backend/pkg/config"
	"github.com/marcusai/insights-backend/pkg/db/models"
	"github.com/marcusai/insights-backend/pkg/enums"
	"github.com/marcusai/insights-backend/pkg/logger"
	"github.com/rs/zerolog"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

type stubReportsService struct {
	report      *aggregator.Report
	reportErr   error
	hours       []metrics.Snapshot
	hourlyErr   error
	history     []models.ReportSnapshot
	historyErr  error
	connections []reports.ConnectionStatus

	gotPlatforms []enums.Platform
	gotWindow    metrics.Window
}

func (s *stubReportsService) GeneratePerformanceReport(_ context.Context, platforms []enums.Platform, window metrics.Window) (*aggregator.Report, error) {
	s.gotPlatforms = platforms
	s.gotWindow = window
	return s.report, s.reportErr
}

func (s *stubReportsService) HourlyBreakdown(_ context.Context, _ enums.Platform, _ time.Time) ([]metrics.Snapshot, error) {
	return s.hours, s.hourlyErr
}

func (s *stubReportsService) ConnectionStatuses(context.Context) []reports.ConnectionStatus {
	return s.connections
}

func (s *stubReportsService) History(_ context.Context, _ int) ([]models.ReportSnapshot, error) {
	return s.history, s.historyErr
}

func newTestRouter(t *testing.T, svc reports.Service, deps Dependencies) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard})
	return NewRouter(cfg, logg, deps, svc)
}

func testReport() *aggregator.Report {
	window := metrics.Day(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	snap := metrics.Zero(enums.PlatformGoogleAds, window)
	return &aggregator.Report{
		Window: window,
		Platforms: map[enums.Platform]aggregator.PlatformEntry{
			enums.PlatformGoogleAds: {Snapshot: &snap, Health: adapters.Health{Connected: true}},
		},
		GeneratedAt: time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC),
	}
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t, &stubReportsService{}, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("X-Marcus-Env"); got != "test" {
		t.Fatalf("expected env header, got %q", got)
	}
}

func TestHealthReadyDegradesOnFailedDependency(t *testing.T) {
	router := newTestRouter(t, &stubReportsService{}, Dependencies{
		DB:    stubPinger{err: errors.New("connection refused")},
		Redis: stubPinger{},
	})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}

	var body struct {
		Data struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Data.Status != "degraded" {
		t.Fatalf("expected degraded status, got %q", body.Data.Status)
	}
	if body.Data.Checks["db"] != "unreachable" {
		t.Fatalf("expected db unreachable, got %q", body.Data.Checks["db"])
	}
	if body.Data.Checks["redis"] != "ok" {
		t.Fatalf("expected redis ok, got %q", body.Data.Checks["redis"])
	}
	if body.Data.Checks["pubsub"] != "skipped" {
		t.Fatalf("expected unconfigured pubsub skipped, got %q", body.Data.Checks["pubsub"])
	}
}

func TestHealthReadyAllConfigured(t *testing.T) {
	router := newTestRouter(t, &stubReportsService{}, Dependencies{
		DB:       stubPinger{},
		Redis:    stubPinger{},
		PubSub:   stubPinger{},
		BigQuery: stubPinger{},
	})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestPublicPing(t *testing.T) {
	router := newTestRouter(t, &stubReportsService{}, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/public/ping", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestPerformanceReportParsesWindowAndPlatforms(t *testing.T) {
	svc := &stubReportsService{report: testReport()}
	router := newTestRouter(t, svc, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/performance?start=2026-03-01&end=2026-03-07&platforms=google_ads,meta_ads", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.gotPlatforms) != 2 {
		t.Fatalf("expected both platforms forwarded, got %v", svc.gotPlatforms)
	}
	if got := svc.gotWindow.Start.Format("2006-01-02"); got != "2026-03-01" {
		t.Fatalf("unexpected window start %s", got)
	}
	if got := svc.gotWindow.End.Format("2006-01-02"); got != "2026-03-07" {
		t.Fatalf("unexpected window end %s", got)
	}
}

func TestPerformanceReportRejectsBadDate(t *testing.T) {
	router := newTestRouter(t, &stubReportsService{report: testReport()}, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/performance?start=March-1", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestPerformanceReportRejectsUnknownPlatform(t *testing.T) {
	router := newTestRouter(t, &stubReportsService{report: testReport()}, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/performance?platforms=tiktok_ads", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestHourlyBreakdownRequiresKnownPlatform(t *testing.T) {
	router := newTestRouter(t, &stubReportsService{}, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/hourly?platform=bogus", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestHourlyBreakdownReturnsHours(t *testing.T) {
	window := metrics.Day(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	hours := make([]metrics.Snapshot, 24)
	for i := range hours {
		hours[i] = metrics.Zero(enums.PlatformGoogleAds, window)
	}
	router := newTestRouter(t, &stubReportsService{hours: hours}, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/hourly?platform=google_ads&date=2026-03-01", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Data struct {
			Hours []json.RawMessage `json:"hours"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Data.Hours) != 24 {
		t.Fatalf("expected 24 hourly entries, got %d", len(body.Data.Hours))
	}
}

func TestReportHistoryMapsEntries(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	svc := &stubReportsService{history: []models.ReportSnapshot{
		{WindowStart: day, WindowEnd: day, Payload: json.RawMessage(`{"google_ads":{}}`), GeneratedAt: day.Add(26 * time.Hour)},
	}}
	router := newTestRouter(t, svc, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/history?limit=5", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Data struct {
			Reports []struct {
				WindowStart string `json:"window_start"`
			} `json:"reports"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Data.Reports) != 1 {
		t.Fatalf("expected one history entry, got %d", len(body.Data.Reports))
	}
	if body.Data.Reports[0].WindowStart != "2026-03-01" {
		t.Fatalf("unexpected window start %q", body.Data.Reports[0].WindowStart)
	}
}

func TestConnectionsAlwaysAnswers(t *testing.T) {
	svc := &stubReportsService{connections: []reports.ConnectionStatus{
		{Platform: enums.PlatformGoogleAds, Health: adapters.Health{Connected: true}},
		{Platform: enums.PlatformMetaAds, Error: "platform credentials not configured"},
	}}
	router := newTestRouter(t, svc, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Data struct {
			Connections []json.RawMessage `json:"connections"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Data.Connections) != 2 {
		t.Fatalf("expected two connection entries, got %d", len(body.Data.Connections))
	}
}
