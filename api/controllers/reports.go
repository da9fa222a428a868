package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/marcusai/insights-backend/api/responses"
	"github.com/marcusai/insights-backend/api/validators"
	"github.com/marcusai/insights-backend/internal/metrics"
	"github.com/marcusai/insights-backend/internal/reports"
	"github.com/marcusai/insights-backend/pkg/enums"
	pkgerrors "github.com/marcusai/insights-backend/pkg/errors"
	"github.com/marcusai/insights-backend/pkg/logger"
)

// PerformanceReport aggregates the requested window across platforms.
// Without explicit dates it reports on yesterday; without a platforms filter
// it covers every configured platform.
func PerformanceReport(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		yesterday := time.Now().UTC().AddDate(0, 0, -1)

		start, err := validators.ParseQueryDate(r, "start", yesterday)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end, err := validators.ParseQueryDate(r, "end", start)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		window, err := metrics.NewWindow(start, end)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		platforms, err := parsePlatformsParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.GeneratePerformanceReport(r.Context(), platforms, window)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, report)
	}
}

// HourlyBreakdown returns 24 hourly snapshots for one platform and day.
func HourlyBreakdown(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platform, err := enums.ParsePlatform(r.URL.Query().Get("platform"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown platform"))
			return
		}

		yesterday := time.Now().UTC().AddDate(0, 0, -1)
		day, err := validators.ParseQueryDate(r, "date", yesterday)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshots, err := svc.HourlyBreakdown(r.Context(), platform, day)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"platform": platform,
			"date":     day.Format("2006-01-02"),
			"hours":    snapshots,
		})
	}
}

type historyEntry struct {
	ID          string          `json:"id"`
	WindowStart string          `json:"window_start"`
	WindowEnd   string          `json:"window_end"`
	Payload     json.RawMessage `json:"payload"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// ReportHistory lists persisted reports, newest first.
func ReportHistory(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshots, err := svc.History(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries := make([]historyEntry, 0, len(snapshots))
		for _, s := range snapshots {
			entries = append(entries, historyEntry{
				ID:          s.ID.String(),
				WindowStart: s.WindowStart.Format("2006-01-02"),
				WindowEnd:   s.WindowEnd.Format("2006-01-02"),
				Payload:     s.Payload,
				GeneratedAt: s.GeneratedAt,
			})
		}

		responses.WriteSuccess(w, map[string]any{"reports": entries})
	}
}

func parsePlatformsParam(r *http.Request) ([]enums.Platform, error) {
	raw := validators.ParseQueryCSV(r, "platforms")
	if len(raw) == 0 {
		return nil, nil
	}
	platforms := make([]enums.Platform, 0, len(raw))
	for _, v := range raw {
		p, err := enums.ParsePlatform(v)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown platform in filter").WithDetails(map[string]any{"platform": v})
		}
		platforms = append(platforms, p)
	}
	return platforms, nil
}
