package controllers

import (
	"net/http"

	"github.com/marcusai/insights-backend/api/responses"
	"github.com/marcusai/insights-backend/internal/reports"
	"github.com/marcusai/insights-backend/pkg/logger"
)

// ConnectionStatuses probes every configured platform and reports identity
// plus health. Probe failures land in each platform's entry; the endpoint
// itself always answers 200.
func ConnectionStatuses(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := svc.ConnectionStatuses(r.Context())
		responses.WriteSuccess(w, map[string]any{"connections": statuses})
	}
}
