package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcusai/insights-backend/internal/adapters"
	"github.com/marcusai/insights-backend/internal/aggregator"
	"github.com/marcusai/insights-backend/internal/metrics"
	"github.com/marcusai/insights-backend/pkg/db/models"
	"github.com/marcusai/insights-backend/pkg/enums"
	pkgerrors "github.com/marcusai/insights-backend/pkg/errors"
	"github.com/marcusai/insights-backend/pkg/logger"
	pkgmetrics "github.com/marcusai/insights-backend/pkg/metrics"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 200
)

type reportBuilder interface {
	BuildReport(ctx context.Context, platforms []enums.Platform, window metrics.Window) (*aggregator.Report, error)
	Platforms() []enums.Platform
	AdapterFor(platform enums.Platform) (adapters.Adapter, bool)
}

type snapshotRepository interface {
	Create(ctx context.Context, snapshot *models.ReportSnapshot) error
	ListRecent(ctx context.Context, limit int) ([]models.ReportSnapshot, error)
}

// Notifier pushes a freshly generated report to downstream listeners.
type Notifier interface {
	NotifyReportGenerated(ctx context.Context, report *aggregator.Report) error
}

// Warehouse streams per-platform snapshot facts for long-range analytics.
type Warehouse interface {
	InsertReport(ctx context.Context, report *aggregator.Report) error
}

// ConnectionStatus is one platform's identity-probe result for dashboards.
type ConnectionStatus struct {
	Platform enums.Platform           `json:"platform"`
	Info     *adapters.ConnectionInfo `json:"info,omitempty"`
	Health   adapters.Health          `json:"health"`
	Error    string                   `json:"error,omitempty"`
}

// Service exposes report operations.
type Service interface {
	GeneratePerformanceReport(ctx context.Context, platforms []enums.Platform, window metrics.Window) (*aggregator.Report, error)
	HourlyBreakdown(ctx context.Context, platform enums.Platform, day time.Time) ([]metrics.Snapshot, error)
	ConnectionStatuses(ctx context.Context) []ConnectionStatus
	History(ctx context.Context, limit int) ([]models.ReportSnapshot, error)
}

type service struct {
	builder   reportBuilder
	repo      snapshotRepository
	notifier  Notifier
	warehouse Warehouse
	logg      *logger.Logger
	metrics   *pkgmetrics.AdapterMetrics
}

// ServiceParams carries the service dependencies. Repository, Notifier,
// Warehouse, and Metrics are optional; the service degrades to report-only
// mode without them.
type ServiceParams struct {
	Builder   reportBuilder
	Repo      snapshotRepository
	Notifier  Notifier
	Warehouse Warehouse
	Logger    *logger.Logger
	Metrics   *pkgmetrics.AdapterMetrics
}

// NewService builds a report service.
func NewService(params ServiceParams) (Service, error) {
	if params.Builder == nil {
		return nil, fmt.Errorf("report builder required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		builder:   params.Builder,
		repo:      params.Repo,
		notifier:  params.Notifier,
		warehouse: params.Warehouse,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// GeneratePerformanceReport builds a fresh cross-platform report and fans it
// out to persistence, push, and warehouse sinks. The sinks are best effort:
// a failure there is logged, never surfaced, because a delivered report
// always beats a failed request.
func (s *service) GeneratePerformanceReport(ctx context.Context, platforms []enums.Platform, window metrics.Window) (*aggregator.Report, error) {
	report, err := s.builder.BuildReport(ctx, platforms, window)
	if err != nil {
		return nil, err
	}

	s.metrics.IncReportGenerated()

	reportID := uuid.New()
	ctx = s.logg.WithReportID(ctx, reportID.String())

	if s.repo != nil {
		if err := s.persist(ctx, reportID, report); err != nil {
			s.logg.Warn(ctx, fmt.Sprintf("persisting report snapshot failed: %v", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyReportGenerated(ctx, report); err != nil {
			s.logg.Warn(ctx, fmt.Sprintf("report notification failed: %v", err))
		}
	}
	if s.warehouse != nil {
		if err := s.warehouse.InsertReport(ctx, report); err != nil {
			s.logg.Warn(ctx, fmt.Sprintf("warehouse insert failed: %v", err))
		}
	}

	return report, nil
}

func (s *service) persist(ctx context.Context, id uuid.UUID, report *aggregator.Report) error {
	payload, err := json.Marshal(report.Platforms)
	if err != nil {
		return fmt.Errorf("encoding report payload: %w", err)
	}
	return s.repo.Create(ctx, &models.ReportSnapshot{
		ID:          id,
		WindowStart: report.Window.Start,
		WindowEnd:   report.Window.End,
		Payload:     payload,
		GeneratedAt: report.GeneratedAt,
	})
}

// HourlyBreakdown returns the fixed 24-slot series for one platform and day.
func (s *service) HourlyBreakdown(ctx context.Context, platform enums.Platform, day time.Time) ([]metrics.Snapshot, error) {
	adapter, ok := s.builder.AdapterFor(platform)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown platform %q", platform)).
			WithDetails(map[string]any{"known": s.builder.Platforms()})
	}
	return adapter.FetchHourlyBreakdown(ctx, day)
}

// ConnectionStatuses probes every registered platform. Probe failures are
// folded into the per-platform status, never returned as an error.
func (s *service) ConnectionStatuses(ctx context.Context) []ConnectionStatus {
	statuses := make([]ConnectionStatus, 0, len(s.builder.Platforms()))
	for _, platform := range s.builder.Platforms() {
		adapter, ok := s.builder.AdapterFor(platform)
		if !ok {
			continue
		}
		status := ConnectionStatus{Platform: platform}
		info, err := adapter.TestConnection(ctx)
		if err != nil {
			status.Error = err.Error()
		} else {
			status.Info = info
		}
		status.Health = adapter.Health()
		statuses = append(statuses, status)
	}
	return statuses
}

// History lists persisted snapshots, newest first.
func (s *service) History(ctx context.Context, limit int) ([]models.ReportSnapshot, error) {
	if s.repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "report history requires a configured database")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	snapshots, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing report snapshots")
	}
	return snapshots, nil
}
