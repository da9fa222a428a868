package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marcusai/insights-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository handles report snapshot persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to report snapshot operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a generated report snapshot.
func (r *Repository) Create(ctx context.Context, snapshot *models.ReportSnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

// FindByID loads one snapshot by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReportSnapshot, error) {
	var snapshot models.ReportSnapshot
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&snapshot).Error; err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ListRecent returns the newest snapshots first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.ReportSnapshot, error) {
	var snapshots []models.ReportSnapshot
	if err := r.db.WithContext(ctx).
		Order("generated_at DESC").
		Limit(limit).
		Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

// ListWindow returns snapshots whose window overlaps the given date range,
// newest first.
func (r *Repository) ListWindow(ctx context.Context, start, end time.Time, limit int) ([]models.ReportSnapshot, error) {
	var snapshots []models.ReportSnapshot
	if err := r.db.WithContext(ctx).
		Where("window_start <= ? AND window_end >= ?", end, start).
		Order("generated_at DESC").
		Limit(limit).
		Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}
