package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReportSnapshot is one persisted aggregation result, kept for historical
// trend queries. The per-platform entries are stored as the serialized
// report payload rather than exploded columns; trend queries that need
// per-metric columns go to the warehouse instead.
type ReportSnapshot struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	WindowStart time.Time       `gorm:"column:window_start;type:date;not null;index:idx_report_snapshots_window"`
	WindowEnd   time.Time       `gorm:"column:window_end;type:date;not null;index:idx_report_snapshots_window"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	GeneratedAt time.Time       `gorm:"column:generated_at;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}
