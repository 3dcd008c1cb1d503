package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vinlotto-backend/pkg/enums"
)

// ProcessingEvent is an append-only trace line written during a processing run.
type ProcessingEvent struct {
	ID        uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	RunID     uuid.UUID                 `gorm:"column:run_id;type:uuid;not null;index:idx_processing_events_run,priority:1"`
	OrderID   string                    `gorm:"column:order_id;not null;index"`
	Source    enums.TriggerSource       `gorm:"column:source;not null"`
	Sequence  int                       `gorm:"column:sequence;not null;index:idx_processing_events_run,priority:2"`
	Kind      enums.ProcessingEventKind `gorm:"column:kind;not null"`
	Message   string                    `gorm:"column:message;not null"`
	Context   json.RawMessage           `gorm:"column:context;type:jsonb"`
	ElapsedMS int64                     `gorm:"column:elapsed_ms;not null;default:0"`
	CreatedAt time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

func (ProcessingEvent) TableName() string { return "processing_events" }

func (e *ProcessingEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
