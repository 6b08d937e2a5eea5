package models

import (
	"time"

	"gorm.io/datatypes"
)

type Task struct {
	ID             string         `gorm:"type:uuid;primaryKey"`
	Queue          string         `gorm:"type:text;not null"`
	Kind           string         `gorm:"type:text;not null"`
	JobID          string         `gorm:"type:uuid;not null;index"`
	Payload        datatypes.JSON `gorm:"type:jsonb;not null"`
	Status         string         `gorm:"type:text;not null"`
	Attempts       int            `gorm:"not null;default:0"`
	MaxAttempts    int            `gorm:"not null;default:3"`
	RunAfter       time.Time      `gorm:"not null"`
	LeaseExpiresAt *time.Time
	LastError      *string `gorm:"type:text"`
	GroupID        *string `gorm:"type:uuid;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Task) TableName() string {
	return "import_tasks"
}

// TaskGroup tracks a fan-out. The finalize task is enqueued by whichever unit
// brings Pending to zero.
type TaskGroup struct {
	ID                  string         `gorm:"type:uuid;primaryKey"`
	JobID               string         `gorm:"type:uuid;not null;index"`
	TotalUnits          int            `gorm:"not null"`
	Pending             int            `gorm:"not null"`
	Processed           int64          `gorm:"not null;default:0"`
	Failed              bool           `gorm:"not null;default:false"`
	FinalizeQueue       string         `gorm:"type:text;not null"`
	FinalizeKind        string         `gorm:"type:text;not null"`
	FinalizePayload     datatypes.JSON `gorm:"type:jsonb;not null"`
	FinalizeMaxAttempts int            `gorm:"not null;default:3"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (TaskGroup) TableName() string {
	return "import_task_groups"
}
