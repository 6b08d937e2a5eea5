package models

import "time"

type ImportJob struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	Filename      string  `gorm:"type:text;not null"`
	SourcePath    string  `gorm:"type:text;not null"`
	Mode          string  `gorm:"type:text;not null"`
	Status        string  `gorm:"type:text;not null;index"`
	TotalRows     int64   `gorm:"not null;default:0"`
	ProcessedRows int64   `gorm:"not null;default:0"`
	ErrorMessage  *string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (ImportJob) TableName() string {
	return "import_jobs"
}
