package models

import "time"

type Product struct {
	ID          int64  `gorm:"primaryKey"`
	SKU         string `gorm:"column:sku;size:128;not null;uniqueIndex"`
	Name        string `gorm:"size:512;not null;default:''"`
	Description string `gorm:"type:text;not null;default:''"`
	Active      bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Product) TableName() string {
	return "products"
}

// StagedProduct is a raw row waiting for its job's merge. Fields are kept
// exactly as they appeared in the source file.
type StagedProduct struct {
	ID          int64  `gorm:"primaryKey"`
	JobID       string `gorm:"type:uuid;not null;index"`
	SKU         string `gorm:"column:sku;type:text"`
	Name        string `gorm:"type:text"`
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
}

func (StagedProduct) TableName() string {
	return "product_import_staging"
}
