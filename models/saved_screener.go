package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SavedScreener is a user-defined screen that the background evaluator
// re-runs each cycle. Filter holds the JSON-encoded screener.Filter.
type SavedScreener struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"index" json:"user_id"`
	User          User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Filter        datatypes.JSON `json:"filter"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	NotifyEnabled bool           `gorm:"default:false" json:"notify_enabled"`
	LastRunAt     *time.Time     `json:"last_run_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// MigrateScreenerModels runs database migrations for saved screener models
func MigrateScreenerModels(db *gorm.DB) error {
	return db.AutoMigrate(&SavedScreener{})
}
