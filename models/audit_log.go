package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit entity type constants
const (
	AuditEntityAlert        = "alert"
	AuditEntityEvaluation   = "evaluation"
	AuditEntityDigest       = "digest"
	AuditEntityNotification = "notification"
	AuditEntitySystem       = "system"
)

// AuditLog is an immutable record of a state-changing operation.
// Rows are only ever inserted; nothing in the normal flow updates or
// deletes them.
type AuditLog struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	UserID      *uint             `gorm:"index:idx_audit_actor_time" json:"user_id"`
	EntityType  string            `gorm:"index:idx_audit_entity" json:"entity_type"`
	EntityID    *uint             `gorm:"index:idx_audit_entity" json:"entity_id"`
	Action      string            `gorm:"index" json:"action"`
	Description string            `json:"description"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	CreatedAt   time.Time         `gorm:"index:idx_audit_actor_time" json:"created_at"`
}

// MigrateAuditModels runs database migrations for audit models
func MigrateAuditModels(db *gorm.DB) error {
	return db.AutoMigrate(&AuditLog{})
}
