package services

import (
	"log"
	"strconv"
	"time"

	"portfolio_backend/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditService provides an append-only audit trail for all critical
// operations. Writes are best-effort: a failed insert is logged to the
// console and must never break the caller's primary operation.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService creates a new audit service
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// AuditEntry holds the fields of one audit event
type AuditEntry struct {
	UserID      *uint
	EntityType  string
	EntityID    *uint
	Action      string
	Description string
	Metadata    map[string]interface{}
}

// Log appends an audit entry. Returns nil (not an error) when the insert
// fails, so callers can fire-and-forget.
func (s *AuditService) Log(entry AuditEntry) *models.AuditLog {
	return s.LogIn(s.db, entry)
}

// LogIn appends an audit entry using the given transaction handle.
// Validation failures and persistence failures are both non-fatal.
func (s *AuditService) LogIn(tx *gorm.DB, entry AuditEntry) *models.AuditLog {
	if entry.EntityType == "" || entry.Action == "" {
		log.Printf("Audit logging skipped: entity type and action are required")
		return nil
	}

	row := models.AuditLog{
		UserID:      entry.UserID,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		Action:      entry.Action,
		Description: entry.Description,
		Metadata:    datatypes.JSONMap(entry.Metadata),
		CreatedAt:   time.Now(),
	}

	if err := tx.Create(&row).Error; err != nil {
		log.Printf("Audit logging error: %v", err)
		return nil
	}

	actor := "system"
	if entry.UserID != nil {
		actor = "user " + strconv.FormatUint(uint64(*entry.UserID), 10)
	}
	log.Printf("[AUDIT] %s %s by %s", entry.Action, entry.EntityType, actor)

	return &row
}

// GetUserLogs returns the most recent audit entries for one actor
func (s *AuditService) GetUserLogs(userID uint, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}

	var logs []models.AuditLog
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// GetEntityLogs returns the audit trail for one entity
func (s *AuditService) GetEntityLogs(entityType string, entityID uint) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := s.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// GetRecentLogs returns the most recent audit entries across all entities
func (s *AuditService) GetRecentLogs(limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}

	var logs []models.AuditLog
	err := s.db.Order("created_at DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// AuditActionCount is one (entity type, action) bucket in the audit stats
type AuditActionCount struct {
	EntityType string `json:"entity_type"`
	Action     string `json:"action"`
	Count      int64  `json:"count"`
}

// AuditStats summarizes audit activity over a trailing window
type AuditStats struct {
	PeriodDays int                `json:"period_days"`
	Actions    []AuditActionCount `json:"actions"`
	Total      int64              `json:"total"`
}

// GetStats aggregates audit entries by (entity type, action) over the last N days
func (s *AuditService) GetStats(days int) (*AuditStats, error) {
	if days <= 0 {
		days = 7
	}

	since := time.Now().AddDate(0, 0, -days)

	var actions []AuditActionCount
	err := s.db.Model(&models.AuditLog{}).
		Select("entity_type, action, COUNT(*) as count").
		Where("created_at > ?", since).
		Group("entity_type, action").
		Order("count DESC").
		Scan(&actions).Error
	if err != nil {
		return nil, err
	}

	stats := &AuditStats{PeriodDays: days, Actions: actions}
	for _, a := range actions {
		stats.Total += a.Count
	}
	return stats, nil
}
