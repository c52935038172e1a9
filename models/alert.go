package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Severity is an alert severity level with an explicit ordering.
// Comparisons must go through Rank so that routing decisions never
// fall back to string matching.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal position of the severity (low=1 .. critical=4),
// or 0 for an unknown value.
func (s Severity) Rank() int {
	return severityRank[s]
}

// IsValid reports whether the severity is one of the four defined levels
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// Immediate reports whether alerts of this severity are delivered
// synchronously instead of being batched into the daily digest
func (s Severity) Immediate() bool {
	return s.Rank() >= SeverityHigh.Rank()
}

// ValidSeverities returns the defined severity levels in ascending order
func ValidSeverities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// Alert type constants
const (
	AlertTypePEChange        = "pe_ratio_change"
	AlertTypePEBelow20       = "pe_ratio_below_20"
	AlertTypeRevenueGrowth   = "revenue_growth_high"
	AlertTypeMarketCapChange = "market_cap_change"
	AlertTypePriceTarget     = "price_target"
	AlertTypeEarningsUpdate  = "earnings_update"
	AlertTypeScreenerMatch   = "screener_match"
)

// DefaultAlertExpiry is how long an alert stays queryable before the
// cleanup sweep removes it
const DefaultAlertExpiry = 7 * 24 * time.Hour

// Alert represents one triggered or suppressed notification event
type Alert struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	UserID         uint              `gorm:"index:idx_alerts_user_active;index:idx_alerts_cooldown" json:"user_id"`
	User           User              `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CompanyID      uint              `gorm:"index:idx_alerts_cooldown" json:"company_id"`
	Company        Company           `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	AlertType      string            `gorm:"index:idx_alerts_cooldown" json:"alert_type"`
	Severity       Severity          `gorm:"type:varchar(16)" json:"severity"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	PreviousValue  datatypes.JSONMap `json:"previous_value"`
	CurrentValue   datatypes.JSONMap `json:"current_value"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	Active         bool              `gorm:"default:true;index:idx_alerts_user_active" json:"active"`
	Read           bool              `gorm:"default:false" json:"read"`
	Acknowledged   bool              `gorm:"default:false" json:"acknowledged"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at"`
	Delivered      bool              `gorm:"default:false" json:"delivered"`
	DeliveredAt    *time.Time        `json:"delivered_at"`
	TriggeredAt    time.Time         `gorm:"index:idx_alerts_cooldown" json:"triggered_at"`
	ExpiresAt      time.Time         `gorm:"index:idx_alerts_user_active" json:"expires_at"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// MigrateAlertModels runs database migrations for alert-related models
func MigrateAlertModels(db *gorm.DB) error {
	return db.AutoMigrate(&Alert{})
}
