package alerts

import (
	"errors"
	"fmt"
	"log"
	"time"

	"portfolio_backend/models"
	"portfolio_backend/services"
	"portfolio_backend/services/notify"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service errors
var (
	ErrMissingFields   = errors.New("missing required alert fields")
	ErrInvalidSeverity = errors.New("invalid severity")
	ErrAlertNotFound   = errors.New("alert not found or unauthorized")
)

// Suppression reasons
const (
	SuppressReasonCooldown    = "cooldown_active"
	SuppressReasonPreferences = "user_preferences"
)

// AlertService creates and manages alerts: cooldown suppression, the
// read/acknowledge/dismiss lifecycle, severity-based delivery routing and
// digest batching.
type AlertService struct {
	db              *gorm.DB
	audit           *services.AuditService
	notifier        notify.Notifier
	cooldowns       map[string]time.Duration
	defaultCooldown time.Duration
}

// NewAlertService creates a new alert service
func NewAlertService(db *gorm.DB, notifier notify.Notifier) *AlertService {
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}
	return &AlertService{
		db:       db,
		audit:    services.NewAuditService(db),
		notifier: notifier,
		cooldowns: map[string]time.Duration{
			models.AlertTypePEChange:       60 * time.Minute,
			models.AlertTypeRevenueGrowth:  120 * time.Minute,
			models.AlertTypePriceTarget:    30 * time.Minute,
			models.AlertTypeEarningsUpdate: 240 * time.Minute,
			models.AlertTypeScreenerMatch:  240 * time.Minute,
		},
		defaultCooldown: 60 * time.Minute,
	}
}

// CooldownFor returns the minimum interval between two alerts of the same
// type for the same target
func (s *AlertService) CooldownFor(alertType string) time.Duration {
	if d, ok := s.cooldowns[alertType]; ok {
		return d
	}
	return s.defaultCooldown
}

// CreateAlertParams holds the inputs for alert creation
type CreateAlertParams struct {
	UserID        uint
	CompanyID     uint
	AlertType     string
	Severity      models.Severity
	Title         string
	Description   string
	PreviousValue map[string]interface{}
	CurrentValue  map[string]interface{}
	Metadata      map[string]interface{}
}

// CreateResult is the outcome of a create call. Suppressed creations carry
// the reason; cooldown suppressions additionally carry the time the window
// reopens and no alert row.
type CreateResult struct {
	Alert         *models.Alert
	Suppressed    bool
	Reason        string
	CooldownUntil *time.Time
}

// CreateAlert validates, checks the cooldown window and inserts the alert,
// all inside one transaction so near-simultaneous evaluations cannot
// double-insert past the cooldown check.
func (s *AlertService) CreateAlert(params CreateAlertParams) (*CreateResult, error) {
	var result *CreateResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.CreateAlertIn(tx, params)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateAlertIn is the transactional core of CreateAlert, exposed so the
// condition evaluator can create the alert on the same transaction as the
// evaluation upsert.
func (s *AlertService) CreateAlertIn(tx *gorm.DB, params CreateAlertParams) (*CreateResult, error) {
	if params.UserID == 0 || params.CompanyID == 0 || params.AlertType == "" ||
		params.Title == "" || params.Description == "" {
		return nil, ErrMissingFields
	}
	if !params.Severity.IsValid() {
		return nil, fmt.Errorf("%w: %q (must be one of low, medium, high, critical)", ErrInvalidSeverity, params.Severity)
	}

	now := time.Now()

	// Cooldown check: the read and the insert below share the transaction
	cooldown := s.CooldownFor(params.AlertType)
	var prev models.Alert
	err := tx.Where(
		"user_id = ? AND company_id = ? AND alert_type = ? AND triggered_at > ?",
		params.UserID, params.CompanyID, params.AlertType, now.Add(-cooldown),
	).Order("triggered_at DESC").First(&prev).Error

	if err == nil {
		until := prev.TriggeredAt.Add(cooldown)
		log.Printf("Cooldown active for %s (user %d, company %d), suppressing duplicate alert",
			params.AlertType, params.UserID, params.CompanyID)
		return &CreateResult{
			Suppressed:    true,
			Reason:        SuppressReasonCooldown,
			CooldownUntil: &until,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("cooldown lookup failed: %w", err)
	}

	alert := models.Alert{
		UserID:        params.UserID,
		CompanyID:     params.CompanyID,
		AlertType:     params.AlertType,
		Severity:      params.Severity,
		Title:         params.Title,
		Description:   params.Description,
		PreviousValue: datatypes.JSONMap(params.PreviousValue),
		CurrentValue:  datatypes.JSONMap(params.CurrentValue),
		Metadata:      datatypes.JSONMap(params.Metadata),
		Active:        true,
		TriggeredAt:   now,
		ExpiresAt:     now.Add(models.DefaultAlertExpiry),
	}
	if alert.Metadata == nil {
		alert.Metadata = datatypes.JSONMap{}
	}

	if err := tx.Create(&alert).Error; err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	// Preference gate: the row is kept but marked inactive so the audit
	// trail still shows what would have fired
	prefs := s.getUserPreferencesIn(tx, params.UserID)
	if !Allows(prefs, params.AlertType) {
		if err := s.suppressIn(tx, &alert, SuppressReasonPreferences); err != nil {
			return nil, err
		}
		return &CreateResult{
			Alert:      &alert,
			Suppressed: true,
			Reason:     SuppressReasonPreferences,
		}, nil
	}

	s.audit.LogIn(tx, services.AuditEntry{
		UserID:      &params.UserID,
		EntityType:  models.AuditEntityAlert,
		EntityID:    &alert.ID,
		Action:      "trigger",
		Description: fmt.Sprintf("Alert triggered: %s", params.Title),
		Metadata: map[string]interface{}{
			"alert_type": params.AlertType,
			"severity":   string(params.Severity),
			"company_id": params.CompanyID,
		},
	})

	log.Printf("Created %s alert for user %d: %s", params.Severity, params.UserID, params.Title)

	return &CreateResult{Alert: &alert}, nil
}

// Preferences holds a user's alert preferences
type Preferences struct {
	Enabled      bool
	AllowedTypes []string
}

// DefaultPreferences returns the preferences applied when a user has none stored
func DefaultPreferences() Preferences {
	return Preferences{
		Enabled: true,
		AllowedTypes: []string{
			models.AlertTypePEChange,
			models.AlertTypePEBelow20,
			models.AlertTypeRevenueGrowth,
			models.AlertTypeMarketCapChange,
			models.AlertTypePriceTarget,
			models.AlertTypeEarningsUpdate,
			models.AlertTypeScreenerMatch,
		},
	}
}

// GetUserPreferences loads a user's alert preferences, falling back to
// defaults when unset or unreadable
func (s *AlertService) GetUserPreferences(userID uint) Preferences {
	return s.getUserPreferencesIn(s.db, userID)
}

func (s *AlertService) getUserPreferencesIn(tx *gorm.DB, userID uint) Preferences {
	var user models.User
	if err := tx.Select("alert_preferences").First(&user, userID).Error; err != nil {
		return DefaultPreferences()
	}
	if user.AlertPreferences == nil {
		return DefaultPreferences()
	}

	prefs := Preferences{Enabled: true}
	if enabled, ok := user.AlertPreferences["enabled"].(bool); ok {
		prefs.Enabled = enabled
	}
	if raw, ok := user.AlertPreferences["allowed_types"].([]interface{}); ok {
		for _, v := range raw {
			if t, ok := v.(string); ok {
				prefs.AllowedTypes = append(prefs.AllowedTypes, t)
			}
		}
	}
	return prefs
}

// Allows reports whether the preferences admit the given alert type.
// An empty allow-list means no restriction.
func Allows(prefs Preferences, alertType string) bool {
	if !prefs.Enabled {
		return false
	}
	if len(prefs.AllowedTypes) == 0 {
		return true
	}
	for _, t := range prefs.AllowedTypes {
		if t == alertType {
			return true
		}
	}
	return false
}

// SuppressAlert marks an alert inactive without delivering it, recording
// the reason in its metadata
func (s *AlertService) SuppressAlert(alert *models.Alert, reason string) error {
	return s.suppressIn(s.db, alert, reason)
}

func (s *AlertService) suppressIn(tx *gorm.DB, alert *models.Alert, reason string) error {
	if alert.Metadata == nil {
		alert.Metadata = datatypes.JSONMap{}
	}
	alert.Metadata["suppression"] = map[string]interface{}{
		"suppressed":    true,
		"reason":        reason,
		"suppressed_at": time.Now().Format(time.RFC3339),
	}
	alert.Active = false

	err := tx.Model(&models.Alert{}).Where("id = ?", alert.ID).Updates(map[string]interface{}{
		"active":   false,
		"metadata": alert.Metadata,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to suppress alert %d: %w", alert.ID, err)
	}

	log.Printf("Suppressed alert %d: %s", alert.ID, reason)
	return nil
}

// CheckAndSuppressIfNeeded applies the preference gate to an existing
// alert. Returns true when the alert was suppressed. Lookup errors never
// suppress.
func (s *AlertService) CheckAndSuppressIfNeeded(userID uint, alert *models.Alert) bool {
	prefs := s.GetUserPreferences(userID)
	if Allows(prefs, alert.AlertType) {
		return false
	}
	if err := s.SuppressAlert(alert, SuppressReasonPreferences); err != nil {
		log.Printf("Preference suppression failed for alert %d: %v", alert.ID, err)
		return false
	}
	return true
}

// GetUserAlerts returns a user's active, unexpired alerts, newest first
func (s *AlertService) GetUserAlerts(userID uint, unreadOnly bool) ([]models.Alert, error) {
	query := s.db.Preload("Company").
		Where("user_id = ? AND active = ? AND expires_at > ?", userID, true, time.Now())

	if unreadOnly {
		query = query.Where("read = ?", false)
	}

	var alerts []models.Alert
	if err := query.Order("triggered_at DESC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch alerts: %w", err)
	}
	return alerts, nil
}

// MarkAsRead marks an alert as read, scoped to the owning user
func (s *AlertService) MarkAsRead(alertID, userID uint) (*models.Alert, error) {
	return s.updateOwned(alertID, userID, map[string]interface{}{"read": true})
}

// AcknowledgeAlert acknowledges an alert, scoped to the owning user
func (s *AlertService) AcknowledgeAlert(alertID, userID uint) (*models.Alert, error) {
	now := time.Now()
	alert, err := s.updateOwned(alertID, userID, map[string]interface{}{
		"acknowledged":    true,
		"acknowledged_at": &now,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(services.AuditEntry{
		UserID:      &userID,
		EntityType:  models.AuditEntityAlert,
		EntityID:    &alertID,
		Action:      "acknowledge",
		Description: fmt.Sprintf("Alert acknowledged: %s", alert.Title),
		Metadata:    map[string]interface{}{"alert_type": alert.AlertType},
	})

	return alert, nil
}

// DismissAlert deactivates an alert, scoped to the owning user
func (s *AlertService) DismissAlert(alertID, userID uint) (*models.Alert, error) {
	return s.updateOwned(alertID, userID, map[string]interface{}{"active": false})
}

// updateOwned applies updates to an alert only if it belongs to the user
func (s *AlertService) updateOwned(alertID, userID uint, updates map[string]interface{}) (*models.Alert, error) {
	result := s.db.Model(&models.Alert{}).
		Where("id = ? AND user_id = ?", alertID, userID).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrAlertNotFound
	}

	var alert models.Alert
	if err := s.db.First(&alert, alertID).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// AlertStats summarizes a user's active alerts
type AlertStats struct {
	UnreadCount   int64 `json:"unread_count"`
	CriticalCount int64 `json:"critical_count"`
	HighCount     int64 `json:"high_count"`
	TotalActive   int64 `json:"total_active"`
}

// GetAlertStats returns alert statistics for a user
func (s *AlertService) GetAlertStats(userID uint) (*AlertStats, error) {
	base := func() *gorm.DB {
		return s.db.Model(&models.Alert{}).
			Where("user_id = ? AND active = ? AND expires_at > ?", userID, true, time.Now())
	}

	stats := &AlertStats{}
	if err := base().Count(&stats.TotalActive).Error; err != nil {
		return nil, err
	}
	if err := base().Where("read = ?", false).Count(&stats.UnreadCount).Error; err != nil {
		return nil, err
	}
	if err := base().Where("severity = ?", models.SeverityCritical).Count(&stats.CriticalCount).Error; err != nil {
		return nil, err
	}
	if err := base().Where("severity = ?", models.SeverityHigh).Count(&stats.HighCount).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// CleanupExpiredAlerts deletes all alerts past their expiry and returns
// the number removed
func (s *AlertService) CleanupExpiredAlerts() (int64, error) {
	result := s.db.Where("expires_at < ?", time.Now()).Delete(&models.Alert{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clean up expired alerts: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		log.Printf("Cleaned up %d expired alerts", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
