package alerts

import (
	"fmt"
	"log"
	"time"

	"portfolio_backend/models"
	"portfolio_backend/services"
	"portfolio_backend/services/notify"

	"gorm.io/datatypes"
)

// Delivery schedule types
const (
	ScheduleDailyDigest = "DAILY_DIGEST"
)

// DeliveryResult describes how an alert was routed
type DeliveryResult struct {
	Delivered    bool   `json:"delivered"`
	DeliveryType string `json:"delivery_type"` // immediate or DAILY_DIGEST
}

// ProcessAlertDelivery routes an alert by severity: high and critical are
// delivered immediately, everything else is tagged for the next daily
// digest and stays undelivered.
func (s *AlertService) ProcessAlertDelivery(alert *models.Alert) (*DeliveryResult, error) {
	if alert.Severity.Immediate() {
		return s.deliverNow(alert)
	}
	return s.scheduleForLater(alert, ScheduleDailyDigest)
}

// deliverNow marks the alert delivered and pushes it through the
// notification channel. A channel failure is logged but does not roll the
// delivery state back.
func (s *AlertService) deliverNow(alert *models.Alert) (*DeliveryResult, error) {
	if err := s.MarkAsDelivered(alert.ID); err != nil {
		return nil, err
	}

	payload := notify.Payload{
		UserID:      alert.UserID,
		Type:        "immediate_alert",
		Severity:    alert.Severity,
		Title:       alert.Title,
		Description: alert.Description,
		AlertIDs:    []uint{alert.ID},
	}
	if err := s.notifier.Send(payload); err != nil {
		log.Printf("Immediate notification failed for alert %d: %v", alert.ID, err)
	}

	log.Printf("Delivered %s alert %d immediately: %s", alert.Severity, alert.ID, alert.Title)
	return &DeliveryResult{Delivered: true, DeliveryType: "immediate"}, nil
}

// scheduleForLater tags the alert's metadata with a scheduled-delivery
// marker; the alert stays undelivered until the digest is processed
func (s *AlertService) scheduleForLater(alert *models.Alert, scheduleType string) (*DeliveryResult, error) {
	if alert.Metadata == nil {
		alert.Metadata = datatypes.JSONMap{}
	}
	alert.Metadata["scheduled_delivery"] = map[string]interface{}{
		"type":         scheduleType,
		"scheduled_at": time.Now().Format(time.RFC3339),
	}

	err := s.db.Model(&models.Alert{}).Where("id = ?", alert.ID).
		Update("metadata", alert.Metadata).Error
	if err != nil {
		return nil, fmt.Errorf("failed to schedule alert %d: %w", alert.ID, err)
	}

	log.Printf("Scheduled alert %d for %s: %s", alert.ID, scheduleType, alert.Title)
	return &DeliveryResult{Delivered: false, DeliveryType: scheduleType}, nil
}

// MarkAsDelivered marks a single alert as delivered
func (s *AlertService) MarkAsDelivered(alertID uint) error {
	now := time.Now()
	return s.db.Model(&models.Alert{}).Where("id = ?", alertID).Updates(map[string]interface{}{
		"delivered":    true,
		"delivered_at": &now,
	}).Error
}

// MarkAlertsAsDelivered marks a batch of alerts as delivered and returns
// how many rows were updated
func (s *AlertService) MarkAlertsAsDelivered(alertIDs []uint) (int64, error) {
	if len(alertIDs) == 0 {
		return 0, nil
	}

	now := time.Now()
	result := s.db.Model(&models.Alert{}).Where("id IN ?", alertIDs).Updates(map[string]interface{}{
		"delivered":    true,
		"delivered_at": &now,
	})
	if result.Error != nil {
		return 0, result.Error
	}

	log.Printf("Marked %d alerts as delivered", result.RowsAffected)
	return result.RowsAffected, nil
}

// GetPendingAlerts returns a user's undelivered active alerts, most severe
// first
func (s *AlertService) GetPendingAlerts(userID uint) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.Preload("Company").
		Where("user_id = ? AND active = ? AND delivered = ? AND expires_at > ?",
			userID, true, false, time.Now()).
		Order("CASE severity WHEN 'critical' THEN 1 WHEN 'high' THEN 2 WHEN 'medium' THEN 3 ELSE 4 END, triggered_at DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending alerts: %w", err)
	}
	return alerts, nil
}

// sendBatchNotification pushes a grouped summary of alerts through the
// notification channel and audits it
func (s *AlertService) sendBatchNotification(userID uint, batch []models.Alert) error {
	if len(batch) == 0 {
		return nil
	}

	summary := map[string]interface{}{"total": len(batch)}
	ids := make([]uint, 0, len(batch))
	highest := models.SeverityLow
	for _, a := range batch {
		key := string(a.Severity)
		if count, ok := summary[key].(int); ok {
			summary[key] = count + 1
		} else {
			summary[key] = 1
		}
		if a.Severity.Rank() > highest.Rank() {
			highest = a.Severity
		}
		ids = append(ids, a.ID)
	}

	payload := notify.Payload{
		UserID:      userID,
		Type:        "batch_alert",
		Severity:    highest,
		Title:       fmt.Sprintf("%d new alerts", len(batch)),
		Description: "Batched alert notification",
		AlertIDs:    ids,
		Summary:     summary,
	}
	if err := s.notifier.Send(payload); err != nil {
		log.Printf("Batch notification failed for user %d: %v", userID, err)
	}

	s.audit.Log(services.AuditEntry{
		UserID:      &userID,
		EntityType:  models.AuditEntityNotification,
		Action:      "send_batch",
		Description: fmt.Sprintf("Batch notification sent with %d alerts", len(batch)),
		Metadata:    summary,
	})

	return nil
}

// ProcessResult reports the outcome of a pending-alert sweep
type ProcessResult struct {
	Processed bool   `json:"processed"`
	Count     int    `json:"count"`
	Reason    string `json:"reason,omitempty"`
}

// ProcessPendingAlerts sends a batch notification for all of a user's
// pending alerts and marks them delivered. Preferences are re-checked at
// delivery time: alerts whose type the user has since disallowed are
// suppressed instead of sent.
func (s *AlertService) ProcessPendingAlerts(userID uint) (*ProcessResult, error) {
	pending, err := s.GetPendingAlerts(userID)
	if err != nil {
		return nil, err
	}

	deliverable := make([]models.Alert, 0, len(pending))
	for i := range pending {
		if s.CheckAndSuppressIfNeeded(userID, &pending[i]) {
			continue
		}
		deliverable = append(deliverable, pending[i])
	}

	if len(deliverable) == 0 {
		return &ProcessResult{Processed: false, Count: 0, Reason: "no_pending_alerts"}, nil
	}

	if err := s.sendBatchNotification(userID, deliverable); err != nil {
		return nil, err
	}

	ids := make([]uint, len(deliverable))
	for i, a := range deliverable {
		ids[i] = a.ID
	}
	if _, err := s.MarkAlertsAsDelivered(ids); err != nil {
		return nil, err
	}

	return &ProcessResult{Processed: true, Count: len(deliverable)}, nil
}
