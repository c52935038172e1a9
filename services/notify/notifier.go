package notify

import (
	"log"

	"portfolio_backend/models"
)

// Payload is the delivery payload handed to the notification channel for
// both immediate deliveries and digest sends
type Payload struct {
	UserID      uint                   `json:"user_id"`
	Type        string                 `json:"type"` // immediate_alert, batch_alert, daily_digest
	Severity    models.Severity        `json:"severity"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	AlertIDs    []uint                 `json:"alert_ids"`
	Summary     map[string]interface{} `json:"summary,omitempty"`
}

// Notifier delivers a payload to a user. A delivery failure must never
// roll back the alert record that produced it.
type Notifier interface {
	Send(payload Payload) error
}

// LogNotifier writes notification payloads to the operational log.
// Used as the fallback channel when no push transport is attached.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Send logs the payload
func (n *LogNotifier) Send(payload Payload) error {
	log.Printf("Notification for user %d [%s/%s]: %s (%d alerts)",
		payload.UserID, payload.Type, payload.Severity, payload.Title, len(payload.AlertIDs))
	return nil
}
