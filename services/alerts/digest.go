package alerts

import (
	"fmt"
	"log"
	"time"

	"portfolio_backend/models"
	"portfolio_backend/services"
)

// Digest groups a user's pending alerts by a fixed taxonomy
type Digest struct {
	ValuationChanges []models.Alert `json:"valuation_changes"`
	EventUpdates     []models.Alert `json:"event_updates"`
	PortfolioChanges []models.Alert `json:"portfolio_changes"`
	Other            []models.Alert `json:"other"`
	Summary          DigestSummary  `json:"summary"`
}

// DigestSummary carries per-group and total counts
type DigestSummary struct {
	Total     int `json:"total"`
	Valuation int `json:"valuation"`
	Event     int `json:"event"`
	Portfolio int `json:"portfolio"`
	Other     int `json:"other"`
}

// DigestResult is the outcome of a digest build
type DigestResult struct {
	Sent      bool      `json:"sent"`
	Reason    string    `json:"reason,omitempty"`
	Digest    *Digest   `json:"digest,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// digest group names per alert type; anything unlisted lands in "other"
var digestGroups = map[string]string{
	models.AlertTypePEChange:        "valuation",
	models.AlertTypePEBelow20:       "valuation",
	models.AlertTypeMarketCapChange: "valuation",
	models.AlertTypeEarningsUpdate:  "event",
	models.AlertTypeScreenerMatch:   "event",
	models.AlertTypeRevenueGrowth:   "portfolio",
	models.AlertTypePriceTarget:     "portfolio",
}

// BuildDigest groups alerts into the digest taxonomy
func BuildDigest(batch []models.Alert) *Digest {
	digest := &Digest{}
	for _, alert := range batch {
		switch digestGroups[alert.AlertType] {
		case "valuation":
			digest.ValuationChanges = append(digest.ValuationChanges, alert)
		case "event":
			digest.EventUpdates = append(digest.EventUpdates, alert)
		case "portfolio":
			digest.PortfolioChanges = append(digest.PortfolioChanges, alert)
		default:
			digest.Other = append(digest.Other, alert)
		}
	}

	digest.Summary = DigestSummary{
		Total:     len(batch),
		Valuation: len(digest.ValuationChanges),
		Event:     len(digest.EventUpdates),
		Portfolio: len(digest.PortfolioChanges),
		Other:     len(digest.Other),
	}
	return digest
}

// CreateDailyDigest builds the grouped summary of a user's undelivered
// active alerts from the last 24 hours. It does not mark anything
// delivered; ProcessPendingAlerts does that once the digest has actually
// been sent.
func (s *AlertService) CreateDailyDigest(userID uint) (*DigestResult, error) {
	now := time.Now()

	var batch []models.Alert
	err := s.db.Preload("Company").
		Where("user_id = ? AND active = ? AND delivered = ? AND triggered_at > ? AND expires_at > ?",
			userID, true, false, now.Add(-24*time.Hour), now).
		Order("triggered_at DESC").
		Find(&batch).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch digest alerts: %w", err)
	}

	if len(batch) == 0 {
		return &DigestResult{Sent: false, Reason: "no_alerts_in_period", Timestamp: now}, nil
	}

	digest := BuildDigest(batch)

	summaryMeta := map[string]interface{}{
		"total":     digest.Summary.Total,
		"valuation": digest.Summary.Valuation,
		"event":     digest.Summary.Event,
		"portfolio": digest.Summary.Portfolio,
		"other":     digest.Summary.Other,
	}

	s.audit.Log(services.AuditEntry{
		UserID:      &userID,
		EntityType:  models.AuditEntityDigest,
		Action:      "create",
		Description: fmt.Sprintf("Daily digest created with %d alerts", digest.Summary.Total),
		Metadata:    summaryMeta,
	})

	services.GlobalArchive.ArchiveDigest(userID, summaryMeta)

	log.Printf("Daily digest created for user %d: %d alerts", userID, digest.Summary.Total)

	return &DigestResult{Sent: true, Digest: digest, Timestamp: now}, nil
}
