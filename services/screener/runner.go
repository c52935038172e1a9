package screener

import (
	"fmt"
	"log"
	"strings"
	"time"

	"portfolio_backend/models"
	"portfolio_backend/services/alerts"

	"gorm.io/gorm"
)

// MaxSymbolsInAlert caps how many matched symbols an aggregate screener
// alert carries in its metadata
const MaxSymbolsInAlert = 10

// Runner executes saved screeners and raises one aggregate alert per
// screen with matches. Deduplication across cycles is handled by the
// alert cooldown, not by the runner.
type Runner struct {
	db       *gorm.DB
	screener *Screener
	alerts   *alerts.AlertService
}

// NewRunner creates a screener runner
func NewRunner(db *gorm.DB, alertService *alerts.AlertService) *Runner {
	return &Runner{
		db:       db,
		screener: NewScreener(db),
		alerts:   alertService,
	}
}

// RunReport summarizes one pass over the saved screeners
type RunReport struct {
	ScreenersRun    int `json:"screeners_run"`
	ScreenersFailed int `json:"screeners_failed"`
	AlertsTriggered int `json:"alerts_triggered"`
}

// RunAll executes every active, notification-enabled saved screener. A
// failure in one screener is logged and skipped so the rest still run.
func (r *Runner) RunAll() (*RunReport, error) {
	var screeners []models.SavedScreener
	err := r.db.Where("is_active = ? AND notify_enabled = ?", true, true).
		Find(&screeners).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load saved screeners: %w", err)
	}

	report := &RunReport{}
	for i := range screeners {
		triggered, err := r.RunOne(&screeners[i])
		if err != nil {
			report.ScreenersFailed++
			log.Printf("Screener %d (%s) failed: %v", screeners[i].ID, screeners[i].Name, err)
			continue
		}
		report.ScreenersRun++
		if triggered {
			report.AlertsTriggered++
		}
	}
	return report, nil
}

// RunOne executes a single saved screener and, when the result set is
// non-empty, creates one aggregate match alert carrying up to
// MaxSymbolsInAlert symbols. Returns whether an alert was triggered
// (suppressed alerts count as not triggered).
func (r *Runner) RunOne(saved *models.SavedScreener) (bool, error) {
	filter, err := ParseFilter(saved.Filter)
	if err != nil {
		return false, err
	}

	matches, err := r.screener.Screen(filter)
	if err != nil {
		return false, err
	}

	now := time.Now()
	if err := r.db.Model(saved).Update("last_run_at", now).Error; err != nil {
		log.Printf("Failed to stamp last run for screener %d: %v", saved.ID, err)
	}

	if len(matches) == 0 {
		return false, nil
	}

	symbols := make([]string, 0, MaxSymbolsInAlert)
	for _, match := range matches {
		if len(symbols) == MaxSymbolsInAlert {
			break
		}
		symbols = append(symbols, match.Company.Symbol)
	}

	result, err := r.alerts.CreateAlert(alerts.CreateAlertParams{
		UserID:    saved.UserID,
		CompanyID: matches[0].Company.ID,
		AlertType: models.AlertTypeScreenerMatch,
		Severity:  models.SeverityMedium,
		Title:     fmt.Sprintf("Screener Match: %s", saved.Name),
		Description: fmt.Sprintf("%d companies match your screener %q: %s",
			len(matches), saved.Name, strings.Join(symbols, ", ")),
		CurrentValue: map[string]interface{}{
			"match_count": len(matches),
			"symbols":     symbols,
		},
		Metadata: map[string]interface{}{
			"screener_id":   saved.ID,
			"screener_name": saved.Name,
			"match_count":   len(matches),
			"symbols":       symbols,
		},
	})
	if err != nil {
		return false, err
	}
	if result.Suppressed {
		return false, nil
	}

	if _, err := r.alerts.ProcessAlertDelivery(result.Alert); err != nil {
		log.Printf("Delivery routing failed for screener alert %d: %v", result.Alert.ID, err)
	}
	return true, nil
}
