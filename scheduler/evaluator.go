package scheduler

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"portfolio_backend/models"
	"portfolio_backend/services"
	"portfolio_backend/services/alerts"
	"portfolio_backend/services/evaluation"
	"portfolio_backend/services/notify"
	"portfolio_backend/services/portfolio"
	"portfolio_backend/services/screener"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"
)

// Stats tracks evaluator run counters. A tick skipped by the single-flight
// guard does not count as a run.
type Stats struct {
	Running         bool          `json:"running"`
	TotalRuns       int64         `json:"total_runs"`
	SuccessfulRuns  int64         `json:"successful_runs"`
	FailedRuns      int64         `json:"failed_runs"`
	LastRunAt       *time.Time    `json:"last_run_at"`
	LastRunDuration time.Duration `json:"last_run_duration"`
	AlertsTriggered int64         `json:"alerts_triggered"`
}

// CycleReport is the outcome of one evaluation cycle
type CycleReport struct {
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	UsersEvaluated  int           `json:"users_evaluated"`
	UsersFailed     int           `json:"users_failed"`
	Evaluations     int           `json:"evaluations"`
	StateChanges    int           `json:"state_changes"`
	ScreenersRun    int           `json:"screeners_run"`
	ScreenersFailed int           `json:"screeners_failed"`
	AlertsTriggered int           `json:"alerts_triggered"`
	ExpiredAlerts   int64         `json:"expired_alerts"`
	CleanupFailed   bool          `json:"cleanup_failed"`
}

// Evaluator drives the periodic evaluation loop: portfolio conditions,
// saved screeners, then expired-alert cleanup
type Evaluator struct {
	cron      *gocron.Scheduler
	db        *gorm.DB
	audit     *services.AuditService
	alerts    *alerts.AlertService
	engine    *evaluation.Service
	holdings  *portfolio.Source
	screeners *screener.Runner
	interval  int

	inFlight int32
	mu       sync.Mutex
	stats    Stats
}

// NewEvaluator creates the background evaluator. Interval is in minutes;
// values below 1 fall back to 60.
func NewEvaluator(db *gorm.DB, notifier notify.Notifier, intervalMinutes int) *Evaluator {
	if intervalMinutes < 1 {
		intervalMinutes = 60
	}
	alertService := alerts.NewAlertService(db, notifier)
	return &Evaluator{
		cron:      gocron.NewScheduler(time.UTC),
		db:        db,
		audit:     services.NewAuditService(db),
		alerts:    alertService,
		engine:    evaluation.NewService(db, alertService),
		holdings:  portfolio.NewSource(db),
		screeners: screener.NewRunner(db, alertService),
		interval:  intervalMinutes,
	}
}

// Start schedules the evaluation loop and runs the first cycle immediately
func (e *Evaluator) Start() {
	log.Printf("Starting evaluation scheduler (every %d minutes)...", e.interval)

	e.cron.Every(e.interval).Minutes().StartImmediately().Do(func() {
		e.runCycle()
	})

	e.cron.StartAsync()

	e.mu.Lock()
	e.stats.Running = true
	e.mu.Unlock()

	log.Println("Evaluation scheduler started")
}

// Stop halts the loop. A cycle already in flight finishes on its own.
func (e *Evaluator) Stop() {
	e.cron.Stop()

	e.mu.Lock()
	e.stats.Running = false
	e.mu.Unlock()

	log.Println("Evaluation scheduler stopped")
}

// RunManual triggers one cycle outside the schedule. It is subject to the
// same single-flight guard as timed ticks.
func (e *Evaluator) RunManual() (*CycleReport, error) {
	return e.runCycle()
}

// GetStats returns a copy of the run counters
func (e *Evaluator) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// ErrCycleInFlight is returned when a manual run overlaps a running cycle
var ErrCycleInFlight = fmt.Errorf("evaluation cycle already in progress")

// runCycle performs one evaluation cycle. Overlapping invocations are
// dropped without touching the run counters.
func (e *Evaluator) runCycle() (*CycleReport, error) {
	if !atomic.CompareAndSwapInt32(&e.inFlight, 0, 1) {
		log.Println("Evaluation cycle still in progress, skipping tick")
		return nil, ErrCycleInFlight
	}
	defer atomic.StoreInt32(&e.inFlight, 0)

	started := time.Now()
	report := &CycleReport{StartedAt: started}
	log.Println("Evaluation cycle started")

	// Phase 1: portfolio conditions per user
	userErr := e.runPortfolioPhase(report)

	// Phase 2: saved screeners
	screenerErr := e.runScreenerPhase(report)

	// Phase 3: cleanup, non-fatal
	if removed, err := e.alerts.CleanupExpiredAlerts(); err != nil {
		report.CleanupFailed = true
		log.Printf("Expired alert cleanup failed: %v", err)
	} else {
		report.ExpiredAlerts = removed
	}

	report.Duration = time.Since(started)

	err := userErr
	if err == nil {
		err = screenerErr
	}

	e.mu.Lock()
	e.stats.TotalRuns++
	now := time.Now()
	e.stats.LastRunAt = &now
	e.stats.LastRunDuration = report.Duration
	e.stats.AlertsTriggered += int64(report.AlertsTriggered)
	if err != nil {
		e.stats.FailedRuns++
	} else {
		e.stats.SuccessfulRuns++
	}
	e.mu.Unlock()

	if err != nil {
		log.Printf("Evaluation cycle failed after %v: %v", report.Duration, err)
		e.audit.Log(services.AuditEntry{
			EntityType:  models.AuditEntitySystem,
			Action:      "cycle_failed",
			Description: fmt.Sprintf("Evaluation cycle failed: %v", err),
			Metadata:    map[string]interface{}{"duration_ms": report.Duration.Milliseconds()},
		})
		return report, err
	}

	log.Printf("Evaluation cycle finished in %v: %d users, %d evaluations, %d alerts",
		report.Duration, report.UsersEvaluated, report.Evaluations, report.AlertsTriggered)

	if services.GlobalArchive.IsConnected() {
		services.GlobalArchive.ArchiveCycleReport(map[string]interface{}{
			"started_at":       report.StartedAt,
			"duration_ms":      report.Duration.Milliseconds(),
			"users_evaluated":  report.UsersEvaluated,
			"users_failed":     report.UsersFailed,
			"evaluations":      report.Evaluations,
			"state_changes":    report.StateChanges,
			"screeners_run":    report.ScreenersRun,
			"screeners_failed": report.ScreenersFailed,
			"alerts_triggered": report.AlertsTriggered,
			"expired_alerts":   report.ExpiredAlerts,
		})
	}

	return report, nil
}

// runPortfolioPhase evaluates every user's holdings. One user failing is
// logged and skipped; the phase only errors if the user list itself cannot
// be loaded.
func (e *Evaluator) runPortfolioPhase(report *CycleReport) error {
	userIDs, err := e.holdings.UsersWithHoldings()
	if err != nil {
		return fmt.Errorf("portfolio phase: %w", err)
	}

	for _, userID := range userIDs {
		userReport, err := e.engine.EvaluateUserPortfolio(userID, e.holdings)
		if err != nil {
			report.UsersFailed++
			log.Printf("Portfolio evaluation failed for user %d: %v", userID, err)
			continue
		}
		report.UsersEvaluated++
		report.Evaluations += userReport.Evaluations
		report.StateChanges += userReport.StateChanges
		report.AlertsTriggered += userReport.AlertsTriggered
	}
	return nil
}

// runScreenerPhase executes the saved screeners
func (e *Evaluator) runScreenerPhase(report *CycleReport) error {
	screenerReport, err := e.screeners.RunAll()
	if err != nil {
		return fmt.Errorf("screener phase: %w", err)
	}
	report.ScreenersRun = screenerReport.ScreenersRun
	report.ScreenersFailed = screenerReport.ScreenersFailed
	report.AlertsTriggered += screenerReport.AlertsTriggered
	return nil
}
