package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"portfolio_backend/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.MigrateUserModels(db))
	require.NoError(t, models.MigrateCompanyModels(db))
	require.NoError(t, models.MigrateAlertModels(db))
	require.NoError(t, models.MigrateEvaluationModels(db))
	require.NoError(t, models.MigrateAuditModels(db))
	require.NoError(t, models.MigrateScreenerModels(db))

	return db
}

func seedHolding(t *testing.T, db *gorm.DB) (*models.User, *models.Company) {
	t.Helper()

	user := &models.User{Email: "investor@example.com"}
	require.NoError(t, db.Create(user).Error)

	company := &models.Company{Symbol: "ACME", Name: "Acme Corp", Sector: "Technology"}
	require.NoError(t, db.Create(company).Error)
	require.NoError(t, db.Create(&models.Fundamental{
		CompanyID:     company.ID,
		Symbol:        company.Symbol,
		PERatio:       decimal.NewFromFloat(14.5),
		RevenueGrowth: decimal.NewFromFloat(22),
		MarketCap:     decimal.NewFromFloat(4e9),
	}).Error)
	require.NoError(t, db.Create(&models.PortfolioItem{
		UserID:    user.ID,
		CompanyID: company.ID,
		Quantity:  decimal.NewFromInt(100),
		AvgCost:   decimal.NewFromFloat(52.10),
	}).Error)

	return user, company
}

func TestRunManual_FullCycle(t *testing.T) {
	db := newTestDB(t)
	user, _ := seedHolding(t, db)

	require.NoError(t, db.Create(&models.SavedScreener{
		UserID:        user.ID,
		Name:          "Growth screen",
		Filter:        datatypes.JSON([]byte(`{"min_revenue_growth": 20}`)),
		IsActive:      true,
		NotifyEnabled: true,
	}).Error)

	evaluator := NewEvaluator(db, nil, 60)

	report, err := evaluator.RunManual()
	require.NoError(t, err)

	assert.Equal(t, 1, report.UsersEvaluated)
	assert.Equal(t, 0, report.UsersFailed)
	assert.Equal(t, 2, report.Evaluations)
	assert.Equal(t, 2, report.StateChanges)
	assert.Equal(t, 1, report.ScreenersRun)
	// Two first-observation condition alerts plus one screener match
	assert.Equal(t, 3, report.AlertsTriggered)

	stats := evaluator.GetStats()
	assert.EqualValues(t, 1, stats.TotalRuns)
	assert.EqualValues(t, 1, stats.SuccessfulRuns)
	assert.EqualValues(t, 0, stats.FailedRuns)
	assert.EqualValues(t, 3, stats.AlertsTriggered)
	require.NotNil(t, stats.LastRunAt)
	assert.WithinDuration(t, time.Now(), *stats.LastRunAt, 5*time.Second)
}

func TestRunManual_SecondCycleNoChangeNoAlerts(t *testing.T) {
	db := newTestDB(t)
	seedHolding(t, db)

	evaluator := NewEvaluator(db, nil, 60)

	_, err := evaluator.RunManual()
	require.NoError(t, err)

	report, err := evaluator.RunManual()
	require.NoError(t, err)

	assert.Equal(t, 2, report.Evaluations)
	assert.Equal(t, 0, report.StateChanges)
	assert.Equal(t, 0, report.AlertsTriggered)

	stats := evaluator.GetStats()
	assert.EqualValues(t, 2, stats.TotalRuns)
}

func TestRunCycle_SingleFlight(t *testing.T) {
	db := newTestDB(t)
	seedHolding(t, db)

	evaluator := NewEvaluator(db, nil, 60)

	// Simulate a cycle already in flight
	atomic.StoreInt32(&evaluator.inFlight, 1)

	report, err := evaluator.RunManual()
	assert.ErrorIs(t, err, ErrCycleInFlight)
	assert.Nil(t, report)

	// A skipped tick leaves the counters untouched
	stats := evaluator.GetStats()
	assert.EqualValues(t, 0, stats.TotalRuns)
	assert.EqualValues(t, 0, stats.SuccessfulRuns)
	assert.EqualValues(t, 0, stats.FailedRuns)
	assert.Nil(t, stats.LastRunAt)

	atomic.StoreInt32(&evaluator.inFlight, 0)
	_, err = evaluator.RunManual()
	require.NoError(t, err)
	assert.EqualValues(t, 1, evaluator.GetStats().TotalRuns)
}

func TestRunCycle_CleanupSweepsExpiredAlerts(t *testing.T) {
	db := newTestDB(t)
	user, company := seedHolding(t, db)

	// Pre-existing expired alert not tied to this cycle
	require.NoError(t, db.Create(&models.Alert{
		UserID:      user.ID,
		CompanyID:   company.ID,
		AlertType:   models.AlertTypeEarningsUpdate,
		Severity:    models.SeverityLow,
		Title:       "Old earnings note",
		Description: "stale",
		Active:      true,
		TriggeredAt: time.Now().Add(-8 * 24 * time.Hour),
		ExpiresAt:   time.Now().Add(-24 * time.Hour),
	}).Error)

	evaluator := NewEvaluator(db, nil, 60)

	report, err := evaluator.RunManual()
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.ExpiredAlerts)
	assert.False(t, report.CleanupFailed)

	var expired int64
	db.Model(&models.Alert{}).Where("expires_at < ?", time.Now()).Count(&expired)
	assert.EqualValues(t, 0, expired)
}

func TestRunCycle_UserFailureIsIsolated(t *testing.T) {
	db := newTestDB(t)
	seedHolding(t, db)

	// Second user whose holding points at a company with no fundamentals:
	// evaluated without metric conditions, not an error
	other := &models.User{Email: "other@example.com"}
	require.NoError(t, db.Create(other).Error)
	bare := &models.Company{Symbol: "BARE", Name: "Bare Co"}
	require.NoError(t, db.Create(bare).Error)
	require.NoError(t, db.Create(&models.PortfolioItem{
		UserID:    other.ID,
		CompanyID: bare.ID,
		Quantity:  decimal.NewFromInt(10),
	}).Error)

	evaluator := NewEvaluator(db, nil, 60)

	report, err := evaluator.RunManual()
	require.NoError(t, err)
	assert.Equal(t, 2, report.UsersEvaluated)
	assert.Equal(t, 2, report.Evaluations)
}

func TestRunCycle_PhaseFailureCountsAsFailed(t *testing.T) {
	db := newTestDB(t)
	seedHolding(t, db)

	evaluator := NewEvaluator(db, nil, 60)

	// Losing the saved_screeners table makes the screener phase fail
	require.NoError(t, db.Migrator().DropTable(&models.SavedScreener{}))

	_, err := evaluator.RunManual()
	require.Error(t, err)

	stats := evaluator.GetStats()
	assert.EqualValues(t, 1, stats.TotalRuns)
	assert.EqualValues(t, 1, stats.FailedRuns)
	assert.EqualValues(t, 0, stats.SuccessfulRuns)

	var failures int64
	require.NoError(t, db.Model(&models.AuditLog{}).
		Where("entity_type = ? AND action = ?", models.AuditEntitySystem, "cycle_failed").
		Count(&failures).Error)
	assert.EqualValues(t, 1, failures)

	// The loop stays alive: restore the table and the next cycle succeeds
	require.NoError(t, models.MigrateScreenerModels(db))

	_, err = evaluator.RunManual()
	require.NoError(t, err)

	stats = evaluator.GetStats()
	assert.EqualValues(t, 2, stats.TotalRuns)
	assert.EqualValues(t, 1, stats.FailedRuns)
	assert.EqualValues(t, 1, stats.SuccessfulRuns)
}
