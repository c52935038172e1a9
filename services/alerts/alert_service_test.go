package alerts

import (
	"testing"
	"time"

	"portfolio_backend/models"
	"portfolio_backend/services/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// captureNotifier records payloads instead of sending them
type captureNotifier struct {
	payloads []notify.Payload
}

func (c *captureNotifier) Send(p notify.Payload) error {
	c.payloads = append(c.payloads, p)
	return nil
}

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

func seedUserAndCompany(t *testing.T, db *gorm.DB) (*models.User, *models.Company) {
	t.Helper()

	user := &models.User{Email: "investor@example.com", Name: "Investor"}
	require.NoError(t, db.Create(user).Error)

	company := &models.Company{Symbol: "ACME", Name: "Acme Corp", Sector: "Technology"}
	require.NoError(t, db.Create(company).Error)

	return user, company
}

func validParams(userID, companyID uint) CreateAlertParams {
	return CreateAlertParams{
		UserID:      userID,
		CompanyID:   companyID,
		AlertType:   models.AlertTypePEChange,
		Severity:    models.SeverityMedium,
		Title:       "PE Ratio Changed: ACME",
		Description: "PE Ratio changed from 12.00 to 14.00 (+16.67%)",
	}
}

func TestCreateAlert_Validation(t *testing.T) {
	db := newTestDB(t)
	user, company := seedUserAndCompany(t, db)
	svc := NewAlertService(db, nil)

	t.Run("MissingFields", func(t *testing.T) {
		params := validParams(user.ID, company.ID)
		params.Title = ""
		_, err := svc.CreateAlert(params)
		assert.ErrorIs(t, err, ErrMissingFields)
	})

	t.Run("InvalidSeverity", func(t *testing.T) {
		params := validParams(user.ID, company.ID)
		params.Severity = "urgent"
		_, err := svc.CreateAlert(params)
		assert.ErrorIs(t, err, ErrInvalidSeverity)
	})

	t.Run("Valid", func(t *testing.T) {
		result, err := svc.CreateAlert(validParams(user.ID, company.ID))
		require.NoError(t, err)
		assert.False(t, result.Suppressed)
		require.NotNil(t, result.Alert)
		assert.True(t, result.Alert.Active)
		assert.WithinDuration(t, time.Now().Add(models.DefaultAlertExpiry), result.Alert.ExpiresAt, time.Minute)
	})
}

func TestCreateAlert_CooldownSuppression(t *testing.T) {
	db := newTestDB(t)
	user, company := seedUserAndCompany(t, db)
	svc := NewAlertService(db, nil)

	first, err := svc.CreateAlert(validParams(user.ID, company.ID))
	require.NoError(t, err)
	require.False(t, first.Suppressed)

	// Same tuple again inside the window: no new row
	second, err := svc.CreateAlert(validParams(user.ID, company.ID))
	require.NoError(t, err)
	assert.True(t, second.Suppressed)
	assert.Equal(t, SuppressReasonCooldown, second.Reason)
	assert.Nil(t, second.Alert)
	require.NotNil(t, second.CooldownUntil)
	assert.WithinDuration(t, first.Alert.TriggeredAt.Add(svc.CooldownFor(models.AlertTypePEChange)),
		*second.CooldownUntil, time.Second)

	var count int64
	db.Model(&models.Alert{}).Count(&count)
	assert.EqualValues(t, 1, count)

	// A different alert type for the same company is unaffected
	other := validParams(user.ID, company.ID)
	other.AlertType = models.AlertTypeRevenueGrowth
	third, err := svc.CreateAlert(other)
	require.NoError(t, err)
	assert.False(t, third.Suppressed)
}

func TestCreateAlert_CooldownExpiry(t *testing.T) {
	db := newTestDB(t)
	user, company := seedUserAndCompany(t, db)
	svc := NewAlertService(db, nil)

	first, err := svc.CreateAlert(validParams(user.ID, company.ID))
	require.NoError(t, err)

	// Backdate the previous alert past the window
	stale := time.Now().Add(-svc.CooldownFor(models.AlertTypePEChange) - time.Minute)
	require.NoError(t, db.Model(first.Alert).Update("triggered_at", stale).Error)

	second, err := svc.CreateAlert(validParams(user.ID, company.ID))
	require.NoError(t, err)
	assert.False(t, second.Suppressed)
	require.NotNil(t, second.Alert)
	assert.NotEqual(t, first.Alert.ID, second.Alert.ID)
}

func TestCreateAlert_PreferenceGate(t *testing.T) {
	db := newTestDB(t)
	user, company := seedUserAndCompany(t, db)
	svc := NewAlertService(db, nil)

	// Only revenue growth alerts allowed
	require.NoError(t, db.Model(user).Update("alert_preferences", datatypes.JSONMap{
		"enabled":       true,
		"allowed_types": []interface{}{models.AlertTypeRevenueGrowth},
	}).Error)

	result, err := svc.CreateAlert(validParams(user.ID, company.ID))
	require.NoError(t, err)
	assert.True(t, result.Suppressed)
	assert.Equal(t, SuppressReasonPreferences, result.Reason)

	// The row is kept, but inactive and marked with the suppression reason
	require.NotNil(t, result.Alert)
	var stored models.Alert
	require.NoError(t, db.First(&stored, result.Alert.ID).Error)
	assert.False(t, stored.Active)
	suppression, ok := stored.Metadata["suppression"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, SuppressReasonPreferences, suppression["reason"])
}

func TestPreferences_Allows(t *testing.T) {
	assert.True(t, Allows(DefaultPreferences(), models.AlertTypePEChange))
	assert.False(t, Allows(Preferences{Enabled: false}, models.AlertTypePEChange))
	assert.True(t, Allows(Preferences{Enabled: true}, "anything_at_all"))
	assert.False(t, Allows(Preferences{
		Enabled:      true,
		AllowedTypes: []string{models.AlertTypePriceTarget},
	}, models.AlertTypePEChange))
}

func TestAlertLifecycle_OwnershipIsolation(t *testing.T) {
	db := newTestDB(t)
	user, company := seedUserAndCompany(t, db)
	other := &models.User{Email: "other@example.com"}
	require.NoError(t, db.Create(other).Error)

	svc := NewAlertService(db, nil)
	result, err := svc.CreateAlert(validParams(user.ID, company.ID))
	require.NoError(t, err)
	alertID := result.Alert.ID

	t.Run("WrongUserCannotRead", func(t *testing.T) {
		_, err := svc.MarkAsRead(alertID, other.ID)
		assert.ErrorIs(t, err, ErrAlertNotFound)
	})

	t.Run("WrongUserCannotAcknowledge", func(t *testing.T) {
		_, err := svc.AcknowledgeAlert(alertID, other.ID)
		assert.ErrorIs(t, err, ErrAlertNotFound)
	})

	t.Run("WrongUserCannotDismiss", func(t *testing.T) {
		_, err := svc.DismissAlert(alertID, other.ID)
		assert.ErrorIs(t, err, ErrAlertNotFound)
	})

	t.Run("OwnerLifecycle", func(t *testing.T) {
		read, err := svc.MarkAsRead(alertID, user.ID)
		require.NoError(t, err)
		assert.True(t, read.Read)

		acked, err := svc.AcknowledgeAlert(alertID, user.ID)
		require.NoError(t, err)
		assert.True(t, acked.Acknowledged)
		assert.NotNil(t, acked.AcknowledgedAt)

		dismissed, err := svc.DismissAlert(alertID, user.ID)
		require.NoError(t, err)
		assert.False(t, dismissed.Active)
	})

	t.Run("OtherUserSeesNothing", func(t *testing.T) {
		alerts, err := svc.GetUserAlerts(other.ID, false)
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})
}

func TestGetAlertStats(t *testing.T) {
	db := newTestDB(t)
	user, company := seedUserAndCompany(t, db)
	svc := NewAlertService(db, nil)

	types := []struct {
		alertType string
		severity  models.Severity
	}{
		{models.AlertTypePEChange, models.SeverityMedium},
		{models.AlertTypeRevenueGrowth, models.SeverityHigh},
		{models.AlertTypeEarningsUpdate, models.SeverityCritical},
	}
	for _, tc := range types {
		params := validParams(user.ID, company.ID)
		params.AlertType = tc.alertType
		params.Severity = tc.severity
		_, err := svc.CreateAlert(params)
		require.NoError(t, err)
	}

	stats, err := svc.GetAlertStats(user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalActive)
	assert.EqualValues(t, 3, stats.UnreadCount)
	assert.EqualValues(t, 1, stats.HighCount)
	assert.EqualValues(t, 1, stats.CriticalCount)
}

func TestCleanupExpiredAlerts(t *testing.T) {
	db := newTestDB(t)
	user, company := seedUserAndCompany(t, db)
	svc := NewAlertService(db, nil)

	fresh, err := svc.CreateAlert(validParams(user.ID, company.ID))
	require.NoError(t, err)

	expired := validParams(user.ID, company.ID)
	expired.AlertType = models.AlertTypeEarningsUpdate
	old, err := svc.CreateAlert(expired)
	require.NoError(t, err)
	require.NoError(t, db.Model(old.Alert).Update("expires_at", time.Now().Add(-time.Hour)).Error)

	removed, err := svc.CleanupExpiredAlerts()
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	var remaining []models.Alert
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.Alert.ID, remaining[0].ID)
}
