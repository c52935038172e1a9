package alerts

import (
	"testing"

	"portfolio_backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestProcessAlertDelivery_SeverityRouting(t *testing.T) {
	db := newTestDB(t)
	user, company := seedUserAndCompany(t, db)
	notifier := &captureNotifier{}
	svc := NewAlertService(db, notifier)

	cases := []struct {
		name      string
		alertType string
		severity  models.Severity
		immediate bool
	}{
		{"LowGoesToDigest", models.AlertTypePriceTarget, models.SeverityLow, false},
		{"MediumGoesToDigest", models.AlertTypePEChange, models.SeverityMedium, false},
		{"HighDeliversNow", models.AlertTypeRevenueGrowth, models.SeverityHigh, true},
		{"CriticalDeliversNow", models.AlertTypeEarningsUpdate, models.SeverityCritical, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validParams(user.ID, company.ID)
			params.AlertType = tc.alertType
			params.Severity = tc.severity
			created, err := svc.CreateAlert(params)
			require.NoError(t, err)

			sentBefore := len(notifier.payloads)
			result, err := svc.ProcessAlertDelivery(created.Alert)
			require.NoError(t, err)

			var stored models.Alert
			require.NoError(t, db.First(&stored, created.Alert.ID).Error)

			if tc.immediate {
				assert.True(t, result.Delivered)
				assert.Equal(t, "immediate", result.DeliveryType)
				assert.True(t, stored.Delivered)
				assert.NotNil(t, stored.DeliveredAt)
				require.Len(t, notifier.payloads, sentBefore+1)
				assert.Equal(t, "immediate_alert", notifier.payloads[sentBefore].Type)
			} else {
				assert.False(t, result.Delivered)
				assert.Equal(t, ScheduleDailyDigest, result.DeliveryType)
				assert.False(t, stored.Delivered)
				assert.Contains(t, stored.Metadata, "scheduled_delivery")
				assert.Len(t, notifier.payloads, sentBefore)
			}
		})
	}
}

func TestGetPendingAlerts_SeverityOrder(t *testing.T) {
	db := newTestDB(t)
	user, company := seedUserAndCompany(t, db)
	svc := NewAlertService(db, nil)

	severities := []struct {
		alertType string
		severity  models.Severity
	}{
		{models.AlertTypePriceTarget, models.SeverityLow},
		{models.AlertTypeEarningsUpdate, models.SeverityCritical},
		{models.AlertTypePEChange, models.SeverityMedium},
		{models.AlertTypeRevenueGrowth, models.SeverityHigh},
	}
	for _, tc := range severities {
		params := validParams(user.ID, company.ID)
		params.AlertType = tc.alertType
		params.Severity = tc.severity
		_, err := svc.CreateAlert(params)
		require.NoError(t, err)
	}

	pending, err := svc.GetPendingAlerts(user.ID)
	require.NoError(t, err)
	require.Len(t, pending, 4)
	assert.Equal(t, models.SeverityCritical, pending[0].Severity)
	assert.Equal(t, models.SeverityHigh, pending[1].Severity)
	assert.Equal(t, models.SeverityMedium, pending[2].Severity)
	assert.Equal(t, models.SeverityLow, pending[3].Severity)
}

func TestProcessPendingAlerts(t *testing.T) {
	db := newTestDB(t)
	user, company := seedUserAndCompany(t, db)
	notifier := &captureNotifier{}
	svc := NewAlertService(db, notifier)

	t.Run("NothingPending", func(t *testing.T) {
		result, err := svc.ProcessPendingAlerts(user.ID)
		require.NoError(t, err)
		assert.False(t, result.Processed)
		assert.Equal(t, "no_pending_alerts", result.Reason)
	})

	for _, alertType := range []string{models.AlertTypePEChange, models.AlertTypePriceTarget} {
		params := validParams(user.ID, company.ID)
		params.AlertType = alertType
		_, err := svc.CreateAlert(params)
		require.NoError(t, err)
	}

	t.Run("DeliversBatch", func(t *testing.T) {
		result, err := svc.ProcessPendingAlerts(user.ID)
		require.NoError(t, err)
		assert.True(t, result.Processed)
		assert.Equal(t, 2, result.Count)

		require.Len(t, notifier.payloads, 1)
		payload := notifier.payloads[0]
		assert.Equal(t, "batch_alert", payload.Type)
		assert.Len(t, payload.AlertIDs, 2)
		assert.Equal(t, 2, payload.Summary["total"])

		var undelivered int64
		db.Model(&models.Alert{}).Where("user_id = ? AND delivered = ?", user.ID, false).Count(&undelivered)
		assert.EqualValues(t, 0, undelivered)
	})
}

func TestProcessPendingAlerts_PreferenceChangeSuppressesAtDelivery(t *testing.T) {
	db := newTestDB(t)
	user, company := seedUserAndCompany(t, db)
	notifier := &captureNotifier{}
	svc := NewAlertService(db, notifier)

	for _, alertType := range []string{models.AlertTypePEChange, models.AlertTypePriceTarget} {
		params := validParams(user.ID, company.ID)
		params.AlertType = alertType
		params.Severity = models.SeverityLow
		_, err := svc.CreateAlert(params)
		require.NoError(t, err)
	}

	// Tighten the allow-list after the alerts were created
	err := db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("alert_preferences", datatypes.JSONMap{
			"enabled":       true,
			"allowed_types": []interface{}{models.AlertTypePEChange},
		}).Error
	require.NoError(t, err)

	result, err := svc.ProcessPendingAlerts(user.ID)
	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.Equal(t, 1, result.Count)

	require.Len(t, notifier.payloads, 1)
	assert.Len(t, notifier.payloads[0].AlertIDs, 1)

	var suppressed models.Alert
	require.NoError(t, db.Where("user_id = ? AND alert_type = ?",
		user.ID, models.AlertTypePriceTarget).First(&suppressed).Error)
	assert.False(t, suppressed.Active)
	assert.False(t, suppressed.Delivered)
	assert.Contains(t, suppressed.Metadata, "suppression")

	var delivered models.Alert
	require.NoError(t, db.Where("user_id = ? AND alert_type = ?",
		user.ID, models.AlertTypePEChange).First(&delivered).Error)
	assert.True(t, delivered.Delivered)
}
