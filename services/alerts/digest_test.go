package alerts

import (
	"testing"
	"time"

	"portfolio_backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDigest_Grouping(t *testing.T) {
	batch := []models.Alert{
		{AlertType: models.AlertTypePEChange},
		{AlertType: models.AlertTypePEBelow20},
		{AlertType: models.AlertTypeMarketCapChange},
		{AlertType: models.AlertTypeEarningsUpdate},
		{AlertType: models.AlertTypeScreenerMatch},
		{AlertType: models.AlertTypeRevenueGrowth},
		{AlertType: models.AlertTypePriceTarget},
		{AlertType: "dividend_announced"},
	}

	digest := BuildDigest(batch)

	assert.Len(t, digest.ValuationChanges, 3)
	assert.Len(t, digest.EventUpdates, 2)
	assert.Len(t, digest.PortfolioChanges, 2)
	assert.Len(t, digest.Other, 1)

	assert.Equal(t, 8, digest.Summary.Total)
	assert.Equal(t, 3, digest.Summary.Valuation)
	assert.Equal(t, 2, digest.Summary.Event)
	assert.Equal(t, 2, digest.Summary.Portfolio)
	assert.Equal(t, 1, digest.Summary.Other)
}

func TestCreateDailyDigest(t *testing.T) {
	db := newTestDB(t)
	user, company := seedUserAndCompany(t, db)
	svc := NewAlertService(db, nil)

	t.Run("EmptyPeriod", func(t *testing.T) {
		result, err := svc.CreateDailyDigest(user.ID)
		require.NoError(t, err)
		assert.False(t, result.Sent)
		assert.Equal(t, "no_alerts_in_period", result.Reason)
	})

	for _, alertType := range []string{models.AlertTypePEChange, models.AlertTypeEarningsUpdate} {
		params := validParams(user.ID, company.ID)
		params.AlertType = alertType
		_, err := svc.CreateAlert(params)
		require.NoError(t, err)
	}

	// An alert older than the 24h window must not appear
	stale := validParams(user.ID, company.ID)
	stale.AlertType = models.AlertTypePriceTarget
	old, err := svc.CreateAlert(stale)
	require.NoError(t, err)
	require.NoError(t, db.Model(old.Alert).Update("triggered_at", time.Now().Add(-25*time.Hour)).Error)

	t.Run("GroupsRecentAlerts", func(t *testing.T) {
		result, err := svc.CreateDailyDigest(user.ID)
		require.NoError(t, err)
		assert.True(t, result.Sent)
		require.NotNil(t, result.Digest)
		assert.Equal(t, 2, result.Digest.Summary.Total)
		assert.Len(t, result.Digest.ValuationChanges, 1)
		assert.Len(t, result.Digest.EventUpdates, 1)
	})

	t.Run("DoesNotMarkDelivered", func(t *testing.T) {
		var undelivered int64
		db.Model(&models.Alert{}).Where("user_id = ? AND delivered = ?", user.ID, false).Count(&undelivered)
		assert.EqualValues(t, 3, undelivered)
	})
}
