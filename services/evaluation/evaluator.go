package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"portfolio_backend/models"
	"portfolio_backend/services"
	"portfolio_backend/services/alerts"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrMissingParams is returned when a required evaluation input is absent
var ErrMissingParams = errors.New("missing required evaluation parameters")

// StateSnapshot is the measurable state of a condition at evaluation time.
// Unknown keys pass through untouched; the evaluated_at key is ignored
// when diffing so clock noise never counts as a semantic change.
type StateSnapshot = map[string]interface{}

// StateFunc computes the current snapshot for a condition. It must be
// side-effect free; the caller supplies it from already-fetched data.
type StateFunc func() (StateSnapshot, error)

// timestamp fields stripped before state comparison
var timestampKeys = []string{"evaluated_at"}

// Result is the outcome of one condition evaluation
type Result struct {
	Evaluation    *models.ConditionEvaluation `json:"evaluation"`
	StateChanged  bool                        `json:"state_changed"`
	PreviousState StateSnapshot               `json:"previous_state"`
	CurrentState  StateSnapshot               `json:"current_state"`
	Alert         *models.Alert               `json:"alert,omitempty"`
	Suppressed    bool                        `json:"suppressed"`
}

// Service evaluates user-defined conditions, diffs them against the last
// stored snapshot and triggers alerts on change. The evaluation upsert and
// the alert insert share one transaction: either both land or neither does.
type Service struct {
	db     *gorm.DB
	audit  *services.AuditService
	alerts *alerts.AlertService
	policy Policy
}

// NewService creates a condition evaluation service with the default policy
func NewService(db *gorm.DB, alertService *alerts.AlertService) *Service {
	return NewServiceWithPolicy(db, alertService, DefaultPolicy())
}

// NewServiceWithPolicy creates a condition evaluation service with custom
// alert thresholds
func NewServiceWithPolicy(db *gorm.DB, alertService *alerts.AlertService, policy Policy) *Service {
	return &Service{
		db:     db,
		audit:  services.NewAuditService(db),
		alerts: alertService,
		policy: policy,
	}
}

// Evaluate runs one condition for a (user, company, domain, key) tuple:
// read the stored state, compute the current one, diff, upsert and — when
// the state changed — create the alert in the same transaction. The first
// evaluation of a tuple always counts as changed.
func (s *Service) Evaluate(userID, companyID uint, evalType, conditionKey string, compute StateFunc) (*Result, error) {
	if userID == 0 || companyID == 0 || evalType == "" || conditionKey == "" || compute == nil {
		return nil, ErrMissingParams
	}
	if !models.IsValidEvaluationType(evalType) {
		return nil, fmt.Errorf("%w: unknown evaluation type %q", ErrMissingParams, evalType)
	}

	result := &Result{}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var last models.ConditionEvaluation
		err := tx.Where(
			"user_id = ? AND company_id = ? AND evaluation_type = ? AND condition_key = ?",
			userID, companyID, evalType, conditionKey,
		).First(&last).Error
		hasPrior := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to read last evaluation: %w", err)
		}

		current, err := compute()
		if err != nil {
			return fmt.Errorf("state computation failed: %w", err)
		}

		var previous StateSnapshot
		if hasPrior {
			previous = StateSnapshot(last.CurrentState)
		}

		changed := !hasPrior || hasStateChanged(previous, current)

		evaluation := models.ConditionEvaluation{
			UserID:         userID,
			CompanyID:      companyID,
			EvaluationType: evalType,
			ConditionKey:   conditionKey,
			PreviousState:  datatypes.JSONMap(previous),
			CurrentState:   datatypes.JSONMap(current),
			StateChanged:   changed,
			EvaluatedAt:    time.Now(),
		}

		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"},
				{Name: "company_id"},
				{Name: "evaluation_type"},
				{Name: "condition_key"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"previous_state", "current_state", "state_changed", "evaluated_at",
			}),
		}).Create(&evaluation).Error
		if err != nil {
			return fmt.Errorf("failed to store evaluation: %w", err)
		}

		s.audit.LogIn(tx, services.AuditEntry{
			UserID:      &userID,
			EntityType:  models.AuditEntityEvaluation,
			EntityID:    &evaluation.ID,
			Action:      "evaluate",
			Description: fmt.Sprintf("Evaluated condition: %s", conditionKey),
			Metadata: map[string]interface{}{
				"evaluation_type": evalType,
				"condition_key":   conditionKey,
				"state_changed":   changed,
			},
		})

		result.Evaluation = &evaluation
		result.StateChanged = changed
		result.PreviousState = previous
		result.CurrentState = current

		if !changed {
			return nil
		}

		details := s.policy.Details(conditionKey, previous, current)
		created, err := s.alerts.CreateAlertIn(tx, alerts.CreateAlertParams{
			UserID:        userID,
			CompanyID:     companyID,
			AlertType:     conditionKey,
			Severity:      details.Severity,
			Title:         details.Title,
			Description:   details.Description,
			PreviousValue: previous,
			CurrentValue:  current,
			Metadata: mergeMetadata(details.Metadata, map[string]interface{}{
				"evaluation_type": evalType,
				"evaluation_id":   evaluation.ID,
			}),
		})
		if err != nil {
			return err
		}

		result.Alert = created.Alert
		result.Suppressed = created.Suppressed
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Delivery routing happens outside the transaction: a notification
	// failure must not roll back the evaluation or the alert
	if result.Alert != nil && !result.Suppressed {
		if _, err := s.alerts.ProcessAlertDelivery(result.Alert); err != nil {
			log.Printf("Delivery routing failed for alert %d: %v", result.Alert.ID, err)
		}
	}

	return result, nil
}

// hasStateChanged deep-compares two snapshots after stripping timestamp
// fields, using canonical JSON so key order and numeric decoding cannot
// produce phantom diffs
func hasStateChanged(previous, current StateSnapshot) bool {
	if previous == nil {
		return true
	}
	return canonicalState(previous) != canonicalState(current)
}

// canonicalState renders a snapshot as canonical JSON without timestamp keys
func canonicalState(snapshot StateSnapshot) string {
	if snapshot == nil {
		return "null"
	}

	stripped := make(map[string]interface{}, len(snapshot))
	for k, v := range snapshot {
		stripped[k] = v
	}
	for _, key := range timestampKeys {
		delete(stripped, key)
	}

	// Round-trip through JSON so float64/int decoding differences collapse
	raw, err := json.Marshal(stripped)
	if err != nil {
		return fmt.Sprintf("%v", stripped)
	}
	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return string(raw)
	}
	canonical, err := json.Marshal(normalized)
	if err != nil {
		return string(raw)
	}
	return string(canonical)
}

// mergeMetadata overlays extra keys onto a details metadata map
func mergeMetadata(base, extra map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// History returns the most recent evaluations for a user and company
func (s *Service) History(userID, companyID uint, limit int) ([]models.ConditionEvaluation, error) {
	if limit <= 0 {
		limit = 50
	}

	var evaluations []models.ConditionEvaluation
	err := s.db.Where("user_id = ? AND company_id = ?", userID, companyID).
		Order("evaluated_at DESC").
		Limit(limit).
		Find(&evaluations).Error
	if err != nil {
		return nil, err
	}
	return evaluations, nil
}
