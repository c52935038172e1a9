package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Evaluation domain tags
const (
	EvaluationTypePortfolio = "portfolio"
	EvaluationTypeScreener  = "screener"
	EvaluationTypeWatchlist = "watchlist"
)

// ValidEvaluationTypes returns the recognized evaluation domains
func ValidEvaluationTypes() []string {
	return []string{EvaluationTypePortfolio, EvaluationTypeScreener, EvaluationTypeWatchlist}
}

// IsValidEvaluationType checks if the evaluation type is valid
func IsValidEvaluationType(evalType string) bool {
	for _, valid := range ValidEvaluationTypes() {
		if evalType == valid {
			return true
		}
	}
	return false
}

// ConditionEvaluation holds the last-known state of one condition for one
// (user, company, evaluation type, condition key) tuple. Each cycle upserts
// the row in place; at most one current row exists per tuple.
type ConditionEvaluation struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	UserID         uint              `gorm:"uniqueIndex:idx_eval_tuple" json:"user_id"`
	User           User              `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CompanyID      uint              `gorm:"uniqueIndex:idx_eval_tuple" json:"company_id"`
	Company        Company           `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	EvaluationType string            `gorm:"uniqueIndex:idx_eval_tuple" json:"evaluation_type"`
	ConditionKey   string            `gorm:"uniqueIndex:idx_eval_tuple" json:"condition_key"`
	PreviousState  datatypes.JSONMap `json:"previous_state"`
	CurrentState   datatypes.JSONMap `json:"current_state"`
	StateChanged   bool              `json:"state_changed"`
	EvaluatedAt    time.Time         `gorm:"index" json:"evaluated_at"`
	CreatedAt      time.Time         `json:"created_at"`
}

// MigrateEvaluationModels runs database migrations for evaluation models
func MigrateEvaluationModels(db *gorm.DB) error {
	return db.AutoMigrate(&ConditionEvaluation{})
}
