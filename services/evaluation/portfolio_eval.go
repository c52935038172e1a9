package evaluation

import (
	"fmt"
	"log"
	"time"

	"portfolio_backend/models"
	"portfolio_backend/services/portfolio"
)

// PortfolioRunReport summarizes one user's portfolio evaluation pass
type PortfolioRunReport struct {
	UserID          uint `json:"user_id"`
	HoldingsChecked int  `json:"holdings_checked"`
	Evaluations     int  `json:"evaluations"`
	StateChanges    int  `json:"state_changes"`
	AlertsTriggered int  `json:"alerts_triggered"`
}

// portfolio conditions checked per holding
const (
	ConditionPEChange      = models.AlertTypePEChange
	ConditionRevenueGrowth = models.AlertTypeRevenueGrowth
)

// EvaluateUserPortfolio runs the metric conditions for every holding of a
// user. A failure on one holding is logged and skipped so the rest of the
// portfolio still gets evaluated.
func (s *Service) EvaluateUserPortfolio(userID uint, source *portfolio.Source) (*PortfolioRunReport, error) {
	holdings, err := source.Holdings(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings for user %d: %w", userID, err)
	}

	report := &PortfolioRunReport{UserID: userID, HoldingsChecked: len(holdings)}

	for _, holding := range holdings {
		if holding.Fundamental == nil {
			continue
		}
		fund := holding.Fundamental

		symbol := holding.Company.Symbol
		conditions := map[string]StateFunc{
			ConditionPEChange: func() (StateSnapshot, error) {
				return StateSnapshot{
					"symbol":       symbol,
					"pe_ratio":     fund.PERatio.InexactFloat64(),
					"evaluated_at": time.Now().Format(time.RFC3339),
				}, nil
			},
			ConditionRevenueGrowth: func() (StateSnapshot, error) {
				return StateSnapshot{
					"symbol":         symbol,
					"revenue_growth": fund.RevenueGrowth.InexactFloat64(),
					"evaluated_at":   time.Now().Format(time.RFC3339),
				}, nil
			},
		}

		for conditionKey, compute := range conditions {
			result, err := s.Evaluate(userID, holding.Company.ID, models.EvaluationTypePortfolio, conditionKey, compute)
			if err != nil {
				log.Printf("Evaluation failed for user %d company %s condition %s: %v",
					userID, holding.Company.Symbol, conditionKey, err)
				continue
			}
			report.Evaluations++
			if result.StateChanged {
				report.StateChanges++
			}
			if result.Alert != nil && !result.Suppressed {
				report.AlertsTriggered++
			}
		}
	}

	return report, nil
}
