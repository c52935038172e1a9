package evaluation

import (
	"fmt"
	"math"

	"portfolio_backend/models"
)

// Policy holds the business thresholds used when turning a detected state
// change into alert details. Values are configurable rather than inlined
// so deployments can tune them without code changes.
type Policy struct {
	PEChangeHighPct        float64 // relative PE change (%) that escalates to high severity
	PEAttractiveBelow      float64 // PE under this is flagged as an attractive valuation
	RevenueGrowthHighPct   float64 // revenue growth (%) that escalates to high severity
	MarketCapChangeHighPct float64 // market cap change (%) that escalates to high severity
}

// DefaultPolicy returns the stock policy thresholds
func DefaultPolicy() Policy {
	return Policy{
		PEChangeHighPct:        20,
		PEAttractiveBelow:      15,
		RevenueGrowthHighPct:   30,
		MarketCapChangeHighPct: 10,
	}
}

// AlertDetails is the rendered alert content for one condition change
type AlertDetails struct {
	Severity    models.Severity
	Title       string
	Description string
	Metadata    map[string]interface{}
}

// Details generates alert details for a condition key from the previous
// and current snapshots. Unknown keys get a generic medium-severity alert.
func (p Policy) Details(conditionKey string, previous, current StateSnapshot) AlertDetails {
	symbol := snapshotString(current, "symbol")

	switch conditionKey {
	case models.AlertTypePEChange:
		oldPE := snapshotFloat(previous, "pe_ratio")
		newPE := snapshotFloat(current, "pe_ratio")
		if oldPE == 0 {
			return AlertDetails{
				Severity:    models.SeverityMedium,
				Title:       fmt.Sprintf("PE Ratio Changed: %s", symbol),
				Description: fmt.Sprintf("PE Ratio changed from %.2f to %.2f (N/A)", oldPE, newPE),
				Metadata:    map[string]interface{}{"old_pe": oldPE, "new_pe": newPE, "change_percent": "N/A"},
			}
		}
		change := (newPE - oldPE) / oldPE * 100
		severity := models.SeverityMedium
		if math.Abs(change) > p.PEChangeHighPct {
			severity = models.SeverityHigh
		}
		return AlertDetails{
			Severity:    severity,
			Title:       fmt.Sprintf("PE Ratio Changed: %s", symbol),
			Description: fmt.Sprintf("PE Ratio changed from %.2f to %.2f (%+.2f%%)", oldPE, newPE, change),
			Metadata:    map[string]interface{}{"old_pe": oldPE, "new_pe": newPE, "change_percent": change},
		}

	case models.AlertTypePEBelow20:
		pe := snapshotFloat(current, "pe_ratio")
		severity := models.SeverityMedium
		description := fmt.Sprintf("PE Ratio is %.2f", pe)
		if pe < p.PEAttractiveBelow {
			severity = models.SeverityHigh
			description += " - Attractive valuation"
		}
		return AlertDetails{
			Severity:    severity,
			Title:       fmt.Sprintf("PE Ratio Alert: %s", symbol),
			Description: description,
			Metadata:    map[string]interface{}{"pe_ratio": pe, "threshold": 20},
		}

	case models.AlertTypeRevenueGrowth:
		growth := snapshotFloat(current, "revenue_growth")
		severity := models.SeverityMedium
		if growth > p.RevenueGrowthHighPct {
			severity = models.SeverityHigh
		}
		return AlertDetails{
			Severity:    severity,
			Title:       fmt.Sprintf("Strong Revenue Growth: %s", symbol),
			Description: fmt.Sprintf("Revenue growth is %.2f%%", growth),
			Metadata:    map[string]interface{}{"revenue_growth": growth, "threshold": p.RevenueGrowthHighPct},
		}

	case models.AlertTypeMarketCapChange:
		oldCap := snapshotFloat(previous, "market_cap")
		newCap := snapshotFloat(current, "market_cap")
		var change float64
		if oldCap != 0 {
			change = (newCap - oldCap) / oldCap * 100
		}
		severity := models.SeverityMedium
		if math.Abs(change) > p.MarketCapChangeHighPct {
			severity = models.SeverityHigh
		}
		return AlertDetails{
			Severity:    severity,
			Title:       fmt.Sprintf("Market Cap Changed: %s", symbol),
			Description: fmt.Sprintf("Market cap changed by %+.2f%%", change),
			Metadata:    map[string]interface{}{"old_market_cap": oldCap, "new_market_cap": newCap, "change_percent": change},
		}

	default:
		return AlertDetails{
			Severity:    models.SeverityMedium,
			Title:       fmt.Sprintf("Condition Changed: %s", conditionKey),
			Description: fmt.Sprintf("The condition %q has changed", conditionKey),
			Metadata:    map[string]interface{}{},
		}
	}
}

// snapshotFloat reads a numeric field from a snapshot, tolerating the
// types JSON decoding produces
func snapshotFloat(snapshot StateSnapshot, key string) float64 {
	if snapshot == nil {
		return 0
	}
	switch v := snapshot[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// snapshotString reads a string field from a snapshot
func snapshotString(snapshot StateSnapshot, key string) string {
	if snapshot == nil {
		return ""
	}
	if v, ok := snapshot[key].(string); ok {
		return v
	}
	return ""
}
