package screener

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"portfolio_backend/models"

	"gorm.io/gorm"
)

// Screener provides company filtering over fundamentals
type Screener struct {
	db *gorm.DB
}

// NewScreener creates a new screener instance
func NewScreener(db *gorm.DB) *Screener {
	return &Screener{db: db}
}

// Filter represents filter criteria for company screening
type Filter struct {
	Sectors          []string `json:"sectors"`            // Finance, Technology, etc.
	MinPERatio       *float64 `json:"min_pe_ratio"`       // Minimum P/E ratio
	MaxPERatio       *float64 `json:"max_pe_ratio"`       // Maximum P/E ratio
	MinRevenueGrowth *float64 `json:"min_revenue_growth"` // Minimum revenue growth %
	MaxRevenueGrowth *float64 `json:"max_revenue_growth"` // Maximum revenue growth %
	MinMarketCap     *float64 `json:"min_market_cap"`     // Minimum market cap
	MaxMarketCap     *float64 `json:"max_market_cap"`     // Maximum market cap
	MinEPS           *float64 `json:"min_eps"`            // Minimum earnings per share
	SortBy           string   `json:"sort_by"`            // pe_ratio, revenue_growth, market_cap, symbol
	SortOrder        string   `json:"sort_order"`         // asc, desc
	Limit            int      `json:"limit"`
}

// Match is a company that passed the screen, with the metrics it matched on
type Match struct {
	Company         models.Company     `json:"company"`
	Fundamental     models.Fundamental `json:"fundamental"`
	MatchedCriteria []string           `json:"matched_criteria"`
}

// ParseFilter decodes a stored screener filter definition
func ParseFilter(raw []byte) (*Filter, error) {
	var filter Filter
	if err := json.Unmarshal(raw, &filter); err != nil {
		return nil, fmt.Errorf("invalid screener filter: %w", err)
	}
	return &filter, nil
}

// Screen applies the filter against companies with fundamentals and returns
// the matches sorted and truncated to the filter's limit
func (s *Screener) Screen(filter *Filter) ([]Match, error) {
	if filter == nil {
		return nil, fmt.Errorf("screener filter is required")
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.SortOrder == "" {
		filter.SortOrder = "desc"
	}
	if filter.SortBy == "" {
		filter.SortBy = "market_cap"
	}

	query := s.db.Model(&models.Fundamental{}).
		Joins("JOIN companies ON companies.id = fundamentals.company_id")

	if len(filter.Sectors) > 0 {
		query = query.Where("companies.sector IN ?", filter.Sectors)
	}
	if filter.MinPERatio != nil {
		query = query.Where("fundamentals.pe_ratio >= ?", *filter.MinPERatio)
	}
	if filter.MaxPERatio != nil {
		query = query.Where("fundamentals.pe_ratio <= ?", *filter.MaxPERatio)
	}
	if filter.MinRevenueGrowth != nil {
		query = query.Where("fundamentals.revenue_growth >= ?", *filter.MinRevenueGrowth)
	}
	if filter.MaxRevenueGrowth != nil {
		query = query.Where("fundamentals.revenue_growth <= ?", *filter.MaxRevenueGrowth)
	}
	if filter.MinMarketCap != nil {
		query = query.Where("fundamentals.market_cap >= ?", *filter.MinMarketCap)
	}
	if filter.MaxMarketCap != nil {
		query = query.Where("fundamentals.market_cap <= ?", *filter.MaxMarketCap)
	}
	if filter.MinEPS != nil {
		query = query.Where("fundamentals.eps >= ?", *filter.MinEPS)
	}

	var fundamentals []models.Fundamental
	if err := query.Find(&fundamentals).Error; err != nil {
		return nil, fmt.Errorf("screener query failed: %w", err)
	}

	matches := make([]Match, 0, len(fundamentals))
	for _, fund := range fundamentals {
		var company models.Company
		if err := s.db.First(&company, fund.CompanyID).Error; err != nil {
			continue
		}
		matches = append(matches, Match{
			Company:         company,
			Fundamental:     fund,
			MatchedCriteria: matchedCriteria(filter, fund),
		})
	}

	sortMatches(matches, filter.SortBy, filter.SortOrder)

	if len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

// matchedCriteria names the filter criteria a fundamental row satisfied
func matchedCriteria(filter *Filter, fund models.Fundamental) []string {
	var criteria []string
	if filter.MinPERatio != nil || filter.MaxPERatio != nil {
		criteria = append(criteria, fmt.Sprintf("pe_ratio=%s", fund.PERatio.StringFixed(2)))
	}
	if filter.MinRevenueGrowth != nil || filter.MaxRevenueGrowth != nil {
		criteria = append(criteria, fmt.Sprintf("revenue_growth=%s%%", fund.RevenueGrowth.StringFixed(1)))
	}
	if filter.MinMarketCap != nil || filter.MaxMarketCap != nil {
		criteria = append(criteria, fmt.Sprintf("market_cap=%s", fund.MarketCap.StringFixed(0)))
	}
	if filter.MinEPS != nil {
		criteria = append(criteria, fmt.Sprintf("eps=%s", fund.EPS.StringFixed(2)))
	}
	return criteria
}

func sortMatches(matches []Match, sortBy, sortOrder string) {
	less := func(a, b Match) bool {
		switch strings.ToLower(sortBy) {
		case "pe_ratio":
			return a.Fundamental.PERatio.LessThan(b.Fundamental.PERatio)
		case "revenue_growth":
			return a.Fundamental.RevenueGrowth.LessThan(b.Fundamental.RevenueGrowth)
		case "symbol":
			return a.Company.Symbol < b.Company.Symbol
		default: // market_cap
			return a.Fundamental.MarketCap.LessThan(b.Fundamental.MarketCap)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if strings.ToLower(sortOrder) == "asc" {
			return less(matches[i], matches[j])
		}
		return less(matches[j], matches[i])
	})
}
