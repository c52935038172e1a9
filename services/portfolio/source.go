// Package portfolio exposes the holdings data the evaluation engine runs
// against. It only reads; mutation of holdings goes through the normal
// CRUD endpoints.
package portfolio

import (
	"errors"
	"fmt"

	"portfolio_backend/models"

	"gorm.io/gorm"
)

// Holding is a portfolio position joined with company fundamentals
type Holding struct {
	Item        models.PortfolioItem
	Company     models.Company
	Fundamental *models.Fundamental
}

// Source reads portfolio holdings for evaluation cycles
type Source struct {
	db *gorm.DB
}

// NewSource creates a portfolio data source
func NewSource(db *gorm.DB) *Source {
	return &Source{db: db}
}

// UsersWithHoldings returns the distinct user ids that currently have at
// least one portfolio position
func (s *Source) UsersWithHoldings() ([]uint, error) {
	var userIDs []uint
	err := s.db.Model(&models.PortfolioItem{}).
		Distinct("user_id").
		Order("user_id").
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolio users: %w", err)
	}
	return userIDs, nil
}

// Holdings returns a user's positions with company and fundamental data
// attached. Positions whose company has no fundamentals yet come back with
// a nil Fundamental so the caller can skip metric conditions for them.
func (s *Source) Holdings(userID uint) ([]Holding, error) {
	var items []models.PortfolioItem
	err := s.db.Where("user_id = ?", userID).
		Order("company_id").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio items: %w", err)
	}

	holdings := make([]Holding, 0, len(items))
	for _, item := range items {
		var company models.Company
		if err := s.db.First(&company, item.CompanyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load company %d: %w", item.CompanyID, err)
		}

		holding := Holding{Item: item, Company: company}

		var fundamental models.Fundamental
		err := s.db.Where("company_id = ?", item.CompanyID).First(&fundamental).Error
		switch {
		case err == nil:
			holding.Fundamental = &fundamental
		case errors.Is(err, gorm.ErrRecordNotFound):
			// fundamentals not ingested yet, metric conditions are skipped
		default:
			return nil, fmt.Errorf("failed to load fundamentals for company %d: %w", item.CompanyID, err)
		}

		holdings = append(holdings, holding)
	}
	return holdings, nil
}

// WatchedCompanies returns the companies on a user's watchlist
func (s *Source) WatchedCompanies(userID uint) ([]models.Company, error) {
	var companies []models.Company
	err := s.db.Model(&models.Company{}).
		Joins("JOIN watchlist_items ON watchlist_items.company_id = companies.id").
		Where("watchlist_items.user_id = ?", userID).
		Find(&companies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load watchlist: %w", err)
	}
	return companies, nil
}
