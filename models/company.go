package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Company represents a listed company tracked by the platform
type Company struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"uniqueIndex;not null" json:"symbol"`
	Name      string    `json:"name"`
	Exchange  string    `json:"exchange"` // NSE, BSE, NASDAQ
	Industry  string    `json:"industry"`
	Sector    string    `json:"sector"`
	Status    string    `gorm:"default:'active'" json:"status"` // active, delisted, suspended
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Fundamental stores the latest fundamental metrics for a company.
// Rows are maintained by the market-data import jobs; this service only reads them.
type Fundamental struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	CompanyID     uint            `gorm:"uniqueIndex" json:"company_id"`
	Company       Company         `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	Symbol        string          `gorm:"index" json:"symbol"`
	PERatio       decimal.Decimal `gorm:"type:decimal(15,4)" json:"pe_ratio"`
	RevenueGrowth decimal.Decimal `gorm:"type:decimal(10,4)" json:"revenue_growth"`
	MarketCap     decimal.Decimal `gorm:"type:decimal(20,2)" json:"market_cap"`
	EPS           decimal.Decimal `gorm:"type:decimal(15,4)" json:"eps"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PortfolioItem represents one position held by a user
type PortfolioItem struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"index;uniqueIndex:idx_portfolio_user_company" json:"user_id"`
	User      User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CompanyID uint            `gorm:"uniqueIndex:idx_portfolio_user_company" json:"company_id"`
	Company   Company         `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4)" json:"quantity"`
	AvgCost   decimal.Decimal `gorm:"type:decimal(15,2)" json:"avg_cost"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// WatchlistItem represents a company a user is watching without holding it
type WatchlistItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;uniqueIndex:idx_watchlist_user_company" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CompanyID uint      `gorm:"uniqueIndex:idx_watchlist_user_company" json:"company_id"`
	Company   Company   `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MigrateCompanyModels runs database migrations for company-related models
func MigrateCompanyModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Company{},
		&Fundamental{},
		&PortfolioItem{},
		&WatchlistItem{},
	)
}
