package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents a mobile-app user
type User struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	Email            string            `gorm:"uniqueIndex;not null" json:"email"`
	Name             string            `json:"name"`
	PasswordHash     string            `json:"-"`
	Role             string            `gorm:"default:'user'" json:"role"` // user, admin
	IsActive         bool              `gorm:"default:true" json:"is_active"`
	AlertPreferences datatypes.JSONMap `json:"alert_preferences"` // enabled flag + allowed alert types
	LastLoginAt      *time.Time        `json:"last_login_at"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// SetPassword hashes and stores the given plaintext password
func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies a plaintext password against the stored hash
func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

// MigrateUserModels runs database migrations for user-related models
func MigrateUserModels(db *gorm.DB) error {
	return db.AutoMigrate(&User{})
}
