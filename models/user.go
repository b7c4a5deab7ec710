package models

import (
	"time"
)

// User is an account row. Email is encrypted at rest by the user service
// through security.Converter; the struct always carries the plaintext.
type User struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username     string `json:"username" gorm:"uniqueIndex;not null"`
	Email        string `json:"email" gorm:"type:text"`
	PasswordHash string `json:"-" gorm:"column:password_hash"`
	Roles        string `json:"roles" gorm:"not null;default:ROLE_USER"`
	Enabled      bool   `json:"enabled" gorm:"not null;default:true"`
}

// TableName sets the explicit table name for GORM.
func (User) TableName() string {
	return "users"
}
