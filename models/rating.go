package models

import (
	"time"
)

// Rating is a user's 1-5 star rating of a catalog book.
type Rating struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	UserID int64 `json:"user_id" gorm:"index;not null"`
	BookID int64 `json:"book_id" gorm:"index;not null"`
	Stars  int   `json:"stars" gorm:"not null"`
}

// TableName sets the explicit table name for GORM.
func (Rating) TableName() string {
	return "ratings"
}
