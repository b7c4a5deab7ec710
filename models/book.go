package models

import (
	"time"
)

// Book is a catalog entry. The catalog is maintained through the CRUD
// endpoints; the recommendation pipeline only reads it.
type Book struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title         string  `json:"title" gorm:"not null;index"`
	Author        string  `json:"author" gorm:"not null;index"`
	Genre         string  `json:"genre,omitempty" gorm:"index"`
	AverageRating float64 `json:"average_rating"`
	Synopsis      string  `json:"synopsis,omitempty" gorm:"type:text"`
	CoverImageURL string  `json:"cover_image_url,omitempty" gorm:"column:cover_image_url"`
}

// TableName sets the explicit table name for GORM.
func (Book) TableName() string {
	return "books"
}
