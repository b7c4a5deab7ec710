package models

import (
	"fmt"
	"strings"
	"time"
)

// UserProfile is the stored, periodically regenerated description of a
// user's literary taste. The primary key IS the owning user's id: one
// profile per user, no surrogate key.
type UserProfile struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FavoriteGenres   string `json:"favorite_genres" gorm:"type:text;not null;default:''"`
	FavoriteBooks    string `json:"favorite_books" gorm:"type:text;not null;default:''"`
	PreferredAuthors string `json:"preferred_authors" gorm:"type:text;not null;default:''"`
	ReadingLevel     string `json:"reading_level" gorm:"type:text;not null;default:''"`
	ReaderSummary    string `json:"reader_summary" gorm:"type:text;not null;default:''"`
}

// TableName sets the explicit table name for GORM.
func (UserProfile) TableName() string {
	return "user_profiles"
}

// EmptyProfile returns an unsaved profile keyed by the given user id. Used
// when a user has no stored profile yet; nothing is persisted until an
// explicit save.
func EmptyProfile(userID int64) UserProfile {
	return UserProfile{ID: userID}
}

// Render produces the textual form of the profile embedded into prompts.
func (p UserProfile) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Favorite Genres: %s\n", p.FavoriteGenres)
	fmt.Fprintf(&b, "Favorite Books: %s\n", p.FavoriteBooks)
	fmt.Fprintf(&b, "Preferred Authors: %s\n", p.PreferredAuthors)
	fmt.Fprintf(&b, "Reading Level: %s\n", p.ReadingLevel)
	fmt.Fprintf(&b, "Reader Summary: %s\n", p.ReaderSummary)
	return b.String()
}
