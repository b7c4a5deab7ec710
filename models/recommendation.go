package models

import (
	"fmt"
	"strings"
	"time"
)

// NoCatalogMatch is the reserved book id meaning the reconciler found no
// catalog entry for a model-proposed title/author pair. It is stored as
// regular column data and must never be used as a lookup key.
const NoCatalogMatch int64 = -1

// Storage bounds for recommendation text columns. Longer values are
// silently truncated before insert, never rejected.
const (
	MaxTitleLen  = 255
	MaxAuthorLen = 255
	MaxReasonLen = 2000
	MaxCoverLen  = 500
)

// Recommendation is one generated book suggestion. Rows are append-only:
// new suggestions are always inserted, history is never overwritten.
type Recommendation struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	UserID int64 `json:"user_id" gorm:"index;not null"`
	// NoCatalogMatch when the title/author pair matched nothing in the catalog.
	BookID int64 `json:"book_id" gorm:"not null;default:-1"`

	Title         string `json:"title"`
	Author        string `json:"author"`
	CoverImageURL string `json:"cover_image_url,omitempty"`
	Reason        string `json:"reason" gorm:"type:text"`
}

// TableName sets the explicit table name for GORM.
func (Recommendation) TableName() string {
	return "recommendations"
}

// Sanitize clamps all text fields to their storage bounds.
func (r *Recommendation) Sanitize() {
	r.Title = truncate(r.Title, MaxTitleLen)
	r.Author = truncate(r.Author, MaxAuthorLen)
	r.Reason = truncate(r.Reason, MaxReasonLen)
	r.CoverImageURL = truncate(r.CoverImageURL, MaxCoverLen)
}

// truncate caps s at max characters, never splitting a multibyte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Render produces the short textual form used in the "recent
// recommendations" section of the prompt.
func (r Recommendation) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s by %s", r.Title, r.Author)
	if r.Reason != "" {
		fmt.Fprintf(&b, " (reason: %s)", r.Reason)
	}
	return b.String()
}
