package services

import (
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"page-match/models"
)

// CatalogService answers read-only lookups against the book catalog,
// including reconciliation of model-proposed books.
type CatalogService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(db *gorm.DB, logger *zap.Logger) *CatalogService {
	return &CatalogService{DB: db, Logger: logger}
}

// BooksByTitleAndAuthor returns catalog entries whose title AND author
// both contain the given fragments, case-insensitively, in stable id order.
func (c *CatalogService) BooksByTitleAndAuthor(title, author string) ([]models.Book, error) {
	var books []models.Book
	err := c.DB.
		Where("LOWER(title) LIKE ? AND LOWER(author) LIKE ?",
			"%"+strings.ToLower(title)+"%",
			"%"+strings.ToLower(author)+"%").
		Order("id asc").
		Find(&books).Error
	return books, err
}

// Reconcile maps a model-proposed (title, author) pair to a catalog entry.
// The model may invent or slightly misname books, so this is best-effort:
// the first substring match wins, and a miss yields models.NoCatalogMatch
// with an empty cover reference rather than an error.
func (c *CatalogService) Reconcile(title, author string) (int64, string) {
	var book models.Book
	err := c.DB.
		Where("LOWER(title) LIKE ? AND LOWER(author) LIKE ?",
			"%"+strings.ToLower(title)+"%",
			"%"+strings.ToLower(author)+"%").
		Order("id asc").
		First(&book).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.Logger.Warn("Catalog lookup failed during reconciliation",
				zap.String("title", title), zap.String("author", author), zap.Error(err))
		}
		return models.NoCatalogMatch, ""
	}
	return book.ID, book.CoverImageURL
}
