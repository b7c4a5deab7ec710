package services

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"page-match/models"
)

// recentWindow bounds how much history is rendered into the prompt.
const recentWindow = 10

// RecommendationService generates, persists and serves per-user book
// recommendations.
type RecommendationService struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	LLM      LLMClient
	Catalog  *CatalogService
	Profiles *ProfileService
}

// NewRecommendationService creates a new RecommendationService.
func NewRecommendationService(db *gorm.DB, logger *zap.Logger, llm LLMClient, catalog *CatalogService, profiles *ProfileService) *RecommendationService {
	return &RecommendationService{DB: db, Logger: logger, LLM: llm, Catalog: catalog, Profiles: profiles}
}

// SynthesizeRecommendations is the second pipeline entry point: one
// structured model call over profile + situational context + recent
// history, reconciled against the catalog, sanitized and batch-inserted.
//
// A non-conforming or empty model reply yields an empty list and no
// insert; only transport failures surface as errors.
func (r *RecommendationService) SynthesizeRecommendations(ctx context.Context, userID int64, reqCtx models.RequestContext) ([]models.Recommendation, error) {
	profile, err := r.Profiles.FindProfile(userID)
	if err != nil {
		return nil, err
	}

	recent, err := r.RecentByUser(userID, recentWindow)
	if err != nil {
		return nil, err
	}
	ratings, err := r.recentRatings(userID, recentWindow)
	if err != nil {
		return nil, err
	}

	prompt := buildRecommendationPrompt(profile, reqCtx, recent, ratings)

	var reply recommendationListReply
	ok, err := r.LLM.GenerateStruct(ctx, systemPrompt, prompt, "book_recommendations", recommendationListSchema(), &reply)
	if err != nil {
		return nil, err
	}
	if !ok || len(reply.Recommendations) == 0 {
		r.Logger.Info("No recommendations this time", zap.Int64("user_id", userID))
		return []models.Recommendation{}, nil
	}

	recs := make([]models.Recommendation, 0, len(reply.Recommendations))
	for _, proposed := range reply.Recommendations {
		rec := models.Recommendation{
			UserID:        userID,
			BookID:        models.NoCatalogMatch,
			CoverImageURL: "",
			Title:         proposed.Title,
			Author:        proposed.Author,
			Reason:        proposed.Reason,
		}
		// Best-effort catalog match; the sentinel defaults stand on a miss.
		if id, cover := r.Catalog.Reconcile(proposed.Title, proposed.Author); id != models.NoCatalogMatch {
			rec.BookID = id
			rec.CoverImageURL = cover
		}
		rec.Sanitize()
		recs = append(recs, rec)
	}

	// Append-only: every generated batch is inserted as new rows.
	if err := r.DB.Create(&recs).Error; err != nil {
		return nil, err
	}
	r.Logger.Info("Recommendations generated",
		zap.Int64("user_id", userID), zap.Int("count", len(recs)))
	return recs, nil
}

// RecentByUser returns the user's latest recommendations, newest first.
func (r *RecommendationService) RecentByUser(userID int64, limit int) ([]models.Recommendation, error) {
	var recs []models.Recommendation
	err := r.DB.
		Where("user_id = ?", userID).
		Order("id desc").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// HistoryByUser returns the user's full recommendation history, newest first.
func (r *RecommendationService) HistoryByUser(userID int64) ([]models.Recommendation, error) {
	var recs []models.Recommendation
	err := r.DB.Where("user_id = ?", userID).Order("id desc").Find(&recs).Error
	return recs, err
}

// Delete removes a single recommendation row.
func (r *RecommendationService) Delete(id int64) (bool, error) {
	res := r.DB.Delete(&models.Recommendation{}, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteByUser removes all recommendations of a user (the cascade path on
// user deletion).
func (r *RecommendationService) DeleteByUser(userID int64) (int64, error) {
	res := r.DB.Where("user_id = ?", userID).Delete(&models.Recommendation{})
	return res.RowsAffected, res.Error
}

// recentRatings joins the user's latest ratings with catalog titles for
// the prompt.
func (r *RecommendationService) recentRatings(userID int64, limit int) ([]renderedRating, error) {
	var rows []struct {
		Title  string
		Author string
		Stars  int
	}
	err := r.DB.
		Table("ratings").
		Select("books.title, books.author, ratings.stars").
		Joins("JOIN books ON books.id = ratings.book_id").
		Where("ratings.user_id = ?", userID).
		Order("ratings.id desc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]renderedRating, 0, len(rows))
	for _, row := range rows {
		out = append(out, renderedRating{Title: row.Title, Author: row.Author, Stars: row.Stars})
	}
	return out, nil
}
