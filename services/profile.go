package services

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"page-match/models"
)

// ProfileService owns the reader-profile synthesis pipeline: digest the
// uploaded history, ask the model for an updated profile, merge it with
// the stored one and upsert the result.
type ProfileService struct {
	DB         *gorm.DB
	Logger     *zap.Logger
	LLM        LLMClient
	Summarizer *HistorySummarizer
}

// NewProfileService creates a new ProfileService.
func NewProfileService(db *gorm.DB, logger *zap.Logger, llm LLMClient, summarizer *HistorySummarizer) *ProfileService {
	return &ProfileService{DB: db, Logger: logger, LLM: llm, Summarizer: summarizer}
}

// FindProfile loads the profile for a user. A user without a stored
// profile gets an empty in-memory profile keyed by their id; nothing is
// persisted until SaveProfile.
func (p *ProfileService) FindProfile(userID int64) (models.UserProfile, error) {
	var profile models.UserProfile
	err := p.DB.First(&profile, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.EmptyProfile(userID), nil
		}
		return models.UserProfile{}, err
	}
	return profile, nil
}

// SaveProfile upserts the profile row keyed by user id: insert when
// absent, otherwise update the five text columns in place. Concurrent
// saves for the same user resolve last-write-wins.
func (p *ProfileService) SaveProfile(userID int64, profile models.UserProfile) (models.UserProfile, error) {
	profile.ID = userID
	err := p.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"favorite_genres", "favorite_books", "preferred_authors",
			"reading_level", "reader_summary", "updated_at",
		}),
	}).Create(&profile).Error
	if err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}

// SynthesizeProfile merges the history digest and the existing profile
// through one structured model call.
//
// A conforming reply yields a new profile carrying the model's four
// fields; the existing favoriteBooks and the profile identity are always
// preserved. A non-conforming reply degrades to the existing profile
// unchanged. A transport failure propagates once, unretried.
func (p *ProfileService) SynthesizeProfile(ctx context.Context, existing models.UserProfile, digest string) (models.UserProfile, error) {
	prompt := buildProfilePrompt(digest, existing)

	var reply readerProfileReply
	ok, err := p.LLM.GenerateStruct(ctx, systemPrompt, prompt, "reader_profile", readerProfileSchema(), &reply)
	if err != nil {
		return models.UserProfile{}, err
	}
	if !ok {
		p.Logger.Warn("Profile synthesis reply did not conform, keeping existing profile",
			zap.Int64("user_id", existing.ID))
		return existing, nil
	}

	return models.UserProfile{
		ID:               existing.ID,
		CreatedAt:        existing.CreatedAt,
		FavoriteGenres:   reply.FavoriteGenres,
		FavoriteBooks:    existing.FavoriteBooks,
		PreferredAuthors: reply.PreferredAuthors,
		ReadingLevel:     reply.ReadingLevel,
		ReaderSummary:    reply.ReaderSummary,
	}, nil
}

// SynthesizeUserProfile is the upload entry point: raw history rows in,
// persisted profile out. size is the upload size in bytes.
func (p *ProfileService) SynthesizeUserProfile(ctx context.Context, userID int64, history io.Reader, size int64) (models.UserProfile, error) {
	digest, err := p.Summarizer.Summarize(history, size)
	if err != nil {
		return models.UserProfile{}, err
	}

	existing, err := p.FindProfile(userID)
	if err != nil {
		return models.UserProfile{}, err
	}

	updated, err := p.SynthesizeProfile(ctx, existing, digest)
	if err != nil {
		return models.UserProfile{}, err
	}

	saved, err := p.SaveProfile(userID, updated)
	if err != nil {
		return models.UserProfile{}, err
	}
	p.Logger.Info("Reader profile synthesized", zap.Int64("user_id", userID))
	return saved, nil
}
