package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RefreshService re-synthesizes reader profiles that have gone stale:
// users who rated books after their profile was last generated get a
// fresh profile built from their stored ratings. Runs nightly via cron
// and on demand through the operator endpoint.
type RefreshService struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Profiles *ProfileService
}

// NewRefreshService creates a new RefreshService.
func NewRefreshService(db *gorm.DB, logger *zap.Logger, profiles *ProfileService) *RefreshService {
	return &RefreshService{DB: db, Logger: logger, Profiles: profiles}
}

// RunForAllUsers refreshes every stale profile and returns how many were
// updated. Per-user failures are logged and skipped so one bad account
// does not stall the batch.
func (r *RefreshService) RunForAllUsers(ctx context.Context) (int, error) {
	userIDs, err := r.staleUserIDs()
	if err != nil {
		r.Logger.Error("Failed to determine stale profiles", zap.Error(err))
		return 0, err
	}

	refreshed := 0
	for _, userID := range userIDs {
		if err := r.RunForUser(ctx, userID); err != nil {
			r.Logger.Error("Profile refresh failed", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// RunForUser rebuilds one user's digest from stored ratings and runs it
// through the regular synthesis pipeline.
func (r *RefreshService) RunForUser(ctx context.Context, userID int64) error {
	log := r.Logger.With(zap.Int64("user_id", userID))
	log.Info("Refreshing reader profile from stored ratings.")

	digest, err := r.digestFromRatings(userID)
	if err != nil {
		return err
	}

	existing, err := r.Profiles.FindProfile(userID)
	if err != nil {
		return err
	}
	updated, err := r.Profiles.SynthesizeProfile(ctx, existing, digest)
	if err != nil {
		return err
	}
	_, err = r.Profiles.SaveProfile(userID, updated)
	return err
}

// staleUserIDs returns users whose newest rating postdates their profile,
// plus users with ratings but no profile at all.
func (r *RefreshService) staleUserIDs() ([]int64, error) {
	var ids []int64
	err := r.DB.
		Table("ratings").
		Select("ratings.user_id").
		Joins("LEFT JOIN user_profiles ON user_profiles.id = ratings.user_id").
		Group("ratings.user_id, user_profiles.updated_at").
		Having("user_profiles.updated_at IS NULL OR MAX(ratings.created_at) > user_profiles.updated_at").
		Scan(&ids).Error
	return ids, err
}

// digestFromRatings renders a rating-derived history in the same digest
// format the CSV summarizer produces.
func (r *RefreshService) digestFromRatings(userID int64) (string, error) {
	var rows []struct {
		Title  string
		Author string
		Genre  string
		Stars  int
	}
	err := r.DB.
		Table("ratings").
		Select("books.title, books.author, books.genre, ratings.stars").
		Joins("JOIN books ON books.id = ratings.book_id").
		Where("ratings.user_id = ?", userID).
		Order("ratings.id asc").
		Scan(&rows).Error
	if err != nil {
		return "", err
	}

	authorFreq := newFreqCounter()
	genreFreq := newFreqCounter()
	var highRated strings.Builder
	for _, row := range rows {
		if row.Author != "" {
			authorFreq.add(row.Author)
		}
		if row.Genre != "" {
			genreFreq.add(row.Genre)
		}
		if row.Stars >= 4 {
			highRated.WriteString(row.Title)
			highRated.WriteString(" by ")
			highRated.WriteString(row.Author)
			highRated.WriteString("\n")
		}
	}

	return fmt.Sprintf(
		"Here is a summary of a user's reading habits:\n\n"+
			"Top Authors:\n%s\n\n"+
			"Top Genres/Bookshelves:\n%s\n\n"+
			"A selection of their highly-rated books (4 or 5 stars):\n%s",
		strings.Join(authorFreq.top(topItemLimit), "\n"),
		strings.Join(genreFreq.top(topItemLimit), "\n"),
		highRated.String(),
	), nil
}
