package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"page-match/models"
)

func newRefreshFixture(t *testing.T, llm *fakeLLM) *RefreshService {
	t.Helper()
	db := newTestDB(t)
	profiles := NewProfileService(db, testLogger(), llm, NewHistorySummarizer(testLogger()))
	return NewRefreshService(db, testLogger(), profiles)
}

func seedRatedBook(t *testing.T, r *RefreshService, userID int64, title, author, genre string, stars int) {
	t.Helper()
	book := models.Book{Title: title, Author: author, Genre: genre}
	if err := r.DB.Create(&book).Error; err != nil {
		t.Fatal(err)
	}
	if err := r.DB.Create(&models.Rating{UserID: userID, BookID: book.ID, Stars: stars}).Error; err != nil {
		t.Fatal(err)
	}
}

func TestRunForUserBuildsDigestFromRatings(t *testing.T) {
	llm := &fakeLLM{
		ok: true,
		reply: readerProfileReply{
			FavoriteGenres: "Science Fiction",
			ReaderSummary:  "Refreshed.",
		},
	}
	refresh := newRefreshFixture(t, llm)
	seedRatedBook(t, refresh, 1, "Dune", "Frank Herbert", "science-fiction", 5)
	seedRatedBook(t, refresh, 1, "The Hobbit", "J.R.R. Tolkien", "fantasy", 3)

	if err := refresh.RunForUser(context.Background(), 1); err != nil {
		t.Fatalf("RunForUser: %v", err)
	}

	// The rating-derived digest matches the CSV digest shape: only books
	// rated 4+ appear in the highly-rated section.
	if !strings.Contains(llm.lastUser, "Dune by Frank Herbert") {
		t.Errorf("highly-rated book missing from digest:\n%s", llm.lastUser)
	}
	if strings.Contains(llm.lastUser, "The Hobbit by J.R.R. Tolkien") {
		t.Errorf("3-star book leaked into highly-rated section:\n%s", llm.lastUser)
	}
	if !strings.Contains(llm.lastUser, "Top Genres/Bookshelves:\nscience-fiction\nfantasy") {
		t.Errorf("genres missing from digest:\n%s", llm.lastUser)
	}

	var stored models.UserProfile
	if err := refresh.DB.First(&stored, "id = ?", 1).Error; err != nil {
		t.Fatalf("refreshed profile not persisted: %v", err)
	}
	if stored.ReaderSummary != "Refreshed." {
		t.Errorf("persisted profile wrong: %+v", stored)
	}
}

func TestRunForAllUsersOnlyTouchesStaleProfiles(t *testing.T) {
	llm := &fakeLLM{ok: true, reply: readerProfileReply{ReaderSummary: "fresh"}}
	refresh := newRefreshFixture(t, llm)

	// User 1 rated after their profile was saved: stale.
	if err := refresh.DB.Create(&models.UserProfile{ID: 1, UpdatedAt: time.Now().Add(-time.Hour)}).Error; err != nil {
		t.Fatal(err)
	}
	seedRatedBook(t, refresh, 1, "Dune", "Frank Herbert", "sf", 5)

	// User 2 has ratings but no profile at all: stale.
	seedRatedBook(t, refresh, 2, "The Hobbit", "J.R.R. Tolkien", "fantasy", 4)

	// User 3's profile postdates their ratings: fresh.
	seedRatedBook(t, refresh, 3, "Emma", "Jane Austen", "classics", 5)
	if err := refresh.DB.Create(&models.UserProfile{ID: 3, UpdatedAt: time.Now().Add(time.Hour)}).Error; err != nil {
		t.Fatal(err)
	}

	count, err := refresh.RunForAllUsers(context.Background())
	if err != nil {
		t.Fatalf("RunForAllUsers: %v", err)
	}
	if count != 2 {
		t.Errorf("refreshed %d profiles, want 2", count)
	}
}

func TestRunForAllUsersSkipsFailingUser(t *testing.T) {
	// Transport failure on every call: no user can refresh, but the batch
	// itself still completes.
	llm := &fakeLLM{err: context.DeadlineExceeded}
	refresh := newRefreshFixture(t, llm)
	seedRatedBook(t, refresh, 1, "Dune", "Frank Herbert", "sf", 5)
	seedRatedBook(t, refresh, 2, "Emma", "Jane Austen", "classics", 5)

	count, err := refresh.RunForAllUsers(context.Background())
	if err != nil {
		t.Fatalf("batch must not fail on per-user errors: %v", err)
	}
	if count != 0 {
		t.Errorf("refreshed %d profiles, want 0", count)
	}
}
