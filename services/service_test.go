package services

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"page-match/models"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Book{}, &models.User{}, &models.UserProfile{},
		&models.Rating{}, &models.Recommendation{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeLLM is a canned LLMClient. When ok is true the reply value is
// marshaled into out; lastUser records the most recent user prompt.
type fakeLLM struct {
	ok       bool
	err      error
	reply    any
	lastUser string
}

func (f *fakeLLM) GenerateStruct(ctx context.Context, system, user, schemaName string, schema map[string]any, out any) (bool, error) {
	f.lastUser = user
	if f.err != nil {
		return false, f.err
	}
	if !f.ok {
		return false, nil
	}
	raw, err := json.Marshal(f.reply)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, nil
	}
	return true, nil
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
