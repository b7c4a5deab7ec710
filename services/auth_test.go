package services

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"page-match/config"
	"page-match/security"
)

func newAuthFixture(t *testing.T) *AuthService {
	t.Helper()
	cipher, err := security.NewFieldCipher("test-passphrase", "test-salt")
	if err != nil {
		t.Fatal(err)
	}
	users := NewUserService(newTestDB(t), testLogger(), security.NewConverter(cipher, zap.NewNop()))
	cfg := &config.Config{JWTSecret: "test-secret", JWTTTLHours: 1}
	return NewAuthService(cfg, testLogger(), users)
}

func TestRegisterAndLogin(t *testing.T) {
	auth := newAuthFixture(t)

	user, err := auth.Register("frank", "frank@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.PasswordHash == "hunter2" || user.PasswordHash == "" {
		t.Error("password stored in plaintext")
	}
	if user.Roles != "ROLE_USER" || !user.Enabled {
		t.Errorf("unexpected defaults: %+v", user)
	}

	token, err := auth.Login("frank", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	userID, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if userID != user.ID {
		t.Errorf("token subject %d, want %d", userID, user.ID)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newAuthFixture(t)
	if _, err := auth.Register("frank", "", "hunter2"); err != nil {
		t.Fatal(err)
	}

	if _, err := auth.Login("frank", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, err := auth.Login("nobody", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: got %v", err)
	}
}

func TestParseTokenRejectsForgedToken(t *testing.T) {
	auth := newAuthFixture(t)
	if _, err := auth.Register("frank", "", "hunter2"); err != nil {
		t.Fatal(err)
	}
	token, err := auth.Login("frank", "hunter2")
	if err != nil {
		t.Fatal(err)
	}

	other := newAuthFixture(t)
	other.Config.JWTSecret = "different-secret"
	if _, err := other.ParseToken(token); err == nil {
		t.Error("token signed with another secret must not validate")
	}
	if _, err := auth.ParseToken("not.a.token"); err == nil {
		t.Error("garbage token must not validate")
	}
}
