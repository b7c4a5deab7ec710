package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"page-match/config"
	"page-match/models"
)

// ErrInvalidCredentials is returned for a failed login.
var ErrInvalidCredentials = errors.New("invalid username or password")

// AuthService handles registration and login-token issuance.
type AuthService struct {
	Config *config.Config
	Logger *zap.Logger
	Users  *UserService
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, logger *zap.Logger, users *UserService) *AuthService {
	return &AuthService{Config: cfg, Logger: logger, Users: users}
}

// Register creates an account with a bcrypt-hashed password.
func (a *AuthService) Register(username, email, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Roles:        "ROLE_USER",
		Enabled:      true,
	}
	if err := a.Users.Create(user); err != nil {
		return nil, err
	}
	a.Logger.Info("User registered", zap.String("username", username))
	return user, nil
}

// Login verifies the credentials and issues a signed HS256 token whose
// subject is the user id.
func (a *AuthService) Login(username, password string) (string, error) {
	user, err := a.Users.GetByUsername(username)
	if err != nil {
		return "", err
	}
	if user == nil || !user.Enabled {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", user.ID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(a.Config.JWTTTLHours) * time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.Config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token and returns the user id it was issued for.
func (a *AuthService) ParseToken(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.Config.JWTSecret), nil
	})
	if err != nil {
		return 0, err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return 0, errors.New("invalid token")
	}
	var userID int64
	if _, err := fmt.Sscanf(claims.Subject, "%d", &userID); err != nil {
		return 0, fmt.Errorf("invalid subject claim: %w", err)
	}
	return userID, nil
}
