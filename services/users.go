package services

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"page-match/models"
	"page-match/security"
)

// ErrUsernameTaken is returned when registering a username that exists.
var ErrUsernameTaken = errors.New("username already exists")

// UserService owns account rows. Email addresses are encrypted before
// they reach the database and decrypted on the way out; a stale or
// corrupted ciphertext degrades that one field to "" instead of failing
// the read.
type UserService struct {
	DB        *gorm.DB
	Logger    *zap.Logger
	Converter *security.Converter
}

// NewUserService creates a new UserService.
func NewUserService(db *gorm.DB, logger *zap.Logger, converter *security.Converter) *UserService {
	return &UserService{DB: db, Logger: logger, Converter: converter}
}

// Create inserts a new user. The caller passes plaintext email; the row
// stores ciphertext.
func (u *UserService) Create(user *models.User) error {
	var count int64
	if err := u.DB.Model(&models.User{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, user.Username)
	}

	plainEmail := user.Email
	stored, err := u.Converter.ToStored(plainEmail)
	if err != nil {
		return fmt.Errorf("encrypt email: %w", err)
	}
	user.Email = stored
	if err := u.DB.Create(user).Error; err != nil {
		user.Email = plainEmail
		return err
	}
	user.Email = plainEmail
	return nil
}

// GetByID loads a user, nil when absent.
func (u *UserService) GetByID(id int64) (*models.User, error) {
	var user models.User
	if err := u.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	user.Email = u.Converter.FromStored(user.Email)
	return &user, nil
}

// GetByUsername loads a user by exact username, nil when absent.
func (u *UserService) GetByUsername(username string) (*models.User, error) {
	var user models.User
	if err := u.DB.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	user.Email = u.Converter.FromStored(user.Email)
	return &user, nil
}

// SearchByUsername returns users whose username contains the fragment,
// case-insensitively.
func (u *UserService) SearchByUsername(fragment string) ([]models.User, error) {
	var users []models.User
	err := u.DB.
		Where("LOWER(username) LIKE ?", "%"+strings.ToLower(fragment)+"%").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Email = u.Converter.FromStored(users[i].Email)
	}
	return users, nil
}

// UpdateProfileFields updates username and email of an existing user.
func (u *UserService) UpdateProfileFields(id int64, username, email string) (*models.User, error) {
	var user models.User
	if err := u.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	stored, err := u.Converter.ToStored(email)
	if err != nil {
		return nil, fmt.Errorf("encrypt email: %w", err)
	}
	updates := map[string]interface{}{
		"username": username,
		"email":    stored,
	}
	if err := u.DB.Model(&user).Updates(updates).Error; err != nil {
		return nil, err
	}
	user.Email = email
	return &user, nil
}

// Delete removes a user and everything hanging off the account: ratings,
// recommendation history and the reader profile. Dependent rows go first
// so a failure partway through never leaves orphans behind a deleted
// account.
func (u *UserService) Delete(id int64) (bool, error) {
	if err := u.DB.Where("user_id = ?", id).Delete(&models.Rating{}).Error; err != nil {
		return false, err
	}
	if err := u.DB.Where("user_id = ?", id).Delete(&models.Recommendation{}).Error; err != nil {
		return false, err
	}
	if err := u.DB.Delete(&models.UserProfile{}, "id = ?", id).Error; err != nil {
		return false, err
	}
	res := u.DB.Delete(&models.User{}, id)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	u.Logger.Info("User deleted with dependent rows", zap.Int64("user_id", id))
	return true, nil
}
