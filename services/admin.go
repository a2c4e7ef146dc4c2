package services

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/cppla/schoolgate/models"
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// EnsureAdmin creates the bootstrap administrator when no admin exists yet.
func (e *Engine) EnsureAdmin(ctx context.Context, username, password, siteID string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil
	}
	var n int64
	if err := e.db.WithContext(ctx).Model(&models.Admin{}).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	admin := models.Admin{Username: username, DisplayName: username, SiteID: siteID, PasswordHash: hash}
	if err := e.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return err
	}
	e.log.Info("bootstrap admin created", zap.String("username", username))
	return nil
}

// Authenticate checks credentials and stamps the login time.
func (e *Engine) Authenticate(ctx context.Context, username, password string) (models.Admin, error) {
	var admin models.Admin
	if err := e.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&admin).Error; err != nil {
		if isNotFound(err) {
			return admin, ErrInvalidCredentials
		}
		return admin, err
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return admin, ErrInvalidCredentials
	}
	now := e.Now()
	if err := e.db.WithContext(ctx).Model(&admin).UpdateColumn("last_login_at", now).Error; err != nil {
		e.log.Warn("update last login failed", zap.Uint("admin_id", admin.ID), zap.Error(err))
	}
	admin.LastLoginAt = &now
	return admin, nil
}

// GetAdmin loads an administrator by id.
func (e *Engine) GetAdmin(ctx context.Context, id uint) (models.Admin, error) {
	var admin models.Admin
	err := e.db.WithContext(ctx).First(&admin, id).Error
	if isNotFound(err) {
		return admin, ErrInvalidCredentials
	}
	return admin, err
}
