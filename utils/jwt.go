package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cppla/schoolgate/config"
)

// AdminClaims identifies the admin behind a dashboard token.
type AdminClaims struct {
	AdminID  uint   `json:"admin_id"`
	Username string `json:"username"`
	SiteID   string `json:"site_id"`
	jwt.RegisteredClaims
}

// GenerateAdminToken issues an HS256 token for the admin.
func GenerateAdminToken(adminID uint, username, siteID string, duration time.Duration) (string, time.Time, error) {
	cfg := config.Get()
	now := time.Now()
	expires := now.Add(duration)

	claims := AdminClaims{
		AdminID:  adminID,
		Username: username,
		SiteID:   siteID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   username,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	return signed, expires, err
}

// ParseAdminToken validates a token and returns its claims.
func ParseAdminToken(tokenStr string) (*AdminClaims, error) {
	cfg := config.Get()
	parsed, err := jwt.ParseWithClaims(tokenStr, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*AdminClaims)
	if !ok || !parsed.Valid || claims.AdminID == 0 || claims.ID == "" {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}
