package utils

import (
	"context"
	"sync"
	"time"
)

const blacklistPrefix = "admin:jwt:blacklist:"

var (
	blacklist   = map[string]time.Time{}
	blacklistMu sync.RWMutex
)

// BlacklistToken revokes the token with the given ID (its jti) until its natural
// expiry. Redis when available, memory otherwise.
func BlacklistToken(ctx context.Context, tokenID string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, blacklistPrefix+tokenID, "1", ttl).Err(); err == nil {
			return
		}
	}
	blacklistMu.Lock()
	blacklist[tokenID] = expiresAt
	blacklistMu.Unlock()
}

// IsTokenBlacklisted checks if the token with the given ID was revoked before natural expiration.
func IsTokenBlacklisted(ctx context.Context, tokenID string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if n, err := rc.Exists(ctx, blacklistPrefix+tokenID).Result(); err == nil && n > 0 {
			return true
		}
	}
	blacklistMu.RLock()
	expiresAt, ok := blacklist[tokenID]
	blacklistMu.RUnlock()
	if !ok {
		return false
	}
	if time.Now().After(expiresAt) {
		blacklistMu.Lock()
		delete(blacklist, tokenID)
		blacklistMu.Unlock()
		return false
	}
	return true
}
