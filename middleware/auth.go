package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/schoolgate/utils"
)

const (
	// ContextAdminIDKey holds the authenticated admin's ID.
	ContextAdminIDKey = "admin_id"
	// ContextAdminSiteKey holds the site the admin manages.
	ContextAdminSiteKey = "admin_site_id"
	// ContextUsernameKey holds the admin's username.
	ContextUsernameKey = "username"
	// ContextTokenIDKey holds the token's jti, used by logout.
	ContextTokenIDKey = "admin_token_id"
	// ContextTokenExpiryKey holds the token's expiry.
	ContextTokenExpiryKey = "admin_token_exp"
)

// AdminRequired ensures the request carries a valid, unrevoked admin JWT.
func AdminRequired() gin.HandlerFunc {
	return adminAuth(false)
}

// AdminRequiredWebSocket also accepts the token in the access_token query
// parameter, since browsers cannot set headers on a WebSocket upgrade.
func AdminRequiredWebSocket() gin.HandlerFunc {
	return adminAuth(true)
}

func adminAuth(allowQuery bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" && allowQuery {
			if q := strings.TrimSpace(ctx.Query("access_token")); q != "" {
				authHeader = "Bearer " + q
			}
		}
		if authHeader == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
			ctx.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.Error(ctx, http.StatusUnauthorized, 40102, "invalid authorization header format")
			ctx.Abort()
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40103, "empty bearer token")
			ctx.Abort()
			return
		}

		claims, err := utils.ParseAdminToken(tokenString)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
			ctx.Abort()
			return
		}

		if utils.IsTokenBlacklisted(ctx.Request.Context(), claims.ID) {
			utils.Error(ctx, http.StatusUnauthorized, 40104, "token revoked")
			ctx.Abort()
			return
		}

		ctx.Set(ContextAdminIDKey, claims.AdminID)
		ctx.Set(ContextAdminSiteKey, claims.SiteID)
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Set(ContextTokenIDKey, claims.ID)
		if claims.ExpiresAt != nil {
			ctx.Set(ContextTokenExpiryKey, claims.ExpiresAt.Time)
		}
		ctx.Next()
	}
}
