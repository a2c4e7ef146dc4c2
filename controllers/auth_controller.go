package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/schoolgate/middleware"
	"github.com/cppla/schoolgate/services"
	"github.com/cppla/schoolgate/utils"
)

const tokenTTL = 12 * time.Hour

// AuthController handles admin login, logout and identity.
type AuthController struct {
	engine *services.Engine
}

// NewAuthController creates an AuthController.
func NewAuthController(engine *services.Engine) *AuthController {
	return &AuthController{engine: engine}
}

// Login verifies credentials and issues a bearer token.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request payload")
		return
	}

	admin, err := a.engine.Authenticate(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(ctx, err)
		return
	}

	token, expires, err := utils.GenerateAdminToken(admin.ID, admin.Username, admin.SiteID, tokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to issue token")
		return
	}

	utils.Success(ctx, gin.H{
		"token":      token,
		"expires_at": expires,
		"admin":      admin,
	})
}

// Logout revokes the current token until it expires.
func (a *AuthController) Logout(ctx *gin.Context) {
	tokenID := ctx.GetString(middleware.ContextTokenIDKey)
	expires := time.Now().Add(tokenTTL)
	if v, ok := ctx.Get(middleware.ContextTokenExpiryKey); ok {
		if t, ok := v.(time.Time); ok {
			expires = t
		}
	}
	utils.BlacklistToken(ctx.Request.Context(), tokenID, expires)
	utils.Success(ctx, gin.H{"logged_out": true})
}

// Me returns the authenticated admin.
func (a *AuthController) Me(ctx *gin.Context) {
	id := adminID(ctx)
	if id == nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}
	admin, err := a.engine.GetAdmin(ctx.Request.Context(), *id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, admin)
}
