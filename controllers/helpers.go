package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/schoolgate/config"
	"github.com/cppla/schoolgate/middleware"
	"github.com/cppla/schoolgate/services"
	"github.com/cppla/schoolgate/utils"
)

// respondError maps service errors onto HTTP status and envelope codes.
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidTimeOfDay),
		errors.Is(err, services.ErrInvalidWindow),
		errors.Is(err, services.ErrInvalidEventType),
		errors.Is(err, services.ErrInvalidRole),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrInvalidThreshold),
		errors.Is(err, services.ErrInvalidSetting),
		errors.Is(err, services.ErrInvalidCard),
		errors.Is(err, services.ErrInvalidIndividual),
		errors.Is(err, services.ErrInvalidTxType):
		utils.Error(ctx, http.StatusBadRequest, 40001, err.Error())
	case errors.Is(err, services.ErrInsufficientPoints):
		utils.Error(ctx, http.StatusBadRequest, 40010, err.Error())
	case errors.Is(err, services.ErrIndividualInactive):
		utils.Error(ctx, http.StatusForbidden, 40320, err.Error())
	case errors.Is(err, services.ErrBonusAlreadyAwarded), errors.Is(err, services.ErrDuplicateCard):
		utils.Error(ctx, http.StatusConflict, 40901, err.Error())
	case errors.Is(err, services.ErrIndividualNotFound):
		utils.Error(ctx, http.StatusNotFound, 40410, err.Error())
	case errors.Is(err, services.ErrEventNotFound):
		utils.Error(ctx, http.StatusNotFound, 40411, err.Error())
	case errors.Is(err, services.ErrBackupNotFound):
		utils.Error(ctx, http.StatusNotFound, 40412, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.Error(ctx, http.StatusNotFound, 40400, "not found")
	case errors.Is(err, services.ErrInvalidCredentials):
		utils.Error(ctx, http.StatusUnauthorized, 40106, err.Error())
	default:
		utils.Logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
	}
}

func badRequest(ctx *gin.Context, msg string) {
	utils.Error(ctx, http.StatusBadRequest, 40000, msg)
}

// siteID is the authenticated admin's site, else the configured default.
func siteID(ctx *gin.Context) string {
	if s := ctx.GetString(middleware.ContextAdminSiteKey); s != "" {
		return s
	}
	return config.Get().DefaultSiteID
}

func adminID(ctx *gin.Context) *uint {
	v, ok := ctx.Get(middleware.ContextAdminIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(uint)
	if !ok || id == 0 {
		return nil
	}
	return &id
}

func paramID(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil || n == 0 {
		badRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(n), true
}

func pageParams(ctx *gin.Context) (int, int) {
	page, pageSize := 1, 20
	if v := strings.TrimSpace(ctx.Query("page")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := strings.TrimSpace(ctx.Query("page_size")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			pageSize = n
		}
	}
	return page, pageSize
}

func paged(ctx *gin.Context, items interface{}, page, pageSize int, total int64) {
	utils.Success(ctx, gin.H{
		"items": items,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	})
}

// queryTime accepts RFC3339 or a facility-local YYYY-MM-DD date.
func queryTime(ctx *gin.Context, key string) (time.Time, bool) {
	v := strings.TrimSpace(ctx.Query(key))
	if v == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02", v, services.Location()); err == nil {
		return t, true
	}
	badRequest(ctx, "invalid "+key)
	return time.Time{}, false
}
