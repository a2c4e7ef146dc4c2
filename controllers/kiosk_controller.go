package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/schoolgate/middleware"
	"github.com/cppla/schoolgate/models"
	"github.com/cppla/schoolgate/services"
	"github.com/cppla/schoolgate/utils"
)

// KioskController receives card taps from entrance kiosks.
type KioskController struct {
	engine *services.Engine
}

// NewKioskController creates a KioskController.
func NewKioskController(engine *services.Engine) *KioskController {
	return &KioskController{engine: engine}
}

// Tap records one card read. event_type is optional; without it presence toggles.
func (k *KioskController) Tap(ctx *gin.Context) {
	type request struct {
		CardUID   string `json:"card_uid" binding:"required"`
		EventType string `json:"event_type"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "card_uid is required")
		return
	}

	res, err := k.engine.RecordTap(ctx.Request.Context(), services.TapInput{
		CardUID:   req.CardUID,
		EventType: req.EventType,
		DeviceID:  ctx.GetString(middleware.ContextDeviceIDKey),
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Set(middleware.ContextKioskSiteKey, res.Individual.SiteID)

	out := gin.H{
		"event_type":     res.Event.EventType,
		"occurred_at":    res.Event.OccurredAt,
		"name":           res.Individual.Name,
		"current_points": res.Individual.CurrentPoints,
		"inside":         res.Individual.IsInside(),
	}
	if res.Award != nil && res.Event.EventType == models.EventEntry {
		out["award"] = res.Award
	}
	utils.Success(ctx, out)
}

// Devices lists the site's kiosks by most recent heartbeat.
func (k *KioskController) Devices(ctx *gin.Context) {
	var devices []models.KioskDevice
	err := k.engine.DB().WithContext(ctx.Request.Context()).
		Where("site_id = ?", siteID(ctx)).
		Order("last_seen_at DESC").
		Find(&devices).Error
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, devices)
}
