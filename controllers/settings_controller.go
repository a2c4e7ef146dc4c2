package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/schoolgate/services"
	"github.com/cppla/schoolgate/utils"
)

// SettingsController reads and writes per-site rule settings.
type SettingsController struct {
	engine *services.Engine
}

// NewSettingsController creates a SettingsController.
func NewSettingsController(engine *services.Engine) *SettingsController {
	return &SettingsController{engine: engine}
}

// GetPoints returns entry point settings.
func (s *SettingsController) GetPoints(ctx *gin.Context) {
	ps, err := s.engine.GetPointSettings(ctx.Request.Context(), siteID(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, ps)
}

// PutPoints replaces entry point settings.
func (s *SettingsController) PutPoints(ctx *gin.Context) {
	type request struct {
		EntryPoints *int  `json:"entry_points" binding:"required"`
		DailyLimit  *bool `json:"daily_limit" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "entry_points and daily_limit are required")
		return
	}
	ps, err := s.engine.SetPointSettings(ctx.Request.Context(), siteID(ctx), *req.EntryPoints, *req.DailyLimit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, ps)
}

// GetAccessTimes returns configured role windows.
func (s *SettingsController) GetAccessTimes(ctx *gin.Context) {
	rows, err := s.engine.ListAccessTimes(ctx.Request.Context(), siteID(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"items":   rows,
		"default": services.AccessWindow{Start: services.DefaultAccessStart, End: services.DefaultAccessEnd},
	})
}

// PutAccessTimes upserts one or more role windows. The first invalid entry aborts the rest.
func (s *SettingsController) PutAccessTimes(ctx *gin.Context) {
	type item struct {
		Role      string `json:"role" binding:"required"`
		StartTime string `json:"start_time" binding:"required"`
		EndTime   string `json:"end_time" binding:"required"`
	}
	type request struct {
		Items []item `json:"items" binding:"required,min=1,dive"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "items with role, start_time and end_time are required")
		return
	}
	site := siteID(ctx)
	for _, it := range req.Items {
		if _, err := s.engine.SetAccessTime(ctx.Request.Context(), site, it.Role, it.StartTime, it.EndTime); err != nil {
			respondError(ctx, err)
			return
		}
	}
	s.GetAccessTimes(ctx)
}

// GetBonus returns role- and class-level bonus rules.
func (s *SettingsController) GetBonus(ctx *gin.Context) {
	rows, err := s.engine.ListBonusSettings(ctx.Request.Context(), siteID(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"items":   rows,
		"default": gin.H{"threshold": services.DefaultBonusThreshold, "bonus_points": services.DefaultBonusPoints},
	})
}

// PutBonus upserts one or more bonus rules.
func (s *SettingsController) PutBonus(ctx *gin.Context) {
	type item struct {
		Role        string `json:"role" binding:"required"`
		ClassTag    string `json:"class_tag"`
		Threshold   int    `json:"threshold"`
		BonusPoints int    `json:"bonus_points"`
	}
	type request struct {
		Items []item `json:"items" binding:"required,min=1,dive"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "items with role, threshold and bonus_points are required")
		return
	}
	site := siteID(ctx)
	for _, it := range req.Items {
		if _, err := s.engine.SetBonusSetting(ctx.Request.Context(), site, it.Role, utils.CleanText(it.ClassTag, 64), it.Threshold, it.BonusPoints); err != nil {
			respondError(ctx, err)
			return
		}
	}
	s.GetBonus(ctx)
}
