package controllers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/schoolgate/services"
	"github.com/cppla/schoolgate/utils"
)

// IndividualController manages people, guardians and their history.
type IndividualController struct {
	engine *services.Engine
}

// NewIndividualController creates an IndividualController.
func NewIndividualController(engine *services.Engine) *IndividualController {
	return &IndividualController{engine: engine}
}

// List pages individuals with optional role, status, class, presence and text filters.
func (i *IndividualController) List(ctx *gin.Context) {
	page, pageSize := pageParams(ctx)
	f := services.IndividualFilter{
		SiteID:   siteID(ctx),
		Role:     ctx.Query("role"),
		Status:   ctx.Query("status"),
		ClassTag: ctx.Query("class_tag"),
		Query:    ctx.Query("q"),
		Page:     page,
		PageSize: pageSize,
	}
	switch ctx.Query("inside") {
	case "true", "1":
		v := true
		f.Inside = &v
	case "false", "0":
		v := false
		f.Inside = &v
	}
	rows, total, err := i.engine.ListIndividuals(ctx.Request.Context(), f)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paged(ctx, rows, page, pageSize, total)
}

// Create registers an individual at the admin's site.
func (i *IndividualController) Create(ctx *gin.Context) {
	type request struct {
		Name     string `json:"name" binding:"required"`
		CardUID  string `json:"card_uid" binding:"required"`
		Role     string `json:"role" binding:"required"`
		ClassTag string `json:"class_tag"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "name, card_uid and role are required")
		return
	}
	ind, err := i.engine.CreateIndividual(ctx.Request.Context(), services.IndividualInput{
		SiteID:   siteID(ctx),
		Name:     utils.CleanText(req.Name, 128),
		CardUID:  req.CardUID,
		Role:     req.Role,
		ClassTag: utils.CleanText(req.ClassTag, 64),
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, ind)
}

// Get returns an individual with guardians.
func (i *IndividualController) Get(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	ind, err := i.engine.GetIndividual(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, ind)
}

// Update patches profile, status and per-individual overrides.
func (i *IndividualController) Update(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	type request struct {
		Name                    *string `json:"name"`
		CardUID                 *string `json:"card_uid"`
		Role                    *string `json:"role"`
		ClassTag                *string `json:"class_tag"`
		Status                  *string `json:"status"`
		HasCustomAccessTime     *bool   `json:"has_custom_access_time"`
		AccessStartTime         *string `json:"access_start_time"`
		AccessEndTime           *string `json:"access_end_time"`
		HasCustomBonusThreshold *bool   `json:"has_custom_bonus_threshold"`
		BonusThreshold          *int    `json:"bonus_threshold"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request payload")
		return
	}
	if req.Name != nil {
		v := utils.CleanText(*req.Name, 128)
		req.Name = &v
	}
	if req.ClassTag != nil {
		v := utils.CleanText(*req.ClassTag, 64)
		req.ClassTag = &v
	}
	ind, err := i.engine.UpdateIndividual(ctx.Request.Context(), id, services.IndividualPatch{
		Name:                    req.Name,
		CardUID:                 req.CardUID,
		Role:                    req.Role,
		ClassTag:                req.ClassTag,
		Status:                  req.Status,
		HasCustomAccessTime:     req.HasCustomAccessTime,
		AccessStartTime:         req.AccessStartTime,
		AccessEndTime:           req.AccessEndTime,
		HasCustomBonusThreshold: req.HasCustomBonusThreshold,
		BonusThreshold:          req.BonusThreshold,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, ind)
}

// AddGuardian links a LINE user to the individual.
func (i *IndividualController) AddGuardian(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	type request struct {
		Name       string `json:"name"`
		LineUserID string `json:"line_user_id" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "line_user_id is required")
		return
	}
	g, err := i.engine.AddGuardian(ctx.Request.Context(), id, utils.CleanText(req.Name, 128), req.LineUserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, g)
}

// RemoveGuardian unlinks a guardian.
func (i *IndividualController) RemoveGuardian(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	gid, ok := paramID(ctx, "guardianId")
	if !ok {
		return
	}
	if err := i.engine.RemoveGuardian(ctx.Request.Context(), id, gid); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"deleted": true})
}

// Transactions pages one individual's ledger.
func (i *IndividualController) Transactions(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	page, pageSize := pageParams(ctx)
	rows, total, err := i.engine.ListTransactions(ctx.Request.Context(), services.TransactionFilter{
		IndividualID: id,
		Type:         ctx.Query("type"),
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	paged(ctx, rows, page, pageSize, total)
}

// AccessEvents pages the site's event log.
func (i *IndividualController) AccessEvents(ctx *gin.Context) {
	from, ok := queryTime(ctx, "from")
	if !ok {
		return
	}
	to, ok := queryTime(ctx, "to")
	if !ok {
		return
	}
	var individualID uint
	if v := strings.TrimSpace(ctx.Query("individual_id")); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			badRequest(ctx, "invalid individual_id")
			return
		}
		individualID = uint(n)
	}
	page, pageSize := pageParams(ctx)
	rows, total, err := i.engine.ListAccessEvents(ctx.Request.Context(), services.EventFilter{
		SiteID:       siteID(ctx),
		IndividualID: individualID,
		EventType:    ctx.Query("event_type"),
		From:         from,
		To:           to,
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	paged(ctx, rows, page, pageSize, total)
}
