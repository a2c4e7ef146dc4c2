package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/schoolgate/models"
	"github.com/cppla/schoolgate/services"
	"github.com/cppla/schoolgate/utils"
)

// PointsController exposes manual ledger operations.
type PointsController struct {
	engine *services.Engine
}

// NewPointsController creates a PointsController.
func NewPointsController(engine *services.Engine) *PointsController {
	return &PointsController{engine: engine}
}

type pointsRequest struct {
	IndividualID uint   `json:"individual_id" binding:"required"`
	Amount       int    `json:"amount" binding:"required"`
	Description  string `json:"description"`
}

type bulkRequest struct {
	Items []services.BulkItem `json:"items" binding:"required,min=1,max=500"`
}

func (p *PointsController) bind(ctx *gin.Context) (pointsRequest, bool) {
	var req pointsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "individual_id and amount are required")
		return req, false
	}
	if req.Amount <= 0 {
		respondError(ctx, services.ErrInvalidAmount)
		return req, false
	}
	req.Description = utils.CleanText(req.Description, 255)
	return req, true
}

// Add credits points as manual_add.
func (p *PointsController) Add(ctx *gin.Context) {
	req, ok := p.bind(ctx)
	if !ok {
		return
	}
	tx, err := p.engine.AddPoints(ctx.Request.Context(), services.AddPointsInput{
		IndividualID: req.IndividualID,
		Amount:       req.Amount,
		Type:         models.TxManualAdd,
		Description:  req.Description,
		AdminID:      adminID(ctx),
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, tx)
}

// Subtract removes points as manual_subtract.
func (p *PointsController) Subtract(ctx *gin.Context) {
	req, ok := p.bind(ctx)
	if !ok {
		return
	}
	tx, err := p.engine.SubtractPoints(ctx.Request.Context(), services.DebitInput{
		IndividualID: req.IndividualID,
		Amount:       req.Amount,
		Description:  req.Description,
		AdminID:      adminID(ctx),
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, tx)
}

// Consume spends points.
func (p *PointsController) Consume(ctx *gin.Context) {
	req, ok := p.bind(ctx)
	if !ok {
		return
	}
	tx, err := p.engine.ConsumePoints(ctx.Request.Context(), services.DebitInput{
		IndividualID: req.IndividualID,
		Amount:       req.Amount,
		Description:  req.Description,
		AdminID:      adminID(ctx),
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, tx)
}

func bindBulk(ctx *gin.Context) ([]services.BulkItem, bool) {
	var req bulkRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "items must hold 1 to 500 entries")
		return nil, false
	}
	for i := range req.Items {
		req.Items[i].Description = utils.CleanText(req.Items[i].Description, 255)
	}
	return req.Items, true
}

func bulkSummary(results []services.BulkResult) gin.H {
	ok := 0
	for _, r := range results {
		if r.OK {
			ok++
		}
	}
	return gin.H{"succeeded": ok, "failed": len(results) - ok, "results": results}
}

// BulkAdd credits many individuals; each item succeeds or fails on its own.
func (p *PointsController) BulkAdd(ctx *gin.Context) {
	items, ok := bindBulk(ctx)
	if !ok {
		return
	}
	utils.Success(ctx, bulkSummary(p.engine.BulkAddPoints(ctx.Request.Context(), items, adminID(ctx))))
}

// BulkConsume debits many individuals; each item succeeds or fails on its own.
func (p *PointsController) BulkConsume(ctx *gin.Context) {
	items, ok := bindBulk(ctx)
	if !ok {
		return
	}
	utils.Success(ctx, bulkSummary(p.engine.BulkConsumePoints(ctx.Request.Context(), items, adminID(ctx))))
}

// Reconcile reports balance drift; fix=true repairs it.
func (p *PointsController) Reconcile(ctx *gin.Context) {
	type request struct {
		IndividualID uint `json:"individual_id"`
		Fix          bool `json:"fix"`
	}
	var req request
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			badRequest(ctx, "invalid request payload")
			return
		}
	}
	report, err := p.engine.Reconcile(ctx.Request.Context(), siteID(ctx), req.IndividualID, req.Fix)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, report)
}
