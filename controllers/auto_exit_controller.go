package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/schoolgate/services"
	"github.com/cppla/schoolgate/utils"
)

// AutoExitController triggers the auto-exit sweep on demand.
type AutoExitController struct {
	engine *services.Engine
}

// NewAutoExitController creates an AutoExitController.
func NewAutoExitController(engine *services.Engine) *AutoExitController {
	return &AutoExitController{engine: engine}
}

// RunManual sweeps the admin's site with the window-crossing rule.
func (a *AutoExitController) RunManual(ctx *gin.Context) {
	report, err := a.engine.RunAutoExit(ctx.Request.Context(), siteID(ctx), services.SweepManual)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, report)
}

// RunScheduled is the external scheduler hook; it sweeps every site with the end-of-day rule.
func (a *AutoExitController) RunScheduled(ctx *gin.Context) {
	report, err := a.engine.RunAutoExit(ctx.Request.Context(), ctx.Query("site_id"), services.SweepScheduled)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, report)
}
