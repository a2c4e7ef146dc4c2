package controllers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/schoolgate/livefeed"
	"github.com/cppla/schoolgate/utils"
)

// LiveController streams presence changes for the admin's site.
type LiveController struct {
	hub *livefeed.Hub
}

// NewLiveController creates a LiveController.
func NewLiveController(hub *livefeed.Hub) *LiveController {
	return &LiveController{hub: hub}
}

// Stream upgrades to a WebSocket and blocks until the dashboard disconnects.
func (l *LiveController) Stream(ctx *gin.Context) {
	if err := l.hub.Serve(ctx.Writer, ctx.Request, siteID(ctx)); err != nil {
		utils.Logger.Debug("live upgrade failed", zap.Error(err))
	}
}
