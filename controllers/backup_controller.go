package controllers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/schoolgate/services"
	"github.com/cppla/schoolgate/utils"
)

// BackupController manages balance snapshots.
type BackupController struct {
	engine *services.Engine
}

// NewBackupController creates a BackupController.
func NewBackupController(engine *services.Engine) *BackupController {
	return &BackupController{engine: engine}
}

// List returns the site's backups.
func (b *BackupController) List(ctx *gin.Context) {
	rows, err := b.engine.ListBackups(ctx.Request.Context(), siteID(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, rows)
}

// Create snapshots every balance at the site.
func (b *BackupController) Create(ctx *gin.Context) {
	type request struct {
		Name string `json:"name"`
	}
	var req request
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			badRequest(ctx, "invalid request payload")
			return
		}
	}
	backup, err := b.engine.CreateBackup(ctx.Request.Context(), siteID(ctx), utils.CleanText(req.Name, 128), adminID(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	backup.Items = nil
	utils.Success(ctx, backup)
}

// Get returns one backup with items.
func (b *BackupController) Get(ctx *gin.Context) {
	backup, err := b.engine.GetBackup(ctx.Request.Context(), strings.TrimSpace(ctx.Param("id")))
	if err != nil {
		respondError(ctx, err)
		return
	}
	if backup.SiteID != siteID(ctx) {
		respondError(ctx, services.ErrBackupNotFound)
		return
	}
	utils.Success(ctx, backup)
}

// Delete removes a backup.
func (b *BackupController) Delete(ctx *gin.Context) {
	id := strings.TrimSpace(ctx.Param("id"))
	backup, err := b.engine.GetBackup(ctx.Request.Context(), id)
	if err == nil && backup.SiteID != siteID(ctx) {
		err = services.ErrBackupNotFound
	}
	if err == nil {
		err = b.engine.DeleteBackup(ctx.Request.Context(), id)
	}
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"deleted": true})
}

// Restore resets balances to the backup, optionally for selected individuals only.
func (b *BackupController) Restore(ctx *gin.Context) {
	type request struct {
		IndividualIDs []uint `json:"individual_ids"`
	}
	var req request
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			badRequest(ctx, "invalid request payload")
			return
		}
	}
	id := strings.TrimSpace(ctx.Param("id"))
	backup, err := b.engine.GetBackup(ctx.Request.Context(), id)
	if err == nil && backup.SiteID != siteID(ctx) {
		err = services.ErrBackupNotFound
	}
	if err != nil {
		respondError(ctx, err)
		return
	}
	results, err := b.engine.RestoreBackup(ctx.Request.Context(), id, req.IndividualIDs, adminID(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"backup_id": id, "results": results})
}
