package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/schoolgate/models"
)

// CreateBackup snapshots every balance at the site.
func (e *Engine) CreateBackup(ctx context.Context, siteID, name string, adminID *uint) (models.PointsBackup, error) {
	now := e.Now()
	name = strings.TrimSpace(name)
	if name == "" {
		name = "backup " + now.In(Location()).Format("2006-01-02 15:04")
	}
	backup := models.PointsBackup{
		BackupID:  uuid.NewString(),
		SiteID:    siteID,
		Name:      name,
		CreatedBy: adminID,
		CreatedAt: now,
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var people []models.Individual
		if err := tx.Select("id", "current_points").Where("site_id = ?", siteID).Order("id").Find(&people).Error; err != nil {
			return err
		}
		backup.ItemCount = len(people)
		for _, p := range people {
			backup.TotalPoints += p.CurrentPoints
		}
		if err := tx.Create(&backup).Error; err != nil {
			return err
		}
		if len(people) == 0 {
			return nil
		}
		items := make([]models.PointsBackupItem, 0, len(people))
		for _, p := range people {
			items = append(items, models.PointsBackupItem{PointsBackupID: backup.ID, IndividualID: p.ID, Points: p.CurrentPoints})
		}
		if err := tx.CreateInBatches(&items, 200).Error; err != nil {
			return err
		}
		backup.Items = items
		return nil
	})
	if err != nil {
		return models.PointsBackup{}, err
	}
	e.log.Info("points backup created", zap.String("backup_id", backup.BackupID), zap.Int("items", backup.ItemCount))
	return backup, nil
}

// ListBackups returns the site's backups newest first, without items.
func (e *Engine) ListBackups(ctx context.Context, siteID string) ([]models.PointsBackup, error) {
	var rows []models.PointsBackup
	err := e.db.WithContext(ctx).Where("site_id = ?", siteID).Order("created_at DESC, id DESC").Find(&rows).Error
	return rows, err
}

// GetBackup loads one backup with its items.
func (e *Engine) GetBackup(ctx context.Context, backupID string) (models.PointsBackup, error) {
	var b models.PointsBackup
	err := e.db.WithContext(ctx).Preload("Items").Where("backup_id = ?", backupID).First(&b).Error
	if isNotFound(err) {
		return b, ErrBackupNotFound
	}
	return b, err
}

// DeleteBackup removes a backup and its items. Balances are untouched.
func (e *Engine) DeleteBackup(ctx context.Context, backupID string) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.PointsBackup
		if err := tx.Where("backup_id = ?", backupID).First(&b).Error; err != nil {
			if isNotFound(err) {
				return ErrBackupNotFound
			}
			return err
		}
		if err := tx.Where("points_backup_id = ?", b.ID).Delete(&models.PointsBackupItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&b).Error
	})
}

// RestoreResult is the outcome for one backup item.
type RestoreResult struct {
	IndividualID uint   `json:"individual_id"`
	From         int    `json:"from"`
	To           int    `json:"to"`
	Adjustment   int    `json:"adjustment"`
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
}

// RestoreBackup moves balances back to the backed-up values by writing
// offsetting manual_add / manual_subtract rows, so the ledger still sums to the
// balance. onlyIDs limits the restore to those individuals when non-empty.
func (e *Engine) RestoreBackup(ctx context.Context, backupID string, onlyIDs []uint, adminID *uint) ([]RestoreResult, error) {
	b, err := e.GetBackup(ctx, backupID)
	if err != nil {
		return nil, err
	}
	want := make(map[uint]bool, len(onlyIDs))
	for _, id := range onlyIDs {
		want[id] = true
	}
	desc := fmt.Sprintf("restore from backup %q", b.Name)
	out := make([]RestoreResult, 0, len(b.Items))
	for _, it := range b.Items {
		if len(want) > 0 && !want[it.IndividualID] {
			continue
		}
		r := RestoreResult{IndividualID: it.IndividualID, To: it.Points}
		ind, err := e.findIndividual(ctx, it.IndividualID)
		if err != nil {
			r.Error = err.Error()
			out = append(out, r)
			continue
		}
		r.From = ind.CurrentPoints
		r.Adjustment = it.Points - ind.CurrentPoints
		if r.Adjustment == 0 {
			r.OK = true
			out = append(out, r)
			continue
		}
		txType := models.TxManualAdd
		if r.Adjustment < 0 {
			txType = models.TxManualSubtract
		}
		if _, err := e.AddPoints(ctx, AddPointsInput{
			IndividualID: it.IndividualID,
			Amount:       r.Adjustment,
			Type:         txType,
			Description:  desc,
			AdminID:      adminID,
		}); err != nil {
			r.Error = err.Error()
		} else {
			r.OK = true
		}
		out = append(out, r)
	}
	e.log.Info("points backup restored", zap.String("backup_id", backupID), zap.Int("items", len(out)))
	return out, nil
}
