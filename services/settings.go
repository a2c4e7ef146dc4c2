package services

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/schoolgate/models"
)

// Defaults used until an administrator saves point settings.
const (
	DefaultEntryPoints = 1
	DefaultDailyLimit  = true
)

// GetPointSettings returns the site's entry award settings or the defaults.
func (e *Engine) GetPointSettings(ctx context.Context, siteID string) (models.PointSettings, error) {
	return cached(ctx, e, settingsKey(siteID, "points"), func() (models.PointSettings, error) {
		var ps models.PointSettings
		err := e.db.WithContext(ctx).Where("site_id = ?", siteID).First(&ps).Error
		if err == gorm.ErrRecordNotFound {
			return models.PointSettings{SiteID: siteID, EntryPoints: DefaultEntryPoints, DailyLimit: DefaultDailyLimit}, nil
		}
		return ps, err
	})
}

// SetPointSettings upserts the site's entry award settings.
func (e *Engine) SetPointSettings(ctx context.Context, siteID string, entryPoints int, dailyLimit bool) (models.PointSettings, error) {
	if entryPoints < 0 {
		return models.PointSettings{}, ErrInvalidSetting
	}
	ps := models.PointSettings{SiteID: siteID, EntryPoints: entryPoints, DailyLimit: dailyLimit, UpdatedAt: e.Now()}
	err := e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "site_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_points", "daily_limit", "updated_at"}),
	}).Create(&ps).Error
	if err != nil {
		return ps, err
	}
	e.invalidateSettings(ctx, siteID)
	return ps, nil
}

// ListAccessTimes returns every role window configured for the site.
func (e *Engine) ListAccessTimes(ctx context.Context, siteID string) ([]models.RoleAccessTime, error) {
	var rows []models.RoleAccessTime
	err := e.db.WithContext(ctx).Where("site_id = ?", siteID).Order("role").Find(&rows).Error
	return rows, err
}

// SetAccessTime upserts the window for one role.
func (e *Engine) SetAccessTime(ctx context.Context, siteID, role, start, end string) (models.RoleAccessTime, error) {
	if !models.ValidRole(role) {
		return models.RoleAccessTime{}, ErrInvalidRole
	}
	start, err := NormalizeTimeOfDay(start)
	if err != nil {
		return models.RoleAccessTime{}, err
	}
	end, err = NormalizeTimeOfDay(end)
	if err != nil {
		return models.RoleAccessTime{}, err
	}
	if err := ValidateWindow(start, end); err != nil {
		return models.RoleAccessTime{}, err
	}
	row := models.RoleAccessTime{SiteID: siteID, Role: role, StartTime: start, EndTime: end, UpdatedAt: e.Now()}
	err = e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "site_id"}, {Name: "role"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_time", "end_time", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return row, err
	}
	e.invalidateSettings(ctx, siteID)
	var saved models.RoleAccessTime
	err = e.db.WithContext(ctx).Where("site_id = ? AND role = ?", siteID, role).First(&saved).Error
	return saved, err
}

// ListBonusSettings returns every role- and class-level bonus rule for the site.
func (e *Engine) ListBonusSettings(ctx context.Context, siteID string) ([]models.BonusSetting, error) {
	var rows []models.BonusSetting
	err := e.db.WithContext(ctx).Where("site_id = ?", siteID).Order("role, class_tag").Find(&rows).Error
	return rows, err
}

// SetBonusSetting upserts the rule for role, or for role+classTag when classTag is set.
func (e *Engine) SetBonusSetting(ctx context.Context, siteID, role, classTag string, threshold, bonusPoints int) (models.BonusSetting, error) {
	if !models.ValidRole(role) {
		return models.BonusSetting{}, ErrInvalidRole
	}
	if threshold < 1 {
		return models.BonusSetting{}, ErrInvalidThreshold
	}
	if bonusPoints < 0 {
		return models.BonusSetting{}, ErrInvalidSetting
	}
	row := models.BonusSetting{
		SiteID:      siteID,
		Role:        role,
		ClassTag:    strings.TrimSpace(classTag),
		Threshold:   threshold,
		BonusPoints: bonusPoints,
		UpdatedAt:   e.Now(),
	}
	err := e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "site_id"}, {Name: "role"}, {Name: "class_tag"}},
		DoUpdates: clause.AssignmentColumns([]string{"threshold", "bonus_points", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return row, err
	}
	e.invalidateSettings(ctx, siteID)
	var saved models.BonusSetting
	err = e.db.WithContext(ctx).
		Where("site_id = ? AND role = ? AND class_tag = ?", siteID, role, row.ClassTag).First(&saved).Error
	return saved, err
}

func (e *Engine) bonusSettingsForRole(ctx context.Context, siteID, role string) ([]models.BonusSetting, error) {
	return cached(ctx, e, settingsKey(siteID, "bonus", role), func() ([]models.BonusSetting, error) {
		var rows []models.BonusSetting
		err := e.db.WithContext(ctx).Where("site_id = ? AND role = ?", siteID, role).Find(&rows).Error
		return rows, err
	})
}
