package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/cppla/schoolgate/models"
)

// Monthly bonus defaults when no rule is configured.
const (
	DefaultBonusThreshold = 10
	DefaultBonusPoints    = 3
)

// pickBonusRule prefers the class-level row, then the role-level row.
func pickBonusRule(rows []models.BonusSetting, classTag string) *models.BonusSetting {
	var roleLevel *models.BonusSetting
	for i := range rows {
		switch {
		case classTag != "" && rows[i].ClassTag == classTag:
			return &rows[i]
		case rows[i].ClassTag == "":
			roleLevel = &rows[i]
		}
	}
	return roleLevel
}

// ResolveBonusThreshold returns the monthly entry count that earns the bonus:
// the individual's override when enabled, then class, then role, then the default.
func (e *Engine) ResolveBonusThreshold(ctx context.Context, ind *models.Individual) int {
	if ind.HasCustomBonusThreshold && ind.BonusThreshold != nil {
		return *ind.BonusThreshold
	}
	rows, err := e.bonusSettingsForRole(ctx, ind.SiteID, ind.Role)
	if err != nil {
		e.log.Warn("bonus threshold lookup failed", zap.Uint("individual_id", ind.ID), zap.Error(err))
		return DefaultBonusThreshold
	}
	if rule := pickBonusRule(rows, ind.ClassTag); rule != nil {
		return rule.Threshold
	}
	return DefaultBonusThreshold
}

// ResolveBonusPoints returns the bonus amount for a role/class pair.
func (e *Engine) ResolveBonusPoints(ctx context.Context, siteID, role, classTag string) int {
	rows, err := e.bonusSettingsForRole(ctx, siteID, role)
	if err != nil {
		e.log.Warn("bonus points lookup failed", zap.String("role", role), zap.Error(err))
		return DefaultBonusPoints
	}
	if rule := pickBonusRule(rows, classTag); rule != nil {
		return rule.BonusPoints
	}
	return DefaultBonusPoints
}
