package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/schoolgate/models"
)

// Reasons an entry earned no entry points.
const (
	SkipAlreadyProcessed = "already_processed"
	SkipDisabled         = "entry_points_disabled"
	SkipDailyLimit       = "daily_limit"
	SkipError            = "error"
)

// EntryAward describes what one entry event earned.
type EntryAward struct {
	EventID        uint   `json:"event_id"`
	EntryPoints    int    `json:"entry_points"`
	SkipReason     string `json:"skip_reason,omitempty"`
	MonthlyEntries int64  `json:"monthly_entries"`
	Threshold      int    `json:"threshold"`
	BonusPoints    int    `json:"bonus_points"`
}

// AwardEntry grants entry points (subject to the daily limit) and, once per
// month, the attendance bonus. The event is claimed by flipping
// points_processed, so a second call for the same event awards nothing.
// Failures after the claim are logged and leave the award partial.
func (e *Engine) AwardEntry(ctx context.Context, eventID uint) (EntryAward, error) {
	award := EntryAward{EventID: eventID}
	var ev models.AccessEvent
	if err := e.db.WithContext(ctx).First(&ev, eventID).Error; err != nil {
		if isNotFound(err) {
			return award, ErrEventNotFound
		}
		return award, err
	}
	if ev.EventType != models.EventEntry {
		return award, ErrNotEntryEvent
	}

	res := e.db.WithContext(ctx).Model(&models.AccessEvent{}).
		Where("id = ? AND points_processed = ?", ev.ID, false).
		Update("points_processed", true)
	if res.Error != nil {
		return award, res.Error
	}
	if res.RowsAffected == 0 {
		award.SkipReason = SkipAlreadyProcessed
		return award, nil
	}

	ind, err := e.findIndividual(ctx, ev.IndividualID)
	if err != nil {
		return award, err
	}
	log := e.log.With(zap.Uint("individual_id", ind.ID), zap.Uint("event_id", ev.ID))

	award.EntryPoints, award.SkipReason = e.awardEntryPoints(ctx, log, &ind, &ev)

	count, err := e.monthlyEntryCount(ctx, ind.ID, ev.OccurredAt)
	if err != nil {
		log.Error("monthly entry count failed", zap.Error(err))
		return award, nil
	}
	award.MonthlyEntries = count
	award.Threshold = e.ResolveBonusThreshold(ctx, &ind)
	if count < int64(award.Threshold) {
		return award, nil
	}
	pts, err := e.awardMonthlyBonus(ctx, &ind, &ev, count)
	switch {
	case errors.Is(err, ErrBonusAlreadyAwarded):
		log.Debug("monthly bonus already awarded")
	case err != nil:
		log.Error("monthly bonus failed", zap.Error(err))
	default:
		award.BonusPoints = pts
	}
	return award, nil
}

func (e *Engine) awardEntryPoints(ctx context.Context, log *zap.Logger, ind *models.Individual, ev *models.AccessEvent) (int, string) {
	settings, err := e.GetPointSettings(ctx, ind.SiteID)
	if err != nil {
		log.Error("point settings lookup failed", zap.Error(err))
		return 0, SkipError
	}
	if settings.EntryPoints <= 0 {
		return 0, SkipDisabled
	}
	if settings.DailyLimit {
		got, err := e.hasPointsOn(ctx, ind.ID, ev.OccurredAt)
		if err != nil {
			log.Error("daily limit check failed", zap.Error(err))
			return 0, SkipError
		}
		if got {
			return 0, SkipDailyLimit
		}
	}
	_, err = e.AddPoints(ctx, AddPointsInput{
		IndividualID:  ind.ID,
		Amount:        settings.EntryPoints,
		Type:          models.TxEntry,
		Description:   "entry points",
		AccessEventID: &ev.ID,
		At:            ev.OccurredAt,
	})
	if err != nil {
		log.Error("entry points failed", zap.Error(err))
		return 0, SkipError
	}
	return settings.EntryPoints, ""
}

// monthlyEntryCount counts entry events in at's local month up to and including at.
func (e *Engine) monthlyEntryCount(ctx context.Context, individualID uint, at time.Time) (int64, error) {
	var n int64
	err := e.db.WithContext(ctx).Model(&models.AccessEvent{}).
		Where("individual_id = ? AND event_type = ? AND occurred_at >= ? AND occurred_at <= ?",
			individualID, models.EventEntry, MonthStart(at).UTC(), at.UTC()).
		Count(&n).Error
	return n, err
}

// awardMonthlyBonus credits the bonus unless one already exists in at's local month.
func (e *Engine) awardMonthlyBonus(ctx context.Context, ind *models.Individual, ev *models.AccessEvent, count int64) (int, error) {
	from, to := MonthStart(ev.OccurredAt), NextMonthStart(ev.OccurredAt)
	var n int64
	err := e.db.WithContext(ctx).Model(&models.PointTransaction{}).
		Where("individual_id = ? AND transaction_type = ? AND created_at >= ? AND created_at < ?",
			ind.ID, models.TxMonthlyBonus, from.UTC(), to.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, ErrBonusAlreadyAwarded
	}
	pts := e.ResolveBonusPoints(ctx, ind.SiteID, ind.Role, ind.ClassTag)
	if pts <= 0 {
		return 0, nil
	}
	_, err = e.AddPoints(ctx, AddPointsInput{
		IndividualID: ind.ID,
		Amount:       pts,
		Type:         models.TxMonthlyBonus,
		Description:  fmt.Sprintf("monthly bonus: %d entries in %s", count, from.Format("2006-01")),
		At:           ev.OccurredAt,
	})
	if err != nil {
		return 0, err
	}
	return pts, nil
}
