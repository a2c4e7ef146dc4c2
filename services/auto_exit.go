package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/schoolgate/models"
)

// SweepMode selects the crossing rule used by RunAutoExit.
type SweepMode string

const (
	// SweepScheduled exits when now is past today's window end.
	SweepScheduled SweepMode = "scheduled"
	// SweepManual exits when a window end falls between the last event and now.
	SweepManual SweepMode = "manual"
)

// AutoExitDeviceID marks forced exits in the event log.
const AutoExitDeviceID = "auto-exit"

// SweepItem is the outcome for one individual still inside.
type SweepItem struct {
	IndividualID uint         `json:"individual_id"`
	Name         string       `json:"name"`
	Window       AccessWindow `json:"window"`
	LastEventAt  *time.Time   `json:"last_event_at"`
	Exited       bool         `json:"exited"`
	Error        string       `json:"error,omitempty"`
}

// SweepReport summarises one auto-exit run.
type SweepReport struct {
	Mode    SweepMode   `json:"mode"`
	RanAt   time.Time   `json:"ran_at"`
	Checked int         `json:"checked"`
	Exited  int         `json:"exited"`
	Failed  int         `json:"failed"`
	Items   []SweepItem `json:"items"`
}

// RunAutoExit writes a forced_exit for every active individual still inside
// whose window has closed. siteID "" sweeps every site. Per-individual failures
// are reported, not returned.
func (e *Engine) RunAutoExit(ctx context.Context, siteID string, mode SweepMode) (SweepReport, error) {
	now := e.Now()
	report := SweepReport{Mode: mode, RanAt: now, Items: []SweepItem{}}

	q := e.db.WithContext(ctx).Where("status = ? AND last_event_type = ?", models.StatusActive, models.EventEntry)
	if siteID != "" {
		q = q.Where("site_id = ?", siteID)
	}
	var inside []models.Individual
	if err := q.Order("id").Find(&inside).Error; err != nil {
		return report, err
	}
	bySite := map[string]*SweepReport{}
	var sites []string

	for i := range inside {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		ind := &inside[i]
		item := e.sweepOne(ctx, ind, mode, now)
		report.add(item)

		sr, ok := bySite[ind.SiteID]
		if !ok {
			sr = &SweepReport{Mode: mode, RanAt: now, Items: []SweepItem{}}
			bySite[ind.SiteID] = sr
			sites = append(sites, ind.SiteID)
		}
		sr.add(item)
	}

	for _, site := range sites {
		if sr := bySite[site]; sr.Exited > 0 {
			e.publish(site, LiveSweep, *sr)
		}
	}
	e.log.Info("auto-exit sweep finished",
		zap.String("mode", string(mode)),
		zap.String("site_id", siteID),
		zap.Int("checked", report.Checked),
		zap.Int("exited", report.Exited),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// sweepOne force-exits ind when its window has closed under mode.
func (e *Engine) sweepOne(ctx context.Context, ind *models.Individual, mode SweepMode, now time.Time) SweepItem {
	window := e.ResolveAccessWindow(ctx, ind)
	item := SweepItem{IndividualID: ind.ID, Name: ind.Name, Window: window, LastEventAt: ind.LastEventAt}

	var crossed bool
	if mode == SweepManual {
		crossed = HasWindowCrossed(ind.LastEventAt, now, window.Start, window.End)
	} else {
		crossed = pastScheduledEnd(window, now)
	}
	if !crossed {
		return item
	}
	ev, err := e.forceExit(ctx, ind, now)
	switch {
	case err != nil:
		item.Error = err.Error()
		e.log.Error("forced exit failed", zap.Uint("individual_id", ind.ID), zap.Error(err))
	case ev != nil:
		item.Exited = true
		ind.LastEventType = models.EventExit
		ind.LastEventAt = &now
		e.publishEvent(*ind, *ev)
	}
	return item
}

// forceExit records a forced_exit and moves presence to exit. The presence
// update is conditional so a tap racing the sweep wins; the returned event is
// nil in that case.
func (e *Engine) forceExit(ctx context.Context, ind *models.Individual, now time.Time) (*models.AccessEvent, error) {
	var created *models.AccessEvent
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Individual{}).
			Where("id = ? AND last_event_type = ?", ind.ID, models.EventEntry).
			Updates(map[string]interface{}{"last_event_type": models.EventExit, "last_event_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		ev := models.AccessEvent{
			IndividualID:    ind.ID,
			SiteID:          ind.SiteID,
			EventType:       models.EventForcedExit,
			OccurredAt:      now,
			DeviceID:        AutoExitDeviceID,
			PointsProcessed: true,
		}
		if err := tx.Create(&ev).Error; err != nil {
			return err
		}
		created = &ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *SweepReport) add(item SweepItem) {
	r.Checked++
	switch {
	case item.Exited:
		r.Exited++
	case item.Error != "":
		r.Failed++
	}
	r.Items = append(r.Items, item)
}
