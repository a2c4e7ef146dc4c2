package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/schoolgate/models"
)

// Notifier delivers entry/exit messages to an individual's guardians.
type Notifier interface {
	NotifyGuardians(ctx context.Context, ind models.Individual, guardians []models.Guardian, eventType string, at time.Time) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) NotifyGuardians(context.Context, models.Individual, []models.Guardian, string, time.Time) error {
	return nil
}

// Publisher broadcasts presence changes to dashboards watching a site.
type Publisher interface {
	Publish(siteID, kind string, payload interface{})
}

// Live message kinds.
const (
	LiveAccessEvent = "access_event"
	LiveSweep       = "auto_exit"
)

// LiveEvent is the dashboard view of one access event.
type LiveEvent struct {
	EventID       uint      `json:"event_id"`
	IndividualID  uint      `json:"individual_id"`
	Name          string    `json:"name"`
	ClassTag      string    `json:"class_tag,omitempty"`
	EventType     string    `json:"event_type"`
	OccurredAt    time.Time `json:"occurred_at"`
	DeviceID      string    `json:"device_id,omitempty"`
	CurrentPoints int       `json:"current_points"`
	Inside        bool      `json:"inside"`
}

func (e *Engine) publish(siteID, kind string, payload interface{}) {
	if e.feed != nil {
		e.feed.Publish(siteID, kind, payload)
	}
}

func (e *Engine) publishEvent(ind models.Individual, ev models.AccessEvent) {
	e.publish(ind.SiteID, LiveAccessEvent, LiveEvent{
		EventID:       ev.ID,
		IndividualID:  ind.ID,
		Name:          ind.Name,
		ClassTag:      ind.ClassTag,
		EventType:     ev.EventType,
		OccurredAt:    ev.OccurredAt,
		DeviceID:      ev.DeviceID,
		CurrentPoints: ind.CurrentPoints,
		Inside:        ind.IsInside(),
	})
}

const notifyTimeout = 10 * time.Second

// notifyAsync sends in the background; failures are logged only.
func (e *Engine) notifyAsync(ind models.Individual, eventType string, at time.Time) {
	if e.notifier == nil {
		return
	}
	if _, ok := e.notifier.(NopNotifier); ok {
		return
	}
	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		var guardians []models.Guardian
		if err := e.db.WithContext(ctx).Where("individual_id = ?", ind.ID).Find(&guardians).Error; err != nil {
			e.log.Warn("guardian lookup failed", zap.Uint("individual_id", ind.ID), zap.Error(err))
			return
		}
		if len(guardians) == 0 {
			return
		}
		if err := e.notifier.NotifyGuardians(ctx, ind, guardians, eventType, at); err != nil {
			e.log.Warn("guardian notification failed",
				zap.Uint("individual_id", ind.ID),
				zap.String("event_type", eventType),
				zap.Error(err),
			)
		}
	}()
}
