package services

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/schoolgate/models"
)

// TapInput is one card read at a kiosk. EventType may be empty to toggle
// presence from the individual's last event.
type TapInput struct {
	CardUID   string
	EventType string
	DeviceID  string
}

// TapResult is what the kiosk shows after a tap.
type TapResult struct {
	Event      models.AccessEvent `json:"event"`
	Individual models.Individual  `json:"individual"`
	Award      *EntryAward        `json:"award,omitempty"`
}

// RecordTap stores the access event, updates presence, runs the entry award
// and queues guardian notifications. Only failures to record the event or
// presence are returned; award and notification problems are logged.
func (e *Engine) RecordTap(ctx context.Context, in TapInput) (TapResult, error) {
	var out TapResult
	card := strings.TrimSpace(in.CardUID)
	if card == "" {
		return out, ErrInvalidCard
	}
	if in.EventType != "" && !models.ValidEventType(in.EventType) {
		return out, ErrInvalidEventType
	}

	var ind models.Individual
	if err := e.db.WithContext(ctx).Where("card_uid = ?", card).First(&ind).Error; err != nil {
		if isNotFound(err) {
			return out, ErrIndividualNotFound
		}
		return out, err
	}
	if ind.Status != models.StatusActive {
		return out, ErrIndividualInactive
	}

	eventType := in.EventType
	if eventType == "" {
		eventType = models.EventEntry
		if ind.IsInside() {
			eventType = models.EventExit
		}
	}

	now := e.Now()
	ev := models.AccessEvent{
		IndividualID:    ind.ID,
		SiteID:          ind.SiteID,
		EventType:       eventType,
		OccurredAt:      now,
		DeviceID:        in.DeviceID,
		PointsProcessed: eventType != models.EventEntry,
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ev).Error; err != nil {
			return err
		}
		if eventType == models.EventNoLog {
			return nil
		}
		return tx.Model(&models.Individual{}).Where("id = ?", ind.ID).
			Updates(map[string]interface{}{"last_event_type": eventType, "last_event_at": now}).Error
	})
	if err != nil {
		return out, err
	}
	out.Event = ev

	if eventType == models.EventEntry {
		award, err := e.AwardEntry(ctx, ev.ID)
		if err != nil {
			e.log.Error("entry award failed", zap.Uint("event_id", ev.ID), zap.Error(err))
		} else {
			out.Award = &award
		}
	}

	if fresh, err := e.findIndividual(ctx, ind.ID); err == nil {
		ind = fresh
	} else {
		e.log.Warn("reload individual failed", zap.Uint("individual_id", ind.ID), zap.Error(err))
	}
	out.Individual = ind

	e.publishEvent(ind, ev)
	if eventType == models.EventEntry || eventType == models.EventExit {
		e.notifyAsync(ind, eventType, now)
	}
	e.log.Info("tap recorded",
		zap.Uint("individual_id", ind.ID),
		zap.String("event_type", eventType),
		zap.String("device_id", in.DeviceID),
	)
	return out, nil
}
