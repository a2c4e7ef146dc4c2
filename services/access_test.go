package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/schoolgate/models"
)

type sentNotice struct {
	Individual string
	EventType  string
	Guardians  int
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (r *recordingNotifier) NotifyGuardians(_ context.Context, ind models.Individual, guardians []models.Guardian, eventType string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotice{Individual: ind.Name, EventType: eventType, Guardians: len(guardians)})
	return nil
}

func (r *recordingNotifier) notices() []sentNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentNotice(nil), r.sent...)
}

func TestRecordTapTogglesPresence(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	ind := seedIndividual(t, e, "04A1B2", models.RoleStudent)

	clock.Set(local(2024, time.April, 10, 8, 45))
	in, err := e.RecordTap(ctx, TapInput{CardUID: "04A1B2", DeviceID: "gate-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EventEntry, in.Event.EventType)
	assert.True(t, in.Individual.IsInside())
	require.NotNil(t, in.Award)
	assert.Equal(t, 1, in.Award.EntryPoints)
	assert.Equal(t, 1, in.Individual.CurrentPoints)

	clock.Set(local(2024, time.April, 10, 16, 0))
	out, err := e.RecordTap(ctx, TapInput{CardUID: "04A1B2", DeviceID: "gate-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EventExit, out.Event.EventType)
	assert.False(t, out.Individual.IsInside())
	assert.Nil(t, out.Award)

	fresh, err := e.GetIndividual(ctx, ind.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventExit, fresh.LastEventType)
	require.NotNil(t, fresh.LastEventAt)
	assert.True(t, fresh.LastEventAt.Equal(local(2024, time.April, 10, 16, 0)))
}

func TestRecordTapExplicitEventType(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	seedIndividual(t, e, "card-1", models.RoleStudent)

	res, err := e.RecordTap(ctx, TapInput{CardUID: "card-1", EventType: models.EventEntry})
	require.NoError(t, err)
	assert.Equal(t, models.EventEntry, res.Event.EventType)

	res, err = e.RecordTap(ctx, TapInput{CardUID: "card-1", EventType: models.EventEntry})
	require.NoError(t, err)
	assert.Equal(t, models.EventEntry, res.Event.EventType, "kiosk choice wins over toggling")

	_, err = e.RecordTap(ctx, TapInput{CardUID: "card-1", EventType: models.EventForcedExit})
	assert.ErrorIs(t, err, ErrInvalidEventType)
}

func TestRecordTapNoLogLeavesPresenceAlone(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	e.notifier = notifier
	ind := seedIndividual(t, e, "card-1", models.RoleStudent)
	_, err := e.AddGuardian(ctx, ind.ID, "Parent", "U123")
	require.NoError(t, err)

	res, err := e.RecordTap(ctx, TapInput{CardUID: "card-1", EventType: models.EventNoLog})
	require.NoError(t, err)
	assert.Equal(t, models.EventNoLog, res.Event.EventType)
	assert.Empty(t, res.Individual.LastEventType)
	assert.Zero(t, res.Individual.CurrentPoints)

	e.WaitNotifications()
	assert.Empty(t, notifier.notices())

	var n int64
	require.NoError(t, e.db.Model(&models.AccessEvent{}).Where("event_type = ?", models.EventNoLog).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestRecordTapNotifiesGuardians(t *testing.T) {
	notifier := &recordingNotifier{}
	e, _ := newTestEngine(t, WithNotifier(notifier))
	ctx := context.Background()
	ind := seedIndividual(t, e, "card-1", models.RoleStudent)
	_, err := e.AddGuardian(ctx, ind.ID, "Mother", "U1")
	require.NoError(t, err)
	_, err = e.AddGuardian(ctx, ind.ID, "Father", "U2")
	require.NoError(t, err)
	seedIndividual(t, e, "card-2", models.RoleStudent) // no guardians

	_, err = e.RecordTap(ctx, TapInput{CardUID: "card-1"})
	require.NoError(t, err)
	_, err = e.RecordTap(ctx, TapInput{CardUID: "card-1"})
	require.NoError(t, err)
	_, err = e.RecordTap(ctx, TapInput{CardUID: "card-2"})
	require.NoError(t, err)
	e.WaitNotifications()

	assert.ElementsMatch(t, []sentNotice{
		{Individual: ind.Name, EventType: models.EventEntry, Guardians: 2},
		{Individual: ind.Name, EventType: models.EventExit, Guardians: 2},
	}, notifier.notices())
}

func TestRecordTapRejections(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	ind := seedIndividual(t, e, "card-1", models.RoleStudent)

	_, err := e.RecordTap(ctx, TapInput{CardUID: "  "})
	assert.ErrorIs(t, err, ErrInvalidCard)

	_, err = e.RecordTap(ctx, TapInput{CardUID: "unknown"})
	assert.ErrorIs(t, err, ErrIndividualNotFound)

	_, err = e.UpdateIndividual(ctx, ind.ID, IndividualPatch{Status: strPtr(models.StatusSuspended)})
	require.NoError(t, err)
	_, err = e.RecordTap(ctx, TapInput{CardUID: "card-1"})
	assert.ErrorIs(t, err, ErrIndividualInactive)

	var n int64
	require.NoError(t, e.db.Model(&models.AccessEvent{}).Count(&n).Error)
	assert.Zero(t, n)
}
