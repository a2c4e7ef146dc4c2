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

type published struct {
	Site    string
	Kind    string
	Payload interface{}
}

type recordingPublisher struct {
	mu  sync.Mutex
	out []published
}

func (r *recordingPublisher) Publish(siteID, kind string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, published{Site: siteID, Kind: kind, Payload: payload})
}

func (r *recordingPublisher) events() []LiveEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var evs []LiveEvent
	for _, p := range r.out {
		if ev, ok := p.Payload.(LiveEvent); ok {
			evs = append(evs, ev)
		}
	}
	return evs
}

func TestTapsArePublished(t *testing.T) {
	pub := &recordingPublisher{}
	e, clock := newTestEngine(t, WithPublisher(pub))
	ctx := context.Background()
	seedIndividual(t, e, "card-live", models.RoleStudent)

	clock.Set(local(2024, time.April, 10, 8, 0))
	_, err := e.RecordTap(ctx, TapInput{CardUID: "card-live", DeviceID: "gate-1"})
	require.NoError(t, err)
	_, err = e.RecordTap(ctx, TapInput{CardUID: "card-live", EventType: models.EventNoLog})
	require.NoError(t, err)

	evs := pub.events()
	require.Len(t, evs, 2)
	assert.Equal(t, models.EventEntry, evs[0].EventType)
	assert.True(t, evs[0].Inside)
	assert.Equal(t, 1, evs[0].CurrentPoints)
	assert.Equal(t, "gate-1", evs[0].DeviceID)
	assert.Equal(t, models.EventNoLog, evs[1].EventType)
	assert.True(t, evs[1].Inside, "no_log leaves presence alone")
	assert.Equal(t, "default", pub.out[0].Site)
}

func TestForcedExitsArePublished(t *testing.T) {
	pub := &recordingPublisher{}
	e, clock := newTestEngine(t, WithPublisher(pub))
	ctx := context.Background()
	seedIndividual(t, e, "card-sweep", models.RoleStudent)
	enterAt(t, e, clock, "card-sweep", local(2024, time.April, 10, 9, 0))

	clock.Set(local(2024, time.April, 10, 21, 0))
	_, err := e.RunAutoExit(ctx, "default", SweepManual)
	require.NoError(t, err)

	evs := pub.events()
	require.Len(t, evs, 2)
	assert.Equal(t, models.EventForcedExit, evs[1].EventType)
	assert.False(t, evs[1].Inside)
	assert.Equal(t, AutoExitDeviceID, evs[1].DeviceID)

	pub.mu.Lock()
	last := pub.out[len(pub.out)-1]
	pub.mu.Unlock()
	assert.Equal(t, LiveSweep, last.Kind)
	report, ok := last.Payload.(SweepReport)
	require.True(t, ok)
	assert.Equal(t, 1, report.Exited)
}

func TestSiteWideSweepPublishesOneSummaryPerSite(t *testing.T) {
	pub := &recordingPublisher{}
	e, clock := newTestEngine(t, WithPublisher(pub))
	ctx := context.Background()
	seedIndividual(t, e, "card-d1", models.RoleStudent)
	seedIndividual(t, e, "card-d2", models.RoleStudent)
	_, err := e.CreateIndividual(ctx, IndividualInput{SiteID: "north", Name: "Saburo", CardUID: "card-n1", Role: models.RoleStudent})
	require.NoError(t, err)
	_, err = e.CreateIndividual(ctx, IndividualInput{SiteID: "south", Name: "Shiro", CardUID: "card-s1", Role: models.RoleStudent})
	require.NoError(t, err)

	for _, card := range []string{"card-d1", "card-d2", "card-n1"} {
		enterAt(t, e, clock, card, local(2024, time.April, 10, 9, 0))
	}

	clock.Set(local(2024, time.April, 10, 21, 0))
	report, err := e.RunAutoExit(ctx, "", SweepScheduled)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Exited)

	summaries := map[string]SweepReport{}
	pub.mu.Lock()
	for _, p := range pub.out {
		if p.Kind == LiveSweep {
			_, dup := summaries[p.Site]
			assert.False(t, dup, "one summary per site")
			summaries[p.Site] = p.Payload.(SweepReport)
		}
	}
	pub.mu.Unlock()

	require.Len(t, summaries, 2, "south had nobody inside")
	assert.Equal(t, 2, summaries["default"].Exited)
	assert.Len(t, summaries["default"].Items, 2)
	assert.Equal(t, 1, summaries["north"].Exited)
	assert.Equal(t, 1, summaries["north"].Checked)
}

func TestNotifierFailuresAreSwallowed(t *testing.T) {
	e, clock := newTestEngine(t, WithNotifier(failingNotifier{}))
	ctx := context.Background()
	ind := seedIndividual(t, e, "card-fail", models.RoleStudent)
	_, err := e.AddGuardian(ctx, ind.ID, "Parent", "U-parent")
	require.NoError(t, err)

	clock.Set(local(2024, time.April, 10, 8, 0))
	res, err := e.RecordTap(ctx, TapInput{CardUID: "card-fail"})
	require.NoError(t, err)
	e.WaitNotifications()
	assert.Equal(t, models.EventEntry, res.Event.EventType)
}

type failingNotifier struct{}

func (failingNotifier) NotifyGuardians(context.Context, models.Individual, []models.Guardian, string, time.Time) error {
	return assert.AnError
}
