package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/schoolgate/models"
)

func recordEntry(t *testing.T, e *Engine, ind models.Individual, at time.Time) models.AccessEvent {
	t.Helper()
	ev := models.AccessEvent{IndividualID: ind.ID, SiteID: ind.SiteID, EventType: models.EventEntry, OccurredAt: at.UTC()}
	require.NoError(t, e.db.Create(&ev).Error)
	return ev
}

func txCount(t *testing.T, e *Engine, id uint, txType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.PointTransaction{}).
		Where("individual_id = ? AND transaction_type = ?", id, txType).Count(&n).Error)
	return n
}

func TestAwardEntryIsIdempotentPerEvent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	ind := seedIndividual(t, e, "card-1", models.RoleStudent)
	_, err := e.SetPointSettings(ctx, "default", 2, false)
	require.NoError(t, err)

	ev := recordEntry(t, e, ind, local(2024, time.April, 10, 9, 0))
	first, err := e.AwardEntry(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.EntryPoints)

	second, err := e.AwardEntry(ctx, ev.ID)
	require.NoError(t, err)
	assert.Zero(t, second.EntryPoints)
	assert.Equal(t, SkipAlreadyProcessed, second.SkipReason)

	assert.Equal(t, 2, balance(t, e, ind.ID))
	assert.EqualValues(t, 1, txCount(t, e, ind.ID, models.TxEntry))
}

func TestAwardEntryDailyLimit(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	ind := seedIndividual(t, e, "card-1", models.RoleStudent)

	morning, err := e.AwardEntry(ctx, recordEntry(t, e, ind, local(2024, time.April, 10, 8, 50)).ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultEntryPoints, morning.EntryPoints)

	afternoon, err := e.AwardEntry(ctx, recordEntry(t, e, ind, local(2024, time.April, 10, 13, 0)).ID)
	require.NoError(t, err)
	assert.Zero(t, afternoon.EntryPoints)
	assert.Equal(t, SkipDailyLimit, afternoon.SkipReason)

	// Just after local midnight is a new day even though UTC has not rolled over.
	nextDay, err := e.AwardEntry(ctx, recordEntry(t, e, ind, local(2024, time.April, 11, 0, 5)).ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultEntryPoints, nextDay.EntryPoints)

	assert.Equal(t, 2, balance(t, e, ind.ID))
}

func TestAwardEntryWithoutDailyLimitAwardsEveryEntry(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	ind := seedIndividual(t, e, "card-1", models.RoleStudent)
	_, err := e.SetPointSettings(ctx, "default", 1, false)
	require.NoError(t, err)

	for _, h := range []int{8, 12, 16} {
		_, err := e.AwardEntry(ctx, recordEntry(t, e, ind, local(2024, time.April, 10, h, 0)).ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, balance(t, e, ind.ID))
}

func TestAwardEntryZeroPointsRecordsNothing(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	ind := seedIndividual(t, e, "card-1", models.RoleStudent)
	_, err := e.SetPointSettings(ctx, "default", 0, true)
	require.NoError(t, err)

	award, err := e.AwardEntry(ctx, recordEntry(t, e, ind, local(2024, time.April, 10, 9, 0)).ID)
	require.NoError(t, err)
	assert.Equal(t, SkipDisabled, award.SkipReason)
	assert.EqualValues(t, 0, txCount(t, e, ind.ID, models.TxEntry))
}

func TestMonthlyBonusOnThresholdOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	ind := seedIndividual(t, e, "card-1", models.RoleStudent)

	var last EntryAward
	for day := 1; day <= 10; day++ {
		award, err := e.AwardEntry(ctx, recordEntry(t, e, ind, local(2024, time.May, day, 9, 0)).ID)
		require.NoError(t, err)
		if day < 10 {
			assert.Zero(t, award.BonusPoints, "day %d", day)
		}
		last = award
	}
	assert.EqualValues(t, 10, last.MonthlyEntries)
	assert.Equal(t, DefaultBonusThreshold, last.Threshold)
	assert.Equal(t, DefaultBonusPoints, last.BonusPoints)
	assert.Equal(t, 10+DefaultBonusPoints, balance(t, e, ind.ID))

	eleventh, err := e.AwardEntry(ctx, recordEntry(t, e, ind, local(2024, time.May, 11, 9, 0)).ID)
	require.NoError(t, err)
	assert.Zero(t, eleventh.BonusPoints)
	assert.EqualValues(t, 1, txCount(t, e, ind.ID, models.TxMonthlyBonus))
	assert.Equal(t, 11+DefaultBonusPoints, balance(t, e, ind.ID))
	assert.Equal(t, balance(t, e, ind.ID), ledgerSum(t, e, ind.ID))
}

func TestMonthlyBonusResetsNextMonth(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	ind := seedIndividual(t, e, "card-1", models.RoleStudent)
	ind.HasCustomBonusThreshold = true
	ind.BonusThreshold = intPtr(2)
	require.NoError(t, e.db.Save(&ind).Error)

	for _, at := range []time.Time{
		local(2024, time.May, 30, 9, 0),
		local(2024, time.May, 31, 9, 0),
		local(2024, time.June, 1, 9, 0),
		local(2024, time.June, 2, 9, 0),
	} {
		_, err := e.AwardEntry(ctx, recordEntry(t, e, ind, at).ID)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, txCount(t, e, ind.ID, models.TxMonthlyBonus))
}

func TestAwardEntryRejectsOtherEvents(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	ind := seedIndividual(t, e, "card-1", models.RoleStudent)
	ev := models.AccessEvent{IndividualID: ind.ID, SiteID: "default", EventType: models.EventExit, OccurredAt: clock.Now().UTC()}
	require.NoError(t, e.db.Create(&ev).Error)

	_, err := e.AwardEntry(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrNotEntryEvent)
	_, err = e.AwardEntry(ctx, 12345)
	assert.ErrorIs(t, err, ErrEventNotFound)
}
