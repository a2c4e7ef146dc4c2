package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/schoolgate/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *testClock) {
	t.Helper()
	clock := &testClock{t: local(2024, time.April, 10, 12, 0)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewEngine(newTestDB(t), opts...), clock
}

// local builds a facility-local instant.
func local(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, Location())
}

func seedIndividual(t *testing.T, e *Engine, card, role string) models.Individual {
	t.Helper()
	ind, err := e.CreateIndividual(context.Background(), IndividualInput{
		SiteID:  "default",
		Name:    "Student " + card,
		CardUID: card,
		Role:    role,
	})
	require.NoError(t, err)
	return ind
}

func balance(t *testing.T, e *Engine, id uint) int {
	t.Helper()
	ind, err := e.findIndividual(context.Background(), id)
	require.NoError(t, err)
	return ind.CurrentPoints
}

func ledgerSum(t *testing.T, e *Engine, id uint) int {
	t.Helper()
	var sum int
	require.NoError(t, e.db.Model(&models.PointTransaction{}).
		Select("COALESCE(SUM(points), 0)").Where("individual_id = ?", id).Scan(&sum).Error)
	return sum
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func boolPtr(b bool) *bool { return &b }
