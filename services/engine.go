package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/schoolgate/models"
	"github.com/cppla/schoolgate/utils"
)

// Engine owns the presence, points and settings rules. It is safe for
// concurrent use; all shared state lives in the database.
type Engine struct {
	db       *gorm.DB
	log      *zap.Logger
	notifier Notifier
	feed     Publisher
	now      func() time.Time

	settingsTTL time.Duration
	notifyWG    sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithNotifier sets where guardian notifications are delivered.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithPublisher sets where live presence events are broadcast.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.feed = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSettingsCache enables the Redis read-through cache for settings. ttl <= 0 disables it.
func WithSettingsCache(ttl time.Duration) Option {
	return func(e *Engine) { e.settingsTTL = ttl }
}

// NewEngine builds an Engine over db.
func NewEngine(db *gorm.DB, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		log:      zap.NewNop(),
		notifier: NopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DB exposes the underlying handle for read-only listing endpoints.
func (e *Engine) DB() *gorm.DB {
	return e.db
}

// Now returns the engine clock in UTC.
func (e *Engine) Now() time.Time {
	return e.now().UTC()
}

// WaitNotifications blocks until in-flight guardian notifications finish.
func (e *Engine) WaitNotifications() {
	e.notifyWG.Wait()
}

func (e *Engine) findIndividual(ctx context.Context, id uint) (models.Individual, error) {
	var ind models.Individual
	err := e.db.WithContext(ctx).First(&ind, id).Error
	if err == gorm.ErrRecordNotFound {
		return ind, ErrIndividualNotFound
	}
	return ind, err
}

// cached reads key from the settings cache, falling back to load and storing its result.
func cached[T any](ctx context.Context, e *Engine, key string, load func() (T, error)) (T, error) {
	var v T
	if e.settingsTTL > 0 && utils.CacheGetJSON(ctx, key, &v) {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if e.settingsTTL > 0 {
		utils.CacheSetJSON(ctx, key, v, e.settingsTTL)
	}
	return v, nil
}

func settingsKey(siteID string, parts ...string) string {
	key := settingsPrefix(siteID)
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func settingsPrefix(siteID string) string {
	return "settings:" + siteID
}

func (e *Engine) invalidateSettings(ctx context.Context, siteID string) {
	if e.settingsTTL > 0 {
		utils.InvalidateByPrefix(ctx, settingsPrefix(siteID)+":")
	}
}
