package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/schoolgate/config"
	"github.com/cppla/schoolgate/livefeed"
	"github.com/cppla/schoolgate/middleware"
	"github.com/cppla/schoolgate/models"
	"github.com/cppla/schoolgate/services"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type envelope struct {
	OK    bool            `json:"ok"`
	Code  int             `json:"code"`
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	token  string
	clock  *clock
	hub    *livefeed.Hub
	db     *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	config.Set(config.AppConfig{
		JWTSecret:     "test-secret",
		GinMode:       "test",
		GinPath:       filepath.Join(t.TempDir(), "gin.log"),
		RedisDisabled: true,
		KioskAPIKeys:  []string{"kiosk-key"},
		CronSecret:    "cron-secret",
	})
	services.SetUTCOffset(9 * 60)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
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

	c := &clock{t: time.Date(2024, time.April, 10, 8, 30, 0, 0, services.Location())}
	hub := livefeed.NewHub(nil, []string{"*"})
	t.Cleanup(hub.Close)
	engine := services.NewEngine(db, services.WithClock(c.Now), services.WithPublisher(hub))
	require.NoError(t, engine.EnsureAdmin(context.Background(), "office", "pass1234", "default"))

	return &testServer{t: t, router: SetupRouter(db, engine, hub), clock: c, hub: hub, db: db}
}

func (s *testServer) call(method, path string, body interface{}, headers map[string]string) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (s *testServer) login() {
	s.t.Helper()
	status, env := s.call(http.MethodPost, "/api/v1/auth/login", gin.H{"username": "office", "password": "pass1234"}, nil)
	require.Equal(s.t, http.StatusOK, status, env.Error)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(s.t, out.Token)
	s.token = out.Token
}

func (s *testServer) tap(card string) (int, envelope) {
	s.t.Helper()
	return s.call(http.MethodPost, "/api/v1/kiosk/tap", gin.H{"card_uid": card}, map[string]string{
		middleware.KioskKeyHeader: "kiosk-key",
		middleware.DeviceIDHeader: "gate-1",
	})
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v), string(raw))
}

func TestHealthAndNoRoute(t *testing.T) {
	s := newTestServer(t)
	status, env := s.call(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.OK)

	status, env = s.call(http.MethodGet, "/api/v1/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40400, env.Code)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := newTestServer(t)
	status, env := s.call(http.MethodPost, "/api/v1/auth/login", gin.H{"username": "office", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40106, env.Code)

	status, _ = s.call(http.MethodGet, "/api/v1/individuals", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAttendanceAndPointsFlow(t *testing.T) {
	s := newTestServer(t)
	s.login()

	status, env := s.call(http.MethodPost, "/api/v1/individuals", gin.H{"name": "Hanako", "card_uid": "CARD-1", "role": "student"}, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var ind models.Individual
	decode(t, env.Data, &ind)
	require.NotZero(t, ind.ID)

	status, env = s.call(http.MethodPost, "/api/v1/individuals", gin.H{"name": "Clone", "card_uid": "CARD-1", "role": "student"}, nil)
	assert.Equal(t, http.StatusConflict, status)

	var tap struct {
		EventType     string `json:"event_type"`
		CurrentPoints int    `json:"current_points"`
		Inside        bool   `json:"inside"`
	}
	status, env = s.tap("CARD-1")
	require.Equal(t, http.StatusOK, status, env.Error)
	decode(t, env.Data, &tap)
	assert.Equal(t, models.EventEntry, tap.EventType)
	assert.Equal(t, 1, tap.CurrentPoints)
	assert.True(t, tap.Inside)

	status, env = s.tap("UNKNOWN")
	assert.Equal(t, http.StatusNotFound, status)

	status, env = s.call(http.MethodPost, "/api/v1/kiosk/tap", gin.H{"card_uid": "CARD-1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = s.call(http.MethodPost, "/api/v1/points/consume", gin.H{"individual_id": ind.ID, "amount": 5}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40010, env.Code)

	status, env = s.call(http.MethodPost, "/api/v1/points/add", gin.H{"individual_id": ind.ID, "amount": 4, "description": "<b>helper</b>"}, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var tx models.PointTransaction
	decode(t, env.Data, &tx)
	assert.Equal(t, models.TxManualAdd, tx.TransactionType)
	assert.Equal(t, "helper", tx.Description)

	status, env = s.call(http.MethodPost, "/api/v1/points/consume", gin.H{"individual_id": ind.ID, "amount": 5}, nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = s.call(http.MethodPost, "/api/v1/points/add", gin.H{"individual_id": ind.ID, "amount": -3}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = s.call(http.MethodGet, fmt.Sprintf("/api/v1/individuals/%d/transactions", ind.ID), nil, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var page struct {
		Items      []models.PointTransaction `json:"items"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decode(t, env.Data, &page)
	assert.EqualValues(t, 3, page.Pagination.Total)

	status, env = s.call(http.MethodPost, "/api/v1/points/reconcile", gin.H{}, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var report services.ReconcileReport
	decode(t, env.Data, &report)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Discrepancies)

	require.NoError(t, s.db.Create(&models.KioskDevice{DeviceID: "gate-north", SiteID: "north", LastSeenAt: time.Now().UTC()}).Error)
	status, env = s.call(http.MethodGet, "/api/v1/kiosk-devices", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var devices []models.KioskDevice
	decode(t, env.Data, &devices)
	require.Len(t, devices, 1)
	assert.Equal(t, "gate-1", devices[0].DeviceID, "other sites' kiosks are hidden")
	assert.Equal(t, "default", devices[0].SiteID)
	assert.EqualValues(t, 2, devices[0].Requests, "rejected keys never reach the heartbeat")
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestServer(t)
	s.login()

	status, env := s.call(http.MethodPut, "/api/v1/settings/points", gin.H{"entry_points": 0, "daily_limit": false}, nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = s.call(http.MethodGet, "/api/v1/settings/points", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var ps models.PointSettings
	decode(t, env.Data, &ps)
	assert.Equal(t, 0, ps.EntryPoints)
	assert.False(t, ps.DailyLimit)

	status, env = s.call(http.MethodPut, "/api/v1/settings/points", gin.H{"daily_limit": true}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = s.call(http.MethodPut, "/api/v1/settings/access-times", gin.H{"items": []gin.H{
		{"role": "student", "start_time": "08:00", "end_time": "17:00"},
	}}, nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = s.call(http.MethodPut, "/api/v1/settings/access-times", gin.H{"items": []gin.H{
		{"role": "student", "start_time": "25:00", "end_time": "17:00"},
	}}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = s.call(http.MethodPut, "/api/v1/settings/access-times", gin.H{"items": []gin.H{
		{"role": "student", "start_time": "08:00", "end_time": "08:00"},
	}}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40001, env.Code)

	status, env = s.call(http.MethodPut, "/api/v1/settings/bonus", gin.H{"items": []gin.H{
		{"role": "student", "threshold": 0, "bonus_points": 5},
	}}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAutoExitEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.login()

	_, env := s.call(http.MethodPost, "/api/v1/individuals", gin.H{"name": "Taro", "card_uid": "CARD-2", "role": "student"}, nil)
	var ind models.Individual
	decode(t, env.Data, &ind)
	status, env := s.tap("CARD-2")
	require.Equal(t, http.StatusOK, status, env.Error)

	status, _ = s.call(http.MethodPost, "/api/v1/cron/auto-exit", nil, map[string]string{middleware.CronSecretHeader: "guess"})
	assert.Equal(t, http.StatusUnauthorized, status)

	var report services.SweepReport
	status, env = s.call(http.MethodPost, "/api/v1/cron/auto-exit", nil, map[string]string{middleware.CronSecretHeader: "cron-secret"})
	require.Equal(t, http.StatusOK, status, env.Error)
	decode(t, env.Data, &report)
	assert.Equal(t, 0, report.Exited, "window still open")

	s.clock.Set(time.Date(2024, time.April, 10, 21, 0, 0, 0, services.Location()))
	status, env = s.call(http.MethodPost, "/api/v1/auto-exit/run", nil, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	decode(t, env.Data, &report)
	assert.Equal(t, services.SweepManual, report.Mode)
	assert.Equal(t, 1, report.Exited)

	status, env = s.call(http.MethodGet, fmt.Sprintf("/api/v1/individuals/%d", ind.ID), nil, nil)
	require.Equal(t, http.StatusOK, status)
	decode(t, env.Data, &ind)
	assert.False(t, ind.IsInside())
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	s.login()

	status, _ := s.call(http.MethodGet, "/api/v1/auth/me", nil, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = s.call(http.MethodPost, "/api/v1/auth/logout", nil, nil)
	require.Equal(t, http.StatusOK, status)

	status, env := s.call(http.MethodGet, "/api/v1/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40104, env.Code)

	s.login()
	status, env = s.call(http.MethodGet, "/api/v1/auth/me", nil, nil)
	assert.Equal(t, http.StatusOK, status, "logging straight back in yields a working token: %s", env.Error)
}

func TestLiveFeedReceivesTaps(t *testing.T) {
	s := newTestServer(t)
	s.login()
	_, env := s.call(http.MethodPost, "/api/v1/individuals", gin.H{"name": "Jiro", "card_uid": "CARD-3", "role": "student"}, nil)
	require.True(t, env.OK, env.Error)

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/live"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?access_token="+s.token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	status, env := s.tap("CARD-3")
	require.Equal(t, http.StatusOK, status, env.Error)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type   string             `json:"type"`
		SiteID string             `json:"site_id"`
		Data   services.LiveEvent `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, services.LiveAccessEvent, msg.Type)
	assert.Equal(t, "default", msg.SiteID)
	assert.Equal(t, "Jiro", msg.Data.Name)
	assert.Equal(t, models.EventEntry, msg.Data.EventType)
	assert.True(t, msg.Data.Inside)
	assert.Equal(t, 1, msg.Data.CurrentPoints)
}
