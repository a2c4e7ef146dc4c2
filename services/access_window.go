package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/schoolgate/models"
)

// Window used when neither the individual nor the role has one configured.
const (
	DefaultAccessStart = "09:00"
	DefaultAccessEnd   = "20:00"
)

// AccessWindow is a time-of-day range; End <= Start means it spans midnight.
type AccessWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

var timeOfDayPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS"; the hour may be a single digit.
func ParseTimeOfDay(s string) (hour, minute, second int, err error) {
	m := timeOfDayPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, 0, ErrInvalidTimeOfDay
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		second, _ = strconv.Atoi(m[3])
	}
	if hour > 23 || minute > 59 || second > 59 {
		return 0, 0, 0, ErrInvalidTimeOfDay
	}
	return hour, minute, second, nil
}

// NormalizeTimeOfDay validates s and returns it as "HH:MM" ("HH:MM:SS" when seconds are set).
func NormalizeTimeOfDay(s string) (string, error) {
	h, m, sec, err := ParseTimeOfDay(s)
	if err != nil {
		return "", err
	}
	if sec != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec), nil
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// ValidateWindow rejects malformed bounds and windows whose start equals their end.
func ValidateWindow(start, end string) error {
	sh, sm, ss, err := ParseTimeOfDay(start)
	if err != nil {
		return err
	}
	eh, em, es, err := ParseTimeOfDay(end)
	if err != nil {
		return err
	}
	if sh == eh && sm == em && ss == es {
		return ErrInvalidWindow
	}
	return nil
}

// atTimeOfDay places tod on day's local date, falling back to fallback when tod does not parse.
func atTimeOfDay(day time.Time, tod, fallback string) time.Time {
	h, m, s, err := ParseTimeOfDay(tod)
	if err != nil {
		h, m, s, _ = ParseTimeOfDay(fallback)
	}
	return BuildLocalTime(day, h, m, s)
}

// IsPastEnd reports whether now is at or after end on now's local day.
func IsPastEnd(end string, now time.Time) bool {
	return !now.Before(atTimeOfDay(now, end, DefaultAccessEnd))
}

// WindowForDay returns the absolute window that opens on day's local date.
// An end at or before the start is pushed to the next day.
func WindowForDay(day time.Time, start, end string) (windowStart, windowEnd time.Time) {
	windowStart = atTimeOfDay(day, start, DefaultAccessStart)
	windowEnd = atTimeOfDay(day, end, DefaultAccessEnd)
	if !windowEnd.After(windowStart) {
		windowEnd = windowEnd.AddDate(0, 0, 1)
	}
	return windowStart, windowEnd
}

// HasWindowCrossed reports whether a window closed in (last, now]. With no prior
// event it falls back to IsPastEnd. Every local day from the day before last
// through now's day is checked, so overnight windows and multi-day gaps are caught.
func HasWindowCrossed(last *time.Time, now time.Time, start, end string) bool {
	if last == nil || last.IsZero() {
		return IsPastEnd(end, now)
	}
	if !now.After(*last) {
		return false
	}
	lastDay := DayStart(*last).AddDate(0, 0, -1)
	nowDay := DayStart(now)
	for day := lastDay; !day.After(nowDay); day = day.AddDate(0, 0, 1) {
		_, windowEnd := WindowForDay(day, start, end)
		if windowEnd.After(*last) && !windowEnd.After(now) {
			return true
		}
	}
	return false
}

// isOvernight reports whether the window spans midnight.
func (w AccessWindow) isOvernight() bool {
	ws, we := WindowForDay(time.Unix(0, 0), w.Start, w.End)
	return we.Day() != ws.Day()
}

// pastScheduledEnd is the scheduled sweep's check: past today's end. For an
// overnight window the period between today's end and today's start counts as past.
func pastScheduledEnd(w AccessWindow, now time.Time) bool {
	if !IsPastEnd(w.End, now) {
		return false
	}
	if w.isOvernight() {
		return now.Before(atTimeOfDay(now, w.Start, DefaultAccessStart))
	}
	return true
}

// ChooseAccessWindow applies the precedence individual override > role window > default.
func ChooseAccessWindow(role *models.RoleAccessTime, hasCustom bool, customStart, customEnd *string) AccessWindow {
	if hasCustom && customStart != nil && customEnd != nil && ValidateWindow(*customStart, *customEnd) == nil {
		return AccessWindow{Start: *customStart, End: *customEnd}
	}
	if role != nil && ValidateWindow(role.StartTime, role.EndTime) == nil {
		return AccessWindow{Start: role.StartTime, End: role.EndTime}
	}
	return AccessWindow{Start: DefaultAccessStart, End: DefaultAccessEnd}
}

// ResolveAccessWindow returns the effective window for ind. A failed role lookup
// is logged and resolves to the default.
func (e *Engine) ResolveAccessWindow(ctx context.Context, ind *models.Individual) AccessWindow {
	role, err := e.roleAccessTime(ctx, ind.SiteID, ind.Role)
	if err != nil {
		e.log.Warn("access window lookup failed", zap.Uint("individual_id", ind.ID), zap.String("role", ind.Role), zap.Error(err))
		role = nil
	}
	return ChooseAccessWindow(role, ind.HasCustomAccessTime, ind.AccessStartTime, ind.AccessEndTime)
}

func (e *Engine) roleAccessTime(ctx context.Context, siteID, role string) (*models.RoleAccessTime, error) {
	type cachedRow struct {
		Found bool                  `json:"found"`
		Row   models.RoleAccessTime `json:"row"`
	}
	key := settingsKey(siteID, "access", role)
	got, err := cached(ctx, e, key, func() (cachedRow, error) {
		var row models.RoleAccessTime
		err := e.db.WithContext(ctx).Where("site_id = ? AND role = ?", siteID, role).First(&row).Error
		if err == gorm.ErrRecordNotFound {
			return cachedRow{}, nil
		}
		if err != nil {
			return cachedRow{}, err
		}
		return cachedRow{Found: true, Row: row}, nil
	})
	if err != nil || !got.Found {
		return nil, err
	}
	return &got.Row, nil
}
