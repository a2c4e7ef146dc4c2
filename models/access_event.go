package models

import "time"

// Access event types. forced_exit is written only by the auto-exit sweep;
// no_log is stored for audit but never changes presence or awards points.
const (
	EventEntry      = "entry"
	EventExit       = "exit"
	EventNoLog      = "no_log"
	EventForcedExit = "forced_exit"
)

// AccessEvent is an immutable record of one tap or system exit.
// PointsProcessed is flipped once when the award orchestrator claims the event.
type AccessEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	IndividualID    uint      `gorm:"index:idx_event_individual_time;not null" json:"individual_id"`
	SiteID          string    `gorm:"size:64;index;not null" json:"site_id"`
	EventType       string    `gorm:"size:16;index;not null" json:"event_type"`
	OccurredAt      time.Time `gorm:"index:idx_event_individual_time;not null" json:"occurred_at"`
	DeviceID        string    `gorm:"size:64" json:"device_id"`
	PointsProcessed bool      `gorm:"not null;default:false" json:"points_processed"`
	CreatedAt       time.Time `json:"created_at"`
}

// ValidEventType reports whether t may be recorded by a kiosk.
func ValidEventType(t string) bool {
	switch t {
	case EventEntry, EventExit, EventNoLog:
		return true
	}
	return false
}
