package models

import "time"

// Role categories an individual can be tagged with.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleStaff   = "staff"
)

// Individual lifecycle states. Individuals are never hard-deleted while ledger rows reference them.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusWithdrawn = "withdrawn"
	StatusGraduated = "graduated"
)

// Individual is a person tracked for entry/exit and points.
// CurrentPoints caches the sum of the individual's PointTransaction rows.
type Individual struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	SiteID        string     `gorm:"size:64;index;not null" json:"site_id"`
	Name          string     `gorm:"size:128;not null" json:"name"`
	CardUID       string     `gorm:"size:64;uniqueIndex;not null" json:"card_uid"`
	Role          string     `gorm:"size:16;index;not null" json:"role"`
	ClassTag      string     `gorm:"size:64;index" json:"class_tag"`
	Status        string     `gorm:"size:16;index;not null;default:'active'" json:"status"`
	CurrentPoints int        `gorm:"not null;default:0" json:"current_points"`
	LastEventType string     `gorm:"size:16;index" json:"last_event_type"`
	LastEventAt   *time.Time `json:"last_event_at"`

	HasCustomAccessTime bool    `gorm:"not null;default:false" json:"has_custom_access_time"`
	AccessStartTime     *string `gorm:"size:8" json:"access_start_time"`
	AccessEndTime       *string `gorm:"size:8" json:"access_end_time"`

	HasCustomBonusThreshold bool `gorm:"not null;default:false" json:"has_custom_bonus_threshold"`
	BonusThreshold          *int `json:"bonus_threshold"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Guardians []Guardian `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"guardians,omitempty"`
}

// IsInside reports whether the most recent event placed the individual inside the facility.
func (i *Individual) IsInside() bool {
	return i.LastEventType == EventEntry
}

// Guardian receives LINE notifications about an individual's entries and exits.
type Guardian struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	IndividualID uint      `gorm:"index;not null" json:"individual_id"`
	Name         string    `gorm:"size:128" json:"name"`
	LineUserID   string    `gorm:"size:64;not null" json:"line_user_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// ValidRole reports whether r is one of the three role categories.
func ValidRole(r string) bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleStaff:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusSuspended, StatusWithdrawn, StatusGraduated:
		return true
	}
	return false
}
