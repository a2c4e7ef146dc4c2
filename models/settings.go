package models

import "time"

// PointSettings configures entry awards for a site. No column defaults: zero
// and false are meaningful values and must be written as-is.
type PointSettings struct {
	SiteID      string    `gorm:"primaryKey;size:64" json:"site_id"`
	EntryPoints int       `gorm:"not null" json:"entry_points"`
	DailyLimit  bool      `gorm:"not null" json:"daily_limit"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleAccessTime is the open window for a role at a site. EndTime earlier than
// StartTime means the window spans midnight.
type RoleAccessTime struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SiteID    string    `gorm:"size:64;uniqueIndex:idx_access_site_role;not null" json:"site_id"`
	Role      string    `gorm:"size:16;uniqueIndex:idx_access_site_role;not null" json:"role"`
	StartTime string    `gorm:"size:8;not null" json:"start_time"`
	EndTime   string    `gorm:"size:8;not null" json:"end_time"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BonusSetting holds the monthly entry threshold and bonus amount for a role,
// or for one class within the role when ClassTag is set.
type BonusSetting struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SiteID      string    `gorm:"size:64;uniqueIndex:idx_bonus_scope;not null" json:"site_id"`
	Role        string    `gorm:"size:16;uniqueIndex:idx_bonus_scope;not null" json:"role"`
	ClassTag    string    `gorm:"size:64;uniqueIndex:idx_bonus_scope;not null;default:''" json:"class_tag"`
	Threshold   int       `gorm:"not null" json:"threshold"`
	BonusPoints int       `gorm:"not null" json:"bonus_points"`
	UpdatedAt   time.Time `json:"updated_at"`
}
