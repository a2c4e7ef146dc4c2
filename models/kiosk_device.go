package models

import "time"

// KioskDevice stores the last time a kiosk talked to the server.
type KioskDevice struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DeviceID   string    `gorm:"size:64;uniqueIndex;not null" json:"device_id"`
	SiteID     string    `gorm:"size:64;index;not null" json:"site_id"`
	LastIP     string    `gorm:"size:45" json:"last_ip"`
	LastSeenAt time.Time `gorm:"index;not null" json:"last_seen_at"`
	Requests   int64     `gorm:"not null;default:0" json:"requests"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
