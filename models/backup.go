package models

import "time"

// PointsBackup is a named point-in-time copy of every balance at a site.
type PointsBackup struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	BackupID    string             `gorm:"size:36;uniqueIndex;not null" json:"backup_id"`
	SiteID      string             `gorm:"size:64;index;not null" json:"site_id"`
	Name        string             `gorm:"size:128;not null" json:"name"`
	CreatedBy   *uint              `json:"created_by"`
	ItemCount   int                `json:"item_count"`
	TotalPoints int                `json:"total_points"`
	CreatedAt   time.Time          `json:"created_at"`
	Items       []PointsBackupItem `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items,omitempty"`
}

// PointsBackupItem is one individual's balance at backup time.
type PointsBackupItem struct {
	ID             uint `gorm:"primaryKey" json:"id"`
	PointsBackupID uint `gorm:"index;not null" json:"points_backup_id"`
	IndividualID   uint `gorm:"index;not null" json:"individual_id"`
	Points         int  `gorm:"not null" json:"points"`
}
