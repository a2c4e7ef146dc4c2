package models

import "time"

// Ledger transaction types.
const (
	TxEntry          = "entry"
	TxMonthlyBonus   = "monthly_bonus"
	TxManualAdd      = "manual_add"
	TxManualSubtract = "manual_subtract"
	TxConsume        = "consume"
)

// PointTransaction is an append-only ledger row. Corrections are new offsetting rows.
type PointTransaction struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	IndividualID    uint      `gorm:"index:idx_tx_individual_type_time;not null" json:"individual_id"`
	Points          int       `gorm:"not null" json:"points"`
	TransactionType string    `gorm:"size:32;index:idx_tx_individual_type_time;not null" json:"transaction_type"`
	Description     string    `gorm:"size:255" json:"description"`
	AccessEventID   *uint     `gorm:"index" json:"access_event_id"`
	AdminID         *uint     `json:"admin_id"`
	CreatedAt       time.Time `gorm:"index:idx_tx_individual_type_time;not null" json:"created_at"`
}
