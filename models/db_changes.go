package models

import (
	"time"
)

// DBChange adalah baris outbox yang ditulis dalam transaksi yang sama dengan order.
type DBChange struct {
	ID         uint      `gorm:"primaryKey"`
	TableName  string    `gorm:"type:varchar(50);not null;index:idx_table_action"`
	RecordID   int64     `gorm:"not null"`
	ActionType string    `gorm:"type:varchar(20);not null;index:idx_table_action"`
	Payload    string    `gorm:"type:varchar(20)"`
	ChangedAt  time.Time `gorm:"not null"`
	Processed  bool      `gorm:"default:false;index:idx_processed"`
}

const (
	ActionInsert   = "INSERT"
	ActionStatus   = "STATUS"
	ActionPriority = "PRIORITY"
	ActionRefresh  = "REFRESH"
)
