package models

import "time"

// Sync log statuses
const (
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
	SyncStatusPartial = "partial"
)

// SyncLog represents one reconciliation run or lifecycle action against
// a server. Rows are append-only; a watchdog closes entries stuck in
// the running state.
type SyncLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ServerID   uint       `gorm:"not null;index" json:"server_id"`
	Action     string     `gorm:"size:32;not null" json:"action"`
	Status     string     `gorm:"size:16;not null" json:"status"`
	Message    string     `gorm:"size:512" json:"message"`
	Detail     string     `gorm:"type:text" json:"detail"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// TableName returns the table name for sync logs
func (SyncLog) TableName() string {
	return "sync_logs"
}
