package models

import "time"

// Inbound represents a mirrored listening endpoint on a remote panel.
// Rows are upserted by reconciliation, keyed by (server_id, remote_id).
type Inbound struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ServerID   uint   `gorm:"not null;uniqueIndex:idx_server_remote" json:"server_id"`
	RemoteID   int    `gorm:"not null;uniqueIndex:idx_server_remote" json:"remote_id"`
	Remark     string `gorm:"size:255" json:"remark"`
	Protocol   string `gorm:"size:32;not null" json:"protocol"`
	Listen     string `gorm:"size:100" json:"listen"`
	Port       int    `gorm:"not null" json:"port"`
	Network    string `gorm:"size:32" json:"network"`
	Security   string `gorm:"size:32" json:"security"`
	Enable     bool   `gorm:"default:true" json:"enable"`
	ExpiryTime int64  `gorm:"default:0" json:"expiry_time"` // epoch milliseconds, 0 = never
	Up         int64  `gorm:"default:0" json:"up"`
	Down       int64  `gorm:"default:0" json:"down"`
	Total      int64  `gorm:"default:0" json:"total"`
	Orphaned   bool   `gorm:"default:false" json:"orphaned"`
	LastSeenAt *time.Time `json:"last_seen_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the table name for the inbound mirror
func (Inbound) TableName() string {
	return "inbounds"
}
