package models

import "time"

// Client represents a mirrored proxy account inside an inbound.
// The email-like label is the remote-side natural key; at most one
// non-deleted client exists per (inbound, label).
type Client struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ServerID       uint   `gorm:"not null;index" json:"server_id"`
	InboundID      uint   `gorm:"not null;uniqueIndex:idx_inbound_label" json:"inbound_id"`
	Label          string `gorm:"size:100;not null;uniqueIndex:idx_inbound_label" json:"label"`
	RemoteID       string `gorm:"size:64" json:"remote_id"` // uuid for vmess/vless, password otherwise
	SubID          string `gorm:"size:32" json:"sub_id"`
	Enable         bool   `gorm:"default:true" json:"enable"`
	ExpiryTime     int64  `gorm:"default:0" json:"expiry_time"` // epoch milliseconds, 0 = never
	Up             int64  `gorm:"default:0" json:"up"`
	Down           int64  `gorm:"default:0" json:"down"`
	Total          int64  `gorm:"default:0" json:"total"` // byte limit, 0 = unlimited
	Depleted       bool   `gorm:"default:false" json:"depleted"`
	Orphaned       bool   `gorm:"default:false" json:"orphaned"`
	LastOnlineAt   *time.Time `json:"last_online_at"`
	SubscriptionID *uint      `gorm:"index" json:"subscription_id"`
	ConfigLinks    string     `gorm:"type:text" json:"config_links"` // newline separated URIs
	SubURL         string     `gorm:"size:512" json:"sub_url"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the table name for the client mirror
func (Client) TableName() string {
	return "clients"
}
