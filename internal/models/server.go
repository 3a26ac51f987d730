package models

import "time"

// Server represents one remote x-ui panel instance
type Server struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"uniqueIndex;size:100;not null" json:"name"`
	BaseURL    string `gorm:"size:255;not null" json:"base_url"`
	Username   string `gorm:"size:100;not null" json:"username"`
	Password   string `gorm:"size:255;not null" json:"-"`
	SubPrefix  string `gorm:"size:255" json:"sub_prefix"`
	Enable     bool   `gorm:"default:true" json:"enable"`
	LastSyncAt *time.Time `json:"last_sync_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the table name for the server mirror
func (Server) TableName() string {
	return "servers"
}
