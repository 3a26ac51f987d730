package models

import "time"

// Subscription statuses. The engine may move a subscription to expired or
// suspended during reconciliation; active and cancelled transitions belong
// to the billing domain.
const (
	SubscriptionActive    = "active"
	SubscriptionPending   = "pending"
	SubscriptionExpired   = "expired"
	SubscriptionSuspended = "suspended"
	SubscriptionCancelled = "cancelled"
)

// Subscription mirrors the commercial record owned by the billing domain.
// The engine reads it and writes back only label, inbound link and the
// expired/suspended status transitions.
type Subscription struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Status      string     `gorm:"size:16;not null" json:"status"`
	ServerID    uint       `gorm:"not null;index" json:"server_id"`
	InboundID   *uint      `json:"inbound_id"`
	Label       string     `gorm:"size:100;index" json:"label"`
	DataLimitGB float64    `gorm:"default:0" json:"data_limit_gb"` // 0 = unlimited
	DataUsageGB float64    `gorm:"default:0" json:"data_usage_gb"`
	ValidUntil  *time.Time `json:"valid_until"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the externally-owned subscriptions table name
func (Subscription) TableName() string {
	return "subscriptions"
}

// Linked reports whether the subscription references a provisioned client
func (s *Subscription) Linked() bool {
	return s.InboundID != nil && s.Label != ""
}

// OverLimit reports whether usage has reached the data limit
func (s *Subscription) OverLimit() bool {
	return s.DataLimitGB > 0 && s.DataUsageGB >= s.DataLimitGB
}

// ExpiredAt reports whether the validity window has passed at the given time
func (s *Subscription) ExpiredAt(now time.Time) bool {
	return s.ValidUntil != nil && s.ValidUntil.Before(now)
}
