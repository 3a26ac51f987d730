package repository

import (
	"time"

	"xui-sync/internal/models"
)

// InboundSnapshot is one remote inbound with its clients as observed
// during a reconciliation pass
type InboundSnapshot struct {
	Inbound models.Inbound
	Clients []models.Client
}

// SubscriptionChange is a status/usage transition to apply to a
// subscription inside the same transaction as the mirror upserts.
// An empty Status means the status is unchanged.
type SubscriptionChange struct {
	ID      uint
	UsageGB float64
	Status  string
}

// ServerSnapshot is everything one reconciliation pass observed on a
// server. It is applied atomically: either all of it is persisted or
// none of it is.
type ServerSnapshot struct {
	ServerID      uint
	SyncedAt      time.Time
	Inbounds      []InboundSnapshot
	Subscriptions []SubscriptionChange
}
