package services

import (
	"context"
	"time"

	"xui-sync/internal/models"
	"xui-sync/internal/repository"
	"xui-sync/pkg/xuiclient"
)

// PanelGateway is the typed operation surface of one remote panel,
// implemented by xuiclient.Client and faked in tests
type PanelGateway interface {
	Server() xuiclient.Server
	ListInbounds(ctx context.Context) ([]xuiclient.Inbound, error)
	GetInbound(ctx context.Context, inboundID int) (*xuiclient.Inbound, error)
	AddClient(ctx context.Context, inbound *xuiclient.Inbound, spec xuiclient.ClientSpec) (*xuiclient.ClientSettings, error)
	RemoveClient(ctx context.Context, inboundID int, clientID string) error
	UpdateClient(ctx context.Context, inboundID int, clientID string, settings xuiclient.ClientSettings) error
	GetClientTraffic(ctx context.Context, label string) (*xuiclient.ClientTraffic, error)
	ResetClientTraffic(ctx context.Context, inboundID int, label string) error
	GetOnlineClients(ctx context.Context) ([]string, error)
}

// GatewayProvider hands out a gateway per server, replacing the single
// ambient client/session of older designs
type GatewayProvider interface {
	Gateway(server *models.Server) PanelGateway
}

// ServerStore reads the server mirror table
type ServerStore interface {
	GetByID(ctx context.Context, id uint) (*models.Server, error)
	ListEnabled(ctx context.Context) ([]models.Server, error)
}

// MirrorStore persists inbound and client mirrors
type MirrorStore interface {
	ApplyServerSnapshot(ctx context.Context, snap *repository.ServerSnapshot) (repository.ApplyResult, error)
	EnsureInbound(ctx context.Context, inbound *models.Inbound) (*models.Inbound, error)
	GetInboundByID(ctx context.Context, id uint) (*models.Inbound, error)
	GetClientBySubscription(ctx context.Context, subscriptionID uint) (*models.Client, error)
	CreateClient(ctx context.Context, client *models.Client) error
	UpdateClient(ctx context.Context, client *models.Client) error
	DeleteClient(ctx context.Context, id uint) error
}

// SubscriptionStore is the narrow interface onto the billing-owned
// subscription records
type SubscriptionStore interface {
	GetByID(ctx context.Context, id uint) (*models.Subscription, error)
	ListByServer(ctx context.Context, serverID uint) ([]models.Subscription, error)
	LinkClient(ctx context.Context, id uint, inboundID uint, label string) error
	ClearLink(ctx context.Context, id uint) error
	UpdateUsage(ctx context.Context, id uint, usageGB float64) error
}

// SyncLogStore appends and closes audit entries
type SyncLogStore interface {
	Open(ctx context.Context, serverID uint, action string) (*models.SyncLog, error)
	Close(ctx context.Context, id uint, status, message, detail string) error
	Latest(ctx context.Context, serverID uint) (*models.SyncLog, error)
	CloseStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// DescriptorStore caches generated connection descriptors
type DescriptorStore interface {
	Get(ctx context.Context, subscriptionID uint) (*xuiclient.ConnectionConfig, error)
	Set(ctx context.Context, subscriptionID uint, cfg *xuiclient.ConnectionConfig) error
	Invalidate(ctx context.Context, subscriptionID uint) error
}
