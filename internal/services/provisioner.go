package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"xui-sync/internal/constants"
	apperrors "xui-sync/internal/errors"
	"xui-sync/internal/helpers"
	"xui-sync/internal/models"
	"xui-sync/pkg/xuiclient"
)

// InboundSelector picks the inbound a new client should be created on
type InboundSelector func(inbounds []xuiclient.Inbound) *xuiclient.Inbound

// FirstEnabledInbound is the default selection policy
func FirstEnabledInbound(inbounds []xuiclient.Inbound) *xuiclient.Inbound {
	for i := range inbounds {
		if inbounds[i].Enable {
			return &inbounds[i]
		}
	}
	return nil
}

// ProvisionService is the commercial-facing lifecycle orchestrator. Every
// mutating operation checks current linkage state before acting, so a
// re-invocation of an already-applied call is a no-op rather than an error.
type ProvisionService struct {
	gateways    GatewayProvider
	servers     ServerStore
	mirrors     MirrorStore
	subs        SubscriptionStore
	logs        SyncLogStore
	descriptors DescriptorStore
	selector    InboundSelector
	logger      *logrus.Logger
}

// NewProvisionService creates a lifecycle orchestrator with the default
// inbound selection policy
func NewProvisionService(gateways GatewayProvider, servers ServerStore, mirrors MirrorStore, subs SubscriptionStore, logs SyncLogStore, descriptors DescriptorStore, logger *logrus.Logger) *ProvisionService {
	return &ProvisionService{
		gateways:    gateways,
		servers:     servers,
		mirrors:     mirrors,
		subs:        subs,
		logs:        logs,
		descriptors: descriptors,
		selector:    FirstEnabledInbound,
		logger:      logger,
	}
}

// SetInboundSelector replaces the inbound selection policy
func (p *ProvisionService) SetInboundSelector(selector InboundSelector) {
	p.selector = selector
}

// CreateClient provisions a remote client for an active, unlinked
// subscription. Re-invoking after success is a no-op. On remote failure
// the subscription is left unlinked; the caller decides whether to retry.
func (p *ProvisionService) CreateClient(ctx context.Context, subscriptionID uint) error {
	sub, err := p.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != models.SubscriptionActive {
		return fmt.Errorf("subscription %d is %s, provisioning requires active", sub.ID, sub.Status)
	}

	if sub.Linked() {
		existing, err := p.mirrors.GetClientBySubscription(ctx, sub.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			p.logger.Debugf("Subscription %d already provisioned as %s", sub.ID, existing.Label)
			return nil
		}
	}

	server, err := p.servers.GetByID(ctx, sub.ServerID)
	if err != nil {
		return err
	}
	gateway := p.gateways.Gateway(server)

	inbounds, err := gateway.ListInbounds(ctx)
	if err != nil {
		return err
	}
	target := p.selector(inbounds)
	if target == nil {
		return &apperrors.NotFoundError{Kind: "inbound", Key: fmt.Sprintf("no enabled inbound on server %d", server.ID)}
	}

	label := sub.Label
	if label == "" {
		label = generateLabel(sub.ID)
	} else if len(label) < constants.MinLabelLength || len(label) > constants.MaxLabelLength {
		return fmt.Errorf("subscription %d has invalid label %q: length must be %d-%d", sub.ID, label, constants.MinLabelLength, constants.MaxLabelLength)
	}

	entry, err := p.logs.Open(ctx, server.ID, "createClient")
	if err != nil {
		return err
	}

	created, err := gateway.AddClient(ctx, target, xuiclient.ClientSpec{
		Label:      label,
		TotalBytes: helpers.GBToBytes(sub.DataLimitGB),
		ExpiryTime: helpers.ToEpochMillis(sub.ValidUntil),
	})
	if err != nil {
		p.closeAction(ctx, entry, models.SyncStatusFailed, fmt.Sprintf("addClient %s: %v", label, err))
		return err
	}

	config, err := xuiclient.BuildConnectionConfig(gateway.Server(), target, created)
	if err != nil {
		p.logger.Warnf("Link generation failed for %s on inbound %d: %v", label, target.ID, err)
		config = &xuiclient.ConnectionConfig{SubURL: xuiclient.SubscriptionURL(gateway.Server(), label)}
	}

	localInbound, err := p.mirrors.EnsureInbound(ctx, &models.Inbound{
		ServerID: server.ID,
		RemoteID: target.ID,
		Remark:   target.Remark,
		Protocol: target.Protocol,
		Port:     target.Port,
		Enable:   target.Enable,
	})
	if err != nil {
		p.closeAction(ctx, entry, models.SyncStatusPartial, fmt.Sprintf("remote client %s created but mirror failed: %v", label, err))
		return err
	}

	client := &models.Client{
		ServerID:       server.ID,
		InboundID:      localInbound.ID,
		Label:          label,
		RemoteID:       created.Identifier(),
		SubID:          created.SubID,
		Enable:         true,
		ExpiryTime:     created.ExpiryTime,
		Total:          created.TotalGB,
		SubscriptionID: &sub.ID,
		ConfigLinks:    strings.Join(config.Links, "\n"),
		SubURL:         config.SubURL,
	}
	if err := p.mirrors.CreateClient(ctx, client); err != nil {
		p.closeAction(ctx, entry, models.SyncStatusPartial, fmt.Sprintf("remote client %s created but mirror failed: %v", label, err))
		return err
	}

	if err := p.subs.LinkClient(ctx, sub.ID, localInbound.ID, label); err != nil {
		p.closeAction(ctx, entry, models.SyncStatusPartial, fmt.Sprintf("client %s mirrored but link failed: %v", label, err))
		return err
	}

	if err := p.descriptors.Set(ctx, sub.ID, config); err != nil {
		p.logger.Warnf("Failed to cache descriptors for subscription %d: %v", sub.ID, err)
	}

	p.closeAction(ctx, entry, models.SyncStatusSuccess, fmt.Sprintf("provisioned %s on inbound %d", label, target.ID))
	p.logger.Infof("Provisioned subscription %d as client %s on server %d", sub.ID, label, server.ID)
	return nil
}

// DeleteClient deprovisions the remote client of a subscription. If the
// remote call fails, mirror and link are left intact so a retry stays
// possible. Re-invoking after success is a no-op.
func (p *ProvisionService) DeleteClient(ctx context.Context, subscriptionID uint) error {
	sub, err := p.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}

	client, err := p.mirrors.GetClientBySubscription(ctx, sub.ID)
	if err != nil {
		return err
	}
	if client == nil {
		if sub.Linked() {
			return p.subs.ClearLink(ctx, sub.ID)
		}
		return nil
	}

	inbound, err := p.mirrors.GetInboundByID(ctx, client.InboundID)
	if err != nil {
		return err
	}
	server, err := p.servers.GetByID(ctx, sub.ServerID)
	if err != nil {
		return err
	}
	gateway := p.gateways.Gateway(server)

	entry, err := p.logs.Open(ctx, server.ID, "deleteClient")
	if err != nil {
		return err
	}

	if err := gateway.RemoveClient(ctx, inbound.RemoteID, client.RemoteID); err != nil && !apperrors.IsNotFound(err) {
		p.closeAction(ctx, entry, models.SyncStatusFailed, fmt.Sprintf("removeClient %s: %v", client.Label, err))
		return err
	}

	if err := p.mirrors.DeleteClient(ctx, client.ID); err != nil {
		p.closeAction(ctx, entry, models.SyncStatusPartial, fmt.Sprintf("remote client %s removed but mirror delete failed: %v", client.Label, err))
		return err
	}
	if err := p.subs.ClearLink(ctx, sub.ID); err != nil {
		p.closeAction(ctx, entry, models.SyncStatusPartial, fmt.Sprintf("mirror deleted but unlink failed: %v", err))
		return err
	}
	if err := p.descriptors.Invalidate(ctx, sub.ID); err != nil {
		p.logger.Warnf("Failed to invalidate descriptors for subscription %d: %v", sub.ID, err)
	}

	p.closeAction(ctx, entry, models.SyncStatusSuccess, fmt.Sprintf("deprovisioned %s", client.Label))
	p.logger.Infof("Deprovisioned subscription %d (client %s)", sub.ID, client.Label)
	return nil
}

// UpdateClientTraffic adjusts the remote traffic limit, then mirrors the
// new limit locally. On remote failure nothing local changes.
func (p *ProvisionService) UpdateClientTraffic(ctx context.Context, subscriptionID uint, limitGB float64) error {
	sub, client, inbound, gateway, err := p.linkedClient(ctx, subscriptionID)
	if err != nil {
		return err
	}

	settings := clientSettingsFromMirror(client)
	settings.TotalGB = helpers.GBToBytes(limitGB)

	if err := gateway.UpdateClient(ctx, inbound.RemoteID, client.RemoteID, settings); err != nil {
		return err
	}

	client.Total = settings.TotalGB
	if err := p.mirrors.UpdateClient(ctx, client); err != nil {
		return err
	}

	p.logger.Infof("Updated traffic limit for subscription %d to %.2f GB", sub.ID, limitGB)
	return nil
}

// UpdateClientExpiry adjusts the remote expiry, then mirrors it locally
func (p *ProvisionService) UpdateClientExpiry(ctx context.Context, subscriptionID uint, until time.Time) error {
	sub, client, inbound, gateway, err := p.linkedClient(ctx, subscriptionID)
	if err != nil {
		return err
	}

	settings := clientSettingsFromMirror(client)
	settings.ExpiryTime = until.UnixMilli()

	if err := gateway.UpdateClient(ctx, inbound.RemoteID, client.RemoteID, settings); err != nil {
		return err
	}

	client.ExpiryTime = settings.ExpiryTime
	if err := p.mirrors.UpdateClient(ctx, client); err != nil {
		return err
	}

	p.logger.Infof("Updated expiry for subscription %d to %s", sub.ID, until.Format(time.RFC3339))
	return nil
}

// ResetClientTraffic zeroes remote counters, then the mirror and the
// subscription usage
func (p *ProvisionService) ResetClientTraffic(ctx context.Context, subscriptionID uint) error {
	sub, client, inbound, gateway, err := p.linkedClient(ctx, subscriptionID)
	if err != nil {
		return err
	}

	if err := gateway.ResetClientTraffic(ctx, inbound.RemoteID, client.Label); err != nil {
		return err
	}

	client.Up = 0
	client.Down = 0
	client.Depleted = false
	if err := p.mirrors.UpdateClient(ctx, client); err != nil {
		return err
	}
	if err := p.subs.UpdateUsage(ctx, sub.ID, 0); err != nil {
		return err
	}

	p.logger.Infof("Reset traffic for subscription %d (client %s)", sub.ID, client.Label)
	return nil
}

// GetConnectionConfig returns the latest generated connection descriptors
// for a subscription's client, read through the cache
func (p *ProvisionService) GetConnectionConfig(ctx context.Context, subscriptionID uint) (*xuiclient.ConnectionConfig, error) {
	if cached, err := p.descriptors.Get(ctx, subscriptionID); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		p.logger.Warnf("Descriptor cache read failed for subscription %d: %v", subscriptionID, err)
	}

	client, err := p.mirrors.GetClientBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, &apperrors.NotFoundError{Kind: "client", Key: fmt.Sprintf("subscription %d", subscriptionID)}
	}

	config := &xuiclient.ConnectionConfig{SubURL: client.SubURL}
	if client.ConfigLinks != "" {
		config.Links = strings.Split(client.ConfigLinks, "\n")
	}

	if err := p.descriptors.Set(ctx, subscriptionID, config); err != nil {
		p.logger.Warnf("Failed to cache descriptors for subscription %d: %v", subscriptionID, err)
	}

	return config, nil
}

// linkedClient resolves the mirror rows and gateway for a subscription
// that must already be provisioned
func (p *ProvisionService) linkedClient(ctx context.Context, subscriptionID uint) (*models.Subscription, *models.Client, *models.Inbound, PanelGateway, error) {
	sub, err := p.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	client, err := p.mirrors.GetClientBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if client == nil {
		return nil, nil, nil, nil, &apperrors.NotFoundError{Kind: "client", Key: fmt.Sprintf("subscription %d", sub.ID)}
	}

	inbound, err := p.mirrors.GetInboundByID(ctx, client.InboundID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	server, err := p.servers.GetByID(ctx, sub.ServerID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return sub, client, inbound, p.gateways.Gateway(server), nil
}

func (p *ProvisionService) closeAction(ctx context.Context, entry *models.SyncLog, status, message string) {
	if err := p.logs.Close(ctx, entry.ID, status, message, ""); err != nil {
		p.logger.Errorf("Failed to close sync log %d: %v", entry.ID, err)
	}
}

func clientSettingsFromMirror(client *models.Client) xuiclient.ClientSettings {
	settings := xuiclient.ClientSettings{
		Email:      client.Label,
		TotalGB:    client.Total,
		ExpiryTime: client.ExpiryTime,
		Enable:     client.Enable,
		SubID:      client.SubID,
	}
	// uuid identifiers are 36 chars with dashes; anything else is a password
	if len(client.RemoteID) == 36 && strings.Count(client.RemoteID, "-") == 4 {
		settings.ID = client.RemoteID
	} else {
		settings.Password = client.RemoteID
	}
	return settings
}

func generateLabel(subscriptionID uint) string {
	return fmt.Sprintf("s%d-%s", subscriptionID, strings.ToLower(xuiclient.GenerateToken()[:6]))
}
