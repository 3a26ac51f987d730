package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"xui-sync/internal/helpers"
	"xui-sync/internal/models"
	"xui-sync/internal/repository"
	"xui-sync/pkg/xuiclient"
)

// SyncService reconciles remote panel state into the local mirror tables
// and propagates traffic/expiry/enablement changes onto subscriptions
type SyncService struct {
	gateways GatewayProvider
	servers  ServerStore
	mirrors  MirrorStore
	subs     SubscriptionStore
	logs     SyncLogStore
	logger   *logrus.Logger
	now      func() time.Time
}

// NewSyncService creates a reconciliation service
func NewSyncService(gateways GatewayProvider, servers ServerStore, mirrors MirrorStore, subs SubscriptionStore, logs SyncLogStore, logger *logrus.Logger) *SyncService {
	return &SyncService{
		gateways: gateways,
		servers:  servers,
		mirrors:  mirrors,
		subs:     subs,
		logs:     logs,
		logger:   logger,
		now:      time.Now,
	}
}

// SyncServer pulls the full inbound/client snapshot from one server and
// applies it atomically. The returned sync log entry is closed with the
// outcome; on failure nothing from the pass is persisted.
func (s *SyncService) SyncServer(ctx context.Context, serverID uint) (*models.SyncLog, error) {
	server, err := s.servers.GetByID(ctx, serverID)
	if err != nil {
		return nil, err
	}

	entry, err := s.logs.Open(ctx, server.ID, "sync")
	if err != nil {
		return nil, err
	}

	gateway := s.gateways.Gateway(server)

	inbounds, err := gateway.ListInbounds(ctx)
	if err != nil {
		s.closeFailed(ctx, entry, "list inbounds", err)
		return entry, err
	}

	subscriptions, err := s.subs.ListByServer(ctx, server.ID)
	if err != nil {
		s.closeFailed(ctx, entry, "load subscriptions", err)
		return entry, err
	}

	// Online probe is best-effort: a failure degrades last-online
	// tracking but must not fail the pass
	online, err := gateway.GetOnlineClients(ctx)
	if err != nil {
		s.logger.Warnf("Online probe failed for server %d: %v", server.ID, err)
		online = nil
	}

	snapshot := s.buildSnapshot(server.ID, inbounds, subscriptions, online)

	applied, err := s.mirrors.ApplyServerSnapshot(ctx, snapshot)
	if err != nil {
		s.closeFailed(ctx, entry, "persist snapshot", err)
		return entry, err
	}

	if applied.OrphanedInbounds > 0 || applied.OrphanedClients > 0 {
		s.logger.Warnf("Server %d: flagged %d inbounds and %d clients missing remotely",
			server.ID, applied.OrphanedInbounds, applied.OrphanedClients)
	}

	clientCount := 0
	for _, in := range snapshot.Inbounds {
		clientCount += len(in.Clients)
	}

	detail, _ := json.Marshal(map[string]int64{
		"inbounds":          int64(len(snapshot.Inbounds)),
		"clients":           int64(clientCount),
		"subscriptions":     int64(len(snapshot.Subscriptions)),
		"orphaned_inbounds": applied.OrphanedInbounds,
		"orphaned_clients":  applied.OrphanedClients,
	})
	message := fmt.Sprintf("synced %d inbounds, %d clients", len(snapshot.Inbounds), clientCount)
	if err := s.logs.Close(ctx, entry.ID, models.SyncStatusSuccess, message, string(detail)); err != nil {
		return entry, err
	}

	entry.Status = models.SyncStatusSuccess
	entry.Message = message
	s.logger.Infof("Server %d: %s", server.ID, message)
	return entry, nil
}

func (s *SyncService) closeFailed(ctx context.Context, entry *models.SyncLog, step string, cause error) {
	message := fmt.Sprintf("%s: %v", step, cause)
	if err := s.logs.Close(ctx, entry.ID, models.SyncStatusFailed, message, ""); err != nil {
		s.logger.Errorf("Failed to close sync log %d: %v", entry.ID, err)
	}
	entry.Status = models.SyncStatusFailed
	entry.Message = message
	s.logger.Errorf("Sync of server %d failed at %s: %v", entry.ServerID, step, cause)
}

// buildSnapshot converts the remote observation into mirror rows and
// subscription changes. Pure computation, no I/O.
func (s *SyncService) buildSnapshot(serverID uint, inbounds []xuiclient.Inbound, subscriptions []models.Subscription, online []string) *repository.ServerSnapshot {
	now := s.now().UTC()

	subsByLabel := make(map[string]*models.Subscription, len(subscriptions))
	for i := range subscriptions {
		if subscriptions[i].Label != "" {
			subsByLabel[subscriptions[i].Label] = &subscriptions[i]
		}
	}

	onlineSet := make(map[string]bool, len(online))
	for _, label := range online {
		onlineSet[label] = true
	}

	snapshot := &repository.ServerSnapshot{
		ServerID: serverID,
		SyncedAt: now,
	}
	changed := make(map[uint]bool)

	for i := range inbounds {
		remote := &inbounds[i]

		stream, err := xuiclient.DecodeStreamSettings(remote.StreamSettings)
		if err != nil {
			s.logger.Warnf("Inbound %d has malformed stream settings: %v", remote.ID, err)
			stream = &xuiclient.StreamSettings{}
		}

		settingsByLabel := make(map[string]xuiclient.ClientSettings)
		if remote.Settings != "" {
			if settings, err := xuiclient.DecodeSettings(remote.Settings); err == nil {
				for _, c := range settings.Clients {
					settingsByLabel[c.Email] = c
				}
			} else {
				s.logger.Warnf("Inbound %d has malformed settings: %v", remote.ID, err)
			}
		}

		entry := repository.InboundSnapshot{
			Inbound: models.Inbound{
				ServerID:   serverID,
				RemoteID:   remote.ID,
				Remark:     remote.Remark,
				Protocol:   remote.Protocol,
				Listen:     remote.Listen,
				Port:       remote.Port,
				Network:    stream.Network,
				Security:   stream.Security,
				Enable:     remote.Enable,
				ExpiryTime: remote.ExpiryTime,
				Up:         remote.Up,
				Down:       remote.Down,
				Total:      remote.Total,
				LastSeenAt: &now,
			},
		}

		for _, stat := range remote.ClientStats {
			client := models.Client{
				ServerID:   serverID,
				Label:      stat.Email,
				Enable:     stat.Enable,
				ExpiryTime: stat.ExpiryTime,
				Up:         stat.Up,
				Down:       stat.Down,
				Total:      stat.Total,
				Depleted:   helpers.UsagePercent(helpers.UsageBytes(stat.Up, stat.Down), stat.Total) >= 100,
			}
			if settings, ok := settingsByLabel[stat.Email]; ok {
				client.RemoteID = settings.Identifier()
				client.SubID = settings.SubID
			}
			if onlineSet[stat.Email] {
				client.LastOnlineAt = &now
			}

			if sub, ok := subsByLabel[stat.Email]; ok && !changed[sub.ID] {
				client.SubscriptionID = &sub.ID
				changed[sub.ID] = true
				snapshot.Subscriptions = append(snapshot.Subscriptions, repository.SubscriptionChange{
					ID:      sub.ID,
					UsageGB: helpers.BytesToGB(helpers.UsageBytes(stat.Up, stat.Down)),
					Status:  deriveStatus(sub, &stat, now),
				})
			}

			entry.Clients = append(entry.Clients, client)
		}

		snapshot.Inbounds = append(snapshot.Inbounds, entry)
	}

	return snapshot
}

// deriveStatus computes the status transition reconciliation may write
// onto a subscription. Only active subscriptions transition, only to
// expired or suspended, and only when the status actually changes.
func deriveStatus(sub *models.Subscription, stat *xuiclient.ClientTraffic, now time.Time) string {
	if sub.Status != models.SubscriptionActive {
		return ""
	}

	if helpers.IsExpired(stat.ExpiryTime, now) {
		return models.SubscriptionExpired
	}

	usedGB := helpers.BytesToGB(helpers.UsageBytes(stat.Up, stat.Down))
	overLimit := sub.DataLimitGB > 0 && usedGB >= sub.DataLimitGB
	if overLimit && !stat.Enable {
		return models.SubscriptionSuspended
	}

	return ""
}
