package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "xui-sync/internal/errors"
	"xui-sync/internal/models"
)

// MirrorRepo persists the inbound and client mirror tables
type MirrorRepo struct {
	db *gorm.DB
}

// NewMirrorRepo creates a mirror repository
func NewMirrorRepo(db *gorm.DB) *MirrorRepo {
	return &MirrorRepo{db: db}
}

// ApplyResult reports what one snapshot apply flagged as missing remotely,
// so the caller can log and audit the transitions
type ApplyResult struct {
	OrphanedInbounds int64
	OrphanedClients  int64
}

// ApplyServerSnapshot upserts everything one reconciliation pass observed,
// in a single transaction. Mirrors present locally but absent remotely are
// flagged orphaned, never deleted, so a transient remote hiccup cannot
// destroy a subscription link. Counts only newly flagged rows, so repeat
// passes over an already-orphaned mirror report zero.
func (r *MirrorRepo) ApplyServerSnapshot(ctx context.Context, snap *ServerSnapshot) (ApplyResult, error) {
	var result ApplyResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seenInbounds := make([]int, 0, len(snap.Inbounds))

		for i := range snap.Inbounds {
			entry := &snap.Inbounds[i]
			seenInbounds = append(seenInbounds, entry.Inbound.RemoteID)

			inbound, err := upsertInbound(tx, snap.ServerID, &entry.Inbound)
			if err != nil {
				return err
			}

			seenLabels := make([]string, 0, len(entry.Clients))
			for j := range entry.Clients {
				client := &entry.Clients[j]
				client.InboundID = inbound.ID
				client.ServerID = snap.ServerID
				seenLabels = append(seenLabels, client.Label)

				if err := upsertClient(tx, client); err != nil {
					return err
				}
			}

			flagged, err := flagMissingClients(tx, inbound.ID, seenLabels)
			if err != nil {
				return err
			}
			result.OrphanedClients += flagged
		}

		flaggedInbounds, err := flagMissingInbounds(tx, snap.ServerID, seenInbounds)
		if err != nil {
			return err
		}
		result.OrphanedInbounds += flaggedInbounds

		// A vanished inbound takes its clients with it
		flaggedClients, err := flagClientsOfOrphanedInbounds(tx, snap.ServerID)
		if err != nil {
			return err
		}
		result.OrphanedClients += flaggedClients

		for _, change := range snap.Subscriptions {
			updates := map[string]interface{}{"data_usage_gb": change.UsageGB}
			if change.Status != "" {
				updates["status"] = change.Status
			}
			if err := tx.Model(&models.Subscription{}).Where("id = ?", change.ID).Updates(updates).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.Server{}).Where("id = ?", snap.ServerID).
			Update("last_sync_at", snap.SyncedAt).Error
	})
	if err != nil {
		return ApplyResult{}, &apperrors.PersistenceError{Operation: "apply server snapshot", Err: err}
	}
	return result, nil
}

func upsertInbound(tx *gorm.DB, serverID uint, observed *models.Inbound) (*models.Inbound, error) {
	var existing models.Inbound
	err := tx.Where("server_id = ? AND remote_id = ?", serverID, observed.RemoteID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		observed.ServerID = serverID
		if err := tx.Create(observed).Error; err != nil {
			return nil, err
		}
		return observed, nil
	}
	if err != nil {
		return nil, err
	}

	return &existing, tx.Model(&existing).Updates(map[string]interface{}{
		"remark":       observed.Remark,
		"protocol":     observed.Protocol,
		"listen":       observed.Listen,
		"port":         observed.Port,
		"network":      observed.Network,
		"security":     observed.Security,
		"enable":       observed.Enable,
		"expiry_time":  observed.ExpiryTime,
		"up":           observed.Up,
		"down":         observed.Down,
		"total":        observed.Total,
		"orphaned":     false,
		"last_seen_at": observed.LastSeenAt,
	}).Error
}

func upsertClient(tx *gorm.DB, observed *models.Client) error {
	var existing models.Client
	err := tx.Where("inbound_id = ? AND label = ?", observed.InboundID, observed.Label).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(observed).Error
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"enable":      observed.Enable,
		"expiry_time": observed.ExpiryTime,
		"up":          observed.Up,
		"down":        observed.Down,
		"total":       observed.Total,
		"depleted":    observed.Depleted,
		"orphaned":    false,
	}
	if observed.RemoteID != "" {
		updates["remote_id"] = observed.RemoteID
	}
	if observed.SubID != "" {
		updates["sub_id"] = observed.SubID
	}
	if observed.SubscriptionID != nil {
		updates["subscription_id"] = *observed.SubscriptionID
	}
	if observed.LastOnlineAt != nil {
		updates["last_online_at"] = *observed.LastOnlineAt
	}

	observed.ID = existing.ID
	return tx.Model(&existing).Updates(updates).Error
}

func flagMissingClients(tx *gorm.DB, inboundID uint, seenLabels []string) (int64, error) {
	query := tx.Model(&models.Client{}).Where("inbound_id = ? AND orphaned = ?", inboundID, false)
	if len(seenLabels) > 0 {
		query = query.Where("label NOT IN ?", seenLabels)
	}
	res := query.Update("orphaned", true)
	return res.RowsAffected, res.Error
}

func flagMissingInbounds(tx *gorm.DB, serverID uint, seenRemoteIDs []int) (int64, error) {
	query := tx.Model(&models.Inbound{}).Where("server_id = ? AND orphaned = ?", serverID, false)
	if len(seenRemoteIDs) > 0 {
		query = query.Where("remote_id NOT IN ?", seenRemoteIDs)
	}
	res := query.Update("orphaned", true)
	return res.RowsAffected, res.Error
}

func flagClientsOfOrphanedInbounds(tx *gorm.DB, serverID uint) (int64, error) {
	var inboundIDs []uint
	err := tx.Model(&models.Inbound{}).
		Where("server_id = ? AND orphaned = ?", serverID, true).
		Pluck("id", &inboundIDs).Error
	if err != nil {
		return 0, err
	}
	if len(inboundIDs) == 0 {
		return 0, nil
	}
	res := tx.Model(&models.Client{}).
		Where("inbound_id IN ? AND orphaned = ?", inboundIDs, false).
		Update("orphaned", true)
	return res.RowsAffected, res.Error
}

// EnsureInbound returns the local mirror row for a remote inbound,
// creating it if reconciliation has not seen the inbound yet
func (r *MirrorRepo) EnsureInbound(ctx context.Context, inbound *models.Inbound) (*models.Inbound, error) {
	var existing models.Inbound
	err := r.db.WithContext(ctx).
		Where("server_id = ? AND remote_id = ?", inbound.ServerID, inbound.RemoteID).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.PersistenceError{Operation: "ensure inbound", Err: err}
	}

	if err := r.db.WithContext(ctx).Create(inbound).Error; err != nil {
		return nil, &apperrors.PersistenceError{Operation: "ensure inbound", Err: err}
	}
	return inbound, nil
}

// GetInboundByID returns one local inbound mirror row
func (r *MirrorRepo) GetInboundByID(ctx context.Context, id uint) (*models.Inbound, error) {
	var inbound models.Inbound
	if err := r.db.WithContext(ctx).First(&inbound, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Kind: "inbound", Key: fmt.Sprintf("%d", id)}
		}
		return nil, &apperrors.PersistenceError{Operation: "get inbound", Err: err}
	}
	return &inbound, nil
}

// GetClientBySubscription returns the client mirror linked to a
// subscription, or nil when none exists
func (r *MirrorRepo) GetClientBySubscription(ctx context.Context, subscriptionID uint) (*models.Client, error) {
	var client models.Client
	err := r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &apperrors.PersistenceError{Operation: "get client by subscription", Err: err}
	}
	return &client, nil
}

// CreateClient inserts a client mirror row
func (r *MirrorRepo) CreateClient(ctx context.Context, client *models.Client) error {
	if err := r.db.WithContext(ctx).Create(client).Error; err != nil {
		return &apperrors.PersistenceError{Operation: "create client", Err: err}
	}
	return nil
}

// UpdateClient saves changed mirror fields
func (r *MirrorRepo) UpdateClient(ctx context.Context, client *models.Client) error {
	if err := r.db.WithContext(ctx).Save(client).Error; err != nil {
		return &apperrors.PersistenceError{Operation: "update client", Err: err}
	}
	return nil
}

// DeleteClient removes a client mirror row after remote deprovisioning
func (r *MirrorRepo) DeleteClient(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Client{}, id).Error; err != nil {
		return &apperrors.PersistenceError{Operation: "delete client", Err: err}
	}
	return nil
}
