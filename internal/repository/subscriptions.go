package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "xui-sync/internal/errors"
	"xui-sync/internal/models"
)

// SubscriptionRepo reads and narrowly mutates the billing-owned
// subscriptions table. Only label, inbound link, usage and the
// expired/suspended status transitions are ever written here.
type SubscriptionRepo struct {
	db *gorm.DB
}

// NewSubscriptionRepo creates a subscription repository
func NewSubscriptionRepo(db *gorm.DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// GetByID returns one subscription or NotFoundError
func (r *SubscriptionRepo) GetByID(ctx context.Context, id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Kind: "subscription", Key: fmt.Sprintf("%d", id)}
		}
		return nil, &apperrors.PersistenceError{Operation: "get subscription", Err: err}
	}
	return &sub, nil
}

// ListByServer returns all subscriptions assigned to one server
func (r *SubscriptionRepo) ListByServer(ctx context.Context, serverID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).Where("server_id = ?", serverID).Find(&subs).Error; err != nil {
		return nil, &apperrors.PersistenceError{Operation: "list subscriptions", Err: err}
	}
	return subs, nil
}

// LinkClient records which inbound and label fulfil the subscription
func (r *SubscriptionRepo) LinkClient(ctx context.Context, id uint, inboundID uint, label string) error {
	err := r.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", id).
		Updates(map[string]interface{}{"inbound_id": inboundID, "label": label}).Error
	if err != nil {
		return &apperrors.PersistenceError{Operation: "link client", Err: err}
	}
	return nil
}

// ClearLink removes the client link after deprovisioning
func (r *SubscriptionRepo) ClearLink(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", id).
		Updates(map[string]interface{}{"inbound_id": nil, "label": ""}).Error
	if err != nil {
		return &apperrors.PersistenceError{Operation: "clear link", Err: err}
	}
	return nil
}

// UpdateUsage writes the recomputed usage after a traffic reset
func (r *SubscriptionRepo) UpdateUsage(ctx context.Context, id uint, usageGB float64) error {
	err := r.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", id).
		Update("data_usage_gb", usageGB).Error
	if err != nil {
		return &apperrors.PersistenceError{Operation: "update usage", Err: err}
	}
	return nil
}
