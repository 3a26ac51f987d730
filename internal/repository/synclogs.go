package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "xui-sync/internal/errors"
	"xui-sync/internal/models"
)

// SyncLogRepo persists the append-only audit log of reconciliation runs
// and lifecycle actions
type SyncLogRepo struct {
	db *gorm.DB
}

// NewSyncLogRepo creates a sync log repository
func NewSyncLogRepo(db *gorm.DB) *SyncLogRepo {
	return &SyncLogRepo{db: db}
}

// Open appends a new entry in the running state
func (r *SyncLogRepo) Open(ctx context.Context, serverID uint, action string) (*models.SyncLog, error) {
	entry := &models.SyncLog{
		ServerID:  serverID,
		Action:    action,
		Status:    models.SyncStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, &apperrors.PersistenceError{Operation: "open sync log", Err: err}
	}
	return entry, nil
}

// Close finishes a running entry with its final status. Entries are
// never rewritten after closing.
func (r *SyncLogRepo) Close(ctx context.Context, id uint, status, message, detail string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&models.SyncLog{}).
		Where("id = ? AND status = ?", id, models.SyncStatusRunning).
		Updates(map[string]interface{}{
			"status":      status,
			"message":     message,
			"detail":      detail,
			"finished_at": now,
		}).Error
	if err != nil {
		return &apperrors.PersistenceError{Operation: "close sync log", Err: err}
	}
	return nil
}

// Latest returns the most recent entry for one server
func (r *SyncLogRepo) Latest(ctx context.Context, serverID uint) (*models.SyncLog, error) {
	var entry models.SyncLog
	err := r.db.WithContext(ctx).Where("server_id = ?", serverID).
		Order("started_at DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperrors.NotFoundError{Kind: "sync log", Key: fmt.Sprintf("server %d", serverID)}
	}
	if err != nil {
		return nil, &apperrors.PersistenceError{Operation: "latest sync log", Err: err}
	}
	return &entry, nil
}

// CloseStale marks running entries older than the threshold as failed.
// Used by the watchdog so a crashed pass never stays running forever.
func (r *SyncLogRepo) CloseStale(ctx context.Context, olderThan time.Time) (int64, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.SyncLog{}).
		Where("status = ? AND started_at < ?", models.SyncStatusRunning, olderThan).
		Updates(map[string]interface{}{
			"status":      models.SyncStatusFailed,
			"message":     "timed out: closed by watchdog",
			"finished_at": now,
		})
	if result.Error != nil {
		return 0, &apperrors.PersistenceError{Operation: "close stale sync logs", Err: result.Error}
	}
	return result.RowsAffected, nil
}
