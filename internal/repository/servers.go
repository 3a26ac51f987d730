package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "xui-sync/internal/errors"
	"xui-sync/internal/models"
)

// ServerRepo persists the server mirror table
type ServerRepo struct {
	db *gorm.DB
}

// NewServerRepo creates a server repository
func NewServerRepo(db *gorm.DB) *ServerRepo {
	return &ServerRepo{db: db}
}

// GetByID returns one server or NotFoundError
func (r *ServerRepo) GetByID(ctx context.Context, id uint) (*models.Server, error) {
	var server models.Server
	if err := r.db.WithContext(ctx).First(&server, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Kind: "server", Key: fmt.Sprintf("%d", id)}
		}
		return nil, &apperrors.PersistenceError{Operation: "get server", Err: err}
	}
	return &server, nil
}

// ListEnabled returns all servers eligible for reconciliation
func (r *ServerRepo) ListEnabled(ctx context.Context) ([]models.Server, error) {
	var servers []models.Server
	if err := r.db.WithContext(ctx).Where("enable = ?", true).Order("id").Find(&servers).Error; err != nil {
		return nil, &apperrors.PersistenceError{Operation: "list servers", Err: err}
	}
	return servers, nil
}
