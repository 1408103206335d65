package service

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/beaconhq/beacon/internal/models"
)

// ConnectionStore is the durable record of one OAuth connection per
// (user, platform).
type ConnectionStore interface {
	Get(ctx context.Context, userID, platform string) (*models.PlatformConnection, error)
	Upsert(ctx context.Context, conn *models.PlatformConnection) error
	Update(ctx context.Context, conn *models.PlatformConnection) error
	Delete(ctx context.Context, userID, platform string) error
	ListByUser(ctx context.Context, userID string) ([]models.PlatformConnection, error)
}

type gormConnectionStore struct {
	db *gorm.DB
}

func NewConnectionStore(db *gorm.DB) ConnectionStore {
	return &gormConnectionStore{db: db}
}

func (s *gormConnectionStore) Get(ctx context.Context, userID, platform string) (*models.PlatformConnection, error) {
	var conn models.PlatformConnection
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conn, nil
}

func (s *gormConnectionStore) Upsert(ctx context.Context, conn *models.PlatformConnection) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "platform"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"access_token", "refresh_token", "expires_at", "status",
				"last_error", "last_refreshed_at", "updated_at",
			}),
		}).
		Create(conn).Error
}

func (s *gormConnectionStore) Update(ctx context.Context, conn *models.PlatformConnection) error {
	return s.db.WithContext(ctx).Save(conn).Error
}

func (s *gormConnectionStore) Delete(ctx context.Context, userID, platform string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		Delete(&models.PlatformConnection{}).Error
}

func (s *gormConnectionStore) ListByUser(ctx context.Context, userID string) ([]models.PlatformConnection, error) {
	var conns []models.PlatformConnection
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("platform ASC").
		Find(&conns).Error
	return conns, err
}
