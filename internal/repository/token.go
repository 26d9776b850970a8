package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/api-guard/internal/models"
	"github.com/aman-churiwal/api-guard/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TokenRepository struct {
	db *storage.Postgres
}

func NewTokenRepository(db *storage.Postgres) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, token *models.ApiToken) error {
	return r.db.DB.WithContext(ctx).Create(token).Error
}

// FindByHash looks a token up by its hashed secret, filtered to live
// tokens: not revoked and not past expiry.
func (r *TokenRepository) FindByHash(ctx context.Context, hash string) (*models.ApiToken, error) {
	var token models.ApiToken
	err := r.db.DB.WithContext(ctx).
		Where("hashed_secret = ? AND deleted_at IS NULL", hash).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		First(&token).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &token, err
}

func (r *TokenRepository) FindByID(ctx context.Context, id string) (*models.ApiToken, error) {
	var token models.ApiToken
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&token).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &token, err
}

func (r *TokenRepository) List(ctx context.Context) ([]models.ApiToken, error) {
	var tokens []models.ApiToken
	err := r.db.DB.WithContext(ctx).
		Where("deleted_at IS NULL").
		Order("created_at DESC").
		Find(&tokens).Error

	return tokens, err
}

// Revoke marks the token deleted. Tokens are never hard-deleted.
func (r *TokenRepository) Revoke(ctx context.Context, id string) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.ApiToken{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", time.Now()).Error
}

func (r *TokenRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.ApiToken{}).
		Where("id = ?", id).
		Update("last_used_at", time.Now()).Error
}

// IncrementUsed bumps the token's own usage counter atomically.
func (r *TokenRepository) IncrementUsed(ctx context.Context, id uuid.UUID) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.ApiToken{}).
		Where("id = ?", id).
		Update("rate_limit_used", gorm.Expr("rate_limit_used + 1")).Error
}
