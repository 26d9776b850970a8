package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/api-guard/internal/models"
	"github.com/aman-churiwal/api-guard/internal/storage"
	"github.com/google/uuid"
)

type UsageRepository struct {
	db *storage.Postgres
}

func NewUsageRepository(db *storage.Postgres) *UsageRepository {
	return &UsageRepository{db: db}
}

// Inserts a batch of usage records
func (r *UsageRepository) CreateBatch(ctx context.Context, records []models.TokenUsage) error {
	if len(records) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Create(&records).Error
}

// Retrieves usage rows within a time range
func (r *UsageRepository) FindByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]models.TokenUsage, error) {
	var records []models.TokenUsage
	err := r.db.DB.WithContext(ctx).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error

	return records, err
}

// Retrieves usage rows for a specific token
func (r *UsageRepository) FindByToken(ctx context.Context, tokenID uuid.UUID, from, to time.Time, limit, offset int) ([]models.TokenUsage, error) {
	var records []models.TokenUsage
	err := r.db.DB.WithContext(ctx).
		Where("token_id = ? AND timestamp BETWEEN ? AND ?", tokenID, from, to).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error

	return records, err
}

// Counts usage rows in a time range
func (r *UsageRepository) CountByTimeRange(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.TokenUsage{}).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Count(&count).Error

	return count, err
}

// Counts usage rows whose status falls in [min, max]
func (r *UsageRepository) CountByStatusRange(ctx context.Context, min, max int, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.TokenUsage{}).
		Where("status_code BETWEEN ? AND ? AND timestamp BETWEEN ? AND ?", min, max, from, to).
		Count(&count).Error

	return count, err
}

// Returns the most-called endpoints in a time range
func (r *UsageRepository) GetTopEndpoints(ctx context.Context, from, to time.Time, limit int) ([]map[string]interface{}, error) {
	var results []map[string]interface{}
	err := r.db.DB.WithContext(ctx).
		Model(&models.TokenUsage{}).
		Select("endpoint, method, COUNT(*) as count").
		Where("timestamp BETWEEN ? AND ?", from, to).
		Group("endpoint, method").
		Order("count DESC").
		Limit(limit).
		Find(&results).Error

	return results, err
}
