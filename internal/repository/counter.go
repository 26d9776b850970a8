package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/api-guard/internal/models"
	"github.com/aman-churiwal/api-guard/internal/ratelimit"
	"github.com/aman-churiwal/api-guard/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterRepository persists rate-limit counters in postgres. It satisfies
// ratelimit.CounterStore.
type CounterRepository struct {
	db *storage.Postgres
}

func NewCounterRepository(db *storage.Postgres) *CounterRepository {
	return &CounterRepository{db: db}
}

func (r *CounterRepository) Get(ctx context.Context, key ratelimit.CounterKey) (*models.RateLimitCounter, error) {
	var counter models.RateLimitCounter
	err := r.db.DB.WithContext(ctx).
		Where("identifier = ? AND endpoint = ? AND method = ?", key.Identifier, key.Endpoint, key.Method).
		First(&counter).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &counter, err
}

// Upsert relies on the database's ON CONFLICT so concurrent writers for the
// same key never produce duplicate rows.
func (r *CounterRepository) Upsert(ctx context.Context, counter *models.RateLimitCounter) error {
	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "identifier"},
				{Name: "endpoint"},
				{Name: "method"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"count", "reset_at", "blocked_until", "updated_at"}),
		}).
		Create(counter).Error
}

// FindByIdentifier returns all counter rows for one identifier, for the
// admin inspection endpoint.
func (r *CounterRepository) FindByIdentifier(ctx context.Context, identifier string) ([]models.RateLimitCounter, error) {
	var counters []models.RateLimitCounter
	err := r.db.DB.WithContext(ctx).
		Where("identifier = ?", identifier).
		Order("updated_at DESC").
		Find(&counters).Error

	return counters, err
}

// CleanupExpired removes counters whose window closed and whose block (if
// any) has lapsed. Returns the number of rows removed.
func (r *CounterRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("reset_at < ? AND (blocked_until IS NULL OR blocked_until < ?)", now, now).
		Delete(&models.RateLimitCounter{})

	return result.RowsAffected, result.Error
}
