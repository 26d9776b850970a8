package service

import (
	"context"
	"time"

	"github.com/aman-churiwal/api-guard/internal/models"
	"github.com/aman-churiwal/api-guard/internal/repository"
	"github.com/google/uuid"
)

type UsageService struct {
	repository *repository.UsageRepository
}

func NewUsageService(repo *repository.UsageRepository) *UsageService {
	return &UsageService{repository: repo}
}

// Holds usage summary data for a time range
type UsageSummary struct {
	TotalRequests   int64                    `json:"total_requests"`
	RateLimited     int64                    `json:"rate_limited"`
	SuccessRate     float64                  `json:"success_rate"`
	ClientErrorRate float64                  `json:"client_error_rate"`
	ServerErrorRate float64                  `json:"server_error_rate"`
	TopEndpoints    []map[string]interface{} `json:"top_endpoints"`
}

// Retrieves a usage summary for a time range
func (s *UsageService) GetSummary(ctx context.Context, from, to time.Time) (*UsageSummary, error) {
	summary := &UsageSummary{}

	totalRequests, err := s.repository.CountByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.TotalRequests = totalRequests

	if totalRequests == 0 {
		return summary, nil
	}

	rateLimited, err := s.repository.CountByStatusRange(ctx, 429, 429, from, to)
	if err != nil {
		return nil, err
	}
	summary.RateLimited = rateLimited

	clientErrors, err := s.repository.CountByStatusRange(ctx, 400, 499, from, to)
	if err != nil {
		return nil, err
	}

	serverErrors, err := s.repository.CountByStatusRange(ctx, 500, 599, from, to)
	if err != nil {
		return nil, err
	}

	totalErrors := clientErrors + serverErrors
	summary.ClientErrorRate = (float64(clientErrors) / float64(totalRequests)) * 100
	summary.ServerErrorRate = (float64(serverErrors) / float64(totalRequests)) * 100
	summary.SuccessRate = 100 - (float64(totalErrors)/float64(totalRequests))*100

	topEndpoints, err := s.repository.GetTopEndpoints(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}
	summary.TopEndpoints = topEndpoints

	return summary, nil
}

// Retrieves usage rows for a specific token
func (s *UsageService) GetTokenUsage(ctx context.Context, tokenID uuid.UUID, from, to time.Time, limit, offset int) ([]models.TokenUsage, error) {
	return s.repository.FindByToken(ctx, tokenID, from, to, limit, offset)
}

// Retrieves usage rows with pagination
func (s *UsageService) GetLogs(ctx context.Context, from, to time.Time, limit, offset int) ([]models.TokenUsage, error) {
	return s.repository.FindByTimeRange(ctx, from, to, limit, offset)
}
