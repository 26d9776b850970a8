package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aman-churiwal/api-guard/internal/cache"
	"github.com/aman-churiwal/api-guard/internal/models"
	"github.com/aman-churiwal/api-guard/internal/usage"
	"github.com/google/uuid"
)

// TokenStore is the persistence contract the token service needs.
type TokenStore interface {
	Create(ctx context.Context, token *models.ApiToken) error
	FindByHash(ctx context.Context, hash string) (*models.ApiToken, error)
	FindByID(ctx context.Context, id string) (*models.ApiToken, error)
	List(ctx context.Context) ([]models.ApiToken, error)
	Revoke(ctx context.Context, id string) error
	UpdateLastUsed(ctx context.Context, id uuid.UUID) error
	IncrementUsed(ctx context.Context, id uuid.UUID) error
}

// TokenService validates bearer secrets against hashed tokens, with a
// process-local cache in front of the store. A revoked token can outlive
// revocation by at most the cache TTL; a cache hit still re-checks
// revocation and expiry against the current time.
type TokenService struct {
	store    TokenStore
	cache    *cache.TTL[models.ApiToken]
	recorder *usage.Recorder
	now      func() time.Time
}

func NewTokenService(store TokenStore, cacheTTL time.Duration, recorder *usage.Recorder) *TokenService {
	return &TokenService{
		store:    store,
		cache:    cache.NewTTL[models.ApiToken](cacheTTL),
		recorder: recorder,
		now:      time.Now,
	}
}

// WithClock overrides the service's time source.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// CreateParams for issuing a new token.
type CreateParams struct {
	Name        string
	Type        string
	Scopes      []string
	ExpiresAt   *time.Time
	OwnerUserID *uuid.UUID
	OwnerOrgID  *uuid.UUID
	RateLimit   int
}

// Create issues a token and returns the plaintext secret. The secret is
// only ever visible here; the store keeps its hash.
func (s *TokenService) Create(ctx context.Context, params CreateParams) (string, *models.ApiToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate token secret: %w", err)
	}

	secret := "ag_" + base64.URLEncoding.EncodeToString(secretBytes)

	tokenType := params.Type
	if tokenType == "" {
		tokenType = models.TokenTypeBasic
	}

	token := &models.ApiToken{
		HashedSecret: hashSecret(secret),
		Name:         params.Name,
		Type:         tokenType,
		Scopes:       params.Scopes,
		ExpiresAt:    params.ExpiresAt,
		OwnerUserID:  params.OwnerUserID,
		OwnerOrgID:   params.OwnerOrgID,
		RateLimit:    params.RateLimit,
	}

	if err := s.store.Create(ctx, token); err != nil {
		return "", nil, fmt.Errorf("failed to create token: %w", err)
	}

	return secret, token, nil
}

// ValidateToken resolves a bearer secret to a live token. Every failure
// mode returns ErrInvalidToken; callers must not leak which one it was.
// A store outage fails closed: an unverifiable credential is rejected.
func (s *TokenService) ValidateToken(ctx context.Context, secret string) (*models.ApiToken, error) {
	if secret == "" {
		return nil, ErrInvalidToken
	}

	hash := hashSecret(secret)

	if cached, ok := s.cache.Get(hash); ok {
		if !cached.Usable(s.now()) {
			s.cache.Delete(hash)
			return nil, ErrInvalidToken
		}

		go s.touchLastUsed(cached.ID)

		token := cached
		return &token, nil
	}

	token, err := s.store.FindByHash(ctx, hash)
	if err != nil {
		log.Printf("token: store lookup failed, rejecting: %v", err)
		return nil, ErrInvalidToken
	}
	if token == nil {
		return nil, ErrInvalidToken
	}

	s.cache.Set(hash, *token)

	if err := s.store.UpdateLastUsed(ctx, token.ID); err != nil {
		log.Printf("token: failed to update last_used_at for %s: %v", token.ID, err)
	}

	return token, nil
}

// ValidateRequest pulls the bearer secret out of the Authorization header
// and validates it. The header must use the "Bearer <secret>" form.
func (s *TokenService) ValidateRequest(ctx context.Context, r *http.Request) (*models.ApiToken, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, ErrInvalidToken
	}

	secret, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return nil, ErrInvalidToken
	}

	return s.ValidateToken(ctx, strings.TrimSpace(secret))
}

// RecordUsage queues a usage row for an authorized call and, when the token
// declares its own rate limit, bumps its usage counter. Both are
// best-effort and never block or fail the request.
func (s *TokenService) RecordUsage(token *models.ApiToken, endpoint, method string, status int, ipAddress, userAgent string) {
	if token == nil {
		return
	}

	s.recorder.Record(models.TokenUsage{
		TokenID:    token.ID,
		Endpoint:   endpoint,
		Method:     method,
		StatusCode: status,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Timestamp:  s.now(),
	})

	if token.RateLimit > 0 {
		id := token.ID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.store.IncrementUsed(ctx, id); err != nil {
				log.Printf("token: failed to increment usage for %s: %v", id, err)
			}
		}()
	}
}

func (s *TokenService) Get(ctx context.Context, id string) (*models.ApiToken, error) {
	return s.store.FindByID(ctx, id)
}

func (s *TokenService) List(ctx context.Context) ([]models.ApiToken, error) {
	return s.store.List(ctx)
}

// Revoke marks the token deleted and evicts it from the cache so the local
// process stops honoring it immediately. Other instances converge within
// their cache TTL.
func (s *TokenService) Revoke(ctx context.Context, id string) error {
	token, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if token != nil {
		s.cache.Delete(token.HashedSecret)
	}

	return s.store.Revoke(ctx, id)
}

// ClearCache drops all cached tokens.
func (s *TokenService) ClearCache() {
	s.cache.Purge()
}

func (s *TokenService) touchLastUsed(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.UpdateLastUsed(ctx, id); err != nil {
		log.Printf("token: failed to update last_used_at for %s: %v", id, err)
	}
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
