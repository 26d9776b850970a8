package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/api-guard/internal/models"
	"github.com/aman-churiwal/api-guard/internal/ratelimit"
	"github.com/aman-churiwal/api-guard/internal/service"
	"github.com/aman-churiwal/api-guard/internal/usage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubTokenStore struct {
	mu     sync.Mutex
	byHash map[string]*models.ApiToken
}

func newStubTokenStore() *stubTokenStore {
	return &stubTokenStore{byHash: map[string]*models.ApiToken{}}
}

func (s *stubTokenStore) Create(ctx context.Context, token *models.ApiToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	copied := *token
	s.byHash[token.HashedSecret] = &copied
	return nil
}

func (s *stubTokenStore) FindByHash(ctx context.Context, hash string) (*models.ApiToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.byHash[hash]
	if !ok || !token.Usable(time.Now()) {
		return nil, nil
	}
	copied := *token
	return &copied, nil
}

func (s *stubTokenStore) FindByID(ctx context.Context, id string) (*models.ApiToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.byHash {
		if token.ID.String() == id {
			copied := *token
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *stubTokenStore) List(ctx context.Context) ([]models.ApiToken, error) { return nil, nil }

func (s *stubTokenStore) Revoke(ctx context.Context, id string) error { return nil }

func (s *stubTokenStore) UpdateLastUsed(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubTokenStore) IncrementUsed(ctx context.Context, id uuid.UUID) error { return nil }

type stubCounterStore struct {
	mu       sync.Mutex
	counters map[ratelimit.CounterKey]models.RateLimitCounter
}

func newStubCounterStore() *stubCounterStore {
	return &stubCounterStore{counters: map[ratelimit.CounterKey]models.RateLimitCounter{}}
}

func (s *stubCounterStore) Get(ctx context.Context, key ratelimit.CounterKey) (*models.RateLimitCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, ok := s.counters[key]
	if !ok {
		return nil, nil
	}
	copied := counter
	return &copied, nil
}

func (s *stubCounterStore) Upsert(ctx context.Context, counter *models.RateLimitCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ratelimit.CounterKey{
		Identifier: counter.Identifier,
		Endpoint:   counter.Endpoint,
		Method:     counter.Method,
	}
	s.counters[key] = *counter
	return nil
}

type dropSink struct{}

func (dropSink) CreateBatch(ctx context.Context, records []models.TokenUsage) error { return nil }

type guardFixture struct {
	router *gin.Engine
	tokens *service.TokenService
}

func newGuardFixture(t *testing.T, rules []ratelimit.Rule) *guardFixture {
	t.Helper()

	recorder := usage.NewRecorder(dropSink{}, 64, 64, time.Hour)
	t.Cleanup(recorder.Close)

	tokens := service.NewTokenService(newStubTokenStore(), time.Minute, recorder)
	engine := ratelimit.NewEngine(newStubCounterStore(), rules, ratelimit.FailOpen, nil)
	limiter := ratelimit.NewCachedEngine(engine, time.Minute)

	router := gin.New()
	v1 := router.Group("/v1", Guard(tokens, limiter))
	v1.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	v1.GET("/search", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"results": []string{}})
	})
	v1.POST("/repos", RequireScopes("repo:write"), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"status": "created"})
	})

	return &guardFixture{router: router, tokens: tokens}
}

func (f *guardFixture) do(method, path, bearer string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func (f *guardFixture) issue(t *testing.T, tokenType string, scopes ...string) string {
	t.Helper()
	secret, _, err := f.tokens.Create(context.Background(), service.CreateParams{
		Name:   "test",
		Type:   tokenType,
		Scopes: scopes,
	})
	require.NoError(t, err)
	return secret
}

func defaultRules() []ratelimit.Rule {
	return []ratelimit.Rule{
		{Endpoint: "/v1/search", Method: "GET", Limit: 3, Window: 60 * time.Second, BlockFor: 120 * time.Second},
		{Limit: 60, Window: 60 * time.Second},
	}
}

func TestGuardAnonymousRequestCarriesQuotaHeaders(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	w := f.do("GET", "/v1/ping", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestGuardRejectsInvalidToken(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	w := f.do("GET", "/v1/ping", "ag_not_a_real_secret")

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Invalid API token", body["error"])
}

func TestGuardEnforcesEndpointLimit(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	for _, wantRemaining := range []string{"2", "1", "0"} {
		w := f.do("GET", "/v1/search", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, wantRemaining, w.Header().Get("X-RateLimit-Remaining"))
	}

	w := f.do("GET", "/v1/search", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body struct {
		Error      string `json:"error"`
		Message    string `json:"message"`
		RetryAfter int    `json:"retryAfter"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Too Many Requests", body.Error)
	assert.Equal(t, "Rate limit exceeded", body.Message)
	assert.Greater(t, body.RetryAfter, 0)

	// The narrow rule only covers GET /v1/search; other traffic still flows.
	ok := f.do("GET", "/v1/ping", "")
	assert.Equal(t, http.StatusOK, ok.Code)
}

func TestGuardIsolatesTokenIdentities(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	first := f.issue(t, models.TokenTypeAdvanced, "repo:read")
	second := f.issue(t, models.TokenTypeAdvanced, "repo:read")

	w1 := f.do("GET", "/v1/search", first)
	require.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, "2", w1.Header().Get("X-RateLimit-Remaining"))

	w2 := f.do("GET", "/v1/search", second)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "2", w2.Header().Get("X-RateLimit-Remaining"),
		"tokens must not share a counter bucket")
}

func TestRequireScopesDecisions(t *testing.T) {
	f := newGuardFixture(t, defaultRules())

	t.Run("anonymous gets 401", func(t *testing.T) {
		w := f.do("POST", "/v1/repos", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing scope gets 403 naming the scope", func(t *testing.T) {
		secret := f.issue(t, models.TokenTypeAdvanced, "repo:read")
		w := f.do("POST", "/v1/repos", secret)
		assert.Equal(t, http.StatusForbidden, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Contains(t, body["message"], "repo:write")
	})

	t.Run("admin scope suffices", func(t *testing.T) {
		secret := f.issue(t, models.TokenTypeAdvanced, "repo:admin")
		w := f.do("POST", "/v1/repos", secret)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("basic token denied write even when scoped", func(t *testing.T) {
		secret := f.issue(t, models.TokenTypeBasic, "repo:write")
		w := f.do("POST", "/v1/repos", secret)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
