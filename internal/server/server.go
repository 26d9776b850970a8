package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/aman-churiwal/api-guard/internal/circuitbreaker"
	"github.com/aman-churiwal/api-guard/internal/config"
	"github.com/aman-churiwal/api-guard/internal/handler"
	"github.com/aman-churiwal/api-guard/internal/healthcheck"
	"github.com/aman-churiwal/api-guard/internal/middleware"
	"github.com/aman-churiwal/api-guard/internal/ratelimit"
	"github.com/aman-churiwal/api-guard/internal/repository"
	"github.com/aman-churiwal/api-guard/internal/service"
	"github.com/aman-churiwal/api-guard/internal/storage"
	"github.com/aman-churiwal/api-guard/internal/usage"
	"github.com/gin-gonic/gin"
)

type Server struct {
	router       *gin.Engine
	config       *config.Config
	postgres     *storage.Postgres
	redis        *storage.RedisClient
	limiter      *ratelimit.CachedEngine
	tokenService *service.TokenService
	recorder     *usage.Recorder
	checker      *healthcheck.Checker
	counterRepo  *repository.CounterRepository
	httpServer   *http.Server
	sweeperStop  chan struct{}
}

// New wires the guard: one of everything, constructed here and passed down
// explicitly. redis may be nil when the postgres counter store is used.
func New(cfg *config.Config, postgres *storage.Postgres, redis *storage.RedisClient) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Repositories
	tokenRepo := repository.NewTokenRepository(postgres)
	counterRepo := repository.NewCounterRepository(postgres)
	usageRepo := repository.NewUsageRepository(postgres)
	userRepo := repository.NewUserRepository(postgres)

	// Usage recording runs in the background; a failure there never touches
	// the request path.
	recorder := usage.NewRecorder(
		usageRepo,
		cfg.Usage.BufferSize,
		cfg.Usage.BatchSize,
		time.Duration(cfg.Usage.FlushIntervalSeconds)*time.Second,
	)

	// Counter store per config, behind a circuit breaker.
	var counterStore ratelimit.CounterStore = counterRepo
	if cfg.RateLimit.Store == "redis" {
		counterStore = ratelimit.NewRedisCounterStore(redis)
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{})

	engine := ratelimit.NewEngine(
		counterStore,
		ratelimit.RulesFromConfig(cfg.RateLimit.Rules),
		ratelimit.PolicyFromString(cfg.RateLimit.FailurePolicy),
		breaker,
	)
	limiter := ratelimit.NewCachedEngine(engine, time.Duration(cfg.RateLimit.CacheTTLSeconds)*time.Second)

	// Services
	tokenService := service.NewTokenService(tokenRepo, time.Duration(cfg.TokenAuth.CacheTTLSeconds)*time.Second, recorder)
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	usageService := service.NewUsageService(usageRepo)

	// Handlers
	tokenHandler := handler.NewTokenHandler(tokenService)
	authHandler := handler.NewAuthHandler(authService)
	usageHandler := handler.NewUsageHandler(usageService)
	rateLimitHandler := handler.NewRateLimitHandler(limiter, counterRepo)

	// Health probes for the storage collaborators
	probes := []healthcheck.Probe{
		{Name: "postgres", Pinger: postgres},
	}
	if redis != nil {
		probes = append(probes, healthcheck.Probe{Name: "redis", Pinger: redis})
	}
	checker := healthcheck.NewChecker(&healthcheck.Config{Probes: probes})

	s := &Server{
		router:       router,
		config:       cfg,
		postgres:     postgres,
		redis:        redis,
		limiter:      limiter,
		tokenService: tokenService,
		recorder:     recorder,
		checker:      checker,
		counterRepo:  counterRepo,
		sweeperStop:  make(chan struct{}),
	}

	s.setupMiddleware()
	s.setupRoutes(tokenHandler, authHandler, usageHandler, rateLimitHandler, authService)

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
}

func (s *Server) setupRoutes(
	tokens *handler.TokenHandler,
	auth *handler.AuthHandler,
	usageH *handler.UsageHandler,
	rateLimits *handler.RateLimitHandler,
	authService *service.AuthService,
) {
	s.router.GET("/health", s.healthCheck)

	s.router.POST("/auth/register", auth.Register)
	s.router.POST("/auth/login", auth.Login)

	admin := s.router.Group("/admin")
	admin.Use(middleware.RequireAuth(authService))
	{
		admin.POST("/tokens", tokens.Create)
		admin.GET("/tokens", tokens.List)
		admin.GET("/tokens/:id", tokens.Get)
		admin.DELETE("/tokens/:id", tokens.Revoke)
		admin.GET("/tokens/:id/usage", usageH.TokenUsage)

		admin.GET("/usage", usageH.Summary)
		admin.GET("/usage/logs", usageH.Logs)

		admin.GET("/ratelimit/cache", rateLimits.CacheStats)
		admin.DELETE("/ratelimit/cache", rateLimits.ClearCache)
		admin.POST("/ratelimit/cache/clean", rateLimits.CleanExpired)
		admin.GET("/ratelimit/counters", rateLimits.Counters)
	}

	// Every guarded route passes token auth + rate limiting before its
	// handler runs.
	api := s.router.Group("/v1")
	api.Use(middleware.Guard(s.tokenService, s.limiter))
	{
		api.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong"})
		})
		api.GET("/search", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"results": []string{}, "query": c.Query("q")})
		})
		api.GET("/repos", middleware.RequireScopes("repo:read"), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"repos": []string{}})
		})
		api.POST("/repos", middleware.RequireScopes("repo:write"), func(c *gin.Context) {
			c.JSON(http.StatusCreated, gin.H{"message": "created"})
		})
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	overall := s.checker.Overall()

	statusCode := http.StatusOK
	if overall != healthcheck.Healthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    overall.String(),
		"service":   "api-guard",
		"timestamp": time.Now().Unix(),
		"checks":    s.checker.Snapshot(),
	})
}

func (s *Server) Run(addr string) error {
	s.checker.Start()
	go s.sweepLoop()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Printf("Guard listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.checker.Stop()
	close(s.sweeperStop)
	s.recorder.Close()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Periodically drops stale counter rows and expired cache entries.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := s.limiter.CleanExpired()
			if removed > 0 {
				log.Printf("ratelimit: swept %d expired cache entries", removed)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			rows, err := s.counterRepo.CleanupExpired(ctx, time.Now())
			cancel()
			if err != nil {
				log.Printf("ratelimit: counter cleanup failed: %v", err)
			} else if rows > 0 {
				log.Printf("ratelimit: removed %d stale counter rows", rows)
			}
		case <-s.sweeperStop:
			return
		}
	}
}
