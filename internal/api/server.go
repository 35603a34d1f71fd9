// Package api exposes the signal engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"binance-signal-engine/internal/anomaly"
	"binance-signal-engine/internal/auth"
	"binance-signal-engine/internal/database"
	"binance-signal-engine/internal/engine"
	"binance-signal-engine/internal/events"
	"binance-signal-engine/internal/regime"
	"binance-signal-engine/internal/risk"
	"binance-signal-engine/internal/scanner"
	"binance-signal-engine/internal/sentiment"
	"binance-signal-engine/internal/strategy"
)

// RateLimiter limits requests per endpoint within a sliding window
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// BotAPI is the surface of the orchestrator the HTTP layer needs
type BotAPI interface {
	Start() error
	Stop() error
	IsRunning() bool
	ScanNow(ctx context.Context) error
	Statistics() engine.Statistics
	History(limit int) []strategy.Signal
	Regime(ctx context.Context, symbol string) (regime.Classification, error)
	Sentiment(ctx context.Context) sentiment.Summary
	Portfolio() risk.PortfolioSummary
	TestSignal(ctx context.Context, symbol string) (*strategy.Signal, error)
	AnomalyScore(ctx context.Context, symbol string) anomaly.Score
	TopMarkets(n int) []scanner.Market
	LastScanAt() time.Time
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
	AllowOrigins   []string
	RateLimit      int
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	botAPI      BotAPI
	repo        *database.Repository // may be nil when persistence is disabled
	authService *auth.Service        // may be nil when auth is disabled
	jwtManager  *auth.JWTManager
	metrics     *Metrics
	rateLimiter *RateLimiter
	logger      zerolog.Logger
	startedAt   time.Time
}

// NewServer creates a new API server
func NewServer(
	config ServerConfig,
	botAPI BotAPI,
	repo *database.Repository,
	authService *auth.Service,
	jwtManager *auth.JWTManager,
	bus *events.Bus,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	rateLimit := config.RateLimit
	if rateLimit <= 0 {
		rateLimit = 120
	}

	server := &Server{
		router:      router,
		config:      config,
		botAPI:      botAPI,
		repo:        repo,
		authService: authService,
		jwtManager:  jwtManager,
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(rateLimit, time.Minute),
		logger:      logger.With().Str("component", "api").Logger(),
		startedAt:   time.Now(),
	}

	if bus != nil {
		server.metrics.Observe(bus)
	}

	server.setupRoutes()
	return server
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if !s.rateLimiter.Allow(path) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"path":  path,
			})
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		s.metrics.registry, promhttp.HandlerOpts{})))

	if s.authService != nil {
		s.router.POST("/api/login", s.handleLogin)
	}

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())

	// Read endpoints stay open; mutating endpoints require a token
	// when auth is configured
	api.GET("/status", s.handleStatus)
	api.GET("/signals", s.handleSignals)
	api.GET("/statistics", s.handleStatistics)
	api.GET("/regime/:symbol", s.handleRegime)
	api.GET("/anomaly/:symbol", s.handleAnomaly)
	api.GET("/sentiment", s.handleSentiment)
	api.GET("/portfolio", s.handlePortfolio)
	api.GET("/markets", s.handleMarkets)

	mutating := api.Group("")
	if s.jwtManager != nil {
		mutating.Use(auth.Middleware(s.jwtManager))
	}
	mutating.POST("/start", s.handleStart)
	mutating.POST("/stop", s.handleStop)
	mutating.POST("/scan-now", s.handleScanNow)
	mutating.POST("/test-signal", s.handleTestSignal)
}

// Start runs the HTTP server until Shutdown is called
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}
