// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nmoreau/sentra/internal/alerts"
	"github.com/nmoreau/sentra/internal/config"
	"github.com/nmoreau/sentra/internal/engine"
	"github.com/nmoreau/sentra/internal/health"
	"github.com/nmoreau/sentra/internal/ingest"
	"github.com/nmoreau/sentra/internal/logging"
	"github.com/nmoreau/sentra/internal/metrics"
	"github.com/nmoreau/sentra/internal/ml"
	"github.com/nmoreau/sentra/internal/profile"
	"github.com/nmoreau/sentra/internal/ratelimit"
	"github.com/nmoreau/sentra/internal/realtime"
	"github.com/nmoreau/sentra/internal/security"
	"github.com/nmoreau/sentra/internal/traces"
	"github.com/nmoreau/sentra/internal/transactions"
	"github.com/nmoreau/sentra/internal/validation"
	"github.com/nmoreau/sentra/internal/webhooks"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	txStore      transactions.Store
	profiles     profile.Store
	engine       *engine.Engine
	alertService *alerts.Service
	ingestSvc    *ingest.Service
	refresher    *profile.Refresher
	webhooks     *webhooks.Dispatcher
	webhookStore webhooks.Store
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	shutdownOTel func(context.Context) error
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithEngine sets a custom scoring engine (for testing)
func WithEngine(eng *engine.Engine) Option {
	return func(s *Server) {
		s.engine = eng
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set engine/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		txStore := transactions.NewPostgresStore(db)
		if err := txStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate transaction store", "error", err)
		}
		s.txStore = txStore

		profileStore := profile.NewPostgresStore(db, cfg.ProfileRetention)
		if err := profileStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate profile store", "error", err)
		}
		s.profiles = profileStore

		alertStore := alerts.NewPostgresStore(db)
		if err := alertStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate alert store", "error", err)
		}
		s.alertService = alerts.NewService(alertStore, cfg.AlertFloor, s.logger)

		webhookStore := webhooks.NewPostgresStore(db)
		if err := webhookStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate webhook store", "error", err)
		}
		s.webhookStore = webhookStore
		s.webhooks = webhooks.NewDispatcher(webhookStore, cfg.WebhookSecret)
		s.logger.Info("webhooks enabled")
	} else {
		s.txStore = transactions.NewMemoryStore()
		s.profiles = profile.NewMemoryStore(cfg.ProfileRetention)
		s.alertService = alerts.NewService(alerts.NewMemoryStore(), cfg.AlertFloor, s.logger)
		s.webhookStore = webhooks.NewMemoryStore()
		s.webhooks = webhooks.NewDispatcher(s.webhookStore, cfg.WebhookSecret)
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Scoring engine with trained model artifacts. Missing artifacts degrade
	// to rules-only scoring rather than failing startup.
	if s.engine == nil {
		models := ml.Load(cfg.ModelsDir, s.logger)
		s.engine = engine.New(models, s.logger)
	}

	// Behavioral profile refresher
	s.refresher = profile.NewRefresher(s.txStore, s.profiles, cfg.ProfileWindow, cfg.ProfileRetention, s.logger)

	// Realtime hub for WebSocket alert streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Ingestion pipeline
	emitter := webhooks.NewEmitter(s.webhooks, s.logger)
	s.ingestSvc = ingest.New(s.txStore, s.profiles, s.engine, s.alertService, s.realtimeHub, emitter, s.refresher, s.logger)

	// Health checks
	s.checks = health.NewRegistry()
	if s.db != nil {
		s.checks.Register("database", health.DBChecker("database", s.db))
	}
	s.checks.Register("profile_refresher", health.RunningChecker("profile_refresher", s.refresher.Running))

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// WebSocket for real-time alert streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})
	s.router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})

	// V1 API group
	v1 := s.router.Group("/api/v1")

	// Transaction ingestion + scoring
	ingest.NewHandlers(s.ingestSvc).Register(v1)

	// Transaction queries and aggregate stats
	transactions.NewHandlers(s.txStore).Register(v1)

	// Alert triage
	alerts.NewHandlers(s.alertService).Register(v1)

	// Webhook subscription management
	webhooks.NewHandlers(s.webhookStore).Register(v1)
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Sentra",
		"description": "Real-time transaction fraud scoring and alerting",
		"version":     "0.1.0",
	})
}

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when no OTLP endpoint is configured)
	shutdownOTel, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownOTel = shutdownOTel
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start profile refresher
	go s.refresher.Start(runCtx)

	// Collect database pool stats
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, refresher)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.shutdownOTel != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := s.shutdownOTel(flushCtx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
