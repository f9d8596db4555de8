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
	"github.com/kavachapp/kavach/internal/audio"
	"github.com/kavachapp/kavach/internal/config"
	"github.com/kavachapp/kavach/internal/health"
	"github.com/kavachapp/kavach/internal/logging"
	"github.com/kavachapp/kavach/internal/metrics"
	"github.com/kavachapp/kavach/internal/motion"
	"github.com/kavachapp/kavach/internal/notify"
	"github.com/kavachapp/kavach/internal/pattern"
	"github.com/kavachapp/kavach/internal/profiles"
	"github.com/kavachapp/kavach/internal/ratelimit"
	"github.com/kavachapp/kavach/internal/realtime"
	"github.com/kavachapp/kavach/internal/respond"
	"github.com/kavachapp/kavach/internal/risk"
	"github.com/kavachapp/kavach/internal/security"
	"github.com/kavachapp/kavach/internal/text"
	"github.com/kavachapp/kavach/internal/threats"
	"github.com/kavachapp/kavach/internal/traces"
	"github.com/kavachapp/kavach/internal/validation"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	threatStore    threats.Store
	profileStore   profiles.Store
	riskStore      risk.Store
	emergencyStore respond.Store
	evidenceStore  respond.EvidenceStore
	aggregator     *risk.Aggregator
	responder      *respond.Responder
	dispatcher     *notify.Dispatcher
	patternWorker  *pattern.Worker
	realtimeHub    *realtime.Hub
	rateLimiter    *ratelimit.Limiter
	healthReg      *health.Registry
	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error

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

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	var patternStore pattern.Store

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

		threatStore := threats.NewPostgresStore(db)
		if err := threatStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate threat store", "error", err)
		}
		s.threatStore = threatStore

		profileStore := profiles.NewPostgresStore(db)
		if err := profileStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate profile store", "error", err)
		}
		s.profileStore = profileStore

		riskStore := risk.NewPostgresStore(db)
		if err := riskStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate risk store", "error", err)
		}
		s.riskStore = riskStore

		emergencyStore := respond.NewPostgresStore(db)
		if err := emergencyStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate emergency store", "error", err)
		}
		s.emergencyStore = emergencyStore

		evidenceStore := respond.NewPostgresEvidenceStore(db)
		if err := evidenceStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate evidence store", "error", err)
		}
		s.evidenceStore = evidenceStore

		pgPattern := pattern.NewPostgresStore(db)
		if err := pgPattern.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate pattern store", "error", err)
		}
		patternStore = pgPattern

		s.healthReg.Register("database", health.DBChecker("database", db))
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.threatStore = threats.NewMemoryStore()
		s.profileStore = profiles.NewMemoryStore()
		s.riskStore = risk.NewMemoryStore()
		s.emergencyStore = respond.NewMemoryStore()
		s.evidenceStore = respond.NewMemoryEvidenceStore()
		patternStore = pattern.NewMemoryStore()
	}

	// Outbound alert dispatcher (SMS/email gateways optional)
	s.dispatcher = notify.NewDispatcher(cfg.SMSGatewayURL, cfg.EmailGatewayURL, cfg.AlertSecret, s.logger)
	if cfg.SMSGatewayURL != "" || cfg.EmailGatewayURL != "" {
		s.logger.Info("alert dispatch enabled",
			"sms", cfg.SMSGatewayURL != "",
			"email", cfg.EmailGatewayURL != "",
		)
	} else {
		s.logger.Info("alert dispatch in log-only mode (no gateways configured)")
	}

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Emergency responder
	s.responder = respond.NewResponder(s.emergencyStore, s.evidenceStore, s.dispatcher, s.logger).
		WithBroadcaster(s.realtimeHub)

	// Risk aggregator
	s.aggregator = risk.NewAggregator(riskParams(cfg), s.threatStore, s.profileStore, s.riskStore, s.logger, cfg.Location()).
		WithEscalator(s.responder).
		WithBroadcaster(s.realtimeHub)

	if cfg.PatternBaselineEnabled {
		provider := pattern.NewProvider(patternStore, s.threatStore, cfg.PatternDefault, s.logger)
		s.aggregator = s.aggregator.WithPattern(provider.Score)
		s.patternWorker = pattern.NewWorker(patternStore, s.threatStore, s.logger)
		s.logger.Info("pattern baselines enabled")
	}

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

// riskParams maps environment configuration onto the scoring parameters.
func riskParams(cfg *config.Config) risk.Params {
	return risk.Params{
		Window:              time.Duration(cfg.WindowSeconds) * time.Second,
		MultiModalityBonus:  cfg.MultiModalityBonus,
		EventCountBonus:     cfg.EventCountBonus,
		EventCountMin:       cfg.EventCountMin,
		SeverityBonus:       cfg.SeverityBonus,
		SeverityFloor:       cfg.SeverityFloor,
		NightBonus:          cfg.NightBonus,
		GeofenceBonus:       cfg.GeofenceBonus,
		ProximityDegrees:    cfg.ProximityDegrees,
		IsolationBonus:      cfg.IsolationBonus,
		IsolationEnabled:    cfg.IsolationEnabled,
		IsolationAccuracy:   cfg.IsolationAccuracy,
		BaseWeight:          cfg.BaseWeight,
		EscalationWeight:    cfg.EscalationWeight,
		ContextWeight:       cfg.ContextWeight,
		PatternWeight:       cfg.PatternWeight,
		CriticalFloor:       cfg.CriticalFloor,
		HighFloor:           cfg.HighFloor,
		MediumFloor:         cfg.MediumFloor,
		LowFloor:            cfg.LowFloor,
		EscalationThreshold: cfg.EscalationThreshold,
		DefaultPatternScore: cfg.PatternDefault,
	}
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

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

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

	// CORS (mobile clients send no Origin; browser dashboards do)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rlCfg)
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

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Service info
	s.router.GET("/api", s.infoHandler)

	// WebSocket for real-time monitoring
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :userId URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.UserIDParamMiddleware())

	// Signal ingestion, one endpoint per modality
	audioHandler := audio.NewHandler(s.threatStore, s.aggregator, s.cfg.AudioTriggerThreshold, s.logger)
	audioHandler.RegisterRoutes(v1)

	motionHandler := motion.NewHandler(s.threatStore, s.aggregator, s.cfg.MotionTriggerThreshold, s.logger)
	motionHandler.RegisterRoutes(v1)

	textHandler := text.NewHandler(s.threatStore, s.evidenceStore, s.aggregator, s.cfg.TextTriggerThreshold, s.logger)
	textHandler.RegisterRoutes(v1)

	// Risk assessment
	riskHandler := risk.NewHandler(s.aggregator, s.threatStore, s.riskStore, s.logger)
	riskHandler.RegisterRoutes(v1)

	// User safety profiles
	profileHandler := profiles.NewHandler(s.profileStore, s.logger)
	profileHandler.RegisterRoutes(v1)

	// Emergency audit trail
	respondHandler := respond.NewHandler(s.emergencyStore, s.logger)
	respondHandler.RegisterRoutes(v1)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthReg.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
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
		"name":        "Kavach",
		"description": "Personal safety signal analysis and emergency response",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when no endpoint configured)
	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTraces = shutdownTraces
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

	// Start pattern baseline worker
	if s.patternWorker != nil {
		s.patternWorker.Start(runCtx)
	}

	// Export DB pool stats
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
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

	// Cancel the context for all background goroutines (hub, worker, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop pattern worker
	if s.patternWorker != nil {
		s.patternWorker.Stop()
		s.logger.Info("pattern worker stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
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

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
