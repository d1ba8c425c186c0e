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
	"github.com/sendloka/sendloka/internal/abuse"
	"github.com/sendloka/sendloka/internal/approval"
	"github.com/sendloka/sendloka/internal/config"
	"github.com/sendloka/sendloka/internal/guard"
	"github.com/sendloka/sendloka/internal/health"
	"github.com/sendloka/sendloka/internal/logging"
	"github.com/sendloka/sendloka/internal/metrics"
	"github.com/sendloka/sendloka/internal/ratelimit"
	"github.com/sendloka/sendloka/internal/reconciliation"
	"github.com/sendloka/sendloka/internal/risk"
	"github.com/sendloka/sendloka/internal/security"
	"github.com/sendloka/sendloka/internal/subscription"
	"github.com/sendloka/sendloka/internal/sweep"
	"github.com/sendloka/sendloka/internal/validation"
	"github.com/sendloka/sendloka/internal/wallet"
	"github.com/sendloka/sendloka/internal/webhook"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	abuseEngine *abuse.Engine
	approvals   *approval.Service
	riskEngine  *risk.Engine
	subPolicy   *subscription.Policy
	walletSvc   *wallet.Service
	pipeline    *guard.Pipeline
	limiter     *ratelimit.Limiter
	rlLogStore  ratelimit.LogStore
	ruleStore   ratelimit.RuleStore
	memRules    *ratelimit.MemoryRuleStore // non-nil in memory mode, loader target
	replayGuard *webhook.ReplayGuard
	allowList   *webhook.AllowList
	scheduler   *sweep.Scheduler
	reconTimer  *reconciliation.Timer // Postgres mode only
	checks      *health.Registry

	apprStoreOverride approval.Store

	stopRuleWatch func()

	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
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

// WithApprovalStore overrides the approval store (used by tests to
// inject failing stores).
func WithApprovalStore(store approval.Store) Option {
	return func(s *Server) {
		s.apprStoreOverride = store
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		scoreStore  abuse.Store
		eventStore  abuse.EventStore
		apprStore   approval.Store
		subStore    subscription.Store
		usageStore  subscription.UsageStore
		walletStore wallet.Store
		guardLogs   guard.LogStore
	)

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

		scores := abuse.NewPostgresStore(db)
		if err := scores.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate abuse score store", "error", err)
		}
		events := abuse.NewEventPostgresStore(db)
		if err := events.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate abuse event store", "error", err)
		}
		scoreStore, eventStore = scores, events

		appr := approval.NewPostgresStore(db)
		if err := appr.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate approval store", "error", err)
		}
		apprStore = appr

		subs := subscription.NewPostgresStore(db)
		if err := subs.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate subscription store", "error", err)
		}
		usage := subscription.NewPostgresUsageStore(db)
		if err := usage.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate usage store", "error", err)
		}
		subStore, usageStore = subs, usage

		wstore := wallet.NewPostgresStore(db)
		if err := wstore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate wallet store", "error", err)
		}
		walletStore = wstore

		glogs := guard.NewPostgresLogStore(db)
		if err := glogs.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate guard log store", "error", err)
		}
		guardLogs = glogs

		rules := ratelimit.NewPostgresRuleStore(db)
		if err := rules.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate rate limit rule store", "error", err)
		}
		s.ruleStore = rules
		rlLogs := ratelimit.NewPostgresLogStore(db)
		if err := rlLogs.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate rate limit log store", "error", err)
		}
		s.rlLogStore = rlLogs

		s.reconTimer = reconciliation.NewTimer(reconciliation.NewChecker(db), 5*time.Minute, s.logger)
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")

		scoreStore = abuse.NewMemoryStore()
		eventStore = abuse.NewEventMemoryStore()
		apprStore = approval.NewMemoryStore()
		subStore = subscription.NewMemoryStore()
		usageStore = subscription.NewMemoryUsageStore()
		walletStore = wallet.NewMemoryStore()
		guardLogs = guard.NewMemoryLogStore()

		s.memRules = ratelimit.NewMemoryRuleStore()
		s.ruleStore = s.memRules
		s.rlLogStore = ratelimit.NewMemoryLogStore()
	}

	// Core engines
	s.abuseEngine = abuse.NewEngine(scoreStore, eventStore, abuse.DefaultConfig(), s.logger)
	if s.apprStoreOverride != nil {
		apprStore = s.apprStoreOverride
	}
	s.approvals = approval.NewService(apprStore)
	s.riskEngine = risk.NewEngine()
	s.subPolicy = subscription.NewPolicy(subStore, usageStore)
	s.walletSvc = wallet.NewService(walletStore, wallet.Config{
		CriticalBelow: cfg.SaldoCriticalBelow,
		LowBelow:      cfg.SaldoLowBelow,
	})

	// Revenue guard pipeline: abuse -> subscription -> quota -> wallet cost
	estimator := guard.NewEstimator(guard.DefaultRates(), s.riskEngine)
	s.pipeline = guard.NewPipeline(
		[]guard.Guard{
			guard.NewAbuseGuard(s.abuseEngine),
			guard.NewSubscriptionGuard(s.subPolicy),
			guard.NewQuotaGuard(s.subPolicy),
			guard.NewWalletCostGuard(estimator, s.walletSvc, s.riskEngine),
		},
		s.walletSvc,
		s.subPolicy,
		guardLogs,
		s.logger,
	)

	// Rate limiter
	rlCfg := ratelimit.DefaultConfig()
	if patterns := cfg.ExemptPatterns(); len(patterns) > 0 {
		rlCfg.ExemptEndpoints = patterns
	}
	s.limiter = ratelimit.NewLimiter(rlCfg, s.ruleStore, s.rlLogStore, s.logger)

	// Hot-reloadable YAML rules (memory mode only; Postgres rules are
	// managed through the admin API)
	if cfg.RateLimitRulesFile != "" && s.memRules != nil {
		loader, err := ratelimit.NewLoader(cfg.RateLimitRulesFile, s.memRules, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create rule loader: %w", err)
		}
		if err := loader.Reload(); err != nil {
			return nil, fmt.Errorf("failed to load rate limit rules: %w", err)
		}
		stop, err := loader.Watch()
		if err != nil {
			s.logger.Warn("rule file watching disabled", "error", err)
		} else {
			s.stopRuleWatch = stop
			s.logger.Info("rate limit rules hot-reload enabled", "file", cfg.RateLimitRulesFile)
		}
	}

	// Webhook verification chain
	allowList, err := webhook.NewAllowList(cfg.AllowedIPs())
	if err != nil {
		return nil, fmt.Errorf("invalid webhook allow-list: %w", err)
	}
	s.allowList = allowList
	s.replayGuard = webhook.NewReplayGuard(webhook.ReplayConfig{
		MaxAgeSeconds:    cfg.WebhookMaxAgeSeconds,
		ClockSkewSeconds: cfg.WebhookClockSkew,
		CacheTTL:         time.Duration(cfg.WebhookCacheTTL) * time.Second,
	}, s.logger)

	// Background decay/unlock sweeps
	sweepCfg := sweep.DefaultConfig()
	sweepCfg.DecaySchedule = cfg.DecaySchedule
	sweepCfg.UnlockSchedule = cfg.UnlockSchedule
	s.scheduler = sweep.New(s.abuseEngine, sweepCfg, s.logger)

	s.checks = health.NewRegistry()
	if s.db != nil {
		s.checks.Register("database", health.DBChecker(s.db, 5*time.Second))
	}
	s.checks.Register("rule_store", func(ctx context.Context) health.Status {
		rules, err := s.ruleStore.List(ctx)
		if err != nil {
			return health.Status{Name: "rule_store", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "rule_store", Healthy: true, Detail: fmt.Sprintf("%d rules loaded", len(rules))}
	})

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

	// CORS (allow all origins in development - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting, informed by each tenant's abuse level and saldo status
	s.router.Use(s.limiter.Middleware(s.tenantInfo))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

// tenantInfo feeds the rate limiter's rule filters. Lookups are
// best-effort: an unknown tenant matches the default rule set.
func (s *Server) tenantInfo(ctx context.Context, tenantID string) (riskLevel, saldoStatus string) {
	if tenantID == "" {
		return "", ""
	}
	if score, err := s.abuseEngine.GetScore(ctx, tenantID); err == nil && score != nil {
		riskLevel = string(score.Level)
	}
	if status, err := s.walletSvc.Status(ctx, tenantID); err == nil {
		saldoStatus = string(status)
	}
	return riskLevel, saldoStatus
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

// adminAuth guards admin routes with the X-Admin-Secret header.
// In development with no ADMIN_SECRET configured, admin routes are open.
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			if s.cfg.IsProduction() {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":   "admin_disabled",
					"message": "ADMIN_SECRET is not configured",
				})
				return
			}
			c.Next()
			return
		}
		if c.GetHeader("X-Admin-Secret") != s.cfg.AdminSecret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid admin secret",
			})
			return
		}
		c.Next()
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

	// API info
	s.router.GET("/api", s.infoHandler)

	// Inbound provider webhooks (IP allow-list -> signature -> replay guard)
	s.router.POST("/api/webhooks/whatsapp", s.webhookHandler)
	s.router.POST("/api/webhooks/whatsapp/status", s.webhookHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :tenantId URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.TenantParamMiddleware())

	// Tenant registration (business-type vetting + trial subscription)
	v1.POST("/tenants", s.registerTenant)

	// Admission: the revenue guard pipeline
	v1.POST("/admission", s.admissionHandler)

	// Tenant state (read)
	v1.GET("/tenants/:tenantId", s.tenantStatusHandler)
	v1.GET("/tenants/:tenantId/abuse", s.abuseScoreHandler)
	v1.GET("/tenants/:tenantId/abuse/events", s.abuseEventsHandler)
	v1.GET("/tenants/:tenantId/balance", s.balanceHandler)
	v1.GET("/tenants/:tenantId/ledger", s.ledgerHandler)
	v1.GET("/tenants/:tenantId/subscription", s.subscriptionHandler)
	v1.GET("/tenants/:tenantId/guard-log", s.guardLogHandler)

	// Suspension self-service unlock (cooldown + score checks apply)
	v1.POST("/tenants/:tenantId/unlock", s.unlockHandler)

	// Admin routes
	admin := v1.Group("/admin")
	admin.Use(s.adminAuth())
	{
		// Manual approval workflow
		admin.GET("/approvals/pending", s.pendingApprovalsHandler)
		admin.GET("/tenants/:tenantId/approval", s.approvalStatusHandler)
		admin.GET("/tenants/:tenantId/approval/log", s.approvalLogHandler)
		admin.POST("/tenants/:tenantId/approve", s.approveHandler)
		admin.POST("/tenants/:tenantId/reject", s.rejectHandler)
		admin.POST("/tenants/:tenantId/suspend-approval", s.suspendApprovalHandler)

		// Abuse controls
		admin.POST("/tenants/:tenantId/abuse/events", s.recordAbuseEventHandler)
		admin.POST("/tenants/:tenantId/abuse/suspend", s.suspendTenantHandler)
		admin.POST("/tenants/:tenantId/abuse/reset", s.resetAbuseHandler)

		// Wallet operations
		admin.POST("/tenants/:tenantId/topup", s.topUpHandler)
		admin.POST("/tenants/:tenantId/refund", s.refundHandler)

		// Subscription management
		admin.POST("/tenants/:tenantId/subscribe", s.subscribeHandler)

		// Rate limit rule management and stats
		admin.GET("/ratelimit/rules", s.listRulesHandler)
		admin.PUT("/ratelimit/rules/:ruleId", s.putRuleHandler)
		admin.DELETE("/ratelimit/rules/:ruleId", s.deleteRuleHandler)
		admin.GET("/ratelimit/stats", s.rateLimitStatsHandler)
	}
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
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
		"name":        "Sendloka",
		"description": "Abuse, risk and revenue enforcement for WhatsApp messaging",
		"version":     "0.1.0",
		"currency":    "IDR",
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
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start decay/unlock sweeps
	if err := s.scheduler.Start(); err != nil {
		s.logger.Error("failed to start sweep scheduler", "error", err)
	}

	// Collect database pool stats
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Periodic wallet-vs-ledger reconciliation
	if s.reconTimer != nil {
		go s.reconTimer.Start(runCtx)
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

	// Cancel the context for all background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop sweep scheduler
	if s.scheduler != nil {
		s.scheduler.Stop()
		s.logger.Info("sweep scheduler stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.limiter != nil {
		s.limiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Stop watching the rules file
	if s.stopRuleWatch != nil {
		s.stopRuleWatch()
	}

	// Stop replay guard janitor
	if s.replayGuard != nil {
		s.replayGuard.Stop()
	}

	// Stop reconciliation timer
	if s.reconTimer != nil {
		s.reconTimer.Stop()
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
