// Package server wires the tenantdesk HTTP surface.
package server

import (
	"context"
	"database/sql"
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
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/mbd888/tenantdesk/internal/billing"
	"github.com/mbd888/tenantdesk/internal/config"
	"github.com/mbd888/tenantdesk/internal/health"
	"github.com/mbd888/tenantdesk/internal/logging"
	"github.com/mbd888/tenantdesk/internal/metrics"
	"github.com/mbd888/tenantdesk/internal/migrations"
	"github.com/mbd888/tenantdesk/internal/partition"
	"github.com/mbd888/tenantdesk/internal/plan"
	"github.com/mbd888/tenantdesk/internal/provision"
	"github.com/mbd888/tenantdesk/internal/ratelimit"
	"github.com/mbd888/tenantdesk/internal/retry"
	"github.com/mbd888/tenantdesk/internal/security"
	"github.com/mbd888/tenantdesk/internal/task"
	"github.com/mbd888/tenantdesk/internal/tenant"
	"github.com/mbd888/tenantdesk/internal/traces"
	"github.com/mbd888/tenantdesk/internal/user"
	"github.com/mbd888/tenantdesk/internal/validation"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

var connectPolicy = retry.Policy{Attempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	plans       plan.Store
	tenants     *tenant.Service
	users       *user.Service
	tasks       *task.Service
	provisioner *provision.Provisioner
	resolver    *tenant.Resolver
	gate        billing.Gate
	health      *health.Registry
	rateLimiter *ratelimit.Limiter
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run
	shutdownTrace func(context.Context) error
	drainDelay    time.Duration

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

// WithBillingGate overrides the gate chosen from config (for testing)
func WithBillingGate(g billing.Gate) Option {
	return func(s *Server) {
		s.gate = g
	}
}

// WithDrainDelay sets how long Shutdown waits for load balancers to stop
// sending traffic before closing listeners.
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		health:     health.NewRegistry(),
		drainDelay: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	shutdownTrace, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.shutdownTrace = shutdownTrace

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		tenantStore tenant.Store
		userStore   user.Store
		taskStore   task.Store
		schemas     migrations.SchemaCreator
		dependents  user.Dependents
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// The database may still be starting when the server boots.
		err = retry.Do(ctx, connectPolicy, func(ctx context.Context) error {
			return db.PingContext(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migrations.ApplyPublic(ctx, db, cfg.PublicSchemaName); err != nil {
			return nil, fmt.Errorf("failed to migrate public schema: %w", err)
		}

		s.db = db
		s.plans = plan.NewPostgresStore(db, cfg.PublicSchemaName)
		tenantStore = tenant.NewPostgresStore(db, cfg.PublicSchemaName)
		userStore = user.NewPostgresStore(db)
		taskStore = task.NewPostgresStore(db)
		schemas = migrations.Postgres{DB: db}
		s.health.Register("database", health.Database(db))
		s.logger.Info("using PostgreSQL storage",
			"url", maskDSN(cfg.DatabaseURL),
			"public_schema", cfg.PublicSchemaName,
		)
	} else {
		memTasks := task.NewMemoryStore()
		s.plans = plan.NewMemoryStore()
		tenantStore = tenant.NewMemoryStore()
		userStore = user.NewMemoryStore()
		taskStore = memTasks
		schemas = migrations.Memory{}
		// Postgres cascades through the tasks foreign key; memory needs help.
		dependents = memTasks
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	if s.gate == nil {
		if cfg.StripeSecretKey != "" {
			s.gate = billing.NewStripeGate(cfg.StripeSecretKey)
			s.logger.Info("stripe billing gate enabled")
		} else {
			s.gate = billing.AllowAll{}
		}
	}

	if cfg.SeedPlans {
		n, err := plan.SeedDefaults(ctx, s.plans)
		if err != nil {
			return nil, fmt.Errorf("failed to seed plans: %w", err)
		}
		if n > 0 {
			s.logger.Info("seeded subscription plans", "count", n)
		}
	}
	s.health.Register("plans", health.FreePlan(s.plans))

	s.tenants = tenant.NewService(tenantStore, s.plans, s.gate)
	s.users = user.NewService(userStore, dependents)
	s.tasks = task.NewService(taskStore, s.users)
	s.provisioner = provision.New(s.tenants, s.users, s.tasks, schemas, cfg.PublicSchemaName, cfg.BaseDomain)
	s.resolver = tenant.NewResolver(tenantStore, cfg.PublicSchemaName, cfg.BaseDomain)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.SetHTMLTemplate(landingTemplate)
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

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(security.TenantOrigins(s.cfg.BaseDomain)))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())

	// Rate limiting runs per partition, so it is attached to the partitioned
	// route group rather than the engine.
	rl := ratelimit.DefaultConfig()
	rl.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(rl)
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

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

		// The partition middleware runs later in the chain and enriches the
		// request context, so read the logger back from the final request.
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"host", c.Request.Host,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"host", c.Request.Host,
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
	// Probes and metrics answer on any host.
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	site := s.router.Group("",
		partition.Middleware(s.resolver),
		s.rateLimiter.Middleware(),
	)
	site.GET("/", s.landingHandler)

	admin := site.Group("/admin",
		partition.RequirePublic(),
		security.RequireAdmin(s.cfg.AdminSecret),
	)
	plan.NewHandler(s.plans).RegisterAdminRoutes(admin)
	tenant.NewHandler(s.tenants).RegisterAdminRoutes(admin)
	provision.NewHandler(s.provisioner).RegisterAdminRoutes(admin)
	user.NewHandler(s.users, s.resolver).RegisterAdminRoutes(admin)

	tasks := site.Group("/api/tasks", partition.RequireTenant())
	task.NewHandler(s.tasks).RegisterRoutes(tasks)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, checks := s.health.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
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

// landingHandler serves the plan catalogue on the base domain and a short
// workspace summary on tenant hosts.
func (s *Server) landingHandler(c *gin.Context) {
	ctx := c.Request.Context()
	p, _ := partition.From(ctx)

	if !p.Public {
		t, err := s.tenants.Get(ctx, p.TenantID)
		if err != nil {
			logging.L(ctx).Error("failed to load tenant", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "failed to load workspace",
			})
			return
		}
		resp := gin.H{
			"workspace": t.DisplayName(),
			"slug":      t.Slug,
			"tasks_url": "/api/tasks/",
		}
		if t.Plan != nil {
			resp["plan"] = t.Plan.Code
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	active := true
	plans, err := s.plans.List(ctx, plan.ListFilter{IsActive: &active})
	if err != nil {
		logging.L(ctx).Error("failed to list plans", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "failed to list plans",
		})
		return
	}
	c.HTML(http.StatusOK, landingName, landingData{
		BaseDomain: s.cfg.BaseDomain,
		Plans:      plans,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
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

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"base_domain", s.cfg.BaseDomain,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

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

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.shutdownTrace != nil {
		if err := s.shutdownTrace(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

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

// Provisioner returns the tenant provisioner used by the admin routes.
func (s *Server) Provisioner() *provision.Provisioner {
	return s.provisioner
}
