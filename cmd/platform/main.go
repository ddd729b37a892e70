package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bizclaw/bizclaw/internal/domain/datastore"
	"github.com/bizclaw/bizclaw/internal/domain/tenant"
	"github.com/bizclaw/bizclaw/internal/infrastructure/auth"
	"github.com/bizclaw/bizclaw/internal/infrastructure/config"
	"github.com/bizclaw/bizclaw/internal/infrastructure/eventbus"
	"github.com/bizclaw/bizclaw/internal/infrastructure/logger"
	"github.com/bizclaw/bizclaw/internal/infrastructure/persistence"
	"github.com/bizclaw/bizclaw/internal/interfaces/http/handlers"
	"github.com/bizclaw/bizclaw/internal/interfaces/websocket"
)

// cmd/platform is the multi-tenant control plane: one process per
// deployment (not per tenant) that owns the networked DataStore, the
// Tenant Supervisor spawning/watching every tenant's cmd/gateway process,
// and the Admin API those operators drive both from. A per-tenant
// cmd/gateway process never talks to Postgres or spawns other tenants —
// that authority lives here alone.
const (
	appName    = "bizclaw-platform"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("%s v%s\n", appName, appVersion)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      "info",
		Format:     "json",
		OutputPath: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting BizClaw platform control plane",
		zap.String("name", appName),
		zap.String("version", appVersion),
	)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dsn := cfg.Datastore.DSN
	if url := os.Getenv("DATABASE_URL"); url != "" {
		dsn = url
	}
	store, err := persistence.NewNetworkedStore(persistence.NetworkedStoreConfig{
		DSN:             dsn,
		MaxOpenConns:    cfg.Datastore.MaxOpenConns,
		MaxIdleConns:    cfg.Datastore.MaxIdleConns,
		ConnMaxLifetime: cfg.Datastore.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("Failed to open networked data store", zap.Error(err))
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal("Failed to migrate data store", zap.Error(err))
	}

	supCfg := tenant.DefaultConfig()
	if cfg.Supervisor.TenantBinary != "" {
		supCfg.TenantBinary = cfg.Supervisor.TenantBinary
	}
	if cfg.Supervisor.DataDir != "" {
		supCfg.DataDir = cfg.Supervisor.DataDir
	}
	if cfg.Supervisor.BasePort != 0 {
		supCfg.BasePort = cfg.Supervisor.BasePort
	}
	if cfg.Supervisor.HealthInterval != 0 {
		supCfg.HealthInterval = cfg.Supervisor.HealthInterval
	}
	if cfg.Supervisor.HealthTimeout != 0 {
		supCfg.HealthTimeout = cfg.Supervisor.HealthTimeout
	}
	// Audit events are written to the store first, then mirrored onto a
	// write-ahead-logged bus so dashboard clients can tail them live and a
	// restarted control plane can replay what its subscribers missed.
	bus, err := eventbus.NewPersistentBus(eventbus.PersistentBusConfig{
		WALDir:     supCfg.DataDir + "/audit-feed",
		BufferSize: 256,
	}, log)
	if err != nil {
		log.Fatal("Failed to open audit feed bus", zap.Error(err))
	}
	auditRepo := persistence.NewPublishingAuditRepository(store.Audit(), bus)

	wsHub := websocket.NewHub(log)
	go wsHub.Run(ctx)
	bus.Subscribe(eventbus.EventTypeAuditEvent, func(_ context.Context, ev eventbus.Event) {
		meta, _ := ev.Payload().(map[string]interface{})
		action := ""
		if meta != nil {
			action, _ = meta["action"].(string)
		}
		wsHub.BroadcastEvent(websocket.MessageTypeNotification, action, meta)
	})

	supervisor := tenant.NewSupervisor(supCfg, store.Tenants(), auditRepo, log)

	if cfg.Supervisor.Enabled {
		if err := supervisor.RestartAll(ctx); err != nil {
			log.Error("Failed to restart previously-running tenants", zap.Error(err))
		}
		go runHealthSweepLoop(ctx, supervisor, store, supCfg.HealthInterval, log)
	}

	secret, err := auth.LoadOrGenerateSecret(supCfg.DataDir, cfg.Admin.JWTSecret)
	if err != nil {
		log.Fatal("Failed to load or generate JWT secret", zap.Error(err))
	}
	jwtTTL := cfg.Admin.JWTTTL
	if jwtTTL <= 0 {
		jwtTTL = 24 * time.Hour
	}
	tokens := auth.NewTokenManager(secret, jwtTTL)

	adminHandler := handlers.NewAdminHandler(
		store.Tenants(), store.Users(), auditRepo, store.LlmTraces(),
		supervisor, tokens, log,
	)

	router := newAdminRouter(adminRouterDeps{
		handler:         adminHandler,
		tokens:          tokens,
		rateLimitPerMin: cfg.Admin.RateLimitPerMin,
		wsHandler:       websocket.NewHandler(wsHub, log),
	}, log)

	addr := fmt.Sprintf("%s:%d", cfg.Admin.Host, cfg.Admin.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Info("Admin API listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Admin API server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down Admin API server", zap.Error(err))
	}
	bus.Close()
	if err := store.Close(); err != nil {
		log.Error("Error closing data store", zap.Error(err))
	}

	log.Info("Platform control plane stopped successfully")
}

// adminRouterDeps bundles the admin router's collaborators.
type adminRouterDeps struct {
	handler         *handlers.AdminHandler
	tokens          *auth.TokenManager
	rateLimitPerMin int
	wsHandler       *websocket.Handler
}

// newAdminRouter wires every Admin API route behind the auth/rate-limit
// middleware appropriate to it: login/register are IP rate-limited but
// otherwise open, everything else requires a valid bearer token naming an
// admin-role user.
func newAdminRouter(deps adminRouterDeps, log *zap.Logger) *gin.Engine {
	h := deps.handler
	tokens := deps.tokens
	rateLimitPerMin := deps.rateLimitPerMin

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 30
	}
	limiter := auth.NewIPRateLimiter(rateLimitPerMin)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	admin := router.Group("/api/admin")
	{
		admin.POST("/login", limiter.Middleware(), h.Login)
		admin.POST("/register", limiter.Middleware(), h.Register)

		authed := admin.Group("")
		authed.Use(auth.RequireBearer(tokens), auth.RequireAdmin())
		{
			authed.GET("/tenants", h.ListTenants)
			authed.POST("/tenants", h.CreateTenant)
			authed.DELETE("/tenants/:id", h.DeleteTenant)
			authed.POST("/tenants/:id/start", h.StartTenant)
			authed.POST("/tenants/:id/stop", h.StopTenant)
			authed.POST("/tenants/:id/reset-pairing", h.ResetPairing)
			authed.GET("/tenants/:id/config", h.GetConfig)
			authed.PUT("/tenants/:id/config", h.SetConfig)
			authed.POST("/tenants/:id/channels/:channel/toggle", h.ToggleChannel)
			authed.GET("/audit", h.Audit)
			if deps.wsHandler != nil {
				authed.GET("/audit/feed", func(c *gin.Context) {
					deps.wsHandler.ServeWS(c.Writer, c.Request)
				})
			}
		}
	}

	v1 := router.Group("/api/v1")
	v1.Use(auth.RequireBearer(tokens), auth.RequireAdmin())
	{
		v1.GET("/traces", h.Traces)
		v1.GET("/traces/cost", h.TracesCost)
		v1.GET("/activity", h.Activity)
	}

	log.Info("Admin API routes registered")
	return router
}

// runHealthSweepLoop periodically re-fetches every tenant from the store
// and runs one Supervisor health sweep over them, until ctx is cancelled.
func runHealthSweepLoop(ctx context.Context, supervisor *tenant.Supervisor, store datastore.Store, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tenants, err := store.Tenants().FindAll(ctx)
			if err != nil {
				log.Warn("health sweep: failed to list tenants", zap.Error(err))
				continue
			}
			supervisor.SweepHealth(ctx, tenants)
		}
	}
}

func printUsage() {
	fmt.Printf(`%s v%s

The platform control plane: owns the networked data store, supervises
every tenant's gateway process, and serves the Admin API.

Usage:
  platform           Start the control plane (default)
  platform version    Show version
  platform help       Show this help

Environment:
  BIZCLAW_*           Configuration overrides (see config.yaml)
  JWT_SECRET          Overrides the persisted Admin API signing secret
`, appName, appVersion)
}
