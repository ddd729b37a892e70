package application

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bizclaw/bizclaw/internal/application/usecase"
	"github.com/bizclaw/bizclaw/internal/domain/datastore"
	"github.com/bizclaw/bizclaw/internal/domain/entity"
	"github.com/bizclaw/bizclaw/internal/domain/orchestrator"
	"github.com/bizclaw/bizclaw/internal/domain/repository"
	"github.com/bizclaw/bizclaw/internal/domain/safety"
	"github.com/bizclaw/bizclaw/internal/domain/scheduler"
	"github.com/bizclaw/bizclaw/internal/domain/service"
	domaintool "github.com/bizclaw/bizclaw/internal/domain/tool"
	"github.com/bizclaw/bizclaw/internal/domain/valueobject"
	"github.com/bizclaw/bizclaw/internal/infrastructure/config"
	"github.com/bizclaw/bizclaw/internal/infrastructure/eventbus"
	"github.com/bizclaw/bizclaw/internal/infrastructure/llm"
	_ "github.com/bizclaw/bizclaw/internal/infrastructure/llm/anthropic" // register anthropic provider factory
	_ "github.com/bizclaw/bizclaw/internal/infrastructure/llm/gemini"    // register gemini provider factory
	_ "github.com/bizclaw/bizclaw/internal/infrastructure/llm/openai"    // register openai provider factory
	"github.com/bizclaw/bizclaw/internal/infrastructure/monitoring"
	"github.com/bizclaw/bizclaw/internal/infrastructure/persistence"
	"github.com/bizclaw/bizclaw/internal/infrastructure/prompt"
	"github.com/bizclaw/bizclaw/internal/infrastructure/sandbox"
	toolpkg "github.com/bizclaw/bizclaw/internal/infrastructure/tool"
	httpServer "github.com/bizclaw/bizclaw/internal/interfaces/http"
	"github.com/bizclaw/bizclaw/internal/interfaces/telegram"
	"github.com/bizclaw/bizclaw/internal/interfaces/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App 应用程序
type App struct {
	// 配置
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB

	// 仓储层
	agentRepo   repository.AgentRepository
	messageRepo repository.MessageRepository

	// 领域服务
	agentSelector service.AgentSelector
	messageRouter service.MessageRouter

	// 应用服务
	processMessageUseCase *usecase.ProcessMessageUseCase

	// 基础设施
	toolRegistry    domaintool.Registry
	toolPolicy      *domaintool.Policy
	llmRouter       *llm.Router
	mcpManager      *toolpkg.MCPManager
	agentLoop       *service.AgentLoop
	securityHook    *service.SecurityHook
	heartbeat       *service.HeartbeatService
	monitor         *monitoring.Monitor
	eventBus        eventbus.Bus
	wsHub           *websocket.Hub
	telegramAdapter *telegram.Adapter
	httpServer      *httpServer.Server
	wsCancel        context.CancelFunc

	// 租户级编排与调度 (orchestrator.E / scheduler.F — 运行在每个租户自己的进程内)
	store           datastore.Store
	orchestrator    *orchestrator.Orchestrator
	schedulerStore  *scheduler.TaskStore
	schedulerEngine *scheduler.Engine

	// 安全包络 (safety.B) — 命令白名单/路径守卫/SSRF守卫/注入扫描/循环检测
	safetyEnvelope *safety.Envelope

	// Prompt 引擎
	promptEngine *prompt.PromptEngine
}

// NewApp 创建应用程序（依赖注入容器）
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Bootstrap: ensure ~/.bizclaw/ exists with default files on first run
	if err := config.Bootstrap(logger); err != nil {
		logger.Warn("Bootstrap failed (non-fatal)", zap.Error(err))
	}

	app := &App{
		config: cfg,
		logger: logger,
	}

	// 初始化各层组件
	if err := app.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := app.initDataStore(); err != nil {
		return nil, fmt.Errorf("failed to init data store: %w", err)
	}

	if err := app.initDomainServices(); err != nil {
		return nil, fmt.Errorf("failed to init domain services: %w", err)
	}

	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	if err := app.initApplicationServices(); err != nil {
		return nil, fmt.Errorf("failed to init application services: %w", err)
	}

	if err := app.initInterfaces(); err != nil {
		return nil, fmt.Errorf("failed to init interfaces: %w", err)
	}

	// 初始化默认数据
	if err := app.seedData(); err != nil {
		return nil, fmt.Errorf("failed to seed data: %w", err)
	}

	return app, nil
}

// NewAppCLI creates a lightweight app for CLI mode.
// Only initializes: DB (silent), Tools, LLM Router, AgentLoop, PromptEngine.
// Skips: HTTP server, Telegram, seed data.
func NewAppCLI(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := config.Bootstrap(logger); err != nil {
		logger.Warn("Bootstrap failed (non-fatal)", zap.Error(err))
	}

	app := &App{
		config: cfg,
		logger: logger,
	}

	// DB with silent logging (no SQL spam)
	if err := app.initRepositoriesSilent(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := app.initDomainServices(); err != nil {
		return nil, fmt.Errorf("failed to init domain services: %w", err)
	}

	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	if err := app.initApplicationServices(); err != nil {
		return nil, fmt.Errorf("failed to init application services: %w", err)
	}

	// No initInterfaces (HTTP/TG) — CLI doesn't need servers
	// No seedData — avoid noisy DB writes on every CLI launch
	return app, nil
}

// initRepositories 初始化仓储层
func (app *App) initRepositories() error {
	app.logger.Info("Initializing repositories")

	// 连接数据库
	db, err := persistence.NewDBConnection(&app.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	// 初始化 GORM 仓储
	app.agentRepo = persistence.NewGormAgentRepository(db)
	app.messageRepo = persistence.NewGormMessageRepository(db)

	return nil
}

// initRepositoriesSilent initializes repos with silent DB logging (for CLI mode)
func (app *App) initRepositoriesSilent() error {
	db, err := persistence.NewDBConnectionSilent(&app.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db
	app.agentRepo = persistence.NewGormAgentRepository(db)
	app.messageRepo = persistence.NewGormMessageRepository(db)
	return nil
}

// initDataStore builds the DataStore backing the orchestrator, scheduler
// and (on the control-plane binary) the tenant supervisor. The embedded
// SQLite backend is the default; the networked backend is used when
// Datastore.Backend is "networked" or DATABASE_URL is set.
func (app *App) initDataStore() error {
	ds := app.config.Datastore
	if url := os.Getenv("DATABASE_URL"); url != "" {
		ds.Backend = "networked"
		ds.DSN = url
	}
	if ds.DSN == "" {
		home, _ := os.UserHomeDir()
		ds.DSN = filepath.Join(home, ".bizclaw", "control.db")
	}

	if ds.Backend == "networked" {
		store, err := persistence.NewNetworkedStore(persistence.NetworkedStoreConfig{
			DSN:             ds.DSN,
			MaxOpenConns:    ds.MaxOpenConns,
			MaxIdleConns:    ds.MaxIdleConns,
			ConnMaxLifetime: ds.ConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("failed to open networked data store: %w", err)
		}
		app.store = store
	} else {
		store, err := persistence.NewEmbeddedStore(ds.DSN)
		if err != nil {
			return fmt.Errorf("failed to open embedded data store: %w", err)
		}
		app.store = store
	}

	if err := app.store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("failed to migrate data store: %w", err)
	}
	return nil
}

// initDomainServices 初始化领域服务
func (app *App) initDomainServices() error {
	app.logger.Info("Initializing domain services")

	// 代理选择器
	app.agentSelector = service.NewDefaultAgentSelector(app.agentRepo)

	// 消息路由器
	app.messageRouter = service.NewDefaultMessageRouter(app.agentSelector)

	return nil
}

// initInfrastructure 初始化基础设施
func (app *App) initInfrastructure() error {
	app.logger.Info("Initializing infrastructure")

	// Safety Envelope (safety.B) — gates every live tool call through the
	// allowlist/path guard/SSRF guard/injection scanner/loop detector,
	// built once here and shared by every toolBridge constructed below.
	safetyWorkspaceRoot := app.config.Safety.WorkspaceRoot
	if safetyWorkspaceRoot == "" {
		safetyWorkspaceRoot = app.config.Agent.Workspace
	}
	app.safetyEnvelope = safety.NewEnvelope(safety.Config{
		AllowedCommands:  app.config.Safety.AllowedCommands,
		WorkspaceOnly:    app.config.Safety.WorkspaceOnly,
		WorkspaceRoot:    safetyWorkspaceRoot,
		ExtraDeniedHosts: app.config.Safety.ExtraDeniedHosts,
		LoopCapacity:     app.config.Safety.LoopCapacity,
		LoopMaxRepeats:   app.config.Safety.LoopMaxRepeats,
	}, app.logger)

	// Monitor + Event Bus — process-wide metrics and in-process pub/sub.
	// Both are passive until something subscribes or scrapes /metrics.
	app.monitor = monitoring.NewMonitor(app.logger)
	app.eventBus = eventbus.NewInMemoryBus(app.logger, 256)

	// Tool Registry + Policy
	app.toolRegistry = domaintool.NewInMemoryRegistry()
	app.toolPolicy = &domaintool.Policy{Profile: "full"}

	sbxCfg := sandbox.DefaultConfig()
	sbxCfg.PythonEnv = app.config.PythonEnv
	if app.config.Agent.Runtime.ToolTimeout > 0 {
		sbxCfg.Timeout = app.config.Agent.Runtime.ToolTimeout
	}
	sbx, sbxErr := sandbox.NewProcessSandbox(sbxCfg, app.logger)
	if sbxErr != nil {
		app.logger.Warn("Sandbox init failed, tools will run unsandboxed", zap.Error(sbxErr))
	}

	// LLM Router (modular provider factory with failover)
	app.llmRouter = llm.NewRouter(app.logger)
	// The router tries providers in the order they are added, so add them
	// by ascending Priority (lower = preferred).
	providerCfgs := append([]config.LLMProviderConfig(nil), app.config.Agent.Providers...)
	sort.SliceStable(providerCfgs, func(i, j int) bool { return providerCfgs[i].Priority < providerCfgs[j].Priority })
	for _, p := range providerCfgs {
		provider, err := llm.CreateProvider(llm.ProviderConfig{
			Name:     p.Name,
			Type:     p.Type,
			BaseURL:  p.BaseURL,
			APIKey:   p.APIKey,
			Models:   p.Models,
			Priority: p.Priority,
		}, app.logger)
		if err != nil {
			app.logger.Error("Failed to create LLM provider",
				zap.String("name", p.Name),
				zap.String("type", p.Type),
				zap.Error(err),
			)
			continue
		}
		app.llmRouter.AddProvider(provider)
	}
	app.logger.Info("LLM Router initialized",
		zap.Int("providers", len(app.config.Agent.Providers)),
	)

	// MCP Manager (hot-pluggable, reads ~/.bizclaw/mcp.json)
	homeDir, _ := os.UserHomeDir()
	mcpConfigPath := filepath.Join(homeDir, ".bizclaw", "mcp.json")
	app.mcpManager = toolpkg.NewMCPManager(mcpConfigPath, app.toolRegistry, app.logger)

	// ── Unified Tool Registration (single entry point) ──
	toolpkg.RegisterAllTools(toolpkg.ToolLayerDeps{
		Registry:   app.toolRegistry,
		Sandbox:    sbx,
		MCPManager: app.mcpManager,
		Logger:     app.logger,
	})

	// Prompt Engine (hot-pluggable system prompt assembly — System + Workspace layers)
	app.promptEngine = prompt.NewPromptEngine(app.config.Agent.Workspace, app.logger)
	if err := app.promptEngine.Discover(); err != nil {
		app.logger.Warn("Prompt engine discovery failed, will use empty system prompt",
			zap.Error(err),
		)
	}

	return nil
}

// initApplicationServices 初始化应用服务
func (app *App) initApplicationServices() error {
	app.logger.Info("Initializing application services")

	// ProcessMessageUseCase (legacy HTTP/REPL path — uses llmRouter directly)
	app.processMessageUseCase = usecase.NewProcessMessageUseCase(
		app.messageRepo,
		app.messageRouter,
		app.llmRouter,
		app.logger,
	)

	// Agent Loop (ReAct Engine) — uses LLM Router + Tool Bridge
	loopTools := &toolBridge{registry: app.toolRegistry, policy: app.toolPolicy, envelope: app.safetyEnvelope}

	loopCfg := service.DefaultAgentLoopConfig()
	loopCfg.Model = app.config.Agent.DefaultModel

	// Bridge per-model policy overrides from config.yaml
	if len(app.config.Agent.ModelPolicies) > 0 {
		loopCfg.ModelPolicies = make(map[string]*service.ModelPolicyOverride)
		for key, cfgPolicy := range app.config.Agent.ModelPolicies {
			override := &service.ModelPolicyOverride{
				RepairToolPairing:   cfgPolicy.RepairToolPairing,
				EnforceTurnOrdering: cfgPolicy.EnforceTurnOrdering,
				ReasoningFormat:     cfgPolicy.ReasoningFormat,
				ProgressInterval:    cfgPolicy.ProgressInterval,
				ProgressEscalation:  cfgPolicy.ProgressEscalation,
				PromptStyle:         cfgPolicy.PromptStyle,
				SystemRoleSupport:   cfgPolicy.SystemRoleSupport,
				ThinkingTagHint:     cfgPolicy.ThinkingTagHint,
			}
			loopCfg.ModelPolicies[key] = override
		}
	}
	if app.config.Agent.Guardrails.LoopDetectThreshold > 0 {
		loopCfg.LoopDetectThreshold = app.config.Agent.Guardrails.LoopDetectThreshold
	}
	if app.config.Agent.Guardrails.LoopDetectWindow > 0 {
		loopCfg.LoopWindowSize = app.config.Agent.Guardrails.LoopDetectWindow
	}
	if app.config.Agent.Guardrails.ContextMaxTokens > 0 {
		loopCfg.ContextMaxTokens = app.config.Agent.Guardrails.ContextMaxTokens
	}
	if app.config.Agent.Guardrails.ContextWarnRatio > 0 {
		loopCfg.ContextWarnRatio = app.config.Agent.Guardrails.ContextWarnRatio
	}
	if app.config.Agent.Guardrails.ContextHardRatio > 0 {
		loopCfg.ContextHardRatio = app.config.Agent.Guardrails.ContextHardRatio
	}
	if app.config.Agent.Guardrails.LoopNameThreshold > 0 {
		loopCfg.LoopNameThreshold = app.config.Agent.Guardrails.LoopNameThreshold
	}

	// Retry config from config.yaml
	if app.config.Agent.Runtime.MaxRetries > 0 {
		loopCfg.MaxRetries = app.config.Agent.Runtime.MaxRetries
	}
	if app.config.Agent.Runtime.RetryBaseWait > 0 {
		loopCfg.RetryBaseWait = app.config.Agent.Runtime.RetryBaseWait
	}

	// Compaction config from config.yaml
	if app.config.Agent.Compaction.MessageThreshold > 0 {
		loopCfg.CompactThreshold = app.config.Agent.Compaction.MessageThreshold
	}
	if app.config.Agent.Compaction.KeepRecent > 0 {
		loopCfg.CompactKeepLast = app.config.Agent.Compaction.KeepRecent
	}

	app.agentLoop = service.NewAgentLoop(
		app.llmRouter,
		loopTools,
		loopCfg,
		app.logger,
	)
	app.logger.Info("Agent Loop initialized",
		zap.String("model", loopCfg.Model),
	)

	// Create SecurityHook and attach to agent loop, chained with the
	// metrics hook so every LLM/tool call lands in /metrics counters.
	app.securityHook = service.NewSecurityHook(
		app.config.Agent.Security,
		nil, // approvalFunc is set later in initInterfaces after TG adapter creation
		app.logger,
	)
	app.agentLoop.SetHooks(service.NewHookChain(
		app.securityHook,
		monitoring.NewMetricsHook(app.monitor),
	))

	// Middleware pipeline (data-transformation hooks around LLM calls)
	mwPipeline := service.NewMiddlewarePipeline(app.logger)
	mwPipeline.Use(
		service.NewDanglingToolCallMiddleware(app.logger),
	)
	app.agentLoop.SetMiddleware(mwPipeline)
	app.logger.Info("Middleware pipeline configured",
		zap.Int("middlewares", mwPipeline.Len()),
	)

	if app.store != nil {
		app.agentLoop.SetTraceRecorder(service.NewTraceRecorder(app.store.LlmTraces(), app.logger))
	}

	// Orchestrator (multi-agent pool, sync/async delegation, handoffs) and
	// the persistent task Scheduler both need a DataStore behind them, so
	// they only stand up on the binary that called initDataStore (the
	// gateway process via NewApp) — NewAppCLI leaves app.store nil and the
	// CLI keeps running single-agent with no orchestrator wiring at all.
	if app.store != nil {
		runner := &orchestratorTurnRunner{
			agentLoop:    app.agentLoop,
			toolExec:     loopTools,
			promptEngine: app.promptEngine,
			workspaceDir: app.config.Agent.Workspace,
			modelName:    app.config.Agent.DefaultModel,
			logger:       app.logger,
		}
		app.orchestrator = orchestrator.NewOrchestrator(app.store, runner, app.logger)
		app.logger.Info("Orchestrator initialized")

		if app.config.Scheduler.Enabled {
			storePath := app.config.Scheduler.StorePath
			if storePath == "" {
				home, _ := os.UserHomeDir()
				storePath = filepath.Join(home, ".bizclaw", "scheduler.db")
			}
			taskStore, err := scheduler.NewTaskStore(storePath)
			if err != nil {
				return fmt.Errorf("failed to open scheduler task store: %w", err)
			}
			app.schedulerStore = taskStore
			tickInterval := app.config.Scheduler.TickInterval
			if tickInterval <= 0 {
				tickInterval = time.Minute
			}
			app.schedulerEngine = scheduler.NewEngine(
				taskStore,
				&busNotifier{log: app.logger, bus: app.eventBus},
				app.orchestrator,
				tickInterval,
				app.logger,
			)
			app.logger.Info("Scheduler engine initialized", zap.Duration("tick_interval", tickInterval))
		}
	} else {
		app.logger.Info("No data store configured, orchestrator and scheduler disabled")
	}

	return nil
}

// chatIDKey is a context key for passing chatID to SecurityHook.
type chatIDKey struct{}

// WithChatID stores chatID in the context.
func WithChatID(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, chatIDKey{}, chatID)
}

// ChatIDFromContext extracts chatID from the context.
func ChatIDFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(chatIDKey{}).(int64); ok {
		return v
	}
	return 0
}

// initInterfaces 初始化接口层
func (app *App) initInterfaces() error {
	app.logger.Info("Initializing interfaces")

	// WebSocket hub — 实时事件推送 (调度器通知广播给已连接的仪表盘客户端)
	app.wsHub = websocket.NewHub(app.logger)
	app.eventBus.Subscribe(eventbus.EventTypeSchedulerNotification, func(ctx context.Context, ev eventbus.Event) {
		meta, _ := ev.Payload().(map[string]interface{})
		body := ""
		if meta != nil {
			body, _ = meta["body"].(string)
		}
		app.wsHub.BroadcastEvent(websocket.MessageTypeNotification, body, meta)
	})

	// HTTP服务器
	loopToolsBridge := &toolBridge{registry: app.toolRegistry, policy: app.toolPolicy, envelope: app.safetyEnvelope}
	app.httpServer = httpServer.NewServer(
		httpServer.Config{
			Host: app.config.Gateway.Host,
			Port: app.config.Gateway.Port,
			Mode: app.config.Gateway.Mode,
		},
		httpServer.Deps{
			UseCase:      app.processMessageUseCase,
			AgentLoop:    app.agentLoop,
			ToolExec:     loopToolsBridge,
			PromptEngine: app.promptEngine,
			Monitor:      app.monitor,
			Envelope:     app.safetyEnvelope,
			WSHandler:    websocket.NewHandler(app.wsHub, app.logger),
			Logger:       app.logger,
		},
	)

	// Telegram适配器
	if app.config.Telegram.BotToken != "" {
		var err error
		app.telegramAdapter, err = telegram.NewAdapter(
			&telegram.Config{
				BotToken:       app.config.Telegram.BotToken,
				AllowedUserIDs: app.config.Telegram.AllowIDs,
				DMPolicy:       app.config.Telegram.DMPolicy,
				GroupPolicy:    app.config.Telegram.GroupPolicy,
				GroupAllowFrom: app.config.Telegram.GroupAllowFrom,
			},
			app.logger,
		)
		if err != nil {
			return fmt.Errorf("failed to create telegram adapter: %w", err)
		}

		// 创建会话管理器
		sessionManager := telegram.NewDefaultSessionManager(app.config.Agent.DefaultModel)

		// 从配置加载模型列表
		if len(app.config.Agent.Models) > 0 {
			models := make([]telegram.ModelInfo, len(app.config.Agent.Models))
			for i, m := range app.config.Agent.Models {
				models[i] = telegram.ModelInfo{
					ID:          m.ID,
					Alias:       m.Alias,
					Provider:    m.Provider,
					Description: m.Description,
				}
			}
			sessionManager.SetAvailableModels(models)
		}

		// 创建命令注册表
		cmdRegistry := telegram.NewCommandRegistry()

		// 设置会话管理器
		cmdRegistry.SetSessionManager(sessionManager)

		// 注册内置命令
		app.telegramAdapter.RegisterBuiltinCommands(cmdRegistry, app.securityHook)

		// 设置命令注册表
		app.telegramAdapter.SetCommandRegistry(cmdRegistry)

		// 设置消息处理器 (agent loop → DeliverReply 出站)
		msgHandler := &telegramMessageHandler{
			agentLoop:      app.agentLoop,
			toolExec:       loopToolsBridge,
			promptEngine:   app.promptEngine,
			tgAdapter:      app.telegramAdapter,
			envelope:       app.safetyEnvelope,
			logger:         app.logger,
			sessionManager: sessionManager,
			workspaceDir:   app.config.Agent.Workspace,
		}
		app.telegramAdapter.SetMessageHandler(msgHandler)

		// Wire SecurityHook approval function now that TG adapter exists
		if app.securityHook != nil {
			adapter := app.telegramAdapter
			app.securityHook.SetApprovalFunc(func(ctx context.Context, toolName string, args map[string]interface{}) (bool, error) {
				chatID := ChatIDFromContext(ctx)
				if chatID == 0 {
					return true, nil // No chatID in context — auto-approve (e.g. HTTP API)
				}
				argsJSON, _ := json.Marshal(args)
				return adapter.RequestApproval(ctx, chatID, toolName, string(argsJSON))
			})
		}

		// 允许 /new /clear /reset 命令清除对话历史
		cmdRegistry.SetHistoryClearer(msgHandler)

		// 允许 /stop 命令和对话打断
		cmdRegistry.SetRunController(msgHandler)
		app.telegramAdapter.SetRunController(msgHandler)

		// 允许 /agent /delegate /handoff 命令驱动真实的编排器
		if app.orchestrator != nil {
			cmdRegistry.SetOrchestrator(newOrchestratorController(app.orchestrator))
		}

		// 允许 /tasks 命令驱动真实的持久化调度器
		if app.schedulerStore != nil {
			cmdRegistry.SetScheduler(newSchedulerController(app.schedulerStore, app.logger))
		}

		// 心跳服务: 定期读取 HEARTBEAT.md 并把指令作为普通消息跑一轮 agent loop
		if app.config.Heartbeat.Enabled {
			hbInterval := time.Duration(app.config.Heartbeat.Interval) * time.Minute
			app.heartbeat = service.NewHeartbeatService(service.HeartbeatConfig{
				FilePath: app.config.Heartbeat.FilePath,
				Interval: hbInterval,
				ChatID:   app.config.Heartbeat.ChatID,
				Enabled:  true,
			}, app.logger)
			app.heartbeat.SetExecutor(func(hbCtx context.Context, chatID int64, command string) (string, error) {
				_, err := msgHandler.HandleMessage(hbCtx, &telegram.IncomingMessage{
					ChatID:    chatID,
					Text:      command,
					Timestamp: time.Now(),
				})
				return "", err
			})
		}

		app.logger.Info("Telegram adapter initialized with command registry and session manager")
	} else {
		app.logger.Warn("Telegram bot token not configured, skipping telegram adapter")
	}

	return nil
}

// seedData 初始化默认数据
func (app *App) seedData() error {
	app.logger.Info("Seeding default data")

	ctx := context.Background()

	// 创建默认代理
	defaultAgent, err := entity.NewAgent(
		"default",
		"默认助手",
		valueobject.DefaultModelConfig(),
	)
	if err != nil {
		return fmt.Errorf("failed to create default agent: %w", err)
	}

	// 保存默认代理
	if err := app.agentRepo.Save(ctx, defaultAgent); err != nil {
		return fmt.Errorf("failed to save default agent: %w", err)
	}

	app.logger.Info("Default agent created",
		zap.String("id", defaultAgent.ID()),
		zap.String("name", defaultAgent.Name()),
	)

	return nil
}

// Start 启动应用程序
func (app *App) Start(ctx context.Context) error {
	app.logger.Info("Starting application")

	// 启动 WebSocket hub 与指标采集
	if app.wsHub != nil {
		hubCtx, hubCancel := context.WithCancel(ctx)
		app.wsCancel = hubCancel
		go app.wsHub.Run(hubCtx)
		go app.monitor.StartCollector(hubCtx, 30*time.Second)
	}

	// 启动HTTP服务器
	if err := app.httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 启动Telegram适配器
	if app.telegramAdapter != nil {
		if err := app.telegramAdapter.Start(ctx); err != nil {
			return fmt.Errorf("failed to start telegram adapter: %w", err)
		}
	}

	// 启动任务调度引擎 (定时任务 tick loop)
	if app.schedulerEngine != nil {
		app.schedulerEngine.Start(ctx)
		app.logger.Info("Scheduler engine started")
	}

	// 启动心跳服务
	if app.heartbeat != nil {
		if err := app.heartbeat.Start(); err != nil {
			app.logger.Warn("Heartbeat service failed to start", zap.Error(err))
		}
	}

	app.logger.Info("Application started successfully")
	return nil
}

// Stop 停止应用程序
func (app *App) Stop(ctx context.Context) error {
	app.logger.Info("Stopping application")

	// 停止心跳服务
	if app.heartbeat != nil {
		app.heartbeat.Stop()
	}

	// 停止任务调度引擎
	if app.schedulerEngine != nil {
		app.schedulerEngine.Stop()
	}

	// 停止Telegram适配器
	if app.telegramAdapter != nil {
		app.telegramAdapter.Stop()
	}

	// 停止HTTP服务器
	if err := app.httpServer.Stop(ctx); err != nil {
		app.logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	// 停止 WebSocket hub 与事件总线
	if app.wsCancel != nil {
		app.wsCancel()
	}
	if app.eventBus != nil {
		app.eventBus.Close()
	}

	// 关闭数据库连接
	if app.db != nil {
		sqlDB, err := app.db.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				app.logger.Error("Failed to close database connection", zap.Error(err))
			}
		}
	}

	// 关闭数据存储
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.Error("Failed to close data store", zap.Error(err))
		}
	}

	app.logger.Info("Application stopped successfully")
	return nil
}

// ProcessMessageUseCase returns the message processing usecase (used by REPL)
func (app *App) ProcessMessageUseCase() *usecase.ProcessMessageUseCase {
	return app.processMessageUseCase
}

// Logger returns the application logger
func (app *App) Logger() *zap.Logger {
	return app.logger
}

// AppConfig returns the application config
func (app *App) AppConfig() *config.Config {
	return app.config
}

// AgentLoop returns the agent loop instance (used by CLI)
func (app *App) AgentLoop() *service.AgentLoop {
	return app.agentLoop
}

// PromptEngine returns the prompt engine (used by CLI)
func (app *App) PromptEngine() *prompt.PromptEngine {
	return app.promptEngine
}

// ToolRegistry returns the tool registry (used by CLI)
func (app *App) ToolRegistry() domaintool.Registry {
	return app.toolRegistry
}

// telegramMessageHandler 实现 telegram.MessageHandler + telegram.RunController 接口
// 通过 agentLoop.Run() 驱动一轮对话, 最终回复经 DeliverReply 出站
// 支持对话打断: 新消息自动取消旧的运行中 agent loop
type telegramMessageHandler struct {
	agentLoop      *service.AgentLoop
	toolExec       service.ToolExecutor
	promptEngine   *prompt.PromptEngine
	tgAdapter      *telegram.Adapter
	envelope       *safety.Envelope
	logger         *zap.Logger
	sessionManager telegram.SessionManager
	workspaceDir   string
	// 每个 chatID 的对话历史
	histories sync.Map // map[int64][]service.LLMMessage
	// 每个 chatID 的活跃运行 (用于打断)
	activeRuns sync.Map // map[int64]context.CancelFunc
}

// maxHistoryPairs 最多保留的对话对数 (user+assistant = 1 pair)
const maxHistoryPairs = 30

func (h *telegramMessageHandler) HandleMessage(ctx context.Context, msg *telegram.IncomingMessage) (*telegram.OutgoingMessage, error) {
	// ===== 打断机制: 取消此 chatID 之前的运行 =====
	if oldCancel, ok := h.activeRuns.Load(msg.ChatID); ok {
		oldCancel.(context.CancelFunc)()
		h.logger.Info("Interrupted previous run",
			zap.Int64("chat_id", msg.ChatID),
		)
	}

	// 创建可取消的上下文, 注册到 activeRuns
	runCtx, runCancel := context.WithCancel(ctx)
	runCtx = WithChatID(runCtx, msg.ChatID) // for SecurityHook
	h.activeRuns.Store(msg.ChatID, runCancel)
	defer func() {
		runCancel()
		h.activeRuns.Delete(msg.ChatID)
	}()

	// 入站内容先过注入扫描 (仅记录, 不拦截)
	if h.envelope != nil {
		h.envelope.ScanText("user:telegram", msg.Text)
	}

	// 发送 typing 状态
	h.tgAdapter.SendTyping(msg.ChatID)

	// 组装 system prompt (两层架构)
	toolNames := make([]string, 0)
	toolSummaries := make(map[string]string)
	for _, d := range h.toolExec.GetDefinitions() {
		toolNames = append(toolNames, d.Name)
		if d.Description != "" {
			toolSummaries[d.Name] = d.Description
		}
	}

	// 获取当前模型名称
	modelName := ""
	if h.sessionManager != nil {
		modelName = h.sessionManager.GetCurrentModel(msg.ChatID)
	}

	// Build unified system prompt (channel-aware assembly)
	systemPrompt := ""
	if h.promptEngine != nil {
		systemPrompt = h.promptEngine.Assemble(prompt.PromptContext{
			Channel:         "telegram",
			RegisteredTools: toolNames,
			ToolSummaries:   toolSummaries,
			ModelName:       modelName,
			UserMessage:     msg.Text,
			Workspace:       h.workspaceDir,
		})
	}

	// 加载对话历史
	history := h.getHistory(msg.ChatID)

	// 运行 agent loop (异步, 通过 eventCh 报告进度)
	result, eventCh := h.agentLoop.Run(runCtx, systemPrompt, msg.Text, history, modelName)

	var lastSegment strings.Builder // Accumulated text from final segment (after last tool result)
	interrupted := false

	for event := range eventCh {
		// 检查是否被打断
		if runCtx.Err() != nil {
			interrupted = true
			break
		}

		switch event.Type {
		case entity.EventTextDelta:
			lastSegment.WriteString(event.Content)

		case entity.EventToolCall:
			// Reset lastSegment on each tool call so the fallback only contains text
			// from the FINAL LLM segment (after the last tool result).
			// Without this, intermediate narration ("先检查…", "服务正在运行…") from
			// every LLM step accumulates and contaminates the output.
			lastSegment.Reset()
			h.tgAdapter.SendTyping(msg.ChatID)

		case entity.EventError:
			h.logger.Warn("Agent loop event error",
				zap.Int64("chat_id", msg.ChatID),
				zap.String("error", event.Error),
			)

		case entity.EventStepDone:
			h.tgAdapter.SendTyping(msg.ChatID)
		}
	}

	// 处理被打断的情况
	if interrupted {
		partial := lastSegment.String()
		if partial == "" {
			partial = "(被用户打断)"
		}
		h.appendHistory(msg.ChatID, msg.Text, partial+" [已打断]")
		_ = h.tgAdapter.DeliverReply(msg.ChatID, partial+"\n\n⏹ *已打断*")
		return nil, nil
	}

	// 正常完成 → 选择最佳输出
	// Priority: result.FinalContent > lastSegment > "(无输出)"
	// NOTE: reasoning tags stripped by agent_loop (StripReasoningTags).
	// lastSegment fallback also stripped as safety net.
	finalText := strings.TrimSpace(result.FinalContent)
	if finalText == "" {
		finalText = strings.TrimSpace(service.StripReasoningTags(lastSegment.String()))
	}

	isEmpty := strings.TrimSpace(finalText) == ""
	if isEmpty {
		finalText = "(无输出)"
	}

	h.logger.Info("Delivering final response to TG",
		zap.Int64("chat_id", msg.ChatID),
		zap.Int("content_len", len(finalText)),
		zap.Int("steps", result.TotalSteps),
		zap.Bool("empty_fallback", isEmpty),
	)

	// Only append valid responses to history — empty/failed responses pollute context
	// and cause the model to ignore subsequent user prompts.
	if !isEmpty {
		h.appendHistory(msg.ChatID, msg.Text, finalText)
	} else {
		h.logger.Warn("Skipping history append for empty response",
			zap.Int64("chat_id", msg.ChatID),
			zap.String("raw_final", result.FinalContent),
			zap.String("raw_segment", lastSegment.String()),
		)
	}

	if err := h.tgAdapter.DeliverReply(msg.ChatID, finalText); err != nil {
		h.logger.Error("TG delivery failed", zap.Error(err), zap.Int64("chat_id", msg.ChatID))
	}
	return nil, nil
}

// ===== RunController 接口实现 =====

// AbortRun 中止指定 chatID 的当前运行 (供 /stop 命令调用)
func (h *telegramMessageHandler) AbortRun(chatID int64) bool {
	if cancel, ok := h.activeRuns.Load(chatID); ok {
		cancel.(context.CancelFunc)()
		return true
	}
	return false
}

// IsRunActive 检查指定 chatID 是否有活跃运行
func (h *telegramMessageHandler) IsRunActive(chatID int64) bool {
	_, ok := h.activeRuns.Load(chatID)
	return ok
}

// GetRunState 获取指定 chatID 的运行状态
func (h *telegramMessageHandler) GetRunState(chatID int64) string {
	if h.IsRunActive(chatID) {
		return "running"
	}
	return "idle"
}

// ===== HistoryClearer 接口实现 =====

// ClearHistory 清除指定 chatID 的对话历史
func (h *telegramMessageHandler) ClearHistory(chatID int64) {
	h.histories.Delete(chatID)
}

// GetHistory returns conversation history as simplified messages for session-memory saving.
func (h *telegramMessageHandler) GetHistory(chatID int64) []telegram.HistoryMessage {
	msgs := h.getHistory(chatID)
	if len(msgs) == 0 {
		return nil
	}
	result := make([]telegram.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "user" || m.Role == "assistant" {
			content := m.Content
			if len(content) > 500 {
				content = content[:500] + "..."
			}
			result = append(result, telegram.HistoryMessage{
				Role:    m.Role,
				Content: content,
			})
		}
	}
	return result
}

// ===== 内部方法 =====

func (h *telegramMessageHandler) getHistory(chatID int64) []service.LLMMessage {
	if val, ok := h.histories.Load(chatID); ok {
		return val.([]service.LLMMessage)
	}
	return nil
}

func (h *telegramMessageHandler) appendHistory(chatID int64, userText, assistantText string) {
	history := h.getHistory(chatID)
	history = append(history,
		service.LLMMessage{Role: "user", Content: userText},
		service.LLMMessage{Role: "assistant", Content: assistantText},
	)
	maxMessages := maxHistoryPairs * 2
	if len(history) > maxMessages {
		history = history[len(history)-maxMessages:]
	}
	h.histories.Store(chatID, history)
}
