package telegram

import (
	"context"
	"strings"
	"sync"
)

// Command Telegram 命令
type Command struct {
	Name    string   // 命令名 (不含 /)
	Args    []string // 参数列表
	RawArgs string   // 原始参数字符串
	ChatID  int64
	UserID  int64
}

// CommandHandler 命令处理器
type CommandHandler func(ctx context.Context, cmd *Command) (*OutgoingMessage, error)

// SessionManager 会话管理接口
type SessionManager interface {
	CreateSession(chatID int64, userID int64) error
	ClearSession(chatID int64) error
	GetCurrentModel(chatID int64) string
	SetModel(chatID int64, model string) error
	GetAvailableModels() []ModelInfo
}

// HistoryClearer 对话历史清除接口 — 允许命令层清除 agent loop 的对话记忆
type HistoryClearer interface {
	ClearHistory(chatID int64)
}

// HistoryMessage 简化的历史消息 (用于会话快照)
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentSummary is a plain-type snapshot of one named agent in the
// orchestrator's pool, kept free of any domain import so this package's
// dependency-free discipline holds for /agent the same way it already
// does for every other command.
type AgentSummary struct {
	ID                 string
	Name               string
	Model              string
	Status             string
	ActiveSession      string
	PendingDelegations int
	Active             bool
}

// OrchestratorController 编排控制接口 — 驱动 /agent /delegate /handoff 命令
// 背后真实的领域 Orchestrator，取代此前仅返回固定文案的占位实现。
type OrchestratorController interface {
	ListAgents() []AgentSummary
	ActiveAgent() AgentSummary
	SwitchAgent(id string) error
	SpawnAgent(ctx context.Context, name, model, workspace string) (AgentSummary, error)
	TerminateAgent(id string) error
	Delegate(ctx context.Context, to, task string, sync bool) (string, error)
	Handoff(ctx context.Context, sessionID, to, reason string) error
}

// TaskSummary is a plain-type snapshot of one persisted scheduler task,
// mirroring AgentSummary's no-domain-import discipline for /tasks.
type TaskSummary struct {
	ID       string
	Name     string
	Status   string
	NextRun  string
	RunCount int
	FailCount int
}

// SchedulerController 调度控制接口 — 驱动 /tasks 命令背后真实的持久化调度引擎
type SchedulerController interface {
	ListTasks() []TaskSummary
	AddAgentTask(name, cronExpr, prompt string) (string, error)
	PauseTask(id string) error
	ResumeTask(id string) error
	RemoveTask(id string) error
}

// ModelInfo 模型信息
type ModelInfo struct {
	ID          string // 模型 ID (如 "antigravity/gemini-3-flash")
	Alias       string // 别名 (如 "Flash")
	Provider    string // 提供商
	Description string // 描述
}

// CommandRegistry 命令注册表
type CommandRegistry struct {
	handlers       map[string]CommandHandler
	aliases        map[string]string
	sessionManager SessionManager
	runController  RunController
	historyClearer HistoryClearer
	orchestrator   OrchestratorController
	schedulerCtl   SchedulerController
	mu             sync.RWMutex
}

// NewCommandRegistry 创建命令注册表
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		handlers: make(map[string]CommandHandler),
		aliases:  make(map[string]string),
	}
}

// SetSessionManager 设置会话管理器
func (r *CommandRegistry) SetSessionManager(sm SessionManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionManager = sm
}

// SetRunController 设置运行控制器
func (r *CommandRegistry) SetRunController(ctrl RunController) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runController = ctrl
}

// SetHistoryClearer 设置对话历史清除器
func (r *CommandRegistry) SetHistoryClearer(hc HistoryClearer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.historyClearer = hc
}

// SetOrchestrator 设置编排控制器
func (r *CommandRegistry) SetOrchestrator(oc OrchestratorController) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orchestrator = oc
}

// SetScheduler 设置调度控制器
func (r *CommandRegistry) SetScheduler(sc SchedulerController) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedulerCtl = sc
}

// Register 注册命令
func (r *CommandRegistry) Register(name string, handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.ToLower(name)] = handler
}

// Alias 注册命令别名
func (r *CommandRegistry) Alias(alias, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[strings.ToLower(alias)] = strings.ToLower(target)
}

// Handle 处理命令
func (r *CommandRegistry) Handle(ctx context.Context, cmd *Command) (*OutgoingMessage, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := strings.ToLower(cmd.Name)

	// 检查别名
	if target, ok := r.aliases[name]; ok {
		name = target
	}

	handler, exists := r.handlers[name]
	if !exists {
		return nil, false, nil
	}

	response, err := handler(ctx, cmd)
	return response, true, err
}

// ParseCommand 解析命令
func ParseCommand(text string) *Command {
	if !strings.HasPrefix(text, "/") {
		return nil
	}

	// 移除 @ 后缀 (群组中的 /cmd@botname)
	parts := strings.SplitN(text[1:], " ", 2)
	cmdPart := parts[0]
	if idx := strings.Index(cmdPart, "@"); idx != -1 {
		cmdPart = cmdPart[:idx]
	}

	cmd := &Command{
		Name: cmdPart,
	}

	if len(parts) > 1 {
		cmd.RawArgs = parts[1]
		cmd.Args = strings.Fields(parts[1])
	}

	return cmd
}

// RegisterBuiltinCommands 注册内置命令 (delegated to cmd_*.go files)
func (a *Adapter) RegisterBuiltinCommands(registry *CommandRegistry, secCtrl ...SecurityController) {
	a.registerSessionCommands(registry)
	a.registerModelCommands(registry)
	a.registerAgentCommands(registry)
	if len(secCtrl) > 0 && secCtrl[0] != nil {
		a.registerSecurityCommands(registry, secCtrl[0])
	}
}
