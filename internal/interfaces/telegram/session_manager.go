package telegram

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultSessionManager 默认会话管理器实现 — 每个 chatID 一份会话状态，
// 记录当前模型选择。历史清除由 HistoryClearer 负责，这里只管配置。
type DefaultSessionManager struct {
	mu           sync.RWMutex
	sessions     map[int64]*ChatSession // chatID -> session
	models       []ModelInfo            // 可用模型列表
	defaultModel string                 // 新会话默认模型
}

// ChatSession 聊天会话
type ChatSession struct {
	ChatID       int64
	UserID       int64
	CurrentModel string
}

// NewDefaultSessionManager 创建默认会话管理器
func NewDefaultSessionManager(defaultModel string) *DefaultSessionManager {
	if defaultModel == "" {
		defaultModel = "bailian/qwen3-max-2026-01-23"
	}
	return &DefaultSessionManager{
		sessions:     make(map[int64]*ChatSession),
		models:       getDefaultModels(),
		defaultModel: defaultModel,
	}
}

// getDefaultModels 获取默认模型列表, 配置文件的 agent.models 会覆盖它
func getDefaultModels() []ModelInfo {
	return []ModelInfo{
		// Bailian (主力)
		{ID: "bailian/qwen3-max-2026-01-23", Alias: "qwen3-max-thinking", Provider: "Bailian", Description: "Qwen3 Max Thinking"},
		{ID: "bailian/qwen3-coder-plus", Alias: "coder", Provider: "Bailian", Description: "Qwen3 Coder Plus"},

		// MiniMax
		{ID: "minimax/MiniMax-M2.1", Alias: "Minimax", Provider: "MiniMax", Description: "MiniMax M2.1"},
		{ID: "minimax/MiniMax-M2.1-lightning", Alias: "minimax-light", Provider: "MiniMax", Description: "MiniMax M2.1 Lightning"},
	}
}

// getOrCreateSession 获取或创建会话
func (m *DefaultSessionManager) getOrCreateSession(chatID int64) *ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[chatID]
	if !exists {
		session = &ChatSession{
			ChatID:       chatID,
			CurrentModel: m.defaultModel,
		}
		m.sessions[chatID] = session
	}
	return session
}

// CreateSession 创建新会话, 重置所有状态
func (m *DefaultSessionManager) CreateSession(chatID int64, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[chatID] = &ChatSession{
		ChatID:       chatID,
		UserID:       userID,
		CurrentModel: m.defaultModel,
	}

	return nil
}

// ClearSession 清除会话历史, 保留模型选择
func (m *DefaultSessionManager) ClearSession(chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, exists := m.sessions[chatID]; exists {
		m.sessions[chatID] = &ChatSession{
			ChatID:       chatID,
			UserID:       session.UserID,
			CurrentModel: session.CurrentModel,
		}
	}

	return nil
}

// GetCurrentModel 获取当前模型
func (m *DefaultSessionManager) GetCurrentModel(chatID int64) string {
	session := m.getOrCreateSession(chatID)
	return session.CurrentModel
}

// SetModel 设置模型 (支持别名和完整路径)
func (m *DefaultSessionManager) SetModel(chatID int64, model string) error {
	resolvedModel := m.resolveModel(model)
	if resolvedModel == "" {
		return fmt.Errorf("未知模型: %s", model)
	}

	session := m.getOrCreateSession(chatID)
	session.CurrentModel = resolvedModel

	return nil
}

// resolveModel 解析模型名称: 完整 ID → 别名 → 部分匹配 → 带 "/" 的直接放行
func (m *DefaultSessionManager) resolveModel(input string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, model := range m.models {
		if model.ID == input {
			return model.ID
		}
	}

	inputLower := strings.ToLower(input)
	for _, model := range m.models {
		if strings.ToLower(model.Alias) == inputLower {
			return model.ID
		}
	}

	for _, model := range m.models {
		if strings.Contains(model.ID, input) {
			return model.ID
		}
	}

	if strings.Contains(input, "/") {
		return input
	}

	return ""
}

// GetAvailableModels 获取可用模型列表
func (m *DefaultSessionManager) GetAvailableModels() []ModelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ModelInfo, len(m.models))
	copy(result, m.models)
	return result
}

// SetAvailableModels 设置可用模型列表
func (m *DefaultSessionManager) SetAvailableModels(models []ModelInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models = models
}
