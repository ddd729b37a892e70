package telegram

import (
	"context"
	"fmt"
	"strings"
)

// registerModelCommands registers model selection: model, models
func (a *Adapter) registerModelCommands(registry *CommandRegistry) {
	// /model [名称] — 查看或切换当前模型
	registry.Register("model", func(ctx context.Context, cmd *Command) (*OutgoingMessage, error) {
		modelArg := strings.Join(cmd.Args, " ")
		if modelArg == "" {
			current := ""
			if registry.sessionManager != nil {
				current = registry.sessionManager.GetCurrentModel(cmd.ChatID)
			}
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      fmt.Sprintf("🤖 当前模型: <code>%s</code>\n\n用 /model &lt;名称&gt; 切换，/models 查看可用模型", current),
				ParseMode: "HTML",
			}, nil
		}

		if registry.sessionManager != nil {
			if err := registry.sessionManager.SetModel(cmd.ChatID, modelArg); err != nil {
				return &OutgoingMessage{
					ChatID:    cmd.ChatID,
					Text:      fmt.Sprintf("❌ 切换模型失败: %s", err.Error()),
					ParseMode: "HTML",
				}, nil
			}
		}

		return &OutgoingMessage{
			ChatID:    cmd.ChatID,
			Text:      fmt.Sprintf("✅ 已切换到模型: <code>%s</code>", modelArg),
			ParseMode: "HTML",
		}, nil
	})

	// /models 命令 - 按提供商列出可用模型
	registry.Register("models", func(ctx context.Context, cmd *Command) (*OutgoingMessage, error) {
		var models []ModelInfo
		var currentModel string
		if registry.sessionManager != nil {
			models = registry.sessionManager.GetAvailableModels()
			currentModel = registry.sessionManager.GetCurrentModel(cmd.ChatID)
		}

		if len(models) == 0 {
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      "📋 <b>可用模型</b>\n\n当前没有配置模型列表。\n\n请在配置文件中设置模型，或联系管理员。",
				ParseMode: "HTML",
			}, nil
		}

		// 按提供商分组
		byProvider := make(map[string][]ModelInfo)
		var providers []string
		for _, m := range models {
			if _, exists := byProvider[m.Provider]; !exists {
				providers = append(providers, m.Provider)
			}
			byProvider[m.Provider] = append(byProvider[m.Provider], m)
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("🤖 当前: <code>%s</code>\n", currentModel))
		for _, p := range providers {
			sb.WriteString(fmt.Sprintf("\n<b>%s</b>\n", p))
			for _, m := range byProvider[p] {
				marker := ""
				if m.ID == currentModel {
					marker = " ✅"
				}
				alias := ""
				if m.Alias != "" {
					alias = fmt.Sprintf(" (%s)", m.Alias)
				}
				sb.WriteString(fmt.Sprintf("• <code>%s</code>%s%s\n", m.ID, alias, marker))
			}
		}
		sb.WriteString("\n用 /model &lt;名称或别名&gt; 切换")

		return &OutgoingMessage{
			ChatID:    cmd.ChatID,
			Text:      sb.String(),
			ParseMode: "HTML",
		}, nil
	})

	registry.Alias("m", "model")
}
