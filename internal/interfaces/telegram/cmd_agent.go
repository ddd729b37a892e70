package telegram

import (
	"context"
	"fmt"
	"strings"
)

// registerAgentCommands registers orchestration: agent, delegate, handoff, tasks
func (a *Adapter) registerAgentCommands(registry *CommandRegistry) {
	// /agent 命令 - Agent 管理 (驱动真实的领域 Orchestrator)
	registry.Register("agent", func(ctx context.Context, cmd *Command) (*OutgoingMessage, error) {
		if len(cmd.Args) == 0 {
			return &OutgoingMessage{
				ChatID: cmd.ChatID,
				Text: "🤖 <b>Agent 管理</b>\n\n用法:\n" +
					"• /agent list — 列出 Agent\n" +
					"• /agent switch &lt;ID&gt; — 切换 Agent\n" +
					"• /agent spawn &lt;名称&gt; [模型] — 创建新 Agent\n" +
					"• /agent terminate &lt;ID&gt; — 终止 Agent",
				ParseMode: "HTML",
			}, nil
		}

		if registry.orchestrator == nil {
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      "⚠️ 编排器不可用。",
				ParseMode: "HTML",
			}, nil
		}

		subCmd := cmd.Args[0]

		switch subCmd {
		case "list", "ls":
			agents := registry.orchestrator.ListAgents()
			var lines []string
			for _, ag := range agents {
				marker := ""
				if ag.Active {
					marker = " [当前]"
				}
				lines = append(lines, fmt.Sprintf("• <code>%s</code> — %s (%s)%s", ag.ID, ag.Status, ag.Model, marker))
			}
			agentList := "暂无已注册 Agent"
			if len(lines) > 0 {
				agentList = strings.Join(lines, "\n")
			}
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      fmt.Sprintf("🤖 <b>Agent 列表</b>\n\n%s", agentList),
				ParseMode: "HTML",
			}, nil

		case "switch", "use":
			if len(cmd.Args) < 2 {
				return &OutgoingMessage{
					ChatID:    cmd.ChatID,
					Text:      "❌ 用法: /agent switch &lt;ID&gt;",
					ParseMode: "HTML",
				}, nil
			}
			agentID := cmd.Args[1]
			if err := registry.orchestrator.SwitchAgent(agentID); err != nil {
				return &OutgoingMessage{
					ChatID:    cmd.ChatID,
					Text:      fmt.Sprintf("❌ 切换失败: %s", err.Error()),
					ParseMode: "HTML",
				}, nil
			}
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      fmt.Sprintf("✅ 已切换到 Agent: <code>%s</code>", agentID),
				ParseMode: "HTML",
			}, nil

		case "spawn", "create", "new":
			if len(cmd.Args) < 2 {
				return &OutgoingMessage{
					ChatID:    cmd.ChatID,
					Text:      "❌ 用法: /agent spawn &lt;名称&gt; [模型]",
					ParseMode: "HTML",
				}, nil
			}
			name := cmd.Args[1]
			model := ""
			if len(cmd.Args) > 2 {
				model = strings.Join(cmd.Args[2:], " ")
			}
			agent, err := registry.orchestrator.SpawnAgent(ctx, name, model, "")
			if err != nil {
				return &OutgoingMessage{
					ChatID:    cmd.ChatID,
					Text:      fmt.Sprintf("❌ 创建失败: %s", err.Error()),
					ParseMode: "HTML",
				}, nil
			}
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      fmt.Sprintf("✅ 已创建 Agent: <code>%s</code>", agent.ID),
				ParseMode: "HTML",
			}, nil

		case "terminate", "kill", "stop":
			if len(cmd.Args) < 2 {
				return &OutgoingMessage{
					ChatID:    cmd.ChatID,
					Text:      "❌ 用法: /agent terminate &lt;ID&gt;",
					ParseMode: "HTML",
				}, nil
			}
			agentID := cmd.Args[1]
			if err := registry.orchestrator.TerminateAgent(agentID); err != nil {
				return &OutgoingMessage{
					ChatID:    cmd.ChatID,
					Text:      fmt.Sprintf("❌ 终止失败: %s", err.Error()),
					ParseMode: "HTML",
				}, nil
			}
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      fmt.Sprintf("✅ 已终止 Agent: <code>%s</code>", agentID),
				ParseMode: "HTML",
			}, nil

		default:
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      fmt.Sprintf("❌ 未知子命令: <code>%s</code>", subCmd),
				ParseMode: "HTML",
			}, nil
		}
	})
	registry.Alias("agents", "agent")

	// /delegate 命令 - 将任务委派给另一个 Agent (同步等待结果或异步排队)
	registry.Register("delegate", func(ctx context.Context, cmd *Command) (*OutgoingMessage, error) {
		if registry.orchestrator == nil {
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      "⚠️ 编排器不可用。",
				ParseMode: "HTML",
			}, nil
		}
		if len(cmd.Args) < 2 {
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      "⚙️ 用法: /delegate [--async] &lt;Agent&gt; &lt;任务描述&gt;",
				ParseMode: "HTML",
			}, nil
		}
		args := cmd.Args
		sync := true
		if args[0] == "--async" {
			sync = false
			args = args[1:]
		}
		if len(args) < 2 {
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      "⚙️ 用法: /delegate [--async] &lt;Agent&gt; &lt;任务描述&gt;",
				ParseMode: "HTML",
			}, nil
		}
		to := args[0]
		task := strings.Join(args[1:], " ")
		result, err := registry.orchestrator.Delegate(ctx, to, task, sync)
		if err != nil {
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      fmt.Sprintf("❌ 委派失败: %s", err.Error()),
				ParseMode: "HTML",
			}, nil
		}
		if !sync {
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      fmt.Sprintf("✅ 已异步委派给 <code>%s</code>", to),
				ParseMode: "HTML",
			}, nil
		}
		return &OutgoingMessage{
			ChatID:    cmd.ChatID,
			Text:      fmt.Sprintf("🤖 <b>%s 的回复</b>\n\n%s", to, result),
			ParseMode: "HTML",
		}, nil
	})

	// /handoff 命令 - 将当前会话转交给另一个 Agent
	registry.Register("handoff", func(ctx context.Context, cmd *Command) (*OutgoingMessage, error) {
		if registry.orchestrator == nil {
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      "⚠️ 编排器不可用。",
				ParseMode: "HTML",
			}, nil
		}
		if len(cmd.Args) < 1 {
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      "⚙️ 用法: /handoff &lt;Agent&gt; [原因]",
				ParseMode: "HTML",
			}, nil
		}
		to := cmd.Args[0]
		reason := ""
		if len(cmd.Args) > 1 {
			reason = strings.Join(cmd.Args[1:], " ")
		}
		sessionID := fmt.Sprintf("tg-%d", cmd.ChatID)
		if err := registry.orchestrator.Handoff(ctx, sessionID, to, reason); err != nil {
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      fmt.Sprintf("❌ 转交失败: %s", err.Error()),
				ParseMode: "HTML",
			}, nil
		}
		return &OutgoingMessage{
			ChatID:    cmd.ChatID,
			Text:      fmt.Sprintf("✅ 会话已转交给 <code>%s</code>", to),
			ParseMode: "HTML",
		}, nil
	})

	// /tasks 命令 - 定时任务管理 (驱动持久化调度引擎)
	registry.Register("tasks", func(ctx context.Context, cmd *Command) (*OutgoingMessage, error) {
		if registry.schedulerCtl == nil {
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      "⚠️ 调度器未启用。",
				ParseMode: "HTML",
			}, nil
		}

		if len(cmd.Args) == 0 || cmd.Args[0] == "list" || cmd.Args[0] == "ls" {
			tasks := registry.schedulerCtl.ListTasks()
			if len(tasks) == 0 {
				return &OutgoingMessage{
					ChatID:    cmd.ChatID,
					Text:      "📋 暂无定时任务\n\n用法:\n• /tasks add &lt;cron 表达式的五段&gt; | &lt;提示词&gt;\n• /tasks pause|resume|remove &lt;ID&gt;",
					ParseMode: "HTML",
				}, nil
			}
			var lines []string
			for _, t := range tasks {
				next := "-"
				if t.NextRun != "" {
					next = t.NextRun
				}
				lines = append(lines, fmt.Sprintf("• <code>%s</code> | %s | %s | 下次 %s (运行 %d 次, 失败 %d)",
					t.ID, t.Name, t.Status, next, t.RunCount, t.FailCount))
			}
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      "📋 <b>定时任务</b>\n\n" + strings.Join(lines, "\n"),
				ParseMode: "HTML",
			}, nil
		}

		subCmd := cmd.Args[0]
		switch subCmd {
		case "add":
			// /tasks add <m> <h> <dom> <mon> <dow> | <prompt>
			rest := strings.TrimSpace(strings.TrimPrefix(cmd.RawArgs, "add"))
			parts := strings.SplitN(rest, "|", 2)
			if len(parts) != 2 {
				return &OutgoingMessage{
					ChatID:    cmd.ChatID,
					Text:      "❌ 用法: /tasks add &lt;cron 五段表达式&gt; | &lt;提示词&gt;\n例如: /tasks add 0 9 * * * | 早报汇总",
					ParseMode: "HTML",
				}, nil
			}
			expr := strings.TrimSpace(parts[0])
			prompt := strings.TrimSpace(parts[1])
			id, err := registry.schedulerCtl.AddAgentTask(truncate(prompt, 40), expr, prompt)
			if err != nil {
				return &OutgoingMessage{
					ChatID:    cmd.ChatID,
					Text:      fmt.Sprintf("❌ 添加失败: %s", err.Error()),
					ParseMode: "HTML",
				}, nil
			}
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      fmt.Sprintf("✅ 已添加定时任务\nID: <code>%s</code>\n表达式: <code>%s</code>", id, expr),
				ParseMode: "HTML",
			}, nil

		case "pause", "disable":
			if len(cmd.Args) < 2 {
				return &OutgoingMessage{ChatID: cmd.ChatID, Text: "❌ 用法: /tasks pause <ID>"}, nil
			}
			if err := registry.schedulerCtl.PauseTask(cmd.Args[1]); err != nil {
				return &OutgoingMessage{ChatID: cmd.ChatID, Text: fmt.Sprintf("❌ %s", err.Error())}, nil
			}
			return &OutgoingMessage{ChatID: cmd.ChatID, Text: fmt.Sprintf("⏸ 已暂停任务 %s", cmd.Args[1])}, nil

		case "resume", "enable":
			if len(cmd.Args) < 2 {
				return &OutgoingMessage{ChatID: cmd.ChatID, Text: "❌ 用法: /tasks resume <ID>"}, nil
			}
			if err := registry.schedulerCtl.ResumeTask(cmd.Args[1]); err != nil {
				return &OutgoingMessage{ChatID: cmd.ChatID, Text: fmt.Sprintf("❌ %s", err.Error())}, nil
			}
			return &OutgoingMessage{ChatID: cmd.ChatID, Text: fmt.Sprintf("▶️ 已恢复任务 %s", cmd.Args[1])}, nil

		case "remove", "rm", "delete":
			if len(cmd.Args) < 2 {
				return &OutgoingMessage{ChatID: cmd.ChatID, Text: "❌ 用法: /tasks remove <ID>"}, nil
			}
			if err := registry.schedulerCtl.RemoveTask(cmd.Args[1]); err != nil {
				return &OutgoingMessage{ChatID: cmd.ChatID, Text: fmt.Sprintf("❌ %s", err.Error())}, nil
			}
			return &OutgoingMessage{ChatID: cmd.ChatID, Text: fmt.Sprintf("🗑 已删除任务 %s", cmd.Args[1])}, nil

		default:
			return &OutgoingMessage{
				ChatID:    cmd.ChatID,
				Text:      fmt.Sprintf("❌ 未知子命令: <code>%s</code>", subCmd),
				ParseMode: "HTML",
			}, nil
		}
	})
	registry.Alias("cron", "tasks")
}
