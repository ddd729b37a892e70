package application

import (
	"context"
	"strings"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
	"github.com/bizclaw/bizclaw/internal/domain/service"
	"github.com/bizclaw/bizclaw/internal/infrastructure/prompt"
	"go.uber.org/zap"
)

// orchestratorTurnRunner implements orchestrator.TurnRunner by driving the
// same shared ReAct engine every other interface (Telegram, HTTP)
// drives, rather than standing up a second agent loop just for
// delegation/scheduled-prompt traffic. Mirrors telegramMessageHandler's
// system-prompt assembly and event-draining pattern, minus the streaming
// status updates a human-facing channel needs.
type orchestratorTurnRunner struct {
	agentLoop    *service.AgentLoop
	toolExec     service.ToolExecutor
	promptEngine *prompt.PromptEngine
	workspaceDir string
	modelName    string
	logger       *zap.Logger
}

// RunTurn runs one ReAct turn with no prior history — a delegation or a
// scheduled agent-prompt task is always a fresh, self-contained request —
// and returns whatever text the loop settled on as its final answer.
func (r *orchestratorTurnRunner) RunTurn(ctx context.Context, agentID, prompt_ string) (string, error) {
	toolNames := make([]string, 0)
	toolSummaries := make(map[string]string)
	if r.toolExec != nil {
		for _, d := range r.toolExec.GetDefinitions() {
			toolNames = append(toolNames, d.Name)
			if d.Description != "" {
				toolSummaries[d.Name] = d.Description
			}
		}
	}

	systemPrompt := ""
	if r.promptEngine != nil {
		systemPrompt = r.promptEngine.Assemble(prompt.PromptContext{
			Channel:         "orchestrator",
			RegisteredTools: toolNames,
			ToolSummaries:   toolSummaries,
			ModelName:       r.modelName,
			UserMessage:     prompt_,
			Workspace:       r.workspaceDir,
		})
	}

	result, eventCh := r.agentLoop.Run(ctx, systemPrompt, prompt_, nil, r.modelName)

	var lastSegment strings.Builder
	for event := range eventCh {
		switch event.Type {
		case entity.EventTextDelta:
			lastSegment.WriteString(event.Content)
		case entity.EventToolCall:
			lastSegment.Reset()
		}
	}

	final := strings.TrimSpace(result.FinalContent)
	if final == "" {
		final = strings.TrimSpace(service.StripReasoningTags(lastSegment.String()))
	}
	if final == "" {
		final = "(no output)"
	}

	r.logger.Debug("orchestrator turn completed",
		zap.String("agent", agentID), zap.Int("steps", result.TotalSteps))
	return final, nil
}
