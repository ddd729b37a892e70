package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bizclaw/bizclaw/internal/domain/safety"
	domaintool "github.com/bizclaw/bizclaw/internal/domain/tool"
)

// toolBridge adapts domaintool.Registry → service.ToolExecutor, gating every
// call through the tool Policy and the Safety Envelope first. This is the one
// place every tool invocation passes through regardless of interface
// (Telegram, HTTP, sub-delegation), so it's where the allowlist/path
// guard/SSRF guard/loop detector actually see live traffic instead of only
// their own unit tests.
type toolBridge struct {
	registry domaintool.Registry
	policy   *domaintool.Policy
	envelope *safety.Envelope
}

// Execute implements service.ToolExecutor.Execute
func (b *toolBridge) Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error) {
	if b.policy != nil && !b.policy.IsAllowed(name) {
		return &domaintool.Result{
			Output:  fmt.Sprintf("Tool '%s' is not allowed by current policy", name),
			Success: false,
			Error:   fmt.Sprintf("tool not allowed: %s", name),
		}, nil
	}

	tool, ok := b.registry.Get(name)
	if !ok {
		return &domaintool.Result{
			Output:  fmt.Sprintf("Tool '%s' not found", name),
			Success: false,
			Error:   fmt.Sprintf("tool '%s' not registered", name),
		}, nil
	}

	if b.envelope != nil {
		command, _ := args["command"].(string)
		path, _ := args["path"].(string)
		url, _ := args["url"].(string)
		argsJSON, _ := json.Marshal(args)
		if allowed, reason := b.envelope.CheckToolCall(name, command, path, url, string(argsJSON)); !allowed {
			return &domaintool.Result{
				Output:  fmt.Sprintf("Tool '%s' blocked: %s", name, reason),
				Success: false,
				Error:   reason,
			}, nil
		}
	}

	result, err := tool.Execute(ctx, args)
	if b.envelope != nil && result != nil && result.Output != "" {
		b.envelope.ScanText("tool:"+name, result.Output)
	}
	return result, err
}

// GetDefinitions implements service.ToolExecutor.GetDefinitions
func (b *toolBridge) GetDefinitions() []domaintool.Definition {
	if b.policy != nil {
		return domaintool.NewPolicyEnforcer(b.policy, b.registry).FilteredList()
	}
	return b.registry.List()
}

// GetToolKind implements service.ToolExecutor.GetToolKind
func (b *toolBridge) GetToolKind(name string) domaintool.Kind {
	tool, ok := b.registry.Get(name)
	if !ok {
		return domaintool.KindExecute
	}
	return tool.Kind()
}
