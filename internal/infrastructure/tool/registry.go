package tool

import (
	domaintool "github.com/bizclaw/bizclaw/internal/domain/tool"
	"github.com/bizclaw/bizclaw/internal/infrastructure/sandbox"
	"go.uber.org/zap"
)

// ToolLayerDeps aggregates all external dependencies needed by the tool layer.
// This is the single configuration point for the entire tool subsystem.
type ToolLayerDeps struct {
	// Required
	Registry domaintool.Registry
	Logger   *zap.Logger

	// Infrastructure
	Sandbox *sandbox.ProcessSandbox // nil = tools run unsandboxed

	// MCP
	MCPManager *MCPManager // nil = no MCP support
}

// RegisterAllTools registers all built-in tools in one place. This is the
// ONLY tool registration entry point. Adding a new tool? Add it here.
//
// Registration order:
//  1. Shell (bash)
//  2. File operations (read, write, edit, list, grep, glob)
//  3. HTTP fetch (web_fetch)
//  4. Dynamic MCP server tools (hot-plugged from mcp.json)
func RegisterAllTools(deps ToolLayerDeps) int {
	tools := []domaintool.Tool{
		NewBashTool(deps.Sandbox, deps.Logger),
		NewReadFileTool(deps.Sandbox, deps.Logger),
		NewWriteFileTool(deps.Sandbox, deps.Logger),
		NewEditFileTool(deps.Sandbox, deps.Logger),
		NewListDirTool(deps.Sandbox, deps.Logger),
		NewSearchTool(deps.Sandbox, deps.Logger),
		NewGlobTool(deps.Sandbox, deps.Logger),
		NewWebFetchTool(deps.Logger),
	}

	// ── Register everything ──
	registered := 0
	for _, t := range tools {
		if err := deps.Registry.Register(t); err != nil {
			deps.Logger.Warn("Failed to register tool",
				zap.String("tool", t.Name()),
				zap.Error(err),
			)
		} else {
			deps.Logger.Info("Registered tool", zap.String("tool", t.Name()))
			registered++
		}
	}

	// ── MCP servers (hot-plugged from mcp.json) ──
	if deps.MCPManager != nil {
		deps.MCPManager.InitFromConfig()
	}

	deps.Logger.Info("Tool layer initialized",
		zap.Int("total_registered", registered),
	)

	return registered
}
