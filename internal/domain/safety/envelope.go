package safety

import "go.uber.org/zap"

// Config configures the five guards that make up one agent loop's Safety
// Envelope.
type Config struct {
	AllowedCommands  []string
	WorkspaceOnly    bool
	WorkspaceRoot    string
	ExtraDeniedHosts []string
	LoopCapacity     int
	LoopMaxRepeats   int
}

// Envelope bundles the command allowlist, path guard, SSRF guard,
// injection scanner and loop detector behind one entry point the agent
// loop calls at each tool-call boundary. Mirrors guardrails.go's pattern
// of grouping related stateful guards behind a single service type backed
// by a logger for observability.
type Envelope struct {
	Commands  *CommandAllowlist
	Paths     *PathGuard
	SSRF      *SSRFGuard
	Injection *InjectionScanner
	Loops     *LoopDetector

	log *zap.Logger
}

// NewEnvelope constructs a fully wired Safety Envelope from config.
func NewEnvelope(cfg Config, log *zap.Logger) *Envelope {
	return &Envelope{
		Commands:  NewCommandAllowlist(cfg.AllowedCommands),
		Paths:     NewPathGuard(cfg.WorkspaceOnly, cfg.WorkspaceRoot),
		SSRF:      NewSSRFGuard(cfg.ExtraDeniedHosts),
		Injection: NewInjectionScanner(),
		Loops:     NewLoopDetector(cfg.LoopCapacity, cfg.LoopMaxRepeats),
		log:       log,
	}
}

// CheckToolCall runs the loop detector and then the allowlist, path and
// SSRF guards ahead of a tool invocation. A non-empty reason means the
// call must be refused; the caller is responsible for surfacing it as a
// Security-kind AppError.
//
// The loop detector goes first so every attempt — including ones the
// later guards would refuse — lands in the recency deque. A call the
// allowlist keeps rejecting still escalates to a loop signal once it
// repeats past the threshold.
func (e *Envelope) CheckToolCall(tool, command, path, url, argsForLoop string) (allowed bool, reason string) {
	if detected, loopReason := e.Loops.Record(tool, argsForLoop); detected {
		e.log.Warn("tool call loop detected", zap.String("tool", tool), zap.String("reason", loopReason))
		return false, loopReason
	}
	if command != "" && !e.Commands.IsCommandAllowed(command) {
		return false, "command not in allowlist"
	}
	if path != "" && !e.Paths.IsPathAllowed(path) {
		return false, "path denied by policy"
	}
	if url != "" {
		if r := e.SSRF.IsURLBlocked(url); r != "" {
			return false, r
		}
	}
	return true, ""
}

// ScanText runs the advisory injection scanner over free-form text (a tool
// result or model output) and logs a warning on any match. It never
// blocks.
func (e *Envelope) ScanText(source, text string) ScanResult {
	result := e.Injection.Scan(text)
	if result.Matched {
		e.log.Warn("possible prompt injection detected",
			zap.String("source", source),
			zap.Strings("families", result.FamilyNames))
	}
	return result
}
