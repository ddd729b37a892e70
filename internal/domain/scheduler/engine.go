package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bizclaw/bizclaw/pkg/safego"
	"go.uber.org/zap"
)

// NotifyPriority distinguishes routine task notifications from the urgent
// escalation fired once a task exhausts its retry ladder.
type NotifyPriority string

const (
	NotifyNormal NotifyPriority = "normal"
	NotifyUrgent NotifyPriority = "urgent"
)

// Notification is one record of a task firing, successfully or not.
type Notification struct {
	Title     string
	Body      string
	Source    string
	Priority  NotifyPriority
	CreatedAt time.Time
}

// Notifier delivers a Notification somewhere an operator or agent will see
// it (Telegram, the Admin API's audit feed, a webhook). Kept as a small
// interface so the engine doesn't depend on any specific channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// AgentPrompter sends a prompt to a named agent and returns its response,
// used for ActionAgentPrompt tasks. Implemented by the orchestrator in the
// wired application.
type AgentPrompter interface {
	Prompt(ctx context.Context, agentName, prompt string) (string, error)
}

// Engine runs the scheduler's fixed-cadence tick loop: every TickInterval
// it finds due tasks, fires their action, applies ScheduleRetry/MarkSuccess,
// and persists. Grounded on cron_service.go's ticker-based scheduleLoop,
// generalized from a single minute ticker and SQL-backed jobs to a
// configurable interval over the JSON-backed TaskStore.
type Engine struct {
	store    *TaskStore
	notifier Notifier
	prompter AgentPrompter
	http     *http.Client
	log      *zap.Logger

	tickInterval time.Duration
	stop         chan struct{}
}

// NewEngine builds a scheduler engine.
func NewEngine(store *TaskStore, notifier Notifier, prompter AgentPrompter, tickInterval time.Duration, log *zap.Logger) *Engine {
	if tickInterval <= 0 {
		tickInterval = 10 * time.Second
	}
	return &Engine{
		store:        store,
		notifier:     notifier,
		prompter:     prompter,
		http:         &http.Client{Timeout: 30 * time.Second},
		log:          log,
		tickInterval: tickInterval,
		stop:         make(chan struct{}),
	}
}

// Start launches the tick loop in a panic-recovering background goroutine.
func (e *Engine) Start(ctx context.Context) {
	safego.Go(e.log, "scheduler-tick-loop", func() {
		ticker := time.NewTicker(e.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case now := <-ticker.C:
				e.runDue(ctx, now)
			}
		}
	})
}

// Stop ends the tick loop.
func (e *Engine) Stop() {
	close(e.stop)
}

func (e *Engine) runDue(ctx context.Context, now time.Time) {
	due := e.store.Due(now)
	for _, task := range due {
		task := task
		safego.Go(e.log, "scheduler-task-"+task.ID, func() {
			e.execute(ctx, task)
		})
	}
}

// execute fires one task's action and applies the retry ladder, exactly
// mirroring engine.rs: success resets fail_count and re-arms recurring
// triggers; failure schedules a retry or, once the ladder is exhausted,
// raises an urgent notification.
func (e *Engine) execute(ctx context.Context, task *Task) {
	// last_run/run_count record the attempt itself, stamped before the
	// action runs and regardless of its outcome.
	now := time.Now().UTC()
	task.Status = StatusRunning
	task.LastRun = &now
	task.RunCount++
	_ = e.store.Save(task)

	result, err := e.runAction(ctx, task)

	if err == nil {
		if advErr := task.Advance(); advErr != nil {
			e.log.Warn("failed to advance task schedule", zap.String("task", task.ID), zap.Error(advErr))
		}
		e.log.Info("task succeeded", zap.String("task", task.Name), zap.String("result", truncate(result, 200)))
		e.notify(ctx, Notification{
			Title: task.Name, Body: result, Source: "scheduler",
			Priority: NotifyNormal, CreatedAt: time.Now().UTC(),
		})
	} else {
		willRetry := task.ScheduleRetry(err.Error())
		if !willRetry {
			e.log.Error("task permanently failed",
				zap.String("task", task.Name), zap.Int("attempts", task.FailCount), zap.Error(err))
			e.notify(ctx, Notification{
				Title: fmt.Sprintf("Task Failed: %s", task.Name),
				Body: fmt.Sprintf("Task %q permanently failed after %d attempts.\nLast error: %s\nAction: %s",
					task.Name, task.FailCount, truncate(err.Error(), 200), task.Action.Kind),
				Source:    "scheduler",
				Priority:  NotifyUrgent,
				CreatedAt: time.Now().UTC(),
			})
		}
	}

	_ = e.store.Save(task)
}

func (e *Engine) notify(ctx context.Context, n Notification) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.log.Warn("failed to deliver scheduler notification", zap.Error(err))
	}
}

func (e *Engine) runAction(ctx context.Context, task *Task) (string, error) {
	switch task.Action.Kind {
	case ActionNotify:
		return task.Action.NotifyMessage, nil
	case ActionAgentPrompt:
		if e.prompter == nil {
			return "", fmt.Errorf("no agent prompter configured")
		}
		return e.prompter.Prompt(ctx, task.AgentName, task.Action.Prompt)
	case ActionWebhook:
		return e.executeWebhook(ctx, task.Action)
	default:
		return "", fmt.Errorf("unknown action kind %q", task.Action.Kind)
	}
}

func (e *Engine) executeWebhook(ctx context.Context, action Action) (string, error) {
	method := strings.ToUpper(action.WebhookMethod)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if action.WebhookBody != "" {
		body = strings.NewReader(action.WebhookBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, action.WebhookURL, body)
	if err != nil {
		return "", fmt.Errorf("build webhook request: %w", err)
	}
	for k, v := range action.WebhookHeaders {
		req.Header.Set(k, v)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook send failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return string(respBody), nil
	}
	return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
