package scheduler

import (
	"fmt"
	"math"
	"time"
)

// ActionKind is the three things a scheduled task can trigger.
type ActionKind string

const (
	ActionAgentPrompt ActionKind = "agent_prompt"
	ActionWebhook     ActionKind = "webhook"
	ActionNotify      ActionKind = "notify"
)

// Action is one task's trigger payload. Only the field matching Kind is
// meaningful.
type Action struct {
	Kind          ActionKind        `json:"kind"`
	Prompt        string            `json:"prompt,omitempty"`
	WebhookURL    string            `json:"webhook_url,omitempty"`
	WebhookMethod string            `json:"webhook_method,omitempty"`
	WebhookBody   string            `json:"webhook_body,omitempty"`
	WebhookHeaders map[string]string `json:"webhook_headers,omitempty"`
	NotifyMessage string            `json:"notify_message,omitempty"`
}

// TriggerKind is how a task's next run is computed.
type TriggerKind string

const (
	TriggerOnce     TriggerKind = "once"
	TriggerCron     TriggerKind = "cron"
	TriggerInterval TriggerKind = "interval"
)

// Trigger describes when a task fires.
type Trigger struct {
	Kind           TriggerKind `json:"kind"`
	At             time.Time   `json:"at,omitempty"`
	CronExpression string      `json:"cron_expression,omitempty"`
	EverySeconds   int64       `json:"every_seconds,omitempty"`
}

// Status is a scheduled task's lifecycle state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusDisabled     Status = "disabled"
	StatusRetryPending Status = "retry_pending"
)

// RetryPolicy is the exponential-backoff ladder applied to failed runs.
// Defaults (3 retries, 30s base delay, 2.0 multiplier, 300s cap) match the
// scheduler engine's original retry semantics exactly.
type RetryPolicy struct {
	MaxRetries        int
	BaseDelaySecs     int64
	BackoffMultiplier float64
	MaxDelaySecs      int64
}

// DefaultRetryPolicy returns the platform default ladder: 30s, 60s, 120s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelaySecs: 30, BackoffMultiplier: 2.0, MaxDelaySecs: 300}
}

// nextDelay returns the delay before the given zero-indexed attempt, or
// false once max_retries is exhausted.
func (p RetryPolicy) nextDelay(attempt int) (int64, bool) {
	if attempt >= p.MaxRetries {
		return 0, false
	}
	delay := int64(float64(p.BaseDelaySecs) * math.Pow(p.BackoffMultiplier, float64(attempt)))
	if delay > p.MaxDelaySecs {
		delay = p.MaxDelaySecs
	}
	return delay, true
}

// Task is one persisted scheduled job: what to do (Action), when
// (Trigger), and its retry state. Generalizes cron_service.go's CronJob to
// three trigger kinds and a full backoff ladder.
type Task struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Action       Action      `json:"action"`
	Trigger      Trigger     `json:"trigger"`
	Status       Status      `json:"status"`
	AgentName    string      `json:"agent_name,omitempty"`
	NotifyVia    string      `json:"notify_via,omitempty"`
	DeliverTo    string      `json:"deliver_to,omitempty"`
	Retry        RetryPolicy `json:"retry"`
	FailCount    int         `json:"fail_count"`
	LastError    string      `json:"last_error,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	LastRun      *time.Time  `json:"last_run,omitempty"`
	NextRun      *time.Time  `json:"next_run,omitempty"`
	RunCount     int         `json:"run_count"`
	RetryAttempt int         `json:"retry_attempt,omitempty"`
}

// NewOnceTask creates a one-time task firing at `at`.
func NewOnceTask(id, name string, at time.Time, action Action) *Task {
	return &Task{
		ID: id, Name: name, Action: action,
		Trigger: Trigger{Kind: TriggerOnce, At: at},
		Status:  StatusPending, Retry: DefaultRetryPolicy(),
		CreatedAt: time.Now().UTC(), NextRun: &at,
	}
}

// NewIntervalTask creates a task firing every N seconds, starting one
// interval from now.
func NewIntervalTask(id, name string, everySecs int64, action Action) *Task {
	next := time.Now().UTC().Add(time.Duration(everySecs) * time.Second)
	return &Task{
		ID: id, Name: name, Action: action,
		Trigger: Trigger{Kind: TriggerInterval, EverySeconds: everySecs},
		Status:  StatusPending, Retry: DefaultRetryPolicy(),
		CreatedAt: time.Now().UTC(), NextRun: &next,
	}
}

// NewCronTask creates a task firing on the given five-field cron
// expression. Returns an error if the expression fails to parse.
func NewCronTask(id, name, expression string, action Action) (*Task, error) {
	sched, err := ParseSchedule(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	now := time.Now().UTC()
	next, err := sched.Next(now)
	if err != nil {
		return nil, err
	}
	return &Task{
		ID: id, Name: name, Action: action,
		Trigger: Trigger{Kind: TriggerCron, CronExpression: expression},
		Status:  StatusPending, Retry: DefaultRetryPolicy(),
		CreatedAt: now, NextRun: &next,
	}, nil
}

// ShouldRun reports whether the task is due at `now`: pending/retry-pending
// tasks with a NextRun at or before now.
func (t *Task) ShouldRun(now time.Time) bool {
	if t.Status != StatusPending && t.Status != StatusRetryPending {
		return false
	}
	return t.NextRun != nil && !t.NextRun.After(now)
}

// ScheduleRetry records a failed run and either schedules a retry (return
// true) or marks the task permanently failed once the retry ladder is
// exhausted (return false). Mirrors tasks.rs's schedule_retry exactly.
func (t *Task) ScheduleRetry(errMsg string) bool {
	t.FailCount++
	t.LastError = errMsg

	if delay, ok := t.Retry.nextDelay(t.FailCount - 1); ok {
		retryAt := time.Now().UTC().Add(time.Duration(delay) * time.Second)
		t.Status = StatusRetryPending
		t.RetryAttempt = t.FailCount
		t.NextRun = &retryAt
		return true
	}

	t.Status = StatusFailed
	t.NextRun = nil
	return false
}

// MarkSuccess resets the failure ladder and marks the task completed.
// LastRun/RunCount are stamped by the engine when the run starts, not
// here — they count attempts, not successes.
func (t *Task) MarkSuccess() {
	t.FailCount = 0
	t.LastError = ""
	t.Status = StatusCompleted
}

// Disable cancels the task. An in-flight execution (already captured by the
// tick loop before this call) still runs to completion; Disable only
// prevents future ticks from picking it up again.
func (t *Task) Disable() {
	t.Status = StatusDisabled
	t.NextRun = nil
}

// Enable re-arms a previously disabled recurring task, recomputing its next
// run from the current trigger. One-shot tasks that already fired cannot be
// re-enabled since their trigger time has passed.
func (t *Task) Enable(now time.Time) error {
	if t.Trigger.Kind == TriggerOnce {
		return fmt.Errorf("one-shot task %q cannot be re-enabled", t.ID)
	}
	t.Status = StatusPending
	switch t.Trigger.Kind {
	case TriggerInterval:
		next := now.Add(time.Duration(t.Trigger.EverySeconds) * time.Second)
		t.NextRun = &next
	case TriggerCron:
		sched, err := ParseSchedule(t.Trigger.CronExpression)
		if err != nil {
			return err
		}
		next, err := sched.Next(now)
		if err != nil {
			return err
		}
		t.NextRun = &next
	}
	return nil
}

// IsPermanentlyFailed reports whether the task has exhausted its retry
// ladder — this is when an urgent escalation notification should fire.
func (t *Task) IsPermanentlyFailed() bool {
	return t.Status == StatusFailed && t.Retry.MaxRetries > 0 && t.FailCount >= t.Retry.MaxRetries
}

// Advance computes the task's next scheduled run after a successful
// execution, re-arming recurring tasks (cron/interval) and disabling
// one-time tasks.
func (t *Task) Advance() error {
	t.MarkSuccess()
	switch t.Trigger.Kind {
	case TriggerOnce:
		// A one-shot task never fires again: disable it outright rather than
		// leaving it "completed" and eligible for re-evaluation.
		t.Status = StatusDisabled
		t.NextRun = nil
		return nil
	case TriggerInterval:
		next := time.Now().UTC().Add(time.Duration(t.Trigger.EverySeconds) * time.Second)
		t.NextRun = &next
		t.Status = StatusPending
		return nil
	case TriggerCron:
		sched, err := ParseSchedule(t.Trigger.CronExpression)
		if err != nil {
			return err
		}
		next, err := sched.Next(time.Now().UTC())
		if err != nil {
			return err
		}
		t.NextRun = &next
		t.Status = StatusPending
		return nil
	default:
		return fmt.Errorf("unknown trigger kind %q", t.Trigger.Kind)
	}
}
