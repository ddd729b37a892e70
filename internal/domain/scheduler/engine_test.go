package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notifications)
}

func (f *fakeNotifier) last() Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notifications[len(f.notifications)-1]
}

type fakePrompter struct {
	response string
	err      error
}

func (f *fakePrompter) Prompt(ctx context.Context, agentName, prompt string) (string, error) {
	return f.response, f.err
}

func newTestEngine(t *testing.T, notifier Notifier, prompter AgentPrompter) (*Engine, *TaskStore) {
	t.Helper()
	store, err := NewTaskStore(filepath.Join(t.TempDir(), "tasks.json"))
	if err != nil {
		t.Fatalf("new task store: %v", err)
	}
	return NewEngine(store, notifier, prompter, time.Second, zap.NewNop()), store
}

func TestEngine_NotifyAction_Succeeds(t *testing.T) {
	notifier := &fakeNotifier{}
	engine, store := newTestEngine(t, notifier, nil)

	task := NewOnceTask("t1", "say hi", time.Now().UTC(), Action{Kind: ActionNotify, NotifyMessage: "hello"})
	_ = store.Save(task)

	engine.execute(context.Background(), task)

	if task.Status != StatusDisabled {
		t.Errorf("expected a completed one-shot task to end up disabled, got %s", task.Status)
	}
	if task.RunCount != 1 {
		t.Errorf("expected run count 1 after the attempt, got %d", task.RunCount)
	}
	if task.LastRun == nil {
		t.Error("expected last run to be stamped")
	}
	if notifier.count() != 1 {
		t.Fatalf("expected one notification, got %d", notifier.count())
	}
	if notifier.last().Priority != NotifyNormal {
		t.Errorf("expected normal priority, got %s", notifier.last().Priority)
	}
}

func TestEngine_AgentPromptAction_Succeeds(t *testing.T) {
	notifier := &fakeNotifier{}
	prompter := &fakePrompter{response: "done"}
	engine, store := newTestEngine(t, notifier, prompter)

	task := NewOnceTask("t1", "ask agent", time.Now().UTC(), Action{Kind: ActionAgentPrompt, Prompt: "summarize"})
	task.AgentName = "default"
	_ = store.Save(task)

	engine.execute(context.Background(), task)

	if task.Status != StatusDisabled {
		t.Errorf("expected a completed one-shot task to end up disabled, got %s", task.Status)
	}
}

func TestEngine_WebhookAction_Succeeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := &fakeNotifier{}
	engine, store := newTestEngine(t, notifier, nil)

	task := NewOnceTask("t1", "ping", time.Now().UTC(), Action{Kind: ActionWebhook, WebhookURL: server.URL, WebhookMethod: "POST"})
	_ = store.Save(task)

	engine.execute(context.Background(), task)

	if task.Status != StatusDisabled {
		t.Errorf("expected a completed one-shot task to end up disabled, got %s", task.Status)
	}
}

func TestEngine_WebhookAction_FailureSchedulesRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := &fakeNotifier{}
	engine, store := newTestEngine(t, notifier, nil)

	task := NewOnceTask("t1", "flaky-hook", time.Now().UTC(), Action{Kind: ActionWebhook, WebhookURL: server.URL})
	_ = store.Save(task)

	engine.execute(context.Background(), task)

	if task.Status != StatusRetryPending {
		t.Errorf("expected retry_pending status, got %s", task.Status)
	}
	if task.RunCount != 1 {
		t.Errorf("expected the failed attempt to count toward run count, got %d", task.RunCount)
	}
	if task.LastRun == nil {
		t.Error("expected last run stamped even though the attempt failed")
	}
	if notifier.count() != 0 {
		t.Errorf("expected no notification on a retryable failure, got %d", notifier.count())
	}
}

func TestEngine_PermanentFailure_FiresUrgentNotification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := &fakeNotifier{}
	engine, store := newTestEngine(t, notifier, nil)

	task := NewOnceTask("t1", "always-fails", time.Now().UTC(), Action{Kind: ActionWebhook, WebhookURL: server.URL})
	task.Retry = RetryPolicy{MaxRetries: 1, BaseDelaySecs: 0, BackoffMultiplier: 2.0, MaxDelaySecs: 1}
	_ = store.Save(task)

	// First failure still has one retry left on the ladder.
	engine.execute(context.Background(), task)
	if task.Status != StatusRetryPending {
		t.Fatalf("expected retry_pending after first failure, got %s", task.Status)
	}
	if notifier.count() != 0 {
		t.Fatalf("expected no notification yet, got %d", notifier.count())
	}

	// Second failure exhausts the single-retry ladder.
	engine.execute(context.Background(), task)

	if !task.IsPermanentlyFailed() {
		t.Fatalf("expected task to be permanently failed, status=%s failCount=%d", task.Status, task.FailCount)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected exactly one urgent notification, got %d", notifier.count())
	}
	if notifier.last().Priority != NotifyUrgent {
		t.Errorf("expected urgent priority, got %s", notifier.last().Priority)
	}
}

func TestEngine_NoPrompter_ReturnsError(t *testing.T) {
	notifier := &fakeNotifier{}
	engine, store := newTestEngine(t, notifier, nil)

	task := NewOnceTask("t1", "ask agent", time.Now().UTC(), Action{Kind: ActionAgentPrompt, Prompt: "hi"})
	task.Retry = RetryPolicy{MaxRetries: 1, BaseDelaySecs: 0, BackoffMultiplier: 1, MaxDelaySecs: 1}
	_ = store.Save(task)

	engine.execute(context.Background(), task)

	if task.Status != StatusRetryPending && task.Status != StatusFailed {
		t.Errorf("expected task to have failed without a prompter configured, got %s", task.Status)
	}
}
