package scheduler

import (
	"path/filepath"
	"testing"
	"time"
)

func TestTaskStore_SaveAndGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTaskStore(filepath.Join(dir, "tasks.json"))
	if err != nil {
		t.Fatalf("new task store: %v", err)
	}
	task := NewOnceTask("t1", "greet", time.Now().UTC(), Action{Kind: ActionNotify, NotifyMessage: "hi"})
	if err := store.Save(task); err != nil {
		t.Fatalf("save: %v", err)
	}
	got := store.Get("t1")
	if got == nil || got.Name != "greet" {
		t.Fatalf("expected to retrieve saved task, got %+v", got)
	}
}

func TestTaskStore_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")

	store1, err := NewTaskStore(path)
	if err != nil {
		t.Fatalf("new task store: %v", err)
	}
	task := NewIntervalTask("t1", "poll", 30, Action{Kind: ActionWebhook, WebhookURL: "https://example.com"})
	if err := store1.Save(task); err != nil {
		t.Fatalf("save: %v", err)
	}

	store2, err := NewTaskStore(path)
	if err != nil {
		t.Fatalf("reload task store: %v", err)
	}
	got := store2.Get("t1")
	if got == nil || got.Action.WebhookURL != "https://example.com" {
		t.Fatalf("expected reloaded task to match, got %+v", got)
	}
}

func TestTaskStore_Delete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTaskStore(filepath.Join(dir, "tasks.json"))
	if err != nil {
		t.Fatalf("new task store: %v", err)
	}
	task := NewOnceTask("t1", "greet", time.Now().UTC(), Action{Kind: ActionNotify})
	_ = store.Save(task)

	if err := store.Delete("t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Get("t1") != nil {
		t.Error("expected task to be gone after delete")
	}
	if err := store.Delete("missing"); err == nil {
		t.Error("expected error deleting nonexistent task")
	}
}

func TestTaskStore_Due(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTaskStore(filepath.Join(dir, "tasks.json"))
	if err != nil {
		t.Fatalf("new task store: %v", err)
	}

	now := time.Now().UTC()
	due := NewOnceTask("due", "due-now", now.Add(-time.Minute), Action{Kind: ActionNotify})
	notDue := NewOnceTask("future", "not-yet", now.Add(time.Hour), Action{Kind: ActionNotify})
	_ = store.Save(due)
	_ = store.Save(notDue)

	results := store.Due(now)
	if len(results) != 1 || results[0].ID != "due" {
		t.Fatalf("expected exactly the due task, got %+v", results)
	}
}

func TestTaskStore_List(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTaskStore(filepath.Join(dir, "tasks.json"))
	if err != nil {
		t.Fatalf("new task store: %v", err)
	}
	_ = store.Save(NewOnceTask("t1", "a", time.Now().UTC(), Action{Kind: ActionNotify}))
	_ = store.Save(NewOnceTask("t2", "b", time.Now().UTC(), Action{Kind: ActionNotify}))
	if got := len(store.List()); got != 2 {
		t.Errorf("expected 2 tasks, got %d", got)
	}
}
