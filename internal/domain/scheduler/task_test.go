package scheduler

import (
	"testing"
	"time"
)

func TestNewOnceTask_ShouldRun(t *testing.T) {
	past := time.Now().UTC().Add(-time.Minute)
	task := NewOnceTask("t1", "say hi", past, Action{Kind: ActionNotify, NotifyMessage: "hi"})
	if !task.ShouldRun(time.Now().UTC()) {
		t.Error("expected task scheduled in the past to be due")
	}

	future := NewOnceTask("t2", "later", time.Now().UTC().Add(time.Hour), Action{Kind: ActionNotify})
	if future.ShouldRun(time.Now().UTC()) {
		t.Error("expected task scheduled in the future to not be due")
	}
}

func TestTask_ScheduleRetry_Ladder(t *testing.T) {
	task := NewOnceTask("t1", "flaky", time.Now().UTC(), Action{Kind: ActionNotify})
	task.Retry = RetryPolicy{MaxRetries: 3, BaseDelaySecs: 30, BackoffMultiplier: 2.0, MaxDelaySecs: 300}

	if willRetry := task.ScheduleRetry("boom"); !willRetry {
		t.Fatal("expected first failure to schedule a retry")
	}
	if task.Status != StatusRetryPending {
		t.Errorf("expected retry_pending, got %s", task.Status)
	}
	if task.FailCount != 1 {
		t.Errorf("expected fail count 1, got %d", task.FailCount)
	}
	wantDelay := 30 * time.Second
	gotDelay := task.NextRun.Sub(time.Now().UTC())
	if gotDelay < wantDelay-2*time.Second || gotDelay > wantDelay+2*time.Second {
		t.Errorf("expected ~30s delay, got %v", gotDelay)
	}

	task.ScheduleRetry("boom again")
	gotDelay = task.NextRun.Sub(time.Now().UTC())
	wantDelay = 60 * time.Second
	if gotDelay < wantDelay-2*time.Second || gotDelay > wantDelay+2*time.Second {
		t.Errorf("expected ~60s delay on second attempt, got %v", gotDelay)
	}

	willRetry := task.ScheduleRetry("boom a third time")
	if !willRetry {
		t.Fatal("expected third failure to still schedule a retry (max retries is 3)")
	}

	willRetry = task.ScheduleRetry("boom a fourth time")
	if willRetry {
		t.Fatal("expected fourth failure to exhaust the retry ladder")
	}
	if task.Status != StatusFailed {
		t.Errorf("expected failed status, got %s", task.Status)
	}
	if !task.IsPermanentlyFailed() {
		t.Error("expected task to report permanently failed")
	}
}

func TestTask_ScheduleRetry_DelayCap(t *testing.T) {
	task := NewOnceTask("t1", "flaky", time.Now().UTC(), Action{Kind: ActionNotify})
	task.Retry = RetryPolicy{MaxRetries: 10, BaseDelaySecs: 30, BackoffMultiplier: 2.0, MaxDelaySecs: 100}
	for i := 0; i < 5; i++ {
		task.ScheduleRetry("boom")
	}
	gotDelay := task.NextRun.Sub(time.Now().UTC())
	if gotDelay > 102*time.Second {
		t.Errorf("expected delay capped near 100s, got %v", gotDelay)
	}
}

func TestTask_MarkSuccess_ResetsFailureState(t *testing.T) {
	task := NewOnceTask("t1", "flaky", time.Now().UTC(), Action{Kind: ActionNotify})
	task.ScheduleRetry("boom")
	task.MarkSuccess()
	if task.FailCount != 0 || task.LastError != "" {
		t.Error("expected failure state reset after success")
	}
	if task.Status != StatusCompleted {
		t.Errorf("expected completed status, got %s", task.Status)
	}
	if task.RunCount != 0 {
		t.Errorf("expected run count untouched by MarkSuccess, got %d", task.RunCount)
	}
}

func TestTask_Advance_OnceTerminates(t *testing.T) {
	task := NewOnceTask("t1", "once", time.Now().UTC(), Action{Kind: ActionNotify})
	if err := task.Advance(); err != nil {
		t.Fatalf("advance error: %v", err)
	}
	if task.NextRun != nil {
		t.Error("expected once task to have nil NextRun after completion")
	}
}

func TestTask_Advance_IntervalReArms(t *testing.T) {
	task := NewIntervalTask("t1", "tick", 60, Action{Kind: ActionNotify})
	if err := task.Advance(); err != nil {
		t.Fatalf("advance error: %v", err)
	}
	if task.Status != StatusPending {
		t.Errorf("expected pending after re-arm, got %s", task.Status)
	}
	if task.NextRun == nil {
		t.Fatal("expected interval task to have a new NextRun")
	}
}

func TestTask_Advance_CronReArms(t *testing.T) {
	task, err := NewCronTask("t1", "daily", "0 0 * * *", Action{Kind: ActionNotify})
	if err != nil {
		t.Fatalf("new cron task: %v", err)
	}
	if err := task.Advance(); err != nil {
		t.Fatalf("advance error: %v", err)
	}
	if task.NextRun == nil || !task.NextRun.After(time.Now().UTC()) {
		t.Errorf("expected cron task to re-arm to a future run, got %v", task.NextRun)
	}
	if task.Status != StatusPending {
		t.Errorf("expected pending after re-arm, got %s", task.Status)
	}
}
