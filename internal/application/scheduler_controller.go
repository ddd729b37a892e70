package application

import (
	"fmt"
	"time"

	"github.com/bizclaw/bizclaw/internal/domain/scheduler"
	"github.com/bizclaw/bizclaw/internal/interfaces/telegram"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// schedulerController adapts the persistent TaskStore to
// telegram.SchedulerController, the same plain-struct translation
// orchestratorController does for the agent pool. The engine's tick loop
// picks up new tasks on its next pass — the controller only mutates the
// store.
type schedulerController struct {
	store *scheduler.TaskStore
	log   *zap.Logger
}

func newSchedulerController(store *scheduler.TaskStore, log *zap.Logger) *schedulerController {
	return &schedulerController{store: store, log: log}
}

func (c *schedulerController) ListTasks() []telegram.TaskSummary {
	tasks := c.store.List()
	out := make([]telegram.TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		next := ""
		if t.NextRun != nil {
			next = t.NextRun.UTC().Format(time.RFC3339)
		}
		out = append(out, telegram.TaskSummary{
			ID:        t.ID,
			Name:      t.Name,
			Status:    string(t.Status),
			NextRun:   next,
			RunCount:  t.RunCount,
			FailCount: t.FailCount,
		})
	}
	return out
}

func (c *schedulerController) AddAgentTask(name, cronExpr, prompt string) (string, error) {
	id := uuid.NewString()[:8]
	task, err := scheduler.NewCronTask(id, name, cronExpr, scheduler.Action{
		Kind:   scheduler.ActionAgentPrompt,
		Prompt: prompt,
	})
	if err != nil {
		return "", err
	}
	if err := c.store.Save(task); err != nil {
		return "", err
	}
	c.log.Info("Scheduled task added",
		zap.String("id", id),
		zap.String("cron", cronExpr),
	)
	return id, nil
}

func (c *schedulerController) PauseTask(id string) error {
	task := c.store.Get(id)
	if task == nil {
		return fmt.Errorf("task %s not found", id)
	}
	task.Disable()
	return c.store.Save(task)
}

func (c *schedulerController) ResumeTask(id string) error {
	task := c.store.Get(id)
	if task == nil {
		return fmt.Errorf("task %s not found", id)
	}
	if err := task.Enable(time.Now().UTC()); err != nil {
		return err
	}
	return c.store.Save(task)
}

func (c *schedulerController) RemoveTask(id string) error {
	if c.store.Get(id) == nil {
		return fmt.Errorf("task %s not found", id)
	}
	return c.store.Delete(id)
}
