package tasks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lysyi3m/scripta/app/story"
)

// settle decides which lifecycle errors end a task quietly. Oracle failures and
// stale story state are left for the next tick; anything else is returned so
// the scheduler retries it.
func settle(task TaskInterface, err error) error {
	if err == nil {
		return nil
	}
	if story.IsOracleError(err) {
		slog.Warn("Task skipped, oracle unavailable", "type", string(task.GetType()), "date", task.GetDate(), "error", err)
		return nil
	}
	if errors.Is(err, story.ErrStoryNotFound) || errors.Is(err, story.ErrStoryNotActive) {
		slog.Debug("Task skipped, story not in expected state", "type", string(task.GetType()), "date", task.GetDate(), "error", err)
		return nil
	}
	return err
}

type CreateStoryTask struct {
	Task
	lifecycle Lifecycle
}

func NewCreateStoryTask(date string, lifecycle Lifecycle) *CreateStoryTask {
	return &CreateStoryTask{Task: NewTask(TaskTypeCreateStory, date), lifecycle: lifecycle}
}

func (t *CreateStoryTask) Execute(ctx context.Context) error {
	s, created, err := t.lifecycle.CreateDaily(ctx, t.Date)
	if err != nil {
		return settle(t, err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"date", t.Date,
		"duration", t.GetDuration(),
		"created", created,
		"title", s.Title)
	return nil
}

type IdleCheckTask struct {
	Task
	lifecycle Lifecycle
	now       func() time.Time
}

func NewIdleCheckTask(date string, lifecycle Lifecycle, now func() time.Time) *IdleCheckTask {
	return &IdleCheckTask{Task: NewTask(TaskTypeIdleCheck, date), lifecycle: lifecycle, now: now}
}

func (t *IdleCheckTask) Execute(ctx context.Context) error {
	c, err := t.lifecycle.CheckIdle(ctx, t.Date, t.now())
	if err != nil {
		return settle(t, err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"date", t.Date,
		"duration", t.GetDuration(),
		"ghostwritten", c != nil)
	return nil
}

type CloseStoryTask struct {
	Task
	lifecycle Lifecycle
}

func NewCloseStoryTask(date string, lifecycle Lifecycle) *CloseStoryTask {
	return &CloseStoryTask{Task: NewTask(TaskTypeCloseStory, date), lifecycle: lifecycle}
}

func (t *CloseStoryTask) Execute(ctx context.Context) error {
	closed, err := t.lifecycle.Close(ctx, t.Date)
	if err != nil {
		return settle(t, err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"date", t.Date,
		"duration", t.GetDuration(),
		"closed", closed)
	return nil
}

type SummarizeStoryTask struct {
	Task
	lifecycle Lifecycle
}

func NewSummarizeStoryTask(date string, lifecycle Lifecycle) *SummarizeStoryTask {
	return &SummarizeStoryTask{Task: NewTask(TaskTypeSummarizeStory, date), lifecycle: lifecycle}
}

func (t *SummarizeStoryTask) Execute(ctx context.Context) error {
	set, err := t.lifecycle.Summarize(ctx, t.Date)
	if err != nil {
		return settle(t, err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"date", t.Date,
		"duration", t.GetDuration(),
		"summarized", set)
	return nil
}

type SendRecapTask struct {
	Task
	lifecycle Lifecycle
}

func NewSendRecapTask(date string, lifecycle Lifecycle) *SendRecapTask {
	return &SendRecapTask{Task: NewTask(TaskTypeSendRecap, date), lifecycle: lifecycle}
}

func (t *SendRecapTask) Execute(ctx context.Context) error {
	sent, err := t.lifecycle.SendRecap(ctx, t.Date)
	if err != nil && !sent {
		return settle(t, err)
	}
	if err != nil {
		// The recap is claimed; a retry would not resend it.
		slog.Error("Recap delivered partially", "date", t.Date, "error", err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"date", t.Date,
		"duration", t.GetDuration(),
		"sent", sent)
	return nil
}

type ForceGhostwriterTask struct {
	Task
	lifecycle Lifecycle
}

func NewForceGhostwriterTask(date string, lifecycle Lifecycle) *ForceGhostwriterTask {
	t := &ForceGhostwriterTask{Task: NewTask(TaskTypeForceGhostwriter, date), lifecycle: lifecycle}
	t.MaxRetries = 0
	return t
}

func (t *ForceGhostwriterTask) Execute(ctx context.Context) error {
	c, err := t.lifecycle.ForceGhostwriter(ctx, t.Date)
	if err != nil {
		return settle(t, err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"date", t.Date,
		"duration", t.GetDuration(),
		"id", c.ID)
	return nil
}
