package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/scripta/app/story"
)

// TaskSchedulerInterface is what the application and the admin API use to run
// lifecycle work in the background.
//
//	scheduler := NewScheduler(lifecycle, store, cfg)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.Trigger(TaskTypeCloseStory, "2025-06-15")
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	Trigger(taskType TaskType, date string) error
}

// Lifecycle is the set of story operations the tasks drive.
type Lifecycle interface {
	CreateDaily(ctx context.Context, asOf string) (*story.Story, bool, error)
	CheckIdle(ctx context.Context, asOf string, now time.Time) (*story.Contribution, error)
	ForceGhostwriter(ctx context.Context, asOf string) (*story.Contribution, error)
	Close(ctx context.Context, asOf string) (bool, error)
	Summarize(ctx context.Context, asOf string) (bool, error)
	SendRecap(ctx context.Context, date string) (bool, error)
}

type StoryReader interface {
	GetStory(ctx context.Context, date string) (*story.Story, error)
}
