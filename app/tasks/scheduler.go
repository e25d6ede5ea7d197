package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/scripta/app/metrics"
	"github.com/lysyi3m/scripta/app/story"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

var (
	ErrTaskPending     = errors.New("task already pending")
	ErrUnknownTaskType = errors.New("unknown task type")
)

type Config struct {
	Location          *time.Location
	CreationTime      story.TimeOfDay
	ClosureTime       story.TimeOfDay
	RecapTime         story.TimeOfDay
	IdleCheckInterval time.Duration
	Interval          time.Duration
	WorkerCount       int
}

// Scheduler turns wall-clock time into lifecycle tasks. Each tick derives the
// local date once, evaluates what is due for today and yesterday, and queues
// it for the worker pool.
type Scheduler struct {
	lifecycle Lifecycle
	stories   StoryReader
	cfg       Config
	now       func() time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface

	mu       sync.Mutex
	inflight map[string]bool
	lastRun  map[string]time.Time
}

func NewScheduler(lifecycle Lifecycle, stories StoryReader, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}

	return &Scheduler{
		lifecycle: lifecycle,
		stories:   stories,
		cfg:       cfg,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, 100),
		inflight:  make(map[string]bool),
		lastRun:   make(map[string]time.Time),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.enqueueTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()

	slog.Info("Scheduler started",
		"workers", s.cfg.WorkerCount,
		"interval", s.cfg.Interval,
		"timezone", s.cfg.Location.String(),
		"creation", s.cfg.CreationTime.String(),
		"closure", s.cfg.ClosureTime.String(),
		"recap", s.cfg.RecapTime.String())
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Trigger queues one task of the given type for date, unless the same work is
// already queued or running.
func (s *Scheduler) Trigger(taskType TaskType, date string) error {
	if !story.ValidDate(date) {
		return fmt.Errorf("%w: %q", story.ErrInvalidDate, date)
	}

	var task TaskInterface
	switch taskType {
	case TaskTypeCreateStory:
		task = NewCreateStoryTask(date, s.lifecycle)
	case TaskTypeIdleCheck:
		task = NewIdleCheckTask(date, s.lifecycle, s.now)
	case TaskTypeCloseStory:
		task = NewCloseStoryTask(date, s.lifecycle)
	case TaskTypeSummarizeStory:
		task = NewSummarizeStoryTask(date, s.lifecycle)
	case TaskTypeSendRecap:
		task = NewSendRecapTask(date, s.lifecycle)
	case TaskTypeForceGhostwriter:
		task = NewForceGhostwriterTask(date, s.lifecycle)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTaskType, taskType)
	}

	return s.enqueueOnce(task)
}

func (s *Scheduler) enqueueTasks() {
	for _, task := range s.dueTasks(s.ctx, s.now()) {
		_ = s.enqueueOnce(task)
	}
}

// dueTasks evaluates the lifecycle rules at instant now.
func (s *Scheduler) dueTasks(ctx context.Context, now time.Time) []TaskInterface {
	loc := s.cfg.Location
	today := story.DateOf(now, loc)
	yesterday, _ := story.PreviousDate(today)

	creationAt, _ := s.cfg.CreationTime.On(today, loc)
	closureAt, _ := s.cfg.ClosureTime.On(today, loc)
	recapAt, _ := s.cfg.RecapTime.On(today, loc)

	var due []TaskInterface

	current, err := s.stories.GetStory(ctx, today)
	if err != nil {
		slog.Warn("Failed to read today's story, skipping tick", "date", today, "error", err)
		return nil
	}

	switch {
	case current == nil:
		if !now.Before(creationAt) && now.Before(closureAt) {
			due = append(due, NewCreateStoryTask(today, s.lifecycle))
		}
	case current.IsActive():
		if !now.Before(closureAt) {
			due = append(due, NewCloseStoryTask(today, s.lifecycle))
		} else if s.every("idle:"+today, now, s.cfg.IdleCheckInterval) {
			due = append(due, NewIdleCheckTask(today, s.lifecycle, s.now))
		}
	case current.Summary == "":
		if s.every("summary:"+today, now, s.cfg.IdleCheckInterval) {
			due = append(due, NewSummarizeStoryTask(today, s.lifecycle))
		}
	}

	previous, err := s.stories.GetStory(ctx, yesterday)
	if err != nil {
		slog.Warn("Failed to read yesterday's story", "date", yesterday, "error", err)
		return due
	}

	switch {
	case previous == nil:
	case previous.IsActive():
		// Missed closure, e.g. the process was down at closure time.
		due = append(due, NewCloseStoryTask(yesterday, s.lifecycle))
	case previous.Summary == "":
		if s.every("summary:"+yesterday, now, s.cfg.IdleCheckInterval) {
			due = append(due, NewSummarizeStoryTask(yesterday, s.lifecycle))
		}
	case previous.RecapSentAt == nil && !now.Before(recapAt):
		if s.every("recap:"+yesterday, now, s.cfg.IdleCheckInterval) {
			due = append(due, NewSendRecapTask(yesterday, s.lifecycle))
		}
	}

	return due
}

// every reports whether at least interval has passed since the last time key
// was due, and records now as that time when it has.
func (s *Scheduler) every(key string, now time.Time, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastRun[key]; ok && now.Sub(last) < interval {
		return false
	}
	s.lastRun[key] = now
	return true
}

func (s *Scheduler) enqueueOnce(task TaskInterface) error {
	key := task.GetKey()

	s.mu.Lock()
	if s.inflight[key] {
		s.mu.Unlock()
		slog.Debug("Task already pending", "key", key)
		return fmt.Errorf("%w: %s", ErrTaskPending, key)
	}
	s.inflight[key] = true
	s.mu.Unlock()

	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue task", "type", string(task.GetType()), "date", task.GetDate(), "error", err)
		s.release(task)
		return err
	}

	slog.Debug("Task enqueued", "type", string(task.GetType()), "date", task.GetDate(), "id", task.GetID())
	return nil
}

func (s *Scheduler) release(task TaskInterface) {
	s.mu.Lock()
	delete(s.inflight, task.GetKey())
	s.mu.Unlock()
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)
	metrics.TaskDuration.WithLabelValues(string(task.GetType())).Observe(task.GetDuration().Seconds())

	if err == nil {
		metrics.TasksTotal.WithLabelValues(string(task.GetType()), "success").Inc()
		s.release(task)
		return
	}

	metrics.TasksTotal.WithLabelValues(string(task.GetType()), "error").Inc()
	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "date", task.GetDate(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		s.release(task)
		return
	}

	task.IncrementRetryCount()
	retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
	if retryDelay > 30*time.Second {
		retryDelay = 30 * time.Second
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "date", task.GetDate(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			return
		case <-time.After(retryDelay):
		}

		if retryErr := s.EnqueueTask(task); retryErr != nil {
			slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			s.release(task)
		}
	}()
}
