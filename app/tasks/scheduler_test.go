package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/scripta/app/story"
)

type fakeStories struct {
	mu      sync.Mutex
	stories map[string]*story.Story
	err     error
}

func (f *fakeStories) GetStory(_ context.Context, date string) (*story.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.stories[date], nil
}

type fakeLifecycle struct {
	mu    sync.Mutex
	calls []string
	err   error
	sent  bool
	done  chan string
}

func (f *fakeLifecycle) record(op, date string) {
	f.mu.Lock()
	f.calls = append(f.calls, op+":"+date)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- op + ":" + date
	}
}

func (f *fakeLifecycle) CreateDaily(_ context.Context, asOf string) (*story.Story, bool, error) {
	f.record("create", asOf)
	if f.err != nil {
		return nil, false, f.err
	}
	return &story.Story{Date: asOf, Title: "T"}, true, nil
}

func (f *fakeLifecycle) CheckIdle(_ context.Context, asOf string, _ time.Time) (*story.Contribution, error) {
	f.record("idle", asOf)
	return nil, f.err
}

func (f *fakeLifecycle) ForceGhostwriter(_ context.Context, asOf string) (*story.Contribution, error) {
	f.record("force", asOf)
	if f.err != nil {
		return nil, f.err
	}
	return &story.Contribution{ID: "c1"}, nil
}

func (f *fakeLifecycle) Close(_ context.Context, asOf string) (bool, error) {
	f.record("close", asOf)
	return f.err == nil, f.err
}

func (f *fakeLifecycle) Summarize(_ context.Context, asOf string) (bool, error) {
	f.record("summarize", asOf)
	return f.err == nil, f.err
}

func (f *fakeLifecycle) SendRecap(_ context.Context, date string) (bool, error) {
	f.record("recap", date)
	return f.sent, f.err
}

func testConfig() Config {
	return Config{
		Location:          time.UTC,
		CreationTime:      story.TimeOfDay{Hour: 0, Minute: 1},
		ClosureTime:       story.TimeOfDay{Hour: 23, Minute: 59},
		RecapTime:         story.TimeOfDay{Hour: 8, Minute: 0},
		IdleCheckInterval: 30 * time.Minute,
		Interval:          time.Minute,
		WorkerCount:       1,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 15, hour, minute, 0, 0, time.UTC)
}

func keys(tasks []TaskInterface) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.GetKey())
	}
	return out
}

func TestScheduler_DueTasks(t *testing.T) {
	closed := at(0, 0)
	tests := []struct {
		name    string
		stories map[string]*story.Story
		now     time.Time
		want    []string
	}{
		{
			name: "nothing before creation time",
			now:  at(0, 0),
			want: []string{},
		},
		{
			name: "creation when no story",
			now:  at(0, 1),
			want: []string{"create_story:2025-06-15"},
		},
		{
			name: "no creation after closure time",
			now:  at(23, 59),
			want: []string{},
		},
		{
			name:    "idle check while active",
			stories: map[string]*story.Story{"2025-06-15": {Status: story.StatusActive}},
			now:     at(12, 0),
			want:    []string{"idle_check:2025-06-15"},
		},
		{
			name:    "closure at closure time",
			stories: map[string]*story.Story{"2025-06-15": {Status: story.StatusActive}},
			now:     at(23, 59),
			want:    []string{"close_story:2025-06-15"},
		},
		{
			name:    "summary retry when closed without summary",
			stories: map[string]*story.Story{"2025-06-15": {Status: story.StatusClosed}},
			now:     at(23, 59),
			want:    []string{"summarize_story:2025-06-15"},
		},
		{
			name:    "closed and summarized is terminal",
			stories: map[string]*story.Story{"2025-06-15": {Status: story.StatusClosed, Summary: "S"}},
			now:     at(23, 59),
			want:    []string{},
		},
		{
			name: "missed closure of yesterday",
			stories: map[string]*story.Story{
				"2025-06-14": {Status: story.StatusActive},
			},
			now:  at(0, 0),
			want: []string{"close_story:2025-06-14"},
		},
		{
			name: "recap not before recap time",
			stories: map[string]*story.Story{
				"2025-06-14": {Status: story.StatusClosed, Summary: "S"},
				"2025-06-15": {Status: story.StatusActive},
			},
			now:  at(7, 59),
			want: []string{"idle_check:2025-06-15"},
		},
		{
			name: "recap for yesterday",
			stories: map[string]*story.Story{
				"2025-06-14": {Status: story.StatusClosed, Summary: "S"},
				"2025-06-15": {Status: story.StatusActive},
			},
			now:  at(8, 0),
			want: []string{"idle_check:2025-06-15", "send_recap:2025-06-14"},
		},
		{
			name: "recap sent once",
			stories: map[string]*story.Story{
				"2025-06-14": {Status: story.StatusClosed, Summary: "S", RecapSentAt: &closed},
			},
			now:  at(9, 0),
			want: []string{"create_story:2025-06-15"},
		},
		{
			name: "yesterday summary retried before recap",
			stories: map[string]*story.Story{
				"2025-06-14": {Status: story.StatusClosed},
			},
			now:  at(9, 0),
			want: []string{"create_story:2025-06-15", "summarize_story:2025-06-14"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stories := &fakeStories{stories: tt.stories}
			s := NewScheduler(&fakeLifecycle{}, stories, testConfig())

			got := keys(s.dueTasks(context.Background(), tt.now))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScheduler_DueTasks_UsesLocation(t *testing.T) {
	rome := time.FixedZone("CEST", 2*60*60)
	cfg := testConfig()
	cfg.Location = rome
	s := NewScheduler(&fakeLifecycle{}, &fakeStories{}, cfg)

	// 22:30 UTC on the 14th is 00:30 on the 15th in Rome.
	got := keys(s.dueTasks(context.Background(), time.Date(2025, 6, 14, 22, 30, 0, 0, time.UTC)))
	assert.Equal(t, []string{"create_story:2025-06-15"}, got)
}

func TestScheduler_DueTasks_IdleInterval(t *testing.T) {
	stories := &fakeStories{stories: map[string]*story.Story{"2025-06-15": {Status: story.StatusActive}}}
	s := NewScheduler(&fakeLifecycle{}, stories, testConfig())

	assert.Len(t, s.dueTasks(context.Background(), at(12, 0)), 1)
	assert.Empty(t, s.dueTasks(context.Background(), at(12, 29)))
	assert.Len(t, s.dueTasks(context.Background(), at(12, 30)), 1)
}

func TestScheduler_DueTasks_StoreError(t *testing.T) {
	s := NewScheduler(&fakeLifecycle{}, &fakeStories{err: errors.New("db locked")}, testConfig())
	assert.Empty(t, s.dueTasks(context.Background(), at(12, 0)))
}

func TestScheduler_Trigger(t *testing.T) {
	s := NewScheduler(&fakeLifecycle{}, &fakeStories{}, testConfig())

	require.NoError(t, s.Trigger(TaskTypeCloseStory, "2025-06-15"))
	assert.ErrorIs(t, s.Trigger(TaskTypeCloseStory, "2025-06-15"), ErrTaskPending, "duplicate work must not be queued")
	assert.NoError(t, s.Trigger(TaskTypeCloseStory, "2025-06-14"))
	assert.ErrorIs(t, s.Trigger("rewrite_story", "2025-06-15"), ErrUnknownTaskType)
	assert.ErrorIs(t, s.Trigger(TaskTypeCloseStory, "ieri"), story.ErrInvalidDate)

	assert.Len(t, s.taskQueue, 2)
}

func TestScheduler_ExecuteTask_Success(t *testing.T) {
	lifecycle := &fakeLifecycle{}
	s := NewScheduler(lifecycle, &fakeStories{}, testConfig())

	require.NoError(t, s.Trigger(TaskTypeSummarizeStory, "2025-06-15"))
	s.executeTask(0, <-s.taskQueue)

	assert.Equal(t, []string{"summarize:2025-06-15"}, lifecycle.calls)
	assert.NoError(t, s.Trigger(TaskTypeSummarizeStory, "2025-06-15"), "finished work can be queued again")
}

func TestScheduler_ExecuteTask_OracleErrorIsSettled(t *testing.T) {
	lifecycle := &fakeLifecycle{err: story.ErrOracleFailed}
	s := NewScheduler(lifecycle, &fakeStories{}, testConfig())

	task := NewCreateStoryTask("2025-06-15", lifecycle)
	s.executeTask(0, task)

	assert.Zero(t, task.GetRetryCount(), "oracle failures wait for the next tick")
}

func TestScheduler_ExecuteTask_StoreErrorIsRetried(t *testing.T) {
	lifecycle := &fakeLifecycle{err: errors.New("database is locked")}
	s := NewScheduler(lifecycle, &fakeStories{}, testConfig())
	defer s.cancel()

	task := NewCloseStoryTask("2025-06-15", lifecycle)
	s.executeTask(0, task)

	assert.Equal(t, 1, task.GetRetryCount())
	select {
	case retried := <-s.taskQueue:
		assert.Equal(t, task.GetID(), retried.GetID())
	case <-time.After(3 * time.Second):
		t.Fatal("Expected task to be re-enqueued")
	}
}

func TestSendRecapTask_PartialFailure(t *testing.T) {
	lifecycle := &fakeLifecycle{err: errors.New("fcm: unavailable"), sent: true}
	task := NewSendRecapTask("2025-06-14", lifecycle)

	assert.NoError(t, task.Execute(context.Background()), "a claimed recap is not retried")
}

func TestSettle(t *testing.T) {
	task := NewCloseStoryTask("2025-06-15", &fakeLifecycle{})

	assert.NoError(t, settle(task, nil))
	assert.NoError(t, settle(task, story.ErrMalformedOracleResponse))
	assert.NoError(t, settle(task, story.ErrEmptyContinuation))
	assert.NoError(t, settle(task, story.ErrStoryNotActive))

	err := errors.New("disk full")
	assert.Equal(t, err, settle(task, err))
}

func TestScheduler_StartStop(t *testing.T) {
	lifecycle := &fakeLifecycle{done: make(chan string, 10)}
	cfg := testConfig()
	cfg.Interval = time.Hour
	s := NewScheduler(lifecycle, &fakeStories{}, cfg)
	s.now = func() time.Time { return at(0, 5) }

	s.Start()
	select {
	case call := <-lifecycle.done:
		assert.Equal(t, "create:2025-06-15", call)
	case <-time.After(3 * time.Second):
		t.Fatal("Expected creation on the first tick")
	}
	s.Stop()
}
