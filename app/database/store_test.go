package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/scripta/app/story"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setupStore(t *testing.T) (*Store, *testClock) {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "scripta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	version, dirty, err := RunMigrations(db)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	clock := &testClock{now: time.Date(2025, 6, 15, 0, 1, 0, 0, time.UTC)}
	db.Now = clock.Now

	return NewStore(db), clock
}

func createStory(t *testing.T, s *Store, date string) {
	t.Helper()
	created, err := s.CreateStory(context.Background(), story.Story{
		Date:    date,
		Title:   "La soglia",
		Genre:   "Gotico",
		Incipit: "La porta era aperta.",
	})
	require.NoError(t, err)
	require.True(t, created)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db, err := NewConnection(filepath.Join(t.TempDir(), "scripta.db"))
	require.NoError(t, err)
	defer db.Close()

	_, _, err = RunMigrations(db)
	require.NoError(t, err)

	version, _, err := RunMigrations(db)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestStore_CreateStory(t *testing.T) {
	s, clock := setupStore(t)
	ctx := context.Background()

	createStory(t, s, "2025-06-15")

	got, err := s.GetStory(ctx, "2025-06-15")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "La soglia", got.Title)
	assert.Equal(t, story.StatusActive, got.Status)
	assert.True(t, got.CreatedAt.Equal(clock.now))
	assert.True(t, got.LastActivityAt.Equal(clock.now))
	assert.Empty(t, got.Summary)
	assert.Nil(t, got.ClosedAt)

	created, err := s.CreateStory(ctx, story.Story{Date: "2025-06-15", Title: "Altro", Genre: "G", Incipit: "I"})
	require.NoError(t, err)
	assert.False(t, created)

	again, err := s.GetStory(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.Equal(t, "La soglia", again.Title, "second create must not overwrite")
}

func TestStore_GetStory_Missing(t *testing.T) {
	s, _ := setupStore(t)

	got, err := s.GetStory(context.Background(), "2025-01-01")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_AppendContribution(t *testing.T) {
	s, clock := setupStore(t)
	ctx := context.Background()
	createStory(t, s, "2025-06-15")

	texts := []string{"uno", "due", "tre"}
	for _, text := range texts {
		clock.Advance(time.Minute)
		c, err := s.AppendContribution(ctx, "2025-06-15", story.Contribution{
			Text:       text,
			AuthorID:   "u1",
			AuthorName: "Alice",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.True(t, c.CreatedAt.Equal(clock.now))
	}

	got, err := s.GetStory(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.True(t, got.LastActivityAt.Equal(clock.now), "append must touch activity")

	first, err := s.ListContributions(ctx, "2025-06-15")
	require.NoError(t, err)
	second, err := s.ListContributions(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.Len(t, first, 3)
	for i, c := range first {
		assert.Equal(t, texts[i], c.Text)
		assert.Equal(t, "Alice", c.AuthorName)
		if i > 0 {
			assert.Greater(t, c.Seq, first[i-1].Seq)
		}
	}
}

func TestStore_AppendContribution_Ghostwriter(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	createStory(t, s, "2025-06-15")

	_, err := s.AppendContribution(ctx, "2025-06-15", story.Contribution{
		Text:          "Un'ombra.",
		AuthorID:      story.GhostwriterID,
		AuthorName:    story.GhostwriterName,
		IsGhostwriter: true,
	})
	require.NoError(t, err)

	list, err := s.ListContributions(ctx, "2025-06-15")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsGhostwriter)
}

func TestStore_AppendContribution_Rejected(t *testing.T) {
	s, clock := setupStore(t)
	ctx := context.Background()

	_, err := s.AppendContribution(ctx, "2025-06-15", story.Contribution{Text: "uno"})
	assert.ErrorIs(t, err, story.ErrStoryNotFound)

	createStory(t, s, "2025-06-15")
	closedAt := clock.now
	closed, err := s.CloseStory(ctx, "2025-06-15")
	require.NoError(t, err)
	require.True(t, closed)

	clock.Advance(time.Hour)
	_, err = s.AppendContribution(ctx, "2025-06-15", story.Contribution{Text: "tardi"})
	assert.ErrorIs(t, err, story.ErrStoryNotActive)

	list, err := s.ListContributions(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := s.GetStory(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.True(t, got.LastActivityAt.Equal(closedAt), "rejected append must not touch activity")
}

func TestStore_CloseStory_Conditional(t *testing.T) {
	s, clock := setupStore(t)
	ctx := context.Background()
	createStory(t, s, "2025-06-15")

	closed, err := s.CloseStory(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.True(t, closed)
	firstClose := clock.now

	clock.Advance(time.Minute)
	closed, err = s.CloseStory(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.False(t, closed)

	got, err := s.GetStory(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.Equal(t, story.StatusClosed, got.Status)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, got.ClosedAt.Equal(firstClose))

	closed, err = s.CloseStory(ctx, "2025-01-01")
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestStore_SetSummary_Once(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	createStory(t, s, "2025-06-15")

	set, err := s.SetSummary(ctx, "2025-06-15", "Riassunto", "https://img.example/1.png")
	require.NoError(t, err)
	assert.False(t, set, "active story must not get a summary")

	_, err = s.CloseStory(ctx, "2025-06-15")
	require.NoError(t, err)

	set, err = s.SetSummary(ctx, "2025-06-15", "Riassunto", "https://img.example/1.png")
	require.NoError(t, err)
	assert.True(t, set)

	set, err = s.SetSummary(ctx, "2025-06-15", "Altro", "https://img.example/2.png")
	require.NoError(t, err)
	assert.False(t, set)

	got, err := s.GetStory(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.Equal(t, "Riassunto", got.Summary)
	assert.Equal(t, "https://img.example/1.png", got.CoverImageURL)
}

func TestStore_MarkRecapSent_Once(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	createStory(t, s, "2025-06-15")

	claimed, err := s.MarkRecapSent(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.False(t, claimed, "active story has no recap")

	_, err = s.CloseStory(ctx, "2025-06-15")
	require.NoError(t, err)

	claimed, err = s.MarkRecapSent(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = s.MarkRecapSent(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := s.GetStory(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.NotNil(t, got.RecapSentAt)
}

func TestStore_ListStories(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	for _, date := range []string{"2025-06-13", "2025-06-14", "2025-06-15"} {
		createStory(t, s, date)
	}
	for _, date := range []string{"2025-06-13", "2025-06-14"} {
		_, err := s.CloseStory(ctx, date)
		require.NoError(t, err)
	}

	closed, err := s.ListStories(ctx, story.StatusClosed, 0)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, "2025-06-14", closed[0].Date, "newest first")

	all, err := s.ListStories(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.ListStories(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "2025-06-15", limited[0].Date)
}

func TestStore_DeleteContribution(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	createStory(t, s, "2025-06-15")

	c, err := s.AppendContribution(ctx, "2025-06-15", story.Contribution{Text: "uno", AuthorID: "u1", AuthorName: "A"})
	require.NoError(t, err)

	deleted, err := s.DeleteContribution(ctx, "2025-06-15", c.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteContribution(ctx, "2025-06-15", c.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	list, err := s.ListContributions(ctx, "2025-06-15")
	require.NoError(t, err)
	assert.Empty(t, list)
}

// Lifecycle scenario against the real store: closure sees every contribution
// committed before it and rejects every later one.
func TestStore_CloseRace(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	createStory(t, s, "2025-06-15")

	_, err := s.AppendContribution(ctx, "2025-06-15", story.Contribution{Text: "prima", AuthorID: "u1", AuthorName: "A"})
	require.NoError(t, err)

	_, err = s.CloseStory(ctx, "2025-06-15")
	require.NoError(t, err)

	_, err = s.AppendContribution(ctx, "2025-06-15", story.Contribution{Text: "dopo", AuthorID: "u2", AuthorName: "B"})
	assert.ErrorIs(t, err, story.ErrStoryNotActive)

	list, err := s.ListContributions(ctx, "2025-06-15")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "La porta era aperta. prima", story.FullText("La porta era aperta.", list))
}
