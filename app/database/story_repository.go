package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lysyi3m/scripta/app/story"
)

// StoryRepository handles database operations for stories
type StoryRepository struct {
	db *DB
}

func NewStoryRepository(db *DB) *StoryRepository {
	return &StoryRepository{db: db}
}

const storyColumns = `date, title, genre, incipit, status, summary, cover_image_url,
	created_at, last_activity_at, closed_at, recap_sent_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*story.Story, error) {
	var (
		s                         story.Story
		status                    string
		createdAt, lastActivityAt string
		closedAt, recapSentAt     sql.NullString
	)
	err := row.Scan(
		&s.Date, &s.Title, &s.Genre, &s.Incipit, &status, &s.Summary, &s.CoverImageURL,
		&createdAt, &lastActivityAt, &closedAt, &recapSentAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = story.Status(status)

	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.LastActivityAt, err = parseTime(lastActivityAt); err != nil {
		return nil, err
	}
	if s.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, err
	}
	if s.RecapSentAt, err = parseNullTime(recapSentAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetStory returns nil, nil when no story exists for date
func (r *StoryRepository) GetStory(ctx context.Context, date string) (*story.Story, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE date = ?`, date)

	s, err := scanStory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	return s, nil
}

// CreateStory inserts s unless a story for its date exists
func (r *StoryRepository) CreateStory(ctx context.Context, s story.Story) (bool, error) {
	now := formatTime(r.db.Now())
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO stories (date, title, genre, incipit, status, created_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date) DO NOTHING
	`, s.Date, s.Title, s.Genre, s.Incipit, string(story.StatusActive), now, now)
	if err != nil {
		return false, fmt.Errorf("failed to create story: %w", err)
	}
	return affected(res)
}

// ListStories returns stories newest first. An empty status matches all.
func (r *StoryRepository) ListStories(ctx context.Context, status story.Status, limit int) ([]story.Story, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+storyColumns+`
		FROM stories
		WHERE ? = '' OR status = ?
		ORDER BY date DESC
		LIMIT ?
	`, string(status), string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	var stories []story.Story
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan story row: %w", err)
		}
		stories = append(stories, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating story rows: %w", err)
	}

	return stories, nil
}

// CloseStory moves an active story to closed. It reports false when the
// story is missing or already closed.
func (r *StoryRepository) CloseStory(ctx context.Context, date string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE stories
		SET status = 'closed', closed_at = ?
		WHERE date = ? AND status = 'active'
	`, formatTime(r.db.Now()), date)
	if err != nil {
		return false, fmt.Errorf("failed to close story: %w", err)
	}
	return affected(res)
}

// SetSummary writes summary and cover once, on a closed story
func (r *StoryRepository) SetSummary(ctx context.Context, date, summary, coverImageURL string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE stories
		SET summary = ?, cover_image_url = ?
		WHERE date = ? AND status = 'closed' AND summary = ''
	`, summary, coverImageURL, date)
	if err != nil {
		return false, fmt.Errorf("failed to set summary: %w", err)
	}
	return affected(res)
}

// MarkRecapSent claims the recap of a closed story. Only the first caller wins.
func (r *StoryRepository) MarkRecapSent(ctx context.Context, date string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE stories
		SET recap_sent_at = ?
		WHERE date = ? AND status = 'closed' AND recap_sent_at IS NULL
	`, formatTime(r.db.Now()), date)
	if err != nil {
		return false, fmt.Errorf("failed to mark recap sent: %w", err)
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}
