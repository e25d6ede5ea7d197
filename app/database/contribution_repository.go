package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/lysyi3m/scripta/app/story"
)

// ContributionRepository handles database operations for contributions
type ContributionRepository struct {
	db *DB
}

func NewContributionRepository(db *DB) *ContributionRepository {
	return &ContributionRepository{db: db}
}

// ListContributions returns the contributions of a story in narrative order
func (r *ContributionRepository) ListContributions(ctx context.Context, date string) ([]story.Contribution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, id, story_date, text, author_id, author_name, is_ghostwriter, created_at
		FROM contributions
		WHERE story_date = ?
		ORDER BY seq
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var contributions []story.Contribution
	for rows.Next() {
		var (
			c         story.Contribution
			createdAt string
		)
		err := rows.Scan(&c.Seq, &c.ID, &c.StoryDate, &c.Text, &c.AuthorID, &c.AuthorName, &c.IsGhostwriter, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contribution row: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		contributions = append(contributions, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contribution rows: %w", err)
	}

	return contributions, nil
}

// AppendContribution inserts c and touches the story's activity timestamp in
// one transaction, provided the story is still active.
func (r *ContributionRepository) AppendContribution(ctx context.Context, date string, c story.Contribution) (*story.Contribution, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM stories WHERE date = ?`, date).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, story.ErrStoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read story status: %w", err)
	}
	if story.Status(status) != story.StatusActive {
		return nil, story.ErrStoryNotActive
	}

	now := r.db.Now().UTC()
	c.ID = uuid.NewString()
	c.StoryDate = date
	c.CreatedAt = now

	res, err := tx.ExecContext(ctx, `
		INSERT INTO contributions (id, story_date, text, author_id, author_name, is_ghostwriter, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, date, c.Text, c.AuthorID, c.AuthorName, c.IsGhostwriter, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to insert contribution: %w", err)
	}
	if c.Seq, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to get contribution sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE stories SET last_activity_at = ? WHERE date = ?`, formatTime(now), date)
	if err != nil {
		return nil, fmt.Errorf("failed to touch story activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit contribution: %w", err)
	}

	return &c, nil
}

// DeleteContribution removes one contribution. It is an administrative
// override and leaves the story's activity timestamp alone.
func (r *ContributionRepository) DeleteContribution(ctx context.Context, date, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contributions WHERE story_date = ? AND id = ?`, date, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete contribution: %w", err)
	}
	return affected(res)
}
