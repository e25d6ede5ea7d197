package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type LifecycleConfig struct {
	Store         Store
	Oracle        TextOracle // nil when no provider is configured
	Ghostwriter   *Ghostwriter
	Inspiration   InspirationSource
	CoverArtist   CoverArtist
	Notifiers     []Notifier
	Prompts       *Prompts
	IdleThreshold time.Duration
}

// Lifecycle drives a story through its day: creation, idle ghostwriting,
// closure with summary, and the next-morning recap. Every operation takes the
// local calendar date it acts on and is safe to repeat.
type Lifecycle struct {
	store         Store
	oracle        TextOracle
	ghostwriter   *Ghostwriter
	inspiration   InspirationSource
	coverArtist   CoverArtist
	notifiers     []Notifier
	prompts       *Prompts
	idleThreshold time.Duration
}

func NewLifecycle(cfg LifecycleConfig) *Lifecycle {
	return &Lifecycle{
		store:         cfg.Store,
		oracle:        cfg.Oracle,
		ghostwriter:   cfg.Ghostwriter,
		inspiration:   cfg.Inspiration,
		coverArtist:   cfg.CoverArtist,
		notifiers:     cfg.Notifiers,
		prompts:       cfg.Prompts,
		idleThreshold: cfg.IdleThreshold,
	}
}

// CreateDaily creates the story for asOf unless one exists. The returned bool
// reports whether this call created it.
func (l *Lifecycle) CreateDaily(ctx context.Context, asOf string) (*Story, bool, error) {
	existing, err := l.store.GetStory(ctx, asOf)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get story: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	if l.oracle == nil {
		return nil, false, ErrOracleUnavailable
	}

	var in Inspiration
	if l.inspiration != nil {
		in = l.inspiration.Fetch(ctx)
	}

	prompt, err := l.prompts.RenderSpark(in)
	if err != nil {
		return nil, false, err
	}

	raw, err := l.oracle.Generate(ctx, prompt)
	if err != nil {
		return nil, false, err
	}

	spark, err := ParseSpark(raw)
	if err != nil {
		return nil, false, err
	}

	s := Story{
		Date:    asOf,
		Title:   spark.Title,
		Genre:   spark.Genre,
		Incipit: spark.Incipit,
		Status:  StatusActive,
	}
	created, err := l.store.CreateStory(ctx, s)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create story: %w", err)
	}

	stored, err := l.store.GetStory(ctx, asOf)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get story: %w", err)
	}
	if created {
		slog.Info("Story created", "date", asOf, "title", spark.Title, "genre", spark.Genre)
	}
	return stored, created, nil
}

// CheckIdle runs the ghostwriter when the active story for asOf has been quiet
// for at least the idle threshold. It returns nil, nil when nothing is due.
func (l *Lifecycle) CheckIdle(ctx context.Context, asOf string, now time.Time) (*Contribution, error) {
	s, err := l.store.GetStory(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	if !s.IsActive() {
		return nil, nil
	}

	contributions, err := l.store.ListContributions(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}

	idle := now.Sub(LastActivity(s, contributions))
	if idle < l.idleThreshold {
		slog.Debug("Story not idle", "date", asOf, "idle", idle.Round(time.Second))
		return nil, nil
	}

	slog.Info("Story idle, triggering ghostwriter", "date", asOf, "idle", idle.Round(time.Second))
	return l.ghostwriter.Trigger(ctx, s)
}

// ForceGhostwriter runs the ghostwriter on the active story regardless of idleness.
func (l *Lifecycle) ForceGhostwriter(ctx context.Context, asOf string) (*Contribution, error) {
	s, err := l.store.GetStory(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	if s == nil {
		return nil, ErrStoryNotFound
	}
	return l.ghostwriter.Trigger(ctx, s)
}

// Close marks the story for asOf closed and then summarizes it. The status
// change stands even when summarizing fails.
func (l *Lifecycle) Close(ctx context.Context, asOf string) (bool, error) {
	closed, err := l.store.CloseStory(ctx, asOf)
	if err != nil {
		return false, fmt.Errorf("failed to close story: %w", err)
	}
	if closed {
		slog.Info("Story closed", "date", asOf)
	}

	if _, err := l.Summarize(ctx, asOf); err != nil && !errors.Is(err, ErrStoryNotFound) {
		return closed, err
	}
	return closed, nil
}

// Summarize sets the summary and cover of a closed story that has none yet.
func (l *Lifecycle) Summarize(ctx context.Context, asOf string) (bool, error) {
	s, err := l.store.GetStory(ctx, asOf)
	if err != nil {
		return false, fmt.Errorf("failed to get story: %w", err)
	}
	if s == nil {
		return false, ErrStoryNotFound
	}
	if s.Status != StatusClosed || s.Summary != "" {
		return false, nil
	}
	if l.oracle == nil {
		return false, ErrOracleUnavailable
	}

	contributions, err := l.store.ListContributions(ctx, asOf)
	if err != nil {
		return false, fmt.Errorf("failed to list contributions: %w", err)
	}

	prompt, err := l.prompts.RenderSummary(s.Title, FullText(s.Incipit, contributions))
	if err != nil {
		return false, err
	}

	summary, err := l.oracle.Generate(ctx, prompt)
	if err != nil {
		return false, err
	}

	cover := l.cover(ctx, s, summary)

	set, err := l.store.SetSummary(ctx, asOf, summary, cover)
	if err != nil {
		return false, fmt.Errorf("failed to set summary: %w", err)
	}
	if set {
		slog.Info("Story summarized", "date", asOf, "contributions", len(contributions))
	}
	return set, nil
}

func (l *Lifecycle) cover(ctx context.Context, s *Story, summary string) string {
	if l.coverArtist == nil {
		return ""
	}
	url, err := l.coverArtist.Cover(ctx, s, summary)
	if err != nil {
		slog.Warn("Cover generation failed", "date", s.Date, "error", err)
		return ""
	}
	return url
}

// SendRecap distributes the digest of the closed story for date to every
// notifier once its summary exists. The store claim happens before sending,
// so a digest goes out at most once even when sending fails.
func (l *Lifecycle) SendRecap(ctx context.Context, date string) (bool, error) {
	if len(l.notifiers) == 0 {
		return false, nil
	}

	s, err := l.store.GetStory(ctx, date)
	if err != nil {
		return false, fmt.Errorf("failed to get story: %w", err)
	}
	if s == nil || s.Status != StatusClosed || s.Summary == "" || s.RecapSentAt != nil {
		return false, nil
	}

	contributions, err := l.store.ListContributions(ctx, date)
	if err != nil {
		return false, fmt.Errorf("failed to list contributions: %w", err)
	}

	claimed, err := l.store.MarkRecapSent(ctx, date)
	if err != nil {
		return false, fmt.Errorf("failed to mark recap sent: %w", err)
	}
	if !claimed {
		return false, nil
	}

	d := Digest{
		Date:          s.Date,
		Title:         s.Title,
		FullText:      FullText(s.Incipit, contributions),
		Summary:       s.Summary,
		CoverImageURL: s.CoverImageURL,
	}

	var errs []error
	for _, n := range l.notifiers {
		if err := n.Send(ctx, d); err != nil {
			slog.Error("Recap delivery failed", "notifier", n.Name(), "date", date, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		slog.Info("Recap delivered", "notifier", n.Name(), "date", date)
	}
	return true, errors.Join(errs...)
}
