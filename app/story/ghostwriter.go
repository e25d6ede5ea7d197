package story

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lysyi3m/scripta/app/metrics"
)

// Ghostwriter keeps an idle story moving by appending one generated sentence.
type Ghostwriter struct {
	store   Store
	oracle  TextOracle
	filter  *Filter
	prompts *Prompts
}

func NewGhostwriter(store Store, oracle TextOracle, filter *Filter, prompts *Prompts) *Ghostwriter {
	return &Ghostwriter{
		store:   store,
		oracle:  oracle,
		filter:  filter,
		prompts: prompts,
	}
}

// Trigger asks the oracle for a continuation of s and appends it. Failures are
// returned without retry; the next idle check re-evaluates.
func (g *Ghostwriter) Trigger(ctx context.Context, s *Story) (*Contribution, error) {
	c, err := g.trigger(ctx, s)
	switch {
	case err == nil:
		metrics.GhostwriterTotal.WithLabelValues("appended").Inc()
	case IsOracleError(err):
		metrics.GhostwriterTotal.WithLabelValues("oracle_error").Inc()
	default:
		metrics.GhostwriterTotal.WithLabelValues("error").Inc()
	}
	return c, err
}

func (g *Ghostwriter) trigger(ctx context.Context, s *Story) (*Contribution, error) {
	if !s.IsActive() {
		return nil, ErrStoryNotActive
	}
	if g.oracle == nil {
		return nil, ErrOracleUnavailable
	}

	contributions, err := g.store.ListContributions(ctx, s.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}

	prompt, err := g.prompts.RenderGhostwriter(FullText(s.Incipit, contributions))
	if err != nil {
		return nil, err
	}

	raw, err := g.oracle.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	text := CleanContinuation(raw)
	if text == "" {
		return nil, ErrEmptyContinuation
	}
	if err := g.filter.Validate(text); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyContinuation, err)
	}

	c, err := g.store.AppendContribution(ctx, s.Date, Contribution{
		Text:          text,
		AuthorID:      GhostwriterID,
		AuthorName:    GhostwriterName,
		IsGhostwriter: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append ghostwriter contribution: %w", err)
	}

	slog.Info("Ghostwriter contribution appended", "date", s.Date, "id", c.ID, "words", CountWords(text))
	return c, nil
}

// CleanContinuation strips whitespace and wrapping quotation marks from an oracle reply.
func CleanContinuation(raw string) string {
	text := strings.TrimSpace(raw)
	for {
		trimmed := strings.TrimSpace(strings.Trim(text, "\"“”«»"))
		if trimmed == text {
			return text
		}
		text = trimmed
	}
}
