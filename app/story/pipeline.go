package story

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/lysyi3m/scripta/app/metrics"
)

type ScreeningPolicy string

const (
	// FailOpen accepts contributions unscreened when the oracle is missing or failing.
	FailOpen ScreeningPolicy = "fail-open"
	// FailClosed rejects them as internal errors instead.
	FailClosed ScreeningPolicy = "fail-closed"
)

func ParseScreeningPolicy(s string) (ScreeningPolicy, error) {
	switch p := ScreeningPolicy(s); p {
	case FailOpen, FailClosed:
		return p, nil
	default:
		return "", errors.New("screening policy must be fail-open or fail-closed")
	}
}

// Pipeline accepts user contributions: identity, structure, content screening,
// then persistence. Each step is a gate; nothing is written unless all pass.
type Pipeline struct {
	store   Store
	filter  *Filter
	oracle  TextOracle
	prompts *Prompts
	policy  ScreeningPolicy
}

// NewPipeline builds a pipeline. oracle may be nil, in which case policy decides.
func NewPipeline(store Store, filter *Filter, oracle TextOracle, prompts *Prompts, policy ScreeningPolicy) *Pipeline {
	return &Pipeline{
		store:   store,
		filter:  filter,
		oracle:  oracle,
		prompts: prompts,
		policy:  policy,
	}
}

func (p *Pipeline) Submit(ctx context.Context, asOf string, identity *Identity, text string) (*Contribution, error) {
	c, err := p.submit(ctx, asOf, identity, text)
	if err != nil {
		metrics.ContributionsTotal.WithLabelValues(string(KindOf(err))).Inc()
		return nil, err
	}
	metrics.ContributionsTotal.WithLabelValues("accepted").Inc()
	return c, nil
}

func (p *Pipeline) submit(ctx context.Context, asOf string, identity *Identity, text string) (*Contribution, error) {
	if identity == nil || identity.UID == "" {
		return nil, newError(KindUnauthenticated, "Devi essere loggato per contribuire.", nil)
	}

	if err := p.filter.Validate(text); err != nil {
		return nil, newError(KindInvalidArgument, err.Error(), err)
	}
	clean := strings.TrimSpace(text)

	s, err := p.store.GetStory(ctx, asOf)
	if err != nil {
		slog.Error("Database error", "operation", "get_story", "date", asOf, "error", err)
		return nil, newError(KindInternal, "Impossibile salvare il contributo.", err)
	}
	if !s.IsActive() {
		return nil, newError(KindFailedPrecondition, "Non c'è una storia aperta oggi.", ErrStoryNotActive)
	}

	if err := p.screen(ctx, clean); err != nil {
		return nil, err
	}

	name := identity.DisplayName
	if name == "" {
		name = AnonymousName
	}

	c, err := p.store.AppendContribution(ctx, asOf, Contribution{
		Text:       clean,
		AuthorID:   identity.UID,
		AuthorName: name,
	})
	if errors.Is(err, ErrStoryNotActive) || errors.Is(err, ErrStoryNotFound) {
		return nil, newError(KindFailedPrecondition, "La storia di oggi è chiusa.", err)
	}
	if err != nil {
		slog.Error("Database error", "operation", "append_contribution", "date", asOf, "error", err)
		return nil, newError(KindInternal, "Impossibile salvare il contributo.", err)
	}

	slog.Info("Contribution accepted", "date", asOf, "id", c.ID, "author", c.AuthorID)
	return c, nil
}

func (p *Pipeline) screen(ctx context.Context, text string) error {
	if p.oracle == nil {
		return p.screeningUnavailable(ErrOracleUnavailable, "unconfigured")
	}

	prompt, err := p.prompts.RenderScreening(text)
	if err != nil {
		return newError(KindInternal, "Errore del sistema di validazione AI.", err)
	}

	verdict, err := p.oracle.Generate(ctx, prompt)
	if errors.Is(err, ErrOracleRefused) {
		// A provider safety block is a verdict, not an outage.
		slog.Info("Contribution blocked by provider safety filter", "error", err)
		return errRejected(err)
	}
	if err != nil {
		return p.screeningUnavailable(err, "oracle_error")
	}

	if strings.Contains(strings.ToUpper(verdict), "RESPINTO") {
		return errRejected(nil)
	}
	return nil
}

func errRejected(cause error) error {
	return newError(KindPermissionDenied, "La frase non rispetta le linee guida creative o di sicurezza.", cause)
}

func (p *Pipeline) screeningUnavailable(cause error, reason string) error {
	if p.policy == FailOpen {
		slog.Warn("Content screening skipped", "policy", string(p.policy), "reason", reason, "error", cause)
		metrics.ScreeningSkippedTotal.WithLabelValues(reason).Inc()
		return nil
	}
	return newError(KindInternal, "Errore del sistema di validazione AI.", cause)
}
