package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"

	"github.com/lysyi3m/scripta/app/metrics"
	"github.com/lysyi3m/scripta/app/story"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

type Config struct {
	Provider     string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	OpenAIURL    string
	Timeout      time.Duration
}

// New builds the configured text oracle wrapped with timeout and metrics. It
// returns a nil oracle when the provider is "none" or its key is missing; the
// returned close function is always safe to call.
func New(ctx context.Context, cfg Config) (story.TextOracle, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Provider {
	case ProviderNone, "":
		return nil, noop, nil

	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			slog.Warn("Gemini API key not set, text oracle disabled")
			return nil, noop, nil
		}
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, noop, err
		}
		return Instrument(ProviderGemini, g, cfg.Timeout), g.Close, nil

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			slog.Warn("OpenAI API key not set, text oracle disabled")
			return nil, noop, nil
		}
		o := NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIURL)
		return Instrument(ProviderOpenAI, o, cfg.Timeout), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown oracle provider: %s", cfg.Provider)
	}
}

// Instrumented bounds every call with a timeout and records metrics. Safety
// blocks map to story.ErrOracleRefused, any other failure to story.ErrOracleFailed.
type Instrumented struct {
	provider string
	next     story.TextOracle
	timeout  time.Duration
}

func Instrument(provider string, next story.TextOracle, timeout time.Duration) *Instrumented {
	return &Instrumented{
		provider: provider,
		next:     next,
		timeout:  timeout,
	}
}

func (o *Instrumented) Generate(ctx context.Context, prompt string) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := o.next.Generate(ctx, prompt)
	duration := time.Since(start)
	metrics.OracleRequestDuration.WithLabelValues(o.provider).Observe(duration.Seconds())

	if err == nil && strings.TrimSpace(out) == "" {
		err = errors.New("empty response")
	}
	if refused(err) {
		metrics.OracleRequestsTotal.WithLabelValues(o.provider, "refused").Inc()
		slog.Warn("Oracle refused the prompt", "provider", o.provider, "duration", duration, "error", err)
		if errors.Is(err, story.ErrOracleRefused) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %v", story.ErrOracleRefused, o.provider, err)
	}
	if err != nil {
		metrics.OracleRequestsTotal.WithLabelValues(o.provider, "error").Inc()
		slog.Warn("Oracle request failed", "provider", o.provider, "duration", duration, "error", err)
		if story.IsOracleError(err) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %v", story.ErrOracleFailed, o.provider, err)
	}

	metrics.OracleRequestsTotal.WithLabelValues(o.provider, "success").Inc()
	slog.Debug("Oracle request completed", "provider", o.provider, "duration", duration, "chars", len(out))
	return strings.TrimSpace(out), nil
}

// refused reports whether the provider declined the prompt on safety grounds.
func refused(err error) bool {
	if err == nil {
		return false
	}
	var blocked *genai.BlockedError
	return errors.As(err, &blocked) || errors.Is(err, story.ErrOracleRefused)
}
