package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// memStore is an in-memory Store with the same conditional semantics as the real ones.
type memStore struct {
	mu            sync.Mutex
	now           func() time.Time
	stories       map[string]*Story
	contributions map[string][]Contribution
	seq           int64

	failAppend error
}

func newMemStore(now time.Time) *memStore {
	return &memStore{
		now:           func() time.Time { return now },
		stories:       make(map[string]*Story),
		contributions: make(map[string][]Contribution),
	}
}

func (m *memStore) put(s Story) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stories[s.Date] = &s
}

func (m *memStore) GetStory(_ context.Context, date string) (*Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[date]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) CreateStory(_ context.Context, s Story) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stories[s.Date]; ok {
		return false, nil
	}
	now := m.now()
	s.CreatedAt = now
	s.LastActivityAt = now
	m.stories[s.Date] = &s
	return true, nil
}

func (m *memStore) ListStories(_ context.Context, status Status, limit int) ([]Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Story
	for _, s := range m.stories {
		if status == "" || s.Status == status {
			out = append(out, *s)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CloseStory(_ context.Context, date string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[date]
	if !ok || s.Status != StatusActive {
		return false, nil
	}
	now := m.now()
	s.Status = StatusClosed
	s.ClosedAt = &now
	return true, nil
}

func (m *memStore) SetSummary(_ context.Context, date, summary, cover string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[date]
	if !ok || s.Status != StatusClosed || s.Summary != "" {
		return false, nil
	}
	s.Summary = summary
	s.CoverImageURL = cover
	return true, nil
}

func (m *memStore) MarkRecapSent(_ context.Context, date string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[date]
	if !ok || s.Status != StatusClosed || s.RecapSentAt != nil {
		return false, nil
	}
	now := m.now()
	s.RecapSentAt = &now
	return true, nil
}

func (m *memStore) ListContributions(_ context.Context, date string) ([]Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Contribution(nil), m.contributions[date]...), nil
}

func (m *memStore) AppendContribution(_ context.Context, date string, c Contribution) (*Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend != nil {
		return nil, m.failAppend
	}
	s, ok := m.stories[date]
	if !ok {
		return nil, ErrStoryNotFound
	}
	if s.Status != StatusActive {
		return nil, ErrStoryNotActive
	}
	m.seq++
	now := m.now()
	c.ID = fmt.Sprintf("c%d", m.seq)
	c.Seq = m.seq
	c.StoryDate = date
	c.CreatedAt = now
	s.LastActivityAt = now
	m.contributions[date] = append(m.contributions[date], c)
	return &c, nil
}

func (m *memStore) DeleteContribution(_ context.Context, date, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.contributions[date]
	for i, c := range list {
		if c.ID == id {
			m.contributions[date] = append(list[:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// scriptedOracle answers by prompt content and records every prompt it saw.
type scriptedOracle struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (o *scriptedOracle) Generate(_ context.Context, prompt string) (string, error) {
	o.mu.Lock()
	o.prompts = append(o.prompts, prompt)
	o.mu.Unlock()
	return o.reply(prompt)
}

func (o *scriptedOracle) calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.prompts)
}

func (o *scriptedOracle) lastPrompt() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.prompts) == 0 {
		return ""
	}
	return o.prompts[len(o.prompts)-1]
}

func replyWith(text string) *scriptedOracle {
	return &scriptedOracle{reply: func(string) (string, error) { return text, nil }}
}

func failingOracle() *scriptedOracle {
	return &scriptedOracle{reply: func(string) (string, error) {
		return "", fmt.Errorf("%w: deadline exceeded", ErrOracleFailed)
	}}
}

func refusingOracle() *scriptedOracle {
	return &scriptedOracle{reply: func(string) (string, error) {
		return "", fmt.Errorf("%w: gemini: blocked: candidate: FinishReasonSafety", ErrOracleRefused)
	}}
}

// routingOracle picks a reply by a marker word of each prompt template.
func routingOracle(spark, screening, continuation, summary string) *scriptedOracle {
	return &scriptedOracle{reply: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "APPROVATO"):
			return screening, nil
		case strings.Contains(prompt, "ghostwriter"):
			return continuation, nil
		case strings.Contains(prompt, "critico letterario"):
			return summary, nil
		case strings.Contains(prompt, "JSON"):
			return spark, nil
		}
		return "", errors.New("unexpected prompt")
	}}
}

type staticInspiration struct{ in Inspiration }

func (s staticInspiration) Fetch(context.Context) Inspiration { return s.in }

type recordingNotifier struct {
	name    string
	err     error
	digests []Digest
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Send(_ context.Context, d Digest) error {
	n.digests = append(n.digests, d)
	return n.err
}

type staticCover struct {
	url string
	err error
}

func (c staticCover) Cover(context.Context, *Story, string) (string, error) { return c.url, c.err }
