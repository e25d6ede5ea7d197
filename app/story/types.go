package story

import (
	"context"
	"strings"
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

const (
	GhostwriterID   = "ghostwriter"
	GhostwriterName = "J. Hortus"
	AnonymousName   = "Anonimo"
)

// Story is the record of one calendar day. Date (YYYY-MM-DD) is its key.
type Story struct {
	Date           string
	Title          string
	Genre          string
	Incipit        string
	Status         Status
	CreatedAt      time.Time
	LastActivityAt time.Time
	Summary        string // set once, at closure
	CoverImageURL  string // set once, at closure
	ClosedAt       *time.Time
	RecapSentAt    *time.Time
}

func (s *Story) IsActive() bool {
	return s != nil && s.Status == StatusActive
}

// Contribution is append-only. Seq is the store-assigned ordering key.
type Contribution struct {
	ID            string
	StoryDate     string
	Seq           int64
	Text          string
	AuthorID      string
	AuthorName    string
	IsGhostwriter bool
	CreatedAt     time.Time
}

// Identity is an authenticated caller. Anonymous sign-ins are still identities.
type Identity struct {
	UID         string
	DisplayName string
	Anonymous   bool
}

type Inspiration struct {
	Headline string
	Quote    string
}

// Digest is what the recap notifiers receive for a closed story.
type Digest struct {
	Date          string
	Title         string
	FullText      string
	Summary       string
	CoverImageURL string
}

// FullText concatenates the incipit and the contributions in narrative order.
func FullText(incipit string, contributions []Contribution) string {
	parts := make([]string, 0, len(contributions)+1)
	if t := strings.TrimSpace(incipit); t != "" {
		parts = append(parts, t)
	}
	for _, c := range contributions {
		if t := strings.TrimSpace(c.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// LastActivity is the later of the story's activity timestamp and its newest contribution.
func LastActivity(s *Story, contributions []Contribution) time.Time {
	last := s.LastActivityAt
	if last.IsZero() {
		last = s.CreatedAt
	}
	if n := len(contributions); n > 0 && contributions[n-1].CreatedAt.After(last) {
		last = contributions[n-1].CreatedAt
	}
	return last
}

// TextOracle is the generative text service. One completion per call, no streaming.
type TextOracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Store persists stories and their contributions.
//
// GetStory returns nil, nil when no story exists for the date. The conditional
// writes report whether they changed anything. AppendContribution commits only
// while the story is active and touches its last-activity timestamp in the same
// write; it fails with ErrStoryNotFound or ErrStoryNotActive otherwise.
type Store interface {
	GetStory(ctx context.Context, date string) (*Story, error)
	CreateStory(ctx context.Context, s Story) (bool, error)
	ListStories(ctx context.Context, status Status, limit int) ([]Story, error)
	CloseStory(ctx context.Context, date string) (bool, error)
	SetSummary(ctx context.Context, date, summary, coverImageURL string) (bool, error)
	MarkRecapSent(ctx context.Context, date string) (bool, error)

	ListContributions(ctx context.Context, date string) ([]Contribution, error)
	AppendContribution(ctx context.Context, date string, c Contribution) (*Contribution, error)
	DeleteContribution(ctx context.Context, date, id string) (bool, error)
}

type InspirationSource interface {
	Fetch(ctx context.Context) Inspiration
}

type CoverArtist interface {
	Cover(ctx context.Context, s *Story, summary string) (string, error)
}

type Notifier interface {
	Name() string
	Send(ctx context.Context, d Digest) error
}
