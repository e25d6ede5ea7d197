package api

import (
	"context"
	"time"

	"github.com/lysyi3m/scripta/app/archive"
	"github.com/lysyi3m/scripta/app/story"
	"github.com/lysyi3m/scripta/app/tasks"
)

type GeneratorInterface interface {
	Run(entries []archive.Entry) (string, error)
}

var _ GeneratorInterface = (*archive.Generator)(nil)

// Authenticator turns a bearer token into the caller's identity.
type Authenticator interface {
	Verify(ctx context.Context, idToken string) (*story.Identity, error)
}

type Submitter interface {
	Submit(ctx context.Context, asOf string, identity *story.Identity, text string) (*story.Contribution, error)
}

type Validator interface {
	Validate(text string) error
}

type Handler struct {
	store     story.Store
	submitter Submitter
	validator Validator
	auth      Authenticator
	generator GeneratorInterface
	scheduler tasks.TaskSchedulerInterface
	loc       *time.Location
	now       func() time.Time
}

type HandlerConfig struct {
	Store     story.Store
	Submitter Submitter
	Validator Validator
	Auth      Authenticator
	Generator GeneratorInterface
	Scheduler tasks.TaskSchedulerInterface
	Location  *time.Location
}

type contributionRequest struct {
	Text string `json:"text"`
}

type storyResponse struct {
	Date          string     `json:"date"`
	Title         string     `json:"title"`
	Genre         string     `json:"genre"`
	Incipit       string     `json:"incipit"`
	Status        string     `json:"status"`
	Summary       string     `json:"summary,omitempty"`
	CoverImageURL string     `json:"cover_image_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	WordCount     int        `json:"word_count"`
}

type contributionResponse struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	AuthorName    string    `json:"author_name"`
	IsGhostwriter bool      `json:"is_ghostwriter"`
	CreatedAt     time.Time `json:"created_at"`
	WordCount     int       `json:"word_count"`
}

func toStoryResponse(s *story.Story, contributions []story.Contribution) storyResponse {
	return storyResponse{
		Date:          s.Date,
		Title:         s.Title,
		Genre:         s.Genre,
		Incipit:       s.Incipit,
		Status:        string(s.Status),
		Summary:       s.Summary,
		CoverImageURL: s.CoverImageURL,
		CreatedAt:     s.CreatedAt,
		ClosedAt:      s.ClosedAt,
		WordCount:     story.CountWords(story.FullText(s.Incipit, contributions)),
	}
}

func toContributionResponse(c story.Contribution) contributionResponse {
	return contributionResponse{
		ID:            c.ID,
		Text:          c.Text,
		AuthorName:    c.AuthorName,
		IsGhostwriter: c.IsGhostwriter,
		CreatedAt:     c.CreatedAt,
		WordCount:     story.CountWords(c.Text),
	}
}
