package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/lysyi3m/scripta/app/story"
)

// Slack posts the recap to an incoming webhook.
type Slack struct {
	webhookURL string
	baseURL    string
}

func NewSlack(webhookURL, baseURL string) *Slack {
	return &Slack{webhookURL: webhookURL, baseURL: baseURL}
}

func (s *Slack) Name() string {
	return "slack"
}

func (s *Slack) Send(ctx context.Context, d story.Digest) error {
	err := slack.PostWebhookContext(ctx, s.webhookURL, s.message(d))
	if err != nil {
		return fmt.Errorf("could not post message to slack: %w", err)
	}
	return nil
}

func (s *Slack) message(d story.Digest) *slack.WebhookMessage {
	attachment := slack.Attachment{
		Title:     d.Title,
		TitleLink: storyURL(s.baseURL, d.Date),
		Text:      excerpt(d.FullText, 3*maxExcerptRunes),
		ImageURL:  d.CoverImageURL,
		Footer:    d.Date,
	}
	if d.Summary != "" {
		attachment.Fields = []slack.AttachmentField{
			{Title: "Il commento del critico", Value: d.Summary},
		}
	}

	return &slack.WebhookMessage{
		Username:    "Scripta",
		Text:        title(d),
		Attachments: []slack.Attachment{attachment},
	}
}
