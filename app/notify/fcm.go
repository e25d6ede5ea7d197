package notify

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"github.com/lysyi3m/scripta/app/story"
)

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM publishes the recap to a Firebase Cloud Messaging topic.
type FCM struct {
	client  messageSender
	topic   string
	baseURL string
}

func NewFCM(ctx context.Context, app *firebase.App, topic, baseURL string) (*FCM, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get FCM messaging client: %w", err)
	}
	return &FCM{client: client, topic: topic, baseURL: baseURL}, nil
}

func (f *FCM) Name() string {
	return "fcm"
}

func (f *FCM) Send(ctx context.Context, d story.Digest) error {
	id, err := f.client.Send(ctx, f.message(d))
	if err != nil {
		return fmt.Errorf("failed to send FCM message: %w", err)
	}

	slog.Debug("FCM message sent", "topic", f.topic, "message_id", id)
	return nil
}

func (f *FCM) message(d story.Digest) *messaging.Message {
	data := map[string]string{"date": d.Date}
	if url := storyURL(f.baseURL, d.Date); url != "" {
		data["url"] = url
	}

	return &messaging.Message{
		Topic: f.topic,
		Notification: &messaging.Notification{
			Title:    title(d),
			Body:     excerpt(d.Summary, maxExcerptRunes),
			ImageURL: d.CoverImageURL,
		},
		Data: data,
	}
}
