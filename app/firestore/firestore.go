package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lysyi3m/scripta/app/story"
)

const (
	storiesCollection       = "stories"
	contributionsCollection = "contributions"
)

// Store is a story.Store on Cloud Firestore: one document per day under
// stories/{date}, contributions in its sub-collection.
type Store struct {
	client  *firestore.Client
	stories *firestore.CollectionRef
	now     func() time.Time
}

var _ story.Store = (*Store)(nil)

type storyDoc struct {
	Date              string     `firestore:"date"`
	Title             string     `firestore:"title"`
	Genre             string     `firestore:"genre"`
	Incipit           string     `firestore:"incipit"`
	Status            string     `firestore:"status"`
	CreatedAt         time.Time  `firestore:"createdAt"`
	LastActivityAt    time.Time  `firestore:"lastActivityAt"`
	Summary           string     `firestore:"summary"`
	CoverImageURL     string     `firestore:"coverImageUrl"`
	ClosedAt          *time.Time `firestore:"closedAt"`
	RecapSentAt       *time.Time `firestore:"recapSentAt"`
	ContributionCount int64      `firestore:"contributionCount"`
}

type contributionDoc struct {
	Seq           int64     `firestore:"seq"`
	Text          string    `firestore:"text"`
	AuthorID      string    `firestore:"authorId"`
	AuthorName    string    `firestore:"authorName"`
	IsGhostwriter bool      `firestore:"isGhostwriter"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

func New(client *firestore.Client) *Store {
	return &Store{
		client:  client,
		stories: client.Collection(storiesCollection),
		now:     time.Now,
	}
}

func (f *Store) contributions(date string) *firestore.CollectionRef {
	return f.stories.Doc(date).Collection(contributionsCollection)
}

func (f *Store) GetStory(ctx context.Context, date string) (*story.Story, error) {
	snap, err := f.stories.Doc(date).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting story document: %w", err)
	}
	return toStory(snap)
}

func (f *Store) CreateStory(ctx context.Context, s story.Story) (bool, error) {
	now := f.now().UTC()
	_, err := f.stories.Doc(s.Date).Create(ctx, storyDoc{
		Date:           s.Date,
		Title:          s.Title,
		Genre:          s.Genre,
		Incipit:        s.Incipit,
		Status:         string(story.StatusActive),
		CreatedAt:      now,
		LastActivityAt: now,
	})
	if status.Code(err) == codes.AlreadyExists {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating story document: %w", err)
	}
	return true, nil
}

func (f *Store) ListStories(ctx context.Context, st story.Status, limit int) ([]story.Story, error) {
	query := f.stories.OrderBy("date", firestore.Desc)
	if st != "" {
		query = f.stories.Where("status", "==", string(st)).OrderBy("date", firestore.Desc)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var stories []story.Story
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating story documents: %w", err)
		}
		s, err := toStory(snap)
		if err != nil {
			return nil, err
		}
		stories = append(stories, *s)
	}
	return stories, nil
}

// update runs a conditional update of one story document inside a transaction.
// apply inspects the current document and returns the updates, or nil to skip.
func (f *Store) update(ctx context.Context, date string, apply func(doc *storyDoc) []firestore.Update) (bool, error) {
	ref := f.stories.Doc(date)
	var changed bool

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		changed = false
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}

		var doc storyDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decoding story document: %w", err)
		}

		updates := apply(&doc)
		if len(updates) == 0 {
			return nil
		}
		changed = true
		return tx.Update(ref, updates)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (f *Store) CloseStory(ctx context.Context, date string) (bool, error) {
	changed, err := f.update(ctx, date, func(doc *storyDoc) []firestore.Update {
		if doc.Status != string(story.StatusActive) {
			return nil
		}
		return []firestore.Update{
			{Path: "status", Value: string(story.StatusClosed)},
			{Path: "closedAt", Value: f.now().UTC()},
		}
	})
	if err != nil {
		return false, fmt.Errorf("closing story: %w", err)
	}
	return changed, nil
}

func (f *Store) SetSummary(ctx context.Context, date, summary, coverImageURL string) (bool, error) {
	changed, err := f.update(ctx, date, func(doc *storyDoc) []firestore.Update {
		if doc.Status != string(story.StatusClosed) || doc.Summary != "" {
			return nil
		}
		return []firestore.Update{
			{Path: "summary", Value: summary},
			{Path: "coverImageUrl", Value: coverImageURL},
		}
	})
	if err != nil {
		return false, fmt.Errorf("setting story summary: %w", err)
	}
	return changed, nil
}

func (f *Store) MarkRecapSent(ctx context.Context, date string) (bool, error) {
	changed, err := f.update(ctx, date, func(doc *storyDoc) []firestore.Update {
		if doc.Status != string(story.StatusClosed) || doc.RecapSentAt != nil {
			return nil
		}
		return []firestore.Update{{Path: "recapSentAt", Value: f.now().UTC()}}
	})
	if err != nil {
		return false, fmt.Errorf("marking recap sent: %w", err)
	}
	return changed, nil
}

func (f *Store) ListContributions(ctx context.Context, date string) ([]story.Contribution, error) {
	iter := f.contributions(date).OrderBy("seq", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var contributions []story.Contribution
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating contribution documents: %w", err)
		}

		var doc contributionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decoding contribution document: %w", err)
		}
		contributions = append(contributions, toContribution(date, snap.Ref.ID, doc))
	}
	return contributions, nil
}

// AppendContribution writes the contribution, bumps the story's sequence
// counter and touches its activity timestamp in one transaction, provided the
// story is still active.
func (f *Store) AppendContribution(ctx context.Context, date string, c story.Contribution) (*story.Contribution, error) {
	storyRef := f.stories.Doc(date)
	var out story.Contribution

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(storyRef)
		if status.Code(err) == codes.NotFound {
			return story.ErrStoryNotFound
		}
		if err != nil {
			return err
		}

		var doc storyDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decoding story document: %w", err)
		}
		if doc.Status != string(story.StatusActive) {
			return story.ErrStoryNotActive
		}

		now := f.now().UTC()
		cd := contributionDoc{
			Seq:           doc.ContributionCount + 1,
			Text:          c.Text,
			AuthorID:      c.AuthorID,
			AuthorName:    c.AuthorName,
			IsGhostwriter: c.IsGhostwriter,
			CreatedAt:     now,
		}
		ref := f.contributions(date).Doc(uuid.NewString())
		if err := tx.Create(ref, cd); err != nil {
			return err
		}
		if err := tx.Update(storyRef, []firestore.Update{
			{Path: "contributionCount", Value: cd.Seq},
			{Path: "lastActivityAt", Value: now},
		}); err != nil {
			return err
		}

		out = toContribution(date, ref.ID, cd)
		return nil
	})
	if errors.Is(err, story.ErrStoryNotFound) || errors.Is(err, story.ErrStoryNotActive) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("appending contribution: %w", err)
	}
	return &out, nil
}

func (f *Store) DeleteContribution(ctx context.Context, date, id string) (bool, error) {
	ref := f.contributions(date).Doc(id)
	_, err := ref.Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting contribution document: %w", err)
	}
	return true, nil
}

func toStory(snap *firestore.DocumentSnapshot) (*story.Story, error) {
	var doc storyDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding story document: %w", err)
	}
	s := fromStoryDoc(doc)
	if s.Date == "" {
		s.Date = snap.Ref.ID
	}
	return &s, nil
}

func fromStoryDoc(doc storyDoc) story.Story {
	return story.Story{
		Date:           doc.Date,
		Title:          doc.Title,
		Genre:          doc.Genre,
		Incipit:        doc.Incipit,
		Status:         story.Status(doc.Status),
		CreatedAt:      doc.CreatedAt,
		LastActivityAt: doc.LastActivityAt,
		Summary:        doc.Summary,
		CoverImageURL:  doc.CoverImageURL,
		ClosedAt:       doc.ClosedAt,
		RecapSentAt:    doc.RecapSentAt,
	}
}

func toContribution(date, id string, doc contributionDoc) story.Contribution {
	return story.Contribution{
		ID:            id,
		StoryDate:     date,
		Seq:           doc.Seq,
		Text:          doc.Text,
		AuthorID:      doc.AuthorID,
		AuthorName:    doc.AuthorName,
		IsGhostwriter: doc.IsGhostwriter,
		CreatedAt:     doc.CreatedAt,
	}
}
