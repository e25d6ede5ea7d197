package database

import "github.com/lysyi3m/scripta/app/story"

// Store is the SQLite story.Store.
type Store struct {
	*StoryRepository
	*ContributionRepository
}

var _ story.Store = (*Store)(nil)

func NewStore(db *DB) *Store {
	return &Store{
		StoryRepository:        NewStoryRepository(db),
		ContributionRepository: NewContributionRepository(db),
	}
}
