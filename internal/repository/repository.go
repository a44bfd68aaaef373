package repository

import (
	"context"
	"errors"
	"time"

	"github.com/beunreal/story-service/internal/domain"
	"github.com/beunreal/story-service/internal/geo"
)

var (
	ErrNotFound = errors.New("story not found")
	ErrNotOwner = errors.New("story belongs to another user")
	// ErrContended is returned when a reaction toggle kept racing with
	// concurrent toggles of the same pair.
	ErrContended = errors.New("reaction toggle contended")
)

// maxToggleAttempts bounds the pull/push loop in ToggleReaction.
const maxToggleAttempts = 3

// StoryRepository persists stories. Every mutation is a single-document
// atomic update; none of them reads the document and writes it back.
// Methods that only act on active stories take the current time so expiry
// is decided by the caller's clock.
type StoryRepository interface {
	Insert(ctx context.Context, s *domain.Story) error
	// GetByID returns the story whether or not it has expired.
	GetByID(ctx context.Context, id string) (*domain.Story, error)
	// FindInBox returns active stories inside box, newest first.
	FindInBox(ctx context.Context, box geo.Box, now time.Time, limit int64) ([]*domain.Story, error)
	// FindActiveByAuthor returns the author's active stories, newest first.
	FindActiveByAuthor(ctx context.Context, authorID string, now time.Time) ([]*domain.Story, error)
	// ToggleReaction removes the (user, emoji) pair if present, otherwise adds
	// r. It reports whether r was added. ErrNotFound covers expired stories.
	ToggleReaction(ctx context.Context, storyID string, r domain.Reaction, now time.Time) (bool, error)
	// AppendComment pushes c to the end of an active story's comments.
	AppendComment(ctx context.Context, storyID string, c domain.Comment, now time.Time) error
	// DeleteOwned hard-deletes the story if authorID owns it.
	DeleteOwned(ctx context.Context, storyID, authorID string) error
	Ping(ctx context.Context) error
}
