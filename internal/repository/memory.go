package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/beunreal/story-service/internal/domain"
	"github.com/beunreal/story-service/internal/geo"
)

// MemoryStoryRepository keeps stories in process. Each method holds the lock
// for the whole mutation, which gives the same per-document atomicity as the
// Mongo updates.
type MemoryStoryRepository struct {
	mu      sync.RWMutex
	stories map[string]*domain.Story
}

func NewMemoryStoryRepository() *MemoryStoryRepository {
	return &MemoryStoryRepository{stories: make(map[string]*domain.Story)}
}

func (r *MemoryStoryRepository) Insert(ctx context.Context, s *domain.Story) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stories[s.ID] = clone(s)
	return nil
}

func (r *MemoryStoryRepository) GetByID(ctx context.Context, id string) (*domain.Story, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (r *MemoryStoryRepository) FindInBox(ctx context.Context, box geo.Box, now time.Time, limit int64) ([]*domain.Story, error) {
	return r.filter(limit, func(s *domain.Story) bool {
		return s.IsActive(now) && box.Contains(s.Location)
	}), nil
}

func (r *MemoryStoryRepository) FindActiveByAuthor(ctx context.Context, authorID string, now time.Time) ([]*domain.Story, error) {
	return r.filter(0, func(s *domain.Story) bool {
		return s.AuthorID == authorID && s.IsActive(now)
	}), nil
}

func (r *MemoryStoryRepository) ToggleReaction(ctx context.Context, storyID string, re domain.Reaction, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stories[storyID]
	if !ok || !s.IsActive(now) {
		return false, ErrNotFound
	}
	for i, existing := range s.Reactions {
		if existing.UserID == re.UserID && existing.Emoji == re.Emoji {
			s.Reactions = append(s.Reactions[:i:i], s.Reactions[i+1:]...)
			return false, nil
		}
	}
	re.User = nil
	s.Reactions = append(s.Reactions, re)
	return true, nil
}

func (r *MemoryStoryRepository) AppendComment(ctx context.Context, storyID string, c domain.Comment, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stories[storyID]
	if !ok || !s.IsActive(now) {
		return ErrNotFound
	}
	c.User = nil
	s.Comments = append(s.Comments, c)
	return nil
}

func (r *MemoryStoryRepository) DeleteOwned(ctx context.Context, storyID, authorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stories[storyID]
	if !ok {
		return ErrNotFound
	}
	if s.AuthorID != authorID {
		return ErrNotOwner
	}
	delete(r.stories, storyID)
	return nil
}

func (r *MemoryStoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryStoryRepository) filter(limit int64, keep func(*domain.Story) bool) []*domain.Story {
	r.mu.RLock()
	out := []*domain.Story{}
	for _, s := range r.stories {
		if keep(s) {
			out = append(out, clone(s))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out
}

func clone(s *domain.Story) *domain.Story {
	c := *s
	c.Author = nil
	c.Reactions = append([]domain.Reaction{}, s.Reactions...)
	c.Comments = append([]domain.Comment{}, s.Comments...)
	return &c
}
