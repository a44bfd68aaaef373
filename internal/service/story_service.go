package service

import (
	"context"
	"errors"
	"time"

	"github.com/beunreal/story-service/internal/apperr"
	"github.com/beunreal/story-service/internal/domain"
	"github.com/beunreal/story-service/internal/events"
	"github.com/beunreal/story-service/internal/geo"
	"github.com/beunreal/story-service/internal/media"
	"github.com/beunreal/story-service/internal/metrics"
	"github.com/beunreal/story-service/internal/repository"
	"github.com/beunreal/story-service/internal/users"
	"go.uber.org/zap"
)

const (
	defaultMaxNearby    = 200
	defaultEventTimeout = 2 * time.Second
)

type Options struct {
	DefaultRadiusMeters float64
	MaxNearby           int64
	EventTimeout        time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type StoryService struct {
	repo         repository.StoryRepository
	users        users.Directory
	media        media.Uploader
	events       events.Publisher
	log          *zap.Logger
	now          func() time.Time
	radius       float64
	max          int64
	eventTimeout time.Duration
}

func NewStoryService(repo repository.StoryRepository, dir users.Directory, up media.Uploader, pub events.Publisher, logger *zap.Logger, opts Options) *StoryService {
	if dir == nil {
		dir = users.Static{}
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &StoryService{
		repo:         repo,
		users:        dir,
		media:        up,
		events:       pub,
		log:          logger,
		now:          opts.Now,
		radius:       opts.DefaultRadiusMeters,
		max:          opts.MaxNearby,
		eventTimeout: opts.EventTimeout,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.radius <= 0 {
		s.radius = geo.DefaultRadiusMeters
	}
	if s.max <= 0 {
		s.max = defaultMaxNearby
	}
	if s.eventTimeout <= 0 {
		s.eventTimeout = defaultEventTimeout
	}
	return s
}

// DefaultRadius is used when a proximity query names no radius.
func (s *StoryService) DefaultRadius() float64 {
	return s.radius
}

type CreateStoryInput struct {
	AuthorID  string
	Media     domain.Media
	Latitude  float64
	Longitude float64
	Caption   string
}

// CreateStory persists a story for media that is already hosted.
func (s *StoryService) CreateStory(ctx context.Context, in CreateStoryInput) (*domain.Story, error) {
	loc, err := domain.NewLocation(in.Latitude, in.Longitude)
	if err != nil {
		return nil, err
	}
	story, err := domain.NewStory(in.AuthorID, in.Media, loc, in.Caption, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, story); err != nil {
		s.log.Error("insert story failed", zap.String("author_id", in.AuthorID), zap.Error(err))
		return nil, apperr.Storage(err, "could not save story")
	}

	metrics.StoriesCreated.Inc()
	s.publish(ctx, events.Event{
		Type:       events.StoryCreated,
		StoryID:    story.ID,
		AuthorID:   story.AuthorID,
		ActorID:    story.AuthorID,
		OccurredAt: story.CreatedAt,
	})
	s.attach(ctx, []*domain.Story{story}, false)
	return story, nil
}

type UploadStoryInput struct {
	AuthorID  string
	File      media.File
	Latitude  float64
	Longitude float64
	Caption   string
}

// UploadStory validates the location, hands the file to the media host and
// creates the story. If the story cannot be saved the upload is removed
// again.
func (s *StoryService) UploadStory(ctx context.Context, in UploadStoryInput) (*domain.Story, error) {
	if s.media == nil {
		return nil, apperr.Upstream(errors.New("no media host configured"), "media upload unavailable")
	}
	if _, err := domain.NewLocation(in.Latitude, in.Longitude); err != nil {
		return nil, err
	}
	if in.File.Kind != domain.MediaImage && in.File.Kind != domain.MediaVideo {
		return nil, apperr.Field("mediaType", "must be one of image, video")
	}

	stored, err := s.media.Upload(ctx, in.AuthorID, in.File)
	if err != nil {
		s.log.Error("media upload failed", zap.String("author_id", in.AuthorID), zap.Error(err))
		return nil, apperr.Upstream(err, "media upload failed")
	}
	m, err := stored.Media(in.File.Kind)
	if err == nil {
		var story *domain.Story
		story, err = s.CreateStory(ctx, CreateStoryInput{
			AuthorID:  in.AuthorID,
			Media:     m,
			Latitude:  in.Latitude,
			Longitude: in.Longitude,
			Caption:   in.Caption,
		})
		if err == nil {
			return story, nil
		}
	}

	// the request failed; do not leave an orphaned object behind
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if derr := s.media.Delete(cctx, stored); derr != nil {
		s.log.Warn("orphaned media not removed", zap.String("key", stored.Key), zap.Error(derr))
	}
	return nil, err
}

// GetStory returns a story by id, expired or not.
func (s *StoryService) GetStory(ctx context.Context, id string) (*domain.Story, error) {
	story, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.attach(ctx, []*domain.Story{story}, true)
	return story, nil
}

// FindNearby returns active stories inside the bounding box around
// (lat, lng), newest first. radiusMeters <= 0 is rejected; callers that
// want the default pass DefaultRadius().
func (s *StoryService) FindNearby(ctx context.Context, lat, lng, radiusMeters float64) ([]*domain.Story, error) {
	box, err := geo.NewBox(lat, lng, radiusMeters)
	if err != nil {
		return nil, err
	}
	stories, err := s.repo.FindInBox(ctx, box, s.now(), s.max)
	if err != nil {
		s.log.Error("nearby query failed", zap.Float64("lat", lat), zap.Float64("lng", lng), zap.Error(err))
		return nil, apperr.Storage(err, "could not load stories")
	}
	metrics.NearbyResults.Observe(float64(len(stories)))
	s.attach(ctx, stories, false)
	return stories, nil
}

// ListUserStories returns the author's active stories, newest first.
func (s *StoryService) ListUserStories(ctx context.Context, authorID string) ([]*domain.Story, error) {
	if authorID == "" {
		return nil, apperr.Field("userId", "user id is required")
	}
	stories, err := s.repo.FindActiveByAuthor(ctx, authorID, s.now())
	if err != nil {
		s.log.Error("user stories query failed", zap.String("author_id", authorID), zap.Error(err))
		return nil, apperr.Storage(err, "could not load stories")
	}
	s.attach(ctx, stories, false)
	return stories, nil
}

// ToggleReaction adds the (userID, emoji) reaction or removes it when it
// is already present. It reports whether the reaction was added.
func (s *StoryService) ToggleReaction(ctx context.Context, storyID, userID, emoji string) (bool, error) {
	if storyID == "" {
		return false, apperr.Field("storyId", "story id is required")
	}
	now := s.now()
	r, err := domain.NewReaction(userID, emoji, now)
	if err != nil {
		return false, err
	}
	added, err := s.repo.ToggleReaction(ctx, storyID, r, now)
	if err != nil {
		return false, s.storeErr(err, "toggle reaction", storyID)
	}

	metrics.ReactionToggled(added)
	typ := events.ReactionRemoved
	if added {
		typ = events.ReactionAdded
	}
	s.publish(ctx, events.Event{Type: typ, StoryID: storyID, ActorID: userID, Emoji: r.Emoji, OccurredAt: r.CreatedAt})
	return added, nil
}

// AddComment appends a comment to an active story.
func (s *StoryService) AddComment(ctx context.Context, storyID, userID, content string) (*domain.Comment, error) {
	if storyID == "" {
		return nil, apperr.Field("storyId", "story id is required")
	}
	now := s.now()
	c, err := domain.NewComment(userID, content, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AppendComment(ctx, storyID, c, now); err != nil {
		return nil, s.storeErr(err, "append comment", storyID)
	}

	metrics.Comments.Inc()
	s.publish(ctx, events.Event{Type: events.CommentAdded, StoryID: storyID, ActorID: userID, CommentID: c.ID, OccurredAt: c.CreatedAt})

	info := s.lookup(ctx, []string{userID})
	if u, ok := info[userID]; ok {
		c.User = &u
	}
	return &c, nil
}

// ListReactions returns a story's reactions. Like GetStory it does not
// require the story to be active.
func (s *StoryService) ListReactions(ctx context.Context, storyID string) ([]domain.Reaction, error) {
	story, err := s.load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(story.Reactions))
	for _, r := range story.Reactions {
		ids = append(ids, r.UserID)
	}
	info := s.lookup(ctx, ids)
	for i := range story.Reactions {
		if u, ok := info[story.Reactions[i].UserID]; ok {
			story.Reactions[i].User = &u
		}
	}
	return story.Reactions, nil
}

// ListComments returns a story's comments in append order.
func (s *StoryService) ListComments(ctx context.Context, storyID string) ([]domain.Comment, error) {
	story, err := s.load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(story.Comments))
	for _, c := range story.Comments {
		ids = append(ids, c.UserID)
	}
	info := s.lookup(ctx, ids)
	for i := range story.Comments {
		if u, ok := info[story.Comments[i].UserID]; ok {
			story.Comments[i].User = &u
		}
	}
	return story.Comments, nil
}

// DeleteStory hard-deletes a story owned by requesterID.
func (s *StoryService) DeleteStory(ctx context.Context, storyID, requesterID string) error {
	if storyID == "" {
		return apperr.Field("storyId", "story id is required")
	}
	if err := s.repo.DeleteOwned(ctx, storyID, requesterID); err != nil {
		return s.storeErr(err, "delete story", storyID)
	}
	metrics.StoriesDeleted.Inc()
	s.publish(ctx, events.Event{Type: events.StoryDeleted, StoryID: storyID, AuthorID: requesterID, ActorID: requesterID, OccurredAt: s.now().UTC()})
	return nil
}

// Ready reports whether the store is reachable.
func (s *StoryService) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *StoryService) load(ctx context.Context, id string) (*domain.Story, error) {
	if id == "" {
		return nil, apperr.Field("storyId", "story id is required")
	}
	story, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeErr(err, "get story", id)
	}
	return story, nil
}

func (s *StoryService) storeErr(err error, op, storyID string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("story not found or expired")
	case errors.Is(err, repository.ErrNotOwner):
		return apperr.Forbidden("only the author can delete this story")
	}
	s.log.Error(op+" failed", zap.String("story_id", storyID), zap.Error(err))
	return apperr.Storage(err, "could not "+op)
}

// lookup resolves display info. Failures degrade to missing info.
func (s *StoryService) lookup(ctx context.Context, ids []string) map[string]domain.UserInfo {
	if len(ids) == 0 {
		return nil
	}
	info, err := s.users.Lookup(ctx, ids)
	if err != nil {
		s.log.Warn("display info lookup failed", zap.Int("users", len(ids)), zap.Error(err))
	}
	return info
}

// attach joins author display info, and with deep also reactor and
// commenter info.
func (s *StoryService) attach(ctx context.Context, stories []*domain.Story, deep bool) {
	var ids []string
	for _, st := range stories {
		ids = append(ids, st.AuthorID)
		if deep {
			for _, r := range st.Reactions {
				ids = append(ids, r.UserID)
			}
			for _, c := range st.Comments {
				ids = append(ids, c.UserID)
			}
		}
	}
	info := s.lookup(ctx, ids)
	if len(info) == 0 {
		return
	}
	for _, st := range stories {
		if u, ok := info[st.AuthorID]; ok {
			st.Author = &u
		}
		if !deep {
			continue
		}
		for i := range st.Reactions {
			if u, ok := info[st.Reactions[i].UserID]; ok {
				st.Reactions[i].User = &u
			}
		}
		for i := range st.Comments {
			if u, ok := info[st.Comments[i].UserID]; ok {
				st.Comments[i].User = &u
			}
		}
	}
}

// publish is best effort and never fails the caller.
func (s *StoryService) publish(ctx context.Context, e events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.eventTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("event publish failed", zap.String("type", string(e.Type)), zap.String("story_id", e.StoryID), zap.Error(err))
	}
}
