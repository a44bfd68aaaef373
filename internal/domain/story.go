package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/beunreal/story-service/internal/apperr"
	"github.com/google/uuid"
)

// StoryTTL is how long a story stays active after creation.
const StoryTTL = 24 * time.Hour

// Limits on user text embedded in a story document, in runes.
const (
	MaxCommentRunes = 1000
	MaxEmojiRunes   = 16
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(s))) {
	case MediaImage:
		return MediaImage, nil
	case MediaVideo:
		return MediaVideo, nil
	}
	return "", apperr.Field("mediaType", "must be one of image, video")
}

// Media references content already stored on the media host.
// Key is the object key on the host and is kept for cleanup.
type Media struct {
	URL          string    `bson:"url" json:"url"`
	Kind         MediaKind `bson:"kind" json:"kind"`
	Key          string    `bson:"key,omitempty" json:"-"`
	ThumbnailURL string    `bson:"thumbnail_url,omitempty" json:"thumbnail_url,omitempty"`
}

func NewMedia(url string, kind MediaKind) (Media, error) {
	if strings.TrimSpace(url) == "" {
		return Media{}, apperr.Field("media", "media reference is required")
	}
	if kind != MediaImage && kind != MediaVideo {
		return Media{}, apperr.Field("mediaType", "must be one of image, video")
	}
	return Media{URL: url, Kind: kind}, nil
}

type Location struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

func NewLocation(lat, lng float64) (Location, error) {
	var fields []apperr.FieldError
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		fields = append(fields, apperr.FieldError{Field: "latitude", Message: "must be between -90 and 90"})
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) || lng < -180 || lng > 180 {
		fields = append(fields, apperr.FieldError{Field: "longitude", Message: "must be between -180 and 180"})
	}
	if len(fields) > 0 {
		return Location{}, apperr.Validation("invalid coordinates", fields...)
	}
	return Location{Latitude: lat, Longitude: lng}, nil
}

// UserInfo is display data joined from the user service at read time.
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

type Reaction struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Emoji     string    `bson:"emoji" json:"emoji"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`

	User *UserInfo `bson:"-" json:"user,omitempty"`
}

func NewReaction(userID, emoji string, now time.Time) (Reaction, error) {
	if userID == "" {
		return Reaction{}, apperr.Field("userId", "user id is required")
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return Reaction{}, apperr.Field("emoji", "emoji is required")
	}
	if utf8.RuneCountInString(emoji) > MaxEmojiRunes {
		return Reaction{}, apperr.Field("emoji", "emoji is too long")
	}
	return Reaction{UserID: userID, Emoji: emoji, CreatedAt: stamp(now)}, nil
}

// Comment is append-only; it is never edited once stored.
type Comment struct {
	ID        string    `bson:"id" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`

	User *UserInfo `bson:"-" json:"user,omitempty"`
}

func NewComment(userID, content string, now time.Time) (Comment, error) {
	if userID == "" {
		return Comment{}, apperr.Field("userId", "user id is required")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, apperr.Field("content", "comment content is required")
	}
	if utf8.RuneCountInString(content) > MaxCommentRunes {
		return Comment{}, apperr.Field("content", fmt.Sprintf("comment must be at most %d characters", MaxCommentRunes))
	}
	return Comment{ID: uuid.NewString(), UserID: userID, Content: content, CreatedAt: stamp(now)}, nil
}

type State string

const (
	StateActive  State = "active"
	StateExpired State = "expired"
)

type Story struct {
	ID        string     `bson:"_id" json:"id"`
	AuthorID  string     `bson:"author_id" json:"author_id"`
	Media     Media      `bson:"media" json:"media"`
	Caption   string     `bson:"caption" json:"caption"`
	Location  Location   `bson:"location" json:"location"`
	Reactions []Reaction `bson:"reactions" json:"reactions"`
	Comments  []Comment  `bson:"comments" json:"comments"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time  `bson:"expires_at" json:"expires_at"`

	Author *UserInfo `bson:"-" json:"author,omitempty"`
}

// NewStory builds a story stamped at now with the fixed 24h lifetime.
func NewStory(authorID string, media Media, loc Location, caption string, now time.Time) (*Story, error) {
	if authorID == "" {
		return nil, apperr.Field("authorId", "author id is required")
	}
	if _, err := NewMedia(media.URL, media.Kind); err != nil {
		return nil, err
	}
	if _, err := NewLocation(loc.Latitude, loc.Longitude); err != nil {
		return nil, err
	}
	created := stamp(now)
	return &Story{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Media:     media,
		Caption:   strings.TrimSpace(caption),
		Location:  loc,
		Reactions: []Reaction{},
		Comments:  []Comment{},
		CreatedAt: created,
		ExpiresAt: created.Add(StoryTTL),
	}, nil
}

func (s *Story) IsActive(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

func (s *Story) State(now time.Time) State {
	if s.IsActive(now) {
		return StateActive
	}
	return StateExpired
}

// Normalize replaces nil collections left by decoding with empty ones.
func (s *Story) Normalize() {
	if s.Reactions == nil {
		s.Reactions = []Reaction{}
	}
	if s.Comments == nil {
		s.Comments = []Comment{}
	}
}

// HasReaction reports whether the (userID, emoji) pair is present.
func (s *Story) HasReaction(userID, emoji string) bool {
	for _, r := range s.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// stamp truncates to the store's millisecond precision.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
