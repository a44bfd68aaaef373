package domain

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/beunreal/story-service/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocation(t *testing.T) {
	cases := []struct {
		name    string
		lat     float64
		lng     float64
		wantErr bool
	}{
		{"paris", 48.8566, 2.3522, false},
		{"north pole", 90, 0, false},
		{"antimeridian", -10, -180, false},
		{"lat too high", 90.0001, 0, true},
		{"lng too low", 0, -180.5, true},
		{"nan", math.NaN(), 0, true},
		{"inf", 0, math.Inf(1), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := NewLocation(tc.lat, tc.lng)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperr.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.lat, loc.Latitude)
		})
	}
}

func TestNewLocationReportsBothFields(t *testing.T) {
	_, err := NewLocation(100, 200)

	fields := apperr.FieldsOf(err)
	require.Len(t, fields, 2)
	assert.Equal(t, "latitude", fields[0].Field)
	assert.Equal(t, "longitude", fields[1].Field)
}

func TestParseMediaKind(t *testing.T) {
	k, err := ParseMediaKind(" Video ")
	require.NoError(t, err)
	assert.Equal(t, MediaVideo, k)

	_, err = ParseMediaKind("gif")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestNewMediaRequiresURL(t *testing.T) {
	_, err := NewMedia("  ", MediaImage)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestNewStoryExpiresAfter24h(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 123456789, time.UTC)
	media, _ := NewMedia("https://cdn.example/v.mp4", MediaVideo)
	loc, _ := NewLocation(48.8566, 2.3522)

	s, err := NewStory("u1", media, loc, "  hello  ", now)
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "hello", s.Caption)
	assert.Equal(t, StoryTTL, s.ExpiresAt.Sub(s.CreatedAt))
	assert.Equal(t, now.Truncate(time.Millisecond), s.CreatedAt)
	assert.NotNil(t, s.Reactions)
	assert.NotNil(t, s.Comments)
}

func TestNewStoryRejectsMissingParts(t *testing.T) {
	now := time.Now()
	loc, _ := NewLocation(1, 1)

	_, err := NewStory("", Media{URL: "u", Kind: MediaImage}, loc, "", now)
	assert.Error(t, err)

	_, err = NewStory("u1", Media{Kind: MediaImage}, loc, "", now)
	assert.Error(t, err)

	_, err = NewStory("u1", Media{URL: "u", Kind: MediaImage}, Location{Latitude: 91}, "", now)
	assert.Error(t, err)
}

func TestStoryState(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewStory("u1", Media{URL: "u", Kind: MediaImage}, Location{}, "", t0)
	require.NoError(t, err)

	assert.Equal(t, StateActive, s.State(t0.Add(23*time.Hour)))
	assert.Equal(t, StateExpired, s.State(t0.Add(24*time.Hour)))
	assert.Equal(t, StateExpired, s.State(t0.Add(25*time.Hour)))
}

func TestNewCommentTrimsAndRejectsEmpty(t *testing.T) {
	c, err := NewComment("u1", "  hi ", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "hi", c.Content)
	assert.NotEmpty(t, c.ID)

	_, err = NewComment("u1", " \n\t", time.Now())
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestNewCommentRejectsOverLimit(t *testing.T) {
	_, err := NewComment("u1", strings.Repeat("é", MaxCommentRunes), time.Now())
	require.NoError(t, err)

	_, err = NewComment("u1", strings.Repeat("é", MaxCommentRunes+1), time.Now())
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "content", apperr.FieldsOf(err)[0].Field)
}

func TestNewReactionRequiresEmoji(t *testing.T) {
	_, err := NewReaction("u1", "", time.Now())
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	r, err := NewReaction("u1", "❤️", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "❤️", r.Emoji)

	// family emoji is a multi-rune ZWJ sequence
	_, err = NewReaction("u1", "👨‍👩‍👧‍👦", time.Now())
	require.NoError(t, err)

	_, err = NewReaction("u1", strings.Repeat("x", MaxEmojiRunes+1), time.Now())
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "emoji", apperr.FieldsOf(err)[0].Field)
}

func TestHasReaction(t *testing.T) {
	s := &Story{Reactions: []Reaction{{UserID: "a", Emoji: "👍"}}}

	assert.True(t, s.HasReaction("a", "👍"))
	assert.False(t, s.HasReaction("a", "❤️"))
	assert.False(t, s.HasReaction("b", "👍"))
}
