// Package events publishes story lifecycle events for downstream consumers
// such as the notification service.
package events

import (
	"context"
	"time"
)

type Type string

const (
	StoryCreated    Type = "story.created"
	StoryDeleted    Type = "story.deleted"
	ReactionAdded   Type = "story.reaction_added"
	ReactionRemoved Type = "story.reaction_removed"
	CommentAdded    Type = "story.comment_added"
)

type Event struct {
	Type       Type      `json:"type"`
	StoryID    string    `json:"story_id"`
	AuthorID   string    `json:"author_id,omitempty"`
	ActorID    string    `json:"actor_id"`
	Emoji      string    `json:"emoji,omitempty"`
	CommentID  string    `json:"comment_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error { return nil }

// Recorder keeps published events in memory for tests.
type Recorder struct {
	events chan Event
}

func NewRecorder(size int) *Recorder {
	return &Recorder{events: make(chan Event, size)}
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	select {
	case r.events <- e:
	default:
	}
	return nil
}

func (r *Recorder) Close() error { return nil }

// Drain returns everything recorded so far.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		default:
			return out
		}
	}
}
