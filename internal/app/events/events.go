package events

import (
	"context"
	"time"
)

// Event is a chat lifecycle notification published to the broker. Key selects
// the partition so events for one chat stay ordered.
type Event struct {
	Name       string         `json:"name"`
	Key        string         `json:"key"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

const (
	ChatLinked      = "chat.linked"
	ChatSeen        = "chat.seen"
	ChatMessageSent = "chat.message_sent"
	UserRegistered  = "user.registered"
)

// Publisher delivers events to interested consumers. Publishing is
// best-effort from the caller's point of view: services log failures but do
// not fail the user action over them.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Noop drops events. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
