package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatlink/internal/domain/user"
)

var (
	ErrMessageIDRequired = errors.New("chat: message id is required")
	ErrSenderRequired    = errors.New("chat: sender id is required")
	ErrEmptyMessage      = errors.New("chat: message text is required")
)

// SnippetLimit bounds the last-message preview stored on summaries.
const SnippetLimit = 500

// Thread is the canonical message log for one chat.
type Thread struct {
	ID        ChatID
	CreatedAt time.Time
}

// Message is one entry in a thread's append-only log.
type Message struct {
	ID        string
	ChatID    ChatID
	SenderID  user.ID
	Text      string
	CreatedAt time.Time
}

type NewMessageParams struct {
	ID       string
	ChatID   ChatID
	SenderID user.ID
	Text     string
	Now      time.Time
}

func NewMessage(params NewMessageParams) (Message, error) {
	if strings.TrimSpace(params.ID) == "" {
		return Message{}, ErrMessageIDRequired
	}
	if strings.TrimSpace(string(params.ChatID)) == "" {
		return Message{}, ErrChatIDRequired
	}
	if strings.TrimSpace(string(params.SenderID)) == "" {
		return Message{}, ErrSenderRequired
	}
	text := strings.TrimSpace(params.Text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	return Message{
		ID:        params.ID,
		ChatID:    params.ChatID,
		SenderID:  params.SenderID,
		Text:      text,
		CreatedAt: now.UTC(),
	}, nil
}

// Snippet trims message text to the preview length stored on summaries.
func Snippet(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= SnippetLimit {
		return string(runes)
	}
	return string(runes[:SnippetLimit])
}

// ThreadRepository stores threads and their message logs. Messages are
// append-only.
type ThreadRepository interface {
	ByID(ctx context.Context, id ChatID) (*Thread, error)
	Append(ctx context.Context, message Message) error
	// Messages returns the newest messages of a thread in ascending creation
	// order, at most limit entries (all when limit <= 0).
	Messages(ctx context.Context, id ChatID, limit int) ([]Message, error)
}
