package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSummaryValidation(t *testing.T) {
	_, err := NewSummary(NewSummaryParams{ReceiverID: "u2"})
	require.ErrorIs(t, err, ErrChatIDRequired)

	_, err = NewSummary(NewSummaryParams{ChatID: "c1"})
	require.ErrorIs(t, err, ErrPeerRequired)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	summary, err := NewSummary(NewSummaryParams{ChatID: "c1", ReceiverID: "u2", Now: now})
	require.NoError(t, err)
	require.Equal(t, now, summary.UpdatedAt)
	require.False(t, summary.IsSeen)
	require.Empty(t, summary.LastMessage)
}

func TestSortByActivity(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	summaries := []Summary{
		{ChatID: "idle"},
		{ChatID: "old", UpdatedAt: base.Add(-time.Hour)},
		{ChatID: "fresh", UpdatedAt: base},
		{ChatID: "idle-too"},
	}
	SortByActivity(summaries)

	require.Equal(t, ChatID("fresh"), summaries[0].ChatID)
	require.Equal(t, ChatID("old"), summaries[1].ChatID)
	// Untouched entries sink to the bottom and keep their relative order.
	require.Equal(t, ChatID("idle"), summaries[2].ChatID)
	require.Equal(t, ChatID("idle-too"), summaries[3].ChatID)
}

func TestNewMessageValidation(t *testing.T) {
	now := time.Now()
	_, err := NewMessage(NewMessageParams{ID: "m1", ChatID: "c1", SenderID: "u1", Text: "   ", Now: now})
	require.ErrorIs(t, err, ErrEmptyMessage)

	_, err = NewMessage(NewMessageParams{ChatID: "c1", SenderID: "u1", Text: "hi", Now: now})
	require.ErrorIs(t, err, ErrMessageIDRequired)

	_, err = NewMessage(NewMessageParams{ID: "m1", SenderID: "u1", Text: "hi", Now: now})
	require.ErrorIs(t, err, ErrChatIDRequired)

	_, err = NewMessage(NewMessageParams{ID: "m1", ChatID: "c1", Text: "hi", Now: now})
	require.ErrorIs(t, err, ErrSenderRequired)

	message, err := NewMessage(NewMessageParams{ID: "m1", ChatID: "c1", SenderID: "u1", Text: "hi", Now: now})
	require.NoError(t, err)
	require.Equal(t, "hi", message.Text)
	require.Equal(t, now.UTC(), message.CreatedAt)
}

func TestSnippetBoundsByRunes(t *testing.T) {
	require.Equal(t, "short", Snippet("short"))

	long := strings.Repeat("я", SnippetLimit+10)
	snippet := Snippet(long)
	require.Equal(t, SnippetLimit, len([]rune(snippet)))
}
