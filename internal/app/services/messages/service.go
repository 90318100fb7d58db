package messages

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chatlink/internal/app/events"
	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
)

// Service appends messages to chat threads and keeps both participants'
// summaries in step: the sender's copy is marked seen, the receiver's unseen.
// The two summary updates are independent point updates by design; either
// copy may briefly lag the thread itself.
type Service struct {
	Threads domainchat.ThreadRepository
	Indexes domainchat.IndexRepository
	Events  events.Publisher
	Logger  *slog.Logger
}

// Send appends text to the chat's thread. The sender must hold a summary for
// the chat, which is also where the receiver is looked up.
func (s *Service) Send(ctx context.Context, sender domainuser.ID, chatID domainchat.ChatID, text string) (*domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	summary, err := s.summaryFor(ctx, sender, chatID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	message, err := domainchat.NewMessage(domainchat.NewMessageParams{
		ID:       uuid.NewString(),
		ChatID:   chatID,
		SenderID: sender,
		Text:     text,
		Now:      now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Threads.Append(ctx, message); err != nil {
		return nil, err
	}

	snippet := domainchat.Snippet(message.Text)
	if err := s.Indexes.SetLastMessage(ctx, sender, chatID, snippet, now, true); err != nil {
		return nil, err
	}
	if err := s.Indexes.SetLastMessage(ctx, summary.ReceiverID, chatID, snippet, now, false); err != nil {
		// The receiver may have no copy if the link was made before their
		// index existed or the entry was removed; the thread write stands.
		if !errors.Is(err, domainchat.ErrNotFound) {
			return nil, err
		}
		if s.Logger != nil {
			s.Logger.Warn("receiver summary missing on send", "chat_id", chatID, "receiver_id", summary.ReceiverID)
		}
	}

	s.publish(ctx, events.Event{
		Name:       events.ChatMessageSent,
		Key:        string(chatID),
		OccurredAt: now,
		Payload: map[string]any{
			"chat_id":    string(chatID),
			"message_id": message.ID,
			"sender_id":  string(sender),
		},
	})
	return &message, nil
}

// History returns up to limit messages of the chat in ascending order. Only
// participants may read a thread.
func (s *Service) History(ctx context.Context, requester domainuser.ID, chatID domainchat.ChatID, limit int) ([]domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	if _, err := s.summaryFor(ctx, requester, chatID); err != nil {
		return nil, err
	}
	return s.Threads.Messages(ctx, chatID, limit)
}

func (s *Service) summaryFor(ctx context.Context, owner domainuser.ID, chatID domainchat.ChatID) (*domainchat.Summary, error) {
	summaries, err := s.Indexes.Entries(ctx, owner)
	if err != nil {
		if errors.Is(err, domainchat.ErrNotFound) {
			return nil, domainchat.ErrNotParticipant
		}
		return nil, err
	}
	for i := range summaries {
		if summaries[i].ChatID == chatID {
			return &summaries[i], nil
		}
	}
	return nil, domainchat.ErrNotParticipant
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, event); err != nil && s.Logger != nil {
		s.Logger.Warn("event publish failed", "event", event.Name, "error", err)
	}
}

func (s *Service) ensureDependencies() error {
	switch {
	case s.Threads == nil:
		return errors.New("messages: thread repository required")
	case s.Indexes == nil:
		return errors.New("messages: index repository required")
	default:
		return nil
	}
}
