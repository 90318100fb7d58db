package linking

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

// Service starts a new chat between the current user and a contact found by
// exact username. The thread creation and both index appends are applied as
// one atomic unit by the Linker, so a failed link leaves no partial state and
// a retry is safe.
type Service struct {
	Users  domainuser.Repository
	Linker domainchat.Linker
	Events events.Publisher
	Logger *slog.Logger
}

type LinkResult struct {
	ChatID domainchat.ChatID
	Target *domainuser.Profile
}

// Link searches the directory for targetUsername and links the two users.
// An absent username surfaces as user.ErrNotFound; linking someone who has
// blocked the initiator fails with chat.ErrForbidden before any write.
func (s *Service) Link(ctx context.Context, initiator domainuser.ID, targetUsername string) (*LinkResult, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	username, err := domainuser.NormalizeUsername(targetUsername)
	if err != nil {
		return nil, err
	}
	target, err := s.Users.ByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if target.ID == initiator {
		return nil, domainchat.ErrSelfLink
	}
	if target.HasBlocked(initiator) {
		return nil, domainchat.ErrForbidden
	}

	now := time.Now().UTC()
	chatID := domainchat.ChatID(uuid.NewString())
	initiatorEntry, err := domainchat.NewSummary(domainchat.NewSummaryParams{
		ChatID:     chatID,
		ReceiverID: target.ID,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}
	targetEntry, err := domainchat.NewSummary(domainchat.NewSummaryParams{
		ChatID:     chatID,
		ReceiverID: initiator,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	// The linker reports the chat id the link actually lives under; a backend
	// recovering a half-finished earlier attempt keeps that attempt's id.
	chatID, err = s.Linker.Link(ctx, domainchat.LinkParams{
		Thread:         domainchat.Thread{ID: chatID, CreatedAt: now},
		InitiatorID:    initiator,
		TargetID:       target.ID,
		InitiatorEntry: initiatorEntry,
		TargetEntry:    targetEntry,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Name:       events.ChatLinked,
		Key:        string(chatID),
		OccurredAt: now,
		Payload: map[string]any{
			"chat_id":      string(chatID),
			"initiator_id": string(initiator),
			"target_id":    string(target.ID),
		},
	})
	if s.Logger != nil {
		s.Logger.Info("contact linked", "chat_id", chatID, "initiator_id", initiator, "target_id", target.ID)
	}
	return &LinkResult{ChatID: chatID, Target: target}, nil
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
	case s.Users == nil:
		return errors.New("linking: user repository required")
	case s.Linker == nil:
		return errors.New("linking: linker required")
	default:
		return nil
	}
}
