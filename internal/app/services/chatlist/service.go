package chatlist

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chatlink/internal/app/events"
	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
)

// Entry pairs one chat summary with its resolved peer profile.
type Entry struct {
	Summary domainchat.Summary
	User    *domainuser.Profile
}

// ActiveChat is the chat/peer pair handed to the rest of the application
// after a successful selection.
type ActiveChat struct {
	ChatID domainchat.ChatID
	Peer   *domainuser.Profile
}

// Service produces the live, sorted chat list for a signed-in user: it reads
// the user's index, resolves every entry's peer against the directory and
// silently drops entries whose peer cannot be resolved.
type Service struct {
	Users   domainuser.Repository
	Indexes domainchat.IndexRepository
	Watcher domainchat.IndexWatcher
	Events  events.Publisher
	Logger  *slog.Logger
}

// Snapshot returns the viewer's resolved chat list, newest activity first,
// narrowed by the optional case-insensitive username filter. Filtering is a
// pure view concern and never touches stored state.
func (s *Service) Snapshot(ctx context.Context, viewer domainuser.ID, filter string) ([]Entry, error) {
	summaries, err := s.Indexes.Entries(ctx, viewer)
	if err != nil {
		return nil, err
	}
	entries := s.resolve(ctx, summaries)
	return Filter(entries, filter), nil
}

// Select opens a chat from the list: it verifies the peer still resolves,
// refuses peers that block the viewer, marks the single entry seen via a
// point update and returns the active pair. On Forbidden nothing is mutated.
func (s *Service) Select(ctx context.Context, viewer domainuser.ID, chatID domainchat.ChatID) (*ActiveChat, error) {
	summaries, err := s.Indexes.Entries(ctx, viewer)
	if err != nil {
		return nil, err
	}
	var selected *domainchat.Summary
	for i := range summaries {
		if summaries[i].ChatID == chatID {
			selected = &summaries[i]
			break
		}
	}
	if selected == nil {
		return nil, domainchat.ErrNotFound
	}
	peer, err := s.Users.ByID(ctx, selected.ReceiverID)
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return nil, domainchat.ErrInvalidState
		}
		return nil, err
	}
	if peer.HasBlocked(viewer) {
		return nil, domainchat.ErrForbidden
	}
	if err := s.Indexes.MarkSeen(ctx, viewer, chatID, true); err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Name:       events.ChatSeen,
		Key:        string(chatID),
		OccurredAt: time.Now().UTC(),
		Payload:    map[string]any{"chat_id": string(chatID), "user_id": string(viewer)},
	})
	return &ActiveChat{ChatID: chatID, Peer: peer}, nil
}

// Subscription is a scoped live feed of resolved chat lists. Close must be
// called on view teardown; the SSE handler defers it.
type Subscription struct {
	updates chan []Entry
	closed  chan struct{}
	once    sync.Once
	inner   domainchat.Subscription
}

// Updates yields a fresh resolved, sorted list on every index change. The
// channel closes after Close or when the upstream watcher ends.
func (s *Subscription) Updates() <-chan []Entry { return s.updates }

// Close releases the underlying watcher. Safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.inner.Close()
	})
	return err
}

// Subscribe opens a live feed of the viewer's chat list. The first update is
// the current state; later updates follow index commits in order.
func (s *Service) Subscribe(ctx context.Context, viewer domainuser.ID) (*Subscription, error) {
	inner, err := s.Watcher.Watch(ctx, viewer)
	if err != nil {
		return nil, err
	}
	sub := &Subscription{
		updates: make(chan []Entry, 1),
		closed:  make(chan struct{}),
		inner:   inner,
	}
	go s.pump(ctx, sub)
	return sub, nil
}

func (s *Service) pump(ctx context.Context, sub *Subscription) {
	defer close(sub.updates)
	for {
		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case <-sub.closed:
			return
		case summaries, ok := <-sub.inner.Updates():
			if !ok {
				return
			}
			entries := s.resolve(ctx, summaries)
			// Coalesce: a stale pending snapshot is dropped in favor of the
			// newer one so a slow consumer only ever sees the latest state.
			select {
			case sub.updates <- entries:
			default:
				select {
				case <-sub.updates:
				default:
				}
				sub.updates <- entries
			}
		}
	}
}

// resolve maps summaries to entries via point-in-time directory reads,
// newest activity first. Entries whose peer is missing or unreadable are
// dropped with a log line; a dangling reference is stale data, not a
// user-facing fault.
func (s *Service) resolve(ctx context.Context, summaries []domainchat.Summary) []Entry {
	domainchat.SortByActivity(summaries)
	entries := make([]Entry, 0, len(summaries))
	for _, summary := range summaries {
		peer, err := s.Users.ByID(ctx, summary.ReceiverID)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("dropping chat entry with unresolved peer",
					"chat_id", summary.ChatID, "receiver_id", summary.ReceiverID, "error", err)
			}
			continue
		}
		entries = append(entries, Entry{Summary: summary, User: peer})
	}
	return entries
}

// Filter narrows entries by case-insensitive substring match on the resolved
// username. An empty needle keeps everything.
func Filter(entries []Entry, needle string) []Entry {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return entries
	}
	filtered := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.User != nil && strings.Contains(strings.ToLower(entry.User.Username), needle) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, event); err != nil && s.Logger != nil {
		s.Logger.Warn("event publish failed", "event", event.Name, "error", err)
	}
}
