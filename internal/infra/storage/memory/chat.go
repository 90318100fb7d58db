package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
)

// ChatStore is the in-memory counterpart of the mongo chat storage: keyed
// index entries with point updates, thread message logs, an atomic linker
// and an in-process watch hub. One mutex gives the linker its atomicity.
type ChatStore struct {
	mu      sync.RWMutex
	owners  map[domainuser.ID]bool
	entries map[domainuser.ID]map[domainchat.ChatID]*domainchat.Summary
	threads map[domainchat.ChatID]*domainchat.Thread
	logs    map[domainchat.ChatID][]domainchat.Message

	hubMu       sync.Mutex
	subscribers map[domainuser.ID]map[*hubSubscription]struct{}
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		owners:      make(map[domainuser.ID]bool),
		entries:     make(map[domainuser.ID]map[domainchat.ChatID]*domainchat.Summary),
		threads:     make(map[domainchat.ChatID]*domainchat.Thread),
		logs:        make(map[domainchat.ChatID][]domainchat.Message),
		subscribers: make(map[domainuser.ID]map[*hubSubscription]struct{}),
	}
}

// --- IndexRepository ---

func (s *ChatStore) Create(ctx context.Context, owner domainuser.ID) error {
	if strings.TrimSpace(string(owner)) == "" {
		return domainchat.ErrOwnerRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owners[owner] {
		return domainchat.ErrIndexExists
	}
	s.owners[owner] = true
	s.entries[owner] = make(map[domainchat.ChatID]*domainchat.Summary)
	return nil
}

func (s *ChatStore) Entries(ctx context.Context, owner domainuser.ID) ([]domainchat.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entriesLocked(owner)
}

func (s *ChatStore) entriesLocked(owner domainuser.ID) ([]domainchat.Summary, error) {
	if !s.owners[owner] {
		return nil, domainchat.ErrNotFound
	}
	summaries := make([]domainchat.Summary, 0, len(s.entries[owner]))
	for _, summary := range s.entries[owner] {
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

func (s *ChatStore) Append(ctx context.Context, owner domainuser.ID, summary domainchat.Summary) error {
	s.mu.Lock()
	err := s.appendLocked(owner, summary)
	s.mu.Unlock()
	if err == nil {
		s.notify(owner)
	}
	return err
}

func (s *ChatStore) appendLocked(owner domainuser.ID, summary domainchat.Summary) error {
	if !s.owners[owner] {
		return domainchat.ErrNotFound
	}
	if _, ok := s.entries[owner][summary.ChatID]; ok {
		return domainchat.ErrAlreadyLinked
	}
	clone := summary
	s.entries[owner][summary.ChatID] = &clone
	return nil
}

func (s *ChatStore) MarkSeen(ctx context.Context, owner domainuser.ID, chatID domainchat.ChatID, seen bool) error {
	s.mu.Lock()
	summary, ok := s.entries[owner][chatID]
	if ok {
		summary.IsSeen = seen
	}
	s.mu.Unlock()
	if !ok {
		return domainchat.ErrNotFound
	}
	s.notify(owner)
	return nil
}

func (s *ChatStore) SetLastMessage(ctx context.Context, owner domainuser.ID, chatID domainchat.ChatID, snippet string, at time.Time, seen bool) error {
	s.mu.Lock()
	summary, ok := s.entries[owner][chatID]
	if ok {
		summary.LastMessage = snippet
		summary.UpdatedAt = at.UTC()
		summary.IsSeen = seen
	}
	s.mu.Unlock()
	if !ok {
		return domainchat.ErrNotFound
	}
	s.notify(owner)
	return nil
}

// --- Linker ---

func (s *ChatStore) Link(ctx context.Context, params domainchat.LinkParams) (domainchat.ChatID, error) {
	s.mu.Lock()
	err := s.linkLocked(params)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	s.notify(params.TargetID)
	s.notify(params.InitiatorID)
	return params.Thread.ID, nil
}

func (s *ChatStore) linkLocked(params domainchat.LinkParams) error {
	if !s.owners[params.InitiatorID] || !s.owners[params.TargetID] {
		return domainchat.ErrNotFound
	}
	for _, summary := range s.entries[params.InitiatorID] {
		if summary.ReceiverID == params.TargetID {
			return domainchat.ErrAlreadyLinked
		}
	}
	if _, ok := s.threads[params.Thread.ID]; ok {
		return domainchat.ErrAlreadyLinked
	}
	thread := params.Thread
	s.threads[thread.ID] = &thread
	if err := s.appendLocked(params.TargetID, params.TargetEntry); err != nil {
		delete(s.threads, thread.ID)
		return err
	}
	if err := s.appendLocked(params.InitiatorID, params.InitiatorEntry); err != nil {
		delete(s.entries[params.TargetID], params.TargetEntry.ChatID)
		delete(s.threads, thread.ID)
		return err
	}
	return nil
}

// --- ThreadRepository ---

// Threads returns the thread-log view of the store; the separate type keeps
// the index repository's Append distinct from the message Append.
func (s *ChatStore) Threads() *ThreadStore {
	return &ThreadStore{store: s}
}

type ThreadStore struct {
	store *ChatStore
}

func (t *ThreadStore) ByID(ctx context.Context, id domainchat.ChatID) (*domainchat.Thread, error) {
	return t.store.threadByID(ctx, id)
}

func (t *ThreadStore) Append(ctx context.Context, message domainchat.Message) error {
	return t.store.appendMessage(ctx, message)
}

func (t *ThreadStore) Messages(ctx context.Context, id domainchat.ChatID, limit int) ([]domainchat.Message, error) {
	return t.store.messages(ctx, id, limit)
}

func (s *ChatStore) threadByID(ctx context.Context, id domainchat.ChatID) (*domainchat.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	thread, ok := s.threads[id]
	if !ok {
		return nil, domainchat.ErrNotFound
	}
	clone := *thread
	return &clone, nil
}

func (s *ChatStore) appendMessage(ctx context.Context, message domainchat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[message.ChatID]; !ok {
		return domainchat.ErrNotFound
	}
	s.logs[message.ChatID] = append(s.logs[message.ChatID], message)
	return nil
}

func (s *ChatStore) messages(ctx context.Context, id domainchat.ChatID, limit int) ([]domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.threads[id]; !ok {
		return nil, domainchat.ErrNotFound
	}
	log := s.logs[id]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	return append([]domainchat.Message(nil), log...), nil
}

// --- IndexWatcher ---

func (s *ChatStore) Watch(ctx context.Context, owner domainuser.ID) (domainchat.Subscription, error) {
	s.mu.RLock()
	exists := s.owners[owner]
	s.mu.RUnlock()
	if !exists {
		return nil, domainchat.ErrNotFound
	}

	sub := &hubSubscription{
		store:   s,
		owner:   owner,
		updates: make(chan []domainchat.Summary, 1),
	}
	s.hubMu.Lock()
	if _, ok := s.subscribers[owner]; !ok {
		s.subscribers[owner] = make(map[*hubSubscription]struct{})
	}
	s.subscribers[owner][sub] = struct{}{}
	s.hubMu.Unlock()

	sub.push(s.snapshot(owner))

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	return sub, nil
}

func (s *ChatStore) notify(owner domainuser.ID) {
	summaries := s.snapshot(owner)
	s.hubMu.Lock()
	defer s.hubMu.Unlock()
	for sub := range s.subscribers[owner] {
		sub.push(summaries)
	}
}

func (s *ChatStore) snapshot(owner domainuser.ID) []domainchat.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summaries, err := s.entriesLocked(owner)
	if err != nil {
		return nil
	}
	return summaries
}

type hubSubscription struct {
	store   *ChatStore
	owner   domainuser.ID
	updates chan []domainchat.Summary

	mu     sync.Mutex
	closed bool
}

func (s *hubSubscription) Updates() <-chan []domainchat.Summary { return s.updates }

func (s *hubSubscription) Close() error {
	s.store.hubMu.Lock()
	if subs, ok := s.store.subscribers[s.owner]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.store.subscribers, s.owner)
		}
	}
	s.store.hubMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.updates)
	}
	return nil
}

// push replaces a pending stale snapshot instead of blocking the writer,
// the same drop-oldest policy the mongo watcher uses.
func (s *hubSubscription) push(summaries []domainchat.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.updates <- summaries:
	default:
		select {
		case <-s.updates:
		default:
		}
		s.updates <- summaries
	}
}
