package scylla

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gocql/gocql"

	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
)

// ThreadStore keeps chat threads and message logs in Scylla. The message
// table clusters by (created_at, message_id), so history reads come back in
// append order without a client-side sort.
type ThreadStore struct {
	session *gocql.Session
	logger  *slog.Logger
}

func NewThreadStore(session *gocql.Session, logger *slog.Logger) *ThreadStore {
	return &ThreadStore{session: session, logger: logger}
}

// Create inserts the thread row. Unlike the mongo backend the archive write
// is not transactional with the index appends; the linker using this backend
// treats thread creation as the first, idempotency-guarded step.
func (s *ThreadStore) Create(ctx context.Context, thread domainchat.Thread) error {
	if s.session == nil {
		return errors.New("scylla session not initialized")
	}
	applied, err := s.session.
		Query(`INSERT INTO threads (chat_id, created_at) VALUES (?, ?) IF NOT EXISTS`,
			string(thread.ID), thread.CreatedAt.UTC()).
		WithContext(ctx).
		ScanCAS(nil, nil)
	if err != nil {
		return err
	}
	if !applied {
		return domainchat.ErrAlreadyLinked
	}
	return nil
}

// Remove deletes the thread row. The linker calls it to compensate a link
// whose index appends never landed, so there are no messages to clean up.
func (s *ThreadStore) Remove(ctx context.Context, id domainchat.ChatID) error {
	if s.session == nil {
		return errors.New("scylla session not initialized")
	}
	return s.session.
		Query(`DELETE FROM threads WHERE chat_id = ?`, string(id)).
		WithContext(ctx).
		Exec()
}

func (s *ThreadStore) ByID(ctx context.Context, id domainchat.ChatID) (*domainchat.Thread, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	var chatID string
	var createdAt time.Time
	err := s.session.
		Query(`SELECT chat_id, created_at FROM threads WHERE chat_id = ? LIMIT 1`, string(id)).
		WithContext(ctx).
		Consistency(gocql.One).
		Scan(&chatID, &createdAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domainchat.ErrNotFound
		}
		return nil, err
	}
	return &domainchat.Thread{ID: domainchat.ChatID(chatID), CreatedAt: createdAt.UTC()}, nil
}

func (s *ThreadStore) Append(ctx context.Context, message domainchat.Message) error {
	if s.session == nil {
		return errors.New("scylla session not initialized")
	}
	if _, err := s.ByID(ctx, message.ChatID); err != nil {
		return err
	}
	return s.session.
		Query(`INSERT INTO messages (chat_id, message_id, sender_id, text, created_at) VALUES (?, ?, ?, ?, ?)`,
			string(message.ChatID), message.ID, string(message.SenderID), message.Text, message.CreatedAt.UTC()).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec()
}

func (s *ThreadStore) Messages(ctx context.Context, id domainchat.ChatID, limit int) ([]domainchat.Message, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	if _, err := s.ByID(ctx, id); err != nil {
		return nil, err
	}
	query := `SELECT chat_id, message_id, sender_id, text, created_at FROM messages WHERE chat_id = ?`
	q := s.session.Query(query, string(id)).WithContext(ctx).Consistency(gocql.One)
	iter := q.Iter()

	var (
		chatID    string
		messageID string
		senderID  string
		text      string
		createdAt time.Time
	)
	messages := make([]domainchat.Message, 0)
	for iter.Scan(&chatID, &messageID, &senderID, &text, &createdAt) {
		messages = append(messages, domainchat.Message{
			ID:        messageID,
			ChatID:    domainchat.ChatID(chatID),
			SenderID:  domainuser.ID(senderID),
			Text:      text,
			CreatedAt: createdAt.UTC(),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}
