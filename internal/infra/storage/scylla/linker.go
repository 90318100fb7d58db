package scylla

import (
	"context"
	"errors"

	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
)

// ThreadArchive is the slice of the thread store the linker needs: a
// CAS-guarded create and a compensating delete.
type ThreadArchive interface {
	Create(ctx context.Context, thread domainchat.Thread) error
	Remove(ctx context.Context, id domainchat.ChatID) error
}

// Linker links two users when threads live in Scylla and the index lives
// elsewhere. Scylla cannot join a cross-store transaction, so the link is
// made retry-safe instead: both participants' entries are checked for the
// pair up front, a thread left behind by a failed first append is deleted,
// and a half-link (thread plus the target's entry, initiator append lost)
// is finished under its original chat id rather than minting a second
// thread for the same pair.
type Linker struct {
	Threads ThreadArchive
	Indexes domainchat.IndexRepository
}

func (l *Linker) Link(ctx context.Context, params domainchat.LinkParams) (domainchat.ChatID, error) {
	if err := l.ensureNotLinked(ctx, params.InitiatorID, params.TargetID); err != nil {
		return "", err
	}
	if chatID, ok, err := l.pendingChat(ctx, params.TargetID, params.InitiatorID); err != nil {
		return "", err
	} else if ok {
		// Finish the earlier attempt: the initiator's entry is the only
		// missing piece.
		repaired := params.InitiatorEntry
		repaired.ChatID = chatID
		if err := l.Indexes.Append(ctx, params.InitiatorID, repaired); err != nil && !errors.Is(err, domainchat.ErrAlreadyLinked) {
			return "", err
		}
		return chatID, nil
	}

	if err := l.Threads.Create(ctx, params.Thread); err != nil {
		return "", err
	}
	if err := l.Indexes.Append(ctx, params.TargetID, params.TargetEntry); err != nil {
		// Nothing references the thread yet; drop it so the failure leaves
		// no orphan behind.
		_ = l.Threads.Remove(ctx, params.Thread.ID)
		return "", err
	}
	if err := l.Indexes.Append(ctx, params.InitiatorID, params.InitiatorEntry); err != nil {
		return "", err
	}
	return params.Thread.ID, nil
}

func (l *Linker) ensureNotLinked(ctx context.Context, initiator, target domainuser.ID) error {
	if _, ok, err := l.pendingChat(ctx, initiator, target); err != nil {
		return err
	} else if ok {
		return domainchat.ErrAlreadyLinked
	}
	return nil
}

// pendingChat reports whether owner already holds an entry pointing at peer
// and, if so, under which chat id.
func (l *Linker) pendingChat(ctx context.Context, owner, peer domainuser.ID) (domainchat.ChatID, bool, error) {
	entries, err := l.Indexes.Entries(ctx, owner)
	if err != nil {
		if errors.Is(err, domainchat.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	for _, entry := range entries {
		if entry.ReceiverID == peer {
			return entry.ChatID, true, nil
		}
	}
	return "", false, nil
}

var _ domainchat.Linker = (*Linker)(nil)
var _ ThreadArchive = (*ThreadStore)(nil)
