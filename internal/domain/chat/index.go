package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"chatlink/internal/domain/user"
)

var (
	ErrChatIDRequired = errors.New("chat: chat id is required")
	ErrOwnerRequired  = errors.New("chat: owner id is required")
	ErrPeerRequired   = errors.New("chat: receiver id is required")
	ErrNotFound       = errors.New("chat: not found")
	ErrIndexExists    = errors.New("chat: index already exists for owner")
	ErrAlreadyLinked  = errors.New("chat: participants already linked")
	ErrSelfLink       = errors.New("chat: cannot start a chat with yourself")
	ErrForbidden      = errors.New("chat: blocked by this user")
	ErrInvalidState   = errors.New("chat: entry has no resolved user")
	ErrNotParticipant = errors.New("chat: not a participant")
)

type ChatID string

// Summary is one participant's denormalized view of a chat: its own seen flag
// and latest-message snapshot, independent of the other participant's copy.
type Summary struct {
	ChatID      ChatID
	ReceiverID  user.ID
	LastMessage string
	UpdatedAt   time.Time
	IsSeen      bool
}

type NewSummaryParams struct {
	ChatID     ChatID
	ReceiverID user.ID
	Now        time.Time
}

func NewSummary(params NewSummaryParams) (Summary, error) {
	if strings.TrimSpace(string(params.ChatID)) == "" {
		return Summary{}, ErrChatIDRequired
	}
	if strings.TrimSpace(string(params.ReceiverID)) == "" {
		return Summary{}, ErrPeerRequired
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	return Summary{
		ChatID:     params.ChatID,
		ReceiverID: params.ReceiverID,
		UpdatedAt:  now.UTC(),
	}, nil
}

// SortByActivity orders summaries newest-first. A zero UpdatedAt sorts as the
// epoch, so never-touched entries sink to the bottom. The sort is stable so
// equal timestamps keep their stored order.
func SortByActivity(summaries []Summary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
}

// IndexRepository stores per-owner chat summaries as keyed entries supporting
// point updates. The whole-list rewrite of earlier designs is intentionally
// not part of this contract.
type IndexRepository interface {
	// Create provisions an empty index for the owner. ErrIndexExists when the
	// owner already has one.
	Create(ctx context.Context, owner user.ID) error
	// Entries returns all summaries for the owner. An owner with no index
	// yields ErrNotFound; an empty index yields an empty slice.
	Entries(ctx context.Context, owner user.ID) ([]Summary, error)
	// Append adds one summary to the owner's index.
	Append(ctx context.Context, owner user.ID, summary Summary) error
	// MarkSeen flips the seen flag of a single entry. ErrNotFound when the
	// owner holds no summary for the chat.
	MarkSeen(ctx context.Context, owner user.ID, chatID ChatID, seen bool) error
	// SetLastMessage updates a single entry's latest-message snapshot.
	SetLastMessage(ctx context.Context, owner user.ID, chatID ChatID, snippet string, at time.Time, seen bool) error
}

// LinkParams describes one atomic contact-link: a fresh thread plus one
// summary appended to each participant's index.
type LinkParams struct {
	Thread         Thread
	InitiatorID    user.ID
	TargetID       user.ID
	InitiatorEntry Summary
	TargetEntry    Summary
}

// Linker applies a contact link as a single atomic unit, so a failure leaves
// neither an orphaned thread nor a one-sided chat. ErrAlreadyLinked when the
// pair already shares a chat. The returned chat id is the one the link
// actually lives under: a backend recovering from an earlier partial failure
// may finish that attempt instead of creating the thread passed in params.
type Linker interface {
	Link(ctx context.Context, params LinkParams) (ChatID, error)
}

// Subscription is a live feed of one owner's index. Every change delivers the
// full current entry list, in commit order for that owner. Close releases the
// feed and must be called on teardown.
type Subscription interface {
	Updates() <-chan []Summary
	Close() error
}

// IndexWatcher opens subscriptions on owners' indexes.
type IndexWatcher interface {
	Watch(ctx context.Context, owner user.ID) (Subscription, error)
}
