package scylla

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
	"chatlink/internal/infra/storage/memory"
)

type fakeArchive struct {
	threads map[domainchat.ChatID]domainchat.Thread
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{threads: make(map[domainchat.ChatID]domainchat.Thread)}
}

func (a *fakeArchive) Create(_ context.Context, thread domainchat.Thread) error {
	if _, ok := a.threads[thread.ID]; ok {
		return domainchat.ErrAlreadyLinked
	}
	a.threads[thread.ID] = thread
	return nil
}

func (a *fakeArchive) Remove(_ context.Context, id domainchat.ChatID) error {
	delete(a.threads, id)
	return nil
}

// flakyIndexes fails Append for one owner, once, then behaves normally.
type flakyIndexes struct {
	domainchat.IndexRepository
	failFor domainuser.ID
}

func (f *flakyIndexes) Append(ctx context.Context, owner domainuser.ID, summary domainchat.Summary) error {
	if owner == f.failFor {
		f.failFor = ""
		return fmt.Errorf("append %s: connection reset", owner)
	}
	return f.IndexRepository.Append(ctx, owner, summary)
}

func linkParams(chatID domainchat.ChatID, initiator, target domainuser.ID) domainchat.LinkParams {
	now := time.Now().UTC()
	return domainchat.LinkParams{
		Thread:         domainchat.Thread{ID: chatID, CreatedAt: now},
		InitiatorID:    initiator,
		TargetID:       target,
		InitiatorEntry: domainchat.Summary{ChatID: chatID, ReceiverID: target, UpdatedAt: now},
		TargetEntry:    domainchat.Summary{ChatID: chatID, ReceiverID: initiator, UpdatedAt: now},
	}
}

func newIndexes(t *testing.T, owners ...domainuser.ID) *memory.ChatStore {
	t.Helper()
	store := memory.NewChatStore()
	for _, owner := range owners {
		require.NoError(t, store.Create(context.Background(), owner))
	}
	return store
}

func TestLinkCreatesThreadAndBothEntries(t *testing.T) {
	archive := newFakeArchive()
	indexes := newIndexes(t, "u1", "u2")
	linker := &Linker{Threads: archive, Indexes: indexes}
	ctx := context.Background()

	chatID, err := linker.Link(ctx, linkParams("c1", "u1", "u2"))
	require.NoError(t, err)
	require.Equal(t, domainchat.ChatID("c1"), chatID)
	require.Contains(t, archive.threads, domainchat.ChatID("c1"))

	_, err = linker.Link(ctx, linkParams("c2", "u1", "u2"))
	require.ErrorIs(t, err, domainchat.ErrAlreadyLinked)
	// The rejected second link created nothing.
	require.NotContains(t, archive.threads, domainchat.ChatID("c2"))
}

func TestLinkChecksBothSidesOfThePair(t *testing.T) {
	archive := newFakeArchive()
	indexes := newIndexes(t, "u1", "u2")
	linker := &Linker{Threads: archive, Indexes: indexes}
	ctx := context.Background()

	_, err := linker.Link(ctx, linkParams("c1", "u1", "u2"))
	require.NoError(t, err)

	// Same pair, opposite direction.
	_, err = linker.Link(ctx, linkParams("c2", "u2", "u1"))
	require.ErrorIs(t, err, domainchat.ErrAlreadyLinked)
	require.Len(t, archive.threads, 1)
}

func TestLinkRemovesThreadWhenFirstAppendFails(t *testing.T) {
	archive := newFakeArchive()
	indexes := newIndexes(t, "u1", "u2")
	linker := &Linker{Threads: archive, Indexes: &flakyIndexes{IndexRepository: indexes, failFor: "u2"}}
	ctx := context.Background()

	_, err := linker.Link(ctx, linkParams("c1", "u1", "u2"))
	require.Error(t, err)
	require.Empty(t, archive.threads, "failed link must not leave an orphaned thread")

	// The retry starts from a clean slate and succeeds.
	chatID, err := linker.Link(ctx, linkParams("c2", "u1", "u2"))
	require.NoError(t, err)
	require.Equal(t, domainchat.ChatID("c2"), chatID)
}

func TestRetryFinishesHalfLinkUnderOriginalChatID(t *testing.T) {
	archive := newFakeArchive()
	indexes := newIndexes(t, "u1", "u2")
	linker := &Linker{Threads: archive, Indexes: &flakyIndexes{IndexRepository: indexes, failFor: "u1"}}
	ctx := context.Background()

	// First attempt: thread and the target's entry land, the initiator's
	// append is lost to a network fault.
	_, err := linker.Link(ctx, linkParams("c1", "u1", "u2"))
	require.Error(t, err)

	// The retry mints a fresh chat id, but the link must resume the earlier
	// attempt: one thread, one entry per side, all under the original id.
	chatID, err := linker.Link(ctx, linkParams("c-retry", "u1", "u2"))
	require.NoError(t, err)
	require.Equal(t, domainchat.ChatID("c1"), chatID)
	require.Len(t, archive.threads, 1)
	require.NotContains(t, archive.threads, domainchat.ChatID("c-retry"))

	u1Entries, err := indexes.Entries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, u1Entries, 1)
	require.Equal(t, domainchat.ChatID("c1"), u1Entries[0].ChatID)

	u2Entries, err := indexes.Entries(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, u2Entries, 1)
	require.Equal(t, domainchat.ChatID("c1"), u2Entries[0].ChatID)

	// A third call now reports the pair as linked.
	_, err = linker.Link(ctx, linkParams("c-again", "u1", "u2"))
	require.ErrorIs(t, err, domainchat.ErrAlreadyLinked)
}
