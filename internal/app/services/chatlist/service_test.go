package chatlist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
	"chatlink/internal/infra/storage/memory"
)

type fixture struct {
	svc   *Service
	users *memory.UserRepository
	chats *memory.ChatStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	users := memory.NewUserRepository()
	chats := memory.NewChatStore()
	return fixture{
		svc:   &Service{Users: users, Indexes: chats, Watcher: chats},
		users: users,
		chats: chats,
	}
}

func (f fixture) seedUser(t *testing.T, id, username string) *domainuser.Profile {
	t.Helper()
	profile, err := domainuser.NewProfile(domainuser.CreateParams{
		ID:           domainuser.ID(id),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	require.NoError(t, f.users.Save(context.Background(), profile))
	require.NoError(t, f.chats.Create(context.Background(), profile.ID))
	return profile
}

func (f fixture) seedChat(t *testing.T, owner, peer domainuser.ID, chatID string, updatedAt time.Time) {
	t.Helper()
	summary, err := domainchat.NewSummary(domainchat.NewSummaryParams{
		ChatID:     domainchat.ChatID(chatID),
		ReceiverID: peer,
		Now:        updatedAt,
	})
	require.NoError(t, err)
	require.NoError(t, f.chats.Append(context.Background(), owner, summary))
}

func TestSnapshotDropsDanglingPeersAndSortsByActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	viewer := f.seedUser(t, "u1", "alice")
	bob := f.seedUser(t, "u2", "bob")
	carol := f.seedUser(t, "u3", "carol")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.seedChat(t, viewer.ID, bob.ID, "c-bob", base.Add(-time.Hour))
	f.seedChat(t, viewer.ID, carol.ID, "c-carol", base)
	// Entry pointing at a user that no longer resolves.
	f.seedChat(t, viewer.ID, "ghost", "c-ghost", base.Add(time.Hour))

	entries, err := f.svc.Snapshot(ctx, viewer.ID, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, domainchat.ChatID("c-carol"), entries[0].Summary.ChatID)
	require.Equal(t, domainchat.ChatID("c-bob"), entries[1].Summary.ChatID)
}

func TestSnapshotWithoutIndex(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Snapshot(context.Background(), "missing", "")
	require.ErrorIs(t, err, domainchat.ErrNotFound)
}

func TestFilterIsCaseInsensitiveAndPure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	viewer := f.seedUser(t, "u1", "alice")
	bob := f.seedUser(t, "u2", "bobby")
	carol := f.seedUser(t, "u3", "carol")

	now := time.Now()
	f.seedChat(t, viewer.ID, bob.ID, "c-bob", now)
	f.seedChat(t, viewer.ID, carol.ID, "c-carol", now.Add(-time.Minute))

	filtered, err := f.svc.Snapshot(ctx, viewer.ID, "OBB")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, "bobby", filtered[0].User.Username)

	// Filtering never touches stored state.
	full, err := f.svc.Snapshot(ctx, viewer.ID, "")
	require.NoError(t, err)
	require.Len(t, full, 2)
}

func TestSelectMarksOnlyThatEntrySeen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	viewer := f.seedUser(t, "u1", "alice")
	bob := f.seedUser(t, "u2", "bob")
	carol := f.seedUser(t, "u3", "carol")

	now := time.Now()
	f.seedChat(t, viewer.ID, bob.ID, "c-bob", now)
	f.seedChat(t, viewer.ID, carol.ID, "c-carol", now)

	active, err := f.svc.Select(ctx, viewer.ID, "c-bob")
	require.NoError(t, err)
	require.Equal(t, bob.ID, active.Peer.ID)

	entries, err := f.chats.Entries(ctx, viewer.ID)
	require.NoError(t, err)
	for _, summary := range entries {
		switch summary.ChatID {
		case "c-bob":
			require.True(t, summary.IsSeen)
		case "c-carol":
			require.False(t, summary.IsSeen)
		}
	}
}

func TestSelectUnknownChat(t *testing.T) {
	f := newFixture(t)
	viewer := f.seedUser(t, "u1", "alice")

	_, err := f.svc.Select(context.Background(), viewer.ID, "missing")
	require.ErrorIs(t, err, domainchat.ErrNotFound)
}

func TestSelectDanglingPeerIsInvalidState(t *testing.T) {
	f := newFixture(t)
	viewer := f.seedUser(t, "u1", "alice")
	f.seedChat(t, viewer.ID, "ghost", "c-ghost", time.Now())

	_, err := f.svc.Select(context.Background(), viewer.ID, "c-ghost")
	require.ErrorIs(t, err, domainchat.ErrInvalidState)
}

func TestSelectBlockedViewerIsForbiddenWithoutMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	viewer := f.seedUser(t, "u1", "alice")
	bob := f.seedUser(t, "u2", "bob")
	f.seedChat(t, viewer.ID, bob.ID, "c-bob", time.Now())

	now := time.Now()
	require.NoError(t, bob.Block(viewer.ID, now))
	require.NoError(t, f.users.SetBlocked(ctx, bob.ID, bob.Blocked, now))

	_, err := f.svc.Select(ctx, viewer.ID, "c-bob")
	require.ErrorIs(t, err, domainchat.ErrForbidden)

	entries, err := f.chats.Entries(ctx, viewer.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, entries[0].IsSeen)
}

func TestSubscribeDeliversCurrentStateThenUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	viewer := f.seedUser(t, "u1", "alice")
	bob := f.seedUser(t, "u2", "bob")

	sub, err := f.svc.Subscribe(ctx, viewer.ID)
	require.NoError(t, err)
	defer sub.Close()

	first := waitForUpdate(t, sub)
	require.Empty(t, first)

	f.seedChat(t, viewer.ID, bob.ID, "c-bob", time.Now())

	next := waitForUpdate(t, sub)
	require.Len(t, next, 1)
	require.Equal(t, domainchat.ChatID("c-bob"), next[0].Summary.ChatID)
	require.Equal(t, "bob", next[0].User.Username)
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	viewer := f.seedUser(t, "u1", "alice")

	sub, err := f.svc.Subscribe(context.Background(), viewer.ID)
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}

func waitForUpdate(t *testing.T, sub *Subscription) []Entry {
	t.Helper()
	select {
	case entries, ok := <-sub.Updates():
		require.True(t, ok, "subscription closed before an update arrived")
		return entries
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription update")
		return nil
	}
}
