package messages

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
	"chatlink/internal/infra/storage/memory"
)

func linkedFixture(t *testing.T) (*Service, *memory.ChatStore, domainuser.ID, domainuser.ID, domainchat.ChatID) {
	t.Helper()
	ctx := context.Background()
	chats := memory.NewChatStore()
	alice := domainuser.ID("u1")
	bob := domainuser.ID("u2")
	chatID := domainchat.ChatID("c1")

	require.NoError(t, chats.Create(ctx, alice))
	require.NoError(t, chats.Create(ctx, bob))

	now := time.Now().UTC()
	aliceEntry, err := domainchat.NewSummary(domainchat.NewSummaryParams{ChatID: chatID, ReceiverID: bob, Now: now})
	require.NoError(t, err)
	bobEntry, err := domainchat.NewSummary(domainchat.NewSummaryParams{ChatID: chatID, ReceiverID: alice, Now: now})
	require.NoError(t, err)
	_, err = chats.Link(ctx, domainchat.LinkParams{
		Thread:         domainchat.Thread{ID: chatID, CreatedAt: now},
		InitiatorID:    alice,
		TargetID:       bob,
		InitiatorEntry: aliceEntry,
		TargetEntry:    bobEntry,
	})
	require.NoError(t, err)

	svc := &Service{Threads: chats.Threads(), Indexes: chats}
	return svc, chats, alice, bob, chatID
}

func TestSendUpdatesBothSummaries(t *testing.T) {
	svc, chats, alice, bob, chatID := linkedFixture(t)
	ctx := context.Background()

	message, err := svc.Send(ctx, alice, chatID, "  hello bob  ")
	require.NoError(t, err)
	require.Equal(t, "hello bob", message.Text)

	aliceEntries, err := chats.Entries(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, "hello bob", aliceEntries[0].LastMessage)
	require.True(t, aliceEntries[0].IsSeen, "sender sees their own message")

	bobEntries, err := chats.Entries(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, "hello bob", bobEntries[0].LastMessage)
	require.False(t, bobEntries[0].IsSeen, "receiver has unread activity")
	require.Equal(t, message.CreatedAt, bobEntries[0].UpdatedAt)
}

func TestSendRequiresParticipation(t *testing.T) {
	svc, chats, _, _, chatID := linkedFixture(t)
	ctx := context.Background()
	require.NoError(t, chats.Create(ctx, "outsider"))

	_, err := svc.Send(ctx, "outsider", chatID, "hi")
	require.ErrorIs(t, err, domainchat.ErrNotParticipant)

	_, err = svc.Send(ctx, "nobody", chatID, "hi")
	require.ErrorIs(t, err, domainchat.ErrNotParticipant)
}

func TestSendRejectsEmptyText(t *testing.T) {
	svc, _, alice, _, chatID := linkedFixture(t)

	_, err := svc.Send(context.Background(), alice, chatID, "   ")
	require.ErrorIs(t, err, domainchat.ErrEmptyMessage)
}

func TestHistoryAscendingWithLimit(t *testing.T) {
	svc, _, alice, bob, chatID := linkedFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		sender := alice
		if i%2 == 1 {
			sender = bob
		}
		_, err := svc.Send(ctx, sender, chatID, "message "+strconv.Itoa(i))
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, alice, chatID, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "message 2", history[0].Text)
	require.Equal(t, "message 4", history[2].Text)
}

func TestHistoryRequiresParticipation(t *testing.T) {
	svc, chats, _, _, chatID := linkedFixture(t)
	ctx := context.Background()
	require.NoError(t, chats.Create(ctx, "outsider"))

	_, err := svc.History(ctx, "outsider", chatID, 10)
	require.ErrorIs(t, err, domainchat.ErrNotParticipant)
}
