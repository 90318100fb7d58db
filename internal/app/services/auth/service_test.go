package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainauth "chatlink/internal/domain/auth"
	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
	"chatlink/internal/infra/storage/memory"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return fmt.Errorf("hash mismatch")
	}
	return nil
}

type sequenceTokens struct{ n int }

func (g *sequenceTokens) NewToken() (string, error) {
	g.n++
	return fmt.Sprintf("token-%d", g.n), nil
}

func newService(t *testing.T) (*Service, *memory.ChatStore) {
	t.Helper()
	chatStore := memory.NewChatStore()
	return &Service{
		Users:      memory.NewUserRepository(),
		Indexes:    chatStore,
		Sessions:   memory.NewSessionStore(),
		Passwords:  plainHasher{},
		Tokens:     &sequenceTokens{},
		SessionTTL: time.Hour,
	}, chatStore
}

func TestRegisterProvisionsProfileAndEmptyIndex(t *testing.T) {
	svc, chatStore := newService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterParams{
		Username: "Alice",
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	require.Equal(t, "alice", result.Profile.Username)
	require.NotEmpty(t, result.Token)

	entries, err := chatStore.Entries(ctx, result.Profile.ID)
	require.NoError(t, err)
	require.Empty(t, entries)

	resolved, err := svc.ResolveToken(ctx, result.Token)
	require.NoError(t, err)
	require.Equal(t, result.Profile.ID, resolved.Profile.ID)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Register(context.Background(), RegisterParams{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "short",
	})
	require.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestRegisterDuplicateUsernameLeavesDirectoryUnchanged(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, RegisterParams{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterParams{
		Username: "ALICE",
		Email:    "other@example.com",
		Password: "correct-horse",
	})
	require.ErrorIs(t, err, domainuser.ErrUsernameTaken)

	kept, err := svc.Users.ByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, first.Profile.ID, kept.ID)
	require.Equal(t, "alice@example.com", kept.Email)
}

func TestLogin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterParams{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	result, err := svc.Login(ctx, LoginParams{Email: "Alice@Example.com", Password: "correct-horse"})
	require.NoError(t, err)
	require.Equal(t, registered.Profile.ID, result.Profile.ID)

	_, err = svc.Login(ctx, LoginParams{Email: "alice@example.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// An unknown email yields the same opaque error as a bad password.
	_, err = svc.Login(ctx, LoginParams{Email: "nobody@example.com", Password: "correct-horse"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAnonymousProvisionsGuest(t *testing.T) {
	svc, chatStore := newService(t)
	ctx := context.Background()

	result, err := svc.Anonymous(ctx)
	require.NoError(t, err)
	require.True(t, result.Profile.Anonymous)
	require.Contains(t, result.Profile.Username, "guest-")

	entries, err := chatStore.Entries(ctx, result.Profile.ID)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	result, err := svc.Anonymous(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, result.Token))
	_, err = svc.ResolveToken(ctx, result.Token)
	require.Error(t, err)
}

type vanishingUsers struct {
	domainuser.Repository
	gone bool
}

func (r *vanishingUsers) ByID(ctx context.Context, id domainuser.ID) (*domainuser.Profile, error) {
	if r.gone {
		return nil, domainuser.ErrNotFound
	}
	return r.Repository.ByID(ctx, id)
}

func TestResolveTokenRevokesAllSessionsOfDeletedUser(t *testing.T) {
	users := &vanishingUsers{Repository: memory.NewUserRepository()}
	sessions := memory.NewSessionStore()
	svc := &Service{
		Users:      users,
		Indexes:    memory.NewChatStore(),
		Sessions:   sessions,
		Passwords:  plainHasher{},
		Tokens:     &sequenceTokens{},
		SessionTTL: time.Hour,
	}
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterParams{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	second, err := svc.Login(ctx, LoginParams{Email: "alice@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	require.NotEqual(t, registered.Token, second.Token)

	users.gone = true
	_, err = svc.ResolveToken(ctx, registered.Token)
	require.ErrorIs(t, err, domainauth.ErrSessionNotFound)

	// The sweep takes the account's other sessions with it.
	_, err = sessions.Get(ctx, domainauth.Token(second.Token))
	require.Error(t, err)
}

func TestProvisionIsOnePerAccount(t *testing.T) {
	svc, chatStore := newService(t)
	ctx := context.Background()

	result, err := svc.Anonymous(ctx)
	require.NoError(t, err)
	require.ErrorIs(t, chatStore.Create(ctx, result.Profile.ID), domainchat.ErrIndexExists)
}
