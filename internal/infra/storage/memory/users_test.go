package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainauth "chatlink/internal/domain/auth"
	domainuser "chatlink/internal/domain/user"
)

func profile(t *testing.T, id, username, email string) *domainuser.Profile {
	t.Helper()
	p, err := domainuser.NewProfile(domainuser.CreateParams{
		ID:           domainuser.ID(id),
		Username:     username,
		Email:        email,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return p
}

func TestSaveEnforcesUniqueness(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, profile(t, "u1", "alice", "alice@example.com")))

	err := repo.Save(ctx, profile(t, "u2", "alice", "other@example.com"))
	require.ErrorIs(t, err, domainuser.ErrUsernameTaken)

	err = repo.Save(ctx, profile(t, "u2", "bob", "alice@example.com"))
	require.ErrorIs(t, err, domainuser.ErrEmailAlreadyUsed)

	// Re-saving the same account keeps its keys.
	require.NoError(t, repo.Save(ctx, profile(t, "u1", "alice", "alice@example.com")))
}

func TestLookupsAreCaseInsensitive(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, profile(t, "u1", "alice", "alice@example.com")))

	byName, err := repo.ByUsername(ctx, " ALICE ")
	require.NoError(t, err)
	require.Equal(t, domainuser.ID("u1"), byName.ID)

	byEmail, err := repo.ByEmail(ctx, "Alice@Example.com")
	require.NoError(t, err)
	require.Equal(t, domainuser.ID("u1"), byEmail.ID)

	_, err = repo.ByUsername(ctx, "nobody")
	require.ErrorIs(t, err, domainuser.ErrNotFound)
}

func TestReadsReturnCopies(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, profile(t, "u1", "alice", "alice@example.com")))

	first, err := repo.ByID(ctx, "u1")
	require.NoError(t, err)
	first.Username = "mutated"
	first.Blocked = append(first.Blocked, "u9")

	second, err := repo.ByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "alice", second.Username)
	require.Empty(t, second.Blocked)
}

func TestSessionStoreExpiry(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	live, err := domainauth.NewSession(domainauth.CreateSessionParams{
		Token:  "t-live",
		UserID: "u1",
		TTL:    time.Hour,
		Now:    time.Now(),
	})
	require.NoError(t, err)
	expired, err := domainauth.NewSession(domainauth.CreateSessionParams{
		Token:  "t-dead",
		UserID: "u1",
		TTL:    time.Millisecond,
		Now:    time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, live))
	require.NoError(t, store.Save(ctx, expired))

	got, err := store.Get(ctx, "t-live")
	require.NoError(t, err)
	require.Equal(t, domainuser.ID("u1"), got.UserID)

	_, err = store.Get(ctx, "t-dead")
	require.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

func TestDeleteByUserDropsAllTokens(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	for _, token := range []domainauth.Token{"t1", "t2"} {
		session, err := domainauth.NewSession(domainauth.CreateSessionParams{
			Token:  token,
			UserID: "u1",
			TTL:    time.Hour,
			Now:    time.Now(),
		})
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, session))
	}

	require.NoError(t, store.DeleteByUser(ctx, "u1"))
	_, err := store.Get(ctx, "t1")
	require.ErrorIs(t, err, domainauth.ErrSessionNotFound)
	_, err = store.Get(ctx, "t2")
	require.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}
