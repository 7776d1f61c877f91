package users

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/minus-twelve/taskauth"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "users.db"), WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndAuthenticate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, NewUser{Username: "alice", Email: "alice@example.com", Password: "correct horse"})
	require.NoError(t, err)
	require.NotZero(t, created.UserID)
	require.True(t, created.IsActive)

	got, err := s.Authenticate(ctx, "alice", "correct horse")
	require.NoError(t, err)
	require.Equal(t, created, got)

	_, err = s.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Authenticate(ctx, "nobody", "correct horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreate_DuplicateUsername(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, NewUser{Username: "bob", Password: "password1"})
	require.NoError(t, err)

	_, err = s.Create(ctx, NewUser{Username: "bob", Password: "password2"})
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestLookupUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, NewUser{Username: "carol", Email: "c@example.com", Password: "password1", IsStaff: true})
	require.NoError(t, err)

	got, err := s.LookupUser(ctx, created.UserID)
	require.NoError(t, err)
	require.Equal(t, "carol", got.Username)
	require.True(t, got.IsStaff)
	require.False(t, got.IsSuperuser)

	require.NoError(t, s.Delete(ctx, created.UserID))
	_, err = s.LookupUser(ctx, created.UserID)
	require.ErrorIs(t, err, taskauth.ErrUserNotFound)

	require.ErrorIs(t, s.Delete(ctx, created.UserID), taskauth.ErrUserNotFound)
}

func TestAuthenticate_InactiveUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, NewUser{Username: "dave", Password: "password1"})
	require.NoError(t, err)
	require.NoError(t, s.SetActive(ctx, created.UserID, false))

	_, err = s.Authenticate(ctx, "dave", "password1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")

	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpen_DummyHashMatchesStoreCost(t *testing.T) {
	for _, cost := range []int{bcrypt.MinCost, bcrypt.MinCost + 1} {
		s, err := Open(context.Background(), filepath.Join(t.TempDir(), "users.db"), WithBcryptCost(cost))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		got, err := bcrypt.Cost(s.dummyHash)
		require.NoError(t, err)
		require.Equal(t, s.cost, got)

		created, err := s.Create(context.Background(), NewUser{Username: "alice", Password: "correct horse"})
		require.NoError(t, err)
		var hash string
		require.NoError(t, s.db.QueryRow(`SELECT password_hash FROM users WHERE id = ?`, created.UserID).Scan(&hash))
		userCost, err := bcrypt.Cost([]byte(hash))
		require.NoError(t, err)
		require.Equal(t, got, userCost)
	}
}
