package taskauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/minus-twelve/taskauth/storage"
	"github.com/minus-twelve/taskauth/types"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeUsers is an in-memory UserLookup.
type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]types.Identity
	err   error
}

func newFakeUsers(users ...types.Identity) *fakeUsers {
	f := &fakeUsers{users: make(map[int64]types.Identity)}
	for _, u := range users {
		f.users[u.UserID] = u
	}
	return f
}

func (f *fakeUsers) LookupUser(ctx context.Context, userID int64) (types.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.Identity{}, f.err
	}
	u, ok := f.users[userID]
	if !ok {
		return types.Identity{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) remove(userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, userID)
}

var errBroken = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

// brokenStore fails every call the way an unreachable server would.
type brokenStore struct{}

func (brokenStore) Ping(context.Context) error                               { return errBroken }
func (brokenStore) Close() error                                             { return nil }
func (brokenStore) Get(context.Context, string) (string, error)              { return "", errBroken }
func (brokenStore) Set(context.Context, string, string, time.Duration) error { return errBroken }
func (brokenStore) HGetAll(context.Context, string) (map[string]string, error) {
	return nil, errBroken
}
func (brokenStore) HSet(context.Context, string, map[string]string) error { return errBroken }
func (brokenStore) Exists(context.Context, string) (bool, error)          { return false, errBroken }
func (brokenStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errBroken
}
func (brokenStore) TTL(context.Context, string) (time.Duration, error) { return 0, errBroken }
func (brokenStore) Del(context.Context, ...string) error               { return errBroken }
func (brokenStore) SAdd(context.Context, string, ...string) error      { return errBroken }
func (brokenStore) SRem(context.Context, string, ...string) error      { return errBroken }
func (brokenStore) SMembers(context.Context, string) ([]string, error) {
	return nil, errBroken
}

var (
	alice = types.Identity{UserID: 1, Username: "alice", Email: "alice@example.com", IsActive: true}
	bob   = types.Identity{UserID: 2, Username: "bob", Email: "bob@example.com", IsActive: true, IsStaff: true}
)

func newMemoryManager(t *testing.T, cfg types.SessionConfig, users UserLookup) (*SessionManager, *storage.MemoryStore, *testClock) {
	t.Helper()
	clock := newTestClock()
	store := storage.NewMemoryStore(0, storage.WithClock(clock.Now))
	return NewManager(store, users, cfg), store, clock
}

func newRedisStore(t *testing.T) (*storage.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := storage.NewRedisStore(types.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}
