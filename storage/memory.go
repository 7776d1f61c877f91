package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

type kind int

const (
	kindString kind = iota
	kindHash
	kindSet
)

type entry struct {
	kind      kind
	str       string
	hash      map[string]string
	set       map[string]struct{}
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process key-value store with per-key expiry. Expired
// keys are invisible to readers and removed by Cleanup or on the next write.
type MemoryStore struct {
	entries map[string]*entry
	mutex   sync.RWMutex
	maxKeys int
	now     func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, mainly for tests that need to move time.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(maxKeys int, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		maxKeys: maxKeys,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

// lookup returns a live entry; callers hold the lock.
func (s *MemoryStore) lookup(key string) (*entry, bool) {
	e, ok := s.entries[key]
	if !ok || e.expired(s.now()) {
		return nil, false
	}
	return e, true
}

// insert stores a fresh entry, evicting when the key limit is reached.
func (s *MemoryStore) insert(key string, e *entry) error {
	if _, exists := s.entries[key]; !exists && s.maxKeys > 0 && len(s.entries) >= s.maxKeys {
		s.cleanupLocked()
		if len(s.entries) >= s.maxKeys {
			victim := s.findSoonestExpiring()
			if victim == "" {
				return errors.New("storage: max keys limit reached")
			}
			delete(s.entries, victim)
		}
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) findSoonestExpiring() string {
	var victim string
	var soonest time.Time
	for key, e := range s.entries {
		if e.expiresAt.IsZero() {
			if victim == "" {
				victim = key
			}
			continue
		}
		if soonest.IsZero() || e.expiresAt.Before(soonest) {
			victim = key
			soonest = e.expiresAt
		}
	}
	return victim
}

func (s *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.lookup(key)
	if !ok {
		return "", ErrNotFound
	}
	if e.kind != kindString {
		return "", errWrongType
	}
	return e.str, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.insert(key, &entry{kind: kindString, str: value, expiresAt: s.deadline(ttl)})
}

func (s *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make(map[string]string)
	e, ok := s.lookup(key)
	if !ok {
		return out, nil
	}
	if e.kind != kindHash {
		return nil, errWrongType
	}
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		e = &entry{kind: kindHash, hash: make(map[string]string, len(fields))}
		if err := s.insert(key, e); err != nil {
			return err
		}
	} else if e.kind != kindHash {
		return errWrongType
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.lookup(key)
	return ok, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return false, nil
	}
	if ttl <= 0 {
		delete(s.entries, key)
		return true, nil
	}
	e.expiresAt = s.now().Add(ttl)
	return true, nil
}

func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.lookup(key)
	if !ok {
		return 0, ErrNotFound
	}
	if e.expiresAt.IsZero() {
		return NoExpiry, nil
	}
	return e.expiresAt.Sub(s.now()), nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) SAdd(ctx context.Context, key string, members ...string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		e = &entry{kind: kindSet, set: make(map[string]struct{}, len(members))}
		if err := s.insert(key, e); err != nil {
			return err
		}
	} else if e.kind != kindSet {
		return errWrongType
	}
	for _, m := range members {
		e.set[m] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) SRem(ctx context.Context, key string, members ...string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return nil
	}
	if e.kind != kindSet {
		return errWrongType
	}
	for _, m := range members {
		delete(e.set, m)
	}
	if len(e.set) == 0 {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.lookup(key)
	if !ok {
		return []string{}, nil
	}
	if e.kind != kindSet {
		return nil, errWrongType
	}
	members := make([]string, 0, len(e.set))
	for m := range e.set {
		members = append(members, m)
	}
	return members, nil
}

// Cleanup drops every expired key.
func (s *MemoryStore) Cleanup() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.cleanupLocked()
}

func (s *MemoryStore) cleanupLocked() {
	now := s.now()
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
}

// Run sweeps expired keys every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// Len reports the number of stored keys, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.entries)
}
