package taskauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/minus-twelve/taskauth/storage"
	"github.com/minus-twelve/taskauth/types"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	DefaultCookieName = "session_token"
	DefaultHeaderName = "X-Session-ID"
)

// UserLookup is the authoritative user store. LookupUser returns
// ErrUserNotFound when the id is unknown.
type UserLookup interface {
	LookupUser(ctx context.Context, userID int64) (types.Identity, error)
}

func sessionKey(handle string) string {
	return "session:" + handle
}

func userSessionKey(userID, username string) string {
	return "user:" + userID + ":session:" + username
}

func indexKeyFor(user types.Identity) string {
	return userSessionKey(strconv.FormatInt(user.UserID, 10), user.Username)
}

type options struct {
	logger    *slog.Logger
	metrics   *Metrics
	newHandle func() string
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithHandleGenerator overrides uuid v4 session handles.
func WithHandleGenerator(fn func() string) Option {
	return func(o *options) { o.newHandle = fn }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:    slog.Default(),
		newHandle: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SessionManager issues, resolves, refreshes and deletes session handles.
// Store failures are returned wrapped in ErrStoreUnavailable and never
// retried here.
type SessionManager struct {
	store     Store
	users     UserLookup
	config    types.SessionConfig
	logger    *slog.Logger
	metrics   *Metrics
	newHandle func() string
}

func NewManager(store Store, users UserLookup, config types.SessionConfig, opts ...Option) *SessionManager {
	if config.TTL <= 0 {
		config.TTL = DefaultSessionTTL
	}
	if config.CookieName == "" {
		config.CookieName = DefaultCookieName
	}
	if config.HeaderName == "" {
		config.HeaderName = DefaultHeaderName
	}

	o := buildOptions(opts)
	return &SessionManager{
		store:     store,
		users:     users,
		config:    config,
		logger:    o.logger,
		metrics:   o.metrics,
		newHandle: o.newHandle,
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// CreateOrReuse returns the user's live session handle, extending it to the
// full TTL, or mints a new one. With RotateOnLogin the live session is
// deleted and a new handle is always minted.
//
// Two concurrent calls for the same user may both mint; the index then
// points at the last write and the other handle stays resolvable until it
// expires.
func (sm *SessionManager) CreateOrReuse(ctx context.Context, user types.Identity) (string, error) {
	indexKey := indexKeyFor(user)
	outcome := "created"

	existing, err := sm.store.Get(ctx, indexKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", storeErr("read session index", err)
	}

	if existing != "" {
		alive, err := sm.store.Exists(ctx, sessionKey(existing))
		if err != nil {
			return "", storeErr("check session", err)
		}
		if alive && !sm.config.RotateOnLogin {
			if _, err := sm.store.Expire(ctx, sessionKey(existing), sm.config.TTL); err != nil {
				return "", storeErr("extend session", err)
			}
			if _, err := sm.store.Expire(ctx, indexKey, sm.config.TTL); err != nil {
				return "", storeErr("extend session index", err)
			}
			sm.metrics.sessionIssued("reused")
			sm.logger.DebugContext(ctx, "session reused", "user_id", user.UserID)
			return existing, nil
		}
		if alive {
			if err := sm.store.Del(ctx, sessionKey(existing)); err != nil {
				return "", storeErr("rotate session", err)
			}
			outcome = "rotated"
		}
	}

	handle := sm.newHandle()
	data := types.NewSessionData(user)

	if err := sm.store.HSet(ctx, sessionKey(handle), data.Hash()); err != nil {
		return "", storeErr("write session", err)
	}
	if _, err := sm.store.Expire(ctx, sessionKey(handle), sm.config.TTL); err != nil {
		return "", storeErr("expire session", err)
	}
	if err := sm.store.Set(ctx, indexKey, handle, sm.config.TTL); err != nil {
		return "", storeErr("write session index", err)
	}

	sm.metrics.sessionIssued(outcome)
	sm.logger.DebugContext(ctx, "session "+outcome, "user_id", user.UserID)
	return handle, nil
}

// Resolve maps a handle to the identity snapshot taken at login. The user
// must still exist in the user store.
func (sm *SessionManager) Resolve(ctx context.Context, handle string) (types.Identity, error) {
	if handle == "" {
		sm.metrics.resolved("invalid")
		return types.Identity{}, ErrSessionInvalid
	}

	fields, err := sm.store.HGetAll(ctx, sessionKey(handle))
	if err != nil {
		sm.metrics.resolved("error")
		return types.Identity{}, storeErr("read session", err)
	}

	data, ok := types.SessionDataFromHash(fields)
	if !ok {
		sm.metrics.resolved("invalid")
		return types.Identity{}, ErrSessionInvalid
	}

	if sm.users != nil {
		if _, err := sm.users.LookupUser(ctx, data.UserID); err != nil {
			if errors.Is(err, ErrUserNotFound) {
				sm.metrics.resolved("user_not_found")
				return types.Identity{}, ErrUserNotFound
			}
			sm.metrics.resolved("error")
			return types.Identity{}, fmt.Errorf("lookup user %d: %w", data.UserID, err)
		}
	}

	sm.metrics.resolved("ok")
	return data.Identity(), nil
}

// Refresh extends a live session and its index entry to the full TTL. A
// missing session is reported as false, not as an error.
func (sm *SessionManager) Refresh(ctx context.Context, handle string) (bool, error) {
	if handle == "" {
		return false, nil
	}

	extended, err := sm.store.Expire(ctx, sessionKey(handle), sm.config.TTL)
	if err != nil {
		sm.metrics.refreshed("error")
		return false, storeErr("extend session", err)
	}
	if !extended {
		sm.metrics.refreshed("missing")
		return false, nil
	}

	fields, err := sm.store.HGetAll(ctx, sessionKey(handle))
	if err != nil {
		sm.metrics.refreshed("error")
		return false, storeErr("read session", err)
	}
	if userID, username := fields[types.FieldUserID], fields[types.FieldUsername]; userID != "" && username != "" {
		if _, err := sm.store.Expire(ctx, userSessionKey(userID, username), sm.config.TTL); err != nil {
			sm.metrics.refreshed("error")
			return false, storeErr("extend session index", err)
		}
	}

	sm.metrics.refreshed("refreshed")
	return true, nil
}

// Delete removes the session and its index entry. Deleting an unknown
// handle is a no-op.
func (sm *SessionManager) Delete(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}

	fields, err := sm.store.HGetAll(ctx, sessionKey(handle))
	if err != nil {
		return storeErr("read session", err)
	}
	if userID, username := fields[types.FieldUserID], fields[types.FieldUsername]; userID != "" && username != "" {
		if err := sm.store.Del(ctx, userSessionKey(userID, username)); err != nil {
			return storeErr("delete session index", err)
		}
	}
	if err := sm.store.Del(ctx, sessionKey(handle)); err != nil {
		return storeErr("delete session", err)
	}

	sm.metrics.deleted()
	return nil
}

// DeleteUserSessions drops the session the user's index points at along
// with the index itself. Sessions orphaned by a concurrent login are not
// tracked and expire on their own.
func (sm *SessionManager) DeleteUserSessions(ctx context.Context, user types.Identity) error {
	indexKey := indexKeyFor(user)

	handle, err := sm.store.Get(ctx, indexKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr("read session index", err)
	}

	if err := sm.store.Del(ctx, sessionKey(handle), indexKey); err != nil {
		return storeErr("delete user sessions", err)
	}
	sm.metrics.deleted()
	return nil
}

// TTL reports the remaining lifetime of a session, ErrSessionInvalid if it
// is gone.
func (sm *SessionManager) TTL(ctx context.Context, handle string) (time.Duration, error) {
	d, err := sm.store.TTL(ctx, sessionKey(handle))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrSessionInvalid
	}
	if err != nil {
		return 0, storeErr("read session ttl", err)
	}
	return d, nil
}

func (sm *SessionManager) CookieName() string {
	return sm.config.CookieName
}

func (sm *SessionManager) HeaderName() string {
	return sm.config.HeaderName
}

func (sm *SessionManager) SessionTTL() time.Duration {
	return sm.config.TTL
}

func (sm *SessionManager) SecureCookie() bool {
	return sm.config.SecureCookie
}
