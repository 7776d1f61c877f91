package taskauth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/minus-twelve/taskauth/types"
)

// Authenticator resolves the credential carried by a request. A nil identity
// with a nil error means the request is anonymous. Every failure is an
// *AuthError; no strategy ever falls back to accepting the request.
type Authenticator interface {
	Authenticate(r *http.Request) (*types.Identity, error)
}

// SessionHandle returns the handle from the cookie, falling back to the
// header.
func SessionHandle(r *http.Request, cookieName, headerName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return strings.TrimSpace(r.Header.Get(headerName))
}

// BearerToken extracts the token of an "Authorization: Bearer <token>"
// header. ok is false when no bearer credential is present at all; a bearer
// header without a usable token gives ok true and an empty token.
func BearerToken(r *http.Request) (raw string, ok bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", false
	}
	scheme, rest, _ := strings.Cut(authz, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" || strings.ContainsAny(rest, " \t") {
		return "", true
	}
	return rest, true
}

type SessionAuthenticator struct {
	sessions *SessionManager
	logger   *slog.Logger
	metrics  *Metrics
}

func NewSessionAuthenticator(sessions *SessionManager, opts ...Option) *SessionAuthenticator {
	o := buildOptions(opts)
	return &SessionAuthenticator{sessions: sessions, logger: o.logger, metrics: o.metrics}
}

func (a *SessionAuthenticator) Authenticate(r *http.Request) (*types.Identity, error) {
	handle := SessionHandle(r, a.sessions.CookieName(), a.sessions.HeaderName())
	if handle == "" {
		return nil, nil
	}

	ctx := r.Context()
	identity, err := a.sessions.Resolve(ctx, handle)
	switch {
	case err == nil:
		return &identity, nil
	case errors.Is(err, ErrSessionInvalid):
		a.logger.InfoContext(ctx, "session rejected", "reason", "invalid")
		a.metrics.authFailed("session", "invalid")
		return nil, authFailure(ReasonSessionInvalid, err)
	case errors.Is(err, ErrUserNotFound):
		a.logger.WarnContext(ctx, "session rejected", "reason", "user_not_found")
		a.metrics.authFailed("session", "user_not_found")
		return nil, authFailure(ReasonUserNotFound, err)
	default:
		a.logger.ErrorContext(ctx, "session resolution failed", "err", err)
		a.metrics.authFailed("session", "error")
		return nil, authFailure(ReasonAuthFailed, err)
	}
}

// BearerAuthenticator accepts signed tokens that the registry still tracks.
// Registry absence wins over a valid signature.
type BearerAuthenticator struct {
	decoder  TokenDecoder
	registry *TokenRegistry
	users    UserLookup
	logger   *slog.Logger
	metrics  *Metrics
}

func NewBearerAuthenticator(decoder TokenDecoder, registry *TokenRegistry, users UserLookup, opts ...Option) *BearerAuthenticator {
	o := buildOptions(opts)
	return &BearerAuthenticator{
		decoder:  decoder,
		registry: registry,
		users:    users,
		logger:   o.logger,
		metrics:  o.metrics,
	}
}

func (a *BearerAuthenticator) reject(r *http.Request, reason string, cause error) error {
	a.logger.InfoContext(r.Context(), "bearer token rejected", "reason", reason, "err", cause)
	a.metrics.authFailed("bearer", reason)
	return authFailure(ReasonTokenInvalid, cause)
}

func (a *BearerAuthenticator) Authenticate(r *http.Request) (*types.Identity, error) {
	raw, ok := BearerToken(r)
	if !ok {
		return nil, nil
	}
	if raw == "" {
		return nil, a.reject(r, "malformed_header", ErrTokenInvalid)
	}

	claims, err := a.decoder.Decode(raw)
	if err != nil {
		return nil, a.reject(r, "decode", err)
	}

	ctx := r.Context()
	if !a.registry.IsValid(ctx, raw) {
		return nil, a.reject(r, "revoked", ErrTokenInvalid)
	}

	if a.users == nil {
		return &types.Identity{UserID: claims.UserID}, nil
	}

	user, err := a.users.LookupUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, a.reject(r, "user_not_found", err)
		}
		return nil, a.reject(r, "error", err)
	}
	if !user.IsActive {
		return nil, a.reject(r, "inactive", ErrTokenInvalid)
	}
	return &user, nil
}
