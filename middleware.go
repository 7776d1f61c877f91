package taskauth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/minus-twelve/taskauth/internal/logging"
	"github.com/minus-twelve/taskauth/types"
)

const identityKey = "taskauth.identity"

// RefreshMiddleware slides the expiry of any presented session before the
// request is handled. Store failures are logged and the request continues.
// A nil logger uses the request-scoped one.
func RefreshMiddleware(sm *SessionManager, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handle := SessionHandle(c.Request, sm.CookieName(), sm.HeaderName()); handle != "" {
			ctx := c.Request.Context()
			if _, err := sm.Refresh(ctx, handle); err != nil {
				l := logger
				if l == nil {
					l = logging.FromContext(ctx)
				}
				l.WarnContext(ctx, "session refresh failed", "err", err)
			}
		}
		c.Next()
	}
}

// AuthMiddleware runs the authenticator and stores the identity, if any, on
// the gin context. Failures end the request with a generic 401.
func AuthMiddleware(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := a.Authenticate(c.Request)
		if err != nil {
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				logging.FromContext(c.Request.Context()).Error("authenticator returned untyped error", "err", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if identity != nil {
			c.Set(identityKey, *identity)
		}
		c.Next()
	}
}

// RequireAuth rejects anonymous requests. It must run after AuthMiddleware.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := IdentityFromContext(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func IdentityFromContext(c *gin.Context) (types.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return types.Identity{}, false
	}
	identity, ok := v.(types.Identity)
	return identity, ok
}
