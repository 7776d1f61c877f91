package taskauth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/minus-twelve/taskauth/types"
	"github.com/stretchr/testify/require"
)

func TestSetSessionCookie(t *testing.T) {
	sm, _, _ := newMemoryManager(t, types.SessionConfig{SecureCookie: true}, nil)

	w := httptest.NewRecorder()
	sm.SetSessionCookie(w, "handle-1")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	require.Equal(t, DefaultCookieName, c.Name)
	require.Equal(t, "handle-1", c.Value)
	require.Equal(t, int(DefaultSessionTTL/time.Second), c.MaxAge)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteStrictMode, c.SameSite)
	require.Equal(t, "/", c.Path)
}

func TestClearSessionCookie(t *testing.T) {
	sm, _, _ := newMemoryManager(t, types.SessionConfig{CookieName: "sid"}, nil)

	w := httptest.NewRecorder()
	sm.ClearSessionCookie(w)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "sid", cookies[0].Name)
	require.Empty(t, cookies[0].Value)
	require.Less(t, cookies[0].MaxAge, 0)
	require.False(t, cookies[0].Secure)
}
