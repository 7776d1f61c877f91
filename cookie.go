package taskauth

import (
	"net/http"
	"time"
)

// SetSessionCookie issues the session handle as an HTTP-only, SameSite=Strict
// cookie whose max-age matches the session TTL.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, handle string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sm.config.CookieName,
		Value:    handle,
		Path:     "/",
		MaxAge:   int(sm.config.TTL / time.Second),
		HttpOnly: true,
		Secure:   sm.config.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sm.config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.config.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}
