package auth

import (
	"net/http"
	"time"
)

// SessionCookieConfig holds cookie settings for the panel session
type SessionCookieConfig struct {
	Name   string
	Domain string // Empty string = current host only
	Secure bool   // HTTPS only
}

// SetSessionCookie writes the opaque session identifier as an httpOnly
// cookie. The checkpoint slot rides on this session, so the cookie exists
// before the user is fully authenticated.
func SetSessionCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration, config SessionCookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.Name,
		Value:    sessionID,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(maxAge),
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(w http.ResponseWriter, config SessionCookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.Name,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetSessionCookie retrieves the session identifier from the request
func GetSessionCookie(r *http.Request, config SessionCookieConfig) (string, error) {
	cookie, err := r.Cookie(config.Name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
