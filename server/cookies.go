package server

import (
	"net/http"

	"github.com/pkg/errors"
)

// RefreshCookieName is the httpOnly cookie carrying the opaque refresh
// token. Client code never reads it; the browser (or the SDK's cookie jar)
// replays it to the auth routes.
const RefreshCookieName = "mmb_refresh"

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	secure := s.config.GetSecureCookies()

	cookie := &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(s.config.GetRefreshTokenExpiry().Seconds()),
		HttpOnly: true,
		Secure:   secure,
	}

	// SameSite=None requires Secure=true, so use Lax for development
	if secure {
		cookie.SameSite = http.SameSiteNoneMode
	} else {
		cookie.SameSite = http.SameSiteLaxMode
	}

	http.SetCookie(w, cookie)
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func refreshTokenFromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return "", errors.New("refresh cookie not found")
	}
	if cookie.Value == "" {
		return "", errors.New("refresh cookie is empty")
	}
	return cookie.Value, nil
}
