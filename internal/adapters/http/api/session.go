package api

import (
	"net/http"

	service "github.com/okian/tinymerit/internal/app"
)

// SessionCookie carries the browser's session id.
const SessionCookie = "tinymerit_session"

// SessionProvider looks up or creates sessions.
type SessionProvider interface {
	Session(id string) (*service.Session, error)
}

type sessionResolver struct {
	provider SessionProvider
}

// resolve returns the caller's session and sets the cookie when a new one
// was issued.
func (s sessionResolver) resolve(w http.ResponseWriter, r *http.Request) (*service.Session, error) {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	sess, err := s.provider.Session(id)
	if err != nil {
		return nil, err
	}
	if sess.ID() != id {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID(),
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess, nil
}
