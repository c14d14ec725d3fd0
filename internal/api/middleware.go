package api

import (
	"context"
	"net/http"

	"github.com/codewithboateng/jitprof/internal/storage"
)

type ctxKey int

const userKey ctxKey = 1

func withAuth(s *Server, next http.HandlerFunc, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		_ = s.UserStore.LogAudit(u.Username, action, r.URL.Path, map[string]any{"method": r.Method})
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	}
}

// withAdmin is withAuth restricted to the admin role.
func withAdmin(s *Server, next http.HandlerFunc, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		if !u.IsAdmin() {
			_ = s.UserStore.LogAudit(u.Username, action+":denied", r.URL.Path, map[string]any{"method": r.Method})
			s.err(w, http.StatusForbidden, "forbidden")
			return
		}
		_ = s.UserStore.LogAudit(u.Username, action, r.URL.Path, map[string]any{"method": r.Method})
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	}
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (storage.User, bool) {
	tok, err := readSessionCookie(r)
	if err != nil {
		s.err(w, http.StatusUnauthorized, "unauthorized")
		return storage.User{}, false
	}
	u, err := s.UserStore.GetSession(tok)
	if err != nil {
		s.err(w, http.StatusUnauthorized, "unauthorized")
		return storage.User{}, false
	}
	return u, true
}

func userFromCtx(ctx context.Context) (storage.User, bool) {
	u, ok := ctx.Value(userKey).(storage.User)
	return u, ok
}
