package middleware

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "prettyqr/internal/api/context"
	"prettyqr/internal/engine/sessions"
	"prettyqr/internal/pkg/errors"
)

type SessionMiddleware struct {
	registry *sessions.Registry
}

func NewSessionMiddleware(registry *sessions.Registry) *SessionMiddleware {
	return &SessionMiddleware{registry: registry}
}

// Handle resolves the :session_id route parameter into the request context.
func (m *SessionMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ps, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
		id := ps.ByName("session_id")
		if id == "" {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Missing session id", nil)
			return
		}

		session, ok := m.registry.Get(id)
		if !ok {
			log.Debug().Str("session_id", id).Msg("unknown session")
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Session not found", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Session, session)
		next(w, r.WithContext(ctx))
	}
}

// SessionFrom returns the session stored by SessionMiddleware.
func SessionFrom(r *http.Request) *sessions.Session {
	s, _ := r.Context().Value(apiContext.Session).(*sessions.Session)
	return s
}
