package api

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "prettyqr/internal/api/context"
	"prettyqr/internal/api/handlers"
	"prettyqr/internal/api/middleware"
	"prettyqr/internal/pkg/errors"
)

type Dependencies struct {
	SessionHandler    *handlers.SessionHandler
	LiveHandler       *handlers.LiveHandler
	HealthHandler     *handlers.HealthHandler
	MetricsHandler    *handlers.MetricsHandler
	SessionMiddleware *middleware.SessionMiddleware
	RateLimiter       *middleware.RateLimiter
	ExportsPerMinute  int
}

func NewRouter(deps *Dependencies) http.Handler {
	router := httprouter.New()

	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	sessionMid := deps.SessionMiddleware
	exportLimit := deps.RateLimiter.Limit("export", deps.ExportsPerMinute)

	// Sessions
	router.POST("/api/v1/sessions", wrap(deps.SessionHandler.Create))
	router.GET("/api/v1/sessions/:session_id",
		chain(deps.SessionHandler.Get, sessionMid.Handle))
	router.PATCH("/api/v1/sessions/:session_id",
		chain(deps.SessionHandler.Update, sessionMid.Handle))
	router.DELETE("/api/v1/sessions/:session_id",
		chain(deps.SessionHandler.Delete, sessionMid.Handle))
	router.POST("/api/v1/sessions/:session_id/generate",
		chain(deps.SessionHandler.Generate, sessionMid.Handle))
	router.POST("/api/v1/sessions/:session_id/reset",
		chain(deps.SessionHandler.Reset, sessionMid.Handle))

	// Output
	router.GET("/api/v1/sessions/:session_id/preview",
		chain(deps.SessionHandler.Preview, sessionMid.Handle))
	router.GET("/api/v1/sessions/:session_id/export/:format",
		chain(deps.SessionHandler.Export, sessionMid.Handle, exportLimit))
	router.GET("/api/v1/sessions/:session_id/live",
		chain(deps.LiveHandler.Stream, sessionMid.Handle))

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Route not found", nil)
	})

	return chimw.Recoverer(chimw.RealIP(requestLogger(router)))
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
