package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	apiContext "prettyqr/internal/api/context"
	"prettyqr/internal/engine/qr"
	"prettyqr/internal/engine/render"
	"prettyqr/internal/engine/sessions"
	"prettyqr/internal/engine/studio"
)

func newRegistry(t *testing.T) *sessions.Registry {
	t.Helper()
	backend, err := qr.New(qr.DefaultBackend)
	if err != nil {
		t.Fatal(err)
	}
	encoder := render.NewEncoder(backend)
	r := sessions.NewRegistry(func() *studio.Pipeline {
		return studio.New(encoder, studio.DefaultSettings(), studio.WithLogger(zerolog.Nop()))
	}, time.Hour, 0, nil)
	t.Cleanup(r.CloseAll)
	return r
}

func withParams(req *http.Request, ps httprouter.Params) *http.Request {
	ctx := context.WithValue(req.Context(), apiContext.Params, ps)
	return req.WithContext(ctx)
}

func TestSessionMiddleware(t *testing.T) {
	registry := newRegistry(t)
	session, err := registry.Create()
	if err != nil {
		t.Fatal(err)
	}
	mw := NewSessionMiddleware(registry)

	t.Run("Known Session", func(t *testing.T) {
		req := withParams(httptest.NewRequest("GET", "/", nil), httprouter.Params{{Key: "session_id", Value: session.ID}})
		rr := httptest.NewRecorder()

		mw.Handle(func(w http.ResponseWriter, r *http.Request) {
			if got := SessionFrom(r); got != session {
				t.Errorf("SessionFrom() = %v, want %v", got, session)
			}
			w.WriteHeader(http.StatusOK)
		}).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
		}
	})

	t.Run("Unknown Session", func(t *testing.T) {
		req := withParams(httptest.NewRequest("GET", "/", nil), httprouter.Params{{Key: "session_id", Value: "nope"}})
		rr := httptest.NewRecorder()

		mw.Handle(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Handler should not be called")
		}).ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusNotFound)
		}
	})

	t.Run("Missing Param", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mw.Handle(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Handler should not be called")
		}).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

		if rr.Code != http.StatusBadRequest {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusBadRequest)
		}
	})
}

func TestRateLimiter_Allow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(clock)

	for i := 0; i < 3; i++ {
		if !rl.Allow("k", 3) {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.Allow("k", 3) {
		t.Fatal("fourth request should be limited")
	}
	if !rl.Allow("other", 3) {
		t.Fatal("buckets should be independent")
	}

	// 3 per minute refills one token every 20s.
	clock.Advance(21 * time.Second)
	if !rl.Allow("k", 3) {
		t.Fatal("request after refill should be allowed")
	}
	if rl.Allow("k", 3) {
		t.Fatal("only one token should have been refilled")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(clock)
	rl.Allow("old", 1)
	clock.Advance(11 * time.Minute)
	rl.Allow("new", 1)

	if n := rl.Cleanup(clock.Now(), 10*time.Minute); n != 1 {
		t.Errorf("Cleanup() = %d, want 1", n)
	}
	if !rl.Allow("old", 1) {
		t.Error("cleaned bucket should start full")
	}
}

func TestRateLimiter_Limit(t *testing.T) {
	registry := newRegistry(t)
	session, _ := registry.Create()
	rl := NewRateLimiter(clockwork.NewFakeClock())

	handler := NewSessionMiddleware(registry).Handle(rl.Limit("export", 1)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name string
		want int
	}{
		{"first allowed", http.StatusOK},
		{"second limited", http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withParams(httptest.NewRequest("GET", "/", nil), httprouter.Params{{Key: "session_id", Value: session.ID}})
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}

	t.Run("disabled", func(t *testing.T) {
		h := rl.Limit("export", 0)(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		for i := 0; i < 5; i++ {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
			if rr.Code != http.StatusNoContent {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusNoContent)
			}
		}
	})
}
