package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "prettyqr/internal/api/context"
	"prettyqr/internal/api/middleware"
	"prettyqr/internal/engine/sessions"
	"prettyqr/internal/engine/studio"
	"prettyqr/internal/pkg/errors"
)

type SessionHandler struct {
	registry *sessions.Registry
	metrics  *Metrics
}

func NewSessionHandler(registry *sessions.Registry, metrics *Metrics) *SessionHandler {
	return &SessionHandler{registry: registry, metrics: metrics}
}

type artifactResponse struct {
	Fingerprint string `json:"fingerprint"`
	Generation  uint64 `json:"generation"`
	DataURI     string `json:"data_uri"`
}

type sessionResponse struct {
	ID       string            `json:"id"`
	Request  studio.Request    `json:"request"`
	Artifact *artifactResponse `json:"artifact,omitempty"`
}

func newSessionResponse(s *sessions.Session) sessionResponse {
	resp := sessionResponse{
		ID:      s.ID,
		Request: s.Pipeline.Request(),
	}
	if art := s.Pipeline.Artifact(); art != nil {
		resp.Artifact = &artifactResponse{
			Fingerprint: art.Fingerprint,
			Generation:  art.Generation,
			DataURI:     art.DataURI,
		}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, err := h.registry.Create()
	if err != nil {
		if stderrors.Is(err, sessions.ErrTooManySessions) {
			errors.WriteError(w, http.StatusServiceUnavailable, errors.ErrCodeTooManySessions, "Too many active sessions", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create session", nil)
		return
	}
	h.metrics.SessionsCreated.Add(1)

	log.Info().Str("session_id", session.ID).Msg("session created")
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionResponse(middleware.SessionFrom(r)))
}

// Update applies a partial request. The preview is regenerated after the
// debounce delay, so the response is 202.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)

	var patch studio.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if patch.Empty() {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "No fields to update", nil)
		return
	}

	req := session.Pipeline.Update(patch)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":      session.ID,
		"request": req,
	})
}

func (h *SessionHandler) Generate(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)

	if err := session.Pipeline.Generate(); err != nil {
		if stderrors.Is(err, studio.ErrClosed) {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Session not found", nil)
			return
		}
		errors.WriteError(w, http.StatusUnprocessableEntity, errors.ErrCodeEncodeFailed, "Failed to encode QR code", map[string]string{
			"reason": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	session.Pipeline.Reset()
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	h.registry.Delete(session.ID)

	log.Info().Str("session_id", session.ID).Msg("session closed")
	w.WriteHeader(http.StatusNoContent)
}

// Preview serves the current raster artifact.
func (h *SessionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	art := middleware.SessionFrom(r).Pipeline.Artifact()
	if art == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "No preview generated", nil)
		return
	}

	etag := fmt.Sprintf("%q", art.Fingerprint)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(art.PNG)
}

func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	ps, _ := r.Context().Value(apiContext.Params).(httprouter.Params)

	format, err := studio.ParseFormat(ps.ByName("format"))
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Format must be png or svg", nil)
		return
	}

	dl, err := session.Pipeline.Export(format)
	if err != nil {
		if stderrors.Is(err, studio.ErrClosed) {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Session not found", nil)
			return
		}
		h.metrics.ExportFailures.Add(1)
		if stderrors.Is(err, studio.ErrEmptyPayload) {
			errors.WriteError(w, http.StatusConflict, errors.ErrCodeEmptyPayload, "Payload is empty", nil)
			return
		}
		log.Warn().Err(err).
			Str("session_id", session.ID).
			Str("format", string(format)).
			Msg("export failed")
		errors.WriteError(w, http.StatusUnprocessableEntity, errors.ErrCodeEncodeFailed, "Failed to encode QR code", map[string]string{
			"reason": err.Error(),
		})
		return
	}
	h.metrics.Exports.Add(1)

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", dl.ContentDisposition())
	w.Header().Set("ETag", fmt.Sprintf("%q", dl.Fingerprint))
	w.WriteHeader(http.StatusOK)
	w.Write(dl.Data)
}
