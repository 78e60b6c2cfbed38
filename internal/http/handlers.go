// Package http serves the transcription UI and its JSON API.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"live-transcription-service/internal/app"
	"live-transcription-service/internal/display"
	"live-transcription-service/internal/service/audio"
	"live-transcription-service/internal/service/session"
	"live-transcription-service/internal/store"
)

type handlers struct {
	app *app.Application
}

func newHandlers(a *app.Application) *handlers {
	return &handlers{app: a}
}

type errorResponse struct {
	Error string `json:"error"`
}

type startResponse struct {
	SessionID string           `json:"sessionId"`
	Session   session.Snapshot `json:"session"`
}

type stopRecordingResponse struct {
	SessionID string           `json:"sessionId"`
	Saved     bool             `json:"saved"`
	File      string           `json:"file,omitempty"`
	Session   session.Snapshot `json:"session"`
}

type listResponse struct {
	Sessions  []session.Snapshot `json:"sessions"`
	Recording string             `json:"recording,omitempty"`
}

type transcriptsResponse struct {
	Transcripts []store.Record `json:"transcripts"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrAlreadyRecording), errors.Is(err, app.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, app.ErrUnsupportedUpload),
		errors.Is(err, audio.ErrNotWAV),
		errors.Is(err, audio.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, audio.ErrDeviceStart):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	id, recording := h.app.Recording()
	data := pageData{
		UploadPlaceholder: display.UploadPlaceholder,
		RecordPlaceholder: display.RecordPlaceholder,
		Recording:         recording,
		RecordingID:       id,
		Provider:          h.app.Cfg.STT.Provider,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("Failed to render page")
	}
}

func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	limit := h.app.Cfg.Audio.MaxUploadMB << 20
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("missing form file \"file\""))
		return
	}
	defer file.Close()

	snap, err := h.app.TranscribeUpload(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{SessionID: snap.ID, Session: snap})
}

func (h *handlers) startRecording(w http.ResponseWriter, r *http.Request) {
	snap, err := h.app.StartRecording(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{SessionID: snap.ID, Session: snap})
}

func (h *handlers) stopRecording(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.StopRecording(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stopRecordingResponse{
		SessionID: res.Session.ID,
		Saved:     res.Saved,
		File:      res.File,
		Session:   res.Session,
	})
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	id, _ := h.app.Recording()
	writeJSON(w, http.StatusOK, listResponse{Sessions: h.app.Sessions.Active(), Recording: id})
}

// listTranscripts returns archived transcripts, newest first. The optional
// limit query parameter caps the count.
func (h *handlers) listTranscripts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	recs, err := h.app.Store.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, http.StatusOK, transcriptsResponse{Transcripts: recs})
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.app.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// stopSession stops any session. Stopping the microphone session also stops
// and saves the recording.
func (h *handlers) stopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if rec, ok := h.app.Recording(); ok && rec == id {
		h.stopRecording(w, r)
		return
	}
	snap, err := h.app.Sessions.Stop(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) watchSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.app.Sessions.Get(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.app.Hub.ServeWS(w, r, id, func() (display.Update, bool) {
		snap, err := h.app.Sessions.Get(r.Context(), id)
		if err != nil || snap.State != session.StateStopped.String() {
			return display.Update{}, false
		}
		u := display.Update{SessionID: id, Text: snap.FinalText, State: snap.State}
		if snap.EndedAt != nil {
			u.At = *snap.EndedAt
		}
		return u, true
	})
}

// requestLogger logs each request with zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("requestId", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	})
}
