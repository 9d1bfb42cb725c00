// internal/handler/session_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/trafficpilot-backend/internal/errors"
	"github.com/unclebandit/trafficpilot-backend/internal/repository"
	"github.com/unclebandit/trafficpilot-backend/internal/service"
)

// SessionHandler holds the dependencies for session tracking HTTP handlers
type SessionHandler struct {
	Repo    repository.SessionRepositoryInterface
	Tracker service.SessionTrackerInterface
}

type trackRequest struct {
	SessionID   string            `json:"sessionId"`
	Event       string            `json:"event"`
	ExtensionID string            `json:"extensionId,omitempty"`
	Update      map[string]string `json:"update,omitempty"`
}

// TrackSessionHandler ingests lifecycle events reported by the browser
// plugin and the automation server. A request carries either an event
// name or an update map of session fields.
func (h *SessionHandler) TrackSessionHandler(w http.ResponseWriter, r *http.Request) {
	var payload trackRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if payload.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	if payload.Event == "" && len(payload.Update) == 0 {
		http.Error(w, "event or update is required", http.StatusBadRequest)
		return
	}

	if len(payload.Update) > 0 {
		session, err := h.Tracker.ApplyUpdate(payload.SessionID, payload.Update)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(session)
		return
	}

	session, err := h.Tracker.ApplyEvent(payload.SessionID, payload.Event, payload.ExtensionID, time.Now())
	if err != nil {
		writeSessionError(w, err)
		return
	}

	log.Printf("📩 tracked %s for session %s (stage %s)", payload.Event, session.ID, session.Stage)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// GetSessionHandler returns one session by id
func (h *SessionHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := h.Repo.GetByID(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

func writeSessionError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrSessionNotFound
	var unknownEvent *appErrors.ErrUnknownEvent
	var skipped *appErrors.ErrStageSkipped
	switch {
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &unknownEvent), errors.As(err, &skipped):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
