// internal/service/tracker.go
package service

import (
	"log"
	"time"

	appErrors "github.com/unclebandit/trafficpilot-backend/internal/errors"
	"github.com/unclebandit/trafficpilot-backend/internal/model"
	"github.com/unclebandit/trafficpilot-backend/internal/repository"
)

type SessionTrackerInterface interface {
	ApplyEvent(sessionID, event, extensionID string, at time.Time) (*model.BotSession, error)
	ApplyUpdate(sessionID string, fields map[string]string) (*model.BotSession, error)
}

// SessionTracker applies externally reported lifecycle events to stored
// sessions. Events arrive from the browser plugin and the automation
// server, possibly duplicated or late; applying the same event twice is
// a no-op, while an event that would skip a stage is rejected.
type SessionTracker struct {
	Sessions repository.SessionRepositoryInterface
	Signals  *SignalHub
}

var _ SessionTrackerInterface = (*SessionTracker)(nil)

func (t *SessionTracker) ApplyEvent(sessionID, event, extensionID string, at time.Time) (*model.BotSession, error) {
	stage, ok := model.StageForEvent(event)
	if !ok {
		return nil, &appErrors.ErrUnknownEvent{Event: event}
	}

	session, err := t.Sessions.GetByID(sessionID)
	if err != nil {
		return nil, err
	}

	advance, err := model.CheckTransition(session.Stage, stage)
	if err != nil {
		return nil, &appErrors.ErrStageSkipped{From: session.Stage, To: stage}
	}

	if advance {
		if err := t.Sessions.AdvanceStage(sessionID, stage, at); err != nil {
			return nil, err
		}
		session.Stage = stage
	} else {
		log.Printf("duplicate %s event for session %s ignored (stage %s)", event, sessionID, session.Stage)
	}

	if event == model.EventPluginLoaded && extensionID != "" {
		if err := t.Sessions.SetExtension(sessionID, extensionID); err != nil {
			return nil, err
		}
		session.ExtensionID = extensionID
	}

	// Wake any runner blocked on this signal even for duplicates; the
	// hub latches, so ordering between runner and event is immaterial.
	if t.Signals != nil {
		switch event {
		case model.EventPluginLoaded, model.EventPluginActive:
			t.Signals.Notify(sessionID, event, extensionID)
		}
	}

	return session, nil
}

// ApplyUpdate patches a whitelisted subset of session fields without
// touching the stage. Used by clients that report attributes rather
// than lifecycle progress.
func (t *SessionTracker) ApplyUpdate(sessionID string, fields map[string]string) (*model.BotSession, error) {
	if err := t.Sessions.UpdateFields(sessionID, fields); err != nil {
		return nil, err
	}
	return t.Sessions.GetByID(sessionID)
}
