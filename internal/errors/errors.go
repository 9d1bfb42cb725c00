// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrSessionNotFound signals a session id that no row matches.
type ErrSessionNotFound struct {
	SessionID string
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session with ID %s not found", e.SessionID)
}

func NewSessionNotFound(id string) error {
	return &ErrSessionNotFound{SessionID: id}
}

// ErrNoProxyAvailable means no enabled, healthy automation endpoint could
// be resolved for an owner. Dispatch must be skipped, not attempted.
var ErrNoProxyAvailable = errors.New("no usable proxy configuration available")

// ErrStepTimeout marks a remote automation step that exceeded its
// deadline, as opposed to a remote-side failure.
var ErrStepTimeout = errors.New("automation step timed out")

// ErrUnknownEvent marks a tracking event name outside the session
// lifecycle vocabulary. Callers should treat it as a client error.
type ErrUnknownEvent struct {
	Event string
}

func (e *ErrUnknownEvent) Error() string {
	return fmt.Sprintf("unknown tracking event %q", e.Event)
}

// ErrStageSkipped rejects an external event that would jump the session
// past an intermediate stage.
type ErrStageSkipped struct {
	From string
	To   string
}

func (e *ErrStageSkipped) Error() string {
	return fmt.Sprintf("cannot move session from stage %q to %q without intermediate stages", e.From, e.To)
}

// ErrCampaignNotActivatable is returned when activation is requested for
// a campaign that is not in draft status.
type ErrCampaignNotActivatable struct {
	CampaignID int
	Status     string
}

func (e *ErrCampaignNotActivatable) Error() string {
	return fmt.Sprintf("campaign %d cannot be activated from status %q", e.CampaignID, e.Status)
}
