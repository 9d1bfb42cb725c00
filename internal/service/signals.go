// internal/service/signals.go
package service

import (
	"context"
	"sync"

	appErrors "github.com/unclebandit/trafficpilot-backend/internal/errors"
)

// SignalHub relays externally reported session signals (plugin loaded,
// plugin active) to the session runner waiting for them. A signal that
// arrives before anyone waits is latched, so duplicate or early delivery
// never loses a waiter.
type SignalHub struct {
	mu       sync.Mutex
	latched  map[string]map[string]string          // sessionID -> event -> extensionID
	waiters  map[string]map[string][]chan string   // sessionID -> event -> waiting channels
}

func NewSignalHub() *SignalHub {
	return &SignalHub{
		latched: make(map[string]map[string]string),
		waiters: make(map[string]map[string][]chan string),
	}
}

// Notify records a signal and wakes every waiter for it. Re-delivery of
// an already-latched signal is a no-op.
func (h *SignalHub) Notify(sessionID, event, extensionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.latched[sessionID] == nil {
		h.latched[sessionID] = make(map[string]string)
	}
	if _, dup := h.latched[sessionID][event]; !dup {
		h.latched[sessionID][event] = extensionID
	}

	for _, ch := range h.waiters[sessionID][event] {
		ch <- h.latched[sessionID][event]
		close(ch)
	}
	if h.waiters[sessionID] != nil {
		delete(h.waiters[sessionID], event)
	}
}

// Wait blocks until the signal arrives or the context expires, returning
// the extension id carried by the signal. Expiry maps to ErrStepTimeout.
func (h *SignalHub) Wait(ctx context.Context, sessionID, event string) (string, error) {
	h.mu.Lock()
	if ext, ok := h.latched[sessionID][event]; ok {
		h.mu.Unlock()
		return ext, nil
	}

	ch := make(chan string, 1)
	if h.waiters[sessionID] == nil {
		h.waiters[sessionID] = make(map[string][]chan string)
	}
	h.waiters[sessionID][event] = append(h.waiters[sessionID][event], ch)
	h.mu.Unlock()

	select {
	case ext := <-ch:
		return ext, nil
	case <-ctx.Done():
		h.drop(sessionID, event, ch)
		return "", appErrors.ErrStepTimeout
	}
}

// Forget releases everything latched for a finished session.
func (h *SignalHub) Forget(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.latched, sessionID)
	delete(h.waiters, sessionID)
}

func (h *SignalHub) drop(sessionID, event string, ch chan string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	chans := h.waiters[sessionID][event]
	for i, c := range chans {
		if c == ch {
			h.waiters[sessionID][event] = append(chans[:i], chans[i+1:]...)
			return
		}
	}
}
