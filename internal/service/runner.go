// internal/service/runner.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/unclebandit/trafficpilot-backend/internal/browser"
	appErrors "github.com/unclebandit/trafficpilot-backend/internal/errors"
	"github.com/unclebandit/trafficpilot-backend/internal/model"
	"github.com/unclebandit/trafficpilot-backend/internal/repository"
)

// RunnerConfig bounds every remote step. These come from the
// environment, not constants, so operators can tune retry pressure
// against the automation endpoint.
type RunnerConfig struct {
	StepTimeout    time.Duration
	SignalTimeout  time.Duration
	SignalPoll     time.Duration
	MaxStepRetries int
	BackoffBase    time.Duration
}

// SessionRunner drives one bot session through its state machine:
// search, result matching, click or direct navigation, arrival
// verification, and the externally signalled plugin stages. The
// in-memory stage only advances after persistence confirms, so a
// storage rejection can never leave memory ahead of the row.
type SessionRunner struct {
	Sessions repository.SessionRepositoryInterface
	Drivers  browser.Factory
	Signals  *SignalHub
	Config   RunnerConfig
}

// Execute runs the session to a terminal outcome. It never returns an
// error: every failure mode is recorded on the session itself.
func (r *SessionRunner) Execute(ctx context.Context, session *model.BotSession, campaign *model.Campaign, handle model.ProxyHandle) {
	defer r.Signals.Forget(session.ID)

	drv := r.Drivers.Driver(handle)
	targetHost := hostOf(campaign.TargetURL)
	if targetHost == "" {
		r.finish(session, model.OutcomeFailed, fmt.Sprintf("campaign %d has unparseable target URL %q", campaign.ID, campaign.TargetURL))
		return
	}

	// created -> search_initiated
	if err := r.advance(session, model.StageSearchInitiated); err != nil {
		r.finish(session, model.OutcomeFailed, err.Error())
		return
	}

	// search_initiated -> search_completed
	links, err := r.searchWithRetry(ctx, drv, campaign.SearchKeyword)
	if err != nil {
		r.finishStep(session, err)
		return
	}
	if err := r.advance(session, model.StageSearchCompleted); err != nil {
		r.finish(session, model.OutcomeFailed, err.Error())
		return
	}

	// search_completed -> result_resolved: click the matched result, or
	// fall back to direct navigation. Both paths converge on the target.
	var landed string
	matched, found := MatchSearchResult(links, targetHost)
	if found {
		if err := r.Sessions.SetResult(session.ID, "clicked:"+matched); err != nil {
			r.finish(session, model.OutcomeFailed, err.Error())
			return
		}
		session.ResultURL = "clicked:" + matched
		landed, err = r.step(ctx, func(stepCtx context.Context) (string, error) {
			return drv.Click(stepCtx, matched)
		})
	} else {
		if err := r.Sessions.SetResult(session.ID, model.ResultNotFound); err != nil {
			r.finish(session, model.OutcomeFailed, err.Error())
			return
		}
		session.ResultURL = model.ResultNotFound
		landed, err = r.step(ctx, func(stepCtx context.Context) (string, error) {
			return drv.Navigate(stepCtx, campaign.TargetURL)
		})
	}
	if err != nil {
		r.finishStep(session, err)
		return
	}
	if err := r.advance(session, model.StageResultResolved); err != nil {
		r.finish(session, model.OutcomeFailed, err.Error())
		return
	}

	// result_resolved -> target_reached: verify where we actually landed.
	if hostOf(landed) != targetHost {
		r.finish(session, model.OutcomeFailed, fmt.Sprintf("landed on %q, expected host %q", landed, targetHost))
		return
	}
	if err := r.advance(session, model.StageTargetReached); err != nil {
		r.finish(session, model.OutcomeFailed, err.Error())
		return
	}

	// target_reached -> plugin_loaded: only the reporting agent can move
	// us from here. Reaching the target is itself a meaningful partial
	// success, so a missing signal degrades to partial, not failed.
	extensionID, err := r.waitSignal(ctx, session, model.EventPluginLoaded, model.StagePluginLoaded)
	if err != nil {
		r.finish(session, model.OutcomePartial, "plugin_loaded signal not received")
		return
	}
	if extensionID != "" {
		if err := r.Sessions.SetExtension(session.ID, extensionID); err != nil {
			r.finish(session, model.OutcomeFailed, err.Error())
			return
		}
		session.ExtensionID = extensionID
	}
	if err := r.advance(session, model.StagePluginLoaded); err != nil {
		r.finish(session, model.OutcomeFailed, err.Error())
		return
	}

	// plugin_loaded -> plugin_active, same timeout policy.
	if _, err := r.waitSignal(ctx, session, model.EventPluginActive, model.StagePluginActive); err != nil {
		r.finish(session, model.OutcomePartial, "plugin_active signal not received")
		return
	}
	if err := r.advance(session, model.StagePluginActive); err != nil {
		r.finish(session, model.OutcomeFailed, err.Error())
		return
	}

	// Dwell on the target for the campaign's configured duration, then
	// complete. Cancellation cuts the dwell short without failing the
	// session; everything meaningful already happened.
	if d := dwellDuration(campaign); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
	}
	if err := r.advance(session, model.StageCompleted); err != nil {
		r.finish(session, model.OutcomeFailed, err.Error())
		return
	}
	r.finish(session, model.OutcomeSuccess, "")
}

// dwellDuration picks a random on-site dwell within the campaign's
// session duration bounds, in seconds. Zero when unconfigured.
func dwellDuration(c *model.Campaign) time.Duration {
	low, high := c.SessionDurationMin, c.SessionDurationMax
	if high <= 0 {
		return 0
	}
	if low < 0 {
		low = 0
	}
	if high < low {
		high = low
	}
	secs := low
	if high > low {
		secs = low + rand.Intn(high-low+1)
	}
	return time.Duration(secs) * time.Second
}

// searchWithRetry issues the search command with bounded retries and
// exponential backoff. Timeouts are terminal for the step, remote errors
// burn a retry.
func (r *SessionRunner) searchWithRetry(ctx context.Context, drv browser.Driver, keyword string) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.Config.MaxStepRetries; attempt++ {
		if attempt > 0 {
			backoff := r.Config.BackoffBase << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, appErrors.ErrStepTimeout
			}
		}

		stepCtx, cancel := context.WithTimeout(ctx, r.Config.StepTimeout)
		links, err := drv.Search(stepCtx, keyword)
		cancel()
		if err == nil {
			if len(links) == 0 {
				return nil, fmt.Errorf("%w: search returned no candidate links", appErrors.ErrStepTimeout)
			}
			return links, nil
		}
		if errors.Is(err, appErrors.ErrStepTimeout) {
			return nil, err
		}
		lastErr = err
		log.Printf("⚠️ search attempt %d/%d failed: %v", attempt+1, r.Config.MaxStepRetries+1, err)
	}
	return nil, lastErr
}

// step runs one remote command under the step timeout.
func (r *SessionRunner) step(ctx context.Context, cmd func(ctx context.Context) (string, error)) (string, error) {
	stepCtx, cancel := context.WithTimeout(ctx, r.Config.StepTimeout)
	defer cancel()
	return cmd(stepCtx)
}

// waitSignal blocks until the plugin signal arrives or SignalTimeout
// expires. The hub only carries signals delivered to this process; when
// the tracking endpoint runs elsewhere, the tracker still advances the
// persisted stage under the monotonic guard, so between hub waits the
// runner re-reads the row and accepts a stage at or past the one the
// signal gates.
func (r *SessionRunner) waitSignal(ctx context.Context, session *model.BotSession, event, stage string) (string, error) {
	poll := r.Config.SignalPoll
	if poll <= 0 {
		poll = 2 * time.Second
	}
	deadline := time.Now().Add(r.Config.SignalTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", appErrors.ErrStepTimeout
		}
		if poll < remaining {
			remaining = poll
		}
		waitCtx, cancel := context.WithTimeout(ctx, remaining)
		ext, err := r.Signals.Wait(waitCtx, session.ID, event)
		cancel()
		if err == nil {
			return ext, nil
		}
		if ctx.Err() != nil {
			return "", appErrors.ErrStepTimeout
		}
		stored, getErr := r.Sessions.GetByID(session.ID)
		if getErr == nil && model.StageIndex(stored.Stage) >= model.StageIndex(stage) {
			return stored.ExtensionID, nil
		}
	}
}

// advance persists the transition, then mirrors it in memory.
// Re-reaching a stage is a no-op; skipping is an error.
func (r *SessionRunner) advance(session *model.BotSession, stage string) error {
	ok, err := model.CheckTransition(session.Stage, stage)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := r.Sessions.AdvanceStage(session.ID, stage, time.Now()); err != nil {
		return err
	}
	session.Stage = stage
	return nil
}

// finishStep picks the terminal outcome for a failed remote step.
func (r *SessionRunner) finishStep(session *model.BotSession, err error) {
	if errors.Is(err, appErrors.ErrStepTimeout) {
		r.finish(session, model.OutcomeTimedOut, err.Error())
		return
	}
	r.finish(session, model.OutcomeFailed, err.Error())
}

func (r *SessionRunner) finish(session *model.BotSession, outcome, lastError string) {
	if err := r.Sessions.Finish(session.ID, outcome, lastError); err != nil {
		log.Printf("⚠️ failed to record outcome %q for session %s: %v", outcome, session.ID, err)
		return
	}
	session.Outcome = outcome
	session.LastError = lastError
	if outcome != model.OutcomeSuccess {
		log.Printf("session %s finished %s (stage %s): %s", session.ID, outcome, session.Stage, lastError)
	}
}
