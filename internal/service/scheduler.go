// internal/service/scheduler.go
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/trafficpilot-backend/internal/model"
	"github.com/unclebandit/trafficpilot-backend/internal/repository"
)

// Dispatcher hands a created session off for execution. The scheduler
// never waits on the session itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, session *model.BotSession, campaign *model.Campaign, handle model.ProxyHandle) error
}

// PoolDispatcher runs sessions on the in-process bounded pool.
type PoolDispatcher struct {
	Pool   *SessionPool
	Runner *SessionRunner
}

func (d *PoolDispatcher) Dispatch(ctx context.Context, session *model.BotSession, campaign *model.Campaign, handle model.ProxyHandle) error {
	d.Pool.Submit(ctx, func(runCtx context.Context) {
		d.Runner.Execute(runCtx, session, campaign, handle)
	})
	return nil
}

// CampaignDispatch is one campaign's slice of a tick summary.
type CampaignDispatch struct {
	CampaignID int    `json:"campaign_id"`
	Dispatched int    `json:"dispatched"`
	Completed  bool   `json:"completed,omitempty"`
	Skipped    string `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TickResult summarizes one scheduler pass.
type TickResult struct {
	SweptSessions int                `json:"swept_sessions"`
	Campaigns     []CampaignDispatch `json:"campaigns"`
}

// Dispatched totals sessions dispatched across all campaigns this tick.
func (t *TickResult) Dispatched() int {
	total := 0
	for _, c := range t.Campaigns {
		total += c.Dispatched
	}
	return total
}

// CampaignScheduler is the top-level control loop. Each tick examines
// the active campaigns whose window permits activity, computes a
// per-campaign quota, and dispatches that many sessions without
// blocking on their completion. One campaign's failure never touches
// the others.
type CampaignScheduler struct {
	Campaigns  repository.CampaignRepositoryInterface
	Sessions   repository.SessionRepositoryInterface
	Resolver   ProxyResolverInterface
	Dispatcher Dispatcher

	// StuckSessionAge bounds how long a non-terminal session may live
	// before the tick sweeps it to timed_out. Zero disables the sweep.
	StuckSessionAge time.Duration

	// now is swappable for tests.
	now func() time.Time
}

func (s *CampaignScheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Tick runs one scheduling pass and returns its dispatch summary.
func (s *CampaignScheduler) Tick(ctx context.Context) (*TickResult, error) {
	result := &TickResult{}

	if s.StuckSessionAge > 0 {
		swept, err := s.Sessions.SweepStuck(s.clock().Add(-s.StuckSessionAge))
		if err != nil {
			log.Printf("⚠️ stuck session sweep failed: %v", err)
		} else if swept > 0 {
			log.Printf("swept %d stuck sessions to timed_out", swept)
			result.SweptSessions = swept
		}
	}

	campaigns, err := s.Campaigns.ListActive()
	if err != nil {
		return nil, err
	}

	for _, campaign := range campaigns {
		result.Campaigns = append(result.Campaigns, s.tickCampaign(ctx, campaign))
	}
	return result, nil
}

func (s *CampaignScheduler) tickCampaign(ctx context.Context, campaign *model.Campaign) CampaignDispatch {
	dispatch := CampaignDispatch{CampaignID: campaign.ID}

	if !campaign.InWindow(s.clock()) {
		dispatch.Skipped = "outside scheduling window"
		return dispatch
	}

	remaining := campaign.RemainingSessions()
	if remaining == 0 {
		if err := s.Campaigns.MarkCompleted(campaign.ID); err != nil {
			dispatch.Error = fmt.Sprintf("mark completed: %v", err)
			return dispatch
		}
		log.Printf("🏁 campaign %d completed: %d/%d sessions delivered", campaign.ID, campaign.DeliveredSessions, campaign.TotalSessions)
		dispatch.Completed = true
		return dispatch
	}

	if campaign.SessionsPerTick <= 0 {
		dispatch.Skipped = "non-positive per-tick rate"
		return dispatch
	}
	quota := remaining
	if campaign.SessionsPerTick < quota {
		quota = campaign.SessionsPerTick
	}

	handle, err := s.Resolver.Resolve(ctx, campaign.OwnerID)
	if err != nil {
		// Recorded against this campaign only; retried next tick.
		dispatch.Error = err.Error()
		if recErr := s.Campaigns.RecordScheduleError(campaign.ID, err.Error()); recErr != nil {
			log.Printf("⚠️ failed to record schedule error for campaign %d: %v", campaign.ID, recErr)
		}
		return dispatch
	}

	for i := 0; i < quota; i++ {
		reserved, err := s.Campaigns.ReserveSession(campaign.ID)
		if err != nil {
			dispatch.Error = fmt.Sprintf("reserve session: %v", err)
			break
		}
		if !reserved {
			// Another scheduler drained the remaining volume.
			break
		}

		session, err := s.createSession(campaign)
		if err != nil {
			dispatch.Error = fmt.Sprintf("create session: %v", err)
			break
		}

		if err := s.Dispatcher.Dispatch(ctx, session, campaign, handle); err != nil {
			dispatch.Error = fmt.Sprintf("dispatch session %s: %v", session.ID, err)
			if finErr := s.Sessions.Finish(session.ID, model.OutcomeFailed, err.Error()); finErr != nil {
				log.Printf("⚠️ failed to fail undispatched session %s: %v", session.ID, finErr)
			}
			continue
		}
		dispatch.Dispatched++
	}

	if dispatch.Dispatched > 0 {
		log.Printf("📤 campaign %d: dispatched %d sessions (%d/%d delivered)",
			campaign.ID, dispatch.Dispatched, campaign.DeliveredSessions+dispatch.Dispatched, campaign.TotalSessions)
	}
	return dispatch
}

func (s *CampaignScheduler) createSession(campaign *model.Campaign) (*model.BotSession, error) {
	session := &model.BotSession{
		ID:         uuid.New().String(),
		CampaignID: campaign.ID,
		Stage:      model.StageCreated,
	}
	if campaign.SearchKeyword != "" {
		session.TrafficSource = "search"
		session.SearchKeyword = campaign.SearchKeyword
		session.Referrer = "https://www.google.com/search?q=" + campaign.SearchKeyword
	} else {
		session.TrafficSource = "direct"
	}
	if err := s.Sessions.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}
