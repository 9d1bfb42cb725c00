package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/trafficpilot-backend/internal/errors"
	"github.com/unclebandit/trafficpilot-backend/internal/model"
	"github.com/unclebandit/trafficpilot-backend/internal/service"
)

func activeCampaign(id, total, perTick int) *model.Campaign {
	return &model.Campaign{
		ID:              id,
		OwnerID:         1,
		Name:            "campaign",
		Status:          model.CampaignStatusActive,
		TargetURL:       "https://example.com",
		SearchKeyword:   "example site",
		TotalSessions:   total,
		SessionsPerTick: perTick,
	}
}

func testScheduler(campaigns *mockCampaignRepo, sessions *mockSessionRepo, resolver *mockResolver, dispatcher *mockDispatcher) *service.CampaignScheduler {
	return &service.CampaignScheduler{
		Campaigns:  campaigns,
		Sessions:   sessions,
		Resolver:   resolver,
		Dispatcher: dispatcher,
	}
}

func TestTickNeverExceedsTotalSessions(t *testing.T) {
	campaigns := newMockCampaignRepo(activeCampaign(1, 5, 2))
	sessions := newMockSessionRepo()
	dispatcher := &mockDispatcher{}
	sched := testScheduler(campaigns, sessions, &mockResolver{}, dispatcher)

	// Ticks deliver 2, 2, 1; further ticks deliver nothing.
	perTick := []int{2, 2, 1, 0, 0}
	for i, want := range perTick {
		result, err := sched.Tick(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, result.Dispatched(), "tick %d", i+1)
	}

	require.Equal(t, 5, dispatcher.count())
	c, err := campaigns.GetByID(1)
	require.NoError(t, err)
	require.Equal(t, 5, c.DeliveredSessions)
	require.Equal(t, model.CampaignStatusCompleted, c.Status)
}

func TestTickCampaignErrorIsolation(t *testing.T) {
	// Owner 1 has no proxy; owner 2 is healthy. The failing campaign
	// must not stop the healthy one from dispatching.
	broken := activeCampaign(1, 4, 2)
	healthy := activeCampaign(2, 4, 2)
	healthy.OwnerID = 2
	campaigns := newMockCampaignRepo(broken, healthy)
	sessions := newMockSessionRepo()
	dispatcher := &mockDispatcher{}

	resolver := &ownerResolver{failFor: 1}
	sched := testScheduler(campaigns, sessions, nil, dispatcher)
	sched.Resolver = resolver

	result, err := sched.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Dispatched())

	c, err := campaigns.GetByID(1)
	require.NoError(t, err)
	require.Equal(t, appErrors.ErrNoProxyAvailable.Error(), c.LastScheduleError)
	require.Equal(t, 0, c.DeliveredSessions)

	h, err := campaigns.GetByID(2)
	require.NoError(t, err)
	require.Equal(t, 2, h.DeliveredSessions)
}

// ownerResolver fails resolution for one owner only.
type ownerResolver struct {
	failFor int
}

func (r *ownerResolver) Resolve(ctx context.Context, ownerID int) (model.ProxyHandle, error) {
	if ownerID == r.failFor {
		return model.ProxyHandle{}, appErrors.ErrNoProxyAvailable
	}
	return model.ProxyHandle{Endpoint: "proxy:9222"}, nil
}

func TestTickSkipsCampaignOutsideWindow(t *testing.T) {
	future := time.Now().Add(time.Hour)
	c := activeCampaign(1, 4, 2)
	c.WindowStart = &future
	campaigns := newMockCampaignRepo(c)
	dispatcher := &mockDispatcher{}
	resolver := &mockResolver{}
	sched := testScheduler(campaigns, newMockSessionRepo(), resolver, dispatcher)

	result, err := sched.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Dispatched())
	require.Equal(t, "outside scheduling window", result.Campaigns[0].Skipped)
	// No proxy resolution for a skipped campaign.
	require.Equal(t, 0, resolver.calls)
}

func TestTickSkipsNonPositivePerTickRate(t *testing.T) {
	c := activeCampaign(1, 4, 0)
	campaigns := newMockCampaignRepo(c)
	dispatcher := &mockDispatcher{}
	resolver := &mockResolver{}
	sched := testScheduler(campaigns, newMockSessionRepo(), resolver, dispatcher)

	result, err := sched.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Dispatched())
	require.Equal(t, "non-positive per-tick rate", result.Campaigns[0].Skipped)
	require.Equal(t, 0, resolver.calls)
}

func TestTickIgnoresPausedCampaigns(t *testing.T) {
	c := activeCampaign(1, 4, 2)
	c.Status = model.CampaignStatusPaused
	campaigns := newMockCampaignRepo(c)
	dispatcher := &mockDispatcher{}
	sched := testScheduler(campaigns, newMockSessionRepo(), &mockResolver{}, dispatcher)

	result, err := sched.Tick(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Campaigns)
	require.Equal(t, 0, dispatcher.count())
}

func TestTickCreatesSearchSessions(t *testing.T) {
	campaigns := newMockCampaignRepo(activeCampaign(1, 1, 1))
	sessions := newMockSessionRepo()
	dispatcher := &mockDispatcher{}
	sched := testScheduler(campaigns, sessions, &mockResolver{}, dispatcher)

	_, err := sched.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, dispatcher.sessions, 1)

	created := dispatcher.sessions[0]
	require.Equal(t, model.StageCreated, created.Stage)
	require.Equal(t, "search", created.TrafficSource)
	require.Equal(t, "example site", created.SearchKeyword)
	require.NotEmpty(t, created.Referrer)

	// The row exists before dispatch.
	stored, err := sessions.GetByID(created.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.CampaignID)
}

func TestTickDirectTrafficWithoutKeyword(t *testing.T) {
	c := activeCampaign(1, 1, 1)
	c.SearchKeyword = ""
	campaigns := newMockCampaignRepo(c)
	dispatcher := &mockDispatcher{}
	sched := testScheduler(campaigns, newMockSessionRepo(), &mockResolver{}, dispatcher)

	_, err := sched.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, dispatcher.sessions, 1)
	require.Equal(t, "direct", dispatcher.sessions[0].TrafficSource)
	require.Empty(t, dispatcher.sessions[0].Referrer)
}

func TestTickSweepsStuckSessions(t *testing.T) {
	sessions := newMockSessionRepo()
	stale := &model.BotSession{ID: "stale", CampaignID: 1, Stage: model.StageSearchInitiated}
	require.NoError(t, sessions.Create(stale))
	sessions.sessions["stale"].CreatedAt = time.Now().Add(-time.Hour)

	fresh := &model.BotSession{ID: "fresh", CampaignID: 1, Stage: model.StageCreated}
	require.NoError(t, sessions.Create(fresh))

	sched := testScheduler(newMockCampaignRepo(), sessions, &mockResolver{}, &mockDispatcher{})
	sched.StuckSessionAge = 5 * time.Minute

	result, err := sched.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.SweptSessions)

	swept, err := sessions.GetByID("stale")
	require.NoError(t, err)
	require.Equal(t, model.OutcomeTimedOut, swept.Outcome)

	kept, err := sessions.GetByID("fresh")
	require.NoError(t, err)
	require.Empty(t, kept.Outcome)
}
