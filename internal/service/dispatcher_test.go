package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/trafficpilot-backend/internal/model"
	"github.com/unclebandit/trafficpilot-backend/internal/queue"
	"github.com/unclebandit/trafficpilot-backend/internal/service"
)

func TestQueueDispatcherPublishesJob(t *testing.T) {
	q := queue.NewInMemoryQueue()

	got := make(chan queue.SessionJob, 1)
	require.NoError(t, q.Subscribe(queue.SessionRunsTopic, func(payload any) error {
		got <- payload.(queue.SessionJob)
		return nil
	}))

	d := &service.QueueDispatcher{Queue: q}
	err := d.Dispatch(context.Background(),
		&model.BotSession{ID: "s-1", CampaignID: 3},
		&model.Campaign{ID: 3},
		model.ProxyHandle{Endpoint: "proxy:9222"},
	)
	require.NoError(t, err)

	select {
	case job := <-got:
		require.Equal(t, queue.SessionJob{SessionID: "s-1", CampaignID: 3}, job)
	case <-time.After(time.Second):
		t.Fatal("job never delivered")
	}
}

func TestSessionRunSubscriberExecutesJob(t *testing.T) {
	campaigns := newMockCampaignRepo(activeCampaign(3, 5, 1))
	sessions := newMockSessionRepo()
	require.NoError(t, sessions.Create(&model.BotSession{ID: "s-1", CampaignID: 3, Stage: model.StageCreated}))

	signals := service.NewSignalHub()
	signals.Notify("s-1", model.EventPluginLoaded, "")
	signals.Notify("s-1", model.EventPluginActive, "")

	drv := &fakeDriver{
		searchLinks: []string{"https://example.com/page"},
		landedURL:   "https://example.com/page",
	}
	runner := testRunner(sessions, drv, signals)
	pool := service.NewSessionPool(2)

	q := queue.NewInMemoryQueue()
	require.NoError(t, service.StartSessionRunSubscriber(q, campaigns, sessions, &mockResolver{}, runner, pool))

	d := &service.QueueDispatcher{Queue: q}
	campaign, err := campaigns.GetByID(3)
	require.NoError(t, err)

	session, err := sessions.GetByID("s-1")
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), session, campaign, model.ProxyHandle{}))

	// The queue hands the job off asynchronously; wait for the pool to
	// pick it up and the runner to finish.
	deadline := time.After(2 * time.Second)
	for {
		stored, err := sessions.GetByID("s-1")
		require.NoError(t, err)
		if stored.Terminal() {
			require.Equal(t, model.OutcomeSuccess, stored.Outcome)
			return
		}
		select {
		case <-deadline:
			t.Fatal("session never reached a terminal outcome")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSessionRunSubscriberSkipsFinishedSession(t *testing.T) {
	campaigns := newMockCampaignRepo(activeCampaign(3, 5, 1))
	sessions := newMockSessionRepo()
	require.NoError(t, sessions.Create(&model.BotSession{
		ID: "s-done", CampaignID: 3,
		Stage: model.StageCompleted, Outcome: model.OutcomeSuccess,
	}))

	resolver := &mockResolver{}
	pool := service.NewSessionPool(1)
	q := queue.NewInMemoryQueue()
	runner := testRunner(sessions, &fakeDriver{}, service.NewSignalHub())
	require.NoError(t, service.StartSessionRunSubscriber(q, campaigns, sessions, resolver, runner, pool))

	require.NoError(t, q.Publish(queue.SessionRunsTopic, queue.SessionJob{SessionID: "s-done", CampaignID: 3}))
	time.Sleep(50 * time.Millisecond)
	pool.Wait()

	require.Equal(t, 0, resolver.calls, "finished session must not resolve a proxy")
}
