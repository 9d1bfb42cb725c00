// internal/service/dispatcher_queue.go
package service

import (
	"context"
	"fmt"

	"github.com/unclebandit/trafficpilot-backend/internal/model"
	"github.com/unclebandit/trafficpilot-backend/internal/queue"
	"github.com/unclebandit/trafficpilot-backend/internal/repository"
)

// QueueDispatcher pushes session runs onto the broker for cmd/worker
// to execute. The proxy handle is not serialized; the worker resolves
// its own proxy at execution time so a handle that went unhealthy in
// transit is never used.
type QueueDispatcher struct {
	Queue queue.Queue
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, session *model.BotSession, campaign *model.Campaign, handle model.ProxyHandle) error {
	return d.Queue.Publish(queue.SessionRunsTopic, queue.SessionJob{
		SessionID:  session.ID,
		CampaignID: campaign.ID,
	})
}

// StartSessionRunSubscriber consumes session jobs from an in-process
// queue and executes them on the pool. The broker-less counterpart of
// cmd/worker.
func StartSessionRunSubscriber(
	q queue.Queue,
	campaigns repository.CampaignRepositoryInterface,
	sessions repository.SessionRepositoryInterface,
	resolver ProxyResolverInterface,
	runner *SessionRunner,
	pool *SessionPool,
) error {
	return q.Subscribe(queue.SessionRunsTopic, func(payload any) error {
		job, ok := payload.(queue.SessionJob)
		if !ok {
			return fmt.Errorf("unexpected payload %T on %s", payload, queue.SessionRunsTopic)
		}

		session, err := sessions.GetByID(job.SessionID)
		if err != nil {
			return err
		}
		if session.Terminal() {
			return nil
		}
		campaign, err := campaigns.GetByID(job.CampaignID)
		if err != nil {
			return err
		}
		handle, err := resolver.Resolve(context.Background(), campaign.OwnerID)
		if err != nil {
			return err
		}

		pool.Submit(context.Background(), func(ctx context.Context) {
			runner.Execute(ctx, session, campaign, handle)
		})
		return nil
	})
}

var _ Dispatcher = (*QueueDispatcher)(nil)
var _ Dispatcher = (*PoolDispatcher)(nil)
