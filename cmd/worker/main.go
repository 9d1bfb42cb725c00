// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/streadway/amqp"

	"github.com/unclebandit/trafficpilot-backend/internal/browser"
	"github.com/unclebandit/trafficpilot-backend/internal/config"
	"github.com/unclebandit/trafficpilot-backend/internal/db"
	"github.com/unclebandit/trafficpilot-backend/internal/queue"
	"github.com/unclebandit/trafficpilot-backend/internal/repository"
	"github.com/unclebandit/trafficpilot-backend/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration:", err)
	}

	db.Init()

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	sessionRepo := &repository.SessionRepository{DB: db.DB}
	proxyRepo := &repository.ProxyRepository{DB: db.DB}

	var drivers browser.Factory
	if cfg.DriverMode == "cdp" {
		drivers = browser.CDPFactory{}
	} else {
		drivers = browser.NewHTTPFactory(cfg.AutomationServer)
	}

	resolver := &service.ProxyResolver{
		Proxies:      proxyRepo,
		Drivers:      drivers,
		ProbeTimeout: cfg.HealthTimeout,
	}

	runner := &service.SessionRunner{
		Sessions: sessionRepo,
		Drivers:  drivers,
		Signals:  service.NewSignalHub(),
		Config: service.RunnerConfig{
			StepTimeout:    cfg.StepTimeout,
			SignalTimeout:  cfg.SignalTimeout,
			SignalPoll:     cfg.SignalPoll,
			MaxStepRetries: cfg.MaxStepRetries,
			BackoffBase:    cfg.StepBackoffBase,
		},
	}

	pool := service.NewSessionPool(cfg.MaxConcurrentSessions)

	// Connect to RabbitMQ
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ:", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("Failed to open a channel:", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		queue.SessionRunsTopic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		log.Fatal("Failed to declare queue:", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.Fatal("Failed to register consumer:", err)
	}

	forever := make(chan bool)

	go func() {
		for d := range msgs {
			var job queue.SessionJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				log.Println("Invalid job:", err)
				d.Ack(false)
				continue
			}

			err := runSession(job, campaignRepo, sessionRepo, resolver, runner, pool)
			if err != nil {
				log.Println("Failed to run session:", err)
				retries := retryCount(d.Headers)
				if retries < maxJobRetries {
					// Republish with the bumped counter; a plain Nack
					// requeue would keep the original headers and retry
					// forever.
					pub := amqp.Publishing{
						ContentType: "application/json",
						Body:        d.Body,
						Headers:     amqp.Table{"x-retry-count": int32(retries + 1)},
					}
					if err := ch.Publish("", q.Name, false, false, pub); err != nil {
						log.Println("⚠️ failed to requeue job:", err)
						d.Nack(false, true)
						continue
					}
				} else {
					log.Printf("⚠️ dropping job for session %s after %d attempts", job.SessionID, retries+1)
				}
			}

			d.Ack(false)
		}
	}()

	log.Println("Worker running, waiting for session jobs...")
	<-forever
}

const maxJobRetries = 3

// retryCount reads the x-retry-count header. Brokers and client
// libraries deliver numeric headers in varying integer widths.
func retryCount(headers amqp.Table) int {
	switch v := headers["x-retry-count"].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

// runSession resolves a fresh proxy and executes the session on the
// pool. Setup failures (load, resolve) are retryable through the
// broker; once Execute is reached the session records its own outcome
// and the job is done.
func runSession(
	job queue.SessionJob,
	campaigns repository.CampaignRepositoryInterface,
	sessions repository.SessionRepositoryInterface,
	resolver service.ProxyResolverInterface,
	runner *service.SessionRunner,
	pool *service.SessionPool,
) error {
	session, err := sessions.GetByID(job.SessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", job.SessionID, err)
	}
	if session.Terminal() {
		log.Printf("session %s already finished, skipping", session.ID)
		return nil
	}

	campaign, err := campaigns.GetByID(job.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign %d: %w", job.CampaignID, err)
	}

	handle, err := resolver.Resolve(context.Background(), campaign.OwnerID)
	if err != nil {
		return fmt.Errorf("resolve proxy for owner %d: %w", campaign.OwnerID, err)
	}

	pool.Submit(context.Background(), func(ctx context.Context) {
		runner.Execute(ctx, session, campaign, handle)
	})
	return nil
}
