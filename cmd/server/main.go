// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/unclebandit/trafficpilot-backend/internal/browser"
	"github.com/unclebandit/trafficpilot-backend/internal/config"
	"github.com/unclebandit/trafficpilot-backend/internal/controller"
	"github.com/unclebandit/trafficpilot-backend/internal/db"
	"github.com/unclebandit/trafficpilot-backend/internal/handler"
	"github.com/unclebandit/trafficpilot-backend/internal/queue"
	"github.com/unclebandit/trafficpilot-backend/internal/repository"
	"github.com/unclebandit/trafficpilot-backend/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration:", err)
	}

	// Init DB
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

	signals := service.NewSignalHub()
	runner := &service.SessionRunner{
		Sessions: sessionRepo,
		Drivers:  drivers,
		Signals:  signals,
		Config: service.RunnerConfig{
			StepTimeout:    cfg.StepTimeout,
			SignalTimeout:  cfg.SignalTimeout,
			SignalPoll:     cfg.SignalPoll,
			MaxStepRetries: cfg.MaxStepRetries,
			BackoffBase:    cfg.StepBackoffBase,
		},
	}

	pool := service.NewSessionPool(cfg.MaxConcurrentSessions)

	var dispatcher service.Dispatcher
	switch cfg.DispatchMode {
	case "queue":
		q, err := queue.NewAMQPQueue(cfg.AMQPURL)
		if err != nil {
			log.Fatal("failed to connect to queue:", err)
		}
		defer q.Close()
		dispatcher = &service.QueueDispatcher{Queue: q}
		log.Println("📤 dispatching sessions to broker for cmd/worker")
	case "memory":
		// Broker-less single binary: jobs go through the in-process
		// queue and land back on the local pool.
		q := queue.NewInMemoryQueue()
		if err := service.StartSessionRunSubscriber(q, campaignRepo, sessionRepo, resolver, runner, pool); err != nil {
			log.Fatal("failed to start session subscriber:", err)
		}
		dispatcher = &service.QueueDispatcher{Queue: q}
		log.Println("📥 dispatching sessions through in-memory queue")
	default:
		dispatcher = &service.PoolDispatcher{Pool: pool, Runner: runner}
		log.Printf("🏊 dispatching sessions on in-process pool (max %d concurrent)", cfg.MaxConcurrentSessions)
	}

	scheduler := &service.CampaignScheduler{
		Campaigns:       campaignRepo,
		Sessions:        sessionRepo,
		Resolver:        resolver,
		Dispatcher:      dispatcher,
		StuckSessionAge: cfg.StuckSessionAge,
	}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		SessionRepo:  sessionRepo,
		Scheduler:    scheduler,
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
	}

	sessionHandler := &handler.SessionHandler{
		Repo: sessionRepo,
		Tracker: &service.SessionTracker{
			Sessions: sessionRepo,
			Signals:  signals,
		},
	}

	// Periodic scheduler tick
	go func() {
		ticker := time.NewTicker(cfg.TickInterval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := scheduler.Tick(context.Background()); err != nil {
				log.Println("⚠️ scheduler tick failed:", err)
			}
		}
	}()

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaignDetails)
	r.Post("/campaigns/{id}/activate", campaignController.ActivateCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)

	// Session tracking routes
	r.Post("/sessions/track", sessionHandler.TrackSessionHandler)
	r.Get("/sessions/{id}", sessionHandler.GetSessionHandler)

	log.Println("🚀 Server running on", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
