package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wagerbot/api"
	"wagerbot/bot"
	"wagerbot/config"
	"wagerbot/events"
	"wagerbot/infrastructure"
	"wagerbot/observability"
	"wagerbot/payment"
	"wagerbot/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	// Load configuration
	cfg := config.Get()
	ConfigureLogging(cfg)
	log.Info("Starting wagerbot...")

	// Initialize event bus
	eventBus := events.NewBus()

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Initialize ledger store
	store, err := openLedgerStore(ctx, cfg, eventBus)
	if err != nil {
		return err
	}
	defer store.close()

	// Forward committed events to NATS
	var natsClient *infrastructure.NATSClient
	if cfg.NATSEnabled {
		natsClient, err = connectNATS(ctx, cfg, eventBus, metrics)
		if err != nil {
			return err
		}
	}

	// Initialize services
	log.Info("Initializing services...")
	var gateway service.PaymentGateway
	if cfg.PaymentsEnabled() {
		gateway = payment.NewClient(cfg.YooKassaAPIURL, cfg.YooKassaShopID, cfg.YooKassaSecretKey, cfg.YooKassaReturnURL)
	} else {
		log.Warn("YooKassa credentials not set, deposits are disabled")
	}
	accountService := service.NewAccountService(store.factory, metrics)
	matchService := service.NewMatchService(store.factory, metrics)
	paymentService := service.NewPaymentService(store.factory, gateway, metrics)
	log.Info("Services initialized successfully")

	// Initialize Telegram bot
	log.Info("Initializing Telegram bot...")
	botConfig := bot.Config{
		Token:         cfg.TelegramToken,
		WebhookSecret: cfg.TelegramWebhookSecret,
		PaymentsOn:    gateway != nil,
	}
	if cfg.UsesWebhook() {
		botConfig.WebhookURL = cfg.WebhookBaseURL + api.TelegramWebhookPath
	}
	telegramBot, err := bot.New(botConfig, accountService, matchService, paymentService, eventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	log.Info("Telegram bot initialized successfully")

	// Initialize HTTP server
	deps := api.Dependencies{
		Metrics:  metrics.Handler(),
		Observer: metrics,
		Health:   store.health,
	}
	if gateway != nil {
		// Notifications are confirmed against YooKassa, so the route needs credentials
		deps.Payments = paymentService
	}
	if cfg.UsesWebhook() {
		deps.TelegramWebhook = telegramBot.WebhookHandler()
	}
	server := api.NewServer(cfg.HTTPAddr, deps)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			errCh <- err
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		if err := telegramBot.Start(runCtx); err != nil {
			errCh <- err
			cancel()
		}
	}()

	log.WithField("environment", cfg.Environment).Info("Bot is running")
	<-runCtx.Done()

	// Cleanup resources
	log.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down HTTP server")
	}
	wg.Wait()

	// Let in-flight notifications and NATS forwards finish
	eventBus.Wait()
	if natsClient != nil {
		if err := natsClient.Close(); err != nil {
			log.WithError(err).Error("Error closing NATS connection")
		}
	}

	log.Info("Shutdown completed")

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func connectNATS(ctx context.Context, cfg *config.Config, eventBus *events.Bus, metrics *observability.Metrics) (*infrastructure.NATSClient, error) {
	log.Info("Connecting to NATS...")
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := infrastructure.NewNATSClient(cfg.NATSServers)
	if err := client.Connect(connectCtx); err != nil {
		return nil, err
	}

	mapper := infrastructure.NewEventSubjectMapper()
	if err := client.EnsureStream(infrastructure.DomainEventStream, mapper.GetAllSubjects()); err != nil {
		_ = client.Close()
		return nil, err
	}

	infrastructure.NewNATSEventPublisher(client, mapper, metrics).Attach(eventBus)
	log.Info("Domain events are forwarded to NATS")
	return client, nil
}
