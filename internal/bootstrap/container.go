package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"tabkeeper-be/internal/config"
	"tabkeeper-be/internal/pkg/logger"
	"tabkeeper-be/internal/pkg/mailer"
	"tabkeeper-be/internal/repository/memory"
	"tabkeeper-be/internal/repository/unitofwork"
	"tabkeeper-be/internal/scheduler"
	"tabkeeper-be/internal/service"
	"tabkeeper-be/pkg/archiver"
	"tabkeeper-be/pkg/ml"
	pktNats "tabkeeper-be/pkg/nats"
	"tabkeeper-be/pkg/queue"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Config     *config.Config
	Logger     logger.ILogger
	UowFactory unitofwork.RepositoryFactory

	Dispatcher *queue.Dispatcher
	Scheduler  *scheduler.Scheduler

	SuggestionService service.ISuggestionService
	PublisherService  service.IPublisherService
	ConsumerService   service.IConsumerService
	AutomationService service.IAutomationService

	MLClient       *ml.Client
	ArchiverClient *archiver.Client

	closers []func() error
}

// NewContainer wires the worker. A nil db selects the in-memory store,
// which is only meant for local runs.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())

	var uowFactory unitofwork.RepositoryFactory
	if db != nil {
		uowFactory = unitofwork.NewRepositoryFactory(db)
	} else {
		log.Printf("[WARN] No database configured, using the in-memory store")
		uowFactory = memory.NewRepositoryFactory(memory.NewStore())
	}

	c := &Container{
		Config:     cfg,
		Logger:     sysLogger,
		UowFactory: uowFactory,
	}

	// 2. Job Transport
	pub, sub, err := c.newTransport(ctx)
	if err != nil {
		return nil, err
	}

	// 3. Dedupe Ledger
	deduper := c.newDeduper(ctx)

	// 4. Dead Letters
	var alerts mailer.IAlertMailer
	if cfg.Alerts.Enabled() {
		alerts = mailer.NewAlertMailer(
			cfg.Alerts.SMTPHost,
			cfg.Alerts.SMTPPort,
			cfg.Alerts.SMTPUsername,
			cfg.Alerts.SMTPPassword,
			cfg.Alerts.Sender,
			cfg.Alerts.Recipients,
		)
		log.Printf("[INFO] Dead-letter alerts go to %d recipient(s)", len(cfg.Alerts.Recipients))
	}
	sink := service.NewDeadLetterSink(uowFactory, alerts, sysLogger)

	c.Dispatcher = queue.NewDispatcher(pub, sub, sink, deduper, sysLogger, queue.Config{
		MaxAttempts:    cfg.Queue.MaxAttempts,
		InitialBackoff: cfg.Queue.InitialBackoff,
		MaxBackoff:     cfg.Queue.MaxBackoff,
		HandlerTimeout: cfg.Queue.HandlerTimeout,
	})

	// 5. External Services
	c.MLClient = ml.NewClient(cfg.Services.MLServiceURL, cfg.Services.MLTimeout, sysLogger)
	c.ArchiverClient = archiver.NewClient(cfg.Services.ArchiverURL, cfg.Services.ArchiverTimeout, sysLogger)

	// 6. Services
	c.SuggestionService = service.NewSuggestionService(uowFactory, sysLogger, service.SuggestionConfig{
		StaleAfter:       cfg.Suggestions.StaleAfter,
		RelatedThreshold: cfg.Suggestions.RelatedThreshold,
		RelatedNeighbors: cfg.Suggestions.RelatedNeighbors,
	})
	c.PublisherService = service.NewPublisherService(c.Dispatcher)
	c.ConsumerService = service.NewConsumerService(
		uowFactory,
		c.MLClient,
		c.ArchiverClient,
		c.SuggestionService,
		c.PublisherService,
		sysLogger,
	)
	c.AutomationService = service.NewAutomationService(
		uowFactory,
		c.SuggestionService,
		c.PublisherService,
		sysLogger,
		service.AutomationConfigFrom(cfg.Suggestions),
	)

	err = c.ConsumerService.Register(c.Dispatcher, map[queue.Lane]int{
		queue.LaneContentAnalysis:      cfg.Queue.ContentAnalysisWorkers,
		queue.LaneArchival:             cfg.Queue.ArchivalWorkers,
		queue.LaneSuggestionGeneration: cfg.Queue.SuggestionWorkers,
		queue.LaneBulkImport:           cfg.Queue.BulkImportWorkers,
	})
	if err != nil {
		return nil, err
	}

	// 7. Scheduler
	location, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		log.Printf("[WARN] Unknown scheduler timezone %q, using UTC: %v", cfg.Scheduler.Timezone, err)
		location = time.UTC
	}
	c.Scheduler = scheduler.New(sysLogger, location)
	if err := c.Scheduler.RegisterAll(scheduler.AutomationTasks(c.AutomationService, cfg.Scheduler)); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Container) newTransport(ctx context.Context) (message.Publisher, message.Subscriber, error) {
	switch c.Config.Queue.Backend {
	case "nats":
		nc, js, err := pktNats.Connect(ctx, c.Config.App.NatsURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to NATS: %w", err)
		}
		c.closers = append(c.closers, func() error {
			return nc.Drain()
		})
		log.Printf("[INFO] Job broker: NATS JetStream (%s)", c.Config.App.NatsURL)

		q := c.Config.Queue
		sub := pktNats.NewJobSubscriber(js, pktNats.SubscriberConfig{
			MaxInFlight: map[string]int{
				queue.LaneContentAnalysis.Topic():      q.ContentAnalysisWorkers,
				queue.LaneArchival.Topic():             q.ArchivalWorkers,
				queue.LaneSuggestionGeneration.Topic(): q.SuggestionWorkers,
				queue.LaneBulkImport.Topic():           q.BulkImportWorkers,
			},
			AckWait: q.AckWait,
		})
		c.closers = append(c.closers, sub.Close)
		return pktNats.NewJobPublisher(js), sub, nil

	case "memory":
		pubSub := gochannel.NewGoChannel(
			gochannel.Config{Persistent: true},
			watermill.NewStdLogger(false, false),
		)
		c.closers = append(c.closers, pubSub.Close)
		log.Printf("[WARN] Job broker: in-process channel, jobs are lost on restart")
		return pubSub, pubSub, nil

	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", c.Config.Queue.Backend)
	}
}

func (c *Container) newDeduper(ctx context.Context) queue.Deduper {
	ttl := c.Config.Queue.DedupeTTL
	if c.Config.App.RedisURL == "" {
		return queue.NewMemoryDeduper(ttl)
	}

	opt, err := redis.ParseURL(c.Config.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: c.Config.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v. Falling back to in-memory job dedupe", err)
		_ = rdb.Close()
		return queue.NewMemoryDeduper(ttl)
	}

	c.closers = append(c.closers, rdb.Close)
	return queue.NewRedisDeduper(rdb, ttl)
}

// Close releases broker and cache connections in reverse order of creation.
func (c *Container) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	_ = c.Logger.Sync()
	return firstErr
}
