// Package app wires configuration, stores, transports and the domain
// loops into runnable producer and ingestor processes.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mselser95/polymarket-conviction/internal/datasource"
	"github.com/mselser95/polymarket-conviction/internal/orchestrator"
	"github.com/mselser95/polymarket-conviction/internal/publisher"
	"github.com/mselser95/polymarket-conviction/internal/subscriptions"
	"github.com/mselser95/polymarket-conviction/pkg/cache"
	"github.com/mselser95/polymarket-conviction/pkg/config"
	"github.com/mselser95/polymarket-conviction/pkg/healthprobe"
	"github.com/mselser95/polymarket-conviction/pkg/httpserver"
	"go.uber.org/zap"
)

const (
	setupTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Producer is the conviction-event producer process.
type Producer struct {
	cfg           *config.ProducerConfig
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	store         *subscriptions.Store
	source        *datasource.Client
	pub           *publisher.Publisher
	orch          *orchestrator.Orchestrator
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewProducer creates the producer application instance.
func NewProducer(cfg *config.ProducerConfig, logger *zap.Logger) (*Producer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := healthprobe.New()
	httpServer := setupHTTPServer(cfg.HTTPPort, logger, healthChecker)

	slugCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	source := datasource.NewClient(&datasource.Config{
		BaseURL:        cfg.Polymarket.BaseURL,
		RequestTimeout: cfg.Polymarket.RequestTimeout,
		RateLimitDelay: cfg.Polymarket.RateLimitDelay,
		MaxMarkets:     cfg.Polymarket.MaxMarkets,
		Cache:          slugCache,
		CacheTTL:       cfg.PollInterval,
		Logger:         logger,
	})

	setupCtx, setupCancel := context.WithTimeout(ctx, setupTimeout)
	defer setupCancel()

	store, err := subscriptions.NewStore(setupCtx, &cfg.Mongo, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup subscription store: %w", err)
	}

	pub, err := publisher.New(&cfg.Kafka, logger)
	if err != nil {
		_ = store.Close(setupCtx)
		cancel()
		return nil, fmt.Errorf("setup publisher: %w", err)
	}

	orch := orchestrator.New(&orchestrator.Config{
		Subscriptions: store,
		Snapshots:     source,
		Publisher:     pub,
		PollInterval:  cfg.PollInterval,
		Logger:        logger,
	})

	return &Producer{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		store:         store,
		source:        source,
		pub:           pub,
		orch:          orch,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Run starts the producer and blocks until shutdown.
func (p *Producer) Run() error {
	p.logger.Info("producer-starting",
		zap.Duration("poll-interval", p.cfg.PollInterval),
		zap.String("topic", p.cfg.Kafka.FullTopic()),
		zap.String("log-level", p.cfg.LogLevel))

	p.wg.Add(1)
	go p.runHTTPServer()

	provisionCtx, provisionCancel := context.WithTimeout(p.ctx, setupTimeout)
	p.pub.ProvisionTopic(provisionCtx)
	provisionCancel()

	p.wg.Add(1)
	go p.runOrchestrator()

	p.healthChecker.SetReady(true)

	p.logger.Info("producer-ready",
		zap.String("http-addr", ":"+p.cfg.HTTPPort))

	return p.waitForShutdown()
}

func (p *Producer) runHTTPServer() {
	defer p.wg.Done()
	err := p.httpServer.Start()
	if err != nil {
		p.logger.Error("http-server-error", zap.Error(err))
	}
}

func (p *Producer) runOrchestrator() {
	defer p.wg.Done()
	p.orch.Run(p.ctx)
}

func (p *Producer) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		p.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-p.ctx.Done():
		p.logger.Info("context-cancelled")
	}

	return p.Shutdown()
}

// Shutdown stops the poll loop, flushes the publisher with a bounded
// timeout and releases store and transport resources.
func (p *Producer) Shutdown() error {
	p.logger.Info("producer-shutting-down")

	p.healthChecker.SetReady(false)
	p.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	err := p.pub.Flush(shutdownCtx)
	if err != nil {
		p.logger.Error("publisher-flush-error", zap.Error(err))
	}
	p.pub.Close()

	err = p.store.Close(shutdownCtx)
	if err != nil {
		p.logger.Error("subscription-store-close-error", zap.Error(err))
	}

	p.source.Close()

	err = p.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		p.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	p.wg.Wait()

	p.logger.Info("producer-shutdown-complete")

	return nil
}

func setupHTTPServer(port string, logger *zap.Logger, healthChecker *healthprobe.HealthChecker) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:          port,
		Logger:        logger,
		HealthChecker: healthChecker,
	})
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}
