package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mselser95/polymarket-conviction/internal/consumer"
	"github.com/mselser95/polymarket-conviction/internal/projector"
	"github.com/mselser95/polymarket-conviction/pkg/config"
	"github.com/mselser95/polymarket-conviction/pkg/healthprobe"
	"github.com/mselser95/polymarket-conviction/pkg/httpserver"
	"go.uber.org/zap"
)

// Ingestor is the conviction-event consumer process: it drains the
// topic and projects each event into the archive.
type Ingestor struct {
	cfg           *config.IngestorConfig
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	cons          *consumer.Consumer
	archive       projector.Archive
	proj          *projector.Projector
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewIngestor creates the ingestor application instance.
func NewIngestor(cfg *config.IngestorConfig, logger *zap.Logger) (*Ingestor, error) {
	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := healthprobe.New()
	httpServer := setupHTTPServer(cfg.HTTPPort, logger, healthChecker)

	archive, err := projector.NewCouchbaseArchive(&cfg.Couchbase, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup archive: %w", err)
	}

	cons, err := consumer.New(&cfg.Kafka, logger)
	if err != nil {
		_ = archive.Close()
		cancel()
		return nil, fmt.Errorf("setup consumer: %w", err)
	}

	return &Ingestor{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		cons:          cons,
		archive:       archive,
		proj:          projector.New(archive, logger),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Run starts the ingestor and blocks until shutdown.
func (i *Ingestor) Run() error {
	i.logger.Info("ingestor-starting",
		zap.String("topic", i.cfg.Kafka.FullTopic()),
		zap.String("group-id", i.cfg.Kafka.GroupID),
		zap.String("log-level", i.cfg.LogLevel))

	i.wg.Add(1)
	go i.runHTTPServer()

	i.wg.Add(1)
	go i.runConsumeLoop()

	i.healthChecker.SetReady(true)

	i.logger.Info("ingestor-ready",
		zap.String("http-addr", ":"+i.cfg.HTTPPort))

	return i.waitForShutdown()
}

func (i *Ingestor) runHTTPServer() {
	defer i.wg.Done()
	err := i.httpServer.Start()
	if err != nil {
		i.logger.Error("http-server-error", zap.Error(err))
	}
}

// runConsumeLoop polls for one event at a time and projects it. The
// in-flight event is always fully processed before shutdown proceeds.
func (i *Ingestor) runConsumeLoop() {
	defer i.wg.Done()

	for {
		select {
		case <-i.ctx.Done():
			i.logger.Info("consume-loop-stopped")
			return
		default:
		}

		pollCtx, pollCancel := context.WithTimeout(i.ctx, i.cfg.PollTimeout)
		event, err := i.cons.Poll(pollCtx)
		pollCancel()

		if err != nil {
			i.logger.Error("consumer-poll-error", zap.Error(err))
			return
		}
		if event == nil {
			continue
		}

		// Archive writes use a fresh context so cancellation does not
		// abandon an event that was already consumed and committed.
		projectCtx, projectCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		i.proj.Project(projectCtx, event)
		projectCancel()
	}
}

func (i *Ingestor) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		i.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-i.ctx.Done():
		i.logger.Info("context-cancelled")
	}

	return i.Shutdown()
}

// Shutdown stops the consume loop, leaves the group and closes the
// archive.
func (i *Ingestor) Shutdown() error {
	i.logger.Info("ingestor-shutting-down")

	i.healthChecker.SetReady(false)
	i.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	err := i.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		i.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	i.wg.Wait()

	i.cons.Close()

	err = i.archive.Close()
	if err != nil {
		i.logger.Error("archive-close-error", zap.Error(err))
	}

	i.logger.Info("ingestor-shutdown-complete")

	return nil
}
