package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/RusaUB/finorax/internal/service/pricefeed"
	"github.com/RusaUB/finorax/internal/usecase"
	"github.com/RusaUB/finorax/pkg/config"
	xhttp "github.com/RusaUB/finorax/pkg/http"
	pkgkafka "github.com/RusaUB/finorax/pkg/kafka"
	"github.com/RusaUB/finorax/pkg/logger"
)

// App encapsulates the application lifecycle: the round scheduler, the Kafka
// intake, the price feed and the HTTP API, with graceful shutdown.
type App struct {
	cfg        *config.Config
	log        *logger.Logger
	scheduler  *usecase.RoundScheduler
	consumer   *pkgkafka.Consumer       // nil when Kafka is disabled
	obsHandler pkgkafka.MessageHandler  // nil when Kafka is disabled
	feed       *pricefeed.Client        // nil when the feed is disabled
	handler    xhttp.Handler
	httpServer *xhttp.Server

	closers []io.Closer
}

func New(
	cfg *config.Config,
	log *logger.Logger,
	scheduler *usecase.RoundScheduler,
	consumer *pkgkafka.Consumer,
	obsHandler pkgkafka.MessageHandler,
	feed *pricefeed.Client,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		scheduler:  scheduler,
		consumer:   consumer,
		obsHandler: obsHandler,
		feed:       feed,
		handler:    handler,
	}
}

// AddCloser registers a resource closed during shutdown, in reverse order of
// registration.
func (a *App) AddCloser(c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, c)
	}
}

// Run starts everything and blocks until an interrupt arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(a.cfg.Metrics.Path),
	)

	a.scheduler.Start(ctx)
	a.log.Info("round scheduler started",
		logger.Duration("interval_ms", a.cfg.Schedule.CloseInterval),
	)

	if a.consumer != nil && a.obsHandler != nil {
		a.consumer.RegisterHandler(a.obsHandler)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", logger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", logger.String("topic", a.obsHandler.Topic()))
	}

	if a.feed != nil {
		go a.feed.Run(ctx)
		a.log.Info("price feed started", logger.Strings("assets", a.cfg.PriceFeed.Assets))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", logger.Error(err))
		return err
	}
	a.log.Info("http server started", logger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

func (a *App) shutdown() error {
	// Stop intake first so the final scheduler pass sees a quiet store.
	if a.consumer != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		if err := a.consumer.Stop(stopCtx); err != nil {
			a.log.Warn("kafka consumer stop error", logger.Error(err))
		}
		cancel()
	}

	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			a.log.Warn("price feed close error", logger.Error(err))
		}
	}

	a.scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", logger.Error(err))
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("resource close error", logger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
