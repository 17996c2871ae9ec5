package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"ConfluenceCal/internal/usecase"
	"ConfluenceCal/pkg/config"
	xhttp "ConfluenceCal/pkg/http"
	pkgkafka "ConfluenceCal/pkg/kafka"
	applogger "ConfluenceCal/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	scheduler  *usecase.RecalibrationScheduler
	closers    []io.Closer
}

// New creates a new App. Consumer, handler and scheduler are optional.
// Closers are closed in reverse order on shutdown.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	scheduler *usecase.RecalibrationScheduler,
	closers ...io.Closer,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		httpServer: httpServer,
		consumer:   consumer,
		kh:         kh,
		scheduler:  scheduler,
		closers:    closers,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.scheduler != nil {
		a.scheduler.Start(ctx)
		if a.cfg.Calibration.Schedule > 0 {
			a.l.Info("recalibration scheduled",
				applogger.Strings("symbols", a.cfg.Calibration.Symbols),
				applogger.Duration("every", a.cfg.Calibration.Schedule))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first, then in-flight work, then closes clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.scheduler != nil {
		if err := a.scheduler.Shutdown(ctx); err != nil {
			a.l.Warn("scheduler stop error", applogger.Error(err))
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.l.Warn("close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	a.l.RemoveCollector()
	return nil
}
