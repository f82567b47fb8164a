package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger         *zap.Logger
	config         *Config
	server         *http.Server
	cleanups       []func() error
	queueConsumers []func(context.Context) error
}

// NewApp loads the configuration then wires the logging, the storage,
// the services and the http server.
func NewApp() (AppProvider, error) {
	config, err := LoadAndInitConfigs(GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %w", err)
	}

	clock := NewClock(config.IsProduction)
	logWriter := NewRSyncWriter(config, clock)
	logger, flusher := SetupLogging(config, logWriter, NewTickClock(clock))

	storage, err := NewStorageSet(logger, config, clock)
	if err != nil {
		_ = flusher()
		_ = logWriter.Close()
		return nil, fmt.Errorf("failed to setup %s storage: %w", config.Storage.Driver, err)
	}

	ids := NewIDsHandler()
	bookService := NewBookService(logger, config, clock, ids, storage.Books, storage.Queue)
	stats := &Statistics{
		version:   config.GitTag,
		container: IsAppRunningInDocker(),
		started:   clock.Now(),
		runtime:   runtime.Version(),
		platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	// Use git commit in case the tag is not set.
	if stats.version == "" {
		stats.version = config.GitCommit
	}
	apiHandler := NewAPIHandler(logger, config, stats, clock, ids, bookService)

	middlewaresPublic, middlewaresOps := apiHandler.MiddlewaresStacks()
	router := apiHandler.SetupRoutes(httprouter.New(),
		&MiddlewareMap{
			public: middlewaresPublic.Chain,
			ops:    middlewaresOps.Chain,
		},
	)

	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler: http.TimeoutHandler(
			router,
			config.Server.RequestTimeout,
			"Timeout. Processing taking too long. Please try again later.",
		),
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
		ConnContext:    SaveConnInContext,
		ErrorLog:       zap.NewStdLog(logger),
	}

	app := &App{
		logger: logger,
		config: config,
		server: srv,
		cleanups: []func() error{
			storage.Close,
			flusher,
			logWriter.Close,
		},
	}
	if storage.consumer != nil {
		app.queueConsumers = append(app.queueConsumers, func(ctx context.Context) error {
			return storage.consumer.Consume(ctx, MirrorQueues...)
		})
	}
	return app, nil
}

// Run starts the web server with the queue consumers and waits for
// a termination signal or a failure to stop everything.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)
	for _, consume := range app.queueConsumers {
		consume := consume
		g.Go(func() error { return consume(gCtx) })
	}
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("app server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.String("app.storage", app.config.Storage.Driver),
		zap.Error(err),
	)
	return err
}

// Clean runs all registered cleanups in order. Their failures are only printed
// since the logger itself may be gone.
func (app *App) Clean() {
	for _, f := range app.cleanups {
		if err := f(); err != nil {
			fmt.Println("app cleanup:", err)
		}
	}
}

// Serve starts the web server. Its error is caught by the errgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("app server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
			zap.String("app.storage", app.config.Storage.Driver),
			zap.Bool("app.mirror", app.config.Mirror.Enable),
		)
		err := app.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Stop waits for the group context then shuts the server down gracefully,
// or brutally when the graceful shutdown does not complete in time. It always
// returns nil so the errgroup only reports the Serve result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("app server stopping. reason: requested to stop")
		} else {
			app.logger.Info("app server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch {
		case err == nil, errors.Is(err, http.ErrServerClosed):
			app.logger.Info("app server graceful shutdown succeeded")
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			app.logger.Info("app server graceful shutdown timed out")
		default:
			app.logger.Info("app server graceful shutdown failed", zap.Error(err))
		}
		app.logger.Info("app server going to force shutdown", zap.Error(app.server.Close()))
		return nil
	}
}
