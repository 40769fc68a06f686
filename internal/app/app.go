// Package app builds the long-lived services of the plate checker and owns
// their shutdown order.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/alymdu/shortest-plates/internal/api"
	"github.com/alymdu/shortest-plates/internal/classifier"
	"github.com/alymdu/shortest-plates/internal/clock/system"
	"github.com/alymdu/shortest-plates/internal/config"
	collyfetcher "github.com/alymdu/shortest-plates/internal/fetcher/colly"
	"github.com/alymdu/shortest-plates/internal/id/uuid"
	"github.com/alymdu/shortest-plates/internal/plates"
	"github.com/alymdu/shortest-plates/internal/policy/ratelimit"
	"github.com/alymdu/shortest-plates/internal/progress"
	"github.com/alymdu/shortest-plates/internal/progress/sinks"
	pubsubpublisher "github.com/alymdu/shortest-plates/internal/publisher/pubsub"
	"github.com/alymdu/shortest-plates/internal/storage/jsonl"
	"github.com/alymdu/shortest-plates/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// Options overrides collaborators, mainly for tests. Zero values select the
// production implementations.
type Options struct {
	Fetcher    plates.Fetcher
	Publisher  plates.Publisher
	Registerer prometheus.Registerer
}

// App holds the shared services: result store, worker, progress hub and HTTP server.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *jsonl.Store
	hub     *progress.Hub
	worker  *worker.Worker
	server  *api.Server
	closers []io.Closer

	cancelBase context.CancelFunc
}

// New wires every component from cfg. It fails fast if a service cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	store, err := jsonl.New(jsonl.Config{Path: cfg.Storage.DataFile}, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("init result store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store)

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcherCfg := collyfetcher.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   cfg.FetchTimeout(),
		}
		if cfg.HTTP.MaxRPS > 0 {
			fetcherCfg.Limiter = ratelimit.New(ratelimit.Config{MaxRPS: cfg.HTTP.MaxRPS, Burst: 1})
		}
		fetcher = collyfetcher.New(fetcherCfg)
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	progressSinks := []progress.Sink{sinks.NewLogSink(logger.Named("progress")), promSink}

	publisher := opts.Publisher
	if publisher == nil && cfg.PubSub.TopicName != "" {
		p, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, p)
		publisher = p
	}
	if publisher != nil {
		logger.Info("publishing observations", zap.String("topic", cfg.PubSub.TopicName))
		progressSinks = append(progressSinks,
			sinks.NewPublishSink(publisher, cfg.PubSub.TopicName, logger.Named("publish")))
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger.Named("hub")}, progressSinks...)

	baseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancelBase = cancel
	w, err := worker.New(worker.Config{
		URLPrefix:     cfg.Probe.URLPrefix,
		URLSuffix:     cfg.Probe.URLSuffix,
		Interval:      cfg.Interval(),
		BlockInterval: cfg.BlockInterval(),
		FetchTimeout:  cfg.FetchTimeout(),
		BaseContext:   baseCtx,
	}, worker.Deps{
		Fetcher:    fetcher,
		Store:      store,
		Classifier: classifier.New(cfg.Classifier),
		State:      progress.NewState(),
		Emitter:    a.hub,
		Clock:      system.New(),
		IDs:        uuid.New(),
	}, logger.Named("worker"))
	if err != nil {
		cancel()
		a.closeAll()
		return nil, fmt.Errorf("init worker: %w", err)
	}
	a.worker = w

	a.server = api.NewServer(w, store, api.Config{ControlToken: cfg.Auth.ControlToken}, logger.Named("api"))
	logger.Info("application services initialized",
		zap.String("data_file", store.Path()),
		zap.Duration("interval", cfg.Interval()),
		zap.Duration("block_interval", cfg.BlockInterval()),
	)
	return a, nil
}

// Worker returns the enumeration controller.
func (a *App) Worker() *worker.Worker {
	return a.worker
}

// Store returns the result store.
func (a *App) Store() plates.ResultStore {
	return a.store
}

// Handler returns the HTTP handler for the control surface.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Serve runs the HTTP server until ctx ends, then shuts it down gracefully.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close stops any active run, waits for it, then flushes events and releases resources.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.worker != nil {
		a.worker.Stop()
		if err := a.worker.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.cancelBase != nil {
		a.cancelBase()
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
