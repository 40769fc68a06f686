// Package worker runs the single-flight plate enumeration loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	googleuuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alymdu/shortest-plates/internal/classifier"
	"github.com/alymdu/shortest-plates/internal/clock/system"
	"github.com/alymdu/shortest-plates/internal/id/uuid"
	"github.com/alymdu/shortest-plates/internal/plates"
	"github.com/alymdu/shortest-plates/internal/progress"
)

var (
	// ErrNoFetcher is returned by New when no fetch capability is supplied.
	ErrNoFetcher = errors.New("worker: fetcher is required")
	// ErrNoStore is returned by New when no result store is supplied.
	ErrNoStore = errors.New("worker: result store is required")
)

// Config controls URL construction and pacing.
type Config struct {
	URLPrefix     string
	URLSuffix     string
	Interval      time.Duration
	BlockInterval time.Duration
	// FetchTimeout bounds each fetch; zero leaves it to the fetcher.
	FetchTimeout time.Duration
	// BaseContext is the parent of every run context. Defaults to context.Background.
	BaseContext context.Context
}

// Deps are the collaborators the loop drives. Fetcher and Store are required.
type Deps struct {
	Fetcher    plates.Fetcher
	Store      plates.ResultStore
	Classifier *classifier.Classifier
	State      *progress.State
	Emitter    progress.Emitter
	Clock      plates.Clock
	IDs        plates.IDGenerator
}

// StartOutcome distinguishes a fresh run from a no-op start.
type StartOutcome int

const (
	Started StartOutcome = iota
	AlreadyRunning
)

func (o StartOutcome) String() string {
	if o == AlreadyRunning {
		return "Already running"
	}
	return "Started"
}

// StartResult reports what Start did and which run is active.
type StartResult struct {
	Outcome StartOutcome
	RunID   string
}

// StopResult reports what Stop did.
type StopResult int

const (
	NotRunning StopResult = iota
	Stopping
)

func (r StopResult) String() string {
	if r == Stopping {
		return "Stopping"
	}
	return "Not running"
}

// pauser sleeps between probes and returns early when ctx ends.
type pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauser struct{}

func (timerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

type nopEmitter struct{}

func (nopEmitter) Emit(progress.Event) {}

// Worker owns the enumeration loop. At most one run is active at a time.
type Worker struct {
	cfg        Config
	fetcher    plates.Fetcher
	store      plates.ResultStore
	classifier *classifier.Classifier
	state      *progress.State
	emitter    progress.Emitter
	clock      plates.Clock
	ids        plates.IDGenerator
	pauser     pauser
	logger     *zap.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopping bool
	runID    string
	done     chan struct{}
}

// New constructs an idle Worker.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Worker, error) {
	if deps.Fetcher == nil {
		return nil, ErrNoFetcher
	}
	if deps.Store == nil {
		return nil, ErrNoStore
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Interval < 0 || cfg.BlockInterval < 0 {
		return nil, fmt.Errorf("worker: intervals must be >= 0 (interval=%s block=%s)", cfg.Interval, cfg.BlockInterval)
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.Default()
	}
	if deps.State == nil {
		deps.State = progress.NewState()
	}
	if deps.Emitter == nil {
		deps.Emitter = nopEmitter{}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		cfg:        cfg,
		fetcher:    deps.Fetcher,
		store:      deps.Store,
		classifier: deps.Classifier,
		state:      deps.State,
		emitter:    deps.Emitter,
		clock:      deps.Clock,
		ids:        deps.IDs,
		pauser:     timerPauser{},
		logger:     logger,
	}, nil
}

// Start launches a run unless one is already active, in which case it reports
// the active run without side effects. It never blocks on the loop.
func (w *Worker) Start() (StartResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return StartResult{Outcome: AlreadyRunning, RunID: w.runID}, nil
	}

	runID, err := w.ids.NewID()
	if err != nil {
		return StartResult{}, fmt.Errorf("worker: new run id: %w", err)
	}
	ctx, cancel := context.WithCancel(w.cfg.BaseContext)
	r := run{id: runID, eventID: eventRunID(runID), startedAt: w.clock.Now()}

	w.cancel = cancel
	w.stopping = false
	w.runID = runID
	w.done = make(chan struct{})

	w.state.Update(func(s *progress.Snapshot) {
		s.State = progress.RunStateRunning
		s.Running = true
		s.RunID = runID
		s.Total = plates.Total
		s.Processed = 0
		s.QueueRemaining = progress.Ptr(plates.Total)
		s.StartedAt = progress.Ptr(r.startedAt)
		s.FinishedAt = nil
		s.LastError = ""
	})
	w.emitter.Emit(progress.Event{
		RunID:     r.eventID,
		TS:        r.startedAt,
		Stage:     progress.StageRunStart,
		Remaining: plates.Total,
	})
	w.logger.Info("run started", zap.String("run_id", runID), zap.Int("total", plates.Total))

	go w.loop(ctx, r, w.done)
	return StartResult{Outcome: Started, RunID: runID}, nil
}

// Stop requests cancellation of the active run and returns immediately.
func (w *Worker) Stop() StopResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel == nil {
		return NotRunning
	}
	if w.stopping {
		return Stopping
	}
	w.stopping = true
	w.cancel()
	w.state.Update(func(s *progress.Snapshot) {
		s.State = progress.RunStateStopping
	})
	w.logger.Info("stop requested", zap.String("run_id", w.runID))
	return Stopping
}

// Wait blocks until the active run, if any, has exited or ctx ends.
func (w *Worker) Wait(ctx context.Context) error {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker: wait: %w", ctx.Err())
	}
}

// Snapshot returns a copy of the latest progress.
func (w *Worker) Snapshot() progress.Snapshot {
	return w.state.Get()
}

// State reports the controller's lifecycle state.
func (w *Worker) State() progress.RunState {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.cancel == nil:
		return progress.RunStateIdle
	case w.stopping:
		return progress.RunStateStopping
	default:
		return progress.RunStateRunning
	}
}

type run struct {
	id        string
	eventID   [16]byte
	startedAt time.Time
}

func (w *Worker) loop(ctx context.Context, r run, done chan struct{}) {
	stage := progress.StageRunDone
	var runErr error
	processed := 0

	for code := range plates.Codes() {
		if ctx.Err() != nil {
			stage = progress.StageRunStopped
			break
		}

		start := time.Now()
		// A stop during the fetch still lets this probe be classified and
		// persisted; a fetch cut off by it is recorded as an error.
		body, fetchErr := w.fetch(ctx, w.cfg.URLPrefix+string(code)+w.cfg.URLSuffix)
		took := time.Since(start)

		res := w.classifier.Classify(body, fetchErr)
		obs := plates.Observation{
			Code:      code,
			Status:    res.Status,
			Note:      res.Note,
			CheckedAt: w.clock.Now(),
		}
		if err := w.store.Append(context.WithoutCancel(ctx), obs); err != nil {
			runErr = fmt.Errorf("append %s: %w", code, err)
			stage = progress.StageRunError
			w.logger.Error("persist observation failed",
				zap.String("run_id", r.id),
				zap.String("plate", string(code)),
				zap.Error(err),
			)
			break
		}

		processed++
		remaining := plates.Total - processed
		w.state.Update(func(s *progress.Snapshot) {
			s.LastCode = progress.Ptr(obs.Code)
			s.LastStatus = progress.Ptr(obs.Status)
			s.LastCheckedAt = progress.Ptr(obs.CheckedAt)
			s.Processed = processed
			s.QueueRemaining = progress.Ptr(remaining)
		})

		pause := w.pauseFor(obs.Status, remaining)
		if ctx.Err() != nil {
			pause = 0
		}
		w.emitter.Emit(progress.Event{
			RunID:     r.eventID,
			TS:        obs.CheckedAt,
			Stage:     progress.StageProbeDone,
			Code:      obs.Code,
			Status:    obs.Status,
			Note:      obs.Note,
			Remaining: remaining,
			Dur:       took,
			Pause:     pause,
		})
		w.pauser.Pause(ctx, pause)
	}

	w.finish(r, stage, processed, runErr, done)
}

func (w *Worker) fetch(ctx context.Context, url string) (string, error) {
	if w.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.FetchTimeout)
		defer cancel()
	}
	body, err := w.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	return body, nil
}

// pauseFor picks the delay after a probe. The last code gets none.
func (w *Worker) pauseFor(status plates.Status, remaining int) time.Duration {
	switch {
	case remaining == 0:
		return 0
	case status == plates.StatusBlocked:
		return w.cfg.BlockInterval
	default:
		return w.cfg.Interval
	}
}

func (w *Worker) finish(r run, stage progress.Stage, processed int, runErr error, done chan struct{}) {
	now := w.clock.Now()

	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.cancel = nil
	w.stopping = false
	w.state.Update(func(s *progress.Snapshot) {
		s.State = progress.RunStateIdle
		s.Running = false
		s.FinishedAt = progress.Ptr(now)
		if runErr != nil {
			s.LastError = runErr.Error()
		}
	})
	w.mu.Unlock()

	note := ""
	if runErr != nil {
		note = runErr.Error()
	}
	w.emitter.Emit(progress.Event{
		RunID:     r.eventID,
		TS:        now,
		Stage:     stage,
		Note:      note,
		Remaining: plates.Total - processed,
		Dur:       max(now.Sub(r.startedAt), 0),
	})
	w.logger.Info("run finished",
		zap.String("run_id", r.id),
		zap.String("stage", string(stage)),
		zap.Int("processed", processed),
	)
	close(done)
}

// eventRunID maps a run ID onto the fixed-width form events carry. Non-UUID
// IDs are hashed into a name-based UUID.
func eventRunID(runID string) [16]byte {
	id, err := googleuuid.Parse(runID)
	if err != nil {
		id = googleuuid.NewSHA1(googleuuid.NameSpaceOID, []byte(runID))
	}
	return progress.UUIDToBytes(id)
}
