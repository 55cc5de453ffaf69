package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ticket_worker/core/domain"
	"ticket_worker/core/port/out"

	"github.com/go-pkgz/pool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Coordinator drives one complete pipeline run: pull a bounded window
// from the source, push every message through the decision engine with
// bounded parallelism, and fold the decision records into run stats.
//
// A try-lock guards the coordinator: a second RunOnce while a run is in
// flight fails fast with domain.ErrAlreadyRunning instead of queuing.
// The lock is scoped to the instance, so independent coordinators (one
// per mailbox) can run concurrently while each serializes internally.
type Coordinator struct {
	source  out.MessageSource
	engine  *Engine
	workers int
	log     zerolog.Logger

	running atomic.Bool

	mu        sync.Mutex
	lastStats *domain.RunStats
	totals    domain.RunStats
}

// NewCoordinator creates a batch coordinator. workers <= 1 processes
// messages sequentially.
func NewCoordinator(source out.MessageSource, engine *Engine, workers int, log zerolog.Logger) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	return &Coordinator{
		source:  source,
		engine:  engine,
		workers: workers,
		log:     log.With().Str("component", "coordinator").Str("source", source.Name()).Logger(),
	}
}

// IsRunning reports whether a run is currently in flight.
func (c *Coordinator) IsRunning() bool {
	return c.running.Load()
}

// LastStats returns the stats of the most recently completed run, or nil.
func (c *Coordinator) LastStats() *domain.RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastStats == nil {
		return nil
	}
	s := *c.lastStats
	return &s
}

// Totals returns lifetime counters across all completed runs.
func (c *Coordinator) Totals() domain.RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals
}

// RunOnce executes one run over [windowStart, windowEnd) capped at
// maxCount messages. Only two errors propagate: ErrAlreadyRunning and
// ErrSourceUnavailable; everything else is absorbed into the stats.
func (c *Coordinator) RunOnce(ctx context.Context, windowStart, windowEnd time.Time, maxCount int) (*domain.RunStats, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, domain.ErrAlreadyRunning
	}
	defer c.running.Store(false)

	runID := uuid.NewString()
	log := c.log.With().Str("run_id", runID).Logger()

	stats := &domain.RunStats{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	}

	msgs, err := c.source.Pull(ctx, windowStart, windowEnd, maxCount)
	if err != nil {
		if !errors.Is(err, domain.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		log.Error().Err(err).Msg("source pull failed, aborting run")
		return nil, err
	}
	stats.Fetched = int64(len(msgs))

	log.Info().
		Int("fetched", len(msgs)).
		Time("window_start", windowStart).
		Time("window_end", windowEnd).
		Msg("run started")

	records := c.processBatch(ctx, runID, msgs)
	for _, rec := range records {
		foldRecord(stats, rec)
	}

	stats.FinishedAt = time.Now().UTC()

	c.mu.Lock()
	c.lastStats = stats
	c.totals.Fetched += stats.Fetched
	c.totals.Analyzed += stats.Analyzed
	c.totals.Actionable += stats.Actionable
	c.totals.Created += stats.Created
	c.totals.Skipped += stats.Skipped
	c.totals.Errored += stats.Errored
	c.mu.Unlock()

	log.Info().
		Int64("analyzed", stats.Analyzed).
		Int64("created", stats.Created).
		Int64("skipped", stats.Skipped).
		Int64("errored", stats.Errored).
		Dur("duration", stats.FinishedAt.Sub(stats.StartedAt)).
		Msg("run completed")

	return stats, nil
}

// engineWorker adapts the decision engine to the pool.Worker interface
// and collects records under a lock.
type engineWorker struct {
	engine *Engine
	runID  string

	mu      sync.Mutex
	records []*domain.DecisionRecord
}

// Do implements pool.Worker. The engine never returns an error; every
// failure is already folded into the record.
func (w *engineWorker) Do(ctx context.Context, msg *domain.Message) error {
	rec := w.engine.Process(ctx, w.runID, msg)
	w.mu.Lock()
	w.records = append(w.records, rec)
	w.mu.Unlock()
	return nil
}

// processBatch runs the engine over the batch, in parallel when more
// than one worker is configured. Message processing is self-contained;
// the fingerprint store is the only shared mutable resource and its
// atomic insert is safe under concurrent calls.
func (c *Coordinator) processBatch(ctx context.Context, runID string, msgs []*domain.Message) []*domain.DecisionRecord {
	w := &engineWorker{engine: c.engine, runID: runID}

	if c.workers <= 1 || len(msgs) <= 1 {
		for _, msg := range msgs {
			_ = w.Do(ctx, msg)
		}
		return w.records
	}

	p := pool.New[*domain.Message](c.workers, w).WithContinueOnError()
	if err := p.Go(ctx); err != nil {
		c.log.Warn().Err(err).Msg("worker pool failed to start, processing sequentially")
		for _, msg := range msgs {
			_ = w.Do(ctx, msg)
		}
		return w.records
	}

	for _, msg := range msgs {
		p.Submit(msg)
	}
	if err := p.Close(ctx); err != nil {
		c.log.Warn().Err(err).Msg("worker pool close returned error")
	}

	return w.records
}

// foldRecord merges one decision record into the run stats.
func foldRecord(stats *domain.RunStats, rec *domain.DecisionRecord) {
	if rec.Classification != nil {
		stats.Analyzed++
		if rec.Classification.IsActionable {
			stats.Actionable++
		}
	}

	switch rec.Decision {
	case domain.DecisionCreatedTicket:
		stats.Created++
	case domain.DecisionErrored:
		stats.Errored++
	default:
		stats.Skipped++
	}
}
