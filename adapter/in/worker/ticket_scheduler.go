// Package worker hosts the background entry points of the pipeline.
package worker

import (
	"context"
	"errors"
	"time"

	"ticket_worker/core/domain"
	"ticket_worker/core/service/pipeline"
	"ticket_worker/pkg/logger"
)

// =============================================================================
// PipelineScheduler - periodic pipeline trigger
// =============================================================================

const (
	DefaultScheduleInterval = 2 * time.Minute
	DefaultWindowHours      = 24
	DefaultMaxPerRun        = 20
)

// PipelineScheduler triggers a pipeline run on a fixed interval. A tick
// that lands while a run is still in flight is dropped, not queued; the
// coordinator's try-lock makes that decision and the scheduler only
// logs it.
type PipelineScheduler struct {
	coordinator *pipeline.Coordinator
	interval    time.Duration
	windowHours int
	maxPerRun   int
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewPipelineScheduler creates a new pipeline scheduler. Zero values
// select the defaults.
func NewPipelineScheduler(coordinator *pipeline.Coordinator, interval time.Duration, windowHours, maxPerRun int) *PipelineScheduler {
	if interval <= 0 {
		interval = DefaultScheduleInterval
	}
	if windowHours <= 0 {
		windowHours = DefaultWindowHours
	}
	if maxPerRun <= 0 {
		maxPerRun = DefaultMaxPerRun
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &PipelineScheduler{
		coordinator: coordinator,
		interval:    interval,
		windowHours: windowHours,
		maxPerRun:   maxPerRun,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Start starts the scheduler loop.
func (s *PipelineScheduler) Start() {
	logger.Info("[PipelineScheduler] Starting with interval %s", s.interval)
	go s.run()
}

// Stop stops the scheduler and waits for the loop to exit.
func (s *PipelineScheduler) Stop() {
	logger.Info("[PipelineScheduler] Stopping...")
	s.cancel()
	<-s.done
}

func (s *PipelineScheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[PipelineScheduler] Stopped")
			return
		case <-ticker.C:
			s.triggerRun()
		}
	}
}

func (s *PipelineScheduler) triggerRun() {
	windowEnd := time.Now().UTC()
	windowStart := windowEnd.Add(-time.Duration(s.windowHours) * time.Hour)

	stats, err := s.coordinator.RunOnce(s.ctx, windowStart, windowEnd, s.maxPerRun)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyRunning):
			logger.Debug("[PipelineScheduler] Previous run still in progress, skipping tick")
		case errors.Is(err, domain.ErrSourceUnavailable):
			logger.Error("[PipelineScheduler] Run aborted, source unavailable: %v", err)
		default:
			logger.Error("[PipelineScheduler] Run failed: %v", err)
		}
		return
	}

	logger.WithRun(stats.RunID).Info(
		"[PipelineScheduler] Run finished: fetched=%d analyzed=%d created=%d skipped=%d errored=%d",
		stats.Fetched, stats.Analyzed, stats.Created, stats.Skipped, stats.Errored)
}
