package bootstrap

import (
	"context"

	"ticket_worker/adapter/in/worker"
	"ticket_worker/config"
	"ticket_worker/pkg/logger"
)

// Worker hosts the scheduled pipeline.
type Worker struct {
	scheduler *worker.PipelineScheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewWorker builds the background worker around shared dependencies.
func NewWorker(cfg *config.Config, deps *Dependencies) (*Worker, error) {
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.SchedulerEnabled {
		w.scheduler = worker.NewPipelineScheduler(
			deps.Coordinator,
			cfg.SchedulerInterval,
			cfg.FetchWindowHours,
			cfg.FetchMaxCount,
		)
	} else {
		logger.Info("Scheduler disabled, pipeline runs only on manual trigger")
	}

	return w, nil
}

// Start runs the worker until Stop is called.
func (w *Worker) Start() {
	if w.scheduler != nil {
		w.scheduler.Start()
	}
	<-w.ctx.Done()
}

// Stop shuts the worker down.
func (w *Worker) Stop() {
	w.cancel()
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
