package coordinator

import (
	"context"

	"github.com/google/uuid"

	"github.com/iqap-dev/iqap-runner/logger"
	"github.com/iqap-dev/iqap-runner/queue"
)

// WorkerPool executes dispatched runs with bounded concurrency. Each
// dispatched run occupies one slot for its whole browser session, so the
// pool size caps the number of simultaneously open browsers.
type WorkerPool struct {
	slots       chan struct{}
	maxWorkers  int
	coordinator *Coordinator
	queue       queue.Queue
	logger      logger.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(maxWorkers int, coord *Coordinator, q queue.Queue, log logger.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &WorkerPool{
		slots:       make(chan struct{}, maxWorkers),
		maxWorkers:  maxWorkers,
		coordinator: coord,
		queue:       q,
		logger:      log,
	}
}

// Start subscribes to the dispatch queue and serves runs until the context
// ends.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.logger.Info(ctx, "starting worker pool", map[string]interface{}{
		"max_workers": p.maxWorkers,
	})

	return p.queue.Subscribe(ctx, func(ctx context.Context, runID uuid.UUID) error {
		select {
		case p.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		go func() {
			defer func() { <-p.slots }()

			p.logger.Info(ctx, "worker executing run", map[string]interface{}{
				"run_id": runID.String(),
			})
			if err := p.coordinator.HandleDispatch(ctx, runID); err != nil {
				p.logger.Error(ctx, "run execution failed", map[string]interface{}{
					"error":  err.Error(),
					"run_id": runID.String(),
				})
			}
		}()

		return nil
	})
}
