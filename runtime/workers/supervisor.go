package workers

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const waitTimeBeforeRestart = 200 * time.Millisecond

// Supervisor runs the long-lived background workers of the server
// (search indexer, HTTP listener).
// A worker returning an error or panicking is restarted after a short delay,
// a worker returning nil is considered done.
// Cancelling the parent context, or calling Stop, stops every worker.
type Supervisor struct {
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	log     *slog.Logger
	workers []contract.Worker
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{wg: &sync.WaitGroup{}, log: log}
}

// Run blocks until every worker has stopped.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer s.cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker in its own goroutine and restarts it on failure.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for restarts := 0; ; restarts++ {
			if ctx.Err() != nil {
				s.log.Info("Worker not started, context done", "worker", name)
				return
			}

			err := runOnce(ctx, worker)
			switch {
			case err == nil:
				s.log.Info("Worker finished", "worker", name)
				return
			case ctx.Err() != nil:
				s.log.Info("Worker stopped", "worker", name)
				return
			}

			s.log.Warn("Worker crashed, restarting", "worker", name, "restarts", restarts+1, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(waitTimeBeforeRestart):
			}
		}
	}()
}

// runOnce turns a panic of the worker into ErrWorkerPanic.
func runOnce(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

// Stop cancels every supervised worker, Run returns once they are all done.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}
