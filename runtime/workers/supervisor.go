package workers

import (
	"chat-gateway/contract"
	"chat-gateway/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const waitTimeBeforeRestart = 200 * time.Millisecond

var _ contract.ISupervisor = (*Supervisor)(nil)

// Supervisor keeps the gateway background workers alive.
// Each worker gets its own goroutine. A panic or an error restarts the worker
// after a delay, a nil return ends it for good. Cancelling the parent context
// stops everything and Run returns once every goroutine is gone.
type Supervisor struct {
	Cancel       context.CancelFunc
	wg           *sync.WaitGroup
	log          *slog.Logger
	workers      []contract.Worker
	restartDelay time.Duration
	restarts     map[string]int
	restartsMu   sync.Mutex
}

type SupervisorOption func(*Supervisor)

// WithRestartDelay overrides the pause between two runs of a crashed worker.
func WithRestartDelay(delay time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if delay > 0 {
			s.restartDelay = delay
		}
	}
}

func NewSupervisor(log *slog.Logger, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		wg:           &sync.WaitGroup{},
		log:          log,
		restartDelay: waitTimeBeforeRestart,
		restarts:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until every worker has returned.
// Calling Stop only cancels the supervised workers, never the parent.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.Cancel = cancel
	defer s.Cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs one worker under supervision, restarting it after a crash.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping : %s", name))
				return
			}

			err := runGuarded(ctx, worker)
			if err == nil {
				s.log.Info(fmt.Sprintf("Worker finished : %s", name))
				return
			}
			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", name)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", name, "error", err, "restarts", s.countRestart(name))
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartDelay):
			}
		}
	}()
}

// Restarts returns how many times the named worker was restarted.
func (s *Supervisor) Restarts(name string) int {
	s.restartsMu.Lock()
	defer s.restartsMu.Unlock()
	return s.restarts[name]
}

func (s *Supervisor) countRestart(name string) int {
	s.restartsMu.Lock()
	defer s.restartsMu.Unlock()
	s.restarts[name]++
	return s.restarts[name]
}

func (s *Supervisor) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
}

func runGuarded(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}
