// Package pipeline moves accepted messages to durable storage off the
// request path. Submit only enqueues; consumers do the I/O, retry
// transient failures and dead-letter what cannot be written.
package pipeline

import (
	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var _ contract.IPipeline = (*Pipeline)(nil)

type Config struct {
	QueueSize     int
	Workers       int
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	SubmitTimeout time.Duration
	DrainTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:     1024,
		Workers:       4,
		MaxAttempts:   5,
		BackoffBase:   100 * time.Millisecond,
		BackoffMax:    5 * time.Second,
		SubmitTimeout: 250 * time.Millisecond,
		DrainTimeout:  5 * time.Second,
	}
}

// Pipeline owns the message_persist queue.
type Pipeline struct {
	log         *slog.Logger
	cfg         Config
	tasks       chan domain.PersistenceTask
	store       contract.Store
	deadLetters contract.DeadLetterStore
	events      contract.Events
	done        chan struct{}
	closeOnce   sync.Once
	now         func() time.Time

	// submitting is held shared by Submit and exclusively by Close, so no
	// task lands in the queue once Close has returned.
	submitting sync.RWMutex
}

func New(log *slog.Logger, cfg Config, store contract.Store,
	deadLetters contract.DeadLetterStore, events contract.Events) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultConfig().BackoffMax
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultConfig().DrainTimeout
	}
	return &Pipeline{
		log:         log.With("channel", domain.PersistChannel),
		cfg:         cfg,
		tasks:       make(chan domain.PersistenceTask, cfg.QueueSize),
		store:       store,
		deadLetters: deadLetters,
		events:      events,
		done:        make(chan struct{}),
		now:         time.Now,
	}
}

// Submit enqueues the task without touching storage. It waits for room up to
// SubmitTimeout or the caller's deadline, whichever comes first.
func (p *Pipeline) Submit(ctx context.Context, task domain.PersistenceTask) error {
	p.submitting.RLock()
	defer p.submitting.RUnlock()

	select {
	case <-p.done:
		return errors.ErrPipelineClosed
	default:
	}

	// Fast path, no timer when there is room.
	select {
	case p.tasks <- task:
		p.events.QueueDepth(len(p.tasks))
		return nil
	default:
	}

	var timeout <-chan time.Time
	if p.cfg.SubmitTimeout > 0 {
		timer := time.NewTimer(p.cfg.SubmitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case p.tasks <- task:
		p.events.QueueDepth(len(p.tasks))
		return nil
	case <-p.done:
		return errors.ErrPipelineClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", errors.ErrQueueFull, ctx.Err())
	case <-timeout:
		return fmt.Errorf("%w: waited %s", errors.ErrQueueFull, p.cfg.SubmitTimeout)
	}
}

// Close refuses new submissions and waits for the ones in flight.
// Queued tasks are still drained by the consumers.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.submitting.Lock()
		defer p.submitting.Unlock()
	})
}

func (p *Pipeline) Closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Pipeline) Depth() int {
	return len(p.tasks)
}

// Consumers returns the workers to hand to the supervisor.
func (p *Pipeline) Consumers() []contract.Worker {
	workers := make([]contract.Worker, 0, p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		workers = append(workers, &Consumer{id: i, pipeline: p})
	}
	return workers
}

// Replay re-submits up to limit dead letters with a fresh attempt budget.
// A dead letter is removed only once its task is back in the queue.
func (p *Pipeline) Replay(ctx context.Context, limit int) (int, error) {
	letters, err := p.deadLetters.List(ctx, limit)
	if err != nil {
		return 0, err
	}
	replayed := 0
	for _, letter := range letters {
		task := letter.Task
		task.Attempts = 0
		task.EnqueuedAt = p.now()
		if err := p.Submit(ctx, task); err != nil {
			return replayed, err
		}
		if err := p.deadLetters.Delete(ctx, letter); err != nil {
			// The task is queued again, saving it twice is harmless.
			p.log.Warn("Dead letter not removed after replay", "key", task.Key(), "error", err)
		}
		replayed++
	}
	return replayed, nil
}

// backoff returns the wait before the next attempt: base doubled per attempt, capped.
func (p *Pipeline) backoff(attempt int) time.Duration {
	if p.cfg.BackoffBase <= 0 || attempt <= 0 {
		return 0
	}
	delay := p.cfg.BackoffBase
	for i := 1; i < attempt && delay < p.cfg.BackoffMax; i++ {
		delay *= 2
	}
	return min(delay, p.cfg.BackoffMax)
}
