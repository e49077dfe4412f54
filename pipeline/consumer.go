package pipeline

import (
	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/errors"
	"context"
	"sync"
	"time"
)

var _ contract.Worker = (*Consumer)(nil)

const deadLetterWriteTimeout = 5 * time.Second

// Consumer takes tasks off the queue and writes them to the store.
type Consumer struct {
	id       int
	pipeline *Pipeline
}

// Run consumes until ctx is done, then drains the queue. Saves and retries
// run on a context that outlives ctx by DrainTimeout, so a write in flight at
// shutdown is not failed by the cancellation itself.
func (c *Consumer) Run(ctx context.Context) error {
	p := c.pipeline
	log := p.log.With("consumer", c.id)
	work, release := outlive(ctx, p.cfg.DrainTimeout)
	defer release()

	for {
		if ctx.Err() != nil {
			log.Debug("Context done, draining queue")
			c.drain(work)
			return nil
		}
		select {
		case <-ctx.Done():
		case task := <-p.tasks:
			p.events.QueueDepth(len(p.tasks))
			c.process(work, task)
		}
	}
}

// drain empties the queue. Once work expires the remaining tasks fail fast
// and are dead-lettered.
func (c *Consumer) drain(work context.Context) {
	p := c.pipeline
	for {
		select {
		case task := <-p.tasks:
			p.events.QueueDepth(len(p.tasks))
			c.process(work, task)
		default:
			return
		}
	}
}

// outlive returns a context that is cancelled grace after ctx is done.
func outlive(ctx context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	work, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		timer = time.AfterFunc(grace, cancel)
	})
	return work, func() {
		stop()
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		cancel()
	}
}

func (c *Consumer) process(ctx context.Context, task domain.PersistenceTask) {
	p := c.pipeline
	for {
		task.Attempts++
		err := p.store.Save(ctx, task.Message)
		if err == nil {
			p.events.Persisted(task)
			return
		}

		if !errors.IsRetryable(err) || task.Attempts >= p.cfg.MaxAttempts {
			c.deadLetter(task, err)
			return
		}

		delay := p.backoff(task.Attempts)
		p.log.Debug("Save failed, retrying", "key", task.Key(), "attempt", task.Attempts, "delay", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.deadLetter(task, ctx.Err())
			return
		case <-timer.C:
		}
	}
}

func (c *Consumer) deadLetter(task domain.PersistenceTask, cause error) {
	p := c.pipeline
	letter := domain.DeadLetter{Task: task, Reason: cause.Error(), FailedAt: p.now().UTC()}

	ctx, cancel := context.WithTimeout(context.Background(), deadLetterWriteTimeout)
	defer cancel()
	if err := p.deadLetters.Put(ctx, letter); err != nil {
		// Last resort, the task content goes to the log so an operator can recover it.
		p.log.Error("Dead letter write failed, message only kept in logs",
			"key", task.Key(),
			"message_id", task.Message.ID,
			"chat_id", task.Message.ChatID,
			"sender_id", task.Message.SenderID,
			"content", task.Message.Content,
			"timestamp", task.Message.Timestamp,
			"attempts", task.Attempts,
			"reason", letter.Reason,
			"error", err)
		return
	}
	p.events.DeadLettered(letter)
}
