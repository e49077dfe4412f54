package pipeline

import (
	"chat-gateway/domain"
	"chat-gateway/errors"
	"chat-gateway/mocks"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	pipeline    *Pipeline
	store       *mocks.MockStore
	deadLetters *mocks.MockDeadLetterStore
	events      *mocks.MockEvents
}

func testConfig() Config {
	return Config{
		QueueSize:     8,
		Workers:       1,
		MaxAttempts:   3,
		BackoffBase:   time.Millisecond,
		BackoffMax:    4 * time.Millisecond,
		SubmitTimeout: 20 * time.Millisecond,
		DrainTimeout:  time.Second,
	}
}

func newFixture(t *testing.T, cfg Config) fixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := mocks.NewMockStore(ctrl)
	deadLetters := mocks.NewMockDeadLetterStore(ctrl)
	events := mocks.NewMockEvents(ctrl)
	events.EXPECT().QueueDepth(gomock.Any()).AnyTimes()
	return fixture{
		pipeline:    New(log, cfg, store, deadLetters, events),
		store:       store,
		deadLetters: deadLetters,
		events:      events,
	}
}

func newTask(content string) domain.PersistenceTask {
	message := domain.Message{
		ID:        "01HZY00000000000000000" + content,
		ChatID:    7,
		SenderID:  "alice",
		Content:   content,
		Timestamp: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	}
	return domain.NewPersistenceTask(message, message.Timestamp)
}

// runConsumer starts one consumer and returns a stop function waiting for it.
func runConsumer(p *Pipeline) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Consumers()[0].Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestPipeline_Submit_Then_Persist(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	f := newFixture(t, testConfig())
	task := newTask("hello")

	persisted := make(chan domain.PersistenceTask, 1)
	f.store.EXPECT().Save(gomock.Any(), task.Message).Return(nil).Times(1)
	f.events.EXPECT().Persisted(gomock.Any()).Do(func(got domain.PersistenceTask) {
		persisted <- got
	}).Times(1)

	stop := runConsumer(f.pipeline)
	defer stop()

	// When a task is submitted
	req.NoError(f.pipeline.Submit(context.Background(), task))

	// Then it is written once
	select {
	case got := <-persisted:
		req.Equal(1, got.Attempts)
	case <-time.After(time.Second):
		req.Fail("task was not persisted")
	}
}

func TestPipeline_Submit_Queue_Full(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	cfg := testConfig()
	cfg.QueueSize = 1
	f := newFixture(t, cfg)

	// Given nobody consumes the queue
	req.NoError(f.pipeline.Submit(context.Background(), newTask("a")))

	// When the queue has no room left
	start := time.Now()
	err := f.pipeline.Submit(context.Background(), newTask("b"))

	// Then the caller waited for the submit timeout and got a retryable error
	req.ErrorIs(err, errors.ErrQueueFull)
	req.True(errors.IsRetryable(err))
	req.GreaterOrEqual(time.Since(start), cfg.SubmitTimeout)
	req.Equal(1, f.pipeline.Depth())
}

func TestPipeline_Submit_Honors_Caller_Deadline(t *testing.T) {
	req := require.New(t)
	cfg := testConfig()
	cfg.QueueSize = 1
	cfg.SubmitTimeout = time.Minute
	f := newFixture(t, cfg)
	req.NoError(f.pipeline.Submit(context.Background(), newTask("a")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	req.ErrorIs(f.pipeline.Submit(ctx, newTask("b")), errors.ErrQueueFull)
}

func TestPipeline_Submit_After_Close(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testConfig())

	f.pipeline.Close()
	f.pipeline.Close()

	req.True(f.pipeline.Closed())
	req.ErrorIs(f.pipeline.Submit(context.Background(), newTask("a")), errors.ErrPipelineClosed)
}

func TestPipeline_Retries_Transient_Failures(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	f := newFixture(t, testConfig())
	task := newTask("retry")

	// Given the store fails twice before recovering
	first := f.store.EXPECT().Save(gomock.Any(), task.Message).Return(errors.ErrStoreUnavailable).Times(2)
	f.store.EXPECT().Save(gomock.Any(), task.Message).Return(nil).After(first)
	persisted := make(chan domain.PersistenceTask, 1)
	f.events.EXPECT().Persisted(gomock.Any()).Do(func(got domain.PersistenceTask) {
		persisted <- got
	})

	stop := runConsumer(f.pipeline)
	defer stop()
	req.NoError(f.pipeline.Submit(context.Background(), task))

	select {
	case got := <-persisted:
		req.Equal(3, got.Attempts)
	case <-time.After(time.Second):
		req.Fail("task was not persisted")
	}
}

func TestPipeline_Dead_Letters_After_Max_Attempts(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	f := newFixture(t, testConfig())
	task := newTask("doomed")

	f.store.EXPECT().Save(gomock.Any(), task.Message).Return(errors.ErrStoreUnavailable).Times(3)
	var stored domain.DeadLetter
	f.deadLetters.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, letter domain.DeadLetter) error {
			stored = letter
			return nil
		})
	lettered := make(chan domain.DeadLetter, 1)
	f.events.EXPECT().DeadLettered(gomock.Any()).Do(func(letter domain.DeadLetter) {
		lettered <- letter
	})

	stop := runConsumer(f.pipeline)
	defer stop()
	req.NoError(f.pipeline.Submit(context.Background(), task))

	select {
	case letter := <-lettered:
		req.Equal(3, letter.Task.Attempts)
		req.Equal(task.Message, letter.Task.Message)
		req.Contains(letter.Reason, "store unavailable")
		req.Equal(stored, letter)
	case <-time.After(time.Second):
		req.Fail("task was not dead-lettered")
	}
}

func TestPipeline_Permanent_Failure_Skips_Retries(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	f := newFixture(t, testConfig())
	task := newTask("bad")

	f.store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.Permanent(fmt.Errorf("constraint violated"))).Times(1)
	f.deadLetters.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil)
	lettered := make(chan domain.DeadLetter, 1)
	f.events.EXPECT().DeadLettered(gomock.Any()).Do(func(letter domain.DeadLetter) {
		lettered <- letter
	})

	stop := runConsumer(f.pipeline)
	defer stop()
	req.NoError(f.pipeline.Submit(context.Background(), task))

	select {
	case letter := <-lettered:
		req.Equal(1, letter.Task.Attempts)
	case <-time.After(time.Second):
		req.Fail("task was not dead-lettered")
	}
}

func TestPipeline_Dead_Letter_Write_Failure_Is_Not_Fatal(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	f := newFixture(t, testConfig())

	var puts atomic.Int32
	f.store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.Permanent(fmt.Errorf("nope"))).Times(2)
	f.deadLetters.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, domain.DeadLetter) error {
			puts.Add(1)
			return fmt.Errorf("disk full")
		}).Times(2)

	stop := runConsumer(f.pipeline)
	req.NoError(f.pipeline.Submit(context.Background(), newTask("one")))
	req.NoError(f.pipeline.Submit(context.Background(), newTask("two")))

	// Then the consumer keeps going after a failed dead-letter write
	req.Eventually(func() bool { return puts.Load() == 2 }, time.Second, 5*time.Millisecond)
	stop()
}

func TestPipeline_Drains_Queue_On_Shutdown(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	f := newFixture(t, testConfig())

	// Given three tasks accepted before any consumer ran
	for _, content := range []string{"a", "b", "c"} {
		req.NoError(f.pipeline.Submit(context.Background(), newTask(content)))
	}
	f.store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil).Times(3)
	f.events.EXPECT().Persisted(gomock.Any()).Times(3)

	// When the consumer starts with an already cancelled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.pipeline.Close()
	req.NoError(f.pipeline.Consumers()[0].Run(ctx))

	// Then every accepted task was still written
	req.Zero(f.pipeline.Depth())
}

func TestPipeline_Replay(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, testConfig())
	first := domain.DeadLetter{Task: newTask("x"), Reason: "boom"}
	first.Task.Attempts = 3
	second := domain.DeadLetter{Task: newTask("y"), Reason: "boom"}

	f.deadLetters.EXPECT().List(gomock.Any(), 10).Return([]domain.DeadLetter{first, second}, nil)
	f.deadLetters.EXPECT().Delete(gomock.Any(), first).Return(nil)
	f.deadLetters.EXPECT().Delete(gomock.Any(), second).Return(fmt.Errorf("locked"))

	// When dead letters are replayed
	replayed, err := f.pipeline.Replay(context.Background(), 10)

	// Then both are queued again with a fresh attempt budget
	req.NoError(err)
	req.Equal(2, replayed)
	req.Equal(2, f.pipeline.Depth())
	queued := <-f.pipeline.tasks
	req.Zero(queued.Attempts)
	req.Equal(first.Task.Message, queued.Message)
}

func TestPipeline_Backoff(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Config{BackoffBase: 100 * time.Millisecond, BackoffMax: time.Second})
	p := f.pipeline

	req.Equal(100*time.Millisecond, p.backoff(1))
	req.Equal(200*time.Millisecond, p.backoff(2))
	req.Equal(400*time.Millisecond, p.backoff(3))
	req.Equal(800*time.Millisecond, p.backoff(4))
	req.Equal(time.Second, p.backoff(5))
	req.Equal(time.Second, p.backoff(40))
	req.Zero(p.backoff(0))
}

func TestPipeline_Backoff_Without_Max_Stays_Bounded(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Config{BackoffBase: 100 * time.Millisecond, MaxAttempts: 1000})
	p := f.pipeline

	// Then the default cap applies instead of doubling until overflow
	req.Equal(DefaultConfig().BackoffMax, p.backoff(1000))
	req.Equal(DefaultConfig().DrainTimeout, p.cfg.DrainTimeout)
}
