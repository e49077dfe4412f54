package pipeline

import (
	"chat-gateway/domain"
	"chat-gateway/errors"
	"chat-gateway/mocks"
	"chat-gateway/repositories"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

// slowStore takes delay per Save and gives up when its context ends.
type slowStore struct {
	delay time.Duration
	mu    sync.Mutex
	saved []domain.Message
}

func (s *slowStore) Save(ctx context.Context, message domain.Message) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, ctx.Err())
	case <-time.After(s.delay):
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, message)
	return nil
}

func (s *slowStore) MembersOf(context.Context, domain.ChatID) ([]domain.UserID, error) {
	return nil, nil
}

func (s *slowStore) Saved() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.saved...)
}

func TestPipeline_Shutdown_Completes_Save_In_Flight(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	f := newFixture(t, testConfig())
	store := &slowStore{delay: 50 * time.Millisecond}
	p := New(logs.GetLoggerFromLevel(slog.LevelDebug), testConfig(), store, f.deadLetters, f.events)
	task := newTask("in-flight")
	f.events.EXPECT().Persisted(gomock.Any()).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Consumers()[0].Run(ctx) }()
	req.NoError(p.Submit(context.Background(), task))

	// When the gateway stops while the write is running
	time.Sleep(10 * time.Millisecond)
	p.Close()
	cancel()
	req.NoError(<-done)

	// Then the write completed and nothing was dead-lettered
	req.Equal([]domain.Message{task.Message}, store.Saved())
}

func TestPipeline_Shutdown_Dead_Letters_After_Drain_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	f := newFixture(t, testConfig())
	cfg := testConfig()
	cfg.DrainTimeout = 30 * time.Millisecond
	store := &slowStore{delay: time.Minute}
	p := New(logs.GetLoggerFromLevel(slog.LevelDebug), cfg, store, f.deadLetters, f.events)

	lettered := make(chan domain.DeadLetter, 1)
	f.deadLetters.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	f.events.EXPECT().DeadLettered(gomock.Any()).Do(func(letter domain.DeadLetter) {
		lettered <- letter
	}).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Consumers()[0].Run(ctx) }()
	req.NoError(p.Submit(context.Background(), newTask("stuck")))

	// When the store never answers and the gateway stops
	time.Sleep(10 * time.Millisecond)
	p.Close()
	start := time.Now()
	cancel()
	req.NoError(<-done)

	// Then the task is kept as a dead letter once the drain deadline passed
	req.GreaterOrEqual(time.Since(start), cfg.DrainTimeout)
	letter := <-lettered
	req.Equal("stuck", letter.Task.Message.Content)
	req.Empty(store.Saved())
}

func TestPipeline_Shutdown_Persists_Queued_Tasks_In_Badger(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer func() { _ = db.Close() }()
	chats, err := repositories.NewChatRepository(db)
	req.NoError(err)
	defer func() { _ = chats.Close() }()

	log := logs.GetLoggerFromLevel(slog.LevelWarn)
	messages := repositories.NewMessageRepository(db, log)
	store := repositories.NewBadgerStore(messages, chats)
	deadLetters := repositories.NewDeadLetterRepository(db)
	events := mocks.NewMockEvents(gomock.NewController(t))
	events.EXPECT().QueueDepth(gomock.Any()).AnyTimes()
	events.EXPECT().Persisted(gomock.Any()).AnyTimes()

	base := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	for i := range 30 {
		p := New(log, testConfig(), store, deadLetters, events)
		message := domain.Message{ID: fmt.Sprintf("01J%023d", i), ChatID: 3, SenderID: "alice",
			Content: fmt.Sprintf("queued %d", i), Timestamp: base.Add(time.Duration(i) * time.Second)}
		req.NoError(p.Submit(context.Background(), domain.NewPersistenceTask(message, base)))

		// When the consumer only starts after shutdown began
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p.Close()
		req.NoError(p.Consumers()[0].Run(ctx))
	}

	// Then every queued task reached the store
	stored, _, err := messages.GetMessages(3, nil, 100)
	req.NoError(err)
	req.Len(stored, 30)
	letters, err := deadLetters.List(context.Background(), 0)
	req.NoError(err)
	req.Empty(letters)
}

func TestPipeline_Close_Waits_For_Submits_In_Flight(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	cfg := testConfig()
	cfg.QueueSize = 512
	f := newFixture(t, cfg)

	var persisted atomic.Int32
	f.store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f.events.EXPECT().Persisted(gomock.Any()).Do(func(domain.PersistenceTask) {
		persisted.Add(1)
	}).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.pipeline.Consumers()[0].Run(ctx) }()

	// Given submitters racing the shutdown
	var accepted atomic.Int32
	var submitters sync.WaitGroup
	for s := range 8 {
		submitters.Add(1)
		go func() {
			defer submitters.Done()
			for i := range 50 {
				err := f.pipeline.Submit(context.Background(), newTask(fmt.Sprintf("%d-%d", s, i)))
				if err != nil {
					return
				}
				accepted.Add(1)
			}
		}()
	}

	// When the pipeline closes and the consumer stops right after
	time.Sleep(time.Millisecond)
	f.pipeline.Close()
	cancel()
	req.NoError(<-done)
	submitters.Wait()

	// Then every accepted task was persisted
	req.Equal(accepted.Load(), persisted.Load())
	req.Zero(f.pipeline.Depth())
}
