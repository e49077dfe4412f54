package observability

import (
	"chat-gateway/domain"
	"chat-gateway/errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CountsEvents(t *testing.T) {
	req := require.New(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	recorder := NewRecorder(logs.GetLoggerFromLevel(slog.LevelDebug), metrics)

	recorder.OpenSucceeded("s1", "alice")
	recorder.OpenFailed("s2", errors.ErrExpired)
	recorder.OpenFailed("s3", errors.ErrInvalidToken)
	recorder.FrameDenied("s2", domain.SUBSCRIBE, "/topic/chat/42")
	recorder.PersistenceSubmitFailed(domain.Message{ID: "m1"}, errors.ErrQueueFull)
	task := domain.NewPersistenceTask(domain.Message{ChatID: 7, SenderID: "alice", Timestamp: time.Now()}, time.Now())
	recorder.Persisted(task)
	recorder.DeadLettered(domain.DeadLetter{Task: task, Reason: "boom"})
	recorder.QueueDepth(3)

	req.Equal(1.0, testutil.ToFloat64(metrics.opens.WithLabelValues("success")))
	req.Equal(2.0, testutil.ToFloat64(metrics.opens.WithLabelValues("failure")))
	req.Equal(1.0, testutil.ToFloat64(metrics.denied.WithLabelValues("SUBSCRIBE")))
	req.Equal(1.0, testutil.ToFloat64(metrics.submitFailures))
	req.Equal(1.0, testutil.ToFloat64(metrics.persisted))
	req.Equal(1.0, testutil.ToFloat64(metrics.deadLetters))
	req.Equal(3.0, testutil.ToFloat64(metrics.queueDepth))
}
