// Package observability emits the gateway's structured events:
// OPEN success and failure, denied frames, persistence submit failures
// and dead letters. Each event is a slog line plus a Prometheus sample.
package observability

import (
	"chat-gateway/contract"
	"chat-gateway/domain"
	"log/slog"
)

var _ contract.Events = (*Recorder)(nil)

type Recorder struct {
	log     *slog.Logger
	metrics *Metrics
}

func NewRecorder(log *slog.Logger, metrics *Metrics) *Recorder {
	return &Recorder{log: log.With("component", "events"), metrics: metrics}
}

func (r *Recorder) OpenSucceeded(sessionID domain.SessionID, subject domain.UserID) {
	r.log.Info("open_succeeded", "session_id", sessionID, "subject", subject)
	r.metrics.opens.WithLabelValues("success").Inc()
}

func (r *Recorder) OpenFailed(sessionID domain.SessionID, err error) {
	r.log.Warn("open_failed", "session_id", sessionID, "error", err)
	r.metrics.opens.WithLabelValues("failure").Inc()
}

func (r *Recorder) SessionStateLost(sessionID domain.SessionID) {
	r.log.Error("session_state_lost", "session_id", sessionID)
	r.metrics.stateLost.Inc()
}

func (r *Recorder) FrameDenied(sessionID domain.SessionID, command domain.Command, destination string) {
	r.log.Info("frame_denied", "session_id", sessionID, "command", command.String(), "destination", destination)
	r.metrics.denied.WithLabelValues(command.String()).Inc()
}

func (r *Recorder) PersistenceSubmitFailed(message domain.Message, err error) {
	r.log.Error("persistence_submit_failed",
		"message_id", message.ID, "chat_id", message.ChatID, "sender_id", message.SenderID, "error", err)
	r.metrics.submitFailures.Inc()
}

func (r *Recorder) Persisted(task domain.PersistenceTask) {
	r.log.Debug("message_persisted", "key", task.Key(), "attempts", task.Attempts)
	r.metrics.persisted.Inc()
}

func (r *Recorder) DeadLettered(letter domain.DeadLetter) {
	r.log.Error("dead_lettered",
		"key", letter.Task.Key(), "attempts", letter.Task.Attempts, "reason", letter.Reason)
	r.metrics.deadLetters.Inc()
}

func (r *Recorder) QueueDepth(depth int) {
	r.metrics.queueDepth.Set(float64(depth))
}
