package runtime

import (
	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

var _ contract.IRouter = (*Router)(nil)

// Router fans a new message out to the chat topic and to every member's
// private queue, then hands it to the persistence pipeline exactly once.
// Fan-out is best-effort per destination; only the persistence hand-off
// can fail the call, and it always happens after fan-out.
type Router struct {
	log      *slog.Logger
	registry contract.IRegistry
	pipeline contract.IPipeline
	events   contract.Events
	now      func() time.Time
}

func NewRouter(log *slog.Logger, registry contract.IRegistry, pipeline contract.IPipeline, events contract.Events) *Router {
	return &Router{log: log, registry: registry, pipeline: pipeline, events: events, now: time.Now}
}

// Destinations lists the fan-out targets of a chat message, topic first.
func Destinations(chatID domain.ChatID, members []domain.UserID) []string {
	destinations := []string{domain.ChatTopic(chatID)}
	for _, member := range lo.Uniq(members) {
		destinations = append(destinations, domain.UserQueue(member, chatID))
	}
	return destinations
}

func (r *Router) Route(ctx context.Context, message domain.Message, members []domain.UserID) (domain.RouteResult, error) {
	var result domain.RouteResult

	payload, err := EncodeMessage(message)
	if err != nil {
		return result, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}

	// 1. Best-effort fan-out, a missing subscriber is not an error
	for _, destination := range Destinations(message.ChatID, members) {
		if err := r.registry.Deliver(ctx, destination, payload); err != nil {
			r.log.Debug("Fan-out missed", "destination", destination, "error", err)
			result.Missed = append(result.Missed, destination)
			continue
		}
		result.Delivered = append(result.Delivered, destination)
	}

	// 2. Exactly one persistence submission, regardless of fan-out outcome
	task := domain.NewPersistenceTask(message, r.now())
	if err := r.pipeline.Submit(ctx, task); err != nil {
		r.events.PersistenceSubmitFailed(message, err)
		r.notifyError(ctx, message, err)
		return result, fmt.Errorf("%w: %w", errors.ErrPersistenceSubmitFailed, err)
	}
	result.Persisted = true
	return result, nil
}

// notifyError reports a pipeline failure on the chat error topic. Never guaranteed.
func (r *Router) notifyError(ctx context.Context, message domain.Message, cause error) {
	notice, err := json.Marshal(ErrorPayload{
		ChatID:    int64(message.ChatID),
		MessageID: message.ID,
		Error:     fmt.Sprintf("failed to persist message: %v", cause),
	})
	if err != nil {
		return
	}
	if err := r.registry.Deliver(context.WithoutCancel(ctx), domain.ErrorTopic(message.ChatID), notice); err != nil {
		r.log.Debug("Error notice not delivered", "chat_id", message.ChatID, "error", err)
	}
}
