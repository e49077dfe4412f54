package services

import (
	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
)

const (
	defaultMaxContentLength = 4096
	historyPageSize         = 50
)

type IChatService interface {
	HandleSend(ctx context.Context, caller Caller, frame domain.Frame) error
	HandleSubscribe(ctx context.Context, caller Caller, frame domain.Frame) error
	HandleUnsubscribe(ctx context.Context, caller Caller, frame domain.Frame) error
	GetMessages(ctx context.Context, cmd domain.GetMessagesCommand) ([]domain.Message, *string, error)
}

// SendRequest is the SEND body. Any sender field a client adds is ignored,
// the sender is always the authenticated subject.
type SendRequest struct {
	Content string `json:"content"`
}

type ChatService struct {
	log         *slog.Logger
	store       contract.Store
	history     contract.History
	router      contract.IRouter
	registry    contract.IRegistry
	validate    *validator.Validate
	contentRule string
	now         func() time.Time
	newID       func() string
}

func NewChatService(log *slog.Logger, store contract.Store, history contract.History,
	router contract.IRouter, registry contract.IRegistry, maxContentLength int) *ChatService {
	if maxContentLength <= 0 {
		maxContentLength = defaultMaxContentLength
	}
	return &ChatService{
		log:         log,
		store:       store,
		history:     history,
		router:      router,
		registry:    registry,
		validate:    validator.New(),
		contentRule: fmt.Sprintf("required,max=%d", maxContentLength),
		now:         time.Now,
		newID:       func() string { return ulid.Make().String() },
	}
}

// Routes is the gateway routing table.
func (s *ChatService) Routes() []Route {
	return []Route{
		{Command: domain.SEND, Pattern: domain.AppChatPrefix + "*", Handler: s.HandleSend},
		{Command: domain.SUBSCRIBE, Pattern: "**", Handler: s.HandleSubscribe},
		{Command: domain.OTHER, Verb: "UNSUBSCRIBE", Pattern: "**", Handler: s.HandleUnsubscribe},
	}
}

func (s *ChatService) HandleSend(ctx context.Context, _ Caller, frame domain.Frame) error {
	if frame.Identity == nil {
		return fmt.Errorf("%w: SEND requires an identity", errors.ErrDenied)
	}
	chatID, err := domain.ParseChatID(frame.Destination)
	if err != nil {
		return err
	}

	var request SendRequest
	if err := json.Unmarshal(frame.Body, &request); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if err := s.validate.Var(request.Content, s.contentRule); err != nil {
		return fmt.Errorf("%w: content %v", errors.ErrInvalidPayload, err)
	}

	members, err := s.store.MembersOf(ctx, chatID)
	if err != nil {
		return fmt.Errorf("members of chat %d: %w", chatID, err)
	}
	sender := frame.Identity.Subject
	if !lo.Contains(members, sender) {
		return fmt.Errorf("%w: %s in chat %d", errors.ErrNotMember, sender, chatID)
	}

	message := domain.Message{
		ID:        s.newID(),
		ChatID:    chatID,
		SenderID:  sender,
		Content:   request.Content,
		Timestamp: s.now().UTC(),
	}
	result, err := s.router.Route(ctx, message, members)
	if err != nil {
		return err
	}
	s.log.Debug("Message routed", "message_id", message.ID, "chat_id", chatID,
		"delivered", len(result.Delivered), "missed", len(result.Missed))
	return nil
}

func (s *ChatService) HandleSubscribe(_ context.Context, caller Caller, frame domain.Frame) error {
	destination, err := domain.ResolveUserDestination(frame.Identity, frame.Destination)
	if err != nil {
		return err
	}
	if destination == "" {
		return fmt.Errorf("%w: empty subscription destination", errors.ErrInvalidDestination)
	}
	subscriptionID, ok := frame.Header(domain.HeaderSubscription)
	if !ok || subscriptionID == "" {
		subscriptionID = destination
	}
	s.registry.Subscribe(caller.SessionID, subscriptionID, destination, caller.Subscriber)
	s.log.Debug("Subscribed", "session_id", caller.SessionID, "subscription_id", subscriptionID, "destination", destination)
	return nil
}

func (s *ChatService) HandleUnsubscribe(_ context.Context, caller Caller, frame domain.Frame) error {
	subscriptionID, ok := frame.Header(domain.HeaderSubscription)
	if !ok || subscriptionID == "" {
		return fmt.Errorf("%w: UNSUBSCRIBE without id", errors.ErrInvalidPayload)
	}
	s.registry.Unsubscribe(caller.SessionID, subscriptionID)
	return nil
}

// GetMessages returns a page of history, members only.
func (s *ChatService) GetMessages(ctx context.Context, cmd domain.GetMessagesCommand) ([]domain.Message, *string, error) {
	isMember, err := s.history.IsMember(ctx, cmd.ChatID, cmd.Requester)
	if err != nil {
		return nil, nil, err
	}
	if !isMember {
		return nil, nil, fmt.Errorf("%w: %s in chat %d", errors.ErrNotMember, cmd.Requester, cmd.ChatID)
	}
	return s.history.GetMessages(ctx, cmd.ChatID, cmd.Cursor, historyPageSize)
}
