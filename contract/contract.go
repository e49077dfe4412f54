//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-gateway/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// AuthValidator verifies a bearer token against the external issuer.
type AuthValidator interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// Store is the durable side of the system.
// Save must tolerate being called twice with the same message.
type Store interface {
	Save(ctx context.Context, message domain.Message) error
	MembersOf(ctx context.Context, chatID domain.ChatID) ([]domain.UserID, error)
}

// History is the read side used by the HTTP surface.
type History interface {
	IsMember(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (bool, error)
	GetMessages(ctx context.Context, chatID domain.ChatID, cursor *string, limit int) ([]domain.Message, *string, error)
}

type DeadLetterStore interface {
	Put(ctx context.Context, letter domain.DeadLetter) error
	List(ctx context.Context, limit int) ([]domain.DeadLetter, error)
	Delete(ctx context.Context, letter domain.DeadLetter) error
}

// Subscriber is the transport handle a live subscription delivers to.
type Subscriber interface {
	Deliver(ctx context.Context, destination, subscriptionID string, payload []byte) error
}

type IRegistry interface {
	Subscribe(sessionID domain.SessionID, subscriptionID, destination string, subscriber Subscriber)
	Unsubscribe(sessionID domain.SessionID, subscriptionID string)
	RemoveSession(sessionID domain.SessionID)
	Subscribers(destination string) []domain.SessionID
	Deliver(ctx context.Context, destination string, payload []byte) error
}

type IPipeline interface {
	Submit(ctx context.Context, task domain.PersistenceTask) error
}

type IRouter interface {
	Route(ctx context.Context, message domain.Message, members []domain.UserID) (domain.RouteResult, error)
}

// Events are the observability points of the gateway.
type Events interface {
	OpenSucceeded(sessionID domain.SessionID, subject domain.UserID)
	OpenFailed(sessionID domain.SessionID, err error)
	SessionStateLost(sessionID domain.SessionID)
	FrameDenied(sessionID domain.SessionID, command domain.Command, destination string)
	PersistenceSubmitFailed(message domain.Message, err error)
	Persisted(task domain.PersistenceTask)
	DeadLettered(letter domain.DeadLetter)
	QueueDepth(depth int)
}
