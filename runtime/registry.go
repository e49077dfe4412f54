package runtime

import (
	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/errors"
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

type subscriptionKey struct {
	sessionID      domain.SessionID
	subscriptionID string
}

type subscription struct {
	subscriptionKey
	destination string
	subscriber  contract.Subscriber
}

// Registry is the in-process subscription table of the broker.
// Delivery never happens while holding the lock.
type Registry struct {
	mu            sync.RWMutex
	byDestination map[string]map[subscriptionKey]subscription
	bySession     map[domain.SessionID]map[string]string // subscription id -> destination
}

func NewRegistry() *Registry {
	return &Registry{
		byDestination: make(map[string]map[subscriptionKey]subscription),
		bySession:     make(map[domain.SessionID]map[string]string),
	}
}

// Subscribe registers a live subscription. Re-using a subscription id on the
// same session replaces the previous destination.
func (r *Registry) Subscribe(sessionID domain.SessionID, subscriptionID, destination string, subscriber contract.Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(sessionID, subscriptionID)

	key := subscriptionKey{sessionID: sessionID, subscriptionID: subscriptionID}
	if _, ok := r.byDestination[destination]; !ok {
		r.byDestination[destination] = make(map[subscriptionKey]subscription)
	}
	r.byDestination[destination][key] = subscription{subscriptionKey: key, destination: destination, subscriber: subscriber}

	if _, ok := r.bySession[sessionID]; !ok {
		r.bySession[sessionID] = make(map[string]string)
	}
	r.bySession[sessionID][subscriptionID] = destination
}

func (r *Registry) Unsubscribe(sessionID domain.SessionID, subscriptionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(sessionID, subscriptionID)
}

// RemoveSession drops every subscription of a closed session so nothing is
// delivered to it anymore.
func (r *Registry) RemoveSession(sessionID domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for subscriptionID := range r.bySession[sessionID] {
		r.removeLocked(sessionID, subscriptionID)
	}
	delete(r.bySession, sessionID)
}

func (r *Registry) removeLocked(sessionID domain.SessionID, subscriptionID string) {
	destinations, ok := r.bySession[sessionID]
	if !ok {
		return
	}
	destination, ok := destinations[subscriptionID]
	if !ok {
		return
	}
	delete(destinations, subscriptionID)
	if len(destinations) == 0 {
		delete(r.bySession, sessionID)
	}

	key := subscriptionKey{sessionID: sessionID, subscriptionID: subscriptionID}
	if subs, ok := r.byDestination[destination]; ok {
		delete(subs, key)
		// No empty sets left behind
		if len(subs) == 0 {
			delete(r.byDestination, destination)
		}
	}
}

// Subscribers lists the sessions currently subscribed to destination.
func (r *Registry) Subscribers(destination string) []domain.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Uniq(lo.Map(lo.Keys(r.byDestination[destination]), func(k subscriptionKey, _ int) domain.SessionID {
		return k.sessionID
	}))
}

func (r *Registry) snapshot(destination string) []subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.byDestination[destination])
}

// Deliver pushes payload to every live subscriber of destination.
// It fails only when nobody received the payload.
func (r *Registry) Deliver(ctx context.Context, destination string, payload []byte) error {
	subs := r.snapshot(destination)
	if len(subs) == 0 {
		return fmt.Errorf("%w: %s", errors.ErrNoSubscriber, destination)
	}
	var failures []error
	for _, sub := range subs {
		if err := sub.subscriber.Deliver(ctx, destination, sub.subscriptionID, payload); err != nil {
			failures = append(failures, fmt.Errorf("session %s: %w", sub.sessionID, err))
		}
	}
	if len(failures) == len(subs) {
		return stderrors.Join(failures...)
	}
	return nil
}
