package services

import (
	"chat-gateway/authz"
	"chat-gateway/contract"
	"chat-gateway/domain"
	"context"
	"log/slog"
)

// Caller is the connection a frame came from.
type Caller struct {
	SessionID  domain.SessionID
	Subscriber contract.Subscriber
}

type Handler func(ctx context.Context, caller Caller, frame domain.Frame) error

// Route binds a command and a destination pattern to a handler.
// Verb narrows OTHER frames to one protocol command, e.g. UNSUBSCRIBE.
type Route struct {
	Command domain.Command
	Verb    string
	Pattern string
	Handler Handler
}

func (r Route) matches(frame domain.Frame) bool {
	if r.Command != frame.Command {
		return false
	}
	if r.Verb != "" && r.Verb != frame.Verb {
		return false
	}
	return authz.Match(r.Pattern, frame.Destination)
}

// Dispatcher is the explicit routing table. The first matching route wins.
type Dispatcher struct {
	log    *slog.Logger
	routes []Route
}

func NewDispatcher(log *slog.Logger, routes ...Route) *Dispatcher {
	return &Dispatcher{log: log, routes: routes}
}

// Dispatch runs the handler of the first matching route. Frames nobody
// handles are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, caller Caller, frame domain.Frame) error {
	for _, route := range d.routes {
		if route.matches(frame) {
			return route.Handler(ctx, caller, frame)
		}
	}
	d.log.Debug("No handler for frame", "session_id", caller.SessionID,
		"command", frame.Command, "verb", frame.Verb, "destination", frame.Destination)
	return nil
}
