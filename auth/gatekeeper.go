package auth

import (
	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const bearer = "Bearer "

// Gatekeeper sits in front of every inbound frame.
// OPEN frames are authenticated and bound to their session, every later
// frame resolves its identity from that binding. Suppressed frames never
// reach the policy engine or a handler.
type Gatekeeper struct {
	log       *slog.Logger
	validator contract.AuthValidator
	store     *ContextStore
	events    contract.Events
	now       func() time.Time
}

func NewGatekeeper(log *slog.Logger, validator contract.AuthValidator,
	store *ContextStore, events contract.Events) *Gatekeeper {
	return &Gatekeeper{
		log:       log,
		validator: validator,
		store:     store,
		events:    events,
		now:       time.Now,
	}
}

// Intercept returns the frame annotated with the session identity, or an error
// when the frame must be suppressed. errors.IsAuthError tells the caller the
// connection has to be closed.
func (g *Gatekeeper) Intercept(ctx context.Context, session *domain.Session, frame domain.Frame) (domain.Frame, error) {
	if session.State() == domain.Closed {
		return frame, errors.ErrSessionClosed
	}
	if frame.Command == domain.OPEN {
		return g.open(ctx, session, frame)
	}

	switch session.State() {
	case domain.Unauthenticated:
		// Anonymous frames go on without identity, only public rules let them through.
		return frame, nil
	case domain.Authenticated:
		identity, ok := g.store.Get(session.ID)
		if !ok {
			// The OPEN succeeded earlier, so a missing binding is lost state.
			g.log.Error("Authenticated session has no identity binding", "session_id", session.ID)
			g.events.SessionStateLost(session.ID)
			return frame.WithHeader(domain.HeaderMessage, errors.ErrSessionNotAuthenticated.Error()),
				errors.ErrSessionNotAuthenticated
		}
		if identity.Expired(g.now()) {
			g.log.Info("Session token expired", "session_id", session.ID, "subject", identity.Subject)
			return frame.WithHeader(domain.HeaderMessage, errors.ErrExpired.Error()), errors.ErrExpired
		}
		return frame.WithIdentity(identity), nil
	default:
		return frame, errors.ErrSessionClosed
	}
}

func (g *Gatekeeper) open(ctx context.Context, session *domain.Session, frame domain.Frame) (domain.Frame, error) {
	if session.State() == domain.Authenticated {
		return frame.WithHeader(domain.HeaderMessage, "session already connected"),
			fmt.Errorf("%w: session already connected", errors.ErrDenied)
	}

	token, err := bearerToken(frame)
	if err != nil {
		return g.reject(session, frame, err)
	}

	identity, err := g.validator.Verify(ctx, token)
	if err != nil {
		if !errors.IsAuthError(err) {
			err = fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
		}
		return g.reject(session, frame, err)
	}

	// Bind before publishing the state so an Authenticated session always has an entry.
	g.store.Put(session.ID, identity)
	if !session.Transition(domain.Unauthenticated, domain.Authenticated) {
		g.store.Delete(session.ID)
		return frame, errors.ErrSessionClosed
	}

	g.log.Debug("Session authenticated", "session_id", session.ID, "subject", identity.Subject)
	g.events.OpenSucceeded(session.ID, identity.Subject)
	return frame.WithIdentity(identity), nil
}

func (g *Gatekeeper) reject(session *domain.Session, frame domain.Frame, err error) (domain.Frame, error) {
	session.MarkClosed()
	g.store.Delete(session.ID)
	g.log.Warn("Connection refused", "session_id", session.ID, "error", err)
	g.events.OpenFailed(session.ID, err)
	return frame.WithHeader(domain.HeaderMessage, diagnostic(err)), err
}

// Close drops the session binding. Safe to call more than once.
func (g *Gatekeeper) Close(session *domain.Session) {
	session.MarkClosed()
	g.store.Delete(session.ID)
}

func bearerToken(frame domain.Frame) (string, error) {
	header, ok := frame.Header(domain.HeaderAuthorization)
	if !ok {
		header, ok = frame.Header(strings.ToLower(domain.HeaderAuthorization))
	}
	header = strings.TrimSpace(header)
	if !ok || header == "" {
		return "", errors.ErrMissingCredential
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", fmt.Errorf("%w: invalid authorization scheme", errors.ErrMissingCredential)
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.ErrMissingCredential
	}
	return token, nil
}

// diagnostic keeps validator internals out of the header sent to the client.
func diagnostic(err error) string {
	for _, known := range []error{
		errors.ErrMissingCredential,
		errors.ErrExpired,
		errors.ErrAudienceMismatch,
		errors.ErrInvalidToken,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return errors.ErrInvalidToken.Error()
}
