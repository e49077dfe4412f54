// Package ws serves STOMP sessions over websocket connections.
package ws

import (
	"chat-gateway/auth"
	"chat-gateway/authz"
	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/errors"
	"chat-gateway/services"
	"chat-gateway/transport/stomp"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const serverName = "chat-gateway/1.0"

type Config struct {
	BufferSize        int
	DeliveryTimeout   time.Duration
	WriteTimeout      time.Duration
	ReadLimit         int64
	SendRatePerSecond float64
	SendBurst         int
	AllowedOrigins    []string
}

func DefaultConfig() Config {
	return Config{
		BufferSize:        64,
		DeliveryTimeout:   100 * time.Millisecond,
		WriteTimeout:      5 * time.Second,
		ReadLimit:         64 * 1024,
		SendRatePerSecond: 20,
		SendBurst:         40,
	}
}

// Server upgrades HTTP requests and runs one STOMP session per connection.
// Every inbound frame goes gatekeeper, then policy, then the routing table.
type Server struct {
	log        *slog.Logger
	cfg        Config
	upgrader   websocket.Upgrader
	gatekeeper *auth.Gatekeeper
	policy     *authz.Policy
	dispatcher *services.Dispatcher
	registry   contract.IRegistry
	events     contract.Events

	mu      sync.Mutex
	conns   map[*Connection]struct{}
	active  sync.WaitGroup
	closing bool
}

func NewServer(log *slog.Logger, cfg Config, gatekeeper *auth.Gatekeeper, policy *authz.Policy,
	dispatcher *services.Dispatcher, registry contract.IRegistry, events contract.Events) *Server {
	defaults := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaults.DeliveryTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaults.ReadLimit
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 1
	}
	s := &Server{
		log:        log,
		cfg:        cfg,
		gatekeeper: gatekeeper,
		policy:     policy,
		dispatcher: dispatcher,
		registry:   registry,
		events:     events,
		conns:      make(map[*Connection]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Subprotocols:    []string{"v12.stomp"},
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Upgrade failed", "error", err)
		return
	}
	s.serve(r.Context(), conn)
}

func (s *Server) serve(ctx context.Context, conn *websocket.Conn) {
	session := domain.NewSession(time.Now().UTC())
	c := newConnection(s.log, conn, session, s.cfg)
	if !s.track(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(s.cfg.WriteTimeout))
		_ = conn.Close()
		return
	}
	defer s.untrack(c)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		c.writePump()
	}()

	// Every exit path releases the binding and the subscriptions.
	defer func() {
		s.gatekeeper.Close(session)
		s.registry.RemoveSession(session.ID)
		c.close()
		<-pumpDone
		_ = conn.Close()
		c.log.Debug("Connection closed")
	}()

	conn.SetReadLimit(s.cfg.ReadLimit)
	ctx = context.WithoutCancel(ctx)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("Read failed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		if !s.handle(ctx, c, data) {
			return
		}
	}
}

func (s *Server) track(c *Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.active.Add(1)
	return true
}

func (s *Server) untrack(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.active.Done()
}

// Shutdown refuses new sessions and closes the open ones, flushing what was
// already queued for them. It returns once every session ended or ctx expired.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for c := range s.conns {
		c.close()
		// Unblocks the read loop once the close frame had time to go out.
		_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handle processes one inbound frame and reports whether the connection stays open.
func (s *Server) handle(ctx context.Context, c *Connection, data []byte) bool {
	raw, err := stomp.Parse(data)
	if err != nil {
		c.reply(stomp.NewError(errors.ErrMalformedFrame.Error(), "", []byte(err.Error())))
		return false
	}
	receipt, _ := raw.Get(domain.HeaderReceipt)

	if raw.Command == stomp.Disconnect {
		if receipt != "" {
			c.reply(stomp.NewReceipt(receipt))
		}
		return false
	}

	frame, err := s.gatekeeper.Intercept(ctx, c.session, stomp.ToDomain(raw))
	if err != nil {
		message, _ := frame.Header(domain.HeaderMessage)
		if message == "" {
			message = err.Error()
		}
		c.reply(stomp.NewError(message, receipt, nil))
		return !errors.IsAuthError(err)
	}
	if frame.Command == domain.OPEN {
		c.reply(stomp.NewConnected("0,0", serverName))
		return true
	}

	if err := s.policy.Check(frame); err != nil {
		s.events.FrameDenied(c.session.ID, frame.Command, frame.Destination)
		if receipt != "" {
			c.reply(stomp.NewError(errors.ErrDenied.Error(), receipt, nil))
		}
		return true
	}

	if frame.Command == domain.SEND && !c.allowSend() {
		c.reply(stomp.NewError(errors.ErrRateLimited.Error(), receipt, nil))
		return true
	}

	caller := services.Caller{SessionID: c.session.ID, Subscriber: c}
	if err := s.dispatcher.Dispatch(ctx, caller, frame); err != nil {
		c.log.Debug("Frame rejected", "command", frame.Command, "destination", frame.Destination, "error", err)
		c.reply(stomp.NewError(clientMessage(err), receipt, nil))
		return true
	}
	if receipt != "" {
		c.reply(stomp.NewReceipt(receipt))
	}
	return true
}

// clientMessage keeps store and pipeline internals out of ERROR frames.
func clientMessage(err error) string {
	for _, known := range []error{
		errors.ErrDenied,
		errors.ErrNotMember,
		errors.ErrInvalidDestination,
		errors.ErrInvalidPayload,
		errors.ErrPersistenceSubmitFailed,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}
