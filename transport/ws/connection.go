package ws

import (
	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/errors"
	"chat-gateway/transport/stomp"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var _ contract.Subscriber = (*Connection)(nil)

// Connection is one websocket client. Reads happen on the server goroutine,
// every write goes through the outbound channel drained by writePump.
type Connection struct {
	log             *slog.Logger
	conn            *websocket.Conn
	session         *domain.Session
	outbound        chan []byte
	deliveryTimeout time.Duration
	writeTimeout    time.Duration
	limiter         *rate.Limiter
	done            chan struct{}
	closeOnce       sync.Once
	sequence        atomic.Uint64
}

func newConnection(log *slog.Logger, conn *websocket.Conn, session *domain.Session, cfg Config) *Connection {
	limit := rate.Inf
	if cfg.SendRatePerSecond > 0 {
		limit = rate.Limit(cfg.SendRatePerSecond)
	}
	return &Connection{
		log:             log.With("session_id", session.ID),
		conn:            conn,
		session:         session,
		outbound:        make(chan []byte, cfg.BufferSize),
		deliveryTimeout: cfg.DeliveryTimeout,
		writeTimeout:    cfg.WriteTimeout,
		limiter:         rate.NewLimiter(limit, cfg.SendBurst),
		done:            make(chan struct{}),
	}
}

// Deliver queues a MESSAGE frame. A client that cannot keep up loses the
// message after the delivery timeout, the broker is never blocked for long.
func (c *Connection) Deliver(ctx context.Context, destination, subscriptionID string, payload []byte) error {
	messageID := fmt.Sprintf("%s-%d", c.session.ID, c.sequence.Add(1))
	return c.send(ctx, stomp.NewMessage(destination, subscriptionID, messageID, payload))
}

func (c *Connection) send(ctx context.Context, frame stomp.Frame) error {
	data := frame.Bytes()
	select {
	case <-c.done:
		return errors.ErrSessionClosed
	default:
	}
	select {
	case c.outbound <- data:
		return nil
	default:
	}

	timer := time.NewTimer(c.deliveryTimeout)
	defer timer.Stop()
	select {
	case c.outbound <- data:
		return nil
	case <-c.done:
		return errors.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		c.log.Warn("Slow consumer, frame dropped", "command", frame.Command)
		return errors.ErrSlowConsumer
	}
}

// reply sends a server frame to this client only.
func (c *Connection) reply(frame stomp.Frame) {
	if err := c.send(context.Background(), frame); err != nil {
		c.log.Debug("Reply not sent", "command", frame.Command, "error", err)
	}
}

// writePump owns the socket writes. It flushes what is queued once the
// connection is closing so a final ERROR frame still reaches the client.
func (c *Connection) writePump() {
	for {
		select {
		case data := <-c.outbound:
			if err := c.write(data); err != nil {
				c.log.Debug("Write failed", "error", err)
				c.close()
				return
			}
		case <-c.done:
			for {
				select {
				case data := <-c.outbound:
					if c.write(data) != nil {
						return
					}
				default:
					_ = c.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(c.writeTimeout))
					return
				}
			}
		}
	}
}

func (c *Connection) write(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Connection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// allowSend applies the per-session SEND rate limit.
func (c *Connection) allowSend() bool {
	return c.limiter.Allow()
}
