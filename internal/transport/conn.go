package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/roach88/bindery/internal/auth"
	"github.com/roach88/bindery/internal/binding"
	"github.com/roach88/bindery/internal/hub"
	"github.com/roach88/bindery/internal/metrics"
)

// conn is one websocket client. Frames for it are queued in out and
// written by a single writer goroutine.
type conn struct {
	id   string
	user auth.User
	ws   *websocket.Conn
	out  *hub.Outbox
}

func newConn(id string, user auth.User, ws *websocket.Conn) *conn {
	return &conn{id: id, user: user, ws: ws, out: hub.NewOutbox()}
}

// ID implements hub.Conn.
func (c *conn) ID() string { return c.id }

// Send implements hub.Conn.
func (c *conn) Send(frame []byte) bool { return c.out.Push(frame) }

// readLoop dispatches inbound frames in arrival order until the client
// goes away. It always returns a non-nil error.
func (c *conn) readLoop(ctx context.Context, s *Server) error {
	cfg := s.cfg
	c.ws.SetReadLimit(cfg.MaxMessageBytes)
	if err := c.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout)); err != nil {
		return err
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	sess := binding.Session{Conn: c, User: c.user}
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.ws.SetReadDeadline(time.Now().Add(cfg.PongTimeout)); err != nil {
			return err
		}
		if !limiter.Allow() {
			metrics.RateLimited.Inc()
			c.Send(binding.Reject(frame, binding.RateLimited()))
			continue
		}
		c.Send(s.demux.Handle(ctx, sess, frame))
	}
}

// writeLoop drains the outbox onto the socket.
func (c *conn) writeLoop(ctx context.Context, timeout time.Duration) error {
	for {
		frame, err := c.out.Next(ctx)
		if err != nil {
			if errors.Is(err, hub.ErrClosed) {
				deadline := time.Now().Add(timeout)
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
			}
			return err
		}
		if err := c.ws.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			slog.Debug("write failed", "conn", c.id, "error", err)
			return err
		}
	}
}

// pingLoop keeps the read deadline alive on idle connections.
// WriteControl may run concurrently with writeLoop.
func (c *conn) pingLoop(ctx context.Context, interval, timeout time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout)); err != nil {
				return err
			}
		}
	}
}
