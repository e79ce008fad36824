// Package transport serves bindings to websocket clients.
//
// Each connection runs three goroutines: a reader that dispatches frames
// in order, a writer that drains the connection's outbox, and a pinger.
// When any of them stops the connection is torn down and removed from
// every group it joined.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/bindery/internal/auth"
	"github.com/roach88/bindery/internal/binding"
	"github.com/roach88/bindery/internal/config"
	"github.com/roach88/bindery/internal/hub"
	"github.com/roach88/bindery/internal/metrics"
)

// Pinger reports whether a backing service is reachable.
// *store.Store satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front end.
type Server struct {
	demux    *binding.Demux
	hub      *hub.Hub
	auth     auth.Authenticator
	health   Pinger
	cfg      config.TransportConfig
	connIDs  func() string
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithAuthenticator sets how connecting clients are identified.
// Without one every client is anonymous.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithHealthCheck makes /healthz report p's status.
func WithHealthCheck(p Pinger) Option {
	return func(s *Server) { s.health = p }
}

// WithTransportConfig sets connection limits and timeouts.
func WithTransportConfig(cfg config.TransportConfig) Option {
	return func(s *Server) { s.cfg = cfg }
}

// WithConnIDs overrides connection id generation.
func WithConnIDs(fn func() string) Option {
	return func(s *Server) { s.connIDs = fn }
}

// New creates a server dispatching to d and fanning out through h.
func New(d *binding.Demux, h *hub.Hub, opts ...Option) *Server {
	s := &Server{
		demux:   d,
		hub:     h,
		cfg:     config.Default().Transport,
		connIDs: uuid.NewString,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestLogger())
	s.engine.GET("/ws", s.handleWS)
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve accepts connections on ln until ctx is done. Open websocket
// connections are closed when ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("listening", "addr", ln.Addr().String(), "streams", s.demux.Streams())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "streams": s.demux.Streams()})
}

func (s *Server) handleWS(c *gin.Context) {
	user := auth.Anonymous()
	if s.auth != nil {
		u, err := s.auth.Authenticate(c.Request)
		if err != nil {
			slog.Debug("websocket auth failed", "remote", c.ClientIP(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": binding.DetailPermissionDenied})
			return
		}
		user = u
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("failed to upgrade the websocket", "error", err)
		return
	}

	cn := newConn(s.connIDs(), user, ws)
	s.serveConn(c.Request.Context(), cn)
}

// serveConn blocks until the connection ends.
func (s *Server) serveConn(ctx context.Context, cn *conn) {
	metrics.Connections.Inc()
	defer metrics.Connections.Dec()
	slog.Info("connection opened", "conn", cn.id, "user", cn.user.Name)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cn.readLoop(gctx, s) })
	g.Go(func() error { return cn.writeLoop(gctx, s.cfg.WriteTimeout) })
	g.Go(func() error { return cn.pingLoop(gctx, s.cfg.PingInterval, s.cfg.WriteTimeout) })
	g.Go(func() error {
		<-gctx.Done()
		cn.out.Close()
		return cn.ws.Close()
	})
	err := g.Wait()

	left := s.hub.Groups(cn.id)
	s.hub.Disconnect(context.Background(), cn)
	slog.Info("connection closed", "conn", cn.id, "reason", closeReason(err), "groups", left)
}

func closeReason(err error) string {
	var ce *websocket.CloseError
	switch {
	case err == nil:
		return "shutdown"
	case errors.As(err, &ce):
		return ce.Error()
	case errors.Is(err, context.Canceled):
		return "shutdown"
	default:
		return err.Error()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
