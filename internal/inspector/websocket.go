// File: internal/inspector/websocket.go
package inspector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-inspector/internal/observability"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Time allowed for in-flight HTTP requests when shutting down.
	shutdownGrace = 5 * time.Second
)

// Server exposes a Dispatcher to inspector UIs over websocket, one JSON request
// per text message, and serves /metrics when metrics are enabled. All
// connections share the same session.
type Server struct {
	dispatcher *Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	upgrader   websocket.Upgrader

	lost     chan error
	lostOnce sync.Once

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a Server. With no allowed origins only same-origin upgrades
// are accepted; "*" accepts any origin. metrics may be nil.
func NewServer(d *Dispatcher, allowedOrigins []string, metrics *observability.Metrics, logger *zap.Logger) *Server {
	return &Server{
		dispatcher: d,
		metrics:    metrics,
		logger:     logger.Named("ws_server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		lost:  make(chan error, 1),
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the HTTP routes: /ws and, with metrics, /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or the browser session is
// lost. Only the latter is reported as an error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: writeWait,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("Inspector listening.", zap.String("addr", ln.Addr().String()))

	var result error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down inspector server.")
	case err := <-s.lost:
		result = fmt.Errorf("browser session lost: %w", err)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving inspector: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Inspector server shutdown incomplete.", zap.Error(err))
	}
	// Hijacked websocket connections are not covered by Shutdown.
	s.closeConns()
	s.wg.Wait()
	return result
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.logger.Warn("Websocket upgrade failed.", zap.Error(err), zap.String("origin", r.Header.Get("Origin")))
		return
	}
	if !s.track(conn) {
		conn.Close()
		return
	}
	defer s.untrack(conn)

	log := s.logger.With(zap.String("client_id", uuid.New().String()))
	log.Info("Inspector client connected.", zap.String("remote", r.RemoteAddr))
	defer log.Info("Inspector client disconnected.")

	conn.SetReadLimit(maxRequestSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Websocket client read error", zap.Error(err))
			}
			return
		}

		resp, lost := s.dispatcher.Do(r.Context(), msg)

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
			log.Warn("Websocket client write error", zap.Error(err))
			return
		}

		if lost != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "browser session lost"),
				time.Now().Add(writeWait))
			s.signalLost(lost)
			return
		}
	}
}

// keepAlive pings the peer until done is closed. WriteControl may be called
// concurrently with the request loop's writes.
func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) signalLost(err error) {
	s.lostOnce.Do(func() { s.lost <- err })
}

// track registers conn for shutdown. It reports false once the server is closing.
func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
	s.wg.Done()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for conn := range s.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		// gorilla's default: same origin only.
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
