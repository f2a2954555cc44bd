// Package server is a websocket kanaime host. Each connection owns one
// session; clients send key events as JSON and receive the commands to apply.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"kanaime/internal/config"
	"kanaime/internal/health"
	"kanaime/internal/ime"
	"kanaime/internal/metrics"
)

// Client message types.
const (
	TypeKey   = "key"
	TypeFlush = "flush"
	TypeReset = "reset"
	TypePing  = "ping"
)

// Server message types.
const (
	TypeHello       = "hello"
	TypeCommit      = "commit"
	TypePassthrough = "passthrough"
	TypePong        = "pong"
	TypeError       = "error"
)

// Request is a client message.
type Request struct {
	Type   string          `json:"type"`
	Symbol string          `json:"symbol,omitempty"`
	TS     json.RawMessage `json:"ts,omitempty"`
}

// CommandJSON is one command in a commit reply.
type CommandJSON struct {
	Text   string `json:"text"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

// Response is a server message.
type Response struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Commands  []CommandJSON   `json:"commands,omitempty"`
	Pending   string          `json:"pending"`
	State     string          `json:"state,omitempty"`
	Symbol    string          `json:"symbol,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	TS        json.RawMessage `json:"ts,omitempty"`
}

// Config configures a Server.
type Config struct {
	// ReadTimeout closes connections idle for longer. Zero disables it.
	ReadTimeout time.Duration

	// MaxMessageBytes is the largest accepted message.
	MaxMessageBytes int64

	// AllowedOrigins lists accepted Origin headers. Empty accepts same-host
	// requests only; "*" accepts all.
	AllowedOrigins []string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Observer, if set, sees every batch of committed commands.
	Observer ime.CommitObserver

	// Metrics defaults to a fresh set in the "kanaime" namespace.
	Metrics *metrics.Metrics

	// Health defaults to a checker with the sessions check registered.
	Health *health.Checker
}

// FromSettings converts the server section of the configuration.
func FromSettings(s config.ServerConfig) Config {
	return Config{
		ReadTimeout:     s.ReadTimeout(),
		MaxMessageBytes: s.MaxMessageBytes,
		AllowedOrigins:  s.AllowedOrigins,
	}
}

// Server serves kanaime sessions over websockets.
type Server struct {
	sessions *ime.SessionManager
	config   Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	health   *health.Checker
	observer ime.CommitObserver
	upgrader websocket.Upgrader
}

// New creates a server that opens sessions on sessions.
func New(sessions *ime.SessionManager, config Config) *Server {
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = 4096
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := config.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	checker := config.Health
	if checker == nil {
		checker = health.NewChecker()
		checker.RegisterFunc("sessions", true, health.SessionsCheck(sessions))
	}

	s := &Server{
		sessions: sessions,
		config:   config,
		logger:   logger.With("component", "server"),
		metrics:  m,
		health:   checker,
		observer: ime.Observers(config.Observer, m),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if len(config.AllowedOrigins) > 0 {
		s.upgrader.CheckOrigin = s.checkOrigin
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Routes returns the HTTP handler: the websocket at /ws, health probes and
// metrics.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.Handle)
	mux.Handle("/healthz", s.health.HealthHandler())
	mux.Handle("/livez", s.health.LivenessHandler())
	mux.Handle("/readyz", s.health.ReadinessHandler())
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Health returns the server's health checker.
func (s *Server) Health() *health.Checker {
	return s.health
}

// Handle upgrades the request and serves one session until the client
// disconnects.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session := s.sessions.Open(ime.SessionOptions{AppID: "websocket", DocID: r.RemoteAddr})
	logger := s.logger.With("session_id", session.ID)
	logger.Info("session opened", "remote", r.RemoteAddr)
	s.metrics.SessionOpened()
	s.metrics.Connections.Inc()

	defer func() {
		cmds, err := s.sessions.Close(session.ID)
		if err == nil {
			s.observe(cmds)
		}
		s.metrics.SessionClosed()
		s.metrics.Connections.Dec()
		logger.Info("session closed")
	}()

	conn.SetReadLimit(s.config.MaxMessageBytes)
	s.bumpDeadline(conn)
	conn.SetPongHandler(func(string) error {
		s.bumpDeadline(conn)
		return nil
	})

	if err := conn.WriteJSON(Response{
		Type:      TypeHello,
		SessionID: session.ID,
		State:     session.Engine.State().String(),
	}); err != nil {
		logger.Warn("write failed", "error", err)
		return
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("ws read error", "error", err)
			}
			return
		}
		s.bumpDeadline(conn)
		if mt != websocket.TextMessage {
			continue
		}
		s.metrics.MessagesTotal.Inc()

		resp := s.dispatch(session, data, logger)
		if resp.Type == TypeError || resp.Type == TypePassthrough {
			s.metrics.ErrorsTotal.Inc()
		}
		if err := conn.WriteJSON(resp); err != nil {
			logger.Warn("write failed", "error", err)
			return
		}
	}
}

func (s *Server) bumpDeadline(conn *websocket.Conn) {
	if s.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}
}

// dispatch handles one client message and builds the reply.
func (s *Server) dispatch(session *ime.Session, data []byte, logger *slog.Logger) Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Response{Type: TypeError, Detail: "invalid json"}
	}

	engine := session.Engine
	switch req.Type {
	case TypeKey:
		sym, err := decodeKey(req.Symbol)
		if err != nil {
			logger.Debug("symbol rejected", "error", err)
			return Response{
				Type:    TypePassthrough,
				Symbol:  req.Symbol,
				Detail:  err.Error(),
				Pending: engine.Pending(),
				State:   engine.State().String(),
			}
		}
		start := time.Now()
		cmds := engine.Step(sym)
		s.metrics.TimeKey(start)
		return s.commit(engine, cmds)

	case TypeFlush:
		return s.commit(engine, engine.Flush())

	case TypeReset:
		engine.Reset()
		return s.commit(engine, nil)

	case TypePing:
		return Response{Type: TypePong, TS: req.TS, Pending: engine.Pending()}

	default:
		return Response{Type: TypeError, Detail: "unknown message type"}
	}
}

// decodeKey accepts a single character or the name "backspace".
func decodeKey(symbol string) (ime.Symbol, error) {
	if symbol == "backspace" {
		return ime.Backspace, nil
	}
	return ime.DecodeSymbol(symbol)
}

func (s *Server) commit(engine *ime.Engine, cmds []ime.Command) Response {
	s.observe(cmds)

	out := make([]CommandJSON, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, CommandJSON{Text: c.Text, Kind: c.Kind.String(), Source: c.Source})
	}
	return Response{
		Type:     TypeCommit,
		Commands: out,
		Pending:  engine.Pending(),
		State:    engine.State().String(),
	}
}

func (s *Server) observe(cmds []ime.Command) {
	if len(cmds) > 0 && s.observer != nil {
		s.observer.Observe(cmds)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. ready, if not nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.logger.Info("listening", "addr", ln.Addr().String())
	s.health.SetReady(true)
	defer s.health.SetReady(false)
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
