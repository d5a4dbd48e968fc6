// Package fakeserver implements an in-process NeoMind server speaking the
// real chat protocol. It backs the demo command and the end-to-end tests,
// so nothing here talks to an actual model.
package fakeserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/neomind/console/pkg/api"
	"github.com/neomind/console/pkg/chat"
	"github.com/neomind/console/pkg/frames"
)

// Script produces the frames streamed back for one user message. The
// session id is stamped onto the frames by the server, so scripts can
// leave it empty.
type Script func(message string) []frames.Frame

// EchoScript is the default script: think briefly, then repeat the
// user's message back.
func EchoScript(message string) []frames.Frame {
	return []frames.Frame{
		frames.Thinking("", "The user said something, let me respond."),
		frames.Content("", "You said: "),
		frames.Content("", message),
	}
}

type sessionState struct {
	id      string
	history []chat.Message
}

type Server struct {
	e        *echo.Echo
	upgrader websocket.Upgrader
	token    string
	script   Script
	interval time.Duration
	delay    time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionState
	pending  map[string]*api.PendingStream
	conns    map[*websocket.Conn]struct{}
}

type Option func(*Server)

// WithToken makes the server reject connections and API calls that do
// not present the given token.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithScript replaces the default echo script.
func WithScript(script Script) Option {
	return func(s *Server) { s.script = script }
}

// WithHeartbeat sets the application-level ping interval. Zero disables
// the heartbeat.
func WithHeartbeat(interval time.Duration) Option {
	return func(s *Server) { s.interval = interval }
}

// WithFrameDelay inserts a pause between streamed frames so the demo
// looks like live generation. Tests leave it at zero.
func WithFrameDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

func New(opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		e:        e,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		script:   EchoScript,
		sessions: make(map[string]*sessionState),
		pending:  make(map[string]*api.PendingStream),
		conns:    make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	group := e.Group("/api")
	group.GET("/chat", s.handleChat)
	group.GET("/sessions", s.listSessions)
	group.POST("/sessions", s.createSession)
	group.DELETE("/sessions/:id", s.deleteSession)
	group.GET("/sessions/:id/pending", s.getPending)
	group.DELETE("/sessions/:id/pending", s.clearPending)

	return s
}

// Handler exposes the server for httptest.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start serves on addr and blocks.
func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

// Sessions returns the ids of all known sessions.
func (s *Server) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SetPending seeds a pending stream for a session, as if a response had
// kept generating after the client vanished.
func (s *Server) SetPending(sessionID string, pending api.PendingStream) {
	pending.HasPending = true
	pending.SessionID = sessionID
	s.mu.Lock()
	s.pending[sessionID] = &pending
	s.mu.Unlock()
}

// DropConnections force-closes every live websocket, simulating a
// network failure.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for ws := range s.conns {
		conns = append(conns, ws)
	}
	s.mu.Unlock()

	for _, ws := range conns {
		ws.Close()
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func fail(c echo.Context, code int, msg string) error {
	return c.JSON(code, envelope{Success: false, Error: msg})
}

func (s *Server) authorized(c echo.Context) bool {
	if s.token == "" {
		return true
	}
	auth := c.Request().Header.Get("Authorization")
	return auth == "Bearer "+s.token || c.QueryParam("token") == s.token
}

func (s *Server) listSessions(c echo.Context) error {
	if !s.authorized(c) {
		return fail(c, http.StatusUnauthorized, "invalid token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := make([]api.Session, 0, len(s.sessions))
	for id, state := range s.sessions {
		sessions = append(sessions, api.Session{ID: id, MessageCount: len(state.history)})
	}
	return ok(c, sessions)
}

func (s *Server) createSession(c echo.Context) error {
	if !s.authorized(c) {
		return fail(c, http.StatusUnauthorized, "invalid token")
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &sessionState{id: id}
	s.mu.Unlock()
	return ok(c, api.CreateSessionResponse{SessionID: id})
}

func (s *Server) deleteSession(c echo.Context) error {
	if !s.authorized(c) {
		return fail(c, http.StatusUnauthorized, "invalid token")
	}
	id := c.Param("id")
	s.mu.Lock()
	_, found := s.sessions[id]
	delete(s.sessions, id)
	delete(s.pending, id)
	s.mu.Unlock()
	if !found {
		return fail(c, http.StatusNotFound, "session not found")
	}
	return ok(c, api.DeleteSessionResponse{Deleted: true})
}

func (s *Server) getPending(c echo.Context) error {
	if !s.authorized(c) {
		return fail(c, http.StatusUnauthorized, "invalid token")
	}
	id := c.Param("id")
	s.mu.Lock()
	pending := s.pending[id]
	s.mu.Unlock()
	if pending == nil {
		return ok(c, api.PendingStream{HasPending: false})
	}
	return ok(c, pending)
}

func (s *Server) clearPending(c echo.Context) error {
	if !s.authorized(c) {
		return fail(c, http.StatusUnauthorized, "invalid token")
	}
	id := c.Param("id")
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
	return ok(c, api.ClearPendingResponse{Cleared: true})
}

func (s *Server) handleChat(c echo.Context) error {
	if !s.authorized(c) {
		return fail(c, http.StatusUnauthorized, "invalid token")
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conns[ws] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, ws)
		s.mu.Unlock()
		ws.Close()
	}()

	conn := &chatConn{server: s, ws: ws}
	conn.open(c.QueryParam("sessionId"))
	return conn.run()
}

// chatConn serializes all writes for one websocket. Frames go out from
// the read loop and the heartbeat ticker.
type chatConn struct {
	server  *Server
	ws      *websocket.Conn
	writeMu sync.Mutex
	session *sessionState
}

func (cc *chatConn) send(frame any) {
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	if err := cc.ws.WriteJSON(frame); err != nil {
		slog.Debug("Fake server write failed", "error", err)
	}
}

// open binds the connection to a session, creating one when the client
// did not name any, and replays persisted history.
func (cc *chatConn) open(sessionID string) {
	s := cc.server
	s.mu.Lock()
	state := s.sessions[sessionID]
	created := false
	if state == nil {
		state = &sessionState{id: uuid.NewString()}
		s.sessions[state.id] = state
		created = true
	}
	history := append([]chat.Message(nil), state.history...)
	s.mu.Unlock()
	cc.session = state

	cc.send(&frames.SystemFrame{
		Type:           frames.TypeSystem,
		Content:        "Connected to NeoMind",
		SessionContext: frames.SessionContext{SessionID: state.id},
	})
	if created {
		cc.send(frames.SessionCreated(state.id))
	} else {
		cc.send(frames.SessionSwitched(state.id))
	}
	for _, msg := range history {
		cc.send(&frames.HistoryFrame{
			Type:           frames.TypeHistory,
			Role:           string(msg.Role),
			Content:        msg.Content,
			Thinking:       msg.Thinking,
			ToolCalls:      msg.ToolCalls,
			Timestamp:      msg.Timestamp.UnixMilli(),
			SessionContext: frames.SessionContext{SessionID: state.id},
		})
	}
	cc.send(&frames.HistoryCompleteFrame{
		Type:           frames.TypeHistoryComplete,
		Count:          len(history),
		SessionContext: frames.SessionContext{SessionID: state.id},
	})
}

func (cc *chatConn) run() error {
	stop := make(chan struct{})
	defer close(stop)
	if cc.server.interval > 0 {
		go cc.heartbeat(stop)
	}

	for {
		_, raw, err := cc.ws.ReadMessage()
		if err != nil {
			return nil
		}
		cc.handleMessage(raw)
	}
}

func (cc *chatConn) heartbeat(stop <-chan struct{}) {
	ticker := time.NewTicker(cc.server.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cc.send(&frames.PingFrame{Type: frames.TypePing, Timestamp: time.Now().UnixMilli()})
		}
	}
}

func (cc *chatConn) handleMessage(raw []byte) {
	var req struct {
		Type      string       `json:"type"`
		Message   string       `json:"message"`
		SessionID string       `json:"sessionId"`
		Images    []chat.Image `json:"images"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Debug("Fake server dropped malformed payload", "error", err)
		return
	}
	if req.Type == frames.TypePong {
		return
	}
	if req.Message == "" {
		return
	}

	if strings.HasPrefix(req.Message, "/") {
		cc.send(&frames.SystemFrame{
			Type:           frames.TypeSystem,
			Content:        "Unknown command: " + req.Message,
			SessionContext: frames.SessionContext{SessionID: cc.session.id},
		})
		return
	}

	cc.recordUser(req.Message, req.Images)
	cc.respond(req.Message)
}

func (cc *chatConn) recordUser(message string, images []chat.Image) {
	msg := chat.UserMessage(message, images...)
	s := cc.server
	s.mu.Lock()
	cc.session.history = append(cc.session.history, msg)
	s.mu.Unlock()
}

// respond streams the scripted frames, stamps the session id on each,
// records the assistant turn, and terminates with an end frame.
func (cc *chatConn) respond(message string) {
	id := cc.session.id
	reply := chat.Message{
		ID:        chat.NewID(),
		Role:      chat.MessageRoleAssistant,
		Timestamp: time.Now(),
	}

	for _, frame := range cc.server.script(message) {
		switch f := frame.(type) {
		case *frames.ThinkingFrame:
			f.SessionID = id
			reply.Thinking += f.Content
		case *frames.ContentFrame:
			f.SessionID = id
			reply.Content += f.Content
		case *frames.ToolCallStartFrame:
			f.SessionID = id
			reply.ToolCalls = append(reply.ToolCalls, chat.ToolCall{
				ID:        chat.NewID(),
				Name:      f.Tool,
				Arguments: string(f.Arguments),
			})
		case *frames.ToolCallEndFrame:
			f.SessionID = id
			for i := len(reply.ToolCalls) - 1; i >= 0; i-- {
				if reply.ToolCalls[i].Name == f.Tool && !reply.ToolCalls[i].Resolved {
					reply.ToolCalls[i].Result = f.Result
					reply.ToolCalls[i].Resolved = true
					break
				}
			}
		case *frames.ErrorFrame:
			f.SessionID = id
		}
		cc.send(frame)
		if cc.server.delay > 0 {
			time.Sleep(cc.server.delay)
		}
	}

	if reply.Content != "" || reply.Thinking != "" || len(reply.ToolCalls) > 0 {
		s := cc.server
		s.mu.Lock()
		cc.session.history = append(cc.session.history, reply)
		s.mu.Unlock()
	}

	cc.send(frames.End(id))
}
