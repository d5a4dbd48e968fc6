// Package connection owns the single persistent websocket connection to the
// NeoMind server: connect/disconnect/send, connection-state fan-out, and
// automatic reconnection with backoff.
package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/neomind/console/pkg/chat"
	"github.com/neomind/console/pkg/frames"
)

// State is the connection lifecycle state. It drives UI affordances and
// gates whether sends are attempted.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// ChatRequest is the outbound "send user message" payload.
type ChatRequest struct {
	Message   string       `json:"message"`
	SessionID string       `json:"sessionId,omitempty"`
	Images    []chat.Image `json:"images,omitempty"`
}

// StateHandler observes connection-state transitions. err is non-nil only
// for StateError.
type StateHandler func(state State, err error)

// Conn maintains exactly one logical connection per session, re-establishing
// it transparently. Its identity is stable for the life of the process, and
// all subscriptions persist across reconnects.
type Conn struct {
	wsURL      *url.URL
	token      string
	dialer     *websocket.Dialer
	dispatcher *frames.Dispatcher
	newBackoff func() backoff.BackOff

	mu            sync.Mutex
	ws            *websocket.Conn
	state         State
	lastErr       error
	sessionID     string
	manual        bool
	everConnected bool
	generation    int
	connectCtx    context.Context
	cancelRetry   context.CancelFunc

	writeMu sync.Mutex

	subMu       sync.Mutex
	nextSubID   int
	stateSubs   []stateSub
	reconnSubs  []reconnSub
}

type stateSub struct {
	id int
	fn StateHandler
}

type reconnSub struct {
	id int
	fn func()
}

// Option configures a Conn.
type Option func(*Conn)

// WithToken sets the auth token passed in the websocket query string.
func WithToken(token string) Option {
	return func(c *Conn) { c.token = token }
}

// WithDialer sets a custom websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) { c.dialer = d }
}

// WithBackoff sets the factory producing the reconnect schedule. A fresh
// schedule is created for every disconnect.
func WithBackoff(factory func() backoff.BackOff) Option {
	return func(c *Conn) { c.newBackoff = factory }
}

// New creates a connection to the chat endpoint of the given server base
// URL (http or https). The connection starts disconnected.
func New(serverURL string, dispatcher *frames.Dispatcher, opts ...Option) (*Conn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/api/chat"

	c := &Conn{
		wsURL:      u,
		dialer:     websocket.DefaultDialer,
		dispatcher: dispatcher,
		state:      StateDisconnected,
		newBackoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 0 // retry until Disconnect
	return b
}

// State returns the current connection state and the last error, if any.
func (c *Conn) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.lastErr
}

// SetSession binds the session id used for dialing and outbound messages.
// It can be changed independently of sending.
func (c *Conn) SetSession(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// SessionID returns the bound session id.
func (c *Conn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// OnState subscribes to state transitions and returns an unsubscribe func.
func (c *Conn) OnState(fn StateHandler) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.stateSubs = append(c.stateSubs, stateSub{id: id, fn: fn})
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.stateSubs {
			if s.id == id {
				c.stateSubs = append(c.stateSubs[:i], c.stateSubs[i+1:]...)
				return
			}
		}
	}
}

// OnReconnected subscribes to the reconnected signal. It fires on every
// successful reconnect after an unexpected close, and never on the very
// first connect, so recovery-only logic runs exactly once per reconnect.
func (c *Conn) OnReconnected(fn func()) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.reconnSubs = append(c.reconnSubs, reconnSub{id: id, fn: fn})
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.reconnSubs {
			if s.id == id {
				c.reconnSubs = append(c.reconnSubs[:i], c.reconnSubs[i+1:]...)
				return
			}
		}
	}
}

// OnFrame subscribes to inbound frames via the dispatcher.
func (c *Conn) OnFrame(h frames.Handler) func() {
	return c.dispatcher.Subscribe(h)
}

func (c *Conn) setState(state State, err error) {
	c.mu.Lock()
	if c.state == state && err == nil {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.lastErr = err
	c.mu.Unlock()

	c.subMu.Lock()
	subs := make([]stateSub, len(c.stateSubs))
	copy(subs, c.stateSubs)
	c.subMu.Unlock()

	for _, s := range subs {
		s.fn(state, err)
	}
}

func (c *Conn) emitReconnected() {
	c.subMu.Lock()
	subs := make([]reconnSub, len(c.reconnSubs))
	copy(subs, c.reconnSubs)
	c.subMu.Unlock()

	for _, s := range subs {
		s.fn()
	}
}

func (c *Conn) dialURL() string {
	u := *c.wsURL
	q := u.Query()
	if c.token != "" {
		q.Set("token", c.token)
	}
	if c.sessionID != "" {
		q.Set("sessionId", c.sessionID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Connect establishes the connection. It is idempotent: a no-op when
// already connected or connecting.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting || c.state == StateReconnecting {
		c.mu.Unlock()
		return nil
	}
	c.manual = false
	c.connectCtx = ctx
	c.mu.Unlock()

	c.setState(StateConnecting, nil)

	ws, _, err := c.dialer.DialContext(ctx, c.dialURL(), nil)
	if err != nil {
		err = fmt.Errorf("dialing %s: %w", c.wsURL.Host, err)
		c.setState(StateError, err)
		return err
	}

	c.attach(ws, false)
	return nil
}

func (c *Conn) attach(ws *websocket.Conn, reconnected bool) {
	c.mu.Lock()
	c.ws = ws
	c.generation++
	gen := c.generation
	wasConnected := c.everConnected
	c.everConnected = true
	c.mu.Unlock()

	c.setState(StateConnected, nil)
	if reconnected && wasConnected {
		slog.Info("Reconnected", "host", c.wsURL.Host)
		c.emitReconnected()
	}

	go c.readLoop(ws, gen)
}

func (c *Conn) readLoop(ws *websocket.Conn, gen int) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}

		// Heartbeat is a transport concern: answer it here and keep it
		// out of the frame subscribers.
		if frames.IsPing(raw) {
			c.writeJSON(frames.NewPong())
			continue
		}

		c.dispatcher.Dispatch(raw)
	}
}

func (c *Conn) handleClose(gen int, cause error) {
	c.mu.Lock()
	if gen != c.generation {
		// A newer connection replaced this one already.
		c.mu.Unlock()
		return
	}
	c.ws = nil
	manual := c.manual
	base := c.connectCtx
	c.mu.Unlock()

	if manual || base == nil || base.Err() != nil {
		c.setState(StateDisconnected, nil)
		return
	}

	slog.Warn("Connection lost, reconnecting", "error", cause)
	c.setState(StateReconnecting, nil)

	// Every retry cycle derives from the original connect context, never
	// from a previous cycle, so cancel funcs do not chain across reconnects.
	retryCtx, cancel := context.WithCancel(base)
	c.mu.Lock()
	c.cancelRetry = cancel
	c.mu.Unlock()

	go c.retryLoop(retryCtx, cancel)
}

func (c *Conn) retryLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	var ws *websocket.Conn
	operation := func() error {
		var err error
		ws, _, err = c.dialer.DialContext(ctx, c.dialURL(), nil)
		if err != nil {
			slog.Debug("Reconnect attempt failed", "error", err)
		}
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackoff(), ctx)); err != nil {
		c.mu.Lock()
		manual := c.manual
		c.mu.Unlock()
		if manual {
			c.setState(StateDisconnected, nil)
		} else {
			c.setState(StateError, err)
		}
		return
	}

	c.attach(ws, true)
}

// Send transmits a payload on the live transport. Sends while not connected
// are dropped with a warning, never an error: the UI gates sending on the
// connection state independently.
func (c *Conn) Send(payload any) {
	c.mu.Lock()
	connected := c.state == StateConnected && c.ws != nil
	c.mu.Unlock()

	if !connected {
		slog.Warn("Dropping send while not connected")
		return
	}
	c.writeJSON(payload)
}

// SendMessage sends a user chat message bound to the current session.
func (c *Conn) SendMessage(text string, images ...chat.Image) {
	c.Send(ChatRequest{
		Message:   text,
		SessionID: c.SessionID(),
		Images:    images,
	})
}

func (c *Conn) writeJSON(payload any) {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.WriteJSON(payload); err != nil {
		slog.Warn("Write failed", "error", err)
	}
}

// Disconnect tears the connection down and halts auto-reconnect.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.manual = true
	ws := c.ws
	c.ws = nil
	cancel := c.cancelRetry
	c.cancelRetry = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}
	c.setState(StateDisconnected, nil)
}
