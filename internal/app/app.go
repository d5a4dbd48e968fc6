// Package app wires the transport, frame dispatch, streaming accumulation,
// recovery, and display projection into one session pipeline, and feeds UI
// notifications through a single events channel.
package app

import (
	"context"
	"strings"
	"time"

	"github.com/neomind/console/pkg/api"
	"github.com/neomind/console/pkg/chat"
	"github.com/neomind/console/pkg/config"
	"github.com/neomind/console/pkg/connection"
	"github.com/neomind/console/pkg/display"
	"github.com/neomind/console/pkg/frames"
	"github.com/neomind/console/pkg/recovery"
	"github.com/neomind/console/pkg/session"
	"github.com/neomind/console/pkg/stream"
)

// Event is a UI notification. The concrete types below are everything
// the channel carries.
type Event any

// UpdatedEvent signals that the display list may have changed.
type UpdatedEvent struct{}

// StateEvent reports a connection-state transition.
type StateEvent struct {
	State connection.State
	Err   error
}

// OfferEvent surfaces a recoverable pending stream. The UI answers with
// RestorePending or DiscardPending.
type OfferEvent struct {
	Offer recovery.Offer
}

// NoticeEvent carries a server-issued informational message.
type NoticeEvent struct {
	Content string
}

// StreamErrorEvent reports a failed response. The partial text was
// already dropped.
type StreamErrorEvent struct {
	Message string
}

// App owns one chat session end to end.
type App struct {
	conn       *connection.Conn
	client     *api.Client
	dispatcher *frames.Dispatcher
	store      *session.Store
	acc        *stream.Accumulator
	recovery   *recovery.Coordinator
	projector  *display.Projector

	events  chan Event
	history []chat.Message
}

// New builds the pipeline for the configured server. Nothing connects
// until Connect is called.
func New(cfg *config.Config) (*App, error) {
	a := &App{
		dispatcher: frames.NewDispatcher(),
		store:      session.NewStore(),
		projector:  display.NewProjector(),
		events:     make(chan Event, 128),
	}

	a.acc = stream.New(a.store,
		stream.WithUpdateFunc(func() { a.emit(UpdatedEvent{}) }),
		stream.WithErrorFunc(func(msg string) { a.emit(StreamErrorEvent{Message: msg}) }),
	)

	client, err := api.NewClient(cfg.ServerURL, api.WithToken(cfg.Token))
	if err != nil {
		return nil, err
	}
	a.client = client

	conn, err := connection.New(cfg.ServerURL, a.dispatcher, connection.WithToken(cfg.Token))
	if err != nil {
		return nil, err
	}
	a.conn = conn
	if cfg.Session != "" {
		conn.SetSession(cfg.Session)
	}

	a.recovery = recovery.New(client, a.acc, a.store.SessionID,
		recovery.WithOfferFunc(func(offer recovery.Offer) { a.emit(OfferEvent{Offer: offer}) }),
	)

	a.dispatcher.Subscribe(a.handleFrame)
	conn.OnState(func(state connection.State, err error) {
		a.emit(StateEvent{State: state, Err: err})
	})
	conn.OnReconnected(func() {
		go a.checkPending()
	})

	return a, nil
}

// Events is the notification stream consumed by the UI.
func (a *App) Events() <-chan Event {
	return a.events
}

func (a *App) emit(ev Event) {
	select {
	case a.events <- ev:
	default:
		// A stalled consumer must not wedge the read loop. Dropped
		// notifications are coalesced by the next UpdatedEvent.
	}
}

// Connect dials the server.
func (a *App) Connect(ctx context.Context) error {
	return a.conn.Connect(ctx)
}

// Close tears the connection down.
func (a *App) Close() {
	a.conn.Disconnect()
}

// State reports the current connection state.
func (a *App) State() (connection.State, error) {
	return a.conn.State()
}

// SessionID returns the bound session id, empty before the server has
// assigned one.
func (a *App) SessionID() string {
	return a.store.SessionID()
}

// Streaming reports the live accumulation snapshot.
func (a *App) Streaming() (stream.State, bool) {
	return a.acc.Streaming()
}

// RecoveryPending reports whether a restore/discard decision is open.
func (a *App) RecoveryPending() bool {
	return a.recovery.Pending()
}

// Messages projects the current display list.
func (a *App) Messages() []display.Entry {
	var live *stream.State
	if state, ok := a.acc.Streaming(); ok {
		live = &state
	}
	return a.projector.Project(a.store.Messages(), live)
}

// Send submits a user message. Control messages, starting with a slash,
// go to the server without entering local history.
func (a *App) Send(text string, images ...chat.Image) error {
	if err := a.recovery.GuardSend(); err != nil {
		return err
	}

	if !strings.HasPrefix(text, "/") {
		a.store.Append(chat.UserMessage(text, images...))
		a.acc.Reserve()
		a.emit(UpdatedEvent{})
	}

	a.conn.SendMessage(text, images...)
	return nil
}

// RestorePending resumes the offered stream locally.
func (a *App) RestorePending() {
	a.recovery.Restore()
	a.emit(UpdatedEvent{})
}

// DiscardPending drops the offered stream on both ends.
func (a *App) DiscardPending(ctx context.Context) error {
	err := a.recovery.Discard(ctx)
	a.emit(UpdatedEvent{})
	return err
}

func (a *App) checkPending() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.recovery.CheckPending(ctx)
}

// handleFrame runs on the read-loop goroutine, which is the only writer
// of the store and the accumulator.
func (a *App) handleFrame(frame frames.Frame) {
	switch f := frame.(type) {
	case *frames.SessionCreatedFrame:
		// A replay always starts after a session frame, so a partial buffer
		// left by an interrupted replay is stale at this point.
		a.history = nil
		a.bindSession(f.SessionID)
	case *frames.SessionSwitchedFrame:
		a.acc.Reset()
		a.history = nil
		a.bindSession(f.SessionID)
	case *frames.HistoryFrame:
		a.history = append(a.history, historyMessage(f))
	case *frames.HistoryCompleteFrame:
		a.store.ReplaceHistory(a.history)
		a.history = nil
		a.emit(UpdatedEvent{})
	case *frames.SystemFrame:
		a.emit(NoticeEvent{Content: f.Content})
	default:
		a.acc.Apply(frame)
	}
}

func (a *App) bindSession(id string) {
	a.store.BindSession(id)
	a.conn.SetSession(id)
	a.emit(UpdatedEvent{})
}

func historyMessage(f *frames.HistoryFrame) chat.Message {
	return chat.Message{
		ID:        chat.NewID(),
		Role:      chat.MessageRole(f.Role),
		Content:   f.Content,
		Thinking:  f.Thinking,
		ToolCalls: f.ToolCalls,
		Timestamp: time.UnixMilli(f.Timestamp),
	}
}
