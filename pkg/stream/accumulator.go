// Package stream implements the accumulator that builds one logical
// assistant message out of many incremental frames.
package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/neomind/console/pkg/chat"
	"github.com/neomind/console/pkg/frames"
	"github.com/neomind/console/pkg/session"
)

// Phase is the accumulator's lifecycle state for the current response.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStreaming
)

// State mirrors the assistant message under construction. It is a snapshot:
// mutations happen only inside the Accumulator.
type State struct {
	MessageID string
	Content   string
	Thinking  string
	ToolCalls []chat.ToolCall
}

func (s State) empty() bool {
	return s.Content == "" && s.Thinking == "" && len(s.ToolCalls) == 0
}

// Accumulator is a state machine with at most one active streaming state
// at a time. Frame application happens on the dispatcher's delivery
// goroutine; other goroutines read snapshots and trigger restore/reset,
// so all state is mutex-protected. Callbacks fire with the lock held and
// must not call back into the accumulator.
//
// A content-bearing frame arriving while idle re-enters streaming implicitly:
// that is deliberate tolerance for minor reordering, not an error.
type Accumulator struct {
	store *session.Store

	mu         sync.Mutex
	phase      Phase
	state      State
	reservedID string

	// onUpdate fires after every visible change so the display layer can
	// re-project. onError fires when a stream aborts.
	onUpdate func()
	onError  func(message string)
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithUpdateFunc registers the change notification callback.
func WithUpdateFunc(fn func()) Option {
	return func(a *Accumulator) { a.onUpdate = fn }
}

// WithErrorFunc registers the stream-abort callback.
func WithErrorFunc(fn func(message string)) Option {
	return func(a *Accumulator) { a.onError = fn }
}

func New(store *session.Store, opts ...Option) *Accumulator {
	a := &Accumulator{store: store}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reserve assigns the message id for the next assistant response. It is
// called when the user's send action fires, so the id exists before any
// content does and a stray tool-result frame can still be associated after
// finalization.
func (a *Accumulator) Reserve() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reservedID = chat.NewID()
	return a.reservedID
}

// Streaming returns a snapshot of the in-flight state and whether one exists.
func (a *Accumulator) Streaming() (State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseStreaming {
		return State{}, false
	}
	snapshot := a.state
	snapshot.ToolCalls = append([]chat.ToolCall(nil), a.state.ToolCalls...)
	return snapshot, true
}

// Restore injects a pending stream's recovered text. Subsequent frames
// append after the restored text, they never replace it.
func (a *Accumulator) Restore(content, thinking string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enterStreaming()
	a.state.Content = content + a.state.Content
	a.state.Thinking = thinking + a.state.Thinking
	a.notify()
}

// Reset drops any in-flight state without persisting it.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.phase = PhaseIdle
	a.state = State{}
	a.notify()
}

func (a *Accumulator) enterStreaming() {
	if a.phase == PhaseStreaming {
		return
	}
	a.phase = PhaseStreaming
	id := a.reservedID
	if id == "" {
		id = chat.NewID()
	}
	a.state = State{MessageID: id}
}

// Apply feeds one inbound frame through the state machine. Frames outside
// the streaming vocabulary are ignored.
func (a *Accumulator) Apply(frame frames.Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch f := frame.(type) {
	case *frames.ThinkingFrame:
		a.enterStreaming()
		a.state.Thinking += f.Content
		a.notify()

	case *frames.ContentFrame:
		a.enterStreaming()
		a.state.Content += f.Content
		a.notify()

	case *frames.ToolCallStartFrame:
		a.enterStreaming()
		a.state.ToolCalls = append(a.state.ToolCalls, chat.ToolCall{
			ID:        chat.NewID(),
			Name:      f.Tool,
			Arguments: compactArgs(f.Arguments),
		})
		a.notify()

	case *frames.ToolCallEndFrame:
		a.resolveToolCall(f.Tool, f.Result)

	case *frames.EndFrame:
		a.finalize()

	case *frames.ErrorFrame:
		// Abort without persisting; stale partial content must not
		// linger on screen.
		slog.Warn("Stream aborted", "error", f.Message)
		a.phase = PhaseIdle
		a.state = State{}
		if a.onError != nil {
			a.onError(f.Message)
		}
		a.notify()
	}
}

// resolveToolCall matches an end frame to the last unresolved call with the
// same tool name. The protocol carries no call id, so this is best-effort:
// concurrent calls to the same tool are paired in reverse start order. When
// no live match exists the already-finalized history is patched instead,
// since tool execution may legitimately outlive the text stream.
func (a *Accumulator) resolveToolCall(tool, result string) {
	if a.phase == PhaseStreaming {
		for i := len(a.state.ToolCalls) - 1; i >= 0; i-- {
			call := &a.state.ToolCalls[i]
			if call.Name == tool && !call.Resolved {
				call.Result = result
				call.Resolved = true
				a.notify()
				return
			}
		}
	}

	if !a.store.ResolveToolCall(tool, result) {
		slog.Warn("Dropping tool result with no matching call", "tool", tool)
	}
}

// finalize turns the accumulated state into a persisted message. An empty
// stream produces nothing.
func (a *Accumulator) finalize() {
	if a.phase != PhaseStreaming || a.state.empty() {
		a.phase = PhaseIdle
		a.state = State{}
		a.reservedID = ""
		a.notify()
		return
	}

	msg := chat.Message{
		ID:        a.state.MessageID,
		Role:      chat.MessageRoleAssistant,
		Content:   a.state.Content,
		Thinking:  a.state.Thinking,
		ToolCalls: a.state.ToolCalls,
		Timestamp: time.Now(),
	}
	a.store.Append(msg)

	a.phase = PhaseIdle
	a.state = State{}
	a.reservedID = ""
	a.notify()
}

func (a *Accumulator) notify() {
	if a.onUpdate != nil {
		a.onUpdate()
	}
}

func compactArgs(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return string(raw)
}
