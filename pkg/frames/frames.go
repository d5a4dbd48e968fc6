// Package frames defines the closed vocabulary of messages exchanged with
// the server over the live transport, and the decoder/dispatcher that turns
// raw transport payloads into typed frames.
package frames

import (
	"encoding/json"

	"github.com/neomind/console/pkg/chat"
)

// Frame type discriminators as they appear on the wire.
const (
	TypeThinking        = "Thinking"
	TypeContent         = "Content"
	TypeToolCallStart   = "ToolCallStart"
	TypeToolCallEnd     = "ToolCallEnd"
	TypeEnd             = "end"
	TypeError           = "Error"
	TypeSessionCreated  = "session_created"
	TypeSessionSwitched = "session_switched"
	TypeHistory         = "history"
	TypeHistoryComplete = "history_complete"
	TypeSystem          = "system"
	TypePing            = "ping"
	TypePong            = "pong"
)

type Frame interface {
	isFrame()
	// Session returns the session the frame belongs to, if any.
	Session() string
}

// SessionContext carries the session attribution shared by most frames.
type SessionContext struct {
	SessionID string `json:"sessionId,omitempty"`
}

// Session returns the session id for frames embedding SessionContext.
func (s SessionContext) Session() string { return s.SessionID }

// ThinkingFrame is a reasoning-channel text fragment.
type ThinkingFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	SessionContext
}

func Thinking(sessionID, content string) *ThinkingFrame {
	return &ThinkingFrame{
		Type:           TypeThinking,
		Content:        content,
		SessionContext: SessionContext{SessionID: sessionID},
	}
}

func (f *ThinkingFrame) isFrame() {}

// ContentFrame is an answer-channel text fragment.
type ContentFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	SessionContext
}

func Content(sessionID, content string) *ContentFrame {
	return &ContentFrame{
		Type:           TypeContent,
		Content:        content,
		SessionContext: SessionContext{SessionID: sessionID},
	}
}

func (f *ContentFrame) isFrame() {}

// ToolCallStartFrame signals that a tool invocation began.
type ToolCallStartFrame struct {
	Type      string          `json:"type"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	SessionContext
}

func ToolCallStart(sessionID, tool string, arguments json.RawMessage) *ToolCallStartFrame {
	return &ToolCallStartFrame{
		Type:           TypeToolCallStart,
		Tool:           tool,
		Arguments:      arguments,
		SessionContext: SessionContext{SessionID: sessionID},
	}
}

func (f *ToolCallStartFrame) isFrame() {}

// ToolCallEndFrame signals that a tool invocation finished. The protocol
// correlates start and end by tool name only; there is no call id.
type ToolCallEndFrame struct {
	Type    string `json:"type"`
	Tool    string `json:"tool"`
	Result  string `json:"result"`
	Success *bool  `json:"success,omitempty"`
	SessionContext
}

func ToolCallEnd(sessionID, tool, result string, success bool) *ToolCallEndFrame {
	return &ToolCallEndFrame{
		Type:           TypeToolCallEnd,
		Tool:           tool,
		Result:         result,
		Success:        &success,
		SessionContext: SessionContext{SessionID: sessionID},
	}
}

func (f *ToolCallEndFrame) isFrame() {}

// EndFrame terminates a response stream.
type EndFrame struct {
	Type string `json:"type"`
	SessionContext
}

func End(sessionID string) *EndFrame {
	return &EndFrame{Type: TypeEnd, SessionContext: SessionContext{SessionID: sessionID}}
}

func (f *EndFrame) isFrame() {}

// ErrorFrame aborts the current response with an error. It does not tear
// down the connection or the session.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	SessionContext
}

func Error(sessionID, message string) *ErrorFrame {
	return &ErrorFrame{
		Type:           TypeError,
		Message:        message,
		SessionContext: SessionContext{SessionID: sessionID},
	}
}

func (f *ErrorFrame) isFrame() {}

// SessionCreatedFrame reports that the server created a session for this
// connection, out of band of streaming.
type SessionCreatedFrame struct {
	Type string `json:"type"`
	SessionContext
}

func SessionCreated(sessionID string) *SessionCreatedFrame {
	return &SessionCreatedFrame{Type: TypeSessionCreated, SessionContext: SessionContext{SessionID: sessionID}}
}

func (f *SessionCreatedFrame) isFrame() {}

// SessionSwitchedFrame reports that the connection is now bound to a
// different session.
type SessionSwitchedFrame struct {
	Type string `json:"type"`
	SessionContext
}

func SessionSwitched(sessionID string) *SessionSwitchedFrame {
	return &SessionSwitchedFrame{Type: TypeSessionSwitched, SessionContext: SessionContext{SessionID: sessionID}}
}

func (f *SessionSwitchedFrame) isFrame() {}

// HistoryFrame replays one persisted message after connect or session switch.
type HistoryFrame struct {
	Type      string          `json:"type"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Thinking  string          `json:"thinking,omitempty"`
	ToolCalls []chat.ToolCall `json:"toolCalls,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	SessionContext
}

func (f *HistoryFrame) isFrame() {}

// HistoryCompleteFrame marks the end of a history replay.
type HistoryCompleteFrame struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
	SessionContext
}

func (f *HistoryCompleteFrame) isFrame() {}

// SystemFrame is the server's connection banner. Informational only.
type SystemFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	SessionContext
}

func (f *SystemFrame) isFrame() {}

// PingFrame is the server's application-level heartbeat. The transport
// answers it with a pong; it is never dispatched to subscribers.
type PingFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (f *PingFrame) isFrame()        {}
func (f *PingFrame) Session() string { return "" }

// Pong is the outbound reply to a PingFrame.
type Pong struct {
	Type string `json:"type"`
}

func NewPong() Pong {
	return Pong{Type: TypePong}
}
