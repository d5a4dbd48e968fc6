package api

import "time"

// PendingStream is the server-reported snapshot of a response that was in
// flight when the connection dropped. It is consumed exactly once: either
// restored into the live streaming state or discarded on both ends.
type PendingStream struct {
	HasPending  bool   `json:"hasPending"`
	SessionID   string `json:"sessionId,omitempty"`
	UserMessage string `json:"userMessage,omitempty"`
	Content     string `json:"content,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Elapsed     int64  `json:"elapsed,omitempty"`
}

// Session is a session summary as returned by the sessions listing.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	MessageCount int       `json:"messageCount,omitempty"`
}

// CreateSessionResponse is the response from creating a session.
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// DeleteSessionResponse is the response from deleting a session.
type DeleteSessionResponse struct {
	Deleted   bool   `json:"deleted"`
	SessionID string `json:"sessionId"`
}

// ClearPendingResponse acknowledges a pending-stream discard.
type ClearPendingResponse struct {
	Cleared   bool   `json:"cleared"`
	SessionID string `json:"sessionId"`
}
