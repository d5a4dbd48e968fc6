// Package session holds the client-side conversation state: the current
// session binding and the append-only store of finalized messages.
//
// The store is the single process-wide state container for chat state.
// Every mutation goes through one of the exported action methods; readers
// only ever see snapshots. The server remains the source of truth for
// persisted history, which is rehydrated through ReplaceHistory when the
// server replays it on connect or session switch.
package session

import (
	"log/slog"
	"sync"

	"github.com/neomind/console/pkg/chat"
)

// Store owns the finalized message list for the bound session.
//
// It is append-only with one documented exception: a tool call's result may
// be patched after its message was finalized, because tool execution can
// outlive the text stream.
type Store struct {
	mu        sync.RWMutex
	sessionID string
	messages  []chat.Message
	rev       uint64
}

func NewStore() *Store {
	return &Store{}
}

// SessionID returns the currently bound session id.
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// BindSession binds the store to a session. Binding a different session
// clears the message list; rebinding the same session is a no-op so a
// reconnect does not wipe local history.
func (s *Store) BindSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID == id {
		return
	}
	slog.Debug("Binding session", "session_id", id, "previous", s.sessionID)
	s.sessionID = id
	s.messages = nil
	s.rev++
}

// Append adds a finalized message to the history.
func (s *Store) Append(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.rev++
}

// ReplaceHistory swaps in the server's replayed history wholesale.
func (s *Store) ReplaceHistory(msgs []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([]chat.Message(nil), msgs...)
	s.rev++
}

// Messages returns a snapshot of the finalized history. Tool call slices
// are copied too, because ResolveToolCall patches them in place after
// finalization.
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	for i := range out {
		if len(out[i].ToolCalls) > 0 {
			out[i].ToolCalls = append([]chat.ToolCall(nil), out[i].ToolCalls...)
		}
	}
	return out
}

// Len returns the number of finalized messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Revision increments on every mutation. The display layer uses it to
// decide whether a re-projection is needed.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// ResolveToolCall patches the result of an already-finalized tool call.
// It scans messages newest-first for the last unresolved call with the
// given tool name and reports whether a call was patched.
func (s *Store) ResolveToolCall(tool, result string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		msg := &s.messages[i]
		if msg.Role != chat.MessageRoleAssistant {
			continue
		}
		for j := len(msg.ToolCalls) - 1; j >= 0; j-- {
			call := &msg.ToolCalls[j]
			if call.Name == tool && !call.Resolved {
				call.Result = result
				call.Resolved = true
				s.rev++
				return true
			}
		}
	}
	return false
}
