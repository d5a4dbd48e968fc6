// Package display derives the ordered list of visual messages from the
// finalized history plus the live streaming state.
package display

import (
	"hash/fnv"
	"strconv"

	"github.com/neomind/console/pkg/chat"
	"github.com/neomind/console/pkg/stream"
)

// Entry is one visual bubble. Live marks the in-flight assistant response,
// which is re-derived on every accumulation update and never part of the
// finalized list.
type Entry struct {
	chat.Message
	Live bool
}

// Projector is a pure, idempotent transform. It never mutates its inputs.
// It returns a fresh slice whenever the effective content changed and the
// identical slice when nothing did, so the rendering layer can use cheap
// reference equality for change detection.
type Projector struct {
	lastHash uint64
	lastOut  []Entry
}

func NewProjector() *Projector {
	return &Projector{}
}

// Project merges the finalized messages with the optional live state into
// the display list.
//
// Servers may persist one logical assistant turn as several fragment
// records; consecutive assistant records merge into a single entry.
// Internal tool-role records are never rendered.
func (p *Projector) Project(messages []chat.Message, live *stream.State) []Entry {
	h := fingerprint(messages, live)
	if p.lastOut != nil && h == p.lastHash {
		return p.lastOut
	}

	out := make([]Entry, 0, len(messages)+1)
	for _, msg := range messages {
		if msg.Role == chat.MessageRoleTool {
			continue
		}

		if msg.Role == chat.MessageRoleAssistant && len(out) > 0 {
			last := &out[len(out)-1]
			if last.Role == chat.MessageRoleAssistant && !last.Live {
				// Fragment continuation: concatenate content, first
				// fragment's thinking and tool calls win.
				last.Content += msg.Content
				if last.Thinking == "" {
					last.Thinking = msg.Thinking
				}
				if len(last.ToolCalls) == 0 {
					last.ToolCalls = msg.ToolCalls
				}
				continue
			}
		}

		out = append(out, Entry{Message: msg})
	}

	if live != nil {
		out = append(out, Entry{
			Message: chat.Message{
				ID:        live.MessageID,
				Role:      chat.MessageRoleAssistant,
				Content:   live.Content,
				Thinking:  live.Thinking,
				ToolCalls: live.ToolCalls,
			},
			Live: true,
		})
	}

	p.lastHash = h
	p.lastOut = out
	return out
}

// fingerprint captures everything that can change the projection output:
// message identity and order, content and thinking, tool-call resolution,
// and the live state.
func fingerprint(messages []chat.Message, live *stream.State) uint64 {
	h := fnv.New64a()
	buf := make([]byte, 0, 64)

	writeField := func(s string) {
		buf = strconv.AppendInt(buf[:0], int64(len(s)), 10)
		buf = append(buf, ':')
		h.Write(buf)
		h.Write([]byte(s))
	}
	writeCalls := func(calls []chat.ToolCall) {
		for i := range calls {
			writeField(calls[i].Name)
			writeField(calls[i].Result)
			if calls[i].Resolved {
				h.Write([]byte{1})
			} else {
				h.Write([]byte{0})
			}
		}
	}

	for i := range messages {
		msg := &messages[i]
		writeField(msg.ID)
		writeField(string(msg.Role))
		writeField(msg.Content)
		writeField(msg.Thinking)
		writeCalls(msg.ToolCalls)
	}

	if live != nil {
		h.Write([]byte{0xff})
		writeField(live.MessageID)
		writeField(live.Content)
		writeField(live.Thinking)
		writeCalls(live.ToolCalls)
	}

	return h.Sum64()
}
