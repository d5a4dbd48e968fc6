package frames

import (
	"encoding/json"
	"fmt"
)

// UnknownTypeError is returned by Decode for frame types outside the
// vocabulary. Callers drop these with a warning; the stream keeps flowing.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown frame type %q", e.Type)
}

// IsPing reports whether raw is a heartbeat ping without fully decoding it.
func IsPing(raw []byte) bool {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return false
	}
	return envelope.Type == TypePing
}

// Decode parses a raw transport payload into a typed frame.
func Decode(raw []byte) (Frame, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	var frame Frame
	switch envelope.Type {
	case TypeThinking:
		frame = &ThinkingFrame{}
	case TypeContent:
		frame = &ContentFrame{}
	case TypeToolCallStart:
		frame = &ToolCallStartFrame{}
	case TypeToolCallEnd:
		frame = &ToolCallEndFrame{}
	case TypeEnd:
		frame = &EndFrame{}
	case TypeError:
		frame = &ErrorFrame{}
	case TypeSessionCreated:
		frame = &SessionCreatedFrame{}
	case TypeSessionSwitched:
		frame = &SessionSwitchedFrame{}
	case TypeHistory:
		frame = &HistoryFrame{}
	case TypeHistoryComplete:
		frame = &HistoryCompleteFrame{}
	case TypeSystem:
		frame = &SystemFrame{}
	case TypePing:
		frame = &PingFrame{}
	default:
		return nil, &UnknownTypeError{Type: envelope.Type}
	}

	if err := json.Unmarshal(raw, frame); err != nil {
		return nil, fmt.Errorf("malformed %s frame: %w", envelope.Type, err)
	}
	return frame, nil
}
