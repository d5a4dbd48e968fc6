// Package chat defines the conversation data model shared by the streaming
// pipeline, the message store and the display layer.
package chat

import (
	"time"

	"github.com/google/uuid"
)

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
	// MessageRoleTool is internal plumbing emitted by some servers.
	// It is stored but never rendered.
	MessageRoleTool MessageRole = "tool"
)

// ToolCall records a single tool invocation made by the assistant.
// Result stays empty and Resolved false until the tool completes, which may
// legitimately happen after the surrounding message has been finalized.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Result    string `json:"result,omitempty"`
	Resolved  bool   `json:"resolved"`
}

// Image is a user-attached image carried inline as base64 data.
type Image struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType,omitempty"`
}

// Message is one persisted unit of conversation. Once finalized it is
// immutable, except that a tool call's Result may be filled in afterwards.
type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Thinking  string      `json:"thinking,omitempty"`
	ToolCalls []ToolCall  `json:"toolCalls,omitempty"`
	Images    []Image     `json:"images,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewID returns a fresh opaque message identifier.
//
// User message ids are assigned at send time and assistant ids at
// stream-start time, so an id exists before any content does.
func NewID() string {
	return uuid.New().String()
}

// UserMessage creates a user message with optional image attachments.
func UserMessage(content string, images ...Image) Message {
	return Message{
		ID:        NewID(),
		Role:      MessageRoleUser,
		Content:   content,
		Images:    images,
		Timestamp: time.Now(),
	}
}

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{
		ID:        NewID(),
		Role:      MessageRoleSystem,
		Content:   content,
		Timestamp: time.Now(),
	}
}
