package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/neomind/console/internal/app"
	"github.com/neomind/console/pkg/chat"
	"github.com/neomind/console/pkg/display"
)

// transcript renders the projected display list into viewport content.
type transcript struct {
	markdown     *glamour.TermRenderer
	width        int
	hideThinking bool
}

func newTranscript(width int, hideThinking bool) *transcript {
	return &transcript{width: width, hideThinking: hideThinking, markdown: newMarkdown(width)}
}

func newMarkdown(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

func (t *transcript) setWidth(width int) {
	if width == t.width {
		return
	}
	t.width = width
	t.markdown = newMarkdown(width)
}

func (t *transcript) render(entries []display.Entry, spinnerView string) string {
	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		t.renderEntry(&b, entry, spinnerView)
	}
	return b.String()
}

func (t *transcript) renderEntry(b *strings.Builder, entry display.Entry, spinnerView string) {
	switch entry.Role {
	case chat.MessageRoleUser:
		b.WriteString(userLabelStyle.Render("You"))
		b.WriteString("\n")
		b.WriteString(entry.Content)
		if len(entry.Images) > 0 {
			fmt.Fprintf(b, "\n%s", systemStyle.Render(fmt.Sprintf("[%d image(s) attached]", len(entry.Images))))
		}
		b.WriteString("\n")

	case chat.MessageRoleSystem:
		b.WriteString(systemStyle.Render(entry.Content))
		b.WriteString("\n")

	case chat.MessageRoleAssistant:
		b.WriteString(assistantLabelStyle.Render("NeoMind"))
		b.WriteString("\n")
		if entry.Thinking != "" && !t.hideThinking {
			b.WriteString(thinkingStyle.Render(wrap(entry.Thinking, t.width)))
			b.WriteString("\n")
		}
		for _, call := range entry.ToolCalls {
			b.WriteString(toolCallStyle.Render(renderToolCall(call, spinnerView)))
			b.WriteString("\n")
		}
		if entry.Content != "" {
			b.WriteString(t.renderMarkdown(entry.Content))
		}
		if entry.Live {
			b.WriteString(spinnerView)
			b.WriteString("\n")
		}
	}
}

func renderToolCall(call chat.ToolCall, spinnerView string) string {
	head := "⚙ " + call.Name
	if call.Arguments != "" {
		head += " " + call.Arguments
	}
	if !call.Resolved {
		return head + " " + spinnerView
	}
	result := call.Result
	if len(result) > 120 {
		result = result[:120] + "…"
	}
	return head + " → " + result
}

func (t *transcript) renderMarkdown(content string) string {
	if t.markdown == nil {
		return content + "\n"
	}
	out, err := t.markdown.Render(content)
	if err != nil {
		return content + "\n"
	}
	return strings.TrimLeft(out, "\n")
}

// wrap is a plain greedy line wrapper for the thinking channel, which
// never goes through the markdown renderer.
func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	var b strings.Builder
	line := 0
	for _, word := range strings.Fields(s) {
		if line > 0 && line+1+len(word) > width {
			b.WriteString("\n")
			line = 0
		} else if line > 0 {
			b.WriteString(" ")
			line++
		}
		b.WriteString(word)
		line += len(word)
	}
	return b.String()
}

func offerPrompt(offer app.OfferEvent) string {
	var b strings.Builder
	b.WriteString("A response was still generating when the connection dropped.\n")
	if offer.Offer.UserMessage != "" {
		fmt.Fprintf(&b, "Question: %s\n", offer.Offer.UserMessage)
	}
	if offer.Offer.Stage != "" {
		fmt.Fprintf(&b, "Stage: %s (%ds elapsed)\n", offer.Offer.Stage, offer.Offer.Elapsed)
	}
	b.WriteString("Press r to restore it, d to discard it.")
	return offerStyle.Render(b.String())
}
