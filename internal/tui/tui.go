// Package tui is the interactive chat surface: a transcript viewport over
// the projected display list, a composer, and the restore/discard prompt
// for recovered streams.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/neomind/console/internal/app"
	"github.com/neomind/console/pkg/chat"
	"github.com/neomind/console/pkg/connection"
)

const composerHeight = 3

// Options tunes the chat surface.
type Options struct {
	HideThinking bool
}

// Run drives the chat UI until the user quits or ctx is cancelled. App
// events are pumped into the program loop so all state mutation happens
// on the Update goroutine.
func Run(ctx context.Context, a *app.App, opts Options) error {
	p := tea.NewProgram(newModel(a, opts), tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-a.Events():
				p.Send(ev)
			}
		}
	}()

	_, err := p.Run()
	return err
}

type model struct {
	app  *app.App
	opts Options

	viewport   viewport.Model
	input      textarea.Model
	spin       spinner.Model
	transcript *transcript

	width  int
	height int
	ready  bool

	state    connection.State
	stateErr error
	offer    *app.OfferEvent
	notice   string
	errMsg   string

	pendingImages []chat.Image
}

func newModel(a *app.App, opts Options) *model {
	ta := textarea.New()
	ta.Placeholder = "Ask NeoMind anything. Enter to send."
	ta.Prompt = "┃ "
	ta.CharLimit = 8000
	ta.SetHeight(composerHeight)
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusReconnectingStyle

	return &model{
		app:        a,
		opts:       opts,
		input:      ta,
		spin:       sp,
		transcript: newTranscript(80, opts.HideThinking),
		state:      connection.StateConnecting,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spin.Tick)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.streaming() {
			m.refresh()
		}
		return m, cmd

	case app.UpdatedEvent:
		m.refresh()
		return m, nil

	case app.StateEvent:
		m.state = msg.State
		m.stateErr = msg.Err
		return m, nil

	case app.OfferEvent:
		offer := msg
		m.offer = &offer
		return m, nil

	case app.NoticeEvent:
		m.notice = msg.Content
		return m, nil

	case app.StreamErrorEvent:
		m.errMsg = msg.Message
		m.refresh()
		return m, nil
	}

	return m.updateChildren(msg)
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+r":
		// Manual retry. Connect is idempotent, so mashing it is harmless.
		return m, func() tea.Msg {
			_ = m.app.Connect(context.Background())
			return nil
		}
	}

	if m.offer != nil {
		switch msg.String() {
		case "r":
			m.offer = nil
			m.app.RestorePending()
			return m, nil
		case "d":
			m.offer = nil
			go m.app.DiscardPending(context.Background())
			return m, nil
		case "enter":
			// Sends stay blocked until the offer is answered.
			return m, nil
		}
		// The transcript stays scrollable while the decision is pending.
		return m.updateChildren(msg)
	}

	if msg.String() == "enter" {
		m.submit()
		return m, nil
	}

	return m.updateChildren(msg)
}

func (m *model) updateChildren(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) submit() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}

	// /attach is handled locally: the image rides along with the next
	// real message instead of going to the server as a control message.
	if path, ok := strings.CutPrefix(text, "/attach "); ok {
		m.attach(strings.TrimSpace(path))
		m.input.Reset()
		return
	}

	if !m.canSend() {
		return
	}
	m.errMsg = ""
	if err := m.app.Send(text, m.pendingImages...); err != nil {
		m.errMsg = err.Error()
		return
	}
	m.pendingImages = nil
	m.input.Reset()
	m.refresh()
}

func (m *model) attach(path string) {
	img, err := chat.LoadImage(path)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	m.pendingImages = append(m.pendingImages, img)
	m.errMsg = ""
	m.notice = fmt.Sprintf("%d image(s) will be attached to the next message", len(m.pendingImages))
}

func (m *model) canSend() bool {
	return m.state == connection.StateConnected && !m.streaming() && !m.app.RecoveryPending()
}

func (m *model) streaming() bool {
	_, ok := m.app.Streaming()
	return ok
}

func (m *model) resize(width, height int) {
	m.width = width
	m.height = height
	m.ready = true

	m.input.SetWidth(width - 2)
	m.transcript.setWidth(width - 2)

	vh := height - 1 - composerHeight - 2
	if vh < 1 {
		vh = 1
	}
	if m.viewport.Width == 0 {
		m.viewport = viewport.New(width, vh)
	} else {
		m.viewport.Width = width
		m.viewport.Height = vh
	}
}

// refresh re-projects the transcript. The projector returns the cached
// slice when nothing changed, so this is cheap to call on every tick.
func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.transcript.render(m.app.Messages(), m.spin.View()))
	m.viewport.GotoBottom()
}

func (m *model) View() string {
	if !m.ready {
		return "Connecting..."
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m *model) headerView() string {
	status := m.statusView()
	session := m.app.SessionID()
	if len(session) > 8 {
		session = session[:8]
	}
	title := headerStyle.Render("NeoMind")
	if session != "" {
		title += helpStyle.Render(" session " + session)
	}
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(status)
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + status
}

func (m *model) statusView() string {
	switch m.state {
	case connection.StateConnected:
		return statusConnectedStyle.Render("● connected")
	case connection.StateReconnecting:
		return statusReconnectingStyle.Render(m.spin.View() + "reconnecting")
	case connection.StateConnecting:
		return statusReconnectingStyle.Render(m.spin.View() + "connecting")
	case connection.StateError:
		msg := "error"
		if m.stateErr != nil {
			msg = m.stateErr.Error()
		}
		return statusErrorStyle.Render("✗ " + msg)
	default:
		return statusErrorStyle.Render("○ disconnected")
	}
}

func (m *model) footerView() string {
	if m.offer != nil {
		return offerPrompt(*m.offer)
	}

	var b strings.Builder
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render("✗ " + m.errMsg))
		b.WriteString("\n")
	} else if m.notice != "" {
		b.WriteString(systemStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("enter send · /attach <path> · ctrl+r reconnect · ctrl+c quit · %d messages", len(m.app.Messages()))))
	return b.String()
}
