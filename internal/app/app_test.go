package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomind/console/pkg/config"
	"github.com/neomind/console/pkg/frames"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(&config.Config{ServerURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	return a
}

func historyFrame(sessionID, role, content string) *frames.HistoryFrame {
	f := &frames.HistoryFrame{Type: "history", Role: role, Content: content}
	f.SessionID = sessionID
	return f
}

func TestApp_InterruptedReplayDoesNotDuplicateHistory(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)

	// A replay cut off before the completion marker leaves a partial buffer.
	a.handleFrame(frames.SessionSwitched("s1"))
	a.handleFrame(historyFrame("s1", "user", "what's the temperature?"))
	a.handleFrame(historyFrame("s1", "assistant", "22C"))

	// After reconnect the server replays from scratch, starting with a
	// fresh session frame.
	a.handleFrame(frames.SessionSwitched("s1"))
	a.handleFrame(historyFrame("s1", "user", "what's the temperature?"))
	a.handleFrame(historyFrame("s1", "assistant", "22C"))
	a.handleFrame(&frames.HistoryCompleteFrame{Type: "history_complete", Count: 2})

	msgs := a.store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "what's the temperature?", msgs[0].Content)
	assert.Equal(t, "22C", msgs[1].Content)
}

func TestApp_SessionCreatedDropsStaleReplayBuffer(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)

	a.handleFrame(frames.SessionSwitched("s1"))
	a.handleFrame(historyFrame("s1", "user", "stale"))

	a.handleFrame(frames.SessionCreated("s2"))
	a.handleFrame(&frames.HistoryCompleteFrame{Type: "history_complete"})

	assert.Zero(t, a.store.Len())
}
