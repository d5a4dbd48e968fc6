package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomind/console/pkg/frames"
)

var upgrader = websocket.Upgrader{}

// wsServer runs handler for every websocket connection it accepts.
func wsServer(t *testing.T, handler func(conn *websocket.Conn, connNum int)) *httptest.Server {
	t.Helper()
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(ws, int(count.Add(1)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testBackoff() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConn_ConnectAndReceive(t *testing.T) {
	t.Parallel()

	srv := wsServer(t, func(ws *websocket.Conn, _ int) {
		defer ws.Close()
		err := ws.WriteJSON(frames.Content("s1", "hello"))
		require.NoError(t, err)
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	dispatcher := frames.NewDispatcher()
	var mu sync.Mutex
	var got []string
	dispatcher.Subscribe(func(f frames.Frame) {
		if c, ok := f.(*frames.ContentFrame); ok {
			mu.Lock()
			got = append(got, c.Content)
			mu.Unlock()
		}
	})

	conn, err := New(srv.URL, dispatcher, WithBackoff(testBackoff))
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Disconnect()

	state, _ := conn.State()
	assert.Equal(t, StateConnected, state)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "frame never arrived")

	mu.Lock()
	assert.Equal(t, []string{"hello"}, got)
	mu.Unlock()
}

func TestConn_ConnectIdempotent(t *testing.T) {
	t.Parallel()

	var conns atomic.Int32
	srv := wsServer(t, func(ws *websocket.Conn, _ int) {
		conns.Add(1)
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	conn, err := New(srv.URL, frames.NewDispatcher(), WithBackoff(testBackoff))
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Disconnect()

	assert.Equal(t, int32(1), conns.Load())
}

func TestConn_ReconnectedSignal(t *testing.T) {
	t.Parallel()

	srv := wsServer(t, func(ws *websocket.Conn, connNum int) {
		defer ws.Close()
		if connNum == 1 {
			// Drop the first connection immediately: unexpected close.
			return
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	conn, err := New(srv.URL, frames.NewDispatcher(), WithBackoff(testBackoff))
	require.NoError(t, err)

	var reconnects atomic.Int32
	conn.OnReconnected(func() { reconnects.Add(1) })

	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Disconnect()

	// The signal fires on the reconnect, not on the initial connect.
	waitFor(t, func() bool { return reconnects.Load() == 1 }, "reconnected signal never fired")

	waitFor(t, func() bool {
		state, _ := conn.State()
		return state == StateConnected
	}, "connection never settled")
	assert.Equal(t, int32(1), reconnects.Load())
}

func TestConn_RetryContextsDoNotChainAcrossCycles(t *testing.T) {
	t.Parallel()

	srv := wsServer(t, func(ws *websocket.Conn, connNum int) {
		defer ws.Close()
		switch {
		case connNum <= 3:
			// Drop immediately: one retry cycle per connection.
			return
		case connNum == 4:
			// Stay up until the client sends, then drop once more.
			_, _, _ = ws.ReadMessage()
			return
		default:
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}
	})

	conn, err := New(srv.URL, frames.NewDispatcher(), WithBackoff(testBackoff))
	require.NoError(t, err)

	var reconnects atomic.Int32
	conn.OnReconnected(func() { reconnects.Add(1) })

	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Disconnect()

	waitFor(t, func() bool { return reconnects.Load() == 3 }, "reconnect cycles never completed")
	waitFor(t, func() bool {
		state, _ := conn.State()
		return state == StateConnected
	}, "connection never settled")

	// Release the last cycle's retry context. The live connection must not
	// be descended from it, so the next unexpected close still retries.
	conn.mu.Lock()
	stale := conn.cancelRetry
	conn.mu.Unlock()
	require.NotNil(t, stale)
	stale()

	conn.Send(ChatRequest{Message: "poke"})
	waitFor(t, func() bool { return reconnects.Load() == 4 }, "reconnect stopped after stale cancel")
}

func TestConn_StateTransitions(t *testing.T) {
	t.Parallel()

	srv := wsServer(t, func(ws *websocket.Conn, _ int) {
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	conn, err := New(srv.URL, frames.NewDispatcher(), WithBackoff(testBackoff))
	require.NoError(t, err)

	var mu sync.Mutex
	var states []State
	conn.OnState(func(state State, _ error) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	})

	require.NoError(t, conn.Connect(context.Background()))
	conn.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnected}, states)
}

func TestConn_SendWhileDisconnectedIsDropped(t *testing.T) {
	t.Parallel()

	conn, err := New("http://localhost:1", frames.NewDispatcher(), WithBackoff(testBackoff))
	require.NoError(t, err)

	// Must not panic or block.
	conn.Send(ChatRequest{Message: "lost"})
	conn.SendMessage("also lost")
}

func TestConn_SendMessageCarriesSession(t *testing.T) {
	t.Parallel()

	received := make(chan ChatRequest, 1)
	srv := wsServer(t, func(ws *websocket.Conn, _ int) {
		defer ws.Close()
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var req ChatRequest
		if json.Unmarshal(raw, &req) == nil {
			received <- req
		}
	})

	conn, err := New(srv.URL, frames.NewDispatcher(), WithBackoff(testBackoff))
	require.NoError(t, err)
	conn.SetSession("s42")
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Disconnect()

	conn.SendMessage("turn off the heater")

	select {
	case req := <-received:
		assert.Equal(t, "turn off the heater", req.Message)
		assert.Equal(t, "s42", req.SessionID)
	case <-time.After(3 * time.Second):
		t.Fatal("server never received the message")
	}
}

func TestConn_AnswersHeartbeat(t *testing.T) {
	t.Parallel()

	gotPong := make(chan struct{}, 1)
	srv := wsServer(t, func(ws *websocket.Conn, _ int) {
		defer ws.Close()
		err := ws.WriteJSON(map[string]any{"type": "ping", "timestamp": time.Now().Unix()})
		require.NoError(t, err)
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var pong frames.Pong
		if json.Unmarshal(raw, &pong) == nil && pong.Type == frames.TypePong {
			gotPong <- struct{}{}
		}
	})

	dispatcher := frames.NewDispatcher()
	var dispatched atomic.Int32
	dispatcher.Subscribe(func(frames.Frame) { dispatched.Add(1) })

	conn, err := New(srv.URL, dispatcher, WithBackoff(testBackoff))
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Disconnect()

	select {
	case <-gotPong:
	case <-time.After(3 * time.Second):
		t.Fatal("pong never arrived")
	}
	// Heartbeat stays invisible to frame subscribers.
	assert.Zero(t, dispatched.Load())
}

func TestConn_DisconnectHaltsReconnect(t *testing.T) {
	t.Parallel()

	var conns atomic.Int32
	srv := wsServer(t, func(ws *websocket.Conn, _ int) {
		conns.Add(1)
		// Drop every connection immediately.
		ws.Close()
	})

	conn, err := New(srv.URL, frames.NewDispatcher(), WithBackoff(testBackoff))
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))

	waitFor(t, func() bool {
		state, _ := conn.State()
		return state == StateReconnecting
	}, "never entered reconnecting")

	conn.Disconnect()

	waitFor(t, func() bool {
		state, _ := conn.State()
		return state == StateDisconnected
	}, "never settled disconnected")

	settled := conns.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, conns.Load(), "reconnect attempts continued after Disconnect")
}

func TestNew_RejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := New("ftp://example", frames.NewDispatcher())
	assert.Error(t, err)
}
