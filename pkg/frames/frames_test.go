package frames

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Frame
	}{
		{
			name: "thinking",
			raw:  `{"type":"Thinking","content":"Let me check","sessionId":"s1"}`,
			want: Thinking("s1", "Let me check"),
		},
		{
			name: "content",
			raw:  `{"type":"Content","content":"It is sunny.","sessionId":"s1"}`,
			want: Content("s1", "It is sunny."),
		},
		{
			name: "tool call start",
			raw:  `{"type":"ToolCallStart","tool":"weather","arguments":{"city":"NYC"},"sessionId":"s1"}`,
			want: ToolCallStart("s1", "weather", json.RawMessage(`{"city":"NYC"}`)),
		},
		{
			name: "end",
			raw:  `{"type":"end","sessionId":"s1"}`,
			want: End("s1"),
		},
		{
			name: "error",
			raw:  `{"type":"Error","message":"backend unavailable","sessionId":"s1"}`,
			want: Error("s1", "backend unavailable"),
		},
		{
			name: "session created",
			raw:  `{"type":"session_created","sessionId":"s2"}`,
			want: SessionCreated("s2"),
		},
		{
			name: "session switched",
			raw:  `{"type":"session_switched","sessionId":"s3"}`,
			want: SessionSwitched("s3"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			frame, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, frame)
		})
	}
}

func TestDecode_ToolCallEnd(t *testing.T) {
	t.Parallel()

	frame, err := Decode([]byte(`{"type":"ToolCallEnd","tool":"weather","result":"72F","success":true,"sessionId":"s1"}`))
	require.NoError(t, err)

	end, ok := frame.(*ToolCallEndFrame)
	require.True(t, ok)
	assert.Equal(t, "weather", end.Tool)
	assert.Equal(t, "72F", end.Result)
	require.NotNil(t, end.Success)
	assert.True(t, *end.Success)
	assert.Equal(t, "s1", end.Session())
}

func TestDecode_UnknownType(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"type":"device_update","deviceId":"lamp-1"}`))
	var unknown *UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "device_update", unknown.Type)
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{not json`))
	assert.Error(t, err)
}

func TestDispatcher_OrderAndUnsubscribe(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()

	var order []string
	unsubA := d.Subscribe(func(Frame) { order = append(order, "a") })
	d.Subscribe(func(Frame) { order = append(order, "b") })

	d.Dispatch([]byte(`{"type":"end","sessionId":"s1"}`))
	assert.Equal(t, []string{"a", "b"}, order)

	unsubA()
	order = nil
	d.Dispatch([]byte(`{"type":"end","sessionId":"s1"}`))
	assert.Equal(t, []string{"b"}, order)
}

func TestDispatcher_DropsUnknownWithoutNotifying(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	called := 0
	d.Subscribe(func(Frame) { called++ })

	assert.Nil(t, d.Dispatch([]byte(`{"type":"Plan","step":"analyze"}`)))
	assert.Nil(t, d.Dispatch([]byte(`garbage`)))
	assert.Zero(t, called)
}

func TestDispatcher_ArrivalOrderAcrossFrames(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var got []string
	d.Subscribe(func(f Frame) {
		if c, ok := f.(*ContentFrame); ok {
			got = append(got, c.Content)
		}
	})

	for _, payload := range []string{"It ", "is ", "sunny."} {
		raw, err := json.Marshal(Content("s1", payload))
		require.NoError(t, err)
		d.Dispatch(raw)
	}
	assert.Equal(t, []string{"It ", "is ", "sunny."}, got)
}
