package root

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/neomind/console/internal/app"
	"github.com/neomind/console/internal/fakeserver"
	"github.com/neomind/console/internal/tui"
	"github.com/neomind/console/pkg/config"
	"github.com/neomind/console/pkg/frames"
)

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Chat against a built-in demo server, no NeoMind installation needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return err
			}
			defer ln.Close()

			srv := fakeserver.New(
				fakeserver.WithScript(demoScript),
				fakeserver.WithHeartbeat(30*time.Second),
				fakeserver.WithFrameDelay(40*time.Millisecond),
			)
			go func() {
				_ = http.Serve(ln, srv.Handler())
			}()

			a, err := app.New(&config.Config{ServerURL: "http://" + ln.Addr().String()})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.Connect(ctx); err != nil {
				return RuntimeError{Err: err}
			}
			defer a.Close()

			if err := tui.Run(ctx, a, tui.Options{}); err != nil && ctx.Err() == nil {
				return RuntimeError{Err: err}
			}
			return nil
		},
	}
}

// demoScript fakes a short sensor lookup so every part of the transcript
// rendering shows up: thinking, a tool call, and markdown content.
func demoScript(message string) []frames.Frame {
	args := json.RawMessage(`{"zone":"living-room"}`)
	return []frames.Frame{
		frames.Thinking("", "The user asked: "+message+". "),
		frames.Thinking("", "Checking the latest sensor readings first."),
		frames.ToolCallStart("", "read_sensors", args),
		frames.ToolCallEnd("", "read_sensors", `{"temperature":21.4,"humidity":43}`, true),
		frames.Content("", "Here is what I can see right now:\n\n"),
		frames.Content("", "- **Temperature**: 21.4 °C\n"),
		frames.Content("", "- **Humidity**: 43 %\n\n"),
		frames.Content("", "Everything looks normal. This is a demo server, so the numbers never change."),
	}
}
