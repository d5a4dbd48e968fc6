package root

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/neomind/console/internal/app"
	"github.com/neomind/console/internal/tui"
	"github.com/neomind/console/pkg/config"
)

type chatFlags struct {
	server       string
	token        string
	session      string
	newSession   bool
	hideThinking bool
}

func newChatCmd() *cobra.Command {
	var flags chatFlags

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat with the assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.server, "server", "", "NeoMind server URL (default from config)")
	cmd.Flags().StringVar(&flags.token, "token", "", "Bearer token for authenticated servers")
	cmd.Flags().StringVar(&flags.session, "session", "", "Session id to resume")
	cmd.Flags().BoolVar(&flags.newSession, "new", false, "Start a new session instead of resuming the last one")
	cmd.Flags().BoolVar(&flags.hideThinking, "hide-thinking", false, "Hide the assistant's reasoning channel")

	return cmd
}

func runChat(cmd *cobra.Command, flags chatFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyOverrides(cfg, flags)

	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := a.Connect(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Cannot reach %s: %v\n", cfg.ServerURL, err)
		return RuntimeError{Err: err}
	}
	defer a.Close()

	if err := tui.Run(ctx, a, tui.Options{HideThinking: cfg.HideThinking}); err != nil && ctx.Err() == nil {
		return RuntimeError{Err: err}
	}

	// Remember the session so the next run resumes it.
	if id := a.SessionID(); id != "" && id != cfg.Session {
		cfg.Session = id
		if err := cfg.Save(); err != nil {
			slog.Warn("Failed to persist session id", "error", err)
		}
	}

	return nil
}

func applyOverrides(cfg *config.Config, flags chatFlags) {
	if flags.server != "" {
		cfg.ServerURL = flags.server
	}
	if flags.token != "" {
		cfg.Token = flags.token
	}
	if flags.session != "" {
		cfg.Session = flags.session
	}
	if flags.newSession {
		cfg.Session = ""
	}
	if flags.hideThinking {
		cfg.HideThinking = true
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = config.DefaultServerURL
	}
}
