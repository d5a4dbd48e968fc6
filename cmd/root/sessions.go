package root

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/neomind/console/pkg/api"
	"github.com/neomind/console/pkg/config"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage chat sessions on the server",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsNewCmd())
	cmd.AddCommand(newSessionsRmCmd())

	return cmd
}

func sessionsClient() (*api.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = config.DefaultServerURL
	}
	return api.NewClient(serverURL, api.WithToken(cfg.Token))
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := sessionsClient()
			if err != nil {
				return err
			}
			sessions, err := client.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions")
				return nil
			}

			color.NoColor = color.NoColor || !isatty.IsTerminal(os.Stdout.Fd())
			bold := color.New(color.Bold)
			dim := color.New(color.Faint)
			for _, s := range sessions {
				bold.Fprint(cmd.OutOrStdout(), s.ID)
				if s.Title != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s", s.Title)
				}
				dim.Fprintf(cmd.OutOrStdout(), "  %d messages\n", s.MessageCount)
			}
			return nil
		},
	}
}

func newSessionsNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := sessionsClient()
			if err != nil {
				return err
			}
			id, err := client.CreateSession(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newSessionsRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <session-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := sessionsClient()
			if err != nil {
				return err
			}
			if err := client.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
