package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/taskhub/internal/keys"
	"github.com/nhle/taskhub/internal/model"
	"github.com/nhle/taskhub/internal/watch"
)

func watchCmd() *cobra.Command {
	var server, token string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail your live notifications in the terminal",
		Long: `Tail your live notifications in the terminal.

Connects to the server's Server-Sent Events stream and shows every
notification as it arrives, reconnecting with backoff when the connection
drops. The API token comes from --token or the TASKHUB_TOKEN environment
variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("TASKHUB_TOKEN")
			}
			if token == "" {
				return errors.New("an API token is required (--token or TASKHUB_TOKEN)")
			}
			if server == "" {
				cfg, err := model.LoadConfig(configPath)
				if err != nil {
					return err
				}
				server = localURL(cfg.Server.Addr)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			m := watch.New(ctx, watch.NewClient(server, token), keys.DefaultKeyMap(), 80, 24)
			final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
			if err != nil {
				return err
			}
			if wm, ok := final.(watch.Model); ok && errors.Is(wm.Err(), watch.ErrUnauthorized) {
				return wm.Err()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "server base URL (defaults to server.addr on localhost)")
	cmd.Flags().StringVar(&token, "token", "", "API token")

	return cmd
}

// localURL turns a listen address such as ":8080" into a URL on localhost.
func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return fmt.Sprintf("http://%s", addr)
}
