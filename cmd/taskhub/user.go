package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nhle/taskhub/internal/model"
	"github.com/nhle/taskhub/internal/theme"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users and their API tokens",
	}

	var email, name string
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user and print its API token",
		Long: `Create a user and print its API token.

The token is shown once. Clients send it as "Authorization: Bearer <token>"
or, for EventSource streams, as the token query parameter.

The email address is what the issue sync uses to find the user's Jira
issues; users without one are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			u, err := rt.store.CreateUser(context.Background(), model.User{
				Username:    args[0],
				DisplayName: name,
				Email:       email,
			})
			if err != nil {
				return err
			}

			fmt.Println(theme.HeaderStyle.Render("User created"))
			fmt.Println(theme.LabelStyle.Render("ID") + u.ID)
			fmt.Println(theme.LabelStyle.Render("Username") + u.Username)
			fmt.Println(theme.LabelStyle.Render("API token") +
				lipgloss.NewStyle().Bold(true).Foreground(theme.ColorYellow).Render(u.APIToken))
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "contact email, also used to find Jira issues")
	add.Flags().StringVar(&name, "name", "", "display name (defaults to the username)")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			users, err := rt.store.GetUsers(context.Background())
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Println(theme.HelpStyle.Render("No users yet. Create one with `taskhub user add <username>`."))
				return nil
			}

			t := table.New().
				Border(lipgloss.RoundedBorder()).
				BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
				Headers("USERNAME", "NAME", "EMAIL", "ID", "CREATED")
			for _, u := range users {
				t.Row(u.Username, u.DisplayName, u.Email, u.ID, u.CreatedAt.Local().Format("2006-01-02"))
			}
			fmt.Println(t.Render())
			return nil
		},
	})

	return cmd
}
