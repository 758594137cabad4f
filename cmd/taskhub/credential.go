package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/taskhub/internal/credential"
	"github.com/nhle/taskhub/internal/model"
	"github.com/nhle/taskhub/internal/theme"
)

func credentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Store secrets in the system keyring",
		Long: `Store secrets in the system keyring.

Config values of the form "keyring:<key>" are read from the keyring at
startup. jira.token_ref defaults to "keyring:jira-token", so

  taskhub credential set

stores the Jira personal access token where the server will find it.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [key]",
		Short: "Prompt for a secret and store it (defaults to the jira.token_ref key)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := credentialKey(args)
			if err != nil {
				return err
			}

			var value string
			err = huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title(fmt.Sprintf("Value for %q", key)).
						EchoMode(huh.EchoModePassword).
						Value(&value).
						Validate(func(s string) error {
							if strings.TrimSpace(s) == "" {
								return errors.New("value must not be empty")
							}
							return nil
						}),
				),
			).Run()
			if err != nil {
				return err
			}

			if err := credential.Set(key, strings.TrimSpace(value)); err != nil {
				return err
			}
			fmt.Println(theme.HelpStyle.Render(fmt.Sprintf("Stored %q in the keyring.", key)))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [key]",
		Short: "Remove a secret from the keyring",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := credentialKey(args)
			if err != nil {
				return err
			}

			var confirm bool
			err = huh.NewConfirm().
				Title(fmt.Sprintf("Delete %q from the keyring?", key)).
				Value(&confirm).
				Run()
			if err != nil {
				return err
			}
			if !confirm {
				return nil
			}

			if err := credential.Delete(key); err != nil {
				return err
			}
			fmt.Println(theme.HelpStyle.Render(fmt.Sprintf("Deleted %q.", key)))
			return nil
		},
	})

	return cmd
}

// credentialKey returns the key named on the command line, or the one
// jira.token_ref points at.
func credentialKey(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return "", err
	}
	key, ok := credential.KeyOf(cfg.Jira.TokenRef)
	if !ok || key == "" {
		return "", errors.New("jira.token_ref is not a keyring reference; pass a key explicitly")
	}
	return key, nil
}
