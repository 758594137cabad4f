// Command taskhub runs the taskhub server and its maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/taskhub/internal/model"
)

var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "taskhub",
		Short:         "taskhub - task tracking with live notifications",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", model.DefaultConfigPath(), "config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(credentialCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
