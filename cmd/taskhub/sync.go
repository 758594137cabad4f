package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nhle/taskhub/internal/sync"
	"github.com/nhle/taskhub/internal/theme"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronise cached Jira issues",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one issue sync pass now and print the per-user report",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			syncer, err := rt.issueSyncer(nil)
			if err != nil {
				return err
			}
			if syncer == nil {
				return errors.New("jira.base_url is not configured")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			report, err := syncer.Run(ctx)
			if report != nil {
				fmt.Println(renderReport(report))
			}
			return err
		},
	})

	return cmd
}

func renderReport(r *sync.Report) string {
	rows := make([][]string, 0, len(r.Users))
	for _, u := range r.Users {
		result := lipgloss.NewStyle().Foreground(theme.ColorGreen).Render("ok")
		if !u.OK() {
			result = theme.ErrorStyle.Render(u.Err.Error())
		}
		rows = append(rows, []string{
			u.UserID,
			u.Identifier,
			fmt.Sprint(u.Fetched),
			fmt.Sprint(u.New),
			result,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("USER", "IDENTIFIER", "FETCHED", "NEW", "RESULT").
		Rows(rows...)

	summary := fmt.Sprintf("%d users, %d issues fetched, %d new, %d failed in %s",
		len(r.Users), r.Fetched(), r.New(), r.Failed(),
		r.Finished.Sub(r.Started).Round(time.Millisecond))

	return strings.Join([]string{
		theme.HeaderStyle.Render("Issue sync"),
		t.Render(),
		theme.HelpStyle.Render(summary),
	}, "\n")
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run scheduled jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			sched, err := rt.newScheduler(nil)
			if err != nil {
				return err
			}
			for _, st := range sched.Status() {
				fmt.Printf("%s %s\n", theme.LabelStyle.Render(st.Name), st.Schedule)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "run <name>",
		Short:     "Run a job once in the foreground",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"issue_sync", jobAuditRetention, jobDBCompact},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			sched, err := rt.newScheduler(nil)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			start := time.Now()
			if err := sched.Run(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s finished in %s\n", args[0], time.Since(start).Round(time.Millisecond))
			return nil
		},
	})

	return cmd
}
