package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nhle/taskhub/internal/model"
	"github.com/nhle/taskhub/internal/theme"
)

func statsCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print dashboard statistics for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := context.Background()
			u, err := rt.store.GetUserByUsername(ctx, username)
			if err != nil {
				return err
			}
			stats, err := rt.store.GetDashboardStats(ctx, u.ID, time.Now())
			if err != nil {
				return err
			}

			fmt.Println(renderStats(u, stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "user", "u", "", "username to report for")
	cmd.MarkFlagRequired("user")

	return cmd
}

func renderStats(u *model.User, s *model.DashboardStats) string {
	line := func(label string, value any) string {
		return theme.LabelStyle.Render(label) + fmt.Sprint(value)
	}

	statuses := []string{model.StatusTodo, model.StatusInProgress, model.StatusReview, model.StatusDone}
	var byStatus []string
	for _, st := range statuses {
		byStatus = append(byStatus, theme.StatusStyle(st).Render(fmt.Sprintf("%s %d", st, s.ByStatus[st])))
	}

	priorities := make([]int, 0, len(s.ByPriority))
	for p := range s.ByPriority {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)
	var byPriority []string
	for _, p := range priorities {
		byPriority = append(byPriority, theme.PriorityStyle(p).Render(fmt.Sprintf("P%d:%d", p, s.ByPriority[p])))
	}

	overdue := fmt.Sprint(s.Overdue)
	if s.Overdue > 0 {
		overdue = theme.ErrorStyle.Render(overdue)
	}

	body := strings.Join([]string{
		line("Tasks", s.TotalTasks),
		theme.LabelStyle.Render("By status") + strings.Join(byStatus, ""),
		theme.LabelStyle.Render("By priority") + strings.Join(byPriority, " "),
		line("Assigned to me", s.AssignedToMe),
		theme.LabelStyle.Render("Overdue") + overdue,
		line("Projects", s.Projects),
		line("Unread notifications", s.UnreadNotifications),
		line("Cached Jira issues", s.CachedIssues),
	}, "\n")

	return lipgloss.JoinVertical(lipgloss.Left,
		theme.HeaderStyle.Render("Dashboard: "+u.DisplayName),
		theme.BorderStyle.Render(body),
	)
}
