package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"carecircle/internal/feed"
	"carecircle/internal/live"
	"carecircle/internal/profile"
	"carecircle/internal/repository"
	"carecircle/internal/service"
)

func dashboardCmd(a *app) *cobra.Command {
	var (
		userID int64
		limit  int
		watch  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print a care manager's live dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src := feed.New(repository.NewRecordRepository(a.db), repository.NewAssignmentRepository(a.db), feed.Options{
				Interval:  a.cfg.PollInterval,
				ChunkSize: a.cfg.QueryChunkSize,
				Logger:    a.logger.Named("feed"),
			})
			policy := live.DegradeToEmpty
			if a.cfg.RetainOnError {
				policy = live.RetainLastGood
			}
			dashboards := service.NewDashboardService(src, src, profile.LookupFunc(repository.NewSeniorRepository(a.db).GetSenior), service.DashboardOptions{
				PreviewLimit: a.cfg.PreviewLimit,
				Policy:       policy,
				Logger:       a.logger.Named("dashboard"),
			})
			defer dashboards.Close()

			sess, err := dashboards.Session(ctx, userID)
			if err != nil {
				return err
			}
			changes, unsubscribe := sess.Changes()
			defer unsubscribe()

			out := cmd.OutOrStdout()
			show := func() error {
				view := dashboards.DashboardOf(sess, limit)
				if asJSON {
					return json.NewEncoder(out).Encode(view)
				}
				return renderDashboard(out, view)
			}
			if err := show(); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-changes:
					if !asJSON {
						fmt.Fprintln(out)
					}
					if err := show(); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "Care manager user id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Size of the recent preview (default from config)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep printing after every change")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON lines")
	cmd.MarkFlagRequired("user")
	return cmd
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// renderDashboard writes a text dashboard. Styling is dropped when the
// output is not a terminal.
func renderDashboard(w io.Writer, v *service.DashboardView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	c := v.Counters
	fmt.Fprintf(tw, "Completed\tPending\tMissed\tActive alerts\n")
	fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", c.Completed, c.Pending, c.Missed, c.ActiveAlerts)

	section := func(title string, items []service.ItemView) {
		fmt.Fprintf(tw, "\n%s\n", titleStyle.Render(title))
		if len(items) == 0 {
			fmt.Fprintln(tw, "  (none)")
			return
		}
		for _, item := range items {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", item.Kind, item.SeniorName, item.Description, item.Bucket)
		}
	}
	section("Recent", v.Recent)
	section("Upcoming", v.Upcoming)

	var degraded []string
	for kind, st := range v.Sources {
		degraded = append(degraded, fmt.Sprintf("%s=%s", kind, st.Health))
	}
	if len(degraded) > 0 {
		sort.Strings(degraded)
		fmt.Fprintf(tw, "\n%s\n", warnStyle.Render(fmt.Sprintf("Sources: %v", degraded)))
	}
	return tw.Flush()
}
