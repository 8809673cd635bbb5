package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/campus-timetable-api/internal/app"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/internal/timetable"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
)

func (c *CLI) slotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "Print the configured time slot catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := app.Catalog(c.cfg.Timetable)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, colorHeader.Sprint("SLOT  START  END"))
			for _, slot := range catalog.AllSlots() {
				fmt.Fprintf(out, "%-5s %s  %s\n", slot.ID, slot.Start, slot.End)
			}
			fmt.Fprintln(out, colorMuted.Sprintf("%d slots", catalog.Len()))
			return nil
		},
	}
}

func (c *CLI) weekCmd() *cobra.Command {
	var (
		date             string
		days             int
		scope            timetable.Scope
		includeCancelled bool
	)

	cmd := &cobra.Command{
		Use:   "week",
		Short: "Show the merged sessions of one week",
		Long: `Print the week containing --date (today by default), one line per merged block.

Narrow the view with --room, --teacher or --group.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := service.WeekQuery{Days: days, Scope: scope, IncludeCancelled: includeCancelled}
			if date != "" {
				d, err := civil.ParseDate(date)
				if err != nil {
					return err
				}
				q.Date = d
			}

			a, err := c.application(cmd.Context())
			if err != nil {
				return err
			}
			grid, _, err := a.Timetable.WeekGrid(cmd.Context(), q)
			if err != nil {
				return err
			}
			printWeek(cmd.OutOrStdout(), grid)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Any date in the week (YYYY-MM-DD)")
	cmd.Flags().IntVar(&days, "days", 0, "Week length, 6 or 7")
	cmd.Flags().StringVar(&scope.RoomID, "room", "", "Only this room")
	cmd.Flags().StringVar(&scope.TeacherID, "teacher", "", "Only this teacher")
	cmd.Flags().StringVar(&scope.GroupID, "group", "", "Only this group")
	cmd.Flags().BoolVar(&includeCancelled, "include-cancelled", false, "Show cancelled sessions")
	return cmd
}

func printWeek(out io.Writer, grid *timetable.WeekGrid) {
	header := fmt.Sprintf("WEEK %s - %s", grid.Window.Start, grid.Window.End)
	if !grid.Scope.IsZero() {
		header += "  " + scopeLabel(grid.Scope)
	}
	fmt.Fprintf(out, "\n  %s\n", colorHeader.Sprint(header))
	fmt.Fprintln(out, strings.Repeat("-", 64))

	total := 0
	for _, day := range grid.Days {
		fmt.Fprintf(out, "%s %s\n", colorHeader.Sprintf("%-9s", day.Weekday), colorMuted.Sprint(day.Date))
		if len(day.Blocks) == 0 {
			fmt.Fprintln(out, colorMuted.Sprint("  no sessions"))
			continue
		}
		for _, block := range day.Blocks {
			total++
			line := fmt.Sprintf("  %s-%s  %-10s %-8s %-8s %-8s", block.Start, block.End, block.SubjectID, block.TeacherID, block.RoomID, block.GroupID)
			if n := len(block.Entries); n > 1 {
				line += fmt.Sprintf(" x%d", n)
			}
			switch block.Status {
			case models.ScheduleStatusMakeup:
				line = colorMakeup.Sprint(line + " makeup")
			case models.ScheduleStatusCancelled:
				line = colorMuted.Sprint(line + " cancelled")
			}
			fmt.Fprintln(out, line)
		}
	}
	fmt.Fprintln(out, strings.Repeat("-", 64))
	fmt.Fprintf(out, "  %d blocks", total)
	if grid.Anomalies > 0 {
		fmt.Fprint(out, colorConflict.Sprintf(", %d cells with overlapping entries", grid.Anomalies))
	}
	fmt.Fprintln(out)
}

func scopeLabel(scope timetable.Scope) string {
	var parts []string
	if scope.RoomID != "" {
		parts = append(parts, "room="+scope.RoomID)
	}
	if scope.TeacherID != "" {
		parts = append(parts, "teacher="+scope.TeacherID)
	}
	if scope.GroupID != "" {
		parts = append(parts, "group="+scope.GroupID)
	}
	return strings.Join(parts, " ")
}
