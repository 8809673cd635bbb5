package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

// placementFile is the YAML layout read by check and import:
//
//	partialOnError: true
//	items:
//	  - {date: 2025-03-03, start: "08:30", end: "10:00", subject: math, room: A101, group: G1}
type placementFile struct {
	PartialOnError bool            `yaml:"partialOnError"`
	Items          []placementItem `yaml:"items"`
}

type placementItem struct {
	Date    string `yaml:"date"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
	Subject string `yaml:"subject"`
	Teacher string `yaml:"teacher"`
	Room    string `yaml:"room"`
	Group   string `yaml:"group"`
	Status  string `yaml:"status"`
}

func (p placementItem) request() service.ScheduleEntryRequest {
	return service.ScheduleEntryRequest{
		Date:      p.Date,
		StartTime: p.Start,
		EndTime:   p.End,
		SubjectID: p.Subject,
		TeacherID: p.Teacher,
		RoomID:    p.Room,
		GroupID:   p.Group,
		Status:    p.Status,
	}
}

func readPlacements(path string) (*placementFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var file placementFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(file.Items) == 0 {
		return nil, fmt.Errorf("%s has no items", path)
	}
	return &file, nil
}

func (c *CLI) checkCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Dry-run placements from a YAML file against the stored timetable and each other",
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, err := readPlacements(path)
			if err != nil {
				return err
			}
			a, err := c.application(cmd.Context())
			if err != nil {
				return err
			}

			requests := make([]service.ScheduleEntryRequest, 0, len(file.Items))
			for _, item := range file.Items {
				requests = append(requests, item.request())
			}
			result, err := a.Placement.CheckBatch(cmd.Context(), requests)
			if err != nil {
				return fmt.Errorf("check failed: %s", describeError(err))
			}
			failures := make(map[int]service.BulkItemFailure, len(result.Failed))
			for _, f := range result.Failed {
				failures[f.Index] = f
			}

			out := cmd.OutOrStdout()
			for i, item := range file.Items {
				failure, blocked := failures[i]
				switch {
				case !blocked:
					fmt.Fprintf(out, "%3d %s %s\n", i, colorOK.Sprint("OK      "), describeItem(item))
				case failure.Conflicts != nil:
					fmt.Fprintf(out, "%3d %s %s\n", i, colorConflict.Sprint("CONFLICT"), describeItem(item))
					printConflicts(out, *failure.Conflicts)
				default:
					fmt.Fprintf(out, "%3d %s %s\n", i, colorConflict.Sprint("INVALID "), failure.Message)
				}
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d of %d placements would be rejected", len(failures), len(file.Items))
			}
			fmt.Fprintln(out, colorOK.Sprintf("all %d placements fit", len(file.Items)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "YAML file of placements")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (c *CLI) importCmd() *cobra.Command {
	var (
		path    string
		partial bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create the placements of a YAML file in one batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, err := readPlacements(path)
			if err != nil {
				return err
			}
			a, err := c.application(cmd.Context())
			if err != nil {
				return err
			}

			req := service.BulkCreateRequest{PartialOnError: file.PartialOnError || partial}
			for _, item := range file.Items {
				req.Items = append(req.Items, item.request())
			}
			result, err := a.Placement.BulkCreate(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("import rejected: %s", describeError(err))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, colorOK.Sprintf("created %d entries", len(result.Created)))
			for _, failure := range result.Failed {
				fmt.Fprintf(out, "%3d %s %s\n", failure.Index, colorConflict.Sprint("SKIPPED"), failure.Message)
				if failure.Conflicts != nil {
					printConflicts(out, *failure.Conflicts)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "YAML file of placements")
	cmd.Flags().BoolVar(&partial, "partial", false, "Keep the items that fit when others conflict")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func describeItem(item placementItem) string {
	return fmt.Sprintf("%s %s-%s %s room=%s group=%s", item.Date, item.Start, item.End, item.Subject, item.Room, item.Group)
}

func describeError(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func printConflicts(out io.Writer, result models.ConflictResult) {
	for _, conflict := range result.Conflicts {
		reasons := make([]string, 0, len(conflict.Reasons))
		for _, r := range conflict.Reasons {
			reasons = append(reasons, string(r))
		}
		e := conflict.Entry
		fmt.Fprintln(out, colorMuted.Sprintf("      %s with %s %s-%s %s room=%s group=%s",
			strings.Join(reasons, "+"), e.Date, e.StartTime, e.EndTime, e.SubjectID, e.RoomID, e.GroupID))
	}
}
