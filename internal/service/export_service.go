package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/timetable"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/export"
	"github.com/noah-isme/campus-timetable-api/pkg/signing"
)

type gridSource interface {
	WeekGrid(ctx context.Context, q WeekQuery) (*timetable.WeekGrid, bool, error)
	Entries(ctx context.Context, from, to civil.Date, scope timetable.Scope, includeCancelled bool) ([]models.ScheduleEntry, error)
	Today() civil.Date
}

type subjectLookup interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type csvRenderer interface {
	Render(data export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(grid export.Grid) ([]byte, error)
}

type icsRenderer interface {
	Render(data export.Calendar) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Location  *time.Location
	FeedWeeks int
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// CalendarQuery selects the entries published in an iCalendar feed.
type CalendarQuery struct {
	From             civil.Date
	Weeks            int
	Scope            timetable.Scope
	IncludeCancelled bool
}

// FeedLink is a signed subscription path for a scope.
type FeedLink struct {
	Token     string          `json:"token"`
	Scope     timetable.Scope `json:"scope"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// ExportService renders week grids and calendar feeds.
type ExportService struct {
	grids    gridSource
	subjects subjectLookup
	csv      csvRenderer
	pdf      pdfRenderer
	ics      icsRenderer
	signer   *signing.FeedSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService. Nil renderers use the defaults from pkg/export.
func NewExportService(grids gridSource, subjects subjectLookup, signer *signing.FeedSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, ics icsRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.FeedWeeks <= 0 {
		cfg.FeedWeeks = 8
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if ics == nil {
		ics = export.NewICSExporter("")
	}
	return &ExportService{
		grids:    grids,
		subjects: subjects,
		csv:      csv,
		pdf:      pdf,
		ics:      ics,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// WeekCSV lists the merged blocks of a week, one row per block.
func (s *ExportService) WeekCSV(ctx context.Context, q WeekQuery) (*ExportFile, error) {
	grid, _, err := s.grids.WeekGrid(ctx, q)
	if err != nil {
		return nil, err
	}
	labels := s.subjectLabels(ctx)

	table := export.Table{
		Headers: []string{"Date", "Weekday", "Start", "End", "Subject", "Teacher", "Room", "Group", "Status", "Sessions"},
	}
	for _, day := range grid.Days {
		for _, block := range day.Blocks {
			table.Rows = append(table.Rows, []string{
				block.Date.String(),
				day.Weekday,
				block.Start.String(),
				block.End.String(),
				labels(block.SubjectID),
				block.TeacherID,
				block.RoomID,
				block.GroupID,
				string(block.Status),
				strconv.Itoa(len(block.Entries)),
			})
		}
	}

	body, err := s.csv.Render(table)
	if err != nil {
		return nil, s.renderError("csv", err)
	}
	return &ExportFile{Filename: weekFilename(grid, "csv"), ContentType: "text/csv", Body: body}, nil
}

// WeekPDF draws the grid with days as columns and slots as rows.
func (s *ExportService) WeekPDF(ctx context.Context, q WeekQuery) (*ExportFile, error) {
	grid, _, err := s.grids.WeekGrid(ctx, q)
	if err != nil {
		return nil, err
	}
	labels := s.subjectLabels(ctx)

	doc := export.Grid{
		Title:    "Timetable " + grid.Window.Start.String() + " - " + grid.Window.End.String(),
		Subtitle: scopeTitle(grid.Scope),
	}
	for _, day := range grid.Days {
		doc.Columns = append(doc.Columns, day.Weekday[:3]+" "+day.Date.String()[5:])
	}
	for row, slot := range grid.Slots {
		doc.RowLabels = append(doc.RowLabels, slot.Start.String()+"\n"+slot.End.String())
		cells := make([]string, len(grid.Days))
		for col, day := range grid.Days {
			cells[col] = cellText(day.Cells[row], grid.Scope, labels)
		}
		doc.Cells = append(doc.Cells, cells)
	}

	body, err := s.pdf.Render(doc)
	if err != nil {
		return nil, s.renderError("pdf", err)
	}
	return &ExportFile{Filename: weekFilename(grid, "pdf"), ContentType: "application/pdf", Body: body}, nil
}

// Calendar publishes the entries of q as an iCalendar feed.
func (s *ExportService) Calendar(ctx context.Context, q CalendarQuery) (*ExportFile, error) {
	if q.From.IsZero() {
		q.From = s.grids.Today()
	}
	if q.Weeks <= 0 {
		q.Weeks = s.cfg.FeedWeeks
	}
	if q.Weeks > 52 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weeks must be at most 52")
	}
	from := timetable.WeekWindowFor(q.From, timetable.SevenDayWeek).Start
	to := from.AddDays(7*q.Weeks - 1)

	entries, err := s.grids.Entries(ctx, from, to, q.Scope, q.IncludeCancelled)
	if err != nil {
		return nil, err
	}
	labels := s.subjectLabels(ctx)

	cal := export.Calendar{
		Name:     "Timetable " + scopeTitle(q.Scope),
		Timezone: s.cfg.Location.String(),
		Events:   make([]export.CalendarEvent, 0, len(entries)),
	}
	for _, e := range entries {
		cal.Events = append(cal.Events, export.CalendarEvent{
			UID:         e.ID + "@campus-timetable",
			Start:       s.at(e.Date, e.StartTime),
			End:         s.at(e.Date, e.EndTime),
			Summary:     labels(e.SubjectID),
			Location:    e.RoomID,
			Description: fmt.Sprintf("Group %s, teacher %s", e.GroupID, e.TeacherID),
			Cancelled:   e.Status == models.ScheduleStatusCancelled,
			Updated:     e.UpdatedAt,
		})
	}

	body, err := s.ics.Render(cal)
	if err != nil {
		return nil, s.renderError("ics", err)
	}
	filename := fmt.Sprintf("timetable_%s_%dw.ics", from, q.Weeks)
	return &ExportFile{Filename: filename, ContentType: "text/calendar; charset=utf-8", Body: body}, nil
}

// FeedLink signs scope for use in a subscription URL.
func (s *ExportService) FeedLink(scope timetable.Scope) (*FeedLink, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "calendar feeds are not configured")
	}
	token, expiresAt, err := s.signer.Sign(scope.Key())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign feed link")
	}
	return &FeedLink{Token: token, Scope: scope, ExpiresAt: expiresAt}, nil
}

// ResolveFeed returns the scope a feed token was issued for.
func (s *ExportService) ResolveFeed(token string) (timetable.Scope, error) {
	if s.signer == nil {
		return timetable.Scope{}, appErrors.Clone(appErrors.ErrUnavailable, "calendar feeds are not configured")
	}
	subject, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, signing.ErrExpiredToken) {
			return timetable.Scope{}, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "feed link expired")
		}
		return timetable.Scope{}, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid feed link")
	}
	scope, err := timetable.ParseScopeKey(subject)
	if err != nil {
		return timetable.Scope{}, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid feed link")
	}
	return scope, nil
}

func (s *ExportService) at(d civil.Date, c civil.Clock) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour(), c.Minute(), 0, 0, s.cfg.Location)
}

// subjectLabels returns a memoised id-to-code resolver. Unknown subjects keep their id.
func (s *ExportService) subjectLabels(ctx context.Context) func(string) string {
	memo := make(map[string]string)
	return func(id string) string {
		if label, ok := memo[id]; ok {
			return label
		}
		label := id
		if s.subjects != nil {
			if subject, err := s.subjects.FindByID(ctx, id); err == nil && subject.Code != "" {
				label = subject.Code
			}
		}
		memo[id] = label
		return label
	}
}

func (s *ExportService) renderError(format string, err error) error {
	s.logger.Error("export render failed", zap.String("format", format), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render "+format+" export")
}

func cellText(cell timetable.Cell, scope timetable.Scope, label func(string) string) string {
	if !scope.IsZero() {
		if cell.Entry != nil {
			return entryText(*cell.Entry, label)
		}
		if cell.ContinuationOf != "" {
			return "(cont.)"
		}
		return ""
	}
	lines := make([]string, 0, len(cell.Entries))
	for _, e := range cell.Entries {
		lines = append(lines, label(e.SubjectID)+" "+e.RoomID+" "+e.GroupID)
	}
	return strings.Join(lines, "\n")
}

func entryText(e models.ScheduleEntry, label func(string) string) string {
	text := label(e.SubjectID) + "\n" + e.RoomID + " / " + e.GroupID
	if e.Status == models.ScheduleStatusMakeup {
		text += "\nmakeup"
	}
	if e.Status == models.ScheduleStatusCancelled {
		text += "\ncancelled"
	}
	return text
}

func scopeTitle(scope timetable.Scope) string {
	var parts []string
	if scope.RoomID != "" {
		parts = append(parts, "room "+scope.RoomID)
	}
	if scope.TeacherID != "" {
		parts = append(parts, "teacher "+scope.TeacherID)
	}
	if scope.GroupID != "" {
		parts = append(parts, "group "+scope.GroupID)
	}
	if len(parts) == 0 {
		return "all rooms"
	}
	return strings.Join(parts, ", ")
}

func weekFilename(grid *timetable.WeekGrid, ext string) string {
	name := "timetable_" + grid.Window.Start.String()
	if !grid.Scope.IsZero() {
		name += "_" + sanitizeFilename(strings.Join([]string{grid.Scope.RoomID, grid.Scope.TeacherID, grid.Scope.GroupID}, "-"))
	}
	return name + "." + ext
}

func sanitizeFilename(raw string) string {
	raw = strings.Trim(raw, "-")
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
