package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/middleware"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/response"
)

// TimetableHandler serves the week views and their exports.
type TimetableHandler struct {
	timetable *service.TimetableService
	export    *service.ExportService
}

// NewTimetableHandler constructs handler.
func NewTimetableHandler(timetable *service.TimetableService, export *service.ExportService) *TimetableHandler {
	return &TimetableHandler{timetable: timetable, export: export}
}

// Slots godoc
// @Summary List time slots
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /time-slots [get]
func (h *TimetableHandler) Slots(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.timetable.Slots(), nil)
}

// Week godoc
// @Summary Resolve the week window containing a date
// @Tags Timetable
// @Produce json
// @Param date query string false "Reference date (YYYY-MM-DD), defaults to today"
// @Param days query int false "Week length: 6 or 7"
// @Success 200 {object} response.Envelope
// @Router /weeks [get]
func (h *TimetableHandler) Week(c *gin.Context) {
	date, err := dateQuery(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	days, err := intQuery(c, "days", 0)
	if err != nil {
		response.Error(c, err)
		return
	}
	window, err := h.timetable.Week(date, days)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"start":    window.Start,
		"end":      window.End,
		"days":     window.Days(),
		"previous": window.Previous().Start,
		"next":     window.Next().Start,
	}, nil)
}

// Grid godoc
// @Summary Week grid
// @Description Cells per day and slot plus merged blocks. Without a room, teacher or group filter the grid is an overview listing every entry per cell.
// @Tags Timetable
// @Produce json
// @Param date query string false "Reference date (YYYY-MM-DD)"
// @Param days query int false "Week length: 6 or 7"
// @Param roomId query string false "Room"
// @Param teacherId query string false "Teacher"
// @Param groupId query string false "Group"
// @Param includeCancelled query bool false "Show cancelled entries"
// @Success 200 {object} response.Envelope
// @Router /timetable/week [get]
func (h *TimetableHandler) Grid(c *gin.Context) {
	q, err := weekQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	grid, cached, err := h.timetable.WeekGrid(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	if grid.Anomalies > 0 {
		middleware.SetMeta(c, "anomalies", grid.Anomalies)
	}
	response.JSON(c, http.StatusOK, grid, nil, middleware.ExtractMeta(c))
}

// FreeRooms godoc
// @Summary Rooms free during a slot
// @Tags Timetable
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD)"
// @Param slotId query string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/free-rooms [get]
func (h *TimetableHandler) FreeRooms(c *gin.Context) {
	date, err := dateQuery(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	slotID := strings.TrimSpace(c.Query("slotId"))
	if slotID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "slotId is required"))
		return
	}
	rooms, err := h.timetable.FreeRooms(c.Request.Context(), date, slotID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rooms, nil)
}

// Export godoc
// @Summary Export a week grid
// @Tags Timetable
// @Produce text/csv
// @Produce application/pdf
// @Param format query string true "csv or pdf"
// @Param date query string false "Reference date (YYYY-MM-DD)"
// @Param roomId query string false "Room"
// @Param teacherId query string false "Teacher"
// @Param groupId query string false "Group"
// @Success 200 {file} binary
// @Router /timetable/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	q, err := weekQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var file *service.ExportFile
	switch strings.ToLower(c.DefaultQuery("format", "csv")) {
	case "csv":
		file, err = h.export.WeekCSV(c.Request.Context(), q)
	case "pdf":
		file, err = h.export.WeekPDF(c.Request.Context(), q)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Calendar godoc
// @Summary iCalendar feed
// @Tags Timetable
// @Produce text/calendar
// @Param from query string false "First week (YYYY-MM-DD)"
// @Param weeks query int false "Number of weeks"
// @Param roomId query string false "Room"
// @Param teacherId query string false "Teacher"
// @Param groupId query string false "Group"
// @Param includeCancelled query bool false "Publish cancelled sessions"
// @Success 200 {file} binary
// @Router /timetable/ical [get]
func (h *TimetableHandler) Calendar(c *gin.Context) {
	scope, err := scopeFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	q := service.CalendarQuery{Scope: scope, IncludeCancelled: boolQuery(c, "includeCancelled")}
	if q.From, err = dateQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if q.Weeks, err = intQuery(c, "weeks", 0); err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.export.Calendar(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// FeedLink godoc
// @Summary Issue a calendar subscription link
// @Tags Timetable
// @Produce json
// @Param roomId query string false "Room"
// @Param teacherId query string false "Teacher"
// @Param groupId query string false "Group"
// @Success 200 {object} response.Envelope
// @Router /timetable/feed-url [get]
func (h *TimetableHandler) FeedLink(c *gin.Context) {
	scope, err := scopeFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	link, err := h.export.FeedLink(scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"url":       strings.TrimSuffix(c.FullPath(), "feed-url") + "feed/" + link.Token,
		"token":     link.Token,
		"scope":     link.Scope,
		"expiresAt": link.ExpiresAt,
	}, nil)
}

// Feed godoc
// @Summary Subscribed calendar feed
// @Description Authenticated by the signed token in the path so calendar clients can poll it.
// @Tags Timetable
// @Produce text/calendar
// @Param token path string true "Feed token"
// @Success 200 {file} binary
// @Router /timetable/feed/{token} [get]
func (h *TimetableHandler) Feed(c *gin.Context) {
	scope, err := h.export.ResolveFeed(strings.TrimSuffix(c.Param("token"), ".ics"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.export.Calendar(c.Request.Context(), service.CalendarQuery{Scope: scope})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Body)
}

func weekQuery(c *gin.Context) (service.WeekQuery, error) {
	scope, err := scopeFromQuery(c)
	if err != nil {
		return service.WeekQuery{}, err
	}
	q := service.WeekQuery{Scope: scope, IncludeCancelled: boolQuery(c, "includeCancelled")}
	if q.Date, err = dateQuery(c, "date"); err != nil {
		return q, err
	}
	if q.Days, err = intQuery(c, "days", 0); err != nil {
		return q, err
	}
	return q, nil
}
