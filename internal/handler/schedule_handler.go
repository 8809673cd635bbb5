package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/response"
)

// ScheduleHandler manages schedule entry endpoints.
type ScheduleHandler struct {
	service *service.PlacementService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc *service.PlacementService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// List godoc
// @Summary List schedule entries
// @Tags Schedules
// @Produce json
// @Param from query string false "First date (YYYY-MM-DD)"
// @Param to query string false "Last date (YYYY-MM-DD)"
// @Param roomId query string false "Filter by room"
// @Param teacherId query string false "Filter by teacher"
// @Param groupId query string false "Filter by group"
// @Param subjectId query string false "Filter by subject"
// @Param status query string false "PLANNED, MAKEUP or CANCELLED"
// @Param includeCancelled query bool false "Include cancelled entries"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	scope, err := scopeFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.ScheduleFilter{
		RoomID:           scope.RoomID,
		TeacherID:        scope.TeacherID,
		GroupID:          scope.GroupID,
		SubjectID:        strings.TrimSpace(c.Query("subjectId")),
		IncludeCancelled: boolQuery(c, "includeCancelled"),
	}
	if filter.From, err = dateQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.To, err = dateQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseScheduleStatus(raw)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status"))
			return
		}
		filter.Status = status
	}
	if filter.Page, err = intQuery(c, "page", 1); err != nil {
		response.Error(c, err)
		return
	}
	if filter.PageSize, err = intQuery(c, "limit", 50); err != nil {
		response.Error(c, err)
		return
	}

	entries, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Get godoc
// @Summary Get schedule entry
// @Tags Schedules
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	entry, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if _, err := restrictScope(claimsFromContext(c), scopeOf(*entry)); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found"))
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Create godoc
// @Summary Create schedule entry
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.ScheduleEntryRequest true "Placement"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req service.ScheduleEntryRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	entry, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Check godoc
// @Summary Dry-run a placement
// @Description Reports every conflict the placement would cause without writing anything.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.CheckScheduleRequest true "Placement"
// @Success 200 {object} response.Envelope
// @Router /schedules/check [post]
func (h *ScheduleHandler) Check(c *gin.Context) {
	var req service.CheckScheduleRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Check(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, redactConflicts(claimsFromContext(c), result), nil)
}

// redactConflicts keeps only the time window and reasons of conflicting
// entries the caller may not read. Editors see everything.
func redactConflicts(claims *models.JWTClaims, result models.ConflictResult) models.ConflictResult {
	if claims == nil || claims.Role.CanEditSchedule() {
		return result
	}
	own, err := restrictScope(claims, timetable.Scope{})
	if err != nil {
		return result
	}
	conflicts := make([]models.ScheduleConflict, 0, len(result.Conflicts))
	for _, conflict := range result.Conflicts {
		if own.IsZero() || !own.Matches(conflict.Entry) {
			conflict.Entry = models.ScheduleEntry{
				Date:      conflict.Entry.Date,
				StartTime: conflict.Entry.StartTime,
				EndTime:   conflict.Entry.EndTime,
			}
		}
		conflicts = append(conflicts, conflict)
	}
	result.Conflicts = conflicts
	return result
}

// BulkCreate godoc
// @Summary Create several schedule entries
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.BulkCreateRequest true "Batch"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/bulk [post]
func (h *ScheduleHandler) BulkCreate(c *gin.Context) {
	var req service.BulkCreateRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.BulkCreate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondBatch(c, result)
}

// CreateRecurring godoc
// @Summary Create a recurring series
// @Description Expands an RRULE (COUNT or UNTIL required) and places one entry per occurrence.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.RecurringScheduleRequest true "Series"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/recurring [post]
func (h *ScheduleHandler) CreateRecurring(c *gin.Context) {
	var req service.RecurringScheduleRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.CreateRecurring(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondBatch(c, result)
}

// Update godoc
// @Summary Move or edit a schedule entry
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body service.UpdateScheduleRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id} [patch]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req service.UpdateScheduleRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	entry, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Cancel godoc
// @Summary Cancel a schedule entry
// @Tags Schedules
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/cancel [post]
func (h *ScheduleHandler) Cancel(c *gin.Context) {
	entry, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Remove godoc
// @Summary Delete a schedule entry
// @Tags Schedules
// @Param id path string true "Entry ID"
// @Success 204
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Remove(c *gin.Context) {
	if err := h.service.Remove(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func respondBatch(c *gin.Context, result *service.BulkCreateResult) {
	status := http.StatusCreated
	if len(result.Created) == 0 {
		status = http.StatusOK
	}
	response.JSON(c, status, result, nil, map[string]interface{}{
		"created": len(result.Created),
		"failed":  len(result.Failed),
	})
}

func scopeOf(e models.ScheduleEntry) timetable.Scope {
	return timetable.Scope{TeacherID: e.TeacherID, GroupID: e.GroupID}
}
