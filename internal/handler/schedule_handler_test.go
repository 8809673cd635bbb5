package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

func TestScheduleHandlerCreateAndConflict(t *testing.T) {
	f := newAPIFixture(t)
	first := f.place(t, "2025-03-03", "08:30", "10:00", "math", "A101", "G1")
	assert.Equal(t, "t1", first.TeacherID)
	assert.Equal(t, models.ScheduleStatusPlanned, first.Status)

	w := f.do(http.MethodPost, "/schedules", `{"date":"2025-03-03","startTime":"09:00","endTime":"10:30","subjectId":"phys","roomId":"A101","groupId":"G2"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, env.Error.Code)

	raw, err := json.Marshal(env.Error.Details)
	require.NoError(t, err)
	var result models.ConflictResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, first.ID, result.Conflicts[0].Entry.ID)
	assert.Equal(t, []models.ConflictReason{models.ConflictReasonRoom}, result.Reasons)
}

func TestScheduleHandlerRejectsBadInput(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/schedules", `{"date":"2025-03-03"`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)

	w = f.do(http.MethodPost, "/schedules", `{"date":"2025-03-03","startTime":"10:00","endTime":"09:00","subjectId":"math","roomId":"A101","groupId":"G1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/schedules?status=POSTPONED", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/schedules/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScheduleHandlerCheck(t *testing.T) {
	f := newAPIFixture(t)
	existing := f.place(t, "2025-03-03", "08:30", "10:00", "math", "A101", "G1")

	w := f.do(http.MethodPost, "/schedules/check", `{"date":"2025-03-03","startTime":"09:00","endTime":"10:00","subjectId":"math","roomId":"B202","groupId":"G1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var result models.ConflictResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &result))
	assert.Equal(t, []models.ConflictReason{models.ConflictReasonTeacher, models.ConflictReasonGroup}, result.Reasons)

	w = f.do(http.MethodPost, "/schedules/check", `{"date":"2025-03-03","startTime":"08:30","endTime":"10:00","subjectId":"math","roomId":"A101","groupId":"G1","excludeId":"`+existing.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &result))
	assert.Empty(t, result.Conflicts)
}

func TestScheduleHandlerCheckHidesEntriesOutsideScope(t *testing.T) {
	f := newAPIFixture(t)
	other := f.place(t, "2025-03-03", "08:30", "10:00", "math", "A101", "G1")
	mine := f.place(t, "2025-03-03", "08:30", "10:00", "phys", "B202", "G2")
	draft := `{"date":"2025-03-03","startTime":"09:00","endTime":"10:00","subjectId":"phys","roomId":"A101","groupId":"G3"}`

	f.claims = &models.JWTClaims{UserID: "u-t2", Role: models.RoleTeacher, TeacherID: "t2"}
	w := f.do(http.MethodPost, "/schedules/check", draft)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result models.ConflictResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &result))
	require.Len(t, result.Conflicts, 2)
	assert.Equal(t, []models.ConflictReason{models.ConflictReasonRoom, models.ConflictReasonTeacher}, result.Reasons)

	byReason := map[models.ConflictReason]models.ScheduleEntry{}
	for _, c := range result.Conflicts {
		byReason[c.Reasons[0]] = c.Entry
	}
	hidden := byReason[models.ConflictReasonRoom]
	assert.Empty(t, hidden.ID)
	assert.Empty(t, hidden.GroupID)
	assert.Empty(t, hidden.TeacherID)
	assert.Equal(t, other.StartTime, hidden.StartTime)
	assert.Equal(t, mine.ID, byReason[models.ConflictReasonTeacher].ID)

	f.claims = &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}
	w = f.do(http.MethodPost, "/schedules/check", draft)
	require.Equal(t, http.StatusOK, w.Code)
	result = models.ConflictResult{}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &result))
	ids := []string{result.Conflicts[0].Entry.ID, result.Conflicts[1].Entry.ID}
	assert.ElementsMatch(t, []string{other.ID, mine.ID}, ids)
}

func TestScheduleHandlerBulkAndRecurring(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/schedules/bulk", `{"partialOnError":true,"items":[
		{"date":"2025-03-04","startTime":"08:30","endTime":"10:00","subjectId":"math","roomId":"A101","groupId":"G1"},
		{"date":"2025-03-04","startTime":"09:00","endTime":"10:30","subjectId":"phys","roomId":"A101","groupId":"G2"}
	]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := decode(t, w)
	var batch service.BulkCreateResult
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	assert.Len(t, batch.Created, 1)
	require.Len(t, batch.Failed, 1)
	assert.Equal(t, 1, batch.Failed[0].Index)
	assert.Equal(t, float64(1), env.Meta["failed"])

	w = f.do(http.MethodPost, "/schedules/recurring", `{"rrule":"FREQ=WEEKLY;COUNT=3","startDate":"2025-03-05","startTime":"14:30","endTime":"16:00","subjectId":"phys","roomId":"B202","groupId":"G2"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &batch))
	require.Len(t, batch.Created, 3)
	assert.Equal(t, "2025-03-19", batch.Created[2].Date.String())

	w = f.do(http.MethodPost, "/schedules/recurring", `{"rrule":"FREQ=WEEKLY","startDate":"2025-03-05","startTime":"14:30","endTime":"16:00","subjectId":"phys","roomId":"B202","groupId":"G2"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleHandlerUpdateCancelRemove(t *testing.T) {
	f := newAPIFixture(t)
	first := f.place(t, "2025-03-03", "08:30", "10:00", "math", "A101", "G1")
	second := f.place(t, "2025-03-03", "10:10", "11:40", "phys", "B202", "G2")

	w := f.do(http.MethodPatch, "/schedules/"+second.ID, `{"startTime":"08:30","endTime":"10:00","roomId":"A101"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPatch, "/schedules/"+second.ID, `{"date":"2025-03-04","startTime":"08:30","endTime":"10:00"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var moved models.ScheduleEntry
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &moved))
	assert.Equal(t, "2025-03-04", moved.Date.String())

	w = f.do(http.MethodPost, "/schedules/"+first.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cancelled models.ScheduleEntry
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &cancelled))
	assert.Equal(t, models.ScheduleStatusCancelled, cancelled.Status)

	w = f.do(http.MethodDelete, "/schedules/"+first.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(http.MethodDelete, "/schedules/"+first.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDirectoryHandlers(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/subjects", `{"id":"bio","code":"bio101","name":"Biology","teacherId":"t3"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = f.do(http.MethodPost, "/subjects", `{"id":"bio2","code":"BIO101","name":"Biology again","teacherId":"t3"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodGet, "/subjects?teacherId=t3", "")
	require.Equal(t, http.StatusOK, w.Code)
	var subjects []models.Subject
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &subjects))
	require.Len(t, subjects, 1)
	assert.Equal(t, "BIO101", subjects[0].Code)

	w = f.do(http.MethodPost, "/rooms", `{"code":"c303","capacity":20}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = f.do(http.MethodGet, "/rooms", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rooms []models.Room
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &rooms))
	assert.Len(t, rooms, 3)

	f.claims = &models.JWTClaims{UserID: "u-t2", Role: models.RoleTeacher, TeacherID: "t2"}
	w = f.do(http.MethodGet, "/subjects", "")
	require.Equal(t, http.StatusOK, w.Code)
	subjects = nil
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &subjects))
	require.Len(t, subjects, 1)
	assert.Equal(t, "PHYS101", subjects[0].Code)

	w = f.do(http.MethodGet, "/subjects?all=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	subjects = nil
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &subjects))
	assert.Len(t, subjects, 3)
}

func TestRestrictScope(t *testing.T) {
	teacher := &models.JWTClaims{Role: models.RoleTeacher, TeacherID: "t1"}
	student := &models.JWTClaims{Role: models.RoleStudent, GroupID: "G1"}
	admin := &models.JWTClaims{Role: models.RoleAdmin}

	scope, err := restrictScope(teacher, scopeOf(models.ScheduleEntry{RoomID: "A101"}))
	require.NoError(t, err)
	assert.Equal(t, "t1", scope.TeacherID)

	_, err = restrictScope(teacher, scopeOf(models.ScheduleEntry{TeacherID: "t2"}))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	scope, err = restrictScope(student, scopeOf(models.ScheduleEntry{}))
	require.NoError(t, err)
	assert.Equal(t, "G1", scope.GroupID)

	_, err = restrictScope(student, scopeOf(models.ScheduleEntry{GroupID: "G2"}))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	scope, err = restrictScope(admin, scopeOf(models.ScheduleEntry{TeacherID: "t9"}))
	require.NoError(t, err)
	assert.Equal(t, "t9", scope.TeacherID)
}
