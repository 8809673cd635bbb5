package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/middleware"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/signing"
)

type mapCache struct {
	store map[string][]byte
}

func (m *mapCache) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (m *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.store[key] = payload
	return nil
}

func (m *mapCache) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.store {
		if strings.HasPrefix(key, prefix) {
			delete(m.store, key)
		}
	}
	return nil
}

func (m *mapCache) Incr(_ context.Context, key string) (int64, error) {
	var n int64
	if payload, ok := m.store[key]; ok {
		if err := json.Unmarshal(payload, &n); err != nil {
			return 0, err
		}
	}
	n++
	m.store[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

type apiFixture struct {
	router *gin.Engine
	claims *models.JWTClaims
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryScheduleStore()
	subjects := repository.NewMemorySubjectRepository(
		models.Subject{ID: "math", Code: "MATH101", Name: "Calculus", TeacherID: "t1"},
		models.Subject{ID: "phys", Code: "PHYS101", Name: "Physics", TeacherID: "t2"},
	)
	rooms := repository.NewMemoryRoomRepository(
		models.Room{ID: "A101", Code: "A101", Capacity: 40},
		models.Room{ID: "B202", Code: "B202", Capacity: 30},
	)
	metrics := service.NewMetricsService()
	cache := service.NewCacheService(&mapCache{store: map[string][]byte{}}, metrics, time.Minute, zap.NewNop(), true)
	validate := validator.New()

	tt := service.NewTimetableService(store, rooms, cache, metrics, service.TimetableConfig{}, zap.NewNop())
	placement := service.NewPlacementService(store, subjects, service.PlacementConfig{}, validate, metrics, tt, zap.NewNop())
	export := service.NewExportService(tt, subjects, signing.NewFeedSigner("feed-secret", time.Hour), service.ExportConfig{}, zap.NewNop(), nil, nil, nil)

	schedules := NewScheduleHandler(placement)
	timetable := NewTimetableHandler(tt, export)
	subjectHandler := NewSubjectHandler(service.NewSubjectService(subjects, validate, zap.NewNop()))
	roomHandler := NewRoomHandler(service.NewRoomService(rooms, validate, zap.NewNop()))
	health := NewMetricsHandler(metrics, nil)

	f := &apiFixture{claims: &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}}
	r := gin.New()
	r.GET("/ready", health.Ready)
	r.GET("/metrics/summary", health.Snapshot)
	r.GET("/timetable/feed/:token", timetable.Feed)

	api := r.Group("")
	api.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, f.claims)
		c.Next()
	}, middleware.WithResponseMeta())
	api.GET("/time-slots", timetable.Slots)
	api.GET("/weeks", timetable.Week)
	api.GET("/timetable/week", timetable.Grid)
	api.GET("/timetable/free-rooms", timetable.FreeRooms)
	api.GET("/timetable/export", timetable.Export)
	api.GET("/timetable/ical", timetable.Calendar)
	api.GET("/timetable/feed-url", timetable.FeedLink)
	api.GET("/schedules", schedules.List)
	api.GET("/schedules/:id", schedules.Get)
	api.POST("/schedules", schedules.Create)
	api.POST("/schedules/check", schedules.Check)
	api.POST("/schedules/bulk", schedules.BulkCreate)
	api.POST("/schedules/recurring", schedules.CreateRecurring)
	api.PATCH("/schedules/:id", schedules.Update)
	api.POST("/schedules/:id/cancel", schedules.Cancel)
	api.DELETE("/schedules/:id", schedules.Remove)
	api.GET("/subjects", subjectHandler.List)
	api.POST("/subjects", subjectHandler.Create)
	api.GET("/rooms", roomHandler.List)
	api.POST("/rooms", roomHandler.Create)
	f.router = r
	return f
}

func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func (f *apiFixture) place(t *testing.T, date, start, end, subject, room, group string) models.ScheduleEntry {
	t.Helper()
	body := `{"date":"` + date + `","startTime":"` + start + `","endTime":"` + end + `","subjectId":"` + subject + `","roomId":"` + room + `","groupId":"` + group + `"}`
	w := f.do(http.MethodPost, "/schedules", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var entry models.ScheduleEntry
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &entry))
	return entry
}

func TestTimetableHandlerSlotsAndWeek(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/time-slots", "")
	require.Equal(t, http.StatusOK, w.Code)
	var slots []models.TimeSlot
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &slots))
	assert.Len(t, slots, 5)

	w = f.do(http.MethodGet, "/weeks?date=2025-03-09&days=7", "")
	require.Equal(t, http.StatusOK, w.Code)
	var week struct {
		Start string   `json:"start"`
		End   string   `json:"end"`
		Days  []string `json:"days"`
		Next  string   `json:"next"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &week))
	assert.Equal(t, "2025-03-03", week.Start)
	assert.Equal(t, "2025-03-09", week.End)
	assert.Len(t, week.Days, 7)
	assert.Equal(t, "2025-03-10", week.Next)

	w = f.do(http.MethodGet, "/weeks?date=03/09/2025", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(http.MethodGet, "/weeks?days=4", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerGridCacheHeader(t *testing.T) {
	f := newAPIFixture(t)
	f.place(t, "2025-03-03", "08:30", "10:00", "math", "A101", "G1")
	f.place(t, "2025-03-03", "10:10", "11:40", "math", "A101", "G1")

	w := f.do(http.MethodGet, "/timetable/week?date=2025-03-05&groupId=G1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	env := decode(t, w)
	assert.Equal(t, false, env.Meta["cacheHit"])

	var grid struct {
		Days []struct {
			Date   string `json:"date"`
			Blocks []struct {
				Entries []models.ScheduleEntry `json:"entries"`
			} `json:"blocks"`
		} `json:"days"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &grid))
	require.Len(t, grid.Days, 6)
	require.Len(t, grid.Days[0].Blocks, 1)
	assert.Len(t, grid.Days[0].Blocks[0].Entries, 2)

	w = f.do(http.MethodGet, "/timetable/week?date=2025-03-05&groupId=G1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	f.place(t, "2025-03-04", "08:30", "10:00", "math", "A101", "G1")
	w = f.do(http.MethodGet, "/timetable/week?date=2025-03-05&groupId=G1", "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
}

func TestTimetableHandlerScopeRestrictions(t *testing.T) {
	f := newAPIFixture(t)
	f.place(t, "2025-03-03", "08:30", "10:00", "math", "A101", "G1")
	f.place(t, "2025-03-03", "08:30", "10:00", "phys", "B202", "G2")

	f.claims = &models.JWTClaims{UserID: "u-t2", Role: models.RoleTeacher, TeacherID: "t2"}
	w := f.do(http.MethodGet, "/schedules?from=2025-03-01&to=2025-03-31", "")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []models.ScheduleEntry
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "t2", entries[0].TeacherID)

	w = f.do(http.MethodGet, "/timetable/week?date=2025-03-03&teacherId=t1", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	f.claims = &models.JWTClaims{UserID: "u-s1", Role: models.RoleStudent, GroupID: "G1"}
	w = f.do(http.MethodGet, "/schedules", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "G1", entries[0].GroupID)

	w = f.do(http.MethodGet, "/schedules/"+entries[0].ID, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTimetableHandlerFreeRooms(t *testing.T) {
	f := newAPIFixture(t)
	f.place(t, "2025-03-03", "08:30", "10:00", "math", "A101", "G1")

	w := f.do(http.MethodGet, "/timetable/free-rooms?date=2025-03-03&slotId=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rooms []string
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &rooms))
	assert.Equal(t, []string{"B202"}, rooms)

	w = f.do(http.MethodGet, "/timetable/free-rooms?date=2025-03-03", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerExports(t *testing.T) {
	f := newAPIFixture(t)
	f.place(t, "2025-03-03", "08:30", "10:00", "math", "A101", "G1")

	w := f.do(http.MethodGet, "/timetable/export?format=csv&date=2025-03-03&groupId=G1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable_2025-03-03_G1.csv")
	assert.Contains(t, w.Body.String(), "MATH101")

	w = f.do(http.MethodGet, "/timetable/export?format=pdf&date=2025-03-03", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))

	w = f.do(http.MethodGet, "/timetable/export?format=xlsx", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/timetable/ical?from=2025-03-03&weeks=1&groupId=G1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/calendar")
	assert.Equal(t, 1, strings.Count(w.Body.String(), "BEGIN:VEVENT"))
}

func TestTimetableHandlerFeedLink(t *testing.T) {
	f := newAPIFixture(t)
	f.claims = &models.JWTClaims{UserID: "u-t1", Role: models.RoleTeacher, TeacherID: "t1"}

	w := f.do(http.MethodGet, "/timetable/feed-url", "")
	require.Equal(t, http.StatusOK, w.Code)
	var link struct {
		URL   string `json:"url"`
		Token string `json:"token"`
		Scope struct {
			TeacherID string `json:"teacherId"`
		} `json:"scope"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &link))
	assert.Equal(t, "/timetable/feed/"+link.Token, link.URL)

	w = f.do(http.MethodGet, link.URL+".ics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "BEGIN:VCALENDAR")

	w = f.do(http.MethodGet, "/timetable/feed/garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsHandlerReadyAndSnapshot(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "memory")

	w = f.do(http.MethodGet, "/metrics/summary", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
