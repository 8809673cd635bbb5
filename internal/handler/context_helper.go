package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/middleware"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/timetable"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// scopeFromQuery reads roomId, teacherId and groupId and narrows them to what
// the caller may see: teachers only their own timetable, students only their group's.
func scopeFromQuery(c *gin.Context) (timetable.Scope, error) {
	scope := timetable.Scope{
		RoomID:    strings.TrimSpace(c.Query("roomId")),
		TeacherID: strings.TrimSpace(c.Query("teacherId")),
		GroupID:   strings.TrimSpace(c.Query("groupId")),
	}
	return restrictScope(claimsFromContext(c), scope)
}

func restrictScope(claims *models.JWTClaims, scope timetable.Scope) (timetable.Scope, error) {
	if claims == nil {
		return scope, nil
	}
	switch claims.Role {
	case models.RoleTeacher:
		if scope.TeacherID != "" && scope.TeacherID != claims.TeacherID {
			return scope, appErrors.Clone(appErrors.ErrForbidden, "teachers may only view their own timetable")
		}
		scope.TeacherID = claims.TeacherID
	case models.RoleStudent:
		if scope.GroupID != "" && scope.GroupID != claims.GroupID {
			return scope, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own group")
		}
		scope.GroupID = claims.GroupID
	}
	return scope, nil
}

// dateQuery parses an optional YYYY-MM-DD parameter; absent means the zero date.
func dateQuery(c *gin.Context, name string) (civil.Date, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, name+" must be YYYY-MM-DD")
	}
	return d, nil
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, name+" must be an integer")
	}
	return v, nil
}

func boolQuery(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}

func bindJSON(c *gin.Context, dest interface{}) error {
	if err := c.ShouldBindJSON(dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
	}
	return nil
}
