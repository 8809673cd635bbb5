package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

func newAuthService() *AuthService {
	return NewAuthService(nil, zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "campus"})
}

func TestIssueAndValidateToken(t *testing.T) {
	svc := newAuthService()

	token, expiresAt, err := svc.IssueToken(IssueTokenRequest{UserID: "u1", Role: "teacher", TeacherID: "t1"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	assert.Equal(t, "t1", claims.TeacherID)
	assert.Equal(t, "campus", claims.Issuer)
}

func TestIssueTokenRequiresScopeForRole(t *testing.T) {
	svc := newAuthService()

	_, _, err := svc.IssueToken(IssueTokenRequest{UserID: "u1", Role: models.RoleTeacher})
	requireAppError(t, err, appErrors.ErrValidation.Code)

	_, _, err = svc.IssueToken(IssueTokenRequest{UserID: "u1", Role: models.RoleStudent})
	requireAppError(t, err, appErrors.ErrValidation.Code)

	_, _, err = svc.IssueToken(IssueTokenRequest{UserID: "u1", Role: "JANITOR"})
	requireAppError(t, err, appErrors.ErrValidation.Code)

	_, _, err = svc.IssueToken(IssueTokenRequest{UserID: "u1", Role: models.RoleAdmin})
	require.NoError(t, err)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := newAuthService()

	_, err := svc.ValidateToken("garbage")
	requireAppError(t, err, appErrors.ErrUnauthorized.Code)

	other := NewAuthService(nil, nil, AuthConfig{AccessTokenSecret: "other"})
	token, _, err := other.IssueToken(IssueTokenRequest{UserID: "u1", Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	requireAppError(t, err, appErrors.ErrUnauthorized.Code)

	claims := &models.JWTClaims{
		UserID: "u2",
		Role:   models.RoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(raw)
	requireAppError(t, err, appErrors.ErrUnauthorized.Code)

	claims.Role = "student"
	raw, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(raw)
	requireAppError(t, err, appErrors.ErrUnauthorized.Code)

	claims.Role = models.RoleAdmin
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	raw, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(raw)
	requireAppError(t, err, appErrors.ErrUnauthorized.Code)
}

func TestValidateTokenNormalisesRole(t *testing.T) {
	svc := newAuthService()

	claims := &models.JWTClaims{
		UserID:  "u3",
		Role:    " student ",
		GroupID: "G1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	validated, err := svc.ValidateToken(raw)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, validated.Role)
	assert.Equal(t, "G1", validated.GroupID)
}
