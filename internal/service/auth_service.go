package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

// AuthConfig defines how access tokens are verified and, for tooling, minted.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// IssueTokenRequest describes a token minted by operator tooling. TEACHER
// tokens must name a teacher and STUDENT tokens a group.
type IssueTokenRequest struct {
	UserID    string          `validate:"required"`
	Email     string          `validate:"omitempty,email"`
	Role      models.UserRole `validate:"required,oneof=ADMIN DEPARTMENT_HEAD TEACHER STUDENT"`
	TeacherID string          `validate:"required_if=Role TEACHER"`
	GroupID   string          `validate:"required_if=Role STUDENT"`
}

// AuthService verifies bearer tokens issued by the campus identity provider.
type AuthService struct {
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = time.Hour
	}
	return &AuthService{validator: validate, logger: logger, config: config}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	role, ok := models.ParseUserRole(string(claims.Role))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token carries an unknown role")
	}
	claims.Role = role
	if claims.Role == models.RoleTeacher && claims.TeacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "teacher token without teacher_id")
	}
	if claims.Role == models.RoleStudent && claims.GroupID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "student token without group_id")
	}
	return claims, nil
}

// IssueToken signs an access token. The API never calls it; timetablectl uses
// it to mint tokens for local environments.
func (s *AuthService) IssueToken(req IssueTokenRequest) (string, time.Time, error) {
	if role, ok := models.ParseUserRole(string(req.Role)); ok {
		req.Role = role
	}
	if err := s.validator.Struct(req); err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid token request")
	}

	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID:    req.UserID,
		Role:      req.Role,
		Email:     strings.TrimSpace(req.Email),
		TeacherID: req.TeacherID,
		GroupID:   req.GroupID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   req.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	s.logger.Info("access token issued", zap.String("user_id", req.UserID), zap.String("role", string(req.Role)))
	return signed, expiresAt, nil
}
