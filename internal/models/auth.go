package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the access token payload issued by the identity provider.
// TeacherID and GroupID pin TEACHER and STUDENT tokens to their own timetable.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	Email     string   `json:"email"`
	TeacherID string   `json:"teacher_id,omitempty"`
	GroupID   string   `json:"group_id,omitempty"`
	jwt.RegisteredClaims
}
