package models

import "strings"

// UserRole represents the roles recognised by the RBAC middleware.
type UserRole string

const (
	RoleAdmin          UserRole = "ADMIN"
	RoleDepartmentHead UserRole = "DEPARTMENT_HEAD"
	RoleTeacher        UserRole = "TEACHER"
	RoleStudent        UserRole = "STUDENT"
)

// ParseUserRole normalises a role name.
func ParseUserRole(raw string) (UserRole, bool) {
	role := UserRole(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleDepartmentHead, RoleTeacher, RoleStudent:
		return role, true
	}
	return role, false
}

// CanEditSchedule reports whether the role may place, move or remove entries.
func (r UserRole) CanEditSchedule() bool {
	return r == RoleAdmin || r == RoleDepartmentHead
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}
