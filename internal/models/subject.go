package models

import "time"

// Subject represents a course offering; each subject is taught by exactly one teacher.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	TeacherID string    `db:"teacher_id" json:"teacherId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// SubjectFilter narrows subject listings.
type SubjectFilter struct {
	Search    string
	TeacherID string
	Page      int
	PageSize  int
}
