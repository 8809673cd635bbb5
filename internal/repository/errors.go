package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrOverlap reports that the database rejected a write because an active entry
// already holds the room, teacher or group for an overlapping interval.
var ErrOverlap = errors.New("schedule entry overlaps an active entry")

// ErrDuplicate reports a unique constraint violation.
var ErrDuplicate = errors.New("duplicate record")

const (
	pqExclusionViolation = "23P01"
	pqUniqueViolation    = "23505"
)

// translate maps driver errors onto repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqExclusionViolation:
			return ErrOverlap
		case pqUniqueViolation:
			return ErrDuplicate
		}
	}
	return err
}
