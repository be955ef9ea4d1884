package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrAttemptLimitReached is returned by InsertSession when the limit was already used up.
	ErrAttemptLimitReached = errors.New("attempt limit reached")
	// ErrDuplicate wraps unique constraint violations.
	ErrDuplicate = errors.New("duplicate record")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
