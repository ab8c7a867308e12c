package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes we branch on.
const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

// IsUniqueViolation reports whether the error is a uniqueness constraint
// violation. Used to swallow the documented duplicate-summary race and to
// tolerate concurrent student-item creation.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	// sqlite (tests) does not expose a typed error through gorm.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsLockNotAvailable reports whether a NOWAIT row lock could not be acquired
// because another transaction holds it.
func IsLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgLockNotAvailable
	}
	return false
}
