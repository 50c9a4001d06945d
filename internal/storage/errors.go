package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"fintrack/internal/core"
)

// mapError translates driver errors into the core error taxonomy. Errors that
// already belong to the taxonomy pass through unchanged.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if core.IsValidation(err) || core.IsNotFound(err) || core.IsIntegrity(err) || core.IsTransient(err) {
		return err
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return &core.IntegrityError{Op: op, Err: err}
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return &core.TransientStoreError{Op: op, Err: err}
		}
	}

	// golang-migrate flattens driver errors into strings
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return &core.TransientStoreError{Op: op, Err: err}
	}

	return fmt.Errorf("%s: %w", op, err)
}

func notFound(entity, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &core.NotFoundError{Entity: entity, ID: id}
	}
	return mapError("get "+entity, err)
}
