package core

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed input. Err is usually one of the
// package sentinels (ErrInvalidAmount, ErrMissingDestination, ...).
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError reports a missing transaction, account, category or budget.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// IntegrityError wraps a referential or check constraint violation raised by the store.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: integrity violation: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// TransientStoreError wraps lock contention on the store. Only maintenance
// paths retry it.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: store busy: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// CacheInconsistencyWarning is logged when budget cache invalidation fails
// after the ledger write already committed. It never fails the write.
type CacheInconsistencyWarning struct {
	TransactionID string
	Err           error
}

func (e *CacheInconsistencyWarning) Error() string {
	return fmt.Sprintf("budget cache may be stale after transaction %s: %v", e.TransactionID, e.Err)
}

func (e *CacheInconsistencyWarning) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsIntegrity(err error) bool {
	var target *IntegrityError
	return errors.As(err, &target)
}

func IsTransient(err error) bool {
	var target *TransientStoreError
	return errors.As(err, &target)
}
