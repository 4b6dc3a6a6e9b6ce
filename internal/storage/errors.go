package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var (
	// ErrStorage wraps I/O level failures from the underlying database.
	ErrStorage = errors.New("storage failure")

	// ErrLockContention marks a write that lost a lock or serialization
	// conflict after the bounded retries were exhausted.
	ErrLockContention = errors.New("storage lock contention")

	// ErrSourceNotFound is returned for lookups of unknown sources.
	ErrSourceNotFound = errors.New("source not found")
)

const (
	retryAttempts = 3
	retryBackoff  = 50 * time.Millisecond
)

// storageErr wraps a driver error into the ErrStorage taxonomy while keeping
// the cause inspectable with errors.Is/As.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// retryable reports whether the error is a transient lock/serialization
// conflict worth retrying.
func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01", "55P03": // serialization failure, deadlock, lock not available
		return true
	}
	return false
}

// retryableWrapped reports whether withRetry already classified the error as
// lock contention, so callers do not re-wrap it as a plain storage failure.
func retryableWrapped(err error) bool {
	return errors.Is(err, ErrLockContention)
}

// withRetry runs fn up to retryAttempts times, backing off between attempts
// on lock contention. Non-retryable errors surface immediately.
func withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		time.Sleep(retryBackoff * time.Duration(attempt+1))
	}
	return fmt.Errorf("%w: %w", ErrLockContention, err)
}
