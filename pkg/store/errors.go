// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrStorage is matched (with errors.Is) by every StorageError.
	ErrStorage = errors.New("weight store unavailable")

	// ErrKeyModeMismatch is returned when a store is opened with a creation key mode different
	// from the one it was initialized with.
	ErrKeyModeMismatch = errors.New("creation key mode mismatch")

	// ErrTxDone is returned when a transaction is used after Commit or Rollback.
	ErrTxDone = errors.New("transaction already committed or rolled back")

	// ErrNotInitialized is returned when the store tables don't exist yet.
	ErrNotInitialized = errors.New("store not initialized")
)

// StorageError wraps a failure of the underlying storage engine. They are fatal to the
// operation that got them, and are never retried.
type StorageError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage, e.Op, e.Err)
}

// Unwrap returns the engine error.
func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorage) true for any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// WrapStorage returns a *StorageError for op if err is not nil, otherwise nil.
func WrapStorage(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&StorageError{Op: fmt.Sprintf(format, args...), Err: err})
}
