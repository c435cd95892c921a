// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package civ

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across engines and storage.
var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique constraint is violated,
	// e.g. two claims for the same chunk key.
	ErrDuplicate = errors.New("duplicate entity")

	// ErrPermissionDenied is returned when an operation is not authorized.
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError represents an input validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
