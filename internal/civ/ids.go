// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package civ

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewID generates a new entity ID.
// IDs are ULIDs rendered as strings so they sort by creation time.
func NewID() string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// ParseID validates an entity ID string.
func ParseID(s string) (string, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID %q: %w", s, err)
	}
	return id.String(), nil
}
