// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package civ

import (
	"fmt"
	"regexp"
	"strings"
)

// Default civilization name limits. The configured limits may differ;
// these are the fallbacks used when no limits are supplied.
const (
	DefaultMinNameLength = 3
	DefaultMaxNameLength = 20
)

// nameRegex restricts civilization names to letters, digits, spaces,
// underscores and hyphens.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_\- ]+$`)

// ValidateName checks a civilization name against the given limits.
// The name is trimmed before checking. Errors are *ValidationError with
// a field of "name" and a stable message prefix so callers can map them
// to result codes (too short / too long / invalid).
func ValidateName(name string, minLen, maxLen int) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "name", Message: "invalid: cannot be empty"}
	}
	if len(name) < minLen {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("too short: minimum length is %d", minLen)}
	}
	if len(name) > maxLen {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("too long: maximum length is %d", maxLen)}
	}
	if !nameRegex.MatchString(name) {
		return &ValidationError{Field: "name", Message: "invalid: only letters, digits, spaces, underscores and hyphens are allowed"}
	}
	return nil
}

// NormalizeName canonicalizes a name for uniqueness comparison.
// Names are unique case-insensitively.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
