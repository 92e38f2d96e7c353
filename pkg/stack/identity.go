// Package stack executes declarative infrastructure programs through an
// engine invoked as a subprocess, one stack per project and resource type.
package stack

import "strings"

// Identity is a sanitized stack name safe for the engine and for filesystem
// state paths.
type Identity string

// SanitizeName lowercases the input and replaces every rune outside
// [a-z0-9-] with a hyphen. Applying it twice yields the same result.
func SanitizeName(raw string) string {
	lowered := strings.ToLower(raw)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return b.String()
}

// NewIdentity derives the stack identity for a project and resource type.
func NewIdentity(project, resourceType string) Identity {
	return Identity(SanitizeName(project + "-" + resourceType))
}

// String returns the stack name passed to the engine.
func (i Identity) String() string {
	return string(i)
}
