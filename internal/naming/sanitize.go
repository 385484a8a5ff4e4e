// Package naming holds the two name transformations the scenario service
// depends on: scenario display names to storage keys, and engine-native
// variable names to client-facing canonical names.
package naming

import "strings"

// Sanitize turns a scenario display name into a storage key. Surrounding
// whitespace is trimmed, each inner space becomes an underscore, and every
// rune outside [A-Za-z0-9_.-] is dropped.
//
// Sanitize is total and idempotent. It can return "" for names made only of
// rejected runes; callers decide whether an empty key is acceptable.
func Sanitize(name string) string {
	trimmed := strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		switch {
		case r == ' ':
			b.WriteByte('_')
		case isKeyRune(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '-', r == '.':
		return true
	}
	return false
}
