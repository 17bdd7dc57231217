// Package session extracts, validates, and generates conversation
// identifiers. Real ids arrive on the child's first stdout lines; when
// none arrives in time, a synthetic id with the same shape keeps the run
// uniform downstream at the cost of resumability.
package session

import "github.com/oklog/ulid/v2"

// IDLength is the exact length of a session identifier.
const IDLength = 26

// ValidID reports whether s has the required session-id shape: exactly 26
// alphanumeric characters. Shorter, longer, or punctuated values are
// rejected so a malformed id is never accepted over a later valid one.
func ValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			continue
		}

		return false
	}

	return true
}

// SyntheticID generates a locally-unique identifier with the same 26-char
// alphanumeric shape as a real session id. ULIDs are 26 Crockford-base32
// characters, so they satisfy ValidID without any reshaping.
func SyntheticID() string {
	return ulid.Make().String()
}
