package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxNameLength bounds a name-service entry.
const MaxNameLength = 255

// NameRecord associates a target service with a name and hashes inside one
// name service.
type NameRecord struct {
	NS     ID           `json:"ns"`
	Target ID           `json:"target"`
	Prefix *string      `json:"prefix,omitempty"`
	Name   *string      `json:"name,omitempty"`
	Hashes []CryptoHash `json:"hashes"`
}

// ValidateName checks a human-readable name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: not utf-8", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLength)
	}
	return nil
}

// Matches reports whether the record carries the hash.
func (r *NameRecord) Matches(h CryptoHash) bool {
	for _, have := range r.Hashes {
		if have == h {
			return true
		}
	}
	return false
}
