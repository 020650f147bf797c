// Package ident generates collision-free random identifiers and computes
// the one-way digest under which bearer material is stored. Identifiers are
// produced by crypto/rand (no lower-security fallback source exists on any
// supported platform) and carry well over the 160-bit entropy floor, so a
// repeated value indicates storage misbehavior rather than chance.
package ident

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"

	"golang.org/x/oauth2"
)

// MaxAttempts bounds the generate-and-check loop. With 256 bits of entropy
// per candidate, exhausting it means the acceptance predicate or the
// storage layer is systematically rejecting fresh values.
const MaxAttempts = 10

// ErrGenerateExhausted is returned when MaxAttempts candidates were all
// rejected by the acceptance predicate.
var ErrGenerateExhausted = errors.New("ident: exhausted identifier generation attempts")

// Random returns a fresh high-entropy identifier: a URL-safe base64 string
// carrying 256 bits from a cryptographically strong source.
func Random() string {
	return oauth2.GenerateVerifier()
}

// GenerateUnique produces random identifiers until predicate accepts one
// and returns the accepted identifier. The predicate typically checks that
// no stored row already uses the candidate, satisfying storage uniqueness
// constraints before a write is attempted. The loop is bounded by
// MaxAttempts; exhaustion returns ErrGenerateExhausted.
func GenerateUnique(predicate func(candidate string) bool) (string, error) {
	for i := 0; i < MaxAttempts; i++ {
		candidate := Random()
		if predicate(candidate) {
			return candidate, nil
		}
	}
	return "", ErrGenerateExhausted
}

// Hash computes the stored form of a secret or token: a deterministic
// one-way SHA-1 hex digest. The digest is used only as an opaque lookup key,
// never for password storage (client secrets use bcrypt).
//
// The empty string maps to the empty sentinel rather than to sha1(""), so a
// lookup on an absent token can never match a row, including rows whose
// stored hash is itself empty — stores treat the empty digest as no-match.
func Hash(token string) string {
	if token == "" {
		return ""
	}
	sum := sha1.Sum([]byte(token))
	return hex.EncodeToString(sum[:])
}
