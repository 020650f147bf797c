package storage

import (
	"errors"
	"regexp"
	"sync"
)

// ConflictError reports a storage uniqueness violation. Constraint names
// the violated constraint when the backend knows it (e.g. "client.name",
// "authorization.access_token_hash").
type ConflictError struct {
	Constraint string
	Err        error
}

func (e *ConflictError) Error() string {
	if e.Constraint == "" {
		return "storage: uniqueness conflict"
	}
	return "storage: uniqueness conflict on " + e.Constraint
}

func (e *ConflictError) Unwrap() error { return e.Err }

// NewConflictError creates a conflict error for the named constraint
func NewConflictError(constraint string) *ConflictError {
	return &ConflictError{Constraint: constraint}
}

// conflictPatterns is a compatibility shim for backends that cannot surface
// typed conflicts and only report text errors. Deployments on such backends
// register the duplicate-key signatures their driver emits.
var (
	conflictPatternsMu sync.RWMutex
	conflictPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^Error 1062[: ].*Duplicate entry\b`),               // MySQL
		regexp.MustCompile(`\bduplicate key value violates unique constraint\b`),   // PostgreSQL
		regexp.MustCompile(`\bUNIQUE constraint failed\b`),                         // SQLite
		regexp.MustCompile(`\bConstraintException\b`),                              // generic
	}
)

// RegisterConflictPattern appends a duplicate-key signature to the
// classification allow-list:
//
//	storage.RegisterConflictPattern(regexp.MustCompile(`DB2 found a dup`))
//
// Prefer returning *ConflictError from the store; this shim exists only for
// backends that cannot be adapted to the typed contract.
func RegisterConflictPattern(re *regexp.Regexp) {
	conflictPatternsMu.Lock()
	defer conflictPatternsMu.Unlock()
	conflictPatterns = append(conflictPatterns, re)
}

// IsConflict reports whether err is a storage uniqueness violation, either
// via the typed *ConflictError contract or via a registered text signature.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		return true
	}
	msg := err.Error()
	conflictPatternsMu.RLock()
	defer conflictPatternsMu.RUnlock()
	for _, re := range conflictPatterns {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}
