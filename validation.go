package rockoauth

import (
	"net/url"
	"sort"
	"strings"
)

// ValidationError reports malformed or missing input on a registration or
// grant request. The caller fixes the request; it is never retried
// automatically.
type ValidationError struct {
	// Fields maps each failing field to a human-readable reason
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// validateClientParams checks the caller-supplied registration fields.
// Uniqueness of the name is checked separately against storage.
func validateClientParams(name, redirectURI string) *ValidationError {
	fields := make(map[string]string)

	if name == "" {
		fields["name"] = "is required"
	}
	if redirectURI == "" {
		fields["redirect_uri"] = "is required"
	} else if reason := redirectURIProblem(redirectURI); reason != "" {
		fields["redirect_uri"] = reason
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// redirectURIProblem returns a reason the redirect URI is unusable, or "".
// CR/LF characters are rejected so a stored URI can never split a response
// header when echoed in a redirect.
func redirectURIProblem(redirectURI string) string {
	if strings.ContainsAny(redirectURI, "\r\n") {
		return "must not contain CR/LF characters"
	}
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return "must be a valid URI"
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return "must be an absolute URI"
	}
	return ""
}
