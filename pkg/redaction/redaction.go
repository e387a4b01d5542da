// Package redaction scrubs user-supplied content out of HTTP error messages
// before they reach a client, per spec §6.1: "Never echo user-supplied
// fields into error messages unredacted." Adapted down from the
// CompiledPattern regex-masking approach, dropping the YAML/JSON
// structure-aware Masker path and config-driven pattern groups this service
// has no use for — every error message here is a short, flat string.
package redaction

import "regexp"

// CompiledPattern pairs a regex with what to replace a match with.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// defaultPatterns catch the categories of user-supplied data most likely to
// leak into a validation or conflict error message: bearer tokens, emails,
// and raw UUIDs that could fingerprint another user's records.
var defaultPatterns = []*CompiledPattern{
	{
		Name:        "bearer-token",
		Regex:       regexp.MustCompile(`(?i)bearer\s+[a-z0-9._-]+`),
		Replacement: "bearer [redacted]",
	},
	{
		Name:        "email",
		Regex:       regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		Replacement: "[redacted-email]",
	},
	{
		Name:        "uuid",
		Regex:       regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`),
		Replacement: "[id]",
	},
}

// Redactor applies a fixed set of patterns to error message strings.
type Redactor struct {
	patterns []*CompiledPattern
}

// New builds a Redactor over the default pattern set.
func New() *Redactor {
	return &Redactor{patterns: defaultPatterns}
}

// Redact returns msg with every matched pattern replaced. Defensive by
// construction: a Redactor with no patterns (zero value) returns msg
// unchanged rather than panicking.
func (r *Redactor) Redact(msg string) string {
	if r == nil {
		return msg
	}
	for _, p := range r.patterns {
		msg = p.Regex.ReplaceAllString(msg, p.Replacement)
	}
	return msg
}
