package headers

import (
	"strings"
)

// Headers maps header names to values. Keys are case-sensitive and a later
// value for the same key replaces the earlier one.
type Headers map[string]string

// NewHeaders creates an empty header set
func NewHeaders() Headers {
	return make(Headers)
}

// Set stores value under key, replacing any previous value
func (h Headers) Set(key, value string) {
	h[key] = value
}

// Get returns the value for key and whether it was present
func (h Headers) Get(key string) (string, bool) {
	v, ok := h[key]
	return v, ok
}

// Lookup is a case-insensitive Get, used for framing headers such as
// Content-Length where clients disagree on capitalization.
func (h Headers) Lookup(key string) (string, bool) {
	if v, ok := h[key]; ok {
		return v, true
	}
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// ParseLine parses a single "Key: Value" line into h.
// Lines without a colon are skipped and reported as not parsed.
func (h Headers) ParseLine(line string) bool {
	key, value, found := strings.Cut(line, ":")
	if !found {
		return false
	}
	h.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	return true
}
