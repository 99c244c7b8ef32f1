package validation

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	sessionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// ValidateSessionID ensures session ids are safe for URLs, file names and
// log lines (letters, digits, dash, underscore, max 64 chars).
func ValidateSessionID(session string) error {
	trimmed := strings.TrimSpace(session)
	if trimmed == "" {
		return errors.New("session id cannot be empty")
	}
	if !sessionPattern.MatchString(trimmed) {
		return errors.New("session id must be alphanumeric with dash or underscore, max 64 characters")
	}
	return nil
}

// ValidateURL ensures a non-empty valid URL when provided.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("url cannot be empty")
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return errors.New("url must be valid")
	}
	return nil
}
