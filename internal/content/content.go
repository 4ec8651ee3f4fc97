package content

import (
	"errors"
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// MaxLength is the maximum message length in runes. Longer content is truncated.
	MaxLength = 5000
	// Tombstone replaces the content of a deleted message.
	Tombstone = "This message was deleted"
)

var (
	policy        = bluemonday.StrictPolicy()
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	jsURIRegex    = regexp.MustCompile(`(?i)javascript\s*:`)
	// An on* attribute inside what is left of an unterminated tag.
	handlerRegex = regexp.MustCompile(`(?i)(<[a-z][^<>]*?)\s+on[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]*)`)

	ErrInvalidURL = errors.New("invalid url")
)

// Sanitize reduces user input to plain text: script and style elements are
// dropped with their content, every other tag is stripped, and javascript:
// URIs and inline event handlers are removed. Entities escaped by the
// policy are decoded back, so "Tom & Jerry" survives unchanged.
func Sanitize(input string) string {
	out := input
	// Decoding may reveal markup that was entity-encoded in the input, so
	// repeat until nothing changes. A productive pass decodes at least one
	// entity, which bounds the passes by the input length.
	for range len(input) + 1 {
		next := html.UnescapeString(policy.Sanitize(out))
		next = jsURIRegex.ReplaceAllString(next, "")
		next = stripHandlers(next)
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	// Still changing: keep the escaped form, which cannot carry markup.
	return strings.TrimSpace(policy.Sanitize(out))
}

func stripHandlers(s string) string {
	for {
		next := handlerRegex.ReplaceAllString(s, "$1")
		if next == s {
			return s
		}
		s = next
	}
}

// Truncate cuts s to at most MaxLength runes.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxLength])
}

// Clean sanitizes and truncates message content.
func Clean(input string) string {
	return Truncate(Sanitize(input))
}

// Preview shortens content for notification records.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

// ValidateMediaURL accepts only absolute http and https URLs.
func ValidateMediaURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// ValidateUsername checks if the username contains only allowed characters
// (alphanumeric, dot, dash, underscore) and is not empty.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}
