package main

import (
	"errors"
	"net/url"
	"strings"
	"unicode"
)

// conversationURLMarkers are the path segments that identify a shared conversation page.
var conversationURLMarkers = []string{"chatgpt.com/c/", "chatgpt.com/share/"}

var errInvalidURL = errors.New("Invalid ChatGPT shared conversation URL. URL should be in format: https://chatgpt.com/c/<conversation-id> or https://chatgpt.com/share/<conversation-id>")

// validateConversationURL rejects anything that is not an absolute http(s) URL
// containing one of the known conversation path markers.
func validateConversationURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return errInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errInvalidURL
	}
	for _, m := range conversationURLMarkers {
		if strings.Contains(rawURL, m) {
			return nil
		}
	}
	return errInvalidURL
}

// extractConversationID returns the identifier following the path marker, or
// empty string when none is found.
func extractConversationID(rawURL string) string {
	for _, m := range conversationURLMarkers {
		i := strings.Index(rawURL, m)
		if i < 0 {
			continue
		}
		rest := rawURL[i+len(m):]
		// stop at the next path, query or fragment separator
		if j := strings.IndexAny(rest, "/?#"); j >= 0 {
			rest = rest[:j]
		}
		if isConversationID(rest) {
			return rest
		}
	}
	return ""
}

func isConversationID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '-' && !unicode.IsDigit(r) && !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
