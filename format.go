package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

var errUnknownFormat = errors.New("Unknown format")

// parseFormat accepts the exact format names; empty means Markdown.
func parseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatMarkdown, nil
	case FormatJSON, FormatMarkdown, FormatText:
		return f, nil
	}
	return "", fmt.Errorf("%w: %s", errUnknownFormat, s)
}

// Extension is used for archived transcripts.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatText:
		return "txt"
	default:
		return "md"
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "text/markdown; charset=utf-8"
	}
}

// render formats a conversation. JSON always carries the whole conversation;
// the window only applies to Markdown and text.
func render(conv *Conversation, format Format, includeMetadata bool, spec WindowSpec) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(conv)
	case FormatMarkdown:
		return formatMarkdown(conv, includeMetadata, selectWindow(conv.Chain(), spec)), nil
	case FormatText:
		return formatText(conv, includeMetadata, selectWindow(conv.Chain(), spec)), nil
	}
	return "", fmt.Errorf("%w: %s", errUnknownFormat, format)
}

func formatMarkdown(conv *Conversation, includeMetadata bool, w window) string {
	var b strings.Builder

	if includeMetadata {
		b.WriteString("# ChatGPT Conversation\n\n")
		if conv.Title != "" {
			fmt.Fprintf(&b, "**Title:** %s\n\n", conv.Title)
		}
		if ts, ok := isoTimestamp(conv.CreateTime); ok {
			fmt.Fprintf(&b, "**Created:** %s\n\n", ts)
		}
		if ts, ok := isoTimestamp(conv.UpdateTime); ok {
			fmt.Fprintf(&b, "**Updated:** %s\n\n", ts)
		}
		b.WriteString("---\n\n")
	}

	for _, m := range w.Messages {
		fmt.Fprintf(&b, "## %s\n\n", capitalize(string(m.Role)))
		fmt.Fprintf(&b, "%s\n\n", m.Body())
	}

	if notice := elisionNotice(w); notice != "" {
		fmt.Fprintf(&b, "\n*%s*\n", notice)
	}
	return b.String()
}

func formatText(conv *Conversation, includeMetadata bool, w window) string {
	var b strings.Builder

	if includeMetadata {
		b.WriteString("ChatGPT Conversation\n")
		b.WriteString("=====================\n\n")
		if conv.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", conv.Title)
		}
		if ts, ok := isoTimestamp(conv.CreateTime); ok {
			fmt.Fprintf(&b, "Created: %s\n", ts)
		}
		if ts, ok := isoTimestamp(conv.UpdateTime); ok {
			fmt.Fprintf(&b, "Updated: %s\n", ts)
		}
		b.WriteString("\n")
	}

	for _, m := range w.Messages {
		fmt.Fprintf(&b, "%s:\n%s\n\n", strings.ToUpper(string(m.Role)), m.Body())
	}

	if notice := elisionNotice(w); notice != "" {
		fmt.Fprintf(&b, "\n%s\n", notice)
	}
	return b.String()
}

// elisionNotice describes messages left out of the window, or returns empty
// string when the whole chain is shown.
func elisionNotice(w window) string {
	if !w.Elided() {
		return ""
	}
	switch {
	case w.Skipped > 0 && w.Truncated > 0:
		return fmt.Sprintf("... (%d messages skipped before, %d messages truncated after)", w.Skipped, w.Truncated)
	case w.Skipped > 0:
		return fmt.Sprintf("... (%d messages skipped before)", w.Skipped)
	case w.Truncated > 0:
		return fmt.Sprintf("... (%d more messages truncated)", w.Truncated)
	}
	return ""
}

type jsonEnvelope struct {
	Conversation *Conversation `json:"conversation"`
	Metadata     jsonMetadata  `json:"metadata"`
}

type jsonMetadata struct {
	Title        *string  `json:"title,omitempty"`
	CreateTime   *float64 `json:"create_time,omitempty"`
	UpdateTime   *float64 `json:"update_time,omitempty"`
	MessageCount int      `json:"message_count"`
}

func formatJSON(conv *Conversation) (string, error) {
	env := jsonEnvelope{
		Conversation: conv,
		Metadata: jsonMetadata{
			CreateTime:   conv.CreateTime,
			UpdateTime:   conv.UpdateTime,
			MessageCount: conv.NodeCount(),
		},
	}
	if conv.Title != "" {
		env.Metadata.Title = &conv.Title
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return "", fmt.Errorf("encode conversation: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// isoTimestamp formats epoch seconds as UTC ISO-8601 with milliseconds. Unset
// and zero timestamps are skipped.
func isoTimestamp(epoch *float64) (string, bool) {
	if epoch == nil || *epoch == 0 {
		return "", false
	}
	ms := int64(*epoch * 1000)
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z"), true
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
