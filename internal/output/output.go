// Package output provides formatting utilities for agent-friendly CLI
// output.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// HTMLToMarkdown converts HTML content to Markdown. Returns the original
// content if conversion fails or content is empty.
func HTMLToMarkdown(html string) string {
	if html == "" {
		return ""
	}

	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return html
	}

	return strings.TrimSpace(md)
}

// ListResponse is a list result in the Graph API envelope shape.
type ListResponse struct {
	Value any `json:"value"`
	Count int `json:"@odata.count,omitempty"`
}

// ErrorResponse is the machine-parseable failure shape for JSON-mode
// runs. It is emitted on stdout; the process still exits non-zero.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes a value as indented JSON to the writer.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteList writes values in the list envelope.
func WriteList(w io.Writer, value any, count int) error {
	return WriteJSON(w, &ListResponse{Value: value, Count: count})
}

// WriteError writes a failure as a JSON error object. Encoding a flat
// string struct cannot fail, and there is no better channel to report a
// write error on.
func WriteError(w io.Writer, err error) {
	_ = WriteJSON(w, &ErrorResponse{Error: err.Error()})
}

// ConvertBodyHTML rewrites an HTML content/type pair to Markdown.
// Non-HTML content is returned unchanged.
func ConvertBodyHTML(contentType, content string) (string, string) {
	if !strings.EqualFold(contentType, "HTML") {
		return contentType, content
	}
	return "Markdown", HTMLToMarkdown(content)
}

// Truncate shortens s to at most n runes for single-line summaries.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return fmt.Sprintf("%s...", string(runes[:n]))
}
