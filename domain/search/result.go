package search

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Notes attached to responses.
const (
	NoteFinal        = "These are the complete and final search results for this query. Do not search again; answer using these results."
	NoteNoMatches    = "No matching documents found. Answer from general knowledge."
	NoteNoAccess     = "No documents are available to this user. Answer from general knowledge."
	NoteUnavailable  = "No results found, answer from general knowledge."
	truncationFormat = "\n\n[Truncated. Use get_document_page(%q) for full text.]"
)

// Result is one ranked unit.
type Result struct {
	Key       string  `json:"key"`
	Content   string  `json:"content,omitempty"`
	Relevance float64 `json:"relevance"`
}

// Response is the outcome of a retrieval call.
type Response struct {
	Results []Result `json:"results"`
	Note    string   `json:"note"`
}

// EmptyResponse returns a response with no results and the given note.
func EmptyResponse(note string) Response {
	return Response{Results: []Result{}, Note: note}
}

// Truncate cuts content to at most limit characters and appends a marker
// naming the page-fetch call for key. Content within the limit is returned
// unchanged.
func Truncate(key, content string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(content) <= limit {
		return content
	}
	var b strings.Builder
	n := 0
	for _, r := range content {
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	b.WriteString(fmt.Sprintf(truncationFormat, key))
	return b.String()
}

// HasAnyPrefix reports whether key starts with one of prefixes.
func HasAnyPrefix(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
