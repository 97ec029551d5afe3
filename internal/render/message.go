// Package render turns the platform-neutral Message into webhook JSON.
//
// Each platform registers a Renderer under its tag. Renderers never fail on
// content: oversized text is split or truncated, and anything they had to
// change is returned as Notes so the caller can surface it as a diagnostic.
package render

import (
	"fmt"
	"strings"

	"alerticorn/internal/event"
)

const (
	PlaceholderHeading = "(untitled)"
	PlaceholderBody    = "(no body)"

	ContentTypeJSON = "application/json"
)

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Message is the neutral, pre-serialization shape every renderer consumes.
// Kind is the event that produced it; renderers use it to pick a default
// color when Color is nil.
type Message struct {
	Kind    event.Kind `json:"kind,omitempty"`
	Heading string     `json:"heading"`
	Body    string     `json:"body"`
	Color   *int       `json:"color,omitempty"`
	Fields  []Field    `json:"fields,omitempty"`
	Footer  string     `json:"footer,omitempty"`
}

// Color returns a pointer for Message.Color.
func Color(c int) *int { return &c }

// Payload is a rendered request body.
type Payload struct {
	ContentType string
	Body        []byte
}

// Notes collects non-fatal adjustments a renderer made.
type Notes []string

func (n *Notes) Add(format string, args ...any) {
	*n = append(*n, fmt.Sprintf(format, args...))
}

type Renderer interface {
	Render(msg Message, notes *Notes) (Payload, error)
}

type RendererFunc func(msg Message, notes *Notes) (Payload, error)

func (f RendererFunc) Render(msg Message, notes *Notes) (Payload, error) { return f(msg, notes) }

// Split breaks s into chunks of at most n runes, preferring to cut just after
// a newline in the back half of each window. Concatenating the chunks
// yields s.
func Split(s string, n int) []string {
	if n <= 0 {
		return []string{s}
	}
	rs := []rune(s)
	if len(rs) <= n {
		return []string{s}
	}
	var out []string
	for len(rs) > n {
		cut := n
		for i := n - 1; i >= n/2; i-- {
			if rs[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(rs[:cut]))
		rs = rs[cut:]
	}
	if len(rs) > 0 {
		out = append(out, string(rs))
	}
	return out
}

// truncate caps s at n runes, ending with an ellipsis when it had to cut.
func truncate(s string, n int) (string, bool) {
	rs := []rune(s)
	if len(rs) <= n {
		return s, false
	}
	if n <= 1 {
		return string(rs[:n]), true
	}
	return string(rs[:n-1]) + "…", true
}

// ellipsize marks s as cut off, keeping it within n runes.
func ellipsize(s string, n int) string {
	rs := []rune(s)
	if len(rs) >= n {
		rs = rs[:n-1]
	}
	return string(rs) + "…"
}

func runeLen(s string) int { return len([]rune(s)) }

func blank(s string) bool { return strings.TrimSpace(s) == "" }
