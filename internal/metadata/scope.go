// Package metadata merges the scope chain attached to an item into the
// effective notification spec for one event.
//
// Precedence is strict nearest-wins per attribute. A narrower scope that
// declares an event mask replaces the wider one; masks never union.
package metadata

import (
	"alerticorn/internal/event"
	"alerticorn/internal/render"
)

// Level is where a scope was declared.
type Level int

const (
	ItemLevel Level = iota
	GroupLevel
	SuiteLevel
	// DefaultsLevel is the engine-provided fallback built from
	// AC_DEFAULT_PLATFORM and AC_DEFAULT_CHANNEL. It is always last.
	DefaultsLevel
)

func (l Level) String() string {
	switch l {
	case ItemLevel:
		return "item"
	case GroupLevel:
		return "group"
	case SuiteLevel:
		return "suite"
	case DefaultsLevel:
		return "defaults"
	default:
		return "unknown"
	}
}

// BodyBuilder turns the title and the supplied result into a message.
type BodyBuilder func(title string, result any) render.Message

// ResultSupplier produces the value handed to the body builder. A returned
// error or a panic is reported as a FAIL outcome by the programmatic entry
// point.
type ResultSupplier func() (any, error)

type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Scope is one record of a scope chain. Zero values mean "not declared".
// Text is static message text shown above what the body builder produces.
type Scope struct {
	Level    Level
	Title    string
	Platform string
	Channel  string
	Events   event.Mask
	Text     string
	Body     BodyBuilder
	Result   ResultSupplier
	// Template names a registered body builder. Body wins when a scope sets
	// both.
	Template string
	Fields   []render.Field
	Links    []Link
}

// Spec is the effective, resolved form. Title is never empty and Events is
// never empty. Body and Result may be nil, meaning the defaults apply.
type Spec struct {
	Title    string
	Platform string
	Channel  string
	Events   event.Mask
	Text     string
	Body     BodyBuilder
	Result   ResultSupplier
	Fields   []render.Field
}

// Chain builds a scope chain ordered item, group, suite, skipping nil
// entries. Levels are set from position.
func Chain(item, group, suite *Scope) []Scope {
	var out []Scope
	for i, s := range []*Scope{item, group, suite} {
		if s == nil {
			continue
		}
		c := *s
		c.Level = Level(i)
		out = append(out, c)
	}
	return out
}
