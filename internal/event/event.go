// Package event defines the closed set of lifecycle events a host runner feeds
// into the engine, and the filter that decides whether a spec emits for one.
package event

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	Start         Kind = "START"
	Success       Kind = "SUCCESS"
	Fail          Kind = "FAIL"
	Skip          Kind = "SKIP"
	Finish        Kind = "FINISH"
	SuiteStart    Kind = "SUITE_START"
	SuiteComplete Kind = "SUITE_COMPLETE"
)

// Kinds lists every event kind in declaration order.
var Kinds = []Kind{Start, Success, Fail, Skip, Finish, SuiteStart, SuiteComplete}

func (k Kind) Valid() bool {
	_, ok := kindBits[k]
	return ok
}

// IsSuite reports whether k is an aggregate (suite-scope) event.
func (k Kind) IsSuite() bool { return k == SuiteStart || k == SuiteComplete }

func (k Kind) String() string { return string(k) }

// ParseKind accepts any casing and '-' or ' ' in place of '_'.
func ParseKind(s string) (Kind, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	k := Kind(norm)
	if !k.Valid() {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

// Throwable describes the failure attached to an outcome.
type Throwable struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (t *Throwable) Error() string {
	if t == nil {
		return ""
	}
	if t.Type == "" {
		return t.Message
	}
	return t.Type + ": " + t.Message
}

// Outcome is a single item-scope event. ItemID is opaque: the engine only
// compares and hashes it.
type Outcome struct {
	Kind      Kind          `json:"kind"`
	ItemID    string        `json:"item_id"`
	GroupID   string        `json:"group_id,omitempty"`
	ItemLabel string        `json:"item_label"`
	Throwable *Throwable    `json:"throwable,omitempty"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`
}

// Summary is assembled by the host adapter for aggregate events.
type Summary struct {
	Total      int   `json:"total"`
	Passed     int   `json:"passed"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
	DurationMS int64 `json:"duration_ms"`
}

// SuiteEvent is an aggregate event (SUITE_START or SUITE_COMPLETE).
type SuiteEvent struct {
	Kind    Kind    `json:"kind"`
	SuiteID string  `json:"suite_id,omitempty"`
	Summary Summary `json:"summary"`
}
