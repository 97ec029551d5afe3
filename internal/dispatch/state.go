package dispatch

import (
	"fmt"

	"alerticorn/internal/event"
)

// State is where a job is in the pipeline. Transitions only move forward;
// Dropped is terminal and reachable from every other state except Sent.
type State int

const (
	Received State = iota
	Resolved
	FilteredIn
	Rendered
	Sent
	Dropped
)

func (s State) String() string {
	switch s {
	case Received:
		return "RECEIVED"
	case Resolved:
		return "RESOLVED"
	case FilteredIn:
		return "FILTERED_IN"
	case Rendered:
		return "RENDERED"
	case Sent:
		return "SENT"
	case Dropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Sent || s == Dropped }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ReasonFiltered is the drop reason for events outside the resolved mask.
// Every other reason is a diag.Kind.
const ReasonFiltered = "Filtered"

// Delivery is the final state of one job.
type Delivery struct {
	JobID    string
	ItemID   string
	Kind     event.Kind
	State    State
	Reason   string
	Platform string
	Status   int
	Attempts int
}

// Delivered reports whether the payload reached the webhook.
func (d Delivery) Delivered() bool { return d.State == Sent }

func (d *Delivery) advance(to State) {
	if d.State.Terminal() || to <= d.State {
		panic(fmt.Sprintf("dispatch: illegal transition %s -> %s", d.State, to))
	}
	d.State = to
}
