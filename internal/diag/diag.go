// Package diag carries engine diagnostics out of the pipeline.
//
// The engine never returns errors into host code. Every drop, placeholder
// substitution, and delivery failure is reported as a Diagnostic through a
// Sink instead.
package diag

import (
	"sync"
	"time"

	"alerticorn/internal/eventbus"
	logx "alerticorn/pkg/logx"
)

type Kind string

const (
	UnresolvedChannel Kind = "UnresolvedChannel"
	MissingPlatform   Kind = "MissingPlatform"
	MissingChannel    Kind = "MissingChannel"
	MissingTemplate   Kind = "MissingTemplate"
	UnknownPlatform   Kind = "UnknownPlatform"
	RendererError     Kind = "RendererError"
	TransportError    Kind = "TransportError"
	InternalError     Kind = "InternalError"
	QueueFull         Kind = "QueueFull"
	NotRunning        Kind = "NotRunning"
	ShutdownDropped   Kind = "ShutdownDropped"
)

// Diagnostic describes one problem. Only Kind and Message are always set.
type Diagnostic struct {
	Kind     Kind      `json:"kind"`
	Message  string    `json:"message"`
	JobID    string    `json:"job_id,omitempty"`
	ItemID   string    `json:"item_id,omitempty"`
	Event    string    `json:"event,omitempty"`
	Platform string    `json:"platform,omitempty"`
	Channel  string    `json:"channel,omitempty"`
	Tried    string    `json:"tried,omitempty"`
	Status   int       `json:"status,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	Count    int       `json:"count,omitempty"`
	Err      error     `json:"-"`
	At       time.Time `json:"at"`
}

type Sink interface {
	Report(d Diagnostic)
}

type SinkFunc func(d Diagnostic)

func (f SinkFunc) Report(d Diagnostic) { f(d) }

// Nop discards everything.
var Nop Sink = SinkFunc(func(Diagnostic) {})

// NewLogSink writes diagnostics to log. RendererError is a warning since the
// message is still delivered; everything else is an error.
func NewLogSink(log logx.Logger) Sink {
	if log.IsZero() {
		log = logx.NewConsole("info")
	}
	return SinkFunc(func(d Diagnostic) {
		fields := []logx.Field{
			logx.String("kind", string(d.Kind)),
			logx.Job(d.JobID),
			logx.Item(d.ItemID),
			logx.Platform(d.Platform),
		}
		if d.Event != "" {
			fields = append(fields, logx.String("event", d.Event))
		}
		if d.Tried != "" {
			fields = append(fields, logx.String("tried", d.Tried))
		}
		if d.Status != 0 {
			fields = append(fields, logx.Int("status", d.Status))
		}
		if d.Attempts != 0 {
			fields = append(fields, logx.Int("attempts", d.Attempts))
		}
		if d.Count != 0 {
			fields = append(fields, logx.Int("count", d.Count))
		}
		fields = append(fields, logx.Err(d.Err))
		if d.Kind == RendererError {
			log.Warn(d.Message, fields...)
			return
		}
		log.Error(d.Message, fields...)
	})
}

// NewBusSink publishes diagnostics on bus as "diag.<Kind>" events.
func NewBusSink(bus eventbus.Bus) Sink {
	if bus == nil {
		return Nop
	}
	return SinkFunc(func(d Diagnostic) {
		bus.Publish(eventbus.Event{Type: eventbus.DiagPrefix + string(d.Kind), Time: d.At, Data: d})
	})
}

// Multi fans a diagnostic out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return SinkFunc(func(d Diagnostic) {
		for _, s := range out {
			s.Report(d)
		}
	})
}

// Stamp fills At if unset.
func Stamp(d Diagnostic) Diagnostic {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	return d
}

// Recorder keeps every diagnostic it sees. Safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	all []Diagnostic
}

func (r *Recorder) Report(d Diagnostic) {
	r.mu.Lock()
	r.all = append(r.all, d)
	r.mu.Unlock()
}

func (r *Recorder) All() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Diagnostic(nil), r.all...)
}

// Of returns the diagnostics with the given kind.
func (r *Recorder) Of(k Kind) []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Diagnostic
	for _, d := range r.all {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

// Failed reports whether anything other than a RendererError was recorded.
func (r *Recorder) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.all {
		if d.Kind != RendererError {
			return true
		}
	}
	return false
}
