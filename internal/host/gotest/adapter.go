// Package gotest drives the engine from a `go test -json` (test2json) stream.
//
// Every test, subtests included, is an item: its ID is "<package>/<test>"
// and its group is the package. The first record opens the suite and end of
// stream closes it with a summary.
package gotest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"alerticorn/internal/dispatch"
	"alerticorn/internal/event"
	"alerticorn/internal/metadata"
	logx "alerticorn/pkg/logx"
)

const (
	maxLine   = 1 << 20
	maxOutput = 64 << 10
)

// Record is one test2json line.
type Record struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// Scopes supplies scope chains for items and the suite. *config.Rules
// satisfies it.
type Scopes interface {
	Chain(itemID, groupID string) []metadata.Scope
	SuiteChain() []metadata.Scope
}

type noScopes struct{}

func (noScopes) Chain(string, string) []metadata.Scope { return nil }
func (noScopes) SuiteChain() []metadata.Scope          { return nil }

type scopesBox struct{ s Scopes }

type Adapter struct {
	listener dispatch.Listener
	scopes   atomic.Pointer[scopesBox]
	suiteID  string
	log      logx.Logger
	now      func() time.Time
}

type Option func(*Adapter)

func WithScopes(s Scopes) Option { return func(a *Adapter) { a.SetScopes(s) } }

// WithSuiteID names the suite in SUITE_* events.
func WithSuiteID(id string) Option { return func(a *Adapter) { a.suiteID = id } }

func WithLogger(log logx.Logger) Option { return func(a *Adapter) { a.log = log } }

func New(l dispatch.Listener, opts ...Option) *Adapter {
	a := &Adapter{listener: l, suiteID: "go test", log: logx.Nop(), now: time.Now}
	a.scopes.Store(&scopesBox{s: noScopes{}})
	for _, o := range opts {
		o(a)
	}
	return a
}

// SetScopes swaps the scope source; events already emitted keep their
// chains.
func (a *Adapter) SetScopes(s Scopes) {
	if s == nil {
		s = noScopes{}
	}
	a.scopes.Store(&scopesBox{s: s})
}

func (a *Adapter) scopeSource() Scopes { return a.scopes.Load().s }

type running struct {
	pkg, test string
	out       bytes.Buffer
	truncated bool
}

type run struct {
	started  bool
	begin    time.Time
	last     time.Time
	summary  event.Summary
	open     map[string]*running
	order    []string
	pkgOut   map[string]*running
	pkgTests map[string]int
}

// Run consumes r until EOF or ctx is done and returns the suite summary.
// Lines that are not test2json records are ignored. Tests still open at the
// end of the stream are reported as failed.
func (a *Adapter) Run(ctx context.Context, r io.Reader) (event.Summary, error) {
	st := &run{
		open:     map[string]*running{},
		pkgOut:   map[string]*running{},
		pkgTests: map[string]int{},
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLine)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return st.summary, err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			a.log.Debug("skipping malformed test2json line", logx.Err(err))
			continue
		}
		if rec.Action == "" {
			continue
		}
		a.handle(st, rec)
	}
	if err := sc.Err(); err != nil {
		return st.summary, err
	}
	a.finish(st)
	return st.summary, nil
}

func (a *Adapter) handle(st *run, rec Record) {
	ts := rec.Time
	if ts.IsZero() {
		ts = a.now()
	}
	if !st.started {
		st.started = true
		st.begin = ts
		a.listener.OnSuiteEvent(event.SuiteEvent{Kind: event.SuiteStart, SuiteID: a.suiteID}, a.scopeSource().SuiteChain())
	}
	st.last = ts

	if rec.Test == "" {
		a.handlePackage(st, rec)
		return
	}
	id := itemID(rec.Package, rec.Test)
	switch rec.Action {
	case "run":
		if _, ok := st.open[id]; ok {
			return
		}
		st.open[id] = &running{pkg: rec.Package, test: rec.Test}
		st.order = append(st.order, id)
		st.pkgTests[rec.Package]++
		a.emit(event.Outcome{Kind: event.Start, ItemID: id, GroupID: rec.Package, ItemLabel: rec.Test})
	case "output":
		if t, ok := st.open[id]; ok {
			t.write(rec.Output)
		}
	case "pass", "fail", "skip":
		t, ok := st.open[id]
		if !ok {
			// Result without a run record, e.g. a filtered stream.
			t = &running{pkg: rec.Package, test: rec.Test}
			st.pkgTests[rec.Package]++
		}
		a.complete(st, id, t, actionKind(rec.Action), secs(rec.Elapsed), "")
	}
}

// handlePackage covers package-level records. A package that fails
// without running any test (build failure, TestMain exit) becomes a single
// failed item named after the package.
func (a *Adapter) handlePackage(st *run, rec Record) {
	switch rec.Action {
	case "output", "start":
		b, ok := st.pkgOut[rec.Package]
		if !ok {
			b = &running{pkg: rec.Package}
			st.pkgOut[rec.Package] = b
		}
		b.write(rec.Output)
	case "fail":
		for _, id := range st.order {
			if t, ok := st.open[id]; ok && t.pkg == rec.Package {
				a.complete(st, id, t, event.Fail, 0, "test did not complete")
			}
		}
		if st.pkgTests[rec.Package] == 0 {
			b := st.pkgOut[rec.Package]
			if b == nil {
				b = &running{pkg: rec.Package}
			}
			b.test = rec.Package
			a.emit(event.Outcome{Kind: event.Start, ItemID: rec.Package, GroupID: rec.Package, ItemLabel: rec.Package})
			a.complete(st, rec.Package, b, event.Fail, secs(rec.Elapsed), "")
		}
		delete(st.pkgOut, rec.Package)
	case "pass", "skip":
		delete(st.pkgOut, rec.Package)
	}
}

func (a *Adapter) complete(st *run, id string, t *running, kind event.Kind, elapsed time.Duration, reason string) {
	delete(st.open, id)
	o := event.Outcome{Kind: kind, ItemID: id, GroupID: t.pkg, ItemLabel: t.test, Elapsed: elapsed}
	st.summary.Total++
	switch kind {
	case event.Success:
		st.summary.Passed++
	case event.Fail:
		st.summary.Failed++
		o.Throwable = t.throwable(reason)
	case event.Skip:
		st.summary.Skipped++
	}
	a.emit(o)
	fin := o
	fin.Kind = event.Finish
	a.emit(fin)
}

func (a *Adapter) finish(st *run) {
	if !st.started {
		return
	}
	for _, id := range st.order {
		if t, ok := st.open[id]; ok {
			a.complete(st, id, t, event.Fail, 0, "test did not complete")
		}
	}
	st.summary.DurationMS = st.last.Sub(st.begin).Milliseconds()
	a.listener.OnSuiteEvent(event.SuiteEvent{Kind: event.SuiteComplete, SuiteID: a.suiteID, Summary: st.summary}, a.scopeSource().SuiteChain())
}

func (a *Adapter) emit(o event.Outcome) {
	a.listener.OnEvent(o, a.scopeSource().Chain(o.ItemID, o.GroupID))
}

func (t *running) write(s string) {
	if t.truncated {
		return
	}
	if t.out.Len()+len(s) > maxOutput {
		t.out.WriteString(clip(s, maxOutput-t.out.Len()))
		t.truncated = true
		return
	}
	t.out.WriteString(s)
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// throwable picks the first assertion line ("file_test.go:12: ...") as the
// message and keeps the captured output as the stack.
func (t *running) throwable(reason string) *event.Throwable {
	out := t.out.String()
	msg := reason
	if msg == "" {
		msg = failureLine(out)
	}
	if msg == "" {
		msg = "test failed"
	}
	return &event.Throwable{Type: "test failure", Message: msg, Stack: strings.TrimRight(out, "\n")}
}

func failureLine(out string) string {
	var fallback string
	for line := range strings.Lines(out) {
		s := strings.TrimSpace(line)
		if s == "" || strings.HasPrefix(s, "=== ") || strings.HasPrefix(s, "--- ") {
			continue
		}
		if strings.HasPrefix(s, "panic:") {
			return s
		}
		if i := strings.Index(s, ".go:"); i > 0 && !strings.Contains(s[:i], " ") {
			return s
		}
		if fallback == "" {
			fallback = s
		}
	}
	return fallback
}

func itemID(pkg, test string) string {
	if pkg == "" {
		return test
	}
	return pkg + "/" + test
}

func actionKind(action string) event.Kind {
	switch action {
	case "pass":
		return event.Success
	case "skip":
		return event.Skip
	default:
		return event.Fail
	}
}

func secs(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }
