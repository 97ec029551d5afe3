package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"

	"alerticorn/internal/diag"
	"alerticorn/internal/event"
	"alerticorn/internal/metadata"
)

// Listener is what a host test runner calls. Both methods return
// immediately; delivery happens on the engine's worker lanes.
type Listener interface {
	OnEvent(o event.Outcome, chain []metadata.Scope)
	OnSuiteEvent(e event.SuiteEvent, suite []metadata.Scope)
}

var _ Listener = (*Engine)(nil)

// OnEvent enqueues an item event. Events for the same ItemID are delivered
// in call order.
func (e *Engine) OnEvent(o event.Outcome, chain []metadata.Scope) {
	j := newJob(o.ItemID, o.Kind, o, chain)
	e.metrics.RecordReceived(context.Background(), string(o.Kind))
	if !o.Kind.Valid() || o.Kind.IsSuite() {
		e.drop(j, diag.InternalError, fmt.Sprintf("invalid item event kind %q", o.Kind), nil)
		return
	}
	e.enqueue(j)
}

// OnSuiteEvent enqueues an aggregate event. Every record in suite is
// treated as suite scope, whatever its Level.
func (e *Engine) OnSuiteEvent(se event.SuiteEvent, suite []metadata.Scope) {
	j := newJob("suite:"+se.SuiteID, se.Kind, se, asSuiteScopes(suite))
	e.metrics.RecordReceived(context.Background(), string(se.Kind))
	if !se.Kind.IsSuite() {
		e.drop(j, diag.InternalError, fmt.Sprintf("invalid suite event kind %q", se.Kind), nil)
		return
	}
	e.enqueue(j)
}

func asSuiteScopes(in []metadata.Scope) []metadata.Scope {
	if len(in) == 0 {
		return nil
	}
	out := make([]metadata.Scope, len(in))
	for i, sc := range in {
		if sc.Level != metadata.DefaultsLevel {
			sc.Level = metadata.SuiteLevel
		}
		out[i] = sc
	}
	return out
}

// RunWith runs result on the caller's goroutine and sends one notification
// through the same pipeline, always emitting. A failing or panicking
// supplier is reported as a FAIL outcome. Delivery problems go to the
// diagnostic sink; the returned Delivery is informational.
func (e *Engine) RunWith(ctx context.Context, platform, channel, title string, body metadata.BodyBuilder, result metadata.ResultSupplier) Delivery {
	if ctx == nil {
		ctx = context.Background()
	}
	scope := metadata.Scope{
		Level:    metadata.ItemLevel,
		Title:    title,
		Platform: platform,
		Channel:  channel,
		Events:   event.MaskOf(event.Finish),
		Body:     body,
	}
	j := newJob("run:"+title, event.Finish, nil, []metadata.Scope{scope})
	e.metrics.RecordReceived(ctx, string(event.Finish))

	e.mu.Lock()
	closed := e.state == stopping || e.state == stopped
	e.mu.Unlock()
	if closed {
		e.drop(j, diag.NotRunning, "engine is shut down", nil)
		return j.delivery
	}

	value, failure := invoke(result)
	if failure != nil {
		j.msgKind = event.Fail
		out := event.Outcome{Kind: event.Fail, ItemID: j.itemID, ItemLabel: title, Throwable: failure}
		j.result = metadata.Payload(out)
	} else {
		j.result = metadata.Payload(value)
	}
	return e.run(ctx, j)
}

// NotifyOnError runs fn and sends a FAIL notification only when it returns
// an error or panics. The error is returned unchanged; a panic is returned
// as an error.
func (e *Engine) NotifyOnError(ctx context.Context, platform, channel, title string, fn func() error) error {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = fn()
	}()
	if err != nil {
		failed := err
		e.RunWith(ctx, platform, channel, title, nil, func() (any, error) { return nil, failed })
	}
	return err
}

// invoke calls the supplier, converting an error or panic into a throwable.
func invoke(result metadata.ResultSupplier) (value any, failure *event.Throwable) {
	if result == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			value = nil
			failure = &event.Throwable{Type: "panic", Message: fmt.Sprint(r), Stack: string(debug.Stack())}
		}
	}()
	v, err := result()
	if err != nil {
		return nil, &event.Throwable{Type: errorType(err), Message: err.Error()}
	}
	return v, nil
}

func errorType(err error) string {
	switch t := fmt.Sprintf("%T", err); t {
	case "*errors.errorString", "*fmt.wrapError", "*fmt.wrapErrors":
		return "error"
	default:
		return t
	}
}
