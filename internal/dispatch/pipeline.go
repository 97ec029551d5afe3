package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"alerticorn/internal/channel"
	"alerticorn/internal/diag"
	"alerticorn/internal/event"
	"alerticorn/internal/eventbus"
	"alerticorn/internal/metadata"
	"alerticorn/internal/render"
	"alerticorn/internal/transport"
	logx "alerticorn/pkg/logx"
)

type job struct {
	itemID  string
	kind    event.Kind
	payload any
	chain   []metadata.Scope
	// result overrides the resolved supplier; set by RunWith.
	result   metadata.ResultSupplier
	msgKind  event.Kind
	delivery Delivery
	received time.Time
}

func newJob(itemID string, kind event.Kind, payload any, chain []metadata.Scope) *job {
	j := &job{
		itemID:   itemID,
		kind:     kind,
		payload:  payload,
		chain:    chain,
		received: time.Now(),
	}
	j.delivery = Delivery{JobID: uuid.NewString(), ItemID: itemID, Kind: kind, State: Received}
	return j
}

// run processes j with a guard that turns any panic into an internal drop.
func (e *Engine) run(ctx context.Context, j *job) (d Delivery) {
	ctx, span := e.startNotifySpan(ctx, j)
	defer func() { endNotifySpan(span, j.delivery) }()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("pipeline panic", logx.Job(j.delivery.JobID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			if !j.delivery.State.Terminal() {
				e.drop(j, diag.InternalError, fmt.Sprintf("internal error: %v", r), fmt.Errorf("panic: %v", r))
			}
			d = j.delivery
		}
	}()
	e.process(ctx, j)
	return j.delivery
}

func (e *Engine) process(ctx context.Context, j *job) {
	chain := j.chain
	if def, ok := e.defaultsScope(); ok {
		chain = append(append(make([]metadata.Scope, 0, len(chain)+1), chain...), def)
	}

	spec, err := e.meta.Resolve(chain, j.kind)
	if err != nil {
		var missing *metadata.MissingError
		var unknown *metadata.UnknownTemplateError
		switch {
		case errors.As(err, &missing) && missing.Attr == "platform":
			e.drop(j, diag.MissingPlatform, "no scope declares a platform", err)
		case errors.As(err, &missing):
			e.drop(j, diag.MissingChannel, "no scope declares a channel", err)
		case errors.As(err, &unknown):
			e.drop(j, diag.MissingTemplate, err.Error(), err)
		default:
			e.drop(j, diag.InternalError, "metadata resolution failed", err)
		}
		return
	}
	j.delivery.Platform = spec.Platform

	// The endpoint must resolve before the filter is consulted, so a bad
	// channel is reported even for events the mask would suppress.
	endpoint, err := e.channels.Resolve(spec.Platform, spec.Channel)
	if err != nil {
		d := diag.Diagnostic{Kind: diag.UnresolvedChannel, Message: "no webhook configured for channel", Channel: spec.Channel, Err: err}
		var ue *channel.UnresolvedError
		if errors.As(err, &ue) {
			d.Tried = ue.Tried
		}
		e.dropWith(j, d)
		return
	}

	j.delivery.advance(Resolved)
	e.publish(eventbus.TypeResolved, j)

	if !event.ShouldEmit(j.kind, spec.Events) {
		j.delivery.advance(Dropped)
		j.delivery.Reason = ReasonFiltered
		e.metrics.RecordDropped(ctx, ReasonFiltered)
		e.publish(eventbus.TypeFiltered, j)
		return
	}
	j.delivery.advance(FilteredIn)

	msg := e.build(j, spec)

	payload, notes, err := e.renderers.Render(spec.Platform, msg)
	if err != nil {
		var up *render.UnknownPlatformError
		if errors.As(err, &up) {
			e.drop(j, diag.UnknownPlatform, err.Error(), err)
		} else {
			e.drop(j, diag.InternalError, "render failed", err)
		}
		return
	}
	if len(notes) > 0 {
		e.report(j, diag.Diagnostic{Kind: diag.RendererError, Message: strings.Join(notes, "; ")})
	}
	j.delivery.advance(Rendered)
	e.publish(eventbus.TypeRendered, j)

	start := time.Now()
	res, err := e.sender.Send(ctx, endpoint, payload.ContentType, payload.Body)
	if err != nil {
		d := diag.Diagnostic{Kind: diag.TransportError, Message: "webhook delivery failed", Channel: spec.Channel, Err: err}
		var te *transport.Error
		if errors.As(err, &te) {
			d.Status, d.Attempts = te.Status, te.Attempts
			j.delivery.Status, j.delivery.Attempts = te.Status, te.Attempts
		}
		e.metrics.RecordDelivery(ctx, spec.Platform, max(d.Attempts, 1), time.Since(start), false)
		e.dropWith(j, d)
		return
	}
	j.delivery.Status, j.delivery.Attempts = res.Status, res.Attempts
	e.metrics.RecordDelivery(ctx, spec.Platform, res.Attempts, time.Since(start), true)
	j.delivery.advance(Sent)
	e.publish(eventbus.TypeSent, j)
	e.log.Debug("notification sent",
		logx.Job(j.delivery.JobID),
		logx.String("event", string(j.kind)),
		logx.Platform(spec.Platform),
		logx.Int("attempts", res.Attempts),
		logx.Duration("latency", time.Since(j.received)),
	)
}

func (e *Engine) build(j *job, spec metadata.Spec) render.Message {
	supplier := j.result
	if supplier == nil {
		supplier = spec.Result
	}
	if supplier == nil {
		supplier = metadata.Payload(j.payload)
	}
	result, err := supplier()
	if err != nil {
		result = err
	}

	body := spec.Body
	if body == nil {
		body = metadata.DefaultBody
	}
	msg := body(spec.Title, result)
	msg.Body = metadata.WithText(spec.Text, msg.Body)
	if msg.Kind == "" {
		msg.Kind = j.msgKind
	}
	if msg.Kind == "" {
		msg.Kind = j.kind
	}
	if len(spec.Fields) > 0 {
		msg.Fields = append(append([]render.Field(nil), msg.Fields...), spec.Fields...)
	}
	return msg
}

// defaultsScope turns AC_DEFAULT_PLATFORM and AC_DEFAULT_CHANNEL into the
// least specific scope.
func (e *Engine) defaultsScope() (metadata.Scope, bool) {
	platform, okP := e.channels.Lookup(channel.KeyDefaultPlatform)
	ch, okC := e.channels.Lookup(channel.KeyDefaultChannel)
	if !okP && !okC {
		return metadata.Scope{}, false
	}
	return metadata.Scope{Level: metadata.DefaultsLevel, Platform: platform, Channel: ch}, true
}

func (e *Engine) drop(j *job, kind diag.Kind, msg string, err error) {
	e.dropWith(j, diag.Diagnostic{Kind: kind, Message: msg, Err: err})
}

func (e *Engine) dropWith(j *job, d diag.Diagnostic) {
	j.delivery.advance(Dropped)
	j.delivery.Reason = string(d.Kind)
	e.report(j, d)
	e.metrics.RecordDropped(context.Background(), string(d.Kind))
	e.publish(eventbus.TypeDropped, j)
}

func (e *Engine) report(j *job, d diag.Diagnostic) {
	d.JobID = j.delivery.JobID
	d.ItemID = j.itemID
	d.Event = string(j.kind)
	if d.Platform == "" {
		d.Platform = j.delivery.Platform
	}
	e.sink.Report(diag.Stamp(d))
}

func (e *Engine) publish(typ string, j *job) {
	e.bus.Publish(eventbus.Event{Type: typ, Data: j.delivery})
}
