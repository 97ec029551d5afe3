// Package alerticorn is the public entry point: host test runners feed
// lifecycle events in and chat notifications come out through webhooks.
//
//	eng := alerticorn.Default()
//	eng.OnEvent(alerticorn.Outcome{Kind: alerticorn.Fail, ItemID: "pkg/TestX"},
//		alerticorn.Chain(&alerticorn.Scope{Platform: "discord", Channel: "ci"}, nil, nil))
//	defer eng.Shutdown(context.Background())
package alerticorn

import (
	"context"
	"sync"

	"alerticorn/internal/dispatch"
	"alerticorn/internal/event"
	"alerticorn/internal/metadata"
	"alerticorn/internal/render"
)

type (
	Engine         = dispatch.Engine
	Config         = dispatch.Config
	Option         = dispatch.Option
	Listener       = dispatch.Listener
	Delivery       = dispatch.Delivery
	ShutdownReport = dispatch.ShutdownReport

	Kind       = event.Kind
	Mask       = event.Mask
	Outcome    = event.Outcome
	SuiteEvent = event.SuiteEvent
	Summary    = event.Summary
	Throwable  = event.Throwable

	Scope          = metadata.Scope
	Link           = metadata.Link
	BodyBuilder    = metadata.BodyBuilder
	ResultSupplier = metadata.ResultSupplier

	Message  = render.Message
	Field    = render.Field
	Renderer = render.Renderer
)

const (
	Start         = event.Start
	Success       = event.Success
	Fail          = event.Fail
	Skip          = event.Skip
	Finish        = event.Finish
	SuiteStart    = event.SuiteStart
	SuiteComplete = event.SuiteComplete
)

var (
	WithSink      = dispatch.WithSink
	WithLogger    = dispatch.WithLogger
	WithBus       = dispatch.WithBus
	WithChannels  = dispatch.WithChannels
	WithRenderers = dispatch.WithRenderers
	WithTemplates = dispatch.WithTemplates
	WithSender    = dispatch.WithSender
	WithMetrics   = dispatch.WithMetrics

	MaskOf      = event.MaskOf
	Chain       = metadata.Chain
	DefaultBody = metadata.DefaultBody
	Payload     = metadata.Payload
)

func DefaultConfig() Config { return dispatch.DefaultConfig() }

// New builds an engine. It starts on the first event or an explicit Start.
func New(cfg Config, opts ...Option) *Engine { return dispatch.New(cfg, opts...) }

var (
	defaultOnce sync.Once
	defaultEng  *Engine
)

// Default returns the process-wide engine built from DefaultConfig and the
// environment at first use.
func Default() *Engine {
	defaultOnce.Do(func() { defaultEng = New(DefaultConfig()) })
	return defaultEng
}

// RunWith sends a notification through the default engine.
func RunWith(ctx context.Context, platform, channel, title string, body BodyBuilder, result ResultSupplier) Delivery {
	return Default().RunWith(ctx, platform, channel, title, body, result)
}

// NotifyOnError runs fn and notifies through the default engine when it
// fails. fn's error is returned unchanged.
func NotifyOnError(ctx context.Context, platform, channel, title string, fn func() error) error {
	return Default().NotifyOnError(ctx, platform, channel, title, fn)
}
