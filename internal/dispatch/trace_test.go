package dispatch

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"alerticorn/internal/event"
	"alerticorn/internal/metadata"
)

func spanAttr(s sdktrace.ReadOnlySpan, key string) attribute.Value {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestNotifySpanPerJob(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	sender := &fakeSender{}
	e, _ := newTestEngine(t, Config{}, nil, WithSender(sender), WithTracerProvider(tp))

	e.OnEvent(event.Outcome{Kind: event.Fail, ItemID: "sent"},
		[]metadata.Scope{{Platform: "raw", Channel: "https://x"}})
	e.OnEvent(event.Outcome{Kind: event.Fail, ItemID: "dropped"},
		[]metadata.Scope{{Platform: "raw"}})
	e.Shutdown(context.Background())

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	byItem := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		if s.Name() != "notify" {
			t.Fatalf("span name = %q", s.Name())
		}
		byItem[spanAttr(s, "item.id").AsString()] = s
	}
	ok := byItem["sent"]
	if ok == nil || spanAttr(ok, "notify.state").AsString() != "SENT" || ok.Status().Code == codes.Error {
		t.Fatalf("sent span = %+v", ok)
	}
	bad := byItem["dropped"]
	if bad == nil || bad.Status().Code != codes.Error || bad.Status().Description != "MissingChannel" {
		t.Fatalf("dropped span = %+v", bad)
	}
}
