package metadata

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"alerticorn/internal/event"
	"alerticorn/internal/render"
)

const maxStackRunes = 1500

// DefaultBody renders outcomes, suite summaries, and errors with their
// details as fields. Any other result is printed with %v.
func DefaultBody(title string, result any) render.Message {
	msg := render.Message{Heading: title}
	switch v := result.(type) {
	case nil:
	case event.Outcome:
		outcomeBody(&msg, v)
	case *event.Outcome:
		if v != nil {
			outcomeBody(&msg, *v)
		}
	case event.SuiteEvent:
		suiteBody(&msg, v)
	case *event.SuiteEvent:
		if v != nil {
			suiteBody(&msg, *v)
		}
	case error:
		msg.Kind = event.Fail
		msg.Body = v.Error()
	case fmt.Stringer:
		msg.Body = v.String()
	case string:
		msg.Body = v
	default:
		msg.Body = fmt.Sprintf("%v", v)
	}
	return msg
}

// PlainBody prints the result without fields or stack traces.
func PlainBody(title string, result any) render.Message {
	msg := DefaultBody(title, result)
	msg.Fields = nil
	if o, ok := result.(event.Outcome); ok {
		msg.Body = outcomeLine(o)
	}
	return msg
}

func outcomeBody(msg *render.Message, o event.Outcome) {
	msg.Kind = o.Kind
	var b strings.Builder
	b.WriteString(outcomeLine(o))
	if o.Throwable != nil && o.Throwable.Stack != "" {
		stack := o.Throwable.Stack
		if rs := []rune(stack); len(rs) > maxStackRunes {
			stack = string(rs[:maxStackRunes]) + "\n…"
		}
		b.WriteString("\n```\n")
		b.WriteString(stack)
		b.WriteString("\n```")
	}
	msg.Body = b.String()

	if o.GroupID != "" {
		msg.Fields = append(msg.Fields, render.Field{Name: "Group", Value: o.GroupID, Inline: true})
	}
	if o.Elapsed > 0 {
		msg.Fields = append(msg.Fields, render.Field{Name: "Duration", Value: o.Elapsed.Round(time.Millisecond).String(), Inline: true})
	}
	if t := o.Throwable; t != nil {
		if t.Type != "" {
			msg.Fields = append(msg.Fields, render.Field{Name: "Error", Value: t.Type})
		}
		if t.Message != "" {
			msg.Fields = append(msg.Fields, render.Field{Name: "Message", Value: t.Message})
		}
	}
}

func outcomeLine(o event.Outcome) string {
	label := o.ItemLabel
	if label == "" {
		label = o.ItemID
	}
	switch o.Kind {
	case event.Start:
		return label + " started"
	case event.Success:
		return label + " passed"
	case event.Fail:
		if o.Throwable != nil && o.Throwable.Message != "" {
			return label + " failed: " + o.Throwable.Message
		}
		return label + " failed"
	case event.Skip:
		return label + " was skipped"
	case event.Finish:
		return label + " finished"
	default:
		return label + " " + strings.ToLower(o.Kind.String())
	}
}

func suiteBody(msg *render.Message, e event.SuiteEvent) {
	msg.Kind = e.Kind
	name := e.SuiteID
	if name == "" {
		name = "suite"
	}
	s := e.Summary
	if e.Kind == event.SuiteStart {
		msg.Body = name + " started"
		return
	}
	msg.Body = fmt.Sprintf("%s finished: %d passed, %d failed, %d skipped", name, s.Passed, s.Failed, s.Skipped)
	if s.Failed > 0 {
		msg.Color = render.Color(render.ColorRed)
	} else {
		msg.Color = render.Color(render.ColorGreen)
	}
	msg.Fields = []render.Field{
		{Name: "Total", Value: strconv.Itoa(s.Total), Inline: true},
		{Name: "Passed", Value: strconv.Itoa(s.Passed), Inline: true},
		{Name: "Failed", Value: strconv.Itoa(s.Failed), Inline: true},
		{Name: "Skipped", Value: strconv.Itoa(s.Skipped), Inline: true},
		{Name: "Duration", Value: (time.Duration(s.DurationMS) * time.Millisecond).String(), Inline: true},
	}
}

// WithText puts the declared message text above body.
func WithText(text, body string) string {
	switch {
	case text == "":
		return body
	case body == "":
		return text
	}
	return text + "\n\n" + body
}

// Payload returns a supplier that yields v, the default when no scope
// declares one.
func Payload(v any) ResultSupplier {
	return func() (any, error) { return v, nil }
}
