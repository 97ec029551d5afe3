package metadata

import (
	"fmt"

	"alerticorn/internal/event"
	"alerticorn/internal/render"
)

const DefaultTitle = "Notification"

// MissingError is returned when no consulted scope declares Attr.
type MissingError struct {
	Attr string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("no scope declares a %s", e.Attr)
}

// UnknownTemplateError is returned when the winning scope names a template
// that is not registered.
type UnknownTemplateError struct {
	Name string
}

func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("unknown template %q", e.Name)
}

type Resolver struct {
	templates *Templates
}

// NewResolver uses templates for Scope.Template lookups; nil means the
// built-in set.
func NewResolver(templates *Templates) *Resolver {
	if templates == nil {
		templates = NewTemplates()
	}
	return &Resolver{templates: templates}
}

func (r *Resolver) Templates() *Templates { return r.templates }

// Resolve computes the effective spec for kind from chain, which is ordered
// from most to least specific. Suite events only consult suite-level scopes
// and the defaults scope.
func (r *Resolver) Resolve(chain []Scope, kind event.Kind) (Spec, error) {
	suite := kind.IsSuite()
	var (
		spec                        Spec
		haveBody, haveResult, haveF bool
	)
	for _, s := range chain {
		if suite && s.Level != SuiteLevel && s.Level != DefaultsLevel {
			continue
		}
		if spec.Title == "" && s.Title != "" {
			spec.Title = s.Title
		}
		if spec.Platform == "" && s.Platform != "" {
			spec.Platform = s.Platform
		}
		if spec.Channel == "" && s.Channel != "" {
			spec.Channel = s.Channel
		}
		if spec.Events.Empty() && !s.Events.Empty() {
			spec.Events = s.Events
		}
		if spec.Text == "" && s.Text != "" {
			spec.Text = s.Text
		}
		if !haveBody {
			switch {
			case s.Body != nil:
				spec.Body, haveBody = s.Body, true
			case s.Template != "":
				b, ok := r.templates.Lookup(s.Template)
				if !ok {
					return Spec{}, &UnknownTemplateError{Name: s.Template}
				}
				spec.Body, haveBody = b, true
			}
		}
		if !haveResult && s.Result != nil {
			spec.Result, haveResult = s.Result, true
		}
		if !haveF && (len(s.Fields) > 0 || len(s.Links) > 0) {
			spec.Fields, haveF = scopeFields(s), true
		}
	}

	if spec.Platform == "" {
		return Spec{}, &MissingError{Attr: "platform"}
	}
	if spec.Channel == "" {
		return Spec{}, &MissingError{Attr: "channel"}
	}
	if spec.Title == "" {
		spec.Title = DefaultTitle
	}
	if spec.Events.Empty() {
		spec.Events = event.DefaultMask(suite)
	}
	return spec, nil
}

// scopeFields flattens a scope's details and links; links follow fields.
func scopeFields(s Scope) []render.Field {
	out := make([]render.Field, 0, len(s.Fields)+len(s.Links))
	out = append(out, s.Fields...)
	for _, l := range s.Links {
		name := l.Name
		if name == "" {
			name = "Link"
		}
		out = append(out, render.Field{Name: name, Value: l.URL})
	}
	return out
}
