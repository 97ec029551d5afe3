package render

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// UnknownPlatformError is returned by Render for an unregistered tag.
type UnknownPlatformError struct {
	Platform string
}

func (e *UnknownPlatformError) Error() string {
	return fmt.Sprintf("no renderer registered for platform %q", e.Platform)
}

// Registry holds renderers keyed by lower-case platform tag.
// It is read-mostly after startup and safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
}

func NewRegistry() *Registry {
	return &Registry{renderers: map[string]Renderer{}}
}

// NewDefaultRegistry returns a registry with discord, slack and teams.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(PlatformDiscord, NewDiscord())
	_ = r.Register(PlatformSlack, NewSlack())
	_ = r.Register(PlatformTeams, NewTeams())
	return r
}

// Register adds a renderer. Registering a tag twice is an error.
func (r *Registry) Register(tag string, renderer Renderer) error {
	tag = normalizeTag(tag)
	if tag == "" {
		return fmt.Errorf("render: empty platform tag")
	}
	if renderer == nil {
		return fmt.Errorf("render: nil renderer for %q", tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.renderers[tag]; exists {
		return fmt.Errorf("render: duplicate registration for %q", tag)
	}
	r.renderers[tag] = renderer
	return nil
}

func (r *Registry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.renderers[normalizeTag(tag)]
	return ok
}

// Platforms returns the registered tags, sorted.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.renderers))
	for tag := range r.renderers {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Render substitutes placeholders for a missing heading or body, then hands
// msg to the platform renderer. Substitutions are reported in the notes.
func (r *Registry) Render(tag string, msg Message) (Payload, Notes, error) {
	r.mu.RLock()
	renderer, ok := r.renderers[normalizeTag(tag)]
	r.mu.RUnlock()
	if !ok {
		return Payload{}, nil, &UnknownPlatformError{Platform: tag}
	}

	var notes Notes
	if blank(msg.Heading) {
		msg.Heading = PlaceholderHeading
		notes.Add("missing heading; substituted %q", PlaceholderHeading)
	}
	if blank(msg.Body) {
		msg.Body = PlaceholderBody
		notes.Add("missing body; substituted %q", PlaceholderBody)
	}
	p, err := renderer.Render(msg, &notes)
	if err != nil {
		return Payload{}, notes, fmt.Errorf("render %s: %w", tag, err)
	}
	if p.ContentType == "" {
		p.ContentType = ContentTypeJSON
	}
	return p, notes, nil
}

func normalizeTag(tag string) string { return strings.ToLower(strings.TrimSpace(tag)) }
