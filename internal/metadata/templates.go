package metadata

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Built-in template names.
const (
	TemplateDefault = "default"
	TemplatePlain   = "plain"
)

// Templates is a registry of named body builders. Safe for concurrent use.
type Templates struct {
	mu       sync.RWMutex
	builders map[string]BodyBuilder
}

// NewTemplates returns a registry holding the built-in templates.
func NewTemplates() *Templates {
	t := &Templates{builders: map[string]BodyBuilder{}}
	t.builders[TemplateDefault] = DefaultBody
	t.builders[TemplatePlain] = PlainBody
	return t
}

// Register adds or replaces a template.
func (t *Templates) Register(name string, b BodyBuilder) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("template name is empty")
	}
	if b == nil {
		return fmt.Errorf("template %q: nil body builder", name)
	}
	t.mu.Lock()
	t.builders[name] = b
	t.mu.Unlock()
	return nil
}

func (t *Templates) Lookup(name string) (BodyBuilder, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.builders[strings.ToLower(strings.TrimSpace(name))]
	return b, ok
}

func (t *Templates) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.builders))
	for n := range t.builders {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
