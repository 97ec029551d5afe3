package config

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"alerticorn/internal/channel"
	"alerticorn/internal/dispatch"
	"alerticorn/internal/metadata"
	"alerticorn/internal/transport"
	logx "alerticorn/pkg/logx"
)

// Validate checks every field that would otherwise fail at runtime.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if cfg.Engine.Workers < 0 {
		errs = append(errs, errors.New("engine.workers must be >= 0"))
	}
	if cfg.Engine.QueueSize < 0 {
		errs = append(errs, errors.New("engine.queue_size must be >= 0"))
	}
	if _, err := ParseDurationField("engine.shutdown_deadline", cfg.Engine.ShutdownDeadline); err != nil {
		errs = append(errs, err)
	}
	if s := strings.TrimSpace(cfg.Engine.EnvReload); s != "" {
		if _, err := channel.ParseSchedule(s); err != nil {
			errs = append(errs, fmt.Errorf("engine.env_reload: %w", err))
		}
	}
	if _, err := cfg.Transport.toTransport(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Transport.MaxAttempts < 0 {
		errs = append(errs, errors.New("transport.max_attempts must be >= 0"))
	}
	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
		}
	}
	if !logx.ValidFormat(cfg.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format: want %q or %q, got %q", logx.FormatConsole, logx.FormatJSON, cfg.Logging.Format))
	}
	if _, err := compile(cfg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (t TransportConfig) toTransport() (transport.Config, error) {
	d := transport.DefaultConfig()
	var err error
	out := transport.Config{MaxAttempts: t.MaxAttempts, RatePerSec: t.RatePerSec, Jitter: d.Jitter, BreakerTrip: t.BreakerTrip}
	if out.ConnectTimeout, err = ParseDurationOrDefault("transport.connect_timeout", t.ConnectTimeout, d.ConnectTimeout); err != nil {
		return out, err
	}
	if out.ReadTimeout, err = ParseDurationOrDefault("transport.read_timeout", t.ReadTimeout, d.ReadTimeout); err != nil {
		return out, err
	}
	if out.BackoffBase, err = ParseDurationOrDefault("transport.backoff_base", t.BackoffBase, d.BackoffBase); err != nil {
		return out, err
	}
	if out.RetryAfterCap, err = ParseDurationOrDefault("transport.retry_after_cap", t.RetryAfterCap, d.RetryAfterCap); err != nil {
		return out, err
	}
	if out.BreakerCooldown, err = ParseDurationOrDefault("transport.breaker_cooldown", t.BreakerCooldown, d.BreakerCooldown); err != nil {
		return out, err
	}
	return out, nil
}

// DispatchConfig converts the engine and transport sections.
func (c *Config) DispatchConfig() (dispatch.Config, error) {
	tc, err := c.Transport.toTransport()
	if err != nil {
		return dispatch.Config{}, err
	}
	deadline, err := ParseDurationOrDefault("engine.shutdown_deadline", c.Engine.ShutdownDeadline, 10*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Workers:          c.Engine.Workers,
		QueueSize:        c.Engine.QueueSize,
		ShutdownDeadline: deadline,
		EnvReload:        strings.TrimSpace(c.Engine.EnvReload),
		Transport:        tc,
	}, nil
}

// Rules are compiled scope declarations. Safe for concurrent use.
type Rules struct {
	suite  *metadata.Scope
	groups []rule
	items  []rule
}

type rule struct {
	match func(id string) bool
	scope metadata.Scope
}

// Rules compiles the scope declarations.
func (c *Config) Rules() (*Rules, error) { return compile(c) }

func compile(c *Config) (*Rules, error) {
	r := &Rules{}
	if c.Suite != nil {
		s := c.Suite.scope(metadata.SuiteLevel)
		r.suite = &s
	}
	var errs []error
	for i, g := range c.Groups {
		m, err := matcher(g.Match)
		if err != nil {
			errs = append(errs, fmt.Errorf("groups[%d].match: %w", i, err))
			continue
		}
		r.groups = append(r.groups, rule{match: m, scope: g.scope(metadata.GroupLevel)})
	}
	for i, it := range c.Items {
		m, err := matcher(it.Match)
		if err != nil {
			errs = append(errs, fmt.Errorf("items[%d].match: %w", i, err))
			continue
		}
		r.items = append(r.items, rule{match: m, scope: it.scope(metadata.ItemLevel)})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

func matcher(pattern string) (func(string) bool, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, errors.New("pattern is empty")
	}
	if expr, ok := strings.CutPrefix(pattern, "re:"); ok {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		return re.MatchString, nil
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("bad glob %q: %w", pattern, err)
	}
	segment := !strings.Contains(pattern, "/")
	return func(id string) bool {
		if ok, _ := path.Match(pattern, id); ok {
			return true
		}
		if segment {
			ok, _ := path.Match(pattern, path.Base(id))
			return ok
		}
		return false
	}, nil
}

// Chain returns the scope chain for an item, most specific first.
func (r *Rules) Chain(itemID, groupID string) []metadata.Scope {
	var out []metadata.Scope
	if r == nil {
		return out
	}
	if s, ok := first(r.items, itemID); ok {
		out = append(out, s)
	}
	if groupID != "" {
		if s, ok := first(r.groups, groupID); ok {
			out = append(out, s)
		}
	}
	if r.suite != nil {
		out = append(out, *r.suite)
	}
	return out
}

// SuiteChain returns the suite scope, if declared.
func (r *Rules) SuiteChain() []metadata.Scope {
	if r == nil || r.suite == nil {
		return nil
	}
	return []metadata.Scope{*r.suite}
}

func first(rules []rule, id string) (metadata.Scope, bool) {
	for _, rl := range rules {
		if rl.match(id) {
			return rl.scope, true
		}
	}
	return metadata.Scope{}, false
}
