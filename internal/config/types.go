package config

import (
	"alerticorn/internal/event"
	"alerticorn/internal/metadata"
	"alerticorn/internal/render"
	logx "alerticorn/pkg/logx"
)

// Config is the on-disk engine configuration, JSON or YAML.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Engine    EngineConfig    `json:"engine"`
	Transport TransportConfig `json:"transport"`
	Logging   logx.Config     `json:"logging"`

	// Suite, Groups, and Items declare notification scopes. Groups and items
	// are matched against group and item IDs; the first match wins.
	Suite  *ScopeDecl     `json:"suite,omitempty"`
	Groups []MatchedScope `json:"groups,omitempty"`
	Items  []MatchedScope `json:"items,omitempty"`
}

// EngineConfig controls the dispatcher.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256 (per worker lane)
//   - shutdown_deadline: "10s"
//   - env_reload: "" (disabled); accepts cron, HH:MM, or a duration
type EngineConfig struct {
	Workers          int    `json:"workers,omitempty"`
	QueueSize        int    `json:"queue_size,omitempty"`
	ShutdownDeadline string `json:"shutdown_deadline,omitempty"`
	EnvReload        string `json:"env_reload,omitempty"`
}

// TransportConfig controls webhook delivery.
//
// Defaults: connect_timeout "5s", read_timeout "5s", max_attempts 3,
// backoff_base "200ms", retry_after_cap "30s", rate_per_sec 5 (negative
// disables pacing), breaker_trip 5 (negative disables the circuit breaker),
// breaker_cooldown "5s".
type TransportConfig struct {
	ConnectTimeout  string  `json:"connect_timeout,omitempty"`
	ReadTimeout     string  `json:"read_timeout,omitempty"`
	MaxAttempts     int     `json:"max_attempts,omitempty"`
	BackoffBase     string  `json:"backoff_base,omitempty"`
	RetryAfterCap   string  `json:"retry_after_cap,omitempty"`
	RatePerSec      float64 `json:"rate_per_sec,omitempty"`
	BreakerTrip     int     `json:"breaker_trip,omitempty"`
	BreakerCooldown string  `json:"breaker_cooldown,omitempty"`
}

// ScopeDecl is the declarative form of metadata.Scope. Body builders are
// referenced by template name.
type ScopeDecl struct {
	Title    string          `json:"title,omitempty"`
	Platform string          `json:"platform,omitempty"`
	Channel  string          `json:"channel,omitempty"`
	Events   event.Mask      `json:"events,omitempty"`
	Text     string          `json:"text,omitempty"`
	Template string          `json:"template,omitempty"`
	Fields   []render.Field  `json:"fields,omitempty"`
	Links    []metadata.Link `json:"links,omitempty"`
}

// MatchedScope applies to IDs matching Match: a glob (matched against the
// whole ID, or its last path segment when the glob has no '/') or a regular
// expression prefixed with "re:".
type MatchedScope struct {
	Match string `json:"match"`
	ScopeDecl
}

func (d ScopeDecl) scope(level metadata.Level) metadata.Scope {
	return metadata.Scope{
		Level:    level,
		Title:    d.Title,
		Platform: d.Platform,
		Channel:  d.Channel,
		Events:   d.Events,
		Text:     d.Text,
		Template: d.Template,
		Fields:   d.Fields,
		Links:    d.Links,
	}
}
