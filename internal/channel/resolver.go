// Package channel maps logical channel names to webhook endpoints.
//
// Endpoints live in the process environment as AC_<PLATFORM>_CHANNEL_<NAME>
// so secrets stay out of source and out of test metadata. The environment is
// read once into an immutable snapshot; Reload swaps in a fresh one.
package channel

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"alerticorn/internal/eventbus"
)

const (
	EnvPrefix = "AC_"

	KeyDefaultPlatform = "AC_DEFAULT_PLATFORM"
	KeyDefaultChannel  = "AC_DEFAULT_CHANNEL"

	channelInfix = "_CHANNEL_"
)

// UnresolvedError is returned when a logical channel has no env var.
type UnresolvedError struct {
	Platform string
	Channel  string
	Tried    string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved channel %q for platform %q (tried %s)", e.Channel, e.Platform, e.Tried)
}

type snapshot struct {
	vars  map[string]string
	taken time.Time
}

// Resolver is safe for concurrent use.
type Resolver struct {
	environ func() []string
	bus     eventbus.Bus
	snap    atomic.Pointer[snapshot]
}

type Option func(*Resolver)

// WithEnviron replaces os.Environ as the snapshot source.
func WithEnviron(fn func() []string) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.environ = fn
		}
	}
}

// WithBus publishes a channels.reloaded event after every Reload.
func WithBus(bus eventbus.Bus) Option { return func(r *Resolver) { r.bus = bus } }

// NewResolver takes the first environment snapshot immediately.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{environ: os.Environ}
	for _, o := range opts {
		o(r)
	}
	r.snap.Store(take(r.environ))
	return r
}

func take(environ func() []string) *snapshot {
	vars := map[string]string{}
	for _, kv := range environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, EnvPrefix) {
			continue
		}
		vars[strings.ToUpper(k)] = v
	}
	return &snapshot{vars: vars, taken: time.Now()}
}

// Reload swaps the whole snapshot atomically.
func (r *Resolver) Reload() {
	s := take(r.environ)
	r.snap.Store(s)
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeReloaded, Time: s.taken, Data: len(s.vars)})
	}
}

// TakenAt returns when the current snapshot was read.
func (r *Resolver) TakenAt() time.Time { return r.snap.Load().taken }

// Resolve returns the webhook URL for channel on platform. Literal URLs are
// returned verbatim without consulting the environment.
func (r *Resolver) Resolve(platform, channel string) (string, error) {
	if IsLiteralURL(channel) {
		return channel, nil
	}
	name := EnvName(platform, channel)
	if v := r.snap.Load().vars[name]; v != "" {
		return v, nil
	}
	return "", &UnresolvedError{Platform: platform, Channel: channel, Tried: name}
}

// Lookup reads any AC_ key from the snapshot.
func (r *Resolver) Lookup(key string) (string, bool) {
	v, ok := r.snap.Load().vars[strings.ToUpper(key)]
	return v, ok && v != ""
}

// Entry is one configured channel variable.
type Entry struct {
	Platform string
	Channel  string
	EnvName  string
	URL      string
}

// Channels lists every AC_<PLATFORM>_CHANNEL_<NAME> variable, sorted by name.
// Platform and channel come back in their normalized (upper-case) form.
func (r *Resolver) Channels() []Entry {
	vars := r.snap.Load().vars
	out := make([]Entry, 0, len(vars))
	for k, v := range vars {
		rest := strings.TrimPrefix(k, EnvPrefix)
		platform, name, ok := strings.Cut(rest, channelInfix)
		if !ok || platform == "" || name == "" {
			continue
		}
		out = append(out, Entry{Platform: platform, Channel: name, EnvName: k, URL: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnvName < out[j].EnvName })
	return out
}

// EnvName builds AC_<PLATFORM>_CHANNEL_<CHANNEL>. It is idempotent on its
// own output segments, so re-resolution yields the same name.
func EnvName(platform, channel string) string {
	return EnvPrefix + normalize(platform) + channelInfix + normalize(channel)
}

func normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// IsLiteralURL reports whether channel is an http(s) URL.
func IsLiteralURL(channel string) bool {
	low := strings.ToLower(channel)
	return strings.HasPrefix(low, "http://") || strings.HasPrefix(low, "https://")
}

// Redact keeps only the scheme and host of a webhook URL; the path usually
// carries the token.
func Redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "…"
	}
	return u.Scheme + "://" + u.Host + "/…"
}
