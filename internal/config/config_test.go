package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"alerticorn/internal/event"
	"alerticorn/internal/metadata"
)

const sampleYAML = `
engine:
  workers: 2
  queue_size: 16
  shutdown_deadline: 3s
  env_reload: 1m
transport:
  max_attempts: 4
  backoff_base: 50ms
logging:
  level: debug
  console: true
suite:
  platform: slack
  channel: nightly
  events: [SUITE_COMPLETE]
groups:
  - match: "pkg/api"
    platform: discord
    channel: api-team
items:
  - match: "TestLogin*"
    events: [FAIL, SKIP]
    title: Login broke
  - match: "re:^pkg/api/TestHealth$"
    channel: oncall
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "alerticorn.yaml", sampleYAML)
	m := NewManager(p)
	cfg, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatalf("Get did not return the committed config")
	}
	if cfg.Engine.Workers != 2 || cfg.Engine.QueueSize != 16 {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
	if cfg.Suite == nil || cfg.Suite.Platform != "slack" || !cfg.Suite.Events.Has(event.SuiteComplete) {
		t.Fatalf("suite = %+v", cfg.Suite)
	}
	if len(cfg.Items) != 2 || cfg.Items[0].Title != "Login broke" {
		t.Fatalf("items = %+v", cfg.Items)
	}
	if !cfg.Items[0].Events.Has(event.Skip) || cfg.Items[0].Events.Has(event.Start) {
		t.Fatalf("item events = %v", cfg.Items[0].Events)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "alerticorn.json", `{"engine":{"workers":1},"items":[{"match":"*","platform":"teams","channel":"x"}]}`)
	cfg, err := NewManager(p).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Workers != 1 || cfg.Items[0].Platform != "teams" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, file, body, want string
	}{
		{"unknown field", "c.json", `{"engine":{"wrokers":1}}`, "unknown field"},
		{"unknown yaml field", "c.yaml", "bogus: true\n", "unknown field"},
		{"trailing data", "c.json", `{} {}`, "trailing data"},
		{"bad event kind", "c.yaml", "suite:\n  events: [EXPLODE]\n", "unknown event kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tc.file, []byte(tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestEmptyYAMLIsEmptyConfig(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("empty.yml", nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Engine:    EngineConfig{Workers: -1, ShutdownDeadline: "soon", EnvReload: "every tuesday"},
		Transport: TransportConfig{BackoffBase: "-5s"},
		Items:     []MatchedScope{{Match: "re:("}},
	}
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"
	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"engine.workers", "engine.shutdown_deadline", "engine.env_reload", "transport.backoff_base", "logging.level", "logging.format", "items[0].match"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
	if Validate(nil) == nil {
		t.Fatalf("nil config must fail")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "c.json", `{"engine":{"queue_size":-3}}`)
	m := NewManager(p)
	if _, err := m.Load(context.Background()); err == nil {
		t.Fatalf("expected validation error")
	}
	if m.Get() != nil {
		t.Fatalf("invalid config was committed")
	}
}

func TestDispatchConfig(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	dc, err := cfg.DispatchConfig()
	if err != nil {
		t.Fatalf("DispatchConfig: %v", err)
	}
	if dc.Workers != 2 || dc.QueueSize != 16 || dc.ShutdownDeadline != 3*time.Second || dc.EnvReload != "1m" {
		t.Fatalf("dispatch = %+v", dc)
	}
	if dc.Transport.MaxAttempts != 4 || dc.Transport.BackoffBase != 50*time.Millisecond {
		t.Fatalf("transport = %+v", dc.Transport)
	}
	if dc.Transport.ConnectTimeout != 5*time.Second || dc.Transport.RetryAfterCap != 30*time.Second {
		t.Fatalf("transport defaults = %+v", dc.Transport)
	}

	empty, err := (&Config{}).DispatchConfig()
	if err != nil {
		t.Fatalf("empty DispatchConfig: %v", err)
	}
	if empty.ShutdownDeadline != 10*time.Second {
		t.Fatalf("default deadline = %v", empty.ShutdownDeadline)
	}
}

func TestRulesChain(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rules, err := cfg.Rules()
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}

	chain := rules.Chain("pkg/api/TestLoginOK", "pkg/api")
	if len(chain) != 3 {
		t.Fatalf("chain len = %d: %+v", len(chain), chain)
	}
	levels := []metadata.Level{chain[0].Level, chain[1].Level, chain[2].Level}
	if !slices.Equal(levels, []metadata.Level{metadata.ItemLevel, metadata.GroupLevel, metadata.SuiteLevel}) {
		t.Fatalf("levels = %v", levels)
	}
	if chain[0].Title != "Login broke" || chain[1].Channel != "api-team" {
		t.Fatalf("chain = %+v", chain)
	}

	// Regex rule matches only the full ID.
	chain = rules.Chain("pkg/api/TestHealth", "pkg/api")
	if len(chain) != 3 || chain[0].Channel != "oncall" {
		t.Fatalf("regex chain = %+v", chain)
	}
	chain = rules.Chain("pkg/other/TestHealth", "pkg/other")
	if len(chain) != 1 || chain[0].Level != metadata.SuiteLevel {
		t.Fatalf("unmatched chain = %+v", chain)
	}

	suite := rules.SuiteChain()
	if len(suite) != 1 || suite[0].Platform != "slack" {
		t.Fatalf("suite chain = %+v", suite)
	}

	var nilRules *Rules
	if len(nilRules.Chain("a", "b")) != 0 || nilRules.SuiteChain() != nil {
		t.Fatalf("nil rules must yield empty chains")
	}
}

func TestFirstMatchWins(t *testing.T) {
	t.Parallel()
	cfg := &Config{Items: []MatchedScope{
		{Match: "Test*", ScopeDecl: ScopeDecl{Title: "first"}},
		{Match: "TestA", ScopeDecl: ScopeDecl{Title: "second"}},
	}}
	rules, err := cfg.Rules()
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if got := rules.Chain("TestA", "")[0].Title; got != "first" {
		t.Fatalf("title = %q", got)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a, _ := Decode("c.yaml", []byte(sampleYAML))
	b, _ := Decode("c.yaml", []byte(sampleYAML))
	if changed, _ := SummarizeChange(a, b); len(changed) != 0 {
		t.Fatalf("identical configs changed = %v", changed)
	}
	b.Engine.Workers = 9
	b.Items = b.Items[:1]
	changed, fields := SummarizeChange(a, b)
	if !slices.Equal(changed, []string{"engine", "items"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(fields) == 0 {
		t.Fatalf("expected log fields")
	}
	if changed, _ := SummarizeChange(nil, a); len(changed) == 0 {
		t.Fatalf("nil old config should report changes")
	}
}

func TestWatchPublishesReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "c.json", `{"engine":{"workers":1}}`)
	m := NewManager(p)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	// Let the watcher register before writing.
	time.Sleep(100 * time.Millisecond)

	// Invalid content is rejected and not published.
	writeFile(t, dir, "c.json", `{"engine":{"workers":-1}}`)
	time.Sleep(2 * debounceDelay)
	writeFile(t, dir, "c.json", `{"engine":{"workers":7}}`)

	select {
	case cfg := <-sub:
		if cfg.Engine.Workers != 7 {
			t.Fatalf("workers = %d", cfg.Engine.Workers)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload published")
	}
	if m.Get().Engine.Workers != 7 {
		t.Fatalf("Get not updated")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Watch did not return after cancel")
	}
}

func TestSubscribeKeepsLatest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.json")
	sub := m.Subscribe(1)
	m.publish(&Config{Engine: EngineConfig{Workers: 1}})
	m.publish(&Config{Engine: EngineConfig{Workers: 2}})
	if got := (<-sub).Engine.Workers; got != 2 {
		t.Fatalf("workers = %d, want latest", got)
	}
	m.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatalf("channel not closed")
	}
}
