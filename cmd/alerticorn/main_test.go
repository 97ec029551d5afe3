package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

type hook struct {
	mu     sync.Mutex
	bodies []string
}

func (h *hook) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		h.mu.Lock()
		h.bodies = append(h.bodies, string(b))
		h.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (h *hook) all() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.bodies...)
}

func TestRenderPrintsPayload(t *testing.T) {
	out, _, err := execute(t, "", "render", "-p", "slack", "--title", "Nightly", "-k", "fail", "-f", "Branch=main", "tests", "broke")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	for _, want := range []string{"Nightly", "tests broke", "*Branch*"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}

func TestRenderReadsStdinAndRejectsBadInput(t *testing.T) {
	out, _, err := execute(t, "from stdin\n", "render", "-p", "teams")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "from stdin") || !strings.Contains(out, "Notification") {
		t.Fatalf("out = %s", out)
	}
	if _, _, err := execute(t, "", "render", "-p", "pager", "x"); err == nil {
		t.Fatalf("unknown platform accepted")
	}
	if _, _, err := execute(t, "", "render", "x"); err == nil {
		t.Fatalf("missing platform accepted")
	}
	if _, _, err := execute(t, "", "render", "-p", "slack", "-f", "novalue", "x"); err == nil {
		t.Fatalf("bad field accepted")
	}
}

func TestSendPostsToWebhook(t *testing.T) {
	h := &hook{}
	srv := h.server(t)
	out, _, err := execute(t, "", "send", "-p", "discord", "--channel", srv.URL, "--title", "Deploy", "v1 is live")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out, "sent to discord (status 200, 1 attempt(s))") {
		t.Fatalf("out = %q", out)
	}
	bodies := h.all()
	if len(bodies) != 1 || !strings.Contains(bodies[0], "v1 is live") {
		t.Fatalf("bodies = %v", bodies)
	}
}

func TestSendReportsUnresolvedChannel(t *testing.T) {
	_, _, err := execute(t, "", "send", "-p", "slack", "--channel", "no-such-channel-xyz", "msg")
	if err == nil || !strings.Contains(err.Error(), "UnresolvedChannel") {
		t.Fatalf("err = %v", err)
	}
}

func TestChannelsMasksURLs(t *testing.T) {
	t.Setenv("AC_SLACK_CHANNEL_CI", "https://hooks.example.com/services/T0/B0/secret")
	out, _, err := execute(t, "", "channels", "--json")
	if err != nil {
		t.Fatalf("channels: %v", err)
	}
	if strings.Contains(out, "secret") {
		t.Fatalf("webhook path leaked: %s", out)
	}
	var rows []channelRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, r := range rows {
		if r.Env == "AC_SLACK_CHANNEL_CI" {
			found = r.Platform == "SLACK" && r.Channel == "CI" && r.Endpoint == "https://hooks.example.com/…"
		}
	}
	if !found {
		t.Fatalf("rows = %+v", rows)
	}

	table, _, err := execute(t, "", "channels")
	if err != nil {
		t.Fatalf("channels table: %v", err)
	}
	if !strings.Contains(table, "AC_SLACK_CHANNEL_CI") {
		t.Fatalf("table = %s", table)
	}
}

func TestWatchNotifiesFailuresAndExits(t *testing.T) {
	h := &hook{}
	srv := h.server(t)
	cfgPath := filepath.Join(t.TempDir(), "alerticorn.yaml")
	cfg := "items:\n  - match: \"*\"\n    platform: slack\n    channel: " + srv.URL + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	stream := `{"Action":"run","Package":"p","Test":"TestOK"}
{"Action":"pass","Package":"p","Test":"TestOK"}
{"Action":"run","Package":"p","Test":"TestBad"}
{"Action":"output","Package":"p","Test":"TestBad","Output":"    bad_test.go:9: boom\n"}
{"Action":"fail","Package":"p","Test":"TestBad"}
`
	_, stderr, err := execute(t, stream, "watch", "-c", cfgPath, "--log-level", "error")
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 1 {
		t.Fatalf("err = %v, want exit 1", err)
	}
	if !strings.Contains(stderr, "2 tests, 1 passed, 1 failed") {
		t.Fatalf("stderr = %q", stderr)
	}
	bodies := h.all()
	if len(bodies) != 1 || !strings.Contains(bodies[0], "bad_test.go:9: boom") {
		t.Fatalf("bodies = %v", bodies)
	}

	_, _, err = execute(t, stream, "watch", "-c", cfgPath, "--log-level", "error", "--exit-code=false")
	if err != nil {
		t.Fatalf("watch without exit code: %v", err)
	}
}
