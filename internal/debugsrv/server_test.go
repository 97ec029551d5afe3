package debugsrv

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	logx "alerticorn/pkg/logx"
)

func TestServesStatusAndPprof(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), func() any { return map[string]int{"lanes": 4} })
	if err := s.Start(Config{Addr: "127.0.0.1:0"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())
	base := "http://" + s.Addr()

	resp, err := http.Get(base + "/debug/alerticorn")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	var got map[string]int
	err = json.NewDecoder(resp.Body).Decode(&got)
	resp.Body.Close()
	if err != nil || got["lanes"] != 4 {
		t.Fatalf("status = %v, err = %v", got, err)
	}

	resp, err = http.Get(base + "/debug/pprof/")
	if err != nil {
		t.Fatalf("GET pprof: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pprof status = %d", resp.StatusCode)
	}
}

func TestStopClearsAddr(t *testing.T) {
	t.Parallel()
	s := New(logx.Logger{}, nil)
	if err := s.Start(Config{Addr: "127.0.0.1:0"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Addr() == "" {
		t.Fatalf("no address while running")
	}
	s.Stop(context.Background())
	if s.Addr() != "" {
		t.Fatalf("addr = %q after Stop", s.Addr())
	}
	s.Stop(context.Background())
}
