package channel

import "testing"

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "cron", raw: "*/5 * * * *", want: "*/5 * * * *"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", want: "0 0 * * *"},
		{name: "descriptor", raw: "@hourly", want: "@hourly"},
		{name: "duration", raw: "10m", want: "@every 10m0s"},
		{name: "prefixed interval", raw: "interval:45s", want: "@every 45s"},
		{name: "every", raw: "every:1h", want: "@every 1h0m0s"},
		{name: "hhmm", raw: "01:30", want: "@every 1h30m0s"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseSchedule(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "00:75", "cron:", "0s", "* * *"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q) expected error", raw)
		}
	}
}

func TestAutoReloadStops(t *testing.T) {
	t.Parallel()
	r := NewResolver(WithEnviron(environ()))
	stop, err := r.AutoReload("1h")
	if err != nil {
		t.Fatalf("AutoReload error: %v", err)
	}
	stop()
	if _, err := r.AutoReload("garbage"); err == nil {
		t.Fatal("expected error for bad schedule")
	}
}
