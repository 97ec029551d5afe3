package channel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseSchedule normalizes a reload schedule into a robfig/cron spec.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "@hourly", "@every 5m"
//   - Interval duration: "5m", "1h30m"
//   - Interval HH:MM: "00:15" (15 minutes)
//
// A "cron:" prefix forces cron parsing; "every:" or "interval:" forces an
// interval.
func ParseSchedule(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return "", fmt.Errorf("cron schedule required after 'cron:'")
		}
		return checkCron(expr)
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseInterval(s[len("every:"):])
	}

	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return checkCron(s)
	}
	spec, err := parseInterval(s)
	if err != nil {
		return "", fmt.Errorf("invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '00:15', or duration like '5m')", raw)
	}
	return spec, nil
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func checkCron(expr string) (string, error) {
	if _, err := cronParser.Parse(expr); err != nil {
		return "", fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return expr, nil
}

func parseInterval(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("interval required")
	}
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); len(m) == 3 {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return "", fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		d, err = time.ParseDuration(v)
		if err != nil {
			return "", fmt.Errorf("invalid interval %q: %w", v, err)
		}
	}
	if d <= 0 {
		return "", fmt.Errorf("interval must be > 0")
	}
	return "@every " + d.String(), nil
}

// AutoReload refreshes the snapshot on schedule until stop is called.
func (r *Resolver) AutoReload(schedule string) (stop func(), err error) {
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(spec, r.Reload); err != nil {
		return nil, fmt.Errorf("schedule env reload: %w", err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
