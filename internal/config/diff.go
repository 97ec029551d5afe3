package config

import (
	"reflect"

	logx "alerticorn/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// returns log fields describing the new values. Webhook URLs in scope
// channels are never logged.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var changed []string
	var fields []logx.Field

	if oldCfg.Engine != newCfg.Engine {
		changed = append(changed, "engine")
		fields = append(fields,
			logx.Int("engine.workers", newCfg.Engine.Workers),
			logx.Int("engine.queue_size", newCfg.Engine.QueueSize),
			logx.String("engine.shutdown_deadline", newCfg.Engine.ShutdownDeadline),
			logx.String("engine.env_reload", newCfg.Engine.EnvReload),
		)
	}
	if oldCfg.Transport != newCfg.Transport {
		changed = append(changed, "transport")
		fields = append(fields,
			logx.Int("transport.max_attempts", newCfg.Transport.MaxAttempts),
			logx.String("transport.backoff_base", newCfg.Transport.BackoffBase),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Suite, newCfg.Suite) {
		changed = append(changed, "suite")
	}
	if !reflect.DeepEqual(oldCfg.Groups, newCfg.Groups) {
		changed = append(changed, "groups")
		fields = append(fields, logx.Int("groups", len(newCfg.Groups)))
	}
	if !reflect.DeepEqual(oldCfg.Items, newCfg.Items) {
		changed = append(changed, "items")
		fields = append(fields, logx.Int("items", len(newCfg.Items)))
	}
	return changed, fields
}
