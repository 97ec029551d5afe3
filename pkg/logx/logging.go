package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the stderr format, level and optional JSON file sink.
type Config struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	Format  string     `json:"format,omitempty"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// Stderr formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// DefaultFilePath is used when the file sink is enabled without a path.
const DefaultFilePath = "./alerticorn.log"

type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelError = zerolog.ErrorLevel
)

const consoleTimeFormat = "15:04:05.000"

// Field mutates a zerolog event. Later fields win on duplicate keys.
type Field func(e *zerolog.Event)

func String(k, v string) Field  { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Bool(k string, v bool) Field {
	return func(e *zerolog.Event) { e.Bool(k, v) }
}
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Any(k string, v any) Field { return func(e *zerolog.Event) { e.Interface(k, v) } }
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Job, Item and Platform tag a record with the notification it concerns.
// Empty values are skipped.
func Job(id string) Field        { return optional("job", id) }
func Item(id string) Field       { return optional("item", id) }
func Platform(name string) Field { return optional("platform", name) }

func optional(k, v string) Field {
	return func(e *zerolog.Event) {
		if v != "" {
			e.Str(k, v)
		}
	}
}

// Logger is a structured logger. The zero value discards everything; a
// Logger taken from a Service follows later Service.Apply calls.
type Logger struct {
	svc    *Service
	base   *zerolog.Logger
	fields []Field
}

// Nop returns a logger that never writes anything.
func Nop() Logger {
	zl := zerolog.Nop()
	return Logger{base: &zl}
}

// NewConsole writes human-readable lines to stderr. Used before a config
// file has been read and as the diagnostic sink fallback.
func NewConsole(level string) Logger {
	return NewWriter(os.Stderr, level)
}

// NewWriter writes human-readable lines to w.
func NewWriter(w io.Writer, level string) Logger {
	zl := newZerolog(consoleWriter(w), level)
	return Logger{base: &zl}
}

func (l Logger) IsZero() bool { return l.svc == nil && l.base == nil && len(l.fields) == 0 }

func (l Logger) root() *zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.root.Load()
	case l.base != nil:
		return l.base
	}
	return nil
}

// Enabled reports whether level would be written.
func (l Logger) Enabled(level Level) bool {
	zl := l.root()
	return zl != nil && level >= zl.GetLevel()
}

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = append(append([]Field(nil), l.fields...), fields...)
	return cp
}

func (l Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields) }

func (l Logger) log(level zerolog.Level, msg string, fields []Field) {
	zl := l.root()
	if zl == nil {
		return
	}
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(2); ok {
		e.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	for _, set := range [][]Field{l.fields, fields} {
		for _, f := range set {
			if f != nil {
				f(e)
			}
		}
	}
	e.Msg(msg)
}

// Service owns the sinks behind every Logger it hands out.
type Service struct {
	mu   sync.Mutex
	file *os.File
	root atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the Service with its root Logger.
func New(cfg Config) (*Service, Logger) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	s := &Service{}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

// Close releases the log file, if any. Loggers keep writing to stderr.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Apply swaps level and sinks for every Logger derived from s.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	var writers []io.Writer
	if cfg.Console || !cfg.File.Enabled {
		writers = append(writers, stderrWriter(cfg.Format))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = DefaultFilePath
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		switch {
		case err != nil:
			fmt.Fprintf(os.Stderr, "logx: open %q: %v\n", path, err)
			if len(writers) == 0 {
				writers = append(writers, stderrWriter(cfg.Format))
			}
		default:
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	zl := newZerolog(zerolog.MultiLevelWriter(writers...), cfg.Level)
	s.root.Store(&zl)
}

func newZerolog(w io.Writer, level string) zerolog.Logger {
	zerolog.ErrorFieldName = "err"
	return zerolog.New(w).Level(parseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
}

func stderrWriter(format string) io.Writer {
	if strings.EqualFold(strings.TrimSpace(format), FormatJSON) {
		return os.Stderr
	}
	return consoleWriter(os.Stderr)
}

func consoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	cw.FormatCaller = func(i any) string {
		s, _ := i.(string)
		return s
	}
	return cw
}

// ParseLevel reports whether s names a known level.
func ParseLevel(s string) (Level, bool) {
	lvl := parseLevel(s, zerolog.NoLevel)
	return lvl, lvl != zerolog.NoLevel
}

// ValidFormat reports whether f is empty or a known stderr format.
func ValidFormat(f string) bool {
	switch strings.ToLower(strings.TrimSpace(f)) {
	case "", FormatConsole, FormatJSON:
		return true
	}
	return false
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return def
}
