package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
)

// Severity of a reported message.
type Severity string

const (
	SeverityInfo Severity = "INFO"
	SeverityWarn Severity = "WARN"
	SeverityCrit Severity = "CRIT"
)

// Level maps the severity onto the slog level used for it.
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityWarn:
		return slog.LevelWarn
	case SeverityCrit:
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

// Reporter receives the message stream of a backup run. Every message is
// keyed by a stable identifier and carries positional parameters.
type Reporter interface {
	Info(id string, args ...any)
	Warn(id string, args ...any)
	Crit(id string, args ...any)
}

type itemScoper interface {
	WithItem(name string) Reporter
}

// WithItem returns a reporter that tags every message with the item name,
// or r itself if it does not support tagging.
func WithItem(r Reporter, name string) Reporter {
	if scoper, ok := r.(itemScoper); ok {
		return scoper.WithItem(name)
	}
	return r
}

// Size renders a byte count in human readable form.
type Size int64

func (s Size) String() string {
	if s < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(s))
}

// Render returns the default English text of a message.
func Render(id string, args ...any) string {
	format, ok := catalog[id]
	if !ok {
		if len(args) == 0 {
			return id
		}
		return strings.TrimSuffix(fmt.Sprintln(append([]any{id}, args...)...), "\n")
	}
	return fmt.Sprintf(format, args...)
}

// SlogReporter writes messages as slog records with id, item and args attributes.
type SlogReporter struct {
	logger *slog.Logger
	item   string
}

func NewSlogReporter(logger *slog.Logger) *SlogReporter {
	if logger == nil {
		logger = L()
	}
	return &SlogReporter{logger: logger}
}

func (r *SlogReporter) WithItem(name string) Reporter {
	return &SlogReporter{logger: r.logger, item: name}
}

func (r *SlogReporter) Info(id string, args ...any) { r.log(SeverityInfo, id, args) }
func (r *SlogReporter) Warn(id string, args ...any) { r.log(SeverityWarn, id, args) }
func (r *SlogReporter) Crit(id string, args ...any) { r.log(SeverityCrit, id, args) }

func (r *SlogReporter) log(severity Severity, id string, args []any) {
	attrs := []slog.Attr{slog.String("id", id)}
	if r.item != "" {
		attrs = append(attrs, slog.String("item", r.item))
	}
	if len(args) > 0 {
		params := make([]string, len(args))
		for i, arg := range args {
			params[i] = fmt.Sprint(arg)
		}
		attrs = append(attrs, slog.Any("args", params))
	}
	r.logger.LogAttrs(context.Background(), severity.Level(), Render(id, args...), attrs...)
}
