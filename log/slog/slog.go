// Package slog adapts a *slog.Logger to prefs.Logger.
package slog

import (
	"context"
	stdslog "log/slog"
	"sort"

	"github.com/unkn0wn-root/prefs"
)

var _ prefs.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New groups every line's fields under "prefs".
func New(l *stdslog.Logger) Logger { return Logger{L: l.WithGroup("prefs")} }

func (s Logger) Debug(msg string, f prefs.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f prefs.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f prefs.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f prefs.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) log(level stdslog.Level, msg string, f prefs.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	s.L.LogAttrs(ctx, level, msg, attrs(f)...)
}

func attrs(f prefs.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]stdslog.Attr, 0, len(f))
	for _, k := range keys {
		out = append(out, stdslog.Any(k, f[k]))
	}
	return out
}
