// Package zap adapts a *zap.Logger to prefs.Logger.
package zap

import (
	"sort"

	"github.com/unkn0wn-root/prefs"
	"go.uber.org/zap"
)

type ZapLogger struct{ L *zap.Logger }

var _ prefs.Logger = ZapLogger{}

// New names the logger "prefs".
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l.Named("prefs")} }

func (z ZapLogger) Debug(msg string, f prefs.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f prefs.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f prefs.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f prefs.Fields) { z.L.Error(msg, zf(f)...) }

// zf orders fields by key so encoded lines are stable.
func zf(f prefs.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok && k == "err" {
			out = append(out, zap.Error(err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
