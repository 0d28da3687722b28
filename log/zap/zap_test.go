package zap

import (
	"errors"
	"testing"

	"github.com/unkn0wn-root/prefs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("d", nil)
	l.Warn("write failed", prefs.Fields{"key": "volume", "err": errors.New("disk full")})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries=%d want 2", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel || entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("levels %v %v", entries[0].Level, entries[1].Level)
	}
	if entries[1].LoggerName != "prefs" {
		t.Fatalf("logger name %q", entries[1].LoggerName)
	}
	ctx := entries[1].ContextMap()
	if ctx["key"] != "volume" || ctx["error"] != "disk full" {
		t.Fatalf("fields %v", ctx)
	}
}
