// Package sloghooks reports registry events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/prefs"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	DecodeEvery     uint64
	SubscriberEvery uint64
	// Optional key redactor. nil logs keys as is; HashKey logs a SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	decodeCtr     atomic.Uint64
	subscriberCtr atomic.Uint64
}

var _ prefs.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

// HashKey is a Redact func for keys that may carry user data.
func HashKey(k string) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return k
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) DecodeFailed(key string, err error) {
	if h.l == nil || !sample(h.opts.DecodeEvery, &h.decodeCtr) {
		return
	}
	h.l.Warn("prefs.decode_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) ReadFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("prefs.read_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) WriteFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("prefs.write_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) SubscriberFailed(key string, err error) {
	if h.l == nil || !sample(h.opts.SubscriberEvery, &h.subscriberCtr) {
		return
	}
	h.l.Error("prefs.subscriber_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) BatchFlushed(n int) {
	if h.l == nil {
		return
	}
	h.l.Debug("prefs.batch_flushed", "settings", n)
}
