package prefs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/prefs/store"
)

var (
	// ErrClosed is returned by writes issued after Registry.Close.
	ErrClosed = errors.New("prefs: registry closed")
	// ErrRejected is store.ErrRejected: the store refused a write under pressure.
	ErrRejected = store.ErrRejected
)

// DecodeError means stored bytes could not be turned into a value.
// It is reported through Hooks and the Logger; Get serves the default.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("prefs: decode %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// WriteError means a write did not become durable.
type WriteError struct {
	Keys []string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("prefs: write %s: %v", strings.Join(quote(e.Keys), ", "), e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SubscriberError wraps a panic recovered from a subscriber callback.
type SubscriberError struct {
	Key   string
	Panic any
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("prefs: subscriber of %q panicked: %v", e.Key, e.Panic)
}

func (e *SubscriberError) Unwrap() error {
	if err, ok := e.Panic.(error); ok {
		return err
	}
	return nil
}

// MisuseError is a programming error. It is raised with panic, never returned.
type MisuseError struct {
	Key    string
	Op     string
	Reason string
}

func (e *MisuseError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("prefs: misuse in %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("prefs: misuse of %q in %s: %s", e.Key, e.Op, e.Reason)
}

func quote(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fmt.Sprintf("%q", k)
	}
	return out
}
