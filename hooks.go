package prefs

// Hooks receive the failures the registry recovers from, plus a few
// high-signal events. They are the error channel: nothing here is ever
// returned to a Get caller.
// Implementations MUST be cheap and non-blocking. The registry calls them inline,
// often from a store's notification goroutine.
type Hooks interface {
	// Stored bytes under key did not decode. The setting serves its default.
	DecodeFailed(key string, err error)

	// The store failed a read. The setting serves its default and retries on the next Get.
	ReadFailed(key string, err error)

	// A write did not become durable. Bound controllers have rolled back
	// by the time their observers see the next value.
	WriteFailed(key string, err error)

	// A subscriber panicked during fan-out. Delivery went on to the next subscriber.
	SubscriberFailed(key string, err error)

	// The outermost batch scope ended and n settings were notified.
	BatchFlushed(n int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) DecodeFailed(string, error)     {}
func (NopHooks) ReadFailed(string, error)       {}
func (NopHooks) WriteFailed(string, error)      {}
func (NopHooks) SubscriberFailed(string, error) {}
func (NopHooks) BatchFlushed(int)               {}
