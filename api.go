package prefs

import (
	"errors"
	"time"

	"github.com/unkn0wn-root/prefs/store"
)

// Options configure a Registry. Only Store is required; others have sensible defaults.
type Options struct {
	// Required
	Store store.Store

	Namespace    string        // store keys become "<Namespace>:<key>"; events outside it are ignored
	Logger       Logger        // if nil, NopLogger is used
	Hooks        Hooks         // if nil, NopHooks is used
	WriteQueue   int           // async writes buffered before SetAsync blocks; 0 => 1024. Subscribers may run on the write worker and must not fill it
	WriteTimeout time.Duration // per async write; 0 => no deadline
	CloseStore   bool          // Close also closes Store
}

// New opens a registry over opts.Store and subscribes to its change stream.
// The store handle is held until Close.
func New(opts Options) (*Registry, error) {
	if opts.Store == nil {
		return nil, errors.New("prefs: Options.Store is required")
	}
	return newRegistry(opts), nil
}
