package prefs

import "github.com/unkn0wn-root/prefs/store"

// Txn collects writes for Registry.Edit. It is not safe for concurrent use
// and must not outlive the Edit call.
type Txn struct {
	reg     *Registry
	muts    []store.Mutation
	keys    []string
	entries []entry
	after   []func()
}

func (tx *Txn) add(m store.Mutation, e entry, after func()) {
	tx.muts = append(tx.muts, m)
	tx.keys = append(tx.keys, e.key())
	tx.entries = append(tx.entries, e)
	if after != nil {
		tx.after = append(tx.after, after)
	}
}

// Len reports the number of staged writes.
func (tx *Txn) Len() int { return len(tx.muts) }
