package util

import "strings"

// StorageKey isolates a user key under ns. An empty ns leaves the key as is.
func StorageKey(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + key
}

// UserKey reverses StorageKey. ok is false when storageKey lies outside ns.
func UserKey(ns, storageKey string) (string, bool) {
	if ns == "" {
		return storageKey, true
	}
	return strings.CutPrefix(storageKey, ns+":")
}
