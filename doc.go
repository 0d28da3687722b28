// Package prefs binds typed, reactive settings to a pluggable key-value store.
//
// Components:
//   - store.Store: byte store with atomic multi-key commits and a change stream
//     (memory, file, sqlite, redis, bigcache, ristretto).
//   - Setting[T]: a typed view of one key with a default, a parse/serialize
//     pair, a read-through cache and subscribers.
//   - Registry: routes store change events to settings, coalesces
//     notifications inside Batch and owns the ordered write queue.
//   - SettingController[T]: an optimistic mirror for UI bindings that rolls
//     back when the write fails.
//   - MapSetting[K,V]: a keyed collection persisted as one JSON object.
//
// Reads never fail: an unset key, a kind mismatch or undecodable bytes all
// read as the default. Failures go to Hooks and the Logger.
//
// Usage:
//
//	reg, _ := prefs.New(prefs.Options{Store: memory.New()})
//	dark := prefs.Bool(reg, "dark_mode", false)
//	sub := dark.Subscribe(func(on bool) { applyTheme(on) }) // replays false
//	_ = dark.Set(ctx, true)                                  // applyTheme(true)
//	sub.Unsubscribe()
//
// Consistency:
//
//	Every setting caches its decoded value. A store change invalidates the
//	cache before any subscriber runs, so a subscriber reading any setting
//	observes the post-change state.
package prefs
