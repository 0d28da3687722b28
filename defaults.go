package prefs

// orDefault returns def when an Options field was left at its zero value.
// Interface fields work too: a nil Logger or Hooks is the zero value.
func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
