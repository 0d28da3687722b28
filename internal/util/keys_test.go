package util

import "testing"

func TestStorageKeyRoundTrip(t *testing.T) {
	cases := []struct{ ns, key, want string }{
		{"", "dark_mode", "dark_mode"},
		{"app", "dark_mode", "app:dark_mode"},
		{"app", "a:b", "app:a:b"},
	}
	for _, tc := range cases {
		got := StorageKey(tc.ns, tc.key)
		if got != tc.want {
			t.Fatalf("StorageKey(%q,%q)=%q want %q", tc.ns, tc.key, got, tc.want)
		}
		back, ok := UserKey(tc.ns, got)
		if !ok || back != tc.key {
			t.Fatalf("UserKey(%q,%q)=%q,%v want %q", tc.ns, got, back, ok, tc.key)
		}
	}
}

func TestUserKeyOutsideNamespace(t *testing.T) {
	if _, ok := UserKey("app", "other:dark_mode"); ok {
		t.Fatalf("expected key outside namespace to be rejected")
	}
	if _, ok := UserKey("app", "appdark_mode"); ok {
		t.Fatalf("prefix without separator must not match")
	}
}
