package main

import (
	"testing"
)

func TestShortID(t *testing.T) {
	id := "3e4666bf-d5e5-4aa7-b8ce-cefe41c7568a"
	if got := shortID(id); got != "3e4666bf" {
		t.Errorf("shortID(%q) = %q, want %q", id, got, "3e4666bf")
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID(%q) = %q, want %q", "abc", got, "abc")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("truncate short = %q, want %q", got, "hello")
	}
	if got := truncate("hello world", 6); got != "hello…" {
		t.Errorf("truncate long = %q, want %q", got, "hello…")
	}
	if got := truncate("héllo wörld", 6); got != "héllo…" {
		t.Errorf("truncate multibyte = %q, want %q", got, "héllo…")
	}
}
