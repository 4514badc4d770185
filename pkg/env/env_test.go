package env

import "testing"

func TestGetPrefersPrefixedKey(t *testing.T) {
	t.Setenv("LOOTBAY_LOG_FORMAT", "console")
	t.Setenv("LOG_FORMAT", "json")
	if got := Get("LOG_FORMAT", "x"); got != "console" {
		t.Fatalf("expected console, got %q", got)
	}
	if got := Get("LOOTBAY_LOG_FORMAT", "x"); got != "console" {
		t.Fatalf("expected prefixed lookup to match, got %q", got)
	}
}

func TestGetFallsBack(t *testing.T) {
	t.Setenv("LOOTBAY_LOG_FORMAT", "  ")
	t.Setenv("LOG_FORMAT", "json")
	if got := Get("LOG_FORMAT", "x"); got != "json" {
		t.Fatalf("expected bare key, got %q", got)
	}
	t.Setenv("LOG_FORMAT", "")
	if got := Get("LOG_FORMAT", "x"); got != "x" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
