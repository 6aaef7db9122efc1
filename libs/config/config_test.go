package config

import "testing"

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "")
	if p, err := Port("TEST_PORT", "8080"); err != nil || p != "8080" {
		t.Fatalf("expected fallback 8080, got %q err=%v", p, err)
	}
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatalf("expected error for out of range port")
	}
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_BAD_BOOL", "maybe")

	if got := Int("TEST_INT", 1); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := Int("TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
	if !Bool("TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	if Bool("TEST_BAD_BOOL", false) {
		t.Fatalf("expected fallback false")
	}
}

func TestList(t *testing.T) {
	t.Setenv("TEST_LIST", " a, ,b ,c")
	got := List("TEST_LIST")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list %v", got)
	}
}
