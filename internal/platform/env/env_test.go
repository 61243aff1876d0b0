package env

import (
	"testing"
	"time"
)

func TestString_Default(t *testing.T) {
	got := String("UNICORN_ENV_STRING_DOES_NOT_EXIST", "fallback")
	if got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
}

func TestString_OverrideTrimmed(t *testing.T) {
	t.Setenv("UNICORN_ENV_STRING_KEY", "  value ")
	got := String("UNICORN_ENV_STRING_KEY", "fallback")
	if got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
}

func TestDuration_Override(t *testing.T) {
	t.Setenv("UNICORN_ENV_DURATION_KEY", "250ms")
	got, err := Duration("UNICORN_ENV_DURATION_KEY", 5*time.Second)
	if err != nil {
		t.Fatalf("Duration() err=%v", err)
	}
	if got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v, want 250ms", got)
	}
}

func TestDuration_Invalid(t *testing.T) {
	t.Setenv("UNICORN_ENV_DURATION_INVALID", "soon")
	if _, err := Duration("UNICORN_ENV_DURATION_INVALID", time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}

func TestBool_And_Int(t *testing.T) {
	t.Setenv("UNICORN_ENV_BOOL", "true")
	t.Setenv("UNICORN_ENV_INT", "7")
	b, err := Bool("UNICORN_ENV_BOOL", false)
	if err != nil || !b {
		t.Fatalf("Bool()=%v, %v", b, err)
	}
	i, err := Int("UNICORN_ENV_INT", 1)
	if err != nil || i != 7 {
		t.Fatalf("Int()=%d, %v", i, err)
	}
	t.Setenv("UNICORN_ENV_INT", "seven")
	if _, err := Int("UNICORN_ENV_INT", 1); err == nil {
		t.Fatalf("Int() expected error")
	}
}

func TestOneOf(t *testing.T) {
	got, err := OneOf("UNICORN_ENV_MODE_MISSING", "http", "http", "queue")
	if err != nil || got != "http" {
		t.Fatalf("OneOf()=%q, %v", got, err)
	}
	t.Setenv("UNICORN_ENV_MODE", "smtp")
	if _, err := OneOf("UNICORN_ENV_MODE", "http", "http", "queue"); err == nil {
		t.Fatalf("OneOf() expected error")
	}
}

func TestStringMap(t *testing.T) {
	t.Setenv("UNICORN_ENV_MAP", "POST=create, PUT = approve,")
	got, err := StringMap("UNICORN_ENV_MAP", nil)
	if err != nil {
		t.Fatalf("StringMap() err=%v", err)
	}
	if got["POST"] != "create" || got["PUT"] != "approve" || len(got) != 2 {
		t.Fatalf("StringMap()=%v", got)
	}
	t.Setenv("UNICORN_ENV_MAP", "broken")
	if _, err := StringMap("UNICORN_ENV_MAP", nil); err == nil {
		t.Fatalf("StringMap() expected error")
	}
}
