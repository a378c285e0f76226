package envconf

import (
	"testing"
	"time"
)

func TestReaders(t *testing.T) {
	const key = "CENTRAQU_ENVCONF_TEST"

	cases := []struct {
		name  string
		raw   string
		check func(t *testing.T)
	}{
		{name: "string trimmed", raw: "  value ", check: func(t *testing.T) {
			if got := String(key, "def"); got != "value" {
				t.Fatalf("String=%q", got)
			}
		}},
		{name: "string blank", raw: "   ", check: func(t *testing.T) {
			if got := String(key, "def"); got != "def" {
				t.Fatalf("String=%q", got)
			}
		}},
		{name: "bool", raw: "true", check: func(t *testing.T) {
			if !Bool(key, false) {
				t.Fatalf("Bool should be true")
			}
		}},
		{name: "bool invalid", raw: "nope", check: func(t *testing.T) {
			if !Bool(key, true) {
				t.Fatalf("invalid bool should fall back")
			}
		}},
		{name: "int", raw: "42", check: func(t *testing.T) {
			if got := Int(key, 1); got != 42 {
				t.Fatalf("Int=%d", got)
			}
		}},
		{name: "int zero", raw: "0", check: func(t *testing.T) {
			if got := Int(key, 7); got != 7 {
				t.Fatalf("zero Int should fall back, got %d", got)
			}
		}},
		{name: "int32 zero allowed", raw: "0", check: func(t *testing.T) {
			if got := Int32(key, 5); got != 0 {
				t.Fatalf("Int32=%d", got)
			}
		}},
		{name: "int32 negative", raw: "-1", check: func(t *testing.T) {
			if got := Int32(key, 5); got != 5 {
				t.Fatalf("negative Int32 should fall back, got %d", got)
			}
		}},
		{name: "int32 overflow", raw: "9999999999", check: func(t *testing.T) {
			if got := Int32(key, 5); got != 5 {
				t.Fatalf("overflowing Int32 should fall back, got %d", got)
			}
		}},
		{name: "int64", raw: "1048576", check: func(t *testing.T) {
			if got := Int64(key, 1); got != 1<<20 {
				t.Fatalf("Int64=%d", got)
			}
		}},
		{name: "duration", raw: "90s", check: func(t *testing.T) {
			if got := Duration(key, time.Second); got != 90*time.Second {
				t.Fatalf("Duration=%v", got)
			}
		}},
		{name: "duration negative", raw: "-5s", check: func(t *testing.T) {
			if got := Duration(key, time.Second); got != time.Second {
				t.Fatalf("negative Duration should fall back, got %v", got)
			}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(key, tc.raw)
			tc.check(t)
		})
	}
}
