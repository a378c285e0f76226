package accesscode

import (
	"strings"
	"testing"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	return cfg
}

func TestGenerate_UsesAlphabet(t *testing.T) {
	cfg := testConfig()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := cfg.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(code) != cfg.Policy.Length {
			t.Fatalf("expected length %d, got %q", cfg.Policy.Length, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(Alphabet, r) {
				t.Fatalf("unexpected char %q in %q", r, code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 45 {
		t.Fatalf("expected mostly unique codes, got %d unique of 50", len(seen))
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "  ABCDEFGH \t", want: "ABCDEFGH"},
		{in: "abcd-efgh", want: "abcd-efgh"},
		{in: "ABCD EFGH", want: "ABCD EFGH"},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestHashAndVerify(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("K7QMR2XP")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$") {
		t.Fatalf("unexpected encoding: %q", h)
	}

	ok, err := cfg.Verify(h, " K7QMR2XP\n")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected exact code with surrounding whitespace to match")
	}

	for _, variant := range []string{"k7qmr2xp", "K7QM-R2XP", "K7QM R2XP", "k7qm - r2xp"} {
		ok, err := cfg.Verify(h, variant)
		if err != nil || ok {
			t.Fatalf("Verify(%q) ok=%v err=%v; want plain mismatch", variant, ok, err)
		}
	}

	ok, err = cfg.Verify(h, "K7QMR2XQ")
	if err != nil {
		t.Fatalf("Verify mismatch: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}

	ok, err = cfg.Verify(h, "!!")
	if err != nil || ok {
		t.Fatalf("malformed input must be a plain mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := testConfig()

	if _, err := cfg.Verify("not-a-hash", "ABCDEFGH"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestVerify_RejectsCostlyParams(t *testing.T) {
	strong := testConfig()
	strong.Params.MemoryKiB = 64 * 1024
	h, err := strong.Hash("ABCDEFGH")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	weak := testConfig()
	if _, err := weak.Verify(h, "ABCDEFGH"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash for out-of-bounds params, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := testConfig()

	if err := cfg.Validate("ABC"); err != ErrCodeTooShort {
		t.Fatalf("expected ErrCodeTooShort, got %v", err)
	}
	if err := cfg.Validate(strings.Repeat("A", 40)); err != ErrCodeTooLong {
		t.Fatalf("expected ErrCodeTooLong, got %v", err)
	}
	if err := cfg.Validate("ABCD_EFG"); err != ErrInvalidChar {
		t.Fatalf("expected ErrInvalidChar, got %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CENTRAQU_ACCESS_CODE_LEN", "10")
	t.Setenv("CENTRAQU_ACCESS_CODE_ARGON2_ITERATIONS", "3")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Policy.Length != 10 || cfg.Params.Iterations != 3 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}

	t.Setenv("CENTRAQU_ACCESS_CODE_LEN", "3")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for out-of-range length")
	}
}
