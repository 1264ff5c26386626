package totp

import (
	"testing"
	"time"
)

// RFC 6238 appendix B test vectors (SHA-1, 8 digits truncated to 6 by
// taking the last six digits of the published values).
func TestCodeRFCVectors(t *testing.T) {
	// "12345678901234567890" in base32.
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

	cases := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}

	for _, tc := range cases {
		got, err := Code(secret, time.Unix(tc.unix, 0).UTC())
		if err != nil {
			t.Fatalf("Code(%d): %v", tc.unix, err)
		}
		if got != tc.want {
			t.Errorf("Code(%d) = %s, want %s", tc.unix, got, tc.want)
		}
	}
}

func TestCodeStableWithinWindow(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	base := time.Unix(1700000010, 0)

	a, err := Code(secret, base)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Code(secret, base.Add(19*time.Second)) // same 30s window
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("codes differ within one window: %s vs %s", a, b)
	}

	c, err := Code(secret, base.Add(30*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if a == c {
		t.Errorf("codes should differ across windows")
	}
}

func TestCodesWithOffsets(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	now := time.Unix(1700000000, 0)
	offsets := []int{-5, -4, -3, -2, -1, 0, 1, 2}

	windows, err := CodesWithOffsets(secret, now, offsets)
	if err != nil {
		t.Fatal(err)
	}
	if len(windows) != len(offsets) {
		t.Fatalf("expected %d windows, got %d", len(offsets), len(windows))
	}

	for i, w := range windows {
		if w.Offset != offsets[i] {
			t.Errorf("window %d: offset %d, want %d", i, w.Offset, offsets[i])
		}
		want, _ := Code(secret, now.Add(time.Duration(offsets[i])*Period))
		if w.Code != want {
			t.Errorf("window %d: code mismatch", i)
		}
	}
}

func TestCodeBadSecret(t *testing.T) {
	if _, err := Code("not-base32!!", time.Now()); err == nil {
		t.Fatal("expected error for invalid secret")
	}
}

func TestSecretNormalization(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a, err := Code("JBSWY3DPEHPK3PXP", now)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Code("jbswy3dp ehpk3pxp", now)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("normalized secrets should produce the same code")
	}
}
