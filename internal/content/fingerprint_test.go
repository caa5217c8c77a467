package content

import "testing"

func TestFingerprintStableAcrossWhitespaceAndCase(t *testing.T) {
	t.Parallel()
	base := Fingerprint("Nifty closed 0.8% higher on Friday.")
	variants := []string{
		"nifty closed 0.8% higher on friday.",
		"  Nifty closed 0.8% higher on Friday.  ",
		"Nifty  closed\t0.8% higher\non Friday.",
	}
	for _, v := range variants {
		if got := Fingerprint(v); got != base {
			t.Fatalf("Fingerprint(%q) = %s, want %s", v, got, base)
		}
	}
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	t.Parallel()
	a := Fingerprint("Gold rallied to a record high.")
	b := Fingerprint("Gold fell to a monthly low.")
	if a == b {
		t.Fatalf("distinct texts hashed identically: %s", a)
	}
}

func TestFingerprintIsHex(t *testing.T) {
	t.Parallel()
	fp := Fingerprint("anything")
	if fp == "" {
		t.Fatal("empty fingerprint")
	}
	for _, r := range fp {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			t.Fatalf("non-hex rune %q in fingerprint %s", r, fp)
		}
	}
}
