package scheduler

import (
	"testing"
)

func TestNormalizeSpecVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "duration", raw: "3h", want: "@every 3h0m0s"},
		{name: "duration minutes", raw: "90m", want: "@every 1h30m0s"},
		{name: "hhmm daily", raw: "09:30", want: "30 9 * * *"},
		{name: "hhmm midnight", raw: "00:00", want: "0 0 * * *"},
		{name: "cron passthrough", raw: "*/15 * * * *", want: "*/15 * * * *"},
		{name: "descriptor passthrough", raw: "@daily", want: "@daily"},
		{name: "whitespace trimmed", raw: "  6h ", want: "@every 6h0m0s"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSpec(tt.raw)
			if err != nil {
				t.Fatalf("NormalizeSpec(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("NormalizeSpec(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeSpecInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "25:00", "30s", "12:60"} {
		if _, err := NormalizeSpec(raw); err == nil {
			t.Fatalf("NormalizeSpec(%q) succeeded, want error", raw)
		}
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	h, m, err := parseHHMM("23:15")
	if err != nil {
		t.Fatalf("parseHHMM error: %v", err)
	}
	if h != 23 || m != 15 {
		t.Fatalf("unexpected result: %d:%d", h, m)
	}
	if _, _, err := parseHHMM("24:00"); err == nil {
		t.Fatal("expected error for invalid hour")
	}
}
