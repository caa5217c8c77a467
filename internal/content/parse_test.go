package content

import (
	"strings"
	"testing"
)

func TestCleanVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "trailing bracket annotation", in: "Nifty closed higher. [23]", want: "Nifty closed higher."},
		{name: "trailing chars annotation", in: "Nifty closed higher. (23 chars)", want: "Nifty closed higher."},
		{name: "annotation case insensitive", in: "Up day. (7 CHARS)", want: "Up day."},
		{name: "mid-sentence count kept", in: "The index rose [250] points today.", want: "The index rose [250] points today."},
		{name: "curly quotes folded", in: "“Risk-on” mood, traders said", want: `"Risk-on" mood, traders said`},
		{name: "dashes folded", in: "Rates — and yields – fell", want: "Rates - and yields - fell"},
		{name: "whitespace collapsed", in: "Gold  held \n steady  .", want: "Gold held steady."},
		{name: "ellipsis folded", in: "More to come…", want: "More to come..."},
		{name: "empty", in: "   \n ", want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Fatalf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePreservesOrder(t *testing.T) {
	t.Parallel()
	reply := RawReply{
		{Topic: "1", Text: "First paragraph. [17]"},
		{Topic: "2", Text: "Second paragraph."},
		{Topic: "3", Text: "Third paragraph."},
	}
	cands, warns := Parse(reply)
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	want := []string{"First paragraph.", "Second paragraph.", "Third paragraph."}
	if len(cands) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(cands), len(want))
	}
	for i, c := range cands {
		if c.Text != want[i] {
			t.Fatalf("candidate[%d] = %q, want %q", i, c.Text, want[i])
		}
	}
}

func TestParseDropsOverlongNeverTruncates(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", MaxTweetLen+1)
	reply := RawReply{
		{Topic: "1", Text: long},
		{Topic: "2", Text: "Short enough."},
	}
	cands, warns := Parse(reply)
	if len(cands) != 1 || cands[0].Text != "Short enough." {
		t.Fatalf("unexpected candidates: %v", cands)
	}
	if len(warns) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warns))
	}
	if warns[0].Topic != "1" || warns[0].Length != MaxTweetLen+1 {
		t.Fatalf("unexpected warning: %+v", warns[0])
	}
	for _, c := range cands {
		if len([]rune(c.Text)) > MaxTweetLen {
			t.Fatalf("candidate exceeds limit: %d runes", len([]rune(c.Text)))
		}
	}
}

func TestParseBoundaryExactly280(t *testing.T) {
	t.Parallel()
	exact := strings.Repeat("y", MaxTweetLen)
	cands, warns := Parse(RawReply{{Topic: "1", Text: exact}})
	if len(warns) != 0 {
		t.Fatalf("280-rune paragraph must pass, got warnings: %v", warns)
	}
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
}

func TestParseCountsRunesNotBytes(t *testing.T) {
	t.Parallel()
	// 280 multi-byte runes: valid even though the byte length is far larger.
	text := strings.Repeat("₹", MaxTweetLen)
	cands, warns := Parse(RawReply{{Topic: "1", Text: text}})
	if len(warns) != 0 || len(cands) != 1 {
		t.Fatalf("multibyte 280-rune paragraph rejected: cands=%d warns=%v", len(cands), warns)
	}
}

func TestParseDropsEmptyWithWarning(t *testing.T) {
	t.Parallel()
	cands, warns := Parse(RawReply{{Topic: "1", Text: " [42] "}})
	if len(cands) != 0 {
		t.Fatalf("unexpected candidates: %v", cands)
	}
	if len(warns) != 1 || warns[0].Reason != "empty after cleaning" {
		t.Fatalf("unexpected warnings: %v", warns)
	}
}

func TestParseDeterministic(t *testing.T) {
	t.Parallel()
	reply := RawReply{
		{Topic: "1", Text: "Markets  rallied today… [25]"},
		{Topic: "2", Text: "“Cautious” optimism — for now"},
	}
	first, _ := Parse(reply)
	for i := 0; i < 10; i++ {
		again, _ := Parse(reply)
		if len(again) != len(first) {
			t.Fatalf("run %d: length changed", i)
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("run %d: candidate[%d] changed: %q vs %q", i, j, again[j].Text, first[j].Text)
			}
		}
	}
}
