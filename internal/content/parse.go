package content

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// The provider self-annotates each paragraph with a character count, either
// square-bracketed ("[274]") or spelled out ("(274 chars)"). Only a TRAILING
// annotation is stripped; counts quoted mid-sentence are content.
var annotationRe = regexp.MustCompile(`(?i)\s*(?:\[\d{1,4}\]|\(\s*\d{1,4}\s*chars?\s*\))\s*$`)

var (
	multiSpaceRe       = regexp.MustCompile(`\s+`)
	spaceBeforePunctRe = regexp.MustCompile(`\s+([.,;:!?])`)
)

// quoteDashReplacer folds typographic characters the model likes to emit
// into their plain ASCII forms so fingerprints stay stable across reruns.
var quoteDashReplacer = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"‚", "'",
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"„", `"`,
	"–", "-", // en dash
	"—", "-", // em dash
	"―", "-",
	"−", "-", // minus sign
	" ", " ", // nbsp
	"…", "...",
)

// Clean applies the full cleaning pass to one paragraph:
// strip trailing char-count annotation, normalize quotes/dashes, collapse
// whitespace, and drop stray space before closing punctuation.
func Clean(text string) string {
	text = strings.TrimSpace(text)
	text = annotationRe.ReplaceAllString(text, "")
	text = quoteDashReplacer.Replace(text)
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = spaceBeforePunctRe.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// Parse converts a RawReply into the ordered candidate sequence.
//
// Pure and deterministic: same reply, same candidates, same order. Entries
// that clean to empty or exceed MaxTweetLen runes are dropped (never
// truncated) and reported as warnings.
func Parse(reply RawReply) ([]Candidate, []Warning) {
	var (
		out   []Candidate
		warns []Warning
	)
	for _, it := range reply {
		cleaned := Clean(it.Text)
		n := utf8.RuneCountInString(cleaned)
		switch {
		case n == 0:
			warns = append(warns, Warning{Topic: it.Topic, Reason: "empty after cleaning"})
		case n > MaxTweetLen:
			warns = append(warns, Warning{
				Topic:  it.Topic,
				Reason: fmt.Sprintf("too long: %d > %d runes", n, MaxTweetLen),
				Length: n,
			})
		default:
			out = append(out, Candidate{Topic: it.Topic, Text: cleaned})
		}
	}
	return out, warns
}
