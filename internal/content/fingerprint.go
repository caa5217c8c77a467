package content

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Normalize casefolds and collapses whitespace so trivially rephrased
// whitespace/case variants hash identically. Rephrasings beyond that are
// treated as distinct content.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	return multiSpaceRe.ReplaceAllString(text, " ")
}

// Fingerprint returns a stable 64-bit hash (hex) of the normalized text.
// It keys the dedup cache; Clean() should already have run on the input.
func Fingerprint(text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(Normalize(text)))
	return fmt.Sprintf("%x", h.Sum64())
}
