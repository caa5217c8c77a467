// Package fetch builds sector prompts and turns provider replies into a
// validated RawReply. It never retries; a failed fetch aborts the sector's
// tick and the scheduler waits for the next trigger.
package fetch

import (
	"context"
	"fmt"
	"time"

	"marketcast/internal/content"
	"marketcast/internal/llm"
	logx "marketcast/pkg/logx"
)

// metaPrompt instructs the model to emit a strict JSON object of tweet-sized
// paragraphs, each self-annotated with its character count. The reply is
// still treated as untrusted; decode.go enforces the schema.
const metaPrompt = `You are a precise, logical assistant. When answering, adhere strictly to the following:

1. Paragraph Structure
- Divide your response into clear, self-contained paragraphs.
- Each paragraph must be at most 280 characters (including spaces and punctuation).

2. Character Count Verification
- After composing each paragraph, append its character count in square brackets, e.g. [274].
- Do not exceed 280 characters; adjust wording if necessary.

3. JSON Output
- Once all paragraphs are finalized, output ONLY a single JSON object:
    {
      "1": "First paragraph text...",
      "2": "Second paragraph text...",
      "n": "Nth paragraph text..."
    }
- Keys are consecutive integers as strings, starting at "1". All values are strings.
- No additional commentary, markdown, or logging.

4. Content Requirements
- Be specific and factual. Logical flow: intro, development, conclusion.
- Avoid filler words; every sentence must add value.`

// ProviderError marks a failed fetch: timeout, rate limit, transport error,
// or a reply that fails the schema. The tick aborts with no side effects.
type ProviderError struct {
	Sector string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error for sector %s: %v", e.Sector, e.Err)
}
func (e *ProviderError) Unwrap() error { return e.Err }

type Fetcher struct {
	client  llm.Client
	timeout time.Duration
	log     logx.Logger

	// now is swappable so prompt construction stays deterministic in tests.
	now func() time.Time
}

func New(client llm.Client, timeout time.Duration, log logx.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fetcher{client: client, timeout: timeout, log: log, now: time.Now}
}

// UserPrompt renders the deterministic per-tick question for a sector.
func (f *Fetcher) UserPrompt(sector content.Sector) string {
	return fmt.Sprintf("%s Today's date is %s.", sector.Question, f.now().Format("2 January 2006"))
}

// Fetch issues one bounded provider call and validates the reply schema.
func (f *Fetcher) Fetch(ctx context.Context, sector content.Sector) (content.RawReply, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	user := f.UserPrompt(sector)
	start := time.Now()
	raw, err := f.client.Complete(ctx, metaPrompt, user)
	if err != nil {
		return nil, &ProviderError{Sector: sector.Name, Err: err}
	}
	f.log.Debug("provider reply received",
		logx.String("sector", sector.Name),
		logx.Int("bytes", len(raw)),
		logx.Duration("took", time.Since(start)))

	reply, err := decodeReply(raw)
	if err != nil {
		return nil, &ProviderError{Sector: sector.Name, Err: err}
	}
	return reply, nil
}
