package content

import "time"

// MaxTweetLen is the platform ceiling for one candidate, in runes.
const MaxTweetLen = 280

// Sector is a market category driving one fetch prompt.
type Sector struct {
	Name     string
	Question string
}

// ReplyItem is one (topic, paragraph) pair from the provider.
type ReplyItem struct {
	Topic string
	Text  string
}

// RawReply is the provider's structured output in insertion order.
// First entries post first; order is significant.
type RawReply []ReplyItem

// Candidate is a cleaned, length-validated string eligible for posting.
type Candidate struct {
	Topic string
	Text  string
}

// Warning reports one dropped reply entry. Non-fatal; the tick continues.
type Warning struct {
	Topic  string
	Reason string
	Length int // rune length after cleaning, when relevant
}

// PostStatus is the terminal outcome of one candidate on one platform.
type PostStatus string

const (
	StatusPosted  PostStatus = "posted"
	StatusSkipped PostStatus = "skipped" // duplicate, cache hit
	StatusFailed  PostStatus = "failed"
)

// PostResult is the per-platform outcome for one candidate.
type PostResult struct {
	Platform string
	Status   PostStatus
	PostID   string // platform identifier when posted
	Err      error
	At       time.Time
}
