package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot + jsonl journal)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retention bounds the age of seen-fingerprint entries. Entries older
	// than this are dropped on compaction/prune. 0 keeps them forever.
	Retention time.Duration
}

// PostEntry records one posting attempt.
// Keep it compact and schema-stable.
type PostEntry struct {
	At          time.Time
	Sector      string
	Platform    string
	Status      string
	Fingerprint string
	PostID      string
	Error       string
	TookMS      int64
}
