package storage

// Package storage persists the dedup cache state and the post log.
//
// It currently supports:
//   - Seen-fingerprint entries (the duplicate-suppression core)
//   - Post log appends (one row per posting attempt)
