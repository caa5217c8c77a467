// Package platform defines the posting targets the broadcaster fans out to.
package platform

import (
	"context"
	"errors"
)

// Well-known platform names (stable; used in results, logs and the post log).
const (
	NameTwitter  = "twitter"
	NameTelegram = "telegram"
)

var (
	// ErrRateLimited marks a transient rate-limit rejection; the broadcaster
	// may retry with backoff.
	ErrRateLimited = errors.New("rate limited")

	// ErrAuth marks a credential rejection. The broadcaster latches the
	// platform failed for the rest of the process lifetime; operator
	// intervention is required.
	ErrAuth = errors.New("authentication failed")
)

// Poster posts one cleaned candidate string to a platform.
type Poster interface {
	Name() string
	// Post returns the platform's post identifier on success.
	Post(ctx context.Context, text string) (string, error)
}
