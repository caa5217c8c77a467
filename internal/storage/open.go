package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "marketcast/pkg/logx"
)

// Store is the persistence API behind the dedup cache.
//
// Seen entries are keyed by content fingerprint and hold the time the
// fingerprint was recorded. ListSeen exists so the cache can reload fully
// before the first tick runs.
type Store interface {
	GetSeen(ctx context.Context, fingerprint string) (at time.Time, ok bool, err error)
	PutSeen(ctx context.Context, fingerprint string, at time.Time) error
	ListSeen(ctx context.Context) (map[string]time.Time, error)
	AppendPost(ctx context.Context, e PostEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
