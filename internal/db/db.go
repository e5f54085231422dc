package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
// Consumers depend on the narrow sub-interfaces they actually use (ISP).
type Store interface {
	Pinger
	HashStore
	KVStore
	ListStore
	Scripter
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides read access to hash keys. Hash writes go through
// Scripter so they commit atomically with their version check.
type HashStore interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ListStore provides read access to append-only lists.
type ListStore interface {
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
}

// Scripter executes server-side Lua scripts atomically. Implementations
// use EVALSHA with an EVAL fallback and cache scripts by source.
type Scripter interface {
	Eval(ctx context.Context, src string, keys, args []string) (string, error)
}
