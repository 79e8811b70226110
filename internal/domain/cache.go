package domain

import (
	"context"
	"time"
)

// DeltaCache keeps the detected deltas of a trading date so a rerun with the
// same detection parameters can skip quote loading and detection.
type DeltaCache interface {
	Get(ctx context.Context, date TradingDate, fingerprint string) ([]DeltaEvent, error)
	Set(ctx context.Context, date TradingDate, fingerprint string, deltas []DeltaEvent) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter answers whether an action keyed by key may happen now under a
// limit of limit actions per window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RunRecord is one entry of the run history stream.
type RunRecord struct {
	ID      string
	Payload []byte
}

// RunLog keeps a bounded, ordered history of run reports.
type RunLog interface {
	Append(ctx context.Context, payload []byte) error
	Recent(ctx context.Context, count int) ([]RunRecord, error)
}
