package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/deltasync/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DeltaCache implements domain.DeltaCache. The deltas of one trading date are
// stored as a single JSON array so a rerun either sees the whole detection
// result or nothing.
//
// Key schema:
//
//	deltasync:deltas:{DD-MM-YYYY}:{fingerprint} - JSON array of DeltaEvent
type DeltaCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDeltaCache creates a DeltaCache. A zero ttl keeps entries forever.
func NewDeltaCache(c *Client, ttl time.Duration) *DeltaCache {
	return &DeltaCache{rdb: c.Underlying(), ttl: ttl}
}

func deltaKey(date domain.TradingDate, fingerprint string) string {
	return keyPrefix + "deltas:" + date.String() + ":" + fingerprint
}

// Get returns the cached deltas, or domain.ErrNotFound.
func (dc *DeltaCache) Get(ctx context.Context, date domain.TradingDate, fingerprint string) ([]domain.DeltaEvent, error) {
	data, err := dc.rdb.Get(ctx, deltaKey(date, fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get deltas %s: %w", date, err)
	}

	var deltas []domain.DeltaEvent
	if err := json.Unmarshal(data, &deltas); err != nil {
		return nil, fmt.Errorf("redis: unmarshal deltas %s: %w", date, err)
	}
	// Match refs belong to a reconciliation pass, not to detection.
	for i := range deltas {
		deltas[i].PositionID = domain.NotExamined
		deltas[i].FailedPositionID = domain.NotExamined
	}
	return deltas, nil
}

// Set replaces the cached deltas for date. Match refs are not stored.
func (dc *DeltaCache) Set(ctx context.Context, date domain.TradingDate, fingerprint string, deltas []domain.DeltaEvent) error {
	clean := make([]domain.DeltaEvent, len(deltas))
	for i, d := range deltas {
		d.PositionID = domain.NotExamined
		d.FailedPositionID = domain.NotExamined
		clean[i] = d
	}

	data, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("redis: marshal deltas %s: %w", date, err)
	}
	if err := dc.rdb.Set(ctx, deltaKey(date, fingerprint), data, dc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set deltas %s: %w", date, err)
	}
	return nil
}

var _ domain.DeltaCache = (*DeltaCache)(nil)
