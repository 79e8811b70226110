package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/deltasync/internal/domain"
	"github.com/redis/go-redis/v9"
)

// runStreamMaxLen bounds the run history via XADD MAXLEN ~.
const runStreamMaxLen int64 = 10000

// RunStream implements domain.RunLog on a Redis stream.
type RunStream struct {
	rdb    *redis.Client
	stream string
}

// NewRunStream creates a RunStream writing to deltasync:runs.
func NewRunStream(c *Client) *RunStream {
	return &RunStream{rdb: c.Underlying(), stream: keyPrefix + "runs"}
}

// Append adds one run report to the stream.
func (rs *RunStream) Append(ctx context.Context, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: rs.stream,
		MaxLen: runStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}
	if err := rs.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: append run %s: %w", rs.stream, err)
	}
	return nil
}

// Recent returns up to count reports, newest first. An empty stream yields an
// empty slice.
func (rs *RunStream) Recent(ctx context.Context, count int) ([]domain.RunRecord, error) {
	msgs, err := rs.rdb.XRevRangeN(ctx, rs.stream, "+", "-", int64(count)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: read runs %s: %w", rs.stream, err)
	}

	out := make([]domain.RunRecord, 0, len(msgs))
	for _, msg := range msgs {
		var data []byte
		switch v := msg.Values["payload"].(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}
		out = append(out, domain.RunRecord{ID: msg.ID, Payload: data})
	}
	return out, nil
}

var _ domain.RunLog = (*RunStream)(nil)
