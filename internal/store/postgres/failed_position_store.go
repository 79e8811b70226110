package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/deltasync/internal/domain"
)

// FailedPositionStore implements domain.FailedPositionStore using PostgreSQL.
type FailedPositionStore struct {
	pool *pgxpool.Pool
}

// NewFailedPositionStore creates a new FailedPositionStore backed by the given connection pool.
func NewFailedPositionStore(pool *pgxpool.Pool) *FailedPositionStore {
	return &FailedPositionStore{pool: pool}
}

// ListByDate returns the failed positions of a trading date ordered by
// trigger timestamp, then id.
func (s *FailedPositionStore) ListByDate(ctx context.Context, date domain.TradingDate) ([]domain.FailedPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, trigger_feed_ts, broker_pairs, matched_delta_ids
		 FROM failed_positions
		 WHERE trading_date = $1
		 ORDER BY trigger_feed_ts, id`, date.Time())
	if err != nil {
		return nil, fmt.Errorf("postgres: list failed positions %s: %w", date, err)
	}
	defer rows.Close()

	var out []domain.FailedPosition
	for rows.Next() {
		var f domain.FailedPosition
		var pairsJSON, matchedJSON []byte
		if err := rows.Scan(&f.ID, &f.TriggerFeedTS, &pairsJSON, &matchedJSON); err != nil {
			return nil, fmt.Errorf("postgres: scan failed position: %w", err)
		}
		if f.BrokerPairs, err = decodeBrokerPairs(pairsJSON); err != nil {
			return nil, fmt.Errorf("postgres: failed position %s: %w", f.ID, err)
		}
		if f.MatchedDeltaIDs, err = decodeIDs(matchedJSON); err != nil {
			return nil, fmt.Errorf("postgres: failed position %s: %w", f.ID, err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list failed positions %s: %w", date, err)
	}
	return out, nil
}

// SaveMatches writes the matched delta ids of every failed position in one
// batch.
func (s *FailedPositionStore) SaveMatches(ctx context.Context, failed []domain.FailedPosition) error {
	if len(failed) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		UPDATE failed_positions SET
			matched_delta_ids = $2,
			reconciled_at     = NOW()
		WHERE id = $1`

	for _, f := range failed {
		matched, err := encodeIDs(f.MatchedDeltaIDs)
		if err != nil {
			return fmt.Errorf("postgres: encode failed position %s: %w", f.ID, err)
		}
		batch.Queue(query, f.ID, matched)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, f := range failed {
		tag, err := br.Exec()
		if err != nil {
			return fmt.Errorf("postgres: save matches for failed position %s: %w", f.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("postgres: save matches for failed position %s: %w", f.ID, domain.ErrNotFound)
		}
	}
	return nil
}

var _ domain.FailedPositionStore = (*FailedPositionStore)(nil)
