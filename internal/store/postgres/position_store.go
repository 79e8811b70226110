package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/deltasync/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, direction, trigger_feed_ts, broker_pairs,
	enter_broker, exit_broker,
	enter_request_price, enter_exec_price, enter_request_ts, enter_exec_ts,
	exit_request_price, exit_exec_price, exit_request_ts, exit_exec_ts,
	revenue, matched_delta_ids`

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var direction string
		var pairsJSON, matchedJSON []byte

		if err := rows.Scan(
			&p.ID, &direction, &p.TriggerFeedTS, &pairsJSON,
			&p.EnterBroker, &p.ExitBroker,
			&p.EnterRequestPrice, &p.EnterExecPrice, &p.EnterRequestTS, &p.EnterExecTS,
			&p.ExitRequestPrice, &p.ExitExecPrice, &p.ExitRequestTS, &p.ExitExecTS,
			&p.Revenue, &matchedJSON,
		); err != nil {
			return nil, err
		}
		p.Direction = domain.Direction(direction)

		var err error
		if p.BrokerPairs, err = decodeBrokerPairs(pairsJSON); err != nil {
			return nil, fmt.Errorf("position %s: %w", p.ID, err)
		}
		if p.MatchedDeltaIDs, err = decodeIDs(matchedJSON); err != nil {
			return nil, fmt.Errorf("position %s: %w", p.ID, err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ListByDate returns the positions of a trading date ordered by trigger
// timestamp, then id.
func (s *PositionStore) ListByDate(ctx context.Context, date domain.TradingDate) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE trading_date = $1
		 ORDER BY trigger_feed_ts, id`, date.Time())
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions %s: %w", date, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions %s: %w", date, err)
	}
	return positions, nil
}

// SaveMatches writes the matched delta ids and context delta ids of every
// position in one batch.
func (s *PositionStore) SaveMatches(ctx context.Context, positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		UPDATE positions SET
			matched_delta_ids  = $2,
			context_before_ids = $3,
			context_after_ids  = $4,
			reconciled_at      = NOW()
		WHERE id = $1`

	for _, p := range positions {
		matched, err := encodeIDs(p.MatchedDeltaIDs)
		if err != nil {
			return fmt.Errorf("postgres: encode position %s: %w", p.ID, err)
		}
		before, err := encodeIDs(deltaIDs(p.ContextBefore))
		if err != nil {
			return fmt.Errorf("postgres: encode position %s: %w", p.ID, err)
		}
		after, err := encodeIDs(deltaIDs(p.ContextAfter))
		if err != nil {
			return fmt.Errorf("postgres: encode position %s: %w", p.ID, err)
		}
		batch.Queue(query, p.ID, matched, before, after)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, p := range positions {
		tag, err := br.Exec()
		if err != nil {
			return fmt.Errorf("postgres: save matches for position %s: %w", p.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("postgres: save matches for position %s: %w", p.ID, domain.ErrNotFound)
		}
	}
	return nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
