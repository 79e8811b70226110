package domain

import "context"

// PositionStore reads executed positions and records their reconciliation
// outcome.
type PositionStore interface {
	ListByDate(ctx context.Context, date TradingDate) ([]Position, error)
	SaveMatches(ctx context.Context, positions []Position) error
}

// FailedPositionStore reads signals that fired without a trade and records
// their reconciliation outcome.
type FailedPositionStore interface {
	ListByDate(ctx context.Context, date TradingDate) ([]FailedPosition, error)
	SaveMatches(ctx context.Context, failed []FailedPosition) error
}

// AuditLog records run events.
type AuditLog interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
