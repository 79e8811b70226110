package reconcile

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/deltasync/internal/delta"
	"github.com/alanyoungcy/deltasync/internal/domain"
)

// Result combines both reconciliation passes.
type Result struct {
	Positions PositionResult
	Failed    FailedResult
}

// Run reconciles positions and failed positions concurrently against the
// store, then writes both match maps into it. Each pass reads the store and
// enriches only its own record slice.
func Run(
	ctx context.Context,
	store *delta.Store,
	pr *PositionReconciler, positions []domain.Position,
	fr *FailedReconciler, failed []domain.FailedPosition,
) (Result, error) {
	var res Result
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Positions = pr.Reconcile(store, positions)
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Failed = fr.Reconcile(store, failed)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	store.ApplyPositionMatches(res.Positions.Matches)
	store.ApplyFailedMatches(res.Failed.Matches)
	return res, nil
}
