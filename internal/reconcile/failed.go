package reconcile

import (
	"github.com/alanyoungcy/deltasync/internal/delta"
	"github.com/alanyoungcy/deltasync/internal/domain"
)

// FailedSummary counts the outcome of a failed-signal pass.
type FailedSummary struct {
	Positions     int `json:"positions"`
	Matched       int `json:"matched"`
	MatchedDeltas int `json:"matched_deltas"`
}

// FailedResult holds the failed-position references for every examined
// delta.
type FailedResult struct {
	Matches map[string]domain.MatchRef
	Summary FailedSummary
}

// FailedReconciler matches failed signals to deltas by trigger timestamp and
// broker pair. Delta broker names go through the alias normalizer first since
// failed-signal records carry canonical broker ids.
type FailedReconciler struct {
	aliases *AliasNormalizer
}

// NewFailedReconciler creates a reconciler. A nil normalizer compares broker
// names as they are.
func NewFailedReconciler(aliases *AliasNormalizer) *FailedReconciler {
	return &FailedReconciler{aliases: aliases}
}

// Reconcile runs one pass over failed positions in order, rebuilding their
// matched delta ids. The store is only read.
func (r *FailedReconciler) Reconcile(store *delta.Store, failed []domain.FailedPosition) FailedResult {
	res := FailedResult{
		Matches: unassignedMatches(store.All(), len(failed)),
		Summary: FailedSummary{Positions: len(failed)},
	}

	for i := range failed {
		fp := &failed[i]
		fp.MatchedDeltaIDs = nil

		for _, ev := range store.AtTimestamp(fp.TriggerFeedTS) {
			if !fp.HasPair(r.aliases.Normalize(ev.OfferBroker), r.aliases.Normalize(ev.BidBroker)) {
				continue
			}
			res.Matches[ev.ID] = domain.MatchRef(fp.ID)
			fp.MatchedDeltaIDs = append(fp.MatchedDeltaIDs, ev.ID)
			res.Summary.MatchedDeltas++
		}
		if len(fp.MatchedDeltaIDs) > 0 {
			res.Summary.Matched++
		}
	}
	return res
}
