// Package reconcile ties detected deltas to the positions and failed signals
// that were recorded for them.
package reconcile

import (
	"time"

	"github.com/alanyoungcy/deltasync/internal/delta"
	"github.com/alanyoungcy/deltasync/internal/domain"
)

// Params configure position reconciliation.
type Params struct {
	// ContextBefore and ContextAfter bound the open windows around a
	// position's trigger timestamp whose deltas are attached as context.
	ContextBefore time.Duration
	ContextAfter  time.Duration
	// ReportingBrokers restricts context to deltas whose offer broker is
	// one of these.
	ReportingBrokers []string
}

// Summary counts the outcome of a position pass.
type Summary struct {
	Positions           int `json:"positions"`
	Matched             int `json:"matched"`
	DirectionMismatches int `json:"direction_mismatches"`
	BrokerMismatches    int `json:"broker_mismatches"`
	TimestampMismatches int `json:"timestamp_mismatches"`
	MatchedDeltas       int `json:"matched_deltas"`
}

// PositionResult holds the position references for every examined delta and
// the diagnostics for positions without a confirmed delta.
type PositionResult struct {
	Matches    map[string]domain.MatchRef
	Mismatches []domain.Mismatch
	Summary    Summary
}

// PositionReconciler matches positions to deltas by trigger timestamp,
// broker pair and direction.
type PositionReconciler struct {
	params    Params
	reporting map[string]struct{}
}

// NewPositionReconciler creates a reconciler with the given parameters.
func NewPositionReconciler(params Params) *PositionReconciler {
	reporting := make(map[string]struct{}, len(params.ReportingBrokers))
	for _, b := range params.ReportingBrokers {
		reporting[b] = struct{}{}
	}
	return &PositionReconciler{params: params, reporting: reporting}
}

// Reconcile runs one pass over positions in order. Positions are enriched in
// place: their matched delta ids are rebuilt and their context lists
// replaced. The store is only read; the returned matches are applied by the
// caller. When several positions match the same delta the last one wins.
func (r *PositionReconciler) Reconcile(store *delta.Store, positions []domain.Position) PositionResult {
	events := store.All()
	res := PositionResult{
		Matches: unassignedMatches(events, len(positions)),
		Summary: Summary{Positions: len(positions)},
	}

	for i := range positions {
		pos := &positions[i]
		ts := pos.TriggerFeedTS
		pos.MatchedDeltaIDs = nil

		candidates := store.AtTimestamp(ts)
		tsCandidate := len(candidates) > 0
		var pairCandidate, matched bool
		for _, ev := range candidates {
			if !pos.HasPair(ev.OfferBroker, ev.BidBroker) {
				continue
			}
			pairCandidate = true
			if ev.Direction != pos.Direction {
				continue
			}
			matched = true
			res.Matches[ev.ID] = domain.MatchRef(pos.ID)
			pos.MatchedDeltaIDs = append(pos.MatchedDeltaIDs, ev.ID)
			res.Summary.MatchedDeltas++
		}

		before := ts - r.params.ContextBefore.Milliseconds()
		after := ts + r.params.ContextAfter.Milliseconds()
		pos.ContextBefore = r.reportable(store.Between(before, ts))
		pos.ContextAfter = r.reportable(store.Between(ts, after))

		switch {
		case matched:
			res.Summary.Matched++
		case pairCandidate:
			res.addMismatch(pos, domain.MismatchDirection)
		case tsCandidate:
			res.addMismatch(pos, domain.MismatchBroker)
		default:
			res.addMismatch(pos, domain.MismatchTimestamp)
		}
	}
	return res
}

// unassignedMatches marks every delta examined but unclaimed. A pass over no
// positions examines nothing and returns an empty map.
func unassignedMatches(events []domain.DeltaEvent, positions int) map[string]domain.MatchRef {
	matches := make(map[string]domain.MatchRef, len(events))
	if positions == 0 {
		return matches
	}
	for _, ev := range events {
		matches[ev.ID] = domain.Unassigned
	}
	return matches
}

func (r *PositionReconciler) reportable(events []domain.DeltaEvent) []domain.DeltaEvent {
	out := events[:0]
	for _, ev := range events {
		if _, ok := r.reporting[ev.OfferBroker]; ok {
			out = append(out, ev)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (res *PositionResult) addMismatch(pos *domain.Position, category domain.MismatchCategory) {
	res.Mismatches = append(res.Mismatches, domain.Mismatch{
		PositionID:     pos.ID,
		Category:       category,
		TriggerFeedTS:  pos.TriggerFeedTS,
		EnterRequestTS: pos.EnterRequestTS,
	})
	switch category {
	case domain.MismatchDirection:
		res.Summary.DirectionMismatches++
	case domain.MismatchBroker:
		res.Summary.BrokerMismatches++
	case domain.MismatchTimestamp:
		res.Summary.TimestampMismatches++
	}
}
