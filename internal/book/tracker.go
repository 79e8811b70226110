// Package book tracks the top of book of every broker in a broker group.
package book

import (
	"fmt"

	"github.com/alanyoungcy/deltasync/internal/domain"
)

// BrokerState is the top-of-book view of a single broker. Zero rates mean the
// side has not been quoted yet.
type BrokerState struct {
	BestBid       float64
	BestBidSize   float64
	BestOffer     float64
	BestOfferSize float64

	LastFeedTS   int64
	LastSourceTS int64

	// BidLastChangeTS and OfferLastChangeTS only move when the side's rate
	// or size differs from the stored value.
	BidLastChangeTS   int64
	OfferLastChangeTS int64
}

// HasBid reports whether a bid has been recorded.
func (s BrokerState) HasBid() bool { return s.BestBid != 0 }

// HasOffer reports whether an offer has been recorded.
func (s BrokerState) HasOffer() bool { return s.BestOffer != 0 }

// Tracker holds the mutable book state of one broker group. It is not safe
// for concurrent use; each group gets its own tracker.
type Tracker struct {
	group   string
	brokers []string
	states  map[string]*BrokerState
}

// NewTracker creates a tracker for the given group members. Duplicate broker
// names are collapsed; member order is kept for scans.
func NewTracker(group string, brokers []string) *Tracker {
	t := &Tracker{
		group:  group,
		states: make(map[string]*BrokerState, len(brokers)),
	}
	for _, b := range brokers {
		if _, ok := t.states[b]; ok {
			continue
		}
		t.brokers = append(t.brokers, b)
		t.states[b] = &BrokerState{}
	}
	return t
}

// Group returns the group name.
func (t *Tracker) Group() string { return t.group }

// Brokers returns the member brokers in configured order.
func (t *Tracker) Brokers() []string {
	out := make([]string, len(t.brokers))
	copy(out, t.brokers)
	return out
}

// Has reports whether broker is a member of the group.
func (t *Tracker) Has(broker string) bool {
	_, ok := t.states[broker]
	return ok
}

// State returns a copy of the broker's current state.
func (t *Tracker) State(broker string) (BrokerState, bool) {
	s, ok := t.states[broker]
	if !ok {
		return BrokerState{}, false
	}
	return *s, true
}

// Apply folds a quote into the book. Quotes below the top of book are
// ignored. The side's last-change timestamp moves only when the rate or size
// changed; everything else is overwritten on every quote.
func (t *Tracker) Apply(q domain.Quote) error {
	if q.Level != domain.TopOfBook {
		return nil
	}
	s, ok := t.states[q.Broker]
	if !ok {
		return fmt.Errorf("book: group %s: %w: %s", t.group, domain.ErrUnknownBroker, q.Broker)
	}
	if err := q.Validate(); err != nil {
		return fmt.Errorf("book: group %s: %w", t.group, err)
	}

	switch q.Side {
	case domain.SideBid:
		if s.BestBid != q.Rate || s.BestBidSize != q.Size {
			s.BidLastChangeTS = q.FeedTS
		}
		s.BestBid = q.Rate
		s.BestBidSize = q.Size
	case domain.SideOffer:
		if s.BestOffer != q.Rate || s.BestOfferSize != q.Size {
			s.OfferLastChangeTS = q.FeedTS
		}
		s.BestOffer = q.Rate
		s.BestOfferSize = q.Size
	}
	s.LastFeedTS = q.FeedTS
	s.LastSourceTS = q.SourceTS
	return nil
}
