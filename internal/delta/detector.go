// Package delta detects crossed markets between brokers of the same group and
// keeps the detected deltas for reconciliation.
package delta

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/deltasync/internal/book"
	"github.com/alanyoungcy/deltasync/internal/domain"
)

// DefaultStalenessWindow is how recently the opposing side must have changed
// for a crossing to count.
const DefaultStalenessWindow = 40 * time.Second

// valuePlaces is the rounding applied to delta values.
const valuePlaces = 7

// deltaNamespace seeds the name-based delta ids.
var deltaNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("deltasync/delta"))

// Params are the detection run parameters.
type Params struct {
	// Threshold is the largest offer-minus-bid value that counts as a delta,
	// typically a small negative number.
	Threshold float64
	// StalenessWindow bounds the age of the opposing side's last change,
	// measured against the triggering quote's feed timestamp.
	StalenessWindow time.Duration
}

// DefaultParams returns the parameters used by the historical runs.
func DefaultParams() Params {
	return Params{
		Threshold:       -0.00001,
		StalenessWindow: DefaultStalenessWindow,
	}
}

// Fingerprint identifies the parameters for cache keys.
func (p Params) Fingerprint() string {
	return fmt.Sprintf("t%s-s%d", decimal.NewFromFloat(p.Threshold).String(), p.StalenessWindow.Milliseconds())
}

// Detector scans one broker group for crossed markets after each quote.
type Detector struct {
	tracker *book.Tracker
	brokers []string
	params  Params
	ordinal int
}

// NewDetector creates a detector reading the given tracker. The detector is
// the only writer of the tracker while it runs.
func NewDetector(tracker *book.Tracker, params Params) *Detector {
	if params.StalenessWindow <= 0 {
		params.StalenessWindow = DefaultStalenessWindow
	}
	return &Detector{
		tracker: tracker,
		brokers: tracker.Brokers(),
		params:  params,
	}
}

// Run feeds a batch of quotes through the tracker in feed-timestamp order and
// returns every delta found. Quotes sharing a feed timestamp keep their input
// order, so for two updates of the same broker side at one instant the later
// one in the input wins.
func (d *Detector) Run(quotes []domain.Quote) ([]domain.DeltaEvent, error) {
	sorted := slices.Clone(quotes)
	slices.SortStableFunc(sorted, func(a, b domain.Quote) int {
		switch {
		case a.FeedTS < b.FeedTS:
			return -1
		case a.FeedTS > b.FeedTS:
			return 1
		}
		return 0
	})

	var out []domain.DeltaEvent
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sorted[end].FeedTS == sorted[start].FeedTS {
			end++
		}
		events, err := d.ApplyBatch(sorted[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
		start = end
	}
	return out, nil
}

// ApplyBatch applies quotes that share one feed timestamp and then scans for
// deltas triggered by each of them. Applying the whole batch first keeps a
// quote from being compared against state that changes at the same instant.
func (d *Detector) ApplyBatch(quotes []domain.Quote) ([]domain.DeltaEvent, error) {
	if len(quotes) == 0 {
		return nil, nil
	}
	ts := quotes[0].FeedTS
	for _, q := range quotes {
		if q.FeedTS != ts {
			return nil, fmt.Errorf("delta: batch mixes feed timestamps %d and %d", ts, q.FeedTS)
		}
		if err := d.tracker.Apply(q); err != nil {
			return nil, fmt.Errorf("delta: apply quote: %w", err)
		}
	}

	var out []domain.DeltaEvent
	for _, q := range quotes {
		if q.Level != domain.TopOfBook {
			continue
		}
		events, err := d.scan(q)
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}
	return out, nil
}

// scan checks the quote's broker against every other member of the group.
func (d *Detector) scan(q domain.Quote) ([]domain.DeltaEvent, error) {
	self, _ := d.tracker.State(q.Broker)
	stale := d.params.StalenessWindow.Milliseconds()

	var out []domain.DeltaEvent
	for _, other := range d.brokers {
		if other == q.Broker {
			continue
		}
		o, _ := d.tracker.State(other)

		switch q.Side {
		case domain.SideBid:
			if !o.HasOffer() || !self.HasBid() {
				continue
			}
			if q.FeedTS-o.OfferLastChangeTS >= stale {
				continue
			}
			ev, ok, err := d.cross(other, o, q.Broker, self, q.FeedTS, domain.SideBid)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, ev)
			}
		case domain.SideOffer:
			if !o.HasBid() || !self.HasOffer() {
				continue
			}
			if q.FeedTS-o.BidLastChangeTS >= stale {
				continue
			}
			ev, ok, err := d.cross(q.Broker, self, other, o, q.FeedTS, domain.SideOffer)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

// cross builds the delta between offerBroker's offer and bidBroker's bid when
// the crossing is deep enough. The threshold is compared against the value
// rounded to 7 dp, so a raw value within rounding distance above the
// threshold still counts as a delta.
func (d *Detector) cross(offerBroker string, os book.BrokerState, bidBroker string, bs book.BrokerState, trigger int64, side domain.QuoteSide) (domain.DeltaEvent, bool, error) {
	value, err := crossValue(os.BestOffer, bs.BestBid)
	if err != nil {
		return domain.DeltaEvent{}, false, fmt.Errorf("delta: group %s %s at %d: %w",
			d.tracker.Group(), domain.PairName(offerBroker, bidBroker), trigger, err)
	}
	if value > d.params.Threshold {
		return domain.DeltaEvent{}, false, nil
	}

	ev := domain.DeltaEvent{
		PairName:      domain.PairName(offerBroker, bidBroker),
		OfferBroker:   offerBroker,
		BidBroker:     bidBroker,
		Value:         value,
		OfferRate:     os.BestOffer,
		BidRate:       bs.BestBid,
		OfferFeedTS:   os.LastFeedTS,
		BidFeedTS:     bs.LastFeedTS,
		OfferSourceTS: os.LastSourceTS,
		BidSourceTS:   bs.LastSourceTS,
		TriggerFeedTS: trigger,
		Group:         d.tracker.Group(),
	}
	ev.Direction = inferDirection(ev, side)
	ev.ID = d.nextID(ev)
	return ev, true, nil
}

// inferDirection only calls a side when the liquidity that became crossable
// appeared first in both feed time and broker time.
func inferDirection(ev domain.DeltaEvent, trigger domain.QuoteSide) domain.Direction {
	switch trigger {
	case domain.SideBid:
		if ev.OfferFeedTS < ev.BidFeedTS && ev.OfferSourceTS < ev.BidSourceTS {
			return domain.DirectionBuy
		}
	case domain.SideOffer:
		if ev.OfferFeedTS > ev.BidFeedTS && ev.OfferSourceTS > ev.BidSourceTS {
			return domain.DirectionSell
		}
	}
	return domain.DirectionNone
}

func (d *Detector) nextID(ev domain.DeltaEvent) string {
	name := fmt.Sprintf("%s|%s|%d|%d", ev.Group, ev.PairName, ev.TriggerFeedTS, d.ordinal)
	d.ordinal++
	return uuid.NewSHA1(deltaNamespace, []byte(name)).String()
}

// crossValue returns offer minus bid rounded to valuePlaces. Both sides must
// be set.
func crossValue(offer, bid float64) (float64, error) {
	if offer == 0 || bid == 0 {
		return 0, fmt.Errorf("%w: offer %v bid %v", domain.ErrArithmeticInvariant, offer, bid)
	}
	raw := offer - bid
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("%w: offer %v bid %v", domain.ErrArithmeticInvariant, offer, bid)
	}
	return roundValue(raw), nil
}

func roundValue(v float64) float64 {
	return decimal.NewFromFloat(v).Round(valuePlaces).InexactFloat64()
}

// sortByTrigger orders events by trigger timestamp, keeping the existing
// order for ties.
func sortByTrigger(events []domain.DeltaEvent) {
	slices.SortStableFunc(events, func(a, b domain.DeltaEvent) int {
		switch {
		case a.TriggerFeedTS < b.TriggerFeedTS:
			return -1
		case a.TriggerFeedTS > b.TriggerFeedTS:
			return 1
		}
		return 0
	})
}
