package domain

import (
	"fmt"
	"math"
)

// QuoteSide is the book side a quote updates.
type QuoteSide string

const (
	SideBid   QuoteSide = "bid"
	SideOffer QuoteSide = "offer"
)

// TopOfBook is the only quote level the tracker consumes.
const TopOfBook = 0

// Quote is a single leveled price update from one broker feed. FeedTS is the
// arrival time stamped by the ingesting feed and is used for every
// cross-broker comparison; SourceTS is the broker's own timestamp and is only
// consulted for direction inference.
type Quote struct {
	Broker   string
	Side     QuoteSide
	Level    int
	Rate     float64
	Size     float64
	FeedTS   int64 // ms
	SourceTS int64 // ms
}

// Validate reports ErrMalformedQuote when the rate is not a usable number or
// the side is not recognised.
func (q Quote) Validate() error {
	if math.IsNaN(q.Rate) || math.IsInf(q.Rate, 0) || q.Rate < 0 {
		return fmt.Errorf("%w: broker %s rate %v at %d", ErrMalformedQuote, q.Broker, q.Rate, q.FeedTS)
	}
	if math.IsNaN(q.Size) || math.IsInf(q.Size, 0) {
		return fmt.Errorf("%w: broker %s size %v at %d", ErrMalformedQuote, q.Broker, q.Size, q.FeedTS)
	}
	if q.Side != SideBid && q.Side != SideOffer {
		return fmt.Errorf("%w: broker %s side %q", ErrMalformedQuote, q.Broker, q.Side)
	}
	return nil
}

// ParseQuoteSide maps the feed's "bid"/"offer" column values to a QuoteSide.
func ParseQuoteSide(s string) (QuoteSide, error) {
	switch QuoteSide(s) {
	case SideBid, SideOffer:
		return QuoteSide(s), nil
	default:
		return "", fmt.Errorf("%w: unknown side %q", ErrMalformedQuote, s)
	}
}
