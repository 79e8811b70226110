package domain

// Direction is the trade side implied by a delta or taken by a position.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionNone Direction = "none"
)

// MatchRef links a delta to the record that claimed it. The zero value means
// the delta was never examined by a reconciliation pass; Unassigned means it
// was examined and nothing claimed it; any other value is the record id.
type MatchRef string

const (
	NotExamined MatchRef = ""
	Unassigned  MatchRef = "-1"
)

// Examined reports whether a reconciliation pass looked at the delta.
func (r MatchRef) Examined() bool { return r != NotExamined }

// Assigned reports whether a record claimed the delta.
func (r MatchRef) Assigned() bool { return r != NotExamined && r != Unassigned }

// DeltaEvent is a detected crossed market between the offer of one broker and
// the bid of another broker in the same group.
type DeltaEvent struct {
	ID            string    `json:"id"`
	PairName      string    `json:"pair_name"` // "<offer_broker>-<bid_broker>"
	OfferBroker   string    `json:"offer_broker"`
	BidBroker     string    `json:"bid_broker"`
	Value         float64   `json:"value"`
	OfferRate     float64   `json:"offer_rate"`
	BidRate       float64   `json:"bid_rate"`
	OfferFeedTS   int64     `json:"offer_feed_ts"`
	BidFeedTS     int64     `json:"bid_feed_ts"`
	OfferSourceTS int64     `json:"offer_source_ts"`
	BidSourceTS   int64     `json:"bid_source_ts"`
	TriggerFeedTS int64     `json:"trigger_feed_ts"`
	Direction     Direction `json:"direction"`
	Group         string    `json:"group"`

	PositionID       MatchRef `json:"position_id"`
	FailedPositionID MatchRef `json:"failed_position_id"`
}

// PairName builds the "<offer>-<bid>" label used for delta pairs.
func PairName(offerBroker, bidBroker string) string {
	return offerBroker + "-" + bidBroker
}
