package domain

// BrokerPair is an unordered pair of broker identifiers as recorded on a
// position. Order carries no meaning; use Matches to compare.
type BrokerPair [2]string

// Matches reports whether the pair holds a and b in either order.
func (p BrokerPair) Matches(a, b string) bool {
	return (p[0] == a && p[1] == b) || (p[0] == b && p[1] == a)
}

// Position is a trade that was executed in response to a delta. It is loaded
// whole from the position store and only its match and context fields are
// filled in by reconciliation.
type Position struct {
	ID            string       `json:"id"`
	Direction     Direction    `json:"direction"`
	TriggerFeedTS int64        `json:"trigger_feed_ts"`
	BrokerPairs   []BrokerPair `json:"broker_pairs"`
	EnterBroker   string       `json:"enter_broker"`
	ExitBroker    string       `json:"exit_broker"`

	EnterRequestPrice float64 `json:"enter_request_price"`
	EnterExecPrice    float64 `json:"enter_exec_price"`
	EnterRequestTS    int64   `json:"enter_request_ts"`
	EnterExecTS       int64   `json:"enter_exec_ts"`
	ExitRequestPrice  float64 `json:"exit_request_price"`
	ExitExecPrice     float64 `json:"exit_exec_price"`
	ExitRequestTS     int64   `json:"exit_request_ts"`
	ExitExecTS        int64   `json:"exit_exec_ts"`
	Revenue           float64 `json:"revenue"`

	MatchedDeltaIDs []string     `json:"matched_delta_ids"`
	ContextBefore   []DeltaEvent `json:"context_before"`
	ContextAfter    []DeltaEvent `json:"context_after"`
}

// HasPair reports whether any of the position's broker pairs holds a and b.
func (p *Position) HasPair(a, b string) bool {
	return hasPair(p.BrokerPairs, a, b)
}

// FailedPosition is a signal that fired without producing a trade.
type FailedPosition struct {
	ID              string       `json:"id"`
	TriggerFeedTS   int64        `json:"trigger_feed_ts"`
	BrokerPairs     []BrokerPair `json:"broker_pairs"`
	MatchedDeltaIDs []string     `json:"matched_delta_ids"`
}

// HasPair reports whether any of the failed position's broker pairs holds a
// and b.
func (f *FailedPosition) HasPair(a, b string) bool {
	return hasPair(f.BrokerPairs, a, b)
}

func hasPair(pairs []BrokerPair, a, b string) bool {
	for _, p := range pairs {
		if p.Matches(a, b) {
			return true
		}
	}
	return false
}

// MismatchCategory classifies why a position found no confirmed delta.
type MismatchCategory string

const (
	MismatchTimestamp MismatchCategory = "timestamp_mismatch"
	MismatchBroker    MismatchCategory = "broker_mismatch"
	MismatchDirection MismatchCategory = "direction_mismatch"
)

// Mismatch is a diagnostic for a position that reconciliation could not tie
// to a delta. It is expected output, not an error.
type Mismatch struct {
	PositionID     string           `json:"position_id"`
	Category       MismatchCategory `json:"category"`
	TriggerFeedTS  int64            `json:"trigger_feed_ts"`
	EnterRequestTS int64            `json:"enter_request_ts"`
}
