package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/deltasync/internal/domain"
)

// decodeBrokerPairs reads a JSONB array of two-element broker arrays.
func decodeBrokerPairs(raw []byte) ([]domain.BrokerPair, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var pairs [][]string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("decode broker_pairs: %w", err)
	}
	out := make([]domain.BrokerPair, 0, len(pairs))
	for _, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("decode broker_pairs: pair %v does not have two brokers", p)
		}
		out = append(out, domain.BrokerPair{p[0], p[1]})
	}
	return out, nil
}

func decodeIDs(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode id list: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

// encodeIDs always yields a JSON array, never null.
func encodeIDs(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(ids)
}

func deltaIDs(events []domain.DeltaEvent) []string {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids
}
