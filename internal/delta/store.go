package delta

import (
	"github.com/alanyoungcy/deltasync/internal/domain"
)

// Store holds detected deltas in insertion order together with their
// reconciliation annotations. It is not safe for concurrent writes; the
// reconcilers only read it and hand back result maps.
type Store struct {
	events []domain.DeltaEvent
	byID   map[string]int
}

// NewStore creates a store holding events in the given order.
func NewStore(events ...domain.DeltaEvent) *Store {
	s := &Store{byID: make(map[string]int, len(events))}
	for _, ev := range events {
		s.Append(ev)
	}
	return s
}

// Append adds an event at the end of the store. An event whose id is already
// present replaces the stored copy in place.
func (s *Store) Append(ev domain.DeltaEvent) {
	if i, ok := s.byID[ev.ID]; ok {
		s.events[i] = ev
		return
	}
	s.byID[ev.ID] = len(s.events)
	s.events = append(s.events, ev)
}

// Len returns the number of events.
func (s *Store) Len() int { return len(s.events) }

// All returns a copy of every event in store order.
func (s *Store) All() []domain.DeltaEvent {
	out := make([]domain.DeltaEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Get returns the event with the given id.
func (s *Store) Get(id string) (domain.DeltaEvent, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.DeltaEvent{}, false
	}
	return s.events[i], true
}

// AtTimestamp returns the events triggered at ts, in store order.
func (s *Store) AtTimestamp(ts int64) []domain.DeltaEvent {
	var out []domain.DeltaEvent
	for _, ev := range s.events {
		if ev.TriggerFeedTS == ts {
			out = append(out, ev)
		}
	}
	return out
}

// Between returns the events with lo < trigger ts < hi ordered by trigger
// timestamp. Events sharing a timestamp keep store order.
func (s *Store) Between(lo, hi int64) []domain.DeltaEvent {
	var out []domain.DeltaEvent
	for _, ev := range s.events {
		if ev.TriggerFeedTS > lo && ev.TriggerFeedTS < hi {
			out = append(out, ev)
		}
	}
	sortByTrigger(out)
	return out
}

// ApplyPositionMatches writes position references from a reconciliation
// result. Ids missing from the store are ignored.
func (s *Store) ApplyPositionMatches(matches map[string]domain.MatchRef) {
	for id, ref := range matches {
		if i, ok := s.byID[id]; ok {
			s.events[i].PositionID = ref
		}
	}
}

// ApplyFailedMatches writes failed-position references from a
// reconciliation result. Ids missing from the store are ignored.
func (s *Store) ApplyFailedMatches(matches map[string]domain.MatchRef) {
	for id, ref := range matches {
		if i, ok := s.byID[id]; ok {
			s.events[i].FailedPositionID = ref
		}
	}
}
