package delta

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/deltasync/internal/book"
	"github.com/alanyoungcy/deltasync/internal/domain"
)

// Group is a named set of brokers whose quotes are compared with each other.
type Group struct {
	Name    string
	Brokers []string
}

// Partition is the result of splitting quotes by broker group.
type Partition struct {
	ByGroup map[string][]domain.Quote
	// Unknown counts quotes per broker that belongs to no group.
	Unknown map[string]int
}

// Split assigns each quote to the group of its broker. Quotes keep their
// relative order inside a group.
func Split(groups []Group, quotes []domain.Quote) Partition {
	owner := make(map[string]string)
	for _, g := range groups {
		for _, b := range g.Brokers {
			owner[b] = g.Name
		}
	}
	p := Partition{
		ByGroup: make(map[string][]domain.Quote, len(groups)),
		Unknown: make(map[string]int),
	}
	for _, q := range quotes {
		name, ok := owner[q.Broker]
		if !ok {
			p.Unknown[q.Broker]++
			continue
		}
		p.ByGroup[name] = append(p.ByGroup[name], q)
	}
	return p
}

// UnknownBrokers returns the sorted names of brokers outside every group.
func (p Partition) UnknownBrokers() []string {
	out := make([]string, 0, len(p.Unknown))
	for b := range p.Unknown {
		out = append(out, b)
	}
	slices.Sort(out)
	return out
}

// DetectGroups runs one detector per group concurrently. Events are returned
// in group order, then detection order, regardless of scheduling. Quotes from
// brokers outside all groups are ignored unless strict is set, in which case
// they fail the run with domain.ErrUnknownBroker.
func DetectGroups(ctx context.Context, groups []Group, quotes []domain.Quote, params Params, strict bool) ([]domain.DeltaEvent, error) {
	part := Split(groups, quotes)
	if strict && len(part.Unknown) > 0 {
		return nil, fmt.Errorf("delta: detect: %w: %v", domain.ErrUnknownBroker, part.UnknownBrokers())
	}

	results := make([][]domain.DeltaEvent, len(groups))
	g, ctx := errgroup.WithContext(ctx)
	for i, grp := range groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			det := NewDetector(book.NewTracker(grp.Name, grp.Brokers), params)
			events, err := det.Run(part.ByGroup[grp.Name])
			if err != nil {
				return fmt.Errorf("delta: detect group %s: %w", grp.Name, err)
			}
			results[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.DeltaEvent
	for _, events := range results {
		out = append(out, events...)
	}
	return out, nil
}
