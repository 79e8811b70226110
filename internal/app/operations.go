package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/deltasync/internal/domain"
	"github.com/alanyoungcy/deltasync/internal/pipeline"
)

// AvailableDates lists the trading dates with recorded quotes, oldest first.
func (a *App) AvailableDates(ctx context.Context) ([]domain.TradingDate, error) {
	quotes, _, err := WireStorage(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	dates, err := quotes.Dates(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: list dates: %w", err)
	}
	return dates, nil
}

// RecentRuns returns up to count run reports from the history, newest first.
// Entries that do not decode are skipped.
func (a *App) RecentRuns(ctx context.Context, count int) ([]pipeline.Report, error) {
	runs, closeFn, err := WireRunLog(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeFn)

	records, err := runs.Recent(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("app: run history: %w", err)
	}
	return decodeReports(records), nil
}

func decodeReports(records []domain.RunRecord) []pipeline.Report {
	out := make([]pipeline.Report, 0, len(records))
	for _, rec := range records {
		var rep pipeline.Report
		if err := json.Unmarshal(rec.Payload, &rep); err != nil {
			continue
		}
		out = append(out, rep)
	}
	return out
}
