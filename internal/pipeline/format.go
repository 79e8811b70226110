package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/deltasync/internal/domain"
)

// maxMismatchLines caps the mismatch notification body.
const maxMismatchLines = 15

func runTitle(rep *Report, err error) string {
	if err != nil {
		return fmt.Sprintf("deltasync %s %s failed", rep.Date, rep.Mode)
	}
	return fmt.Sprintf("deltasync %s %s completed", rep.Date, rep.Mode)
}

func runMessage(rep *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "deltas: %d (from %s)\n", rep.Deltas, orDash(rep.Source))
	if rep.Quotes > 0 {
		fmt.Fprintf(&b, "quotes: %d\n", rep.Quotes)
	}
	if len(rep.UnknownBrokers) > 0 {
		fmt.Fprintf(&b, "unknown brokers: %s\n", strings.Join(rep.UnknownBrokers, ", "))
	}
	if rep.Mode == ModeReconcile {
		p := rep.Positions
		fmt.Fprintf(&b, "positions: %d matched of %d (direction %d, broker %d, timestamp %d)\n",
			p.Matched, p.Positions, p.DirectionMismatches, p.BrokerMismatches, p.TimestampMismatches)
		fmt.Fprintf(&b, "failed signals: %d matched of %d\n", rep.Failed.Matched, rep.Failed.Positions)
	}
	if rep.SummaryKey != "" {
		fmt.Fprintf(&b, "summary: %s\n", rep.SummaryKey)
	}
	if rep.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", rep.Error)
	}
	fmt.Fprintf(&b, "took %s", (time.Duration(rep.DurationMs) * time.Millisecond).String())
	return b.String()
}

func mismatchMessage(mismatches []domain.Mismatch) string {
	var b strings.Builder
	for i, m := range mismatches {
		if i == maxMismatchLines {
			fmt.Fprintf(&b, "... and %d more", len(mismatches)-i)
			break
		}
		fmt.Fprintf(&b, "%s %s at %s\n", m.PositionID, m.Category,
			time.UnixMilli(m.TriggerFeedTS).UTC().Format("15:04:05.000"))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
