package s3blob

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/alanyoungcy/deltasync/internal/domain"
)

const (
	summaryFile         = "delta_summary.csv"
	positionsFile       = "positions.jsonl"
	failedPositionsFile = "failed_positions.jsonl"
	mismatchesFile      = "mismatches.jsonl"
)

// Match column values written for deltas below the export ceiling.
const (
	refUnmatched   = "0"
	refNotExamined = "-2"
)

var summaryHeader = []string{
	"id", "pair_name", "offer_broker", "bid_broker", "value",
	"offer_rate", "bid_rate", "offer_feed_ts", "bid_feed_ts",
	"offer_source_ts", "bid_source_ts", "trigger_feed_ts",
	"direction", "group", "position_id", "failed_position_id",
}

// Exporter writes the per-date reports under <prefix><DD-MM-YYYY>/ and reads
// back earlier delta summaries.
type Exporter struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	prefix string
}

// NewExporter creates an exporter for the report bucket.
func NewExporter(writer domain.BlobWriter, reader domain.BlobReader, prefix string) *Exporter {
	return &Exporter{writer: writer, reader: reader, prefix: prefix}
}

func (e *Exporter) path(date domain.TradingDate, file string) string {
	return e.prefix + date.String() + "/" + file
}

// SummaryPath returns the key of the delta summary of date.
func (e *Exporter) SummaryPath(date domain.TradingDate) string {
	return e.path(date, summaryFile)
}

// ExportSummary uploads every delta as one CSV row sorted by trigger
// timestamp and returns the key written. For deltas with value below ceiling
// the match columns are normalised: unmatched becomes 0 and never examined
// becomes -2.
func (e *Exporter) ExportSummary(ctx context.Context, date domain.TradingDate, deltas []domain.DeltaEvent, ceiling float64) (string, error) {
	buf, err := marshalSummary(deltas, ceiling)
	if err != nil {
		return "", fmt.Errorf("s3blob: export summary: %w", err)
	}
	key := e.SummaryPath(date)
	if err := upload(ctx, e.writer, key, buf, "text/csv"); err != nil {
		return "", err
	}
	return key, nil
}

// ExportReconciliation uploads the annotated positions, failed positions and
// mismatch diagnostics of date as JSONL files.
func (e *Exporter) ExportReconciliation(
	ctx context.Context,
	date domain.TradingDate,
	positions []domain.Position,
	failed []domain.FailedPosition,
	mismatches []domain.Mismatch,
) error {
	files := []struct {
		name    string
		marshal func() ([]byte, error)
	}{
		{positionsFile, func() ([]byte, error) { return marshalJSONL(positions) }},
		{failedPositionsFile, func() ([]byte, error) { return marshalJSONL(failed) }},
		{mismatchesFile, func() ([]byte, error) { return marshalJSONL(mismatches) }},
	}
	for _, f := range files {
		buf, err := f.marshal()
		if err != nil {
			return fmt.Errorf("s3blob: export %s: %w", f.name, err)
		}
		if err := upload(ctx, e.writer, e.path(date, f.name), buf, "application/x-ndjson"); err != nil {
			return err
		}
	}
	return nil
}

// LoadSummary reads back the deltas of an earlier summary. Match columns are
// not restored since reconciliation recomputes them. A missing summary
// yields domain.ErrNotFound.
func (e *Exporter) LoadSummary(ctx context.Context, date domain.TradingDate) ([]domain.DeltaEvent, error) {
	key := e.SummaryPath(date)
	ok, err := e.reader.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("s3blob: summary %s: %w", key, domain.ErrNotFound)
	}

	body, err := e.reader.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	deltas, err := parseSummary(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: summary %s: %w", key, err)
	}
	return deltas, nil
}

func marshalSummary(deltas []domain.DeltaEvent, ceiling float64) ([]byte, error) {
	sorted := slices.Clone(deltas)
	slices.SortStableFunc(sorted, func(a, b domain.DeltaEvent) int {
		switch {
		case a.TriggerFeedTS < b.TriggerFeedTS:
			return -1
		case a.TriggerFeedTS > b.TriggerFeedTS:
			return 1
		}
		return 0
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(summaryHeader); err != nil {
		return nil, err
	}
	for _, d := range sorted {
		interesting := d.Value < ceiling
		row := []string{
			d.ID,
			d.PairName,
			d.OfferBroker,
			d.BidBroker,
			formatFloat(d.Value),
			formatFloat(d.OfferRate),
			formatFloat(d.BidRate),
			strconv.FormatInt(d.OfferFeedTS, 10),
			strconv.FormatInt(d.BidFeedTS, 10),
			strconv.FormatInt(d.OfferSourceTS, 10),
			strconv.FormatInt(d.BidSourceTS, 10),
			strconv.FormatInt(d.TriggerFeedTS, 10),
			string(d.Direction),
			d.Group,
			summaryRef(d.PositionID, interesting),
			summaryRef(d.FailedPositionID, interesting),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func summaryRef(ref domain.MatchRef, interesting bool) string {
	if !interesting {
		return string(ref)
	}
	switch ref {
	case domain.Unassigned:
		return refUnmatched
	case domain.NotExamined:
		return refNotExamined
	}
	return string(ref)
}

func parseSummary(r io.Reader) ([]domain.DeltaEvent, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, col := range summaryHeader {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var out []domain.DeltaEvent
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		p := rowParser{rec: rec, idx: idx}
		d := domain.DeltaEvent{
			ID:            p.str("id"),
			PairName:      p.str("pair_name"),
			OfferBroker:   p.str("offer_broker"),
			BidBroker:     p.str("bid_broker"),
			Value:         p.num("value"),
			OfferRate:     p.num("offer_rate"),
			BidRate:       p.num("bid_rate"),
			OfferFeedTS:   p.ts("offer_feed_ts"),
			BidFeedTS:     p.ts("bid_feed_ts"),
			OfferSourceTS: p.ts("offer_source_ts"),
			BidSourceTS:   p.ts("bid_source_ts"),
			TriggerFeedTS: p.ts("trigger_feed_ts"),
			Direction:     domain.Direction(p.str("direction")),
			Group:         p.str("group"),
		}
		if p.err != nil {
			return nil, fmt.Errorf("line %d: %w", line, p.err)
		}
		out = append(out, d)
	}
	return out, nil
}

// rowParser keeps the first conversion error of a row.
type rowParser struct {
	rec []string
	idx map[string]int
	err error
}

func (p *rowParser) str(col string) string { return strings.TrimSpace(p.rec[p.idx[col]]) }

func (p *rowParser) num(col string) float64 {
	v, err := strconv.ParseFloat(p.str(col), 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", col, err)
	}
	return v
}

func (p *rowParser) ts(col string) int64 {
	v, err := parseInt(p.str(col))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", col, err)
	}
	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
