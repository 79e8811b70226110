package s3blob

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alanyoungcy/deltasync/internal/domain"
)

// undefinedRate marks rows the recorder wrote without a price.
const undefinedRate = "undefined"

// quoteColumns are the columns of the merged raw data file that are read.
var quoteColumns = []string{"broker_name", "type", "rate", "size", "bbp_timestamp", "level", "original_timestamp"}

// QuoteBucket is the storage holding one folder of raw quotes per trading
// date.
type QuoteBucket interface {
	domain.BlobReader
	Folders(ctx context.Context) ([]string, error)
}

// QuoteLoader reads the merged raw quote file of a trading date, stored at
// <DD-MM-YYYY>/<file>.
type QuoteLoader struct {
	bucket QuoteBucket
	file   string
}

// NewQuoteLoader creates a loader reading the named file in each date folder.
func NewQuoteLoader(bucket QuoteBucket, file string) *QuoteLoader {
	return &QuoteLoader{bucket: bucket, file: file}
}

// Path returns the object key holding the quotes of date.
func (l *QuoteLoader) Path(date domain.TradingDate) string {
	return date.String() + "/" + l.file
}

// Has reports whether quotes were recorded for date.
func (l *QuoteLoader) Has(ctx context.Context, date domain.TradingDate) (bool, error) {
	return l.bucket.Exists(ctx, l.Path(date))
}

// Dates returns the trading dates that have a quote folder. Folders that are
// not DD-MM-YYYY dates are skipped.
func (l *QuoteLoader) Dates(ctx context.Context) ([]domain.TradingDate, error) {
	folders, err := l.bucket.Folders(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.TradingDate
	for _, f := range folders {
		d, err := domain.ParseTradingDate(f)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// LoadQuotes downloads and parses the quotes of date.
func (l *QuoteLoader) LoadQuotes(ctx context.Context, date domain.TradingDate) ([]domain.Quote, error) {
	body, err := l.bucket.Get(ctx, l.Path(date))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	quotes, err := ParseQuotes(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: quotes %s: %w", l.Path(date), err)
	}
	return quotes, nil
}

// ParseQuotes reads merged raw data CSV. Columns are located by header name
// and extra columns are ignored. Rows whose rate is "undefined" are dropped;
// any other unparsable field fails with domain.ErrMalformedQuote.
func ParseQuotes(r io.Reader) ([]domain.Quote, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, col := range quoteColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", domain.ErrMalformedQuote, col)
		}
	}

	var quotes []domain.Quote
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(col string) string { return strings.TrimSpace(rec[idx[col]]) }

		if field("rate") == undefinedRate {
			continue
		}
		q, err := parseQuote(field)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func parseQuote(field func(string) string) (domain.Quote, error) {
	side, err := domain.ParseQuoteSide(field("type"))
	if err != nil {
		return domain.Quote{}, err
	}
	rate, err := strconv.ParseFloat(field("rate"), 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: rate %q", domain.ErrMalformedQuote, field("rate"))
	}
	size, err := strconv.ParseFloat(field("size"), 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: size %q", domain.ErrMalformedQuote, field("size"))
	}
	feed, err := parseInt(field("bbp_timestamp"))
	if err != nil {
		return domain.Quote{}, err
	}
	source, err := parseInt(field("original_timestamp"))
	if err != nil {
		return domain.Quote{}, err
	}
	level, err := parseInt(field("level"))
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		Broker:   field("broker_name"),
		Side:     side,
		Level:    int(level),
		Rate:     rate,
		Size:     size,
		FeedTS:   feed,
		SourceTS: source,
	}, nil
}

// parseInt accepts integers and integral floats such as "1663000000000.0",
// which pandas writes for columns that once held a NaN.
func parseInt(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("%w: integer %q", domain.ErrMalformedQuote, s)
	}
	return int64(f), nil
}
