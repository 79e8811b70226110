package domain

import (
	"fmt"
	"time"
)

// tradingDateLayout is the DD-MM-YYYY form used for storage prefixes.
const tradingDateLayout = "02-01-2006"

// TradingDate is a UTC calendar day that a run processes.
type TradingDate struct {
	t time.Time
}

// NewTradingDate truncates t to its UTC calendar day.
func NewTradingDate(t time.Time) TradingDate {
	y, m, d := t.UTC().Date()
	return TradingDate{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseTradingDate parses a DD-MM-YYYY string.
func ParseTradingDate(s string) (TradingDate, error) {
	t, err := time.Parse(tradingDateLayout, s)
	if err != nil {
		return TradingDate{}, fmt.Errorf("parse trading date %q: %w", s, err)
	}
	return NewTradingDate(t), nil
}

// String returns the DD-MM-YYYY form.
func (d TradingDate) String() string { return d.t.Format(tradingDateLayout) }

// Time returns midnight UTC of the day.
func (d TradingDate) Time() time.Time { return d.t }

// IsZero reports whether the date was never set.
func (d TradingDate) IsZero() bool { return d.t.IsZero() }

// HourWindowMs returns the [from, to) millisecond bounds of the hours
// startHour..endHour of the day.
func (d TradingDate) HourWindowMs(startHour, endHour int) (from, to int64) {
	from = d.t.Add(time.Duration(startHour) * time.Hour).UnixMilli()
	to = d.t.Add(time.Duration(endHour) * time.Hour).UnixMilli()
	return from, to
}

// DateRange returns every day from..to inclusive. An inverted range is empty.
func DateRange(from, to TradingDate) []TradingDate {
	var out []TradingDate
	for t := from.t; !t.After(to.t); t = t.AddDate(0, 0, 1) {
		out = append(out, TradingDate{t: t})
	}
	return out
}
