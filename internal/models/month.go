package models

import (
	"fmt"
	"time"

	"github.com/johnayoung/go-monthly-candles/internal/errors"
)

// EarliestYear is the first year for which the archive host publishes spot
// kline data.
const EarliestYear = 2017

// MonthKey identifies one monthly archive by calendar year and month.
// Keys are ordered by (year, month) and immutable once produced.
type MonthKey struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// NewMonthKey creates a validated MonthKey.
func NewMonthKey(year int, month time.Month) (MonthKey, error) {
	mk := MonthKey{Year: year, Month: month}
	if err := mk.Validate(); err != nil {
		return MonthKey{}, err
	}
	return mk, nil
}

// ParseMonth parses a "YYYY-MM" designator into a MonthKey.
func ParseMonth(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthKey{}, errors.New(errors.KindInvalidRange, "resolve",
			fmt.Errorf("invalid month designator %q: %w", s, err))
	}
	return NewMonthKey(t.Year(), t.Month())
}

// Validate checks the key against the archive host's published range.
func (mk MonthKey) Validate() error {
	if mk.Month < time.January || mk.Month > time.December {
		return errors.New(errors.KindInvalidRange, "resolve",
			fmt.Errorf("month must be 1-12, got %d", int(mk.Month)))
	}
	if mk.Year < EarliestYear {
		return errors.New(errors.KindInvalidRange, "resolve",
			fmt.Errorf("year %d predates the archive (earliest %d)", mk.Year, EarliestYear))
	}
	return nil
}

// String returns the "YYYY-MM" designator used in archive file names.
func (mk MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", mk.Year, int(mk.Month))
}

// Start returns the first instant of the month in UTC.
func (mk MonthKey) Start() time.Time {
	return time.Date(mk.Year, mk.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the following month in UTC (exclusive
// upper bound of the archive's coverage).
func (mk MonthKey) End() time.Time {
	return mk.Start().AddDate(0, 1, 0)
}

// Next returns the following calendar month.
func (mk MonthKey) Next() MonthKey {
	if mk.Month == time.December {
		return MonthKey{Year: mk.Year + 1, Month: time.January}
	}
	return MonthKey{Year: mk.Year, Month: mk.Month + 1}
}

// Before reports whether mk orders strictly before other.
func (mk MonthKey) Before(other MonthKey) bool {
	if mk.Year != other.Year {
		return mk.Year < other.Year
	}
	return mk.Month < other.Month
}

// Contains reports whether t falls inside the month.
func (mk MonthKey) Contains(t time.Time) bool {
	return !t.Before(mk.Start()) && t.Before(mk.End())
}

// MonthRange resolves an inclusive (start, end) pair into the ordered
// sequence of months between them, one per calendar month, no gaps and no
// duplicates. Fails when start orders after end.
func MonthRange(start, end MonthKey) ([]MonthKey, error) {
	if err := start.Validate(); err != nil {
		return nil, err
	}
	if err := end.Validate(); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, errors.New(errors.KindInvalidRange, "resolve",
			fmt.Errorf("start %s is after end %s", start, end))
	}

	count := (end.Year-start.Year)*12 + int(end.Month) - int(start.Month) + 1
	months := make([]MonthKey, 0, count)
	for mk := start; !end.Before(mk); mk = mk.Next() {
		months = append(months, mk)
	}
	return months, nil
}
