// Package vision maps (symbol, timeframe, month) requests onto the Binance
// Vision public archive: canonical URL construction, the enumerated set of
// published timeframes, and symbol validation. Pure construction, no network
// access.
package vision

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/johnayoung/go-monthly-candles/internal/errors"
	"github.com/johnayoung/go-monthly-candles/internal/models"
)

// DefaultBaseURL is the public archive host for spot monthly klines.
const DefaultBaseURL = "https://data.binance.vision/data/spot/monthly/klines"

// Timeframe is one of the candle intervals the archive host publishes.
// Unsupported intervals fail closed; nothing is synthesized by resampling.
type Timeframe string

const (
	Timeframe1s  Timeframe = "1s"
	Timeframe1m  Timeframe = "1m"
	Timeframe3m  Timeframe = "3m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe2h  Timeframe = "2h"
	Timeframe4h  Timeframe = "4h"
	Timeframe6h  Timeframe = "6h"
	Timeframe8h  Timeframe = "8h"
	Timeframe12h Timeframe = "12h"
	Timeframe1d  Timeframe = "1d"
	Timeframe3d  Timeframe = "3d"
	Timeframe1w  Timeframe = "1w"
	Timeframe1mo Timeframe = "1mo"
)

// timeframeDurations holds the fixed period length of each published
// timeframe. 1mo is variable-length and deliberately absent.
var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1s:  time.Second,
	Timeframe1m:  time.Minute,
	Timeframe3m:  3 * time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe2h:  2 * time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe6h:  6 * time.Hour,
	Timeframe8h:  8 * time.Hour,
	Timeframe12h: 12 * time.Hour,
	Timeframe1d:  24 * time.Hour,
	Timeframe3d:  72 * time.Hour,
	Timeframe1w:  7 * 24 * time.Hour,
}

// Weekly candles open on Mondays; the epoch fell on a Thursday, so weekly
// boundaries sit at a fixed offset from epoch-aligned weeks.
const mondayEpochOffsetMillis = 4 * 24 * 60 * 60 * 1000

// symbolPattern matches the exchange's symbol naming convention, e.g.
// "BTCUSDT" or "1000SHIBUSDT".
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{1,20}$`)

// ParseTimeframe validates a timeframe designator against the published set.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(s))
	if tf == Timeframe1mo {
		return tf, nil
	}
	if _, ok := timeframeDurations[tf]; !ok {
		return "", errors.New(errors.KindUnsupportedTimeframe, "build_url",
			fmt.Errorf("timeframe %q is not published by the archive", s))
	}
	return tf, nil
}

// Duration returns the fixed period length of the timeframe. The boolean is
// false for 1mo, whose periods vary with the calendar.
func (tf Timeframe) Duration() (time.Duration, bool) {
	d, ok := timeframeDurations[tf]
	return d, ok
}

// IsAligned reports whether t sits on one of the timeframe's period
// boundaries. Weekly periods open on Monday 00:00 UTC; monthly periods on
// the first of the month; 3d periods on any UTC day boundary.
func (tf Timeframe) IsAligned(t time.Time) bool {
	switch tf {
	case Timeframe1mo:
		return t.Day() == 1 && isMidnightUTC(t)
	case Timeframe1w:
		ms := t.UnixMilli() - mondayEpochOffsetMillis
		return ms%timeframeDurations[tf].Milliseconds() == 0
	case Timeframe3d:
		// 3d open times sit on UTC day boundaries but the host does not
		// document an epoch-anchored 72-hour grid, so only day alignment
		// is required.
		return t.UnixMilli()%timeframeDurations[Timeframe1d].Milliseconds() == 0
	default:
		d, ok := timeframeDurations[tf]
		if !ok {
			return false
		}
		return t.UnixMilli()%d.Milliseconds() == 0
	}
}

func isMidnightUTC(t time.Time) bool {
	u := t.UTC()
	return u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0
}

// PeriodsInMonth returns the number of timeframe periods a full archive for
// the month contains, or false for the variable 1mo timeframe where the
// answer is always one period.
func (tf Timeframe) PeriodsInMonth(mk models.MonthKey) (int, bool) {
	if tf == Timeframe1mo {
		return 1, true
	}
	d, ok := timeframeDurations[tf]
	if !ok {
		return 0, false
	}
	span := mk.End().Sub(mk.Start())
	return int(span / d), true
}

// ValidateSymbol checks the symbol against the exchange naming convention,
// returning the canonical uppercase form.
func ValidateSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(s) {
		return "", errors.New(errors.KindInvalidSymbol, "build_url",
			fmt.Errorf("symbol %q does not match the exchange naming convention", symbol))
	}
	return s, nil
}

// URLBuilder constructs canonical archive locations for one base URL.
type URLBuilder struct {
	baseURL string
}

// NewURLBuilder creates a builder for the given base URL, falling back to
// the public archive host when empty.
func NewURLBuilder(baseURL string) *URLBuilder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &URLBuilder{baseURL: strings.TrimRight(baseURL, "/")}
}

// ArchiveURL returns the canonical location of the monthly archive for
// (symbol, timeframe, month):
//
//	{base}/{SYMBOL}/{tf}/{SYMBOL}-{tf}-{YYYY-MM}.zip
func (b *URLBuilder) ArchiveURL(symbol string, tf Timeframe, mk models.MonthKey) string {
	fileName := fmt.Sprintf("%s-%s-%s.zip", symbol, tf, mk)
	return fmt.Sprintf("%s/%s/%s/%s", b.baseURL, symbol, tf, fileName)
}
