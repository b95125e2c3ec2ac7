// Package models provides the data structures for monthly candle retrieval:
// OHLCV candle records, month keys, and the assembled candle table.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents OHLCV price and volume data for one timeframe period.
// The timestamp is the period's open time in UTC at millisecond precision.
// OHLC relationships (high >= max(open, close) and so on) are not enforced;
// archive content is trusted input.
type Candle struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Validate checks the structural invariants the pipeline relies on: a
// non-zero timestamp and a non-negative volume.
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("timestamp cannot be zero")
	}
	if c.Volume.IsNegative() {
		return fmt.Errorf("volume must be non-negative, got %s", c.Volume)
	}
	return nil
}

// IsBullish reports whether the close is above the open.
func (c *Candle) IsBullish() bool {
	return c.Close.GreaterThan(c.Open)
}

// Range returns high minus low, the total price movement of the period.
func (c *Candle) Range() decimal.Decimal {
	return c.High.Sub(c.Low)
}

// String implements fmt.Stringer.
func (c *Candle) String() string {
	return fmt.Sprintf("Candle{Timestamp: %s, O: %s, H: %s, L: %s, C: %s, V: %s}",
		c.Timestamp.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume)
}
