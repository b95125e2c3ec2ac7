package models

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CandleTable is the final output of one retrieval: the requested symbol and
// timeframe plus every candle the source had for the requested range, in
// strictly increasing timestamp order. It is created once per request and
// never mutated afterwards.
type CandleTable struct {
	Symbol    string   `json:"symbol"`
	Timeframe string   `json:"timeframe"`
	Candles   []Candle `json:"candles"`
}

// Len returns the number of rows in the table.
func (t *CandleTable) Len() int {
	return len(t.Candles)
}

// Empty reports whether the table has no rows, which is the legitimate
// result of a range entirely outside the symbol's trading history.
func (t *CandleTable) Empty() bool {
	return len(t.Candles) == 0
}

// First returns the earliest candle, or nil for an empty table.
func (t *CandleTable) First() *Candle {
	if len(t.Candles) == 0 {
		return nil
	}
	return &t.Candles[0]
}

// Last returns the latest candle, or nil for an empty table.
func (t *CandleTable) Last() *Candle {
	if len(t.Candles) == 0 {
		return nil
	}
	return &t.Candles[len(t.Candles)-1]
}

// WriteCSV emits the table as CSV with a header row and the column order
// {symbol, timestamp, open, high, low, close, volume}. Timestamps are
// written as epoch milliseconds, matching the source archives.
func (t *CandleTable) WriteCSV(w io.Writer) error {
	return t.writeCSV(w, true)
}

// AppendCSV emits the table's rows without a header, for concatenating
// several tables into one stream.
func (t *CandleTable) AppendCSV(w io.Writer) error {
	return t.writeCSV(w, false)
}

func (t *CandleTable) writeCSV(w io.Writer, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write([]string{"symbol", "timestamp", "open", "high", "low", "close", "volume"}); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
	}
	for i := range t.Candles {
		c := &t.Candles[i]
		row := []string{
			t.Symbol,
			strconv.FormatInt(c.Timestamp.UnixMilli(), 10),
			c.Open.String(),
			c.High.String(),
			c.Low.String(),
			c.Close.String(),
			c.Volume.String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
