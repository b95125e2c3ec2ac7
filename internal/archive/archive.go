// Package archive decompresses one monthly archive and parses its rows into
// ordered candle records.
//
// An archive is a zip holding a single CSV member. Rows map positionally to
// {open-time, open, high, low, close, volume, close-time, ...ignored
// trailing fields}; open-time is the record's timestamp in epoch
// milliseconds. Parsing is strict: the archive is assumed internally
// consistent per month, so a malformed row indicates transport corruption
// and fails the whole archive rather than being dropped.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnayoung/go-monthly-candles/internal/errors"
	"github.com/johnayoung/go-monthly-candles/internal/models"
	"github.com/johnayoung/go-monthly-candles/internal/vision"
)

// minFields covers open-time through close-time; trailing fields (quote
// volume, trade count, taker volumes) are ignored.
const minFields = 7

// Parse decompresses raw archive bytes and parses the embedded CSV into
// candles ordered by strictly increasing, period-aligned timestamps.
func Parse(raw []byte, tf vision.Timeframe) ([]models.Candle, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, malformed(fmt.Errorf("not a zip archive: %w", err))
	}
	if len(zr.File) == 0 {
		return nil, malformed(fmt.Errorf("archive has no members"))
	}

	// Archives carry exactly one CSV member; take the first like the
	// publisher's own tooling assumes.
	member, err := zr.File[0].Open()
	if err != nil {
		return nil, malformed(fmt.Errorf("failed to open archive member %q: %w", zr.File[0].Name, err))
	}
	defer member.Close()

	return parseRows(member, tf)
}

func parseRows(r io.Reader, tf vision.Timeframe) ([]models.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	var candles []models.Candle
	var prev time.Time
	row := 0

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformed(fmt.Errorf("row %d: %w", row+1, err))
		}
		row++

		// Newer archives carry a header line naming the kline columns.
		// Only that exact shape is skipped; any other non-numeric first
		// row is corruption, not a header.
		if row == 1 && isHeaderRow(record) {
			continue
		}

		if len(record) < minFields {
			return nil, malformed(fmt.Errorf("row %d: expected at least %d fields, got %d", row, minFields, len(record)))
		}

		openTime, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return nil, malformed(fmt.Errorf("row %d: invalid open time %q: %w", row, record[0], err))
		}
		ts := time.UnixMilli(openTime).UTC()

		if !tf.IsAligned(ts) {
			return nil, malformed(fmt.Errorf("row %d: timestamp %s is not aligned to timeframe %s", row, ts.Format(time.RFC3339), tf))
		}
		if !prev.IsZero() && !ts.After(prev) {
			return nil, malformed(fmt.Errorf("row %d: timestamp %s does not increase past %s",
				row, ts.Format(time.RFC3339), prev.Format(time.RFC3339)))
		}

		candle := models.Candle{Timestamp: ts}
		for i, field := range []struct {
			name string
			dst  *decimal.Decimal
		}{
			{"open", &candle.Open},
			{"high", &candle.High},
			{"low", &candle.Low},
			{"close", &candle.Close},
			{"volume", &candle.Volume},
		} {
			v, err := decimal.NewFromString(record[i+1])
			if err != nil {
				return nil, malformed(fmt.Errorf("row %d: invalid %s %q: %w", row, field.name, record[i+1], err))
			}
			*field.dst = v
		}

		if _, err := strconv.ParseInt(record[6], 10, 64); err != nil {
			return nil, malformed(fmt.Errorf("row %d: invalid close time %q: %w", row, record[6], err))
		}

		if err := candle.Validate(); err != nil {
			return nil, malformed(fmt.Errorf("row %d: %w", row, err))
		}

		prev = ts
		candles = append(candles, candle)
	}

	return candles, nil
}

// isHeaderRow reports whether record is the kline column header line. The
// published header starts with "open_time" and carries the full column set.
func isHeaderRow(record []string) bool {
	return len(record) >= minFields && record[0] == "open_time"
}

func malformed(err error) error {
	return errors.New(errors.KindMalformedArchive, "parse", err)
}
