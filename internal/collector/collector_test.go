package collector

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-monthly-candles/internal/config"
	errs "github.com/johnayoung/go-monthly-candles/internal/errors"
	"github.com/johnayoung/go-monthly-candles/internal/fetcher"
	"github.com/johnayoung/go-monthly-candles/internal/models"
	"github.com/johnayoung/go-monthly-candles/internal/vision"
)

// stubFetcher is a deterministic ByteFetcher keyed by URL. URLs with no
// entry report NotFound, matching months the host never published.
type stubFetcher struct {
	mu        sync.Mutex
	responses map[string]stubResponse
	calls     map[string]int
}

type stubResponse struct {
	outcome fetcher.Outcome
	err     error
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		responses: make(map[string]stubResponse),
		calls:     make(map[string]int),
	}
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (fetcher.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return fetcher.Outcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[url]++
	resp, ok := s.responses[url]
	if !ok {
		return fetcher.Outcome{NotFound: true}, nil
	}
	return resp.outcome, resp.err
}

func (s *stubFetcher) put(url string, body []byte) {
	s.responses[url] = stubResponse{outcome: fetcher.Outcome{Bytes: body}}
}

func (s *stubFetcher) fail(url string, err error) {
	s.responses[url] = stubResponse{err: err}
}

// zipCSV wraps CSV content into a single-member archive.
func zipCSV(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("data.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// hourlyArchive renders a full month of synthetic hourly rows.
func hourlyArchive(t *testing.T, mk models.MonthKey) []byte {
	t.Helper()
	var sb strings.Builder
	for ts := mk.Start(); ts.Before(mk.End()); ts = ts.Add(time.Hour) {
		writeHourlyRow(&sb, ts)
	}
	return zipCSV(t, sb.String())
}

func writeHourlyRow(sb *strings.Builder, ts time.Time) {
	fmt.Fprintf(sb, "%d,100.5,101.2,99.8,100.7,12.34,%d,1000.5,42,6.1,610.2,0\n",
		ts.UnixMilli(), ts.Add(time.Hour).UnixMilli()-1)
}

func archiveURL(symbol string, tf vision.Timeframe, mk models.MonthKey) string {
	return vision.NewURLBuilder(config.Default().BaseURL).ArchiveURL(symbol, tf, mk)
}

func newTestCollector(t *testing.T, f fetcher.ByteFetcher) *Collector {
	t.Helper()
	c, err := New(f, config.Default(), nil)
	require.NoError(t, err)
	return c
}

func monthKey(t *testing.T, s string) models.MonthKey {
	t.Helper()
	mk, err := models.ParseMonth(s)
	require.NoError(t, err)
	return mk
}

func TestFetchThreeMonthScenario(t *testing.T) {
	stub := newStubFetcher()
	for _, m := range []string{"2019-08", "2019-09", "2019-10"} {
		mk := monthKey(t, m)
		stub.put(archiveURL("BTCUSDT", vision.Timeframe1h, mk), hourlyArchive(t, mk))
	}

	c := newTestCollector(t, stub)
	table, err := c.Fetch(context.Background(), Request{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Start:     monthKey(t, "2019-08"),
		End:       monthKey(t, "2019-10"),
	})
	require.NoError(t, err)

	// 31 + 30 + 31 days of hourly periods.
	assert.Equal(t, 2208, table.Len())
	assert.Equal(t, "BTCUSDT", table.Symbol)
	assert.Equal(t, "1h", table.Timeframe)
	assert.True(t, table.First().Timestamp.Equal(time.Date(2019, 8, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, table.Last().Timestamp.Equal(time.Date(2019, 10, 31, 23, 0, 0, 0, time.UTC)))

	// Strictly increasing across the whole table.
	for i := 1; i < table.Len(); i++ {
		assert.True(t, table.Candles[i].Timestamp.After(table.Candles[i-1].Timestamp))
	}
}

func TestFetchIsIdempotent(t *testing.T) {
	stub := newStubFetcher()
	for _, m := range []string{"2019-08", "2019-09"} {
		mk := monthKey(t, m)
		stub.put(archiveURL("BTCUSDT", vision.Timeframe1h, mk), hourlyArchive(t, mk))
	}

	c := newTestCollector(t, stub)
	req := Request{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Start:     monthKey(t, "2019-08"),
		End:       monthKey(t, "2019-09"),
	}

	first, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFetchRangeBeforeListing(t *testing.T) {
	// No responses registered: every month reports NotFound.
	c := newTestCollector(t, newStubFetcher())
	table, err := c.Fetch(context.Background(), Request{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Start:     monthKey(t, "2017-01"),
		End:       monthKey(t, "2017-06"),
	})
	require.NoError(t, err)
	assert.True(t, table.Empty())
	assert.Equal(t, "BTCUSDT", table.Symbol)
}

func TestFetchMissingLeadingMonth(t *testing.T) {
	stub := newStubFetcher()
	sep := monthKey(t, "2019-09")
	stub.put(archiveURL("BTCUSDT", vision.Timeframe1h, sep), hourlyArchive(t, sep))

	c := newTestCollector(t, stub)
	table, err := c.Fetch(context.Background(), Request{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Start:     monthKey(t, "2019-08"),
		End:       monthKey(t, "2019-09"),
	})
	require.NoError(t, err)
	assert.Equal(t, 720, table.Len())
	assert.True(t, table.First().Timestamp.Equal(sep.Start()))
}

func TestFetchAbortsOnTransientMonth(t *testing.T) {
	stub := newStubFetcher()
	start := monthKey(t, "2018-01")
	end := monthKey(t, "2019-12")
	months, err := models.MonthRange(start, end)
	require.NoError(t, err)
	require.Len(t, months, 24)

	for _, mk := range months {
		stub.put(archiveURL("BTCUSDT", vision.Timeframe1h, mk), hourlyArchive(t, mk))
	}
	failing := monthKey(t, "2019-09")
	stub.fail(archiveURL("BTCUSDT", vision.Timeframe1h, failing),
		errs.New(errs.KindTransient, "fetch", fmt.Errorf("connection reset")))

	c := newTestCollector(t, stub)
	_, err = c.Fetch(context.Background(), Request{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Start:     start,
		End:       end,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTransient))
	assert.Contains(t, err.Error(), "2019-09")
}

func TestFetchAbortsOnMalformedMonth(t *testing.T) {
	stub := newStubFetcher()
	aug := monthKey(t, "2019-08")
	sep := monthKey(t, "2019-09")
	stub.put(archiveURL("BTCUSDT", vision.Timeframe1h, aug), hourlyArchive(t, aug))
	stub.put(archiveURL("BTCUSDT", vision.Timeframe1h, sep), zipCSV(t, "garbage,row\n"))

	c := newTestCollector(t, stub)
	_, err := c.Fetch(context.Background(), Request{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Start:     aug,
		End:       sep,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrMalformedArchive))
	assert.Contains(t, err.Error(), "2019-09")
}

func TestFetchDetectsBoundaryOverlap(t *testing.T) {
	stub := newStubFetcher()
	aug := monthKey(t, "2019-08")
	sep := monthKey(t, "2019-09")

	stub.put(archiveURL("BTCUSDT", vision.Timeframe1h, aug), hourlyArchive(t, aug))

	// September's archive illegally repeats August's final period.
	var sb strings.Builder
	writeHourlyRow(&sb, time.Date(2019, 8, 31, 23, 0, 0, 0, time.UTC))
	writeHourlyRow(&sb, time.Date(2019, 9, 1, 0, 0, 0, 0, time.UTC))
	stub.put(archiveURL("BTCUSDT", vision.Timeframe1h, sep), zipCSV(t, sb.String()))

	c := newTestCollector(t, stub)
	_, err := c.Fetch(context.Background(), Request{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Start:     aug,
		End:       sep,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInconsistentOrdering))
	assert.Contains(t, err.Error(), "2019-09")
}

func TestFetchValidation(t *testing.T) {
	c := newTestCollector(t, newStubFetcher())
	ctx := context.Background()

	t.Run("invalid_range", func(t *testing.T) {
		_, err := c.Fetch(ctx, Request{
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			Start:     monthKey(t, "2019-10"),
			End:       monthKey(t, "2019-08"),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrInvalidRange))
	})

	t.Run("unsupported_timeframe", func(t *testing.T) {
		_, err := c.Fetch(ctx, Request{
			Symbol:    "BTCUSDT",
			Timeframe: "2d",
			Start:     monthKey(t, "2019-08"),
			End:       monthKey(t, "2019-10"),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrUnsupportedTimeframe))
	})

	t.Run("invalid_symbol", func(t *testing.T) {
		_, err := c.Fetch(ctx, Request{
			Symbol:    "BTC-USD",
			Timeframe: "1h",
			Start:     monthKey(t, "2019-08"),
			End:       monthKey(t, "2019-10"),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrInvalidSymbol))
	})
}

func TestFetchCancellationPropagates(t *testing.T) {
	blocking := &blockingFetcher{started: make(chan struct{}, 1)}
	c := newTestCollector(t, blocking)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, Request{
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			Start:     monthKey(t, "2019-08"),
			End:       monthKey(t, "2019-10"),
		})
		done <- err
	}()

	<-blocking.started
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not observe cancellation")
	}
}

// blockingFetcher parks until its context is cancelled.
type blockingFetcher struct {
	started chan struct{}
}

func (b *blockingFetcher) Fetch(ctx context.Context, url string) (fetcher.Outcome, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return fetcher.Outcome{}, ctx.Err()
}

func TestFetchAll(t *testing.T) {
	stub := newStubFetcher()
	aug := monthKey(t, "2019-08")
	stub.put(archiveURL("BTCUSDT", vision.Timeframe1h, aug), hourlyArchive(t, aug))
	stub.put(archiveURL("ETHUSDT", vision.Timeframe1h, aug), hourlyArchive(t, aug))

	c := newTestCollector(t, stub)
	tables, err := c.FetchAll(context.Background(), []string{"BTCUSDT", "ETHUSDT"}, "1h", aug, aug)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "BTCUSDT", tables[0].Symbol)
	assert.Equal(t, "ETHUSDT", tables[1].Symbol)
	assert.Equal(t, 744, tables[0].Len())
	assert.Equal(t, 744, tables[1].Len())
}

func TestFetchAllAbortsOnAnySymbol(t *testing.T) {
	stub := newStubFetcher()
	aug := monthKey(t, "2019-08")
	stub.put(archiveURL("BTCUSDT", vision.Timeframe1h, aug), hourlyArchive(t, aug))
	stub.fail(archiveURL("ETHUSDT", vision.Timeframe1h, aug),
		errs.New(errs.KindTransient, "fetch", fmt.Errorf("timeout")))

	c := newTestCollector(t, stub)
	_, err := c.FetchAll(context.Background(), []string{"BTCUSDT", "ETHUSDT"}, "1h", aug, aug)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTransient))
	assert.Contains(t, err.Error(), "ETHUSDT")

	_, err = c.FetchAll(context.Background(), nil, "1h", aug, aug)
	require.Error(t, err)
}
