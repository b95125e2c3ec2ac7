// Package collector orchestrates the monthly candle pipeline and is the
// public entry point of the module: one retrieval call resolves a (symbol,
// timeframe, start, end) request into monthly archive fetches, runs them
// concurrently, and assembles the results into a single validated table.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/johnayoung/go-monthly-candles/internal/archive"
	"github.com/johnayoung/go-monthly-candles/internal/config"
	"github.com/johnayoung/go-monthly-candles/internal/errors"
	"github.com/johnayoung/go-monthly-candles/internal/fetcher"
	"github.com/johnayoung/go-monthly-candles/internal/logger"
	"github.com/johnayoung/go-monthly-candles/internal/models"
	"github.com/johnayoung/go-monthly-candles/internal/vision"
)

// Request specifies one retrieval: which symbol and timeframe to fetch and
// the inclusive month range to cover.
type Request struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Start     models.MonthKey `json:"start"`
	End       models.MonthKey `json:"end"`
}

// Collector retrieves and assembles monthly candle archives. It holds no
// state across requests; every call owns its inputs for the duration of the
// call only.
type Collector struct {
	fetcher fetcher.ByteFetcher
	urls    *vision.URLBuilder
	workers int
	log     *slog.Logger
}

// New creates a Collector using the given byte-fetch capability. The
// fetcher is an explicit dependency so tests can substitute a deterministic
// one.
func New(f fetcher.ByteFetcher, cfg *config.Config, log *slog.Logger) (*Collector, error) {
	if f == nil {
		return nil, fmt.Errorf("byte fetcher is required")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		fetcher: f,
		urls:    vision.NewURLBuilder(cfg.BaseURL),
		workers: cfg.Workers,
		log:     log.With("component", "collector"),
	}, nil
}

// monthResult is the per-month slot written exactly once by its owning
// worker, keeping assembly order independent of completion order.
type monthResult struct {
	candles  []models.Candle
	notFound bool
}

// Fetch runs one retrieval and returns the assembled table.
//
// Months for which the host publishes no archive contribute zero rows and
// are not an error; any month that remains failed after retries, or whose
// archive is malformed, aborts the whole request. A partial table is never
// returned as success.
func (c *Collector) Fetch(ctx context.Context, req Request) (*models.CandleTable, error) {
	ctx = logger.WithTraceID(ctx)
	log := logger.FromContext(ctx, c.log)

	symbol, err := vision.ValidateSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	tf, err := vision.ParseTimeframe(req.Timeframe)
	if err != nil {
		return nil, err
	}
	months, err := models.MonthRange(req.Start, req.End)
	if err != nil {
		return nil, err
	}

	log.Info("starting retrieval",
		"symbol", symbol,
		"timeframe", tf,
		"start", req.Start.String(),
		"end", req.End.String(),
		"months", len(months))
	started := time.Now()

	slots := make([]monthResult, len(months))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, mk := range months {
		i, mk := i, mk
		g.Go(func() error {
			result, err := c.fetchMonth(gctx, symbol, tf, mk)
			if err != nil {
				return err
			}
			slots[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	table, err := assemble(symbol, tf, months, slots)
	if err != nil {
		return nil, err
	}

	log.Info("retrieval complete",
		"symbol", symbol,
		"rows", table.Len(),
		"duration", time.Since(started))
	return table, nil
}

// FetchAll runs the pipeline for several symbols over the same timeframe
// and range, returning one table per symbol in input order. The error
// policy is unchanged: any symbol's failure aborts the whole call.
func (c *Collector) FetchAll(ctx context.Context, symbols []string, timeframe string, start, end models.MonthKey) ([]*models.CandleTable, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required")
	}
	tables := make([]*models.CandleTable, 0, len(symbols))
	for _, symbol := range symbols {
		table, err := c.Fetch(ctx, Request{
			Symbol:    symbol,
			Timeframe: timeframe,
			Start:     start,
			End:       end,
		})
		if err != nil {
			return nil, fmt.Errorf("symbol %s: %w", symbol, err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// fetchMonth retrieves and parses one month's archive. Each call's result
// is self-contained; nothing is shared with sibling months.
func (c *Collector) fetchMonth(ctx context.Context, symbol string, tf vision.Timeframe, mk models.MonthKey) (monthResult, error) {
	log := logger.FromContext(ctx, c.log)
	url := c.urls.ArchiveURL(symbol, tf, mk)

	outcome, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return monthResult{}, errors.WithMonth(err, mk.String())
	}
	if outcome.NotFound {
		log.Debug("month not published, contributing zero rows", "symbol", symbol, "month", mk.String())
		return monthResult{notFound: true}, nil
	}

	candles, err := archive.Parse(outcome.Bytes, tf)
	if err != nil {
		return monthResult{}, errors.WithMonth(err, mk.String())
	}
	log.Debug("month parsed", "symbol", symbol, "month", mk.String(), "rows", len(candles))
	return monthResult{candles: candles}, nil
}

// assemble concatenates per-month results in MonthKey order and re-checks
// strict timestamp monotonicity across each month boundary. A violation
// means the source duplicated or overlapped rows at the seam.
func assemble(symbol string, tf vision.Timeframe, months []models.MonthKey, slots []monthResult) (*models.CandleTable, error) {
	total := 0
	for i := range slots {
		total += len(slots[i].candles)
	}

	candles := make([]models.Candle, 0, total)
	var prevLast time.Time
	prevMonth := ""

	for i := range slots {
		monthCandles := slots[i].candles
		if len(monthCandles) == 0 {
			continue
		}
		first := monthCandles[0].Timestamp
		if !prevLast.IsZero() && !first.After(prevLast) {
			return nil, errors.NewMonth(errors.KindInconsistentOrdering, "assemble", months[i].String(),
				fmt.Errorf("first timestamp %s does not increase past %s's last timestamp %s",
					first.Format(time.RFC3339), prevMonth, prevLast.Format(time.RFC3339)))
		}
		candles = append(candles, monthCandles...)
		prevLast = monthCandles[len(monthCandles)-1].Timestamp
		prevMonth = months[i].String()
	}

	return &models.CandleTable{
		Symbol:    symbol,
		Timeframe: string(tf),
		Candles:   candles,
	}, nil
}
