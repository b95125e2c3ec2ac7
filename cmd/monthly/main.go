// Monthly candle retrieval CLI.
// Downloads historical OHLCV candles for a symbol and month range from the
// public monthly archive and prints the assembled table as CSV on stdout.
//
// Usage:
//
//	monthly -symbol BTCUSDT -timeframe 1h -start 2019-08 -end 2019-10
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/johnayoung/go-monthly-candles/internal/collector"
	"github.com/johnayoung/go-monthly-candles/internal/config"
	"github.com/johnayoung/go-monthly-candles/internal/fetcher"
	"github.com/johnayoung/go-monthly-candles/internal/logger"
	"github.com/johnayoung/go-monthly-candles/internal/models"
)

// Exit codes following standard conventions.
const (
	ExitSuccess    = 0
	ExitUsageError = 1
	ExitDataError  = 2
	ExitInterrupt  = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		symbols   = flag.String("symbol", "", "trading symbol, comma-separated for several (e.g. BTCUSDT)")
		timeframe = flag.String("timeframe", "1h", "candle timeframe published by the archive (e.g. 1m, 1h, 1d)")
		start     = flag.String("start", "", "first month to fetch, inclusive (YYYY-MM)")
		end       = flag.String("end", "", "last month to fetch, inclusive (YYYY-MM; defaults to start)")
		workers   = flag.Int("workers", 0, "concurrent month fetches (0 uses the configured default)")
		logLevel  = flag.String("log-level", "", "log level: debug, info, warn, error")
	)
	flag.Parse()

	if *symbols == "" || *start == "" {
		fmt.Fprintln(os.Stderr, "usage: monthly -symbol SYMBOL -timeframe TF -start YYYY-MM [-end YYYY-MM]")
		flag.PrintDefaults()
		return ExitUsageError
	}
	if *end == "" {
		*end = *start
	}

	cfg := config.FromEnv()
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return ExitUsageError
	}

	logs, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		return ExitUsageError
	}
	defer logs.Close()
	log := logs.Logger()

	startKey, err := models.ParseMonth(*start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid start month: %v\n", err)
		return ExitUsageError
	}
	endKey, err := models.ParseMonth(*end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid end month: %v\n", err)
		return ExitUsageError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	col, err := collector.New(fetcher.NewHTTPFetcher(cfg, logs.Component("fetcher")), cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build collector: %v\n", err)
		return ExitUsageError
	}

	tables, err := col.FetchAll(ctx, strings.Split(*symbols, ","), *timeframe, startKey, endKey)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("retrieval interrupted")
			return ExitInterrupt
		}
		log.Error("retrieval failed", "error", err)
		return ExitDataError
	}

	for i, table := range tables {
		var werr error
		if i == 0 {
			werr = table.WriteCSV(os.Stdout)
		} else {
			werr = table.AppendCSV(os.Stdout)
		}
		if werr != nil {
			log.Error("failed to write output", "error", werr)
			return ExitDataError
		}
	}
	return ExitSuccess
}
