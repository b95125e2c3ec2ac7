// Package fetcher retrieves raw monthly archive bytes from the archive host.
//
// The fetcher classifies each attempt into one of three outcomes: the
// archive exists and its bytes were read, the archive does not exist (the
// exchange has no data for that symbol and month), or the transport failed.
// Transport failures are retried with bounded exponential backoff before
// being surfaced as transient errors; a missing archive is never an error.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/johnayoung/go-monthly-candles/internal/config"
	"github.com/johnayoung/go-monthly-candles/internal/errors"
	"github.com/johnayoung/go-monthly-candles/internal/logger"
)

// Outcome is the result of one archive retrieval. Exactly one of the two
// shapes holds: Bytes carries the archive when NotFound is false, and is nil
// when NotFound is true.
type Outcome struct {
	Bytes    []byte
	NotFound bool
}

// ByteFetcher is the capability of fetching raw bytes at a location. The
// pipeline treats it as opaque; tests substitute deterministic fakes.
type ByteFetcher interface {
	// Fetch retrieves the resource at url. A missing resource is reported
	// through Outcome.NotFound, not through the error. A non-nil error is a
	// transient transport failure that survived internal retries, or a
	// context cancellation.
	Fetch(ctx context.Context, url string) (Outcome, error)
}

// HTTPFetcher is the production ByteFetcher: an explicit HTTP client with a
// tuned transport, a rate limiter toward the archive host, and bounded
// exponential-backoff retry for transient failures.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string

	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration

	log *slog.Logger
}

// NewHTTPFetcher creates a fetcher from the pipeline configuration.
func NewHTTPFetcher(cfg *config.Config, log *slog.Logger) *HTTPFetcher {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: cfg.Workers,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		userAgent:    cfg.UserAgent,
		maxRetries:   cfg.MaxRetries,
		initialDelay: cfg.InitialRetryDelay,
		maxDelay:     cfg.MaxRetryDelay,
		log:          log,
	}
}

// Fetch implements ByteFetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (Outcome, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return Outcome{}, fmt.Errorf("rate limit wait failed: %w", err)
	}

	log := logger.FromContext(ctx, f.log)

	var outcome Outcome
	attempts := 0

	// Each attempt returns a classified error; the taxonomy decides what
	// is worth retrying.
	operation := func() error {
		attempts++
		err := f.attempt(ctx, log, url, &outcome)
		if err != nil && !errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.initialDelay
	policy.MaxInterval = f.maxDelay
	policy.MaxElapsedTime = 0

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(f.maxRetries)), ctx))
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		if !errors.IsRetryable(err) {
			return Outcome{}, err
		}
		log.Warn("archive fetch exhausted retries", "url", url, "attempts", attempts, "error", err)
		return Outcome{}, errors.New(errors.KindTransient, "fetch",
			fmt.Errorf("after %d attempts: %w", attempts, err))
	}

	if outcome.NotFound {
		log.Debug("archive not published", "url", url)
	} else {
		log.Debug("archive fetched", "url", url, "bytes", len(outcome.Bytes), "attempts", attempts)
	}
	return outcome, nil
}

// attempt performs one request. Transport failures and unexpected statuses
// come back as transient classified errors; context errors come back bare so
// they are never retried.
func (f *HTTPFetcher) attempt(ctx context.Context, log *slog.Logger, url string, outcome *Outcome) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.New(errors.KindTransient, "fetch", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.New(errors.KindTransient, "fetch", fmt.Errorf("failed to read response body: %w", err))
		}
		*outcome = Outcome{Bytes: body}
		return nil

	case resp.StatusCode == http.StatusNotFound:
		*outcome = Outcome{NotFound: true}
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > 0 {
			log.Warn("rate limited by archive host, waiting", "url", url, "retry_after", retryAfter)
			select {
			case <-time.After(retryAfter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return errors.New(errors.KindTransient, "fetch", fmt.Errorf("rate limited: status %d", resp.StatusCode))

	default:
		// Everything non-2xx/non-404 is a transient archive-host
		// condition, including 5xx.
		return errors.New(errors.KindTransient, "fetch", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}
