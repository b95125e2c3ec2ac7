// Package errors defines the error taxonomy for the monthly candle pipeline.
// Every failure surfaced to a caller carries the pipeline stage that produced
// it and, where applicable, the month it concerns, so a 24-month request that
// dies on one archive says exactly which one.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error.
type Kind string

const (
	// KindInvalidRange indicates a month range whose start is after its end.
	KindInvalidRange Kind = "invalid_range"

	// KindUnsupportedTimeframe indicates a timeframe the archive host does
	// not publish directly. Timeframes are never synthesized by resampling.
	KindUnsupportedTimeframe Kind = "unsupported_timeframe"

	// KindInvalidSymbol indicates a symbol that does not match the
	// exchange naming convention.
	KindInvalidSymbol Kind = "invalid_symbol"

	// KindTransient indicates a transport-level failure that survived the
	// fetcher's bounded retries (timeout, reset, non-2xx/non-404 status).
	KindTransient Kind = "transient"

	// KindMalformedArchive indicates parse-level corruption inside one
	// monthly archive: wrong field count, non-numeric field, or a
	// non-increasing or misaligned timestamp.
	KindMalformedArchive Kind = "malformed_archive"

	// KindInconsistentOrdering indicates a strict-monotonicity violation at
	// the boundary between two consecutive months after assembly.
	KindInconsistentOrdering Kind = "inconsistent_ordering"
)

// Sentinel values for errors.Is matching by kind.
var (
	ErrInvalidRange         = &Error{Kind: KindInvalidRange}
	ErrUnsupportedTimeframe = &Error{Kind: KindUnsupportedTimeframe}
	ErrInvalidSymbol        = &Error{Kind: KindInvalidSymbol}
	ErrTransient            = &Error{Kind: KindTransient}
	ErrMalformedArchive     = &Error{Kind: KindMalformedArchive}
	ErrInconsistentOrdering = &Error{Kind: KindInconsistentOrdering}
)

// Error is a classified pipeline error with stage and month context.
type Error struct {
	Kind  Kind   // failure classification
	Stage string // pipeline stage: "resolve", "build_url", "fetch", "parse", "assemble"
	Month string // "YYYY-MM" designator, empty when the error is not month-scoped
	Err   error  // underlying cause, may be nil for sentinels
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: %s", e.Stage, msg)
	}
	if e.Month != "" {
		msg = fmt.Sprintf("%s (month %s)", msg, e.Month)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, ErrTransient) holds
// for any transient error regardless of stage or month. A target carrying a
// stage or month narrows the match to that stage or month.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Stage != "" && t.Stage != e.Stage {
		return false
	}
	if t.Month != "" && t.Month != e.Month {
		return false
	}
	return true
}

// New creates a classified error for the given stage.
func New(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// NewMonth creates a classified error scoped to one month.
func NewMonth(kind Kind, stage, month string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Month: month, Err: err}
}

// WithMonth attaches a month designator to err, preserving its kind and
// stage when it is already classified. The only unclassified failures the
// pipeline produces are transport ones, so anything else becomes transient.
func WithMonth(err error, month string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Month == month {
			return err
		}
		return &Error{Kind: e.Kind, Stage: e.Stage, Month: month, Err: err}
	}
	return &Error{Kind: KindTransient, Month: month, Err: err}
}

// KindOf returns the classification of err, or the empty Kind for
// unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is worth retrying. Only transient
// transport failures qualify; malformed data and caller mistakes never do.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
