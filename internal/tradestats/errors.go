package tradestats

import "errors"

// Errors returned by the trade statistics core.
var (
	// ErrInvalidDefinition is returned for a trade definition outside the supported set.
	ErrInvalidDefinition = errors.New("invalid trade definition")

	// ErrInvalidScale is returned for a quantile scale outside the supported set.
	ErrInvalidScale = errors.New("invalid scale")

	// ErrInvalidProbability is returned for a quantile level outside [0, 1].
	ErrInvalidProbability = errors.New("invalid quantile probability")

	// ErrDivisionByZero reports a zero denominator (tick value, max notional
	// cost or max position). Affected metrics are NaN; other metrics stay valid.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrEmptyPartition reports a winners or losers partition with no usable
	// values. The summary carries NaN placeholders for it.
	ErrEmptyPartition = errors.New("empty partition")

	// ErrMissingSymbol is returned when a symbol has no rows in the position series.
	ErrMissingSymbol = errors.New("symbol not found in position series")

	// ErrMissingInstrument is returned when a symbol has no instrument metadata.
	ErrMissingInstrument = errors.New("instrument metadata not found")

	// ErrUnorderedSeries is returned when timestamps go backwards.
	ErrUnorderedSeries = errors.New("position series is not time ordered")
)
