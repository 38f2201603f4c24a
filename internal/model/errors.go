package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a backtest failure. Values are stable; they are
// used as API error codes.
type Kind string

const (
	KindInvalidPortfolio      Kind = "INVALID_PORTFOLIO"
	KindUnknownSymbol         Kind = "UNKNOWN_SYMBOL"
	KindDataUnavailable       Kind = "DATA_UNAVAILABLE"
	KindNoDataInRange         Kind = "NO_DATA_IN_RANGE"
	KindInsufficientHistory   Kind = "INSUFFICIENT_HISTORY"
	KindEmptyIntersection     Kind = "EMPTY_INTERSECTION"
	KindPartialInstrumentDrop Kind = "PARTIAL_INSTRUMENT_DROP"
	KindBacktestTimeout       Kind = "BACKTEST_TIMEOUT"
	KindCanceled              Kind = "CANCELED"
	KindInternalConsistency   Kind = "INTERNAL_CONSISTENCY"
)

var (
	ErrInvalidPortfolio    = errors.New("invalid portfolio")
	ErrUnknownSymbol       = errors.New("unknown symbol")
	ErrDataUnavailable     = errors.New("data unavailable")
	ErrNoDataInRange       = errors.New("no data in range")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrEmptyIntersection   = errors.New("empty intersection")
	ErrBacktestTimeout     = errors.New("backtest timeout")
	ErrCanceled            = errors.New("backtest canceled")
	ErrInternalConsistency = errors.New("internal consistency")
)

// Sentinel returns the errors.Is target for the kind, or nil.
func (k Kind) Sentinel() error {
	switch k {
	case KindInvalidPortfolio:
		return ErrInvalidPortfolio
	case KindUnknownSymbol:
		return ErrUnknownSymbol
	case KindDataUnavailable:
		return ErrDataUnavailable
	case KindNoDataInRange:
		return ErrNoDataInRange
	case KindInsufficientHistory:
		return ErrInsufficientHistory
	case KindEmptyIntersection:
		return ErrEmptyIntersection
	case KindBacktestTimeout:
		return ErrBacktestTimeout
	case KindCanceled:
		return ErrCanceled
	case KindInternalConsistency:
		return ErrInternalConsistency
	}
	return nil
}

// SymbolError is a failure attributed to one instrument.
type SymbolError struct {
	Kind   Kind
	Symbol string
	Err    error
}

func (e *SymbolError) Error() string {
	reason := string(e.Kind)
	if s := e.Kind.Sentinel(); s != nil {
		reason = s.Error()
	}
	msg := fmt.Sprintf("%s: %s", e.Symbol, reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SymbolError) Unwrap() error { return e.Err }

func (e *SymbolError) Is(target error) bool {
	return target != nil && target == e.Kind.Sentinel()
}

// NewSymbolError builds a SymbolError.
func NewSymbolError(kind Kind, symbol string, cause error) *SymbolError {
	return &SymbolError{Kind: kind, Symbol: symbol, Err: cause}
}

// BacktestError is the fatal outcome of a run. Failures lists every
// symbol that contributed, so callers can name all of them at once.
type BacktestError struct {
	Kind     Kind
	Message  string
	Failures []*SymbolError
}

func (e *BacktestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Failures) > 0 {
		parts := make([]string, 0, len(e.Failures))
		for _, f := range e.Failures {
			parts = append(parts, f.Error())
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *BacktestError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures)+1)
	if s := e.Kind.Sentinel(); s != nil {
		out = append(out, s)
	}
	for _, f := range e.Failures {
		out = append(out, f)
	}
	return out
}

// Symbols returns the symbols named by the failures, in order.
func (e *BacktestError) Symbols() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Symbol)
	}
	return out
}

// NewBacktestError builds a composite error.
func NewBacktestError(kind Kind, message string, failures ...*SymbolError) *BacktestError {
	return &BacktestError{Kind: kind, Message: message, Failures: failures}
}

// NewInvalidPortfolio reports a portfolio rejected before any fetch.
func NewInvalidPortfolio(message string) *BacktestError {
	return NewBacktestError(KindInvalidPortfolio, "invalid portfolio: "+message)
}

// FromFailures folds per-symbol fetch failures into one error. Deadline
// and cancellation dominate; otherwise the first failure names the kind.
func FromFailures(failures []*SymbolError) *BacktestError {
	if len(failures) == 0 {
		return nil
	}
	kind := failures[0].Kind
	for _, f := range failures {
		if f.Kind == KindBacktestTimeout {
			kind = KindBacktestTimeout
			break
		}
		if f.Kind == KindCanceled {
			kind = KindCanceled
		}
	}
	msg := fmt.Sprintf("failed to load data for %d symbol(s)", len(failures))
	switch kind {
	case KindBacktestTimeout:
		msg = "backtest time budget exceeded"
	case KindCanceled:
		msg = "backtest canceled"
	}
	return NewBacktestError(kind, msg, failures...)
}

// KindOf extracts the failure kind from err. Context errors map to
// timeout or cancellation; anything else unclassified is "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var be *BacktestError
	if errors.As(err, &be) {
		return be.Kind
	}
	var se *SymbolError
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindBacktestTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return ""
}

// Warning is a non-fatal condition attached to a successful report.
type Warning struct {
	Kind    Kind   `json:"kind"`
	Symbol  string `json:"symbol,omitempty"`
	Message string `json:"message"`
}
