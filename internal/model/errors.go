package model

import (
	"errors"
	"fmt"
	"time"
)

// The error kinds of the pipeline form a closed set. Components return typed
// errors that unwrap to these sentinels so callers can branch with errors.Is
// without knowing the concrete type.
var (
	ErrClockSkew        = errors.New("clock skew")
	ErrFutureBar        = errors.New("future bar")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrInvalidBar       = errors.New("invalid bar")
	ErrATRUnderflow     = errors.New("atr underflow")
)

// ClockSkewError reports a bar that regressed behind the stream clock.
type ClockSkewError struct {
	BarTS  time.Time
	LastTS time.Time
}

func (e *ClockSkewError) Error() string {
	return fmt.Sprintf("clock skew: bar ts %s behind last ts %s",
		e.BarTS.Format(time.RFC3339), e.LastTS.Format(time.RFC3339))
}

func (e *ClockSkewError) Unwrap() error { return ErrClockSkew }

// FutureBarError reports a bar timestamped beyond the allowed skew window.
type FutureBarError struct {
	BarTS time.Time
	Now   time.Time
}

func (e *FutureBarError) Error() string {
	return fmt.Sprintf("future bar: ts %s beyond now %s",
		e.BarTS.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

func (e *FutureBarError) Unwrap() error { return ErrFutureBar }

// CapacityError reports a refused create against a bounded collection.
type CapacityError struct {
	Scope string // e.g. "pools:H1", "hlz", "zones"
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity exceeded: %s (limit %d)", e.Scope, e.Limit)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// InvalidBarError reports a bar rejected by ingress validation.
type InvalidBarError struct {
	Reason string
}

func (e *InvalidBarError) Error() string { return "invalid bar: " + e.Reason }

func (e *InvalidBarError) Unwrap() error { return ErrInvalidBar }
