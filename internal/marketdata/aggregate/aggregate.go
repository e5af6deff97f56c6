// Package aggregate provides an incremental multi-timeframe resampler.
// It consumes base-timeframe bars and maintains one forming accumulator per
// target timeframe, updated in O(1) per bar per TF. When a bucket closes
// (a bar arrives in a new bucket), the previous bar is finalized and emitted.
// Incomplete buckets are never emitted, so downstream stages cannot look
// ahead into a bucket that is still forming.
package aggregate

import (
	"time"

	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/model"
)

// Policy selects how ordering violations are handled.
type Policy string

const (
	// PolicyDrop silently ignores the offending bar (counted via hook).
	PolicyDrop Policy = "drop"
	// PolicyRaise fails the stream with a typed error.
	PolicyRaise Policy = "raise"
)

// Config holds the aggregation settings for one symbol.
type Config struct {
	SourceTF         model.Timeframe
	Targets          []model.Timeframe
	OutOfOrderPolicy Policy
	MaxClockSkew     time.Duration // 0 disables the future-bar check
	StrictOrdering   bool
}

// Closed is a finalized higher-timeframe bar.
type Closed struct {
	TF  model.Timeframe
	Bar model.Bar
}

// tfState holds the forming accumulator for one target timeframe.
type tfState struct {
	bucket  int64
	bar     model.Bar
	count   int
	started bool
}

// Aggregator resamples base bars into multiple target timeframes.
// Single-goroutine by design; the driver calls Update once per bar.
type Aggregator struct {
	cfg    Config
	states []tfState
	lastTS time.Time
	seen   bool
	log    zerolog.Logger

	// OnOutOfOrder is called when a bar is dropped under PolicyDrop (optional).
	OnOutOfOrder func(bar model.Bar)
}

// New creates an aggregator for the configured target timeframes.
func New(cfg Config, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		cfg:    cfg,
		states: make([]tfState, len(cfg.Targets)),
		log:    log.With().Str("comp", "aggregate").Logger(),
	}
}

// Update folds one base bar into every target accumulator and returns the
// bars whose buckets this base bar closed. Most calls return nothing.
func (a *Aggregator) Update(bar model.Bar) ([]Closed, error) {
	if a.cfg.StrictOrdering && a.seen {
		if bar.TS.Before(a.lastTS) {
			if a.cfg.OutOfOrderPolicy == PolicyRaise {
				return nil, &model.ClockSkewError{BarTS: bar.TS, LastTS: a.lastTS}
			}
			a.drop(bar, "behind stream clock")
			return nil, nil
		}
		if a.cfg.MaxClockSkew > 0 && bar.TS.After(a.lastTS.Add(a.cfg.MaxClockSkew)) {
			if a.cfg.OutOfOrderPolicy == PolicyRaise {
				return nil, &model.FutureBarError{BarTS: bar.TS, Now: a.lastTS}
			}
			a.drop(bar, "beyond skew window")
			return nil, nil
		}
	}

	var closed []Closed
	for i, tf := range a.cfg.Targets {
		st := &a.states[i]
		bucket := tf.BucketID(bar.TS)

		if st.started && bucket < st.bucket {
			// Late bar for an already-advanced bucket.
			if a.cfg.OutOfOrderPolicy == PolicyRaise {
				return closed, &model.ClockSkewError{BarTS: bar.TS, LastTS: a.lastTS}
			}
			a.drop(bar, "bucket already closed")
			continue
		}

		if st.started && bucket > st.bucket {
			// New bucket — finalize the forming bar.
			closed = append(closed, Closed{TF: tf, Bar: st.bar})
			st.started = false
		}

		if !st.started {
			st.bucket = bucket
			st.started = true
			st.count = 1
			st.bar = model.Bar{
				Symbol: bar.Symbol,
				TF:     tf,
				TS:     tf.BucketStart(bar.TS),
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: bar.Volume,
			}
			continue
		}

		// Same bucket — merge OHLCV (O(1)).
		fb := &st.bar
		if bar.High > fb.High {
			fb.High = bar.High
		}
		if bar.Low < fb.Low {
			fb.Low = bar.Low
		}
		fb.Close = bar.Close
		fb.Volume += bar.Volume
		st.count++
	}

	a.lastTS = bar.TS
	a.seen = true
	return closed, nil
}

// Flush returns nothing: forming buckets are incomplete and emitting them
// would leak look-ahead into the event log.
func (a *Aggregator) Flush() []Closed { return nil }

// Targets returns the configured target timeframes.
func (a *Aggregator) Targets() []model.Timeframe { return a.cfg.Targets }

func (a *Aggregator) drop(bar model.Bar, reason string) {
	if a.OnOutOfOrder != nil {
		a.OnOutOfOrder(bar)
	}
	a.log.Debug().
		Time("bar_ts", bar.TS).
		Time("last_ts", a.lastTS).
		Str("reason", reason).
		Msg("bar dropped")
}
