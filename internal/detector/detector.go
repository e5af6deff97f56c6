// Package detector runs the higher-timeframe pattern detectors (FVG, pivot)
// over closed HTF bars. Each timeframe owns an independent detector set with
// its own HTF-resolution ATR and volume baseline; detectors never see forming
// buckets and never mutate past events.
package detector

import (
	"time"

	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/indicator"
	"liquidity-systemv1/internal/marketdata/aggregate"
	"liquidity-systemv1/internal/model"
)

// Config holds the detector settings shared by every timeframe.
type Config struct {
	FVG              FVGConfig
	Pivot            PivotConfig
	OutOfOrderPolicy aggregate.Policy
	ATRPeriod        int // HTF ATR warmup window
	VolumeSMAPeriod  int // HTF volume baseline window
	ATRFloor         float64
}

// DefaultConfig returns the standard detector thresholds.
func DefaultConfig() Config {
	return Config{
		FVG:              FVGConfig{MinGapATR: 0.3, MinGapPct: 0.05, MinRelVol: 1.2},
		Pivot:            PivotConfig{Lookback: 5, MinSigma: 0.5, BandATR: 0.1},
		OutOfOrderPolicy: aggregate.PolicyDrop,
		ATRPeriod:        14,
		VolumeSMAPeriod:  20,
		ATRFloor:         1e-5,
	}
}

// Set bundles the detectors and HTF indicators for one timeframe.
type Set struct {
	tf     model.Timeframe
	cfg    Config
	atr    *indicator.ATR
	volSMA *indicator.VolumeSMA
	fvg    *FVG
	pivot  *Pivot
	lastTS time.Time
	seen   bool
	log    zerolog.Logger

	// OnOutOfOrder is called when a bar is dropped under PolicyDrop (optional).
	OnOutOfOrder func(bar model.Bar)
}

// NewSet creates the detector set for one timeframe.
func NewSet(tf model.Timeframe, cfg Config, log zerolog.Logger) *Set {
	return &Set{
		tf:     tf,
		cfg:    cfg,
		atr:    indicator.NewATR(cfg.ATRPeriod, cfg.ATRFloor),
		volSMA: indicator.NewVolumeSMA(cfg.VolumeSMAPeriod),
		fvg:    NewFVG(tf, cfg.FVG),
		pivot:  NewPivot(tf, cfg.Pivot),
		log:    log.With().Str("comp", "detector").Str("tf", tf.Name()).Logger(),
	}
}

// TF returns the timeframe this set watches.
func (s *Set) TF() model.Timeframe { return s.tf }

// Update feeds one closed HTF bar through both detectors and returns the
// emitted pool candidates, FVG hits first.
func (s *Set) Update(bar model.Bar) ([]*model.PoolCandidateEvent, error) {
	if s.seen && bar.TS.Before(s.lastTS) {
		if s.cfg.OutOfOrderPolicy == aggregate.PolicyRaise {
			return nil, &model.ClockSkewError{BarTS: bar.TS, LastTS: s.lastTS}
		}
		if s.OnOutOfOrder != nil {
			s.OnOutOfOrder(bar)
		}
		s.log.Debug().Time("bar_ts", bar.TS).Msg("out-of-order HTF bar dropped")
		return nil, nil
	}
	s.lastTS = bar.TS
	s.seen = true

	s.atr.Update(bar)
	s.volSMA.Update(bar)

	events := s.fvg.Update(bar, s.atr.Value(), s.atr.Ready(), s.volSMA.Value())
	events = append(events, s.pivot.Update(bar, s.atr.Value(), s.atr.Ready())...)
	return events, nil
}
