package detector

import (
	"liquidity-systemv1/internal/model"
	"liquidity-systemv1/internal/ringbuf"
)

// PivotConfig holds the swing-point detection knobs.
type PivotConfig struct {
	Lookback int     // bars required on each side of the pivot
	MinSigma float64 // minimum ATR distance for confirmation
	BandATR  float64 // pool band width around the pivot, in ATR units
}

// Pivot detects confirmed swing highs and lows on closed HTF bars.
// A swing needs Lookback bars on both sides, so a pivot is only emitted
// Lookback bars after it printed — future confirmation, no repainting.
type Pivot struct {
	tf  model.Timeframe
	cfg PivotConfig
	win *ringbuf.Ring[model.Bar]
	w   []model.Bar // reusable confirmation window, oldest first
}

// NewPivot creates a pivot detector for one timeframe.
func NewPivot(tf model.Timeframe, cfg PivotConfig) *Pivot {
	need := 2*cfg.Lookback + 1
	return &Pivot{
		tf:  tf,
		cfg: cfg,
		win: ringbuf.New[model.Bar](need),
		w:   make([]model.Bar, 0, need),
	}
}

// Update slides the confirmation window and returns any confirmed pivots.
func (p *Pivot) Update(bar model.Bar, atr float64, atrReady bool) []*model.PoolCandidateEvent {
	p.win.Push(bar)
	need := 2*p.cfg.Lookback + 1
	n := p.win.Len()
	if n < need {
		return nil
	}
	if !atrReady || atr <= 0 {
		return nil
	}

	// Materialize the newest 2*Lookback+1 bars; the candidate pivot sits in
	// the middle with Lookback confirmed bars on each side.
	p.w = p.w[:0]
	for i := n - need; i < n; i++ {
		p.w = append(p.w, p.win.At(i))
	}
	center := p.w[p.cfg.Lookback]

	var events []*model.PoolCandidateEvent
	if p.isSwingHigh(center) {
		dist := p.atrDistanceHigh(center, atr)
		if dist >= p.cfg.MinSigma {
			events = append(events, p.event(center, model.SideBearish, center.High, dist, atr))
		}
	}
	if p.isSwingLow(center) {
		dist := p.atrDistanceLow(center, atr)
		if dist >= p.cfg.MinSigma {
			events = append(events, p.event(center, model.SideBullish, center.Low, dist, atr))
		}
	}
	return events
}

func (p *Pivot) isSwingHigh(center model.Bar) bool {
	for i, b := range p.w {
		if i == p.cfg.Lookback {
			continue
		}
		if b.High >= center.High {
			return false
		}
	}
	return true
}

func (p *Pivot) isSwingLow(center model.Bar) bool {
	for i, b := range p.w {
		if i == p.cfg.Lookback {
			continue
		}
		if b.Low <= center.Low {
			return false
		}
	}
	return true
}

// atrDistanceHigh measures how far the pivot high clears the highest
// surrounding high, in ATR units.
func (p *Pivot) atrDistanceHigh(center model.Bar, atr float64) float64 {
	best := 0.0
	first := true
	for i, b := range p.w {
		if i == p.cfg.Lookback {
			continue
		}
		if first || b.High > best {
			best = b.High
			first = false
		}
	}
	return (center.High - best) / atr
}

// atrDistanceLow measures how far the pivot low undercuts the lowest
// surrounding low, in ATR units.
func (p *Pivot) atrDistanceLow(center model.Bar, atr float64) float64 {
	best := 0.0
	first := true
	for i, b := range p.w {
		if i == p.cfg.Lookback {
			continue
		}
		if first || b.Low < best {
			best = b.Low
			first = false
		}
	}
	return (best - center.Low) / atr
}

func (p *Pivot) event(center model.Bar, side model.Side, price, dist, atr float64) *model.PoolCandidateEvent {
	// Pivots are levels, not ranges; the pool gets a narrow band around the
	// pivot price so the zone machinery treats both detector kinds uniformly.
	half := p.cfg.BandATR * atr / 2
	return &model.PoolCandidateEvent{
		TS:       center.TS,
		TF:       p.tf,
		Kind:     "pivot",
		Side:     side,
		Top:      price + half,
		Bottom:   price - half,
		Strength: classifyStrength(dist),
	}
}

// classifyStrength maps the ATR distance onto [0, 1]:
// major (>= 1 ATR), significant (>= 0.5 ATR), regular otherwise.
func classifyStrength(dist float64) float64 {
	switch {
	case dist >= 1.0:
		if s := dist / 2.0; s < 1.0 {
			return s
		}
		return 1.0
	case dist >= 0.5:
		return dist
	default:
		return dist / 0.5
	}
}
