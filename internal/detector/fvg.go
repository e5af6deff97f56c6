package detector

import (
	"liquidity-systemv1/internal/model"
	"liquidity-systemv1/internal/ringbuf"
)

// FVGConfig holds the fair-value-gap thresholds.
type FVGConfig struct {
	MinGapATR float64 // minimum gap size in ATR units
	MinGapPct float64 // minimum gap size as a fraction of B1 close
	MinRelVol float64 // minimum B2 volume vs volume SMA; 0 disables
}

// FVG detects three-bar fair value gaps on closed higher-timeframe bars.
//
// Bullish: B3.low > B1.high with B2 closing up; band [B1.high, B3.low].
// Bearish: B3.high < B1.low with B2 closing down; band [B3.high, B1.low].
// A gap qualifies when either the ATR-scaled size or the percentage size
// clears its threshold (OR logic).
type FVG struct {
	tf  model.Timeframe
	cfg FVGConfig
	win *ringbuf.Ring[model.Bar]
}

// NewFVG creates an FVG detector for one timeframe.
func NewFVG(tf model.Timeframe, cfg FVGConfig) *FVG {
	return &FVG{tf: tf, cfg: cfg, win: ringbuf.New[model.Bar](3)}
}

// Update slides the three-bar window and returns any qualifying gap events.
// atrReady gates detection until the HTF ATR has warmed up.
func (f *FVG) Update(bar model.Bar, atr float64, atrReady bool, volSMA float64) []*model.PoolCandidateEvent {
	f.win.Push(bar)
	if f.win.Len() < 3 {
		return nil
	}
	if !atrReady || atr <= 0 {
		return nil
	}

	n := f.win.Len()
	b1, b2, b3 := f.win.At(n-3), f.win.At(n-2), f.win.At(n-1)

	// Volume filter on the displacement bar.
	if f.cfg.MinRelVol > 0 && volSMA > 0 && b2.Volume < f.cfg.MinRelVol*volSMA {
		return nil
	}

	var events []*model.PoolCandidateEvent

	if b3.Low > b1.High && b2.Close > b2.Open {
		if ev := f.qualify(model.SideBullish, b1.High, b3.Low, b1.Close, atr, b3); ev != nil {
			events = append(events, ev)
		}
	}
	if b3.High < b1.Low && b2.Close < b2.Open {
		if ev := f.qualify(model.SideBearish, b3.High, b1.Low, b1.Close, atr, b3); ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

func (f *FVG) qualify(side model.Side, bottom, top, refPrice, atr float64, b3 model.Bar) *model.PoolCandidateEvent {
	gap := top - bottom
	gapATR := gap / atr
	gapPct := 0.0
	if refPrice > 0 {
		gapPct = gap / refPrice
	}

	if gapATR < f.cfg.MinGapATR && gapPct < f.cfg.MinGapPct {
		return nil
	}

	return &model.PoolCandidateEvent{
		TS:       b3.TS,
		TF:       f.tf,
		Kind:     "fvg",
		Side:     side,
		Top:      top,
		Bottom:   bottom,
		Strength: normalizeStrength(gapATR, gapPct),
	}
}

// normalizeStrength maps the dual gap metrics onto [0, 1], taking whichever
// scaled metric is stronger.
func normalizeStrength(gapATR, gapPct float64) float64 {
	s := gapATR / 2.0
	if p := gapPct * 10.0; p > s {
		s = p
	}
	if s > 1.0 {
		return 1.0
	}
	return s
}
