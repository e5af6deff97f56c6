// Package indicator provides the incremental indicators driven by the
// pipeline: fast/slow EMA, ATR, volume SMA and the regime classifier.
// All indicators advance by exactly one bar per Update and never look ahead.
package indicator

import "liquidity-systemv1/internal/model"

// PackConfig holds the indicator periods and thresholds.
type PackConfig struct {
	EMAFastPeriod     int
	EMASlowPeriod     int
	ATRPeriod         int
	VolumeSMAPeriod   int
	RegimeSensitivity float64
	ATRFloor          float64
}

// DefaultPackConfig returns the standard 21/50 EMA, 14 ATR, 20 volume setup.
func DefaultPackConfig() PackConfig {
	return PackConfig{
		EMAFastPeriod:     21,
		EMASlowPeriod:     50,
		ATRPeriod:         14,
		VolumeSMAPeriod:   20,
		RegimeSensitivity: 0.001,
		ATRFloor:          1e-5,
	}
}

// Pack coordinates the indicator suite for one symbol. Update advances every
// indicator by one bar and returns the post-update snapshot, so decisions on
// a bar always see indicator state that includes that bar and nothing later.
type Pack struct {
	cfg       PackConfig
	emaFast   *EMA
	emaSlow   *EMA
	atr       *ATR
	volumeSMA *VolumeSMA
}

// NewPack creates an indicator pack from the given configuration.
func NewPack(cfg PackConfig) *Pack {
	return &Pack{
		cfg:       cfg,
		emaFast:   NewEMA(cfg.EMAFastPeriod),
		emaSlow:   NewEMA(cfg.EMASlowPeriod),
		atr:       NewATR(cfg.ATRPeriod, cfg.ATRFloor),
		volumeSMA: NewVolumeSMA(cfg.VolumeSMAPeriod),
	}
}

// Update advances all indicators with the bar and returns the snapshot.
// Ordering of the input stream is the driver's responsibility.
func (p *Pack) Update(bar model.Bar) model.IndicatorSnapshot {
	p.emaFast.Update(bar)
	p.emaSlow.Update(bar)
	p.atr.Update(bar)
	p.volumeSMA.Update(bar)

	return model.IndicatorSnapshot{
		TS:        bar.TS,
		EMAFast:   p.emaFast.Value(),
		EMASlow:   p.emaSlow.Value(),
		ATR:       p.atr.Value(),
		VolumeSMA: p.volumeSMA.Value(),
		Regime: ClassifyRegime(p.emaFast.Value(), p.emaSlow.Value(),
			bar.Close, p.cfg.RegimeSensitivity),
		WarmedUp: p.emaSlow.Ready() && p.atr.Ready() && p.volumeSMA.Ready(),
	}
}

// Reset clears all indicator state for a fresh stream.
func (p *Pack) Reset() {
	p.emaFast.Reset()
	p.emaSlow.Reset()
	p.atr.Reset()
	p.volumeSMA.Reset()
}
