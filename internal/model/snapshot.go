package model

import "time"

// Regime is the coarse market-trend classification derived from EMA spread.
type Regime int8

const (
	RegimeNeutral Regime = 0
	RegimeBull    Regime = 1
	RegimeBear    Regime = -1
)

func (r Regime) String() string {
	switch r {
	case RegimeBull:
		return "bull"
	case RegimeBear:
		return "bear"
	default:
		return "neutral"
	}
}

// ParseRegime maps a config string onto a Regime value.
func ParseRegime(s string) (Regime, bool) {
	switch s {
	case "bull":
		return RegimeBull, true
	case "bear":
		return RegimeBear, true
	case "neutral":
		return RegimeNeutral, true
	}
	return RegimeNeutral, false
}

// IndicatorSnapshot captures all indicator values as of one bar, computed
// before any decision is made on that bar. Immutable by convention: the pack
// returns a fresh value per update.
type IndicatorSnapshot struct {
	TS        time.Time `json:"ts"`
	EMAFast   float64   `json:"ema_fast"`
	EMASlow   float64   `json:"ema_slow"`
	ATR       float64   `json:"atr"` // floored, never below the configured tick
	VolumeSMA float64   `json:"volume_sma"`
	Regime    Regime    `json:"regime"`
	WarmedUp  bool      `json:"warmed_up"`
}
