package indicator

import "liquidity-systemv1/internal/model"

// ClassifyRegime derives the market regime from the EMA spread:
// bull when emaFast - emaSlow > +sensitivity*close, bear when below the
// mirrored threshold, neutral otherwise.
func ClassifyRegime(emaFast, emaSlow, close, sensitivity float64) model.Regime {
	spread := emaFast - emaSlow
	threshold := sensitivity * close
	switch {
	case spread > threshold:
		return model.RegimeBull
	case spread < -threshold:
		return model.RegimeBear
	default:
		return model.RegimeNeutral
	}
}
