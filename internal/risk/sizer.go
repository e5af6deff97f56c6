// Package risk converts signals into sized order intents. Sizing is pure:
// given the same signal, equity and snapshot it always produces the same
// intent, and refusals surface as Rejected events rather than errors.
package risk

import (
	"math"

	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/model"
)

// Rejection reasons emitted on the order-intent sink.
const (
	ReasonInsufficientEquity = "insufficient_equity"
	ReasonZeroATR            = "zero_atr"
	ReasonSizeBelowMin       = "size_below_min"
)

// Config holds the sizing parameters.
type Config struct {
	RiskPerTrade     float64 // fraction of equity risked per trade
	SLATRMultiple    float64 // minimum stop distance in ATR units
	TPRR             float64 // take-profit reward:risk ratio
	MinPosition      float64 // smallest size worth submitting
	MaxPositionPct   float64 // cap on notional as a fraction of equity
	EntrySlippagePct float64 // worsens the entry before sizing
	ExitSlippagePct  float64 // consumed by order simulation, not applied here
	MinEquity        float64
}

// DefaultConfig returns conservative sizing defaults.
func DefaultConfig() Config {
	return Config{
		RiskPerTrade:   0.01,
		SLATRMultiple:  1.5,
		TPRR:           2.0,
		MinPosition:    0.0001,
		MaxPositionPct: 0.25,
		MinEquity:      100,
	}
}

// Sizer sizes signals against account equity.
type Sizer struct {
	cfg Config
	log zerolog.Logger
}

// New creates a sizer.
func New(cfg Config, log zerolog.Logger) *Sizer {
	return &Sizer{cfg: cfg, log: log.With().Str("comp", "risk").Logger()}
}

// Size produces an OrderIntent for the signal, or a RejectedIntent when the
// trade cannot be sized within limits. Exactly one of the results is non-nil.
func (s *Sizer) Size(sig *model.Signal, equity float64, snap model.IndicatorSnapshot) (*model.OrderIntent, *model.RejectedIntent) {
	if equity < s.cfg.MinEquity {
		return nil, s.reject(sig, ReasonInsufficientEquity)
	}
	if snap.ATR <= 0 {
		// The indicator floor makes this unreachable on a warmed pipeline.
		return nil, s.reject(sig, ReasonZeroATR)
	}

	entry := sig.EntryHint
	if s.cfg.EntrySlippagePct > 0 {
		if sig.Direction == model.Long {
			entry *= 1 + s.cfg.EntrySlippagePct
		} else {
			entry *= 1 - s.cfg.EntrySlippagePct
		}
	}

	// Stop distance: hinted stop or the ATR multiple, whichever is wider.
	dist := math.Abs(entry - sig.StopHint)
	if atrDist := s.cfg.SLATRMultiple * snap.ATR; atrDist > dist {
		dist = atrDist
	}

	riskBudget := s.cfg.RiskPerTrade * equity
	size := riskBudget / dist
	if maxSize := s.cfg.MaxPositionPct * equity / entry; maxSize < size {
		size = maxSize
	}
	if size < s.cfg.MinPosition {
		return nil, s.reject(sig, ReasonSizeBelowMin)
	}

	var stop, takeProfit float64
	if sig.Direction == model.Long {
		stop = entry - dist
		takeProfit = entry + s.cfg.TPRR*dist
	} else {
		stop = entry + dist
		takeProfit = entry - s.cfg.TPRR*dist
	}

	return &model.OrderIntent{
		SignalID:   sig.ID,
		Direction:  sig.Direction,
		Size:       size,
		EntryPrice: entry,
		StopPrice:  stop,
		TakeProfit: takeProfit,
		RiskAmount: size * dist,
		TS:         sig.IssuedAt,
	}, nil
}

func (s *Sizer) reject(sig *model.Signal, reason string) *model.RejectedIntent {
	s.log.Debug().Str("signal", sig.ID).Str("reason", reason).Msg("signal rejected")
	return &model.RejectedIntent{SignalID: sig.ID, Reason: reason, TS: sig.IssuedAt}
}
