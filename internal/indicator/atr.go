package indicator

import (
	"math"

	"liquidity-systemv1/internal/model"
)

// ATR calculates Average True Range as a simple moving average of true range
// over a rolling window. Uses a preallocated circular buffer for a
// zero-allocation hot path.
//
// The value is clamped to a floor so downstream divisions never see a
// near-zero ATR from runs of identical OHLC bars.
type ATR struct {
	period    int
	floor     float64
	buf       []float64 // preallocated circular buffer of true ranges
	idx       int
	count     int
	sum       float64
	prevClose float64
	current   float64
}

// NewATR creates an ATR indicator. floor is the minimal tick the value is
// clamped to (e.g. 1e-5).
func NewATR(period int, floor float64) *ATR {
	return &ATR{
		period: period,
		floor:  floor,
		buf:    make([]float64, period),
	}
}

func (a *ATR) Update(bar model.Bar) {
	var tr float64
	if a.count == 0 {
		// First bar — only the high-low range is available.
		tr = bar.High - bar.Low
	} else {
		tr = math.Max(bar.High-bar.Low,
			math.Max(math.Abs(bar.High-a.prevClose), math.Abs(bar.Low-a.prevClose)))
	}
	a.prevClose = bar.Close

	if a.count >= a.period {
		a.sum -= a.buf[a.idx]
	}
	a.buf[a.idx] = tr
	a.sum += tr
	a.idx = (a.idx + 1) % a.period
	a.count++

	if a.count >= a.period {
		a.current = math.Max(a.sum/float64(a.period), a.floor)
	}
}

// Value returns the floored ATR, or 0 before the window has filled.
func (a *ATR) Value() float64 { return a.current }
func (a *ATR) Ready() bool    { return a.count >= a.period }

// Reset clears the ATR state for reuse.
func (a *ATR) Reset() {
	a.idx = 0
	a.count = 0
	a.sum = 0
	a.current = 0
	a.prevClose = 0
	for i := range a.buf {
		a.buf[i] = 0
	}
}
