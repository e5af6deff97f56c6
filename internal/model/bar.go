package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bar represents an immutable OHLCV bar for a single symbol.
// Prices are float64 end-to-end; all folding happens in a fixed order so a
// given input stream always produces bit-identical outputs.
type Bar struct {
	Symbol string    `json:"symbol"`
	TF     Timeframe `json:"tf"`
	TS     time.Time `json:"ts"` // bucket start time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate checks the bar invariants enforced at ingress. A failing bar is
// dropped by the source adapter and counted, never fed to the pipeline.
func (b *Bar) Validate() error {
	if b.TS.IsZero() {
		return &InvalidBarError{Reason: "zero timestamp"}
	}
	if b.Low > b.Open || b.Low > b.Close {
		return &InvalidBarError{Reason: fmt.Sprintf("low %g above open/close", b.Low)}
	}
	if b.High < b.Open || b.High < b.Close {
		return &InvalidBarError{Reason: fmt.Sprintf("high %g below open/close", b.High)}
	}
	if b.High < b.Low {
		return &InvalidBarError{Reason: "high below low"}
	}
	if b.Volume < 0 {
		return &InvalidBarError{Reason: "negative volume"}
	}
	return nil
}

// Range reports whether the bar's [low, high] range intersects [bottom, top].
func (b *Bar) Range(bottom, top float64) bool {
	return b.Low <= top && bottom <= b.High
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	buf, _ := json.Marshal(b)
	return buf
}
