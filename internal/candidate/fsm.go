// Package candidate implements the per-zone-entry state machine that turns
// zone entries into trading signals: WAIT_EMA -> FILTERS -> READY, with hard
// expiry at every step. Filters are pure functions of (bar, snapshot,
// config); candidates are advanced once per base bar by the driver.
package candidate

import (
	"time"

	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/model"
	"liquidity-systemv1/internal/ringbuf"
)

// State is the FSM state of a candidate.
type State uint8

const (
	WaitEMA State = iota
	Filters
	Ready
	Expired
)

func (s State) String() string {
	switch s {
	case WaitEMA:
		return "wait_ema"
	case Filters:
		return "filters"
	case Ready:
		return "ready"
	default:
		return "expired"
	}
}

// Candidate is one zone-entry awaiting validation. READY and EXPIRED are
// terminal; the driver discards terminal candidates after processing.
type Candidate struct {
	ID         string
	ZoneID     string
	ZoneKind   model.ZoneKind
	Direction  model.Direction
	EntryPrice float64
	Strength   float64
	ZoneTop    float64
	ZoneBottom float64
	State      State
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastBarTS  time.Time
}

// Config holds the FSM filters. Each filter is individually toggleable.
type Config struct {
	Expiry          time.Duration
	EMAAlignment    bool
	EMATolerancePct float64
	VolumeMultiple  float64 // 0 disables the volume filter
	Sessions        SessionConfig
	RegimeLong      []model.Regime // empty means {bull, neutral}
	RegimeShort     []model.Regime // empty means {bear, neutral}
	MinEntrySpacing time.Duration
	SwingLookback   int
}

// DefaultConfig returns the standard filter chain.
func DefaultConfig() Config {
	return Config{
		Expiry:          2 * time.Hour,
		EMAAlignment:    true,
		VolumeMultiple:  1.2,
		MinEntrySpacing: 30 * time.Minute,
		SwingLookback:   10,
	}
}

// Result is the outcome of advancing a candidate by one bar.
type Result struct {
	Signal       *model.Signal
	Expired      bool
	FilterFailed string // first failing filter name, "" when none failed
}

// FSM advances candidates and enforces per-side entry spacing.
type FSM struct {
	cfg       Config
	lastReady map[model.Direction]time.Time
	log       zerolog.Logger
}

// NewFSM creates the candidate machine for one symbol.
func NewFSM(cfg Config, log zerolog.Logger) *FSM {
	return &FSM{
		cfg:       cfg,
		lastReady: make(map[model.Direction]time.Time),
		log:       log.With().Str("comp", "candidate").Logger(),
	}
}

// Spawn creates a candidate from a zone entry. Mixed-side zones default to
// long, matching the bullish bias of the strategy.
func (f *FSM) Spawn(ev *model.ZoneEnteredEvent) *Candidate {
	dir := model.Long
	if ev.Side == model.SideBearish {
		dir = model.Short
	}
	return &Candidate{
		ID:         model.CandidateID(ev.ZoneID, ev.EntryTS),
		ZoneID:     ev.ZoneID,
		ZoneKind:   ev.ZoneKind,
		Direction:  dir,
		EntryPrice: ev.EntryPrice,
		Strength:   ev.Strength,
		ZoneTop:    ev.Top,
		ZoneBottom: ev.Bottom,
		State:      WaitEMA,
		CreatedAt:  ev.EntryTS,
		ExpiresAt:  ev.EntryTS.Add(f.cfg.Expiry),
	}
}

// Process advances a candidate with one bar and its snapshot. The WAIT_EMA
// guard and the filter chain run on the same bar, so a clean entry can go
// WAIT_EMA -> FILTERS -> READY in a single call. recent supplies the swing
// lookback for the stop hint.
func (f *FSM) Process(c *Candidate, bar model.Bar, snap model.IndicatorSnapshot, recent *ringbuf.Ring[model.Bar]) Result {
	// Expiry is exact and checked first: a bar at or past the deadline can
	// never emit a signal.
	if !bar.TS.Before(c.ExpiresAt) {
		c.State = Expired
		c.LastBarTS = bar.TS
		return Result{Expired: true}
	}
	c.LastBarTS = bar.TS

	if c.State == WaitEMA {
		if !f.emaTrigger(c, bar, snap) {
			return Result{FilterFailed: "wait_ema"}
		}
		c.State = Filters
	}

	if c.State != Filters {
		return Result{}
	}

	if failed := f.runFilters(c, bar, snap); failed != "" {
		return Result{FilterFailed: failed}
	}

	c.State = Ready
	f.lastReady[c.Direction] = bar.TS
	return Result{Signal: f.signal(c, bar, recent)}
}

// emaTrigger gates WAIT_EMA: the close must sit on the entry side of the
// fast EMA.
func (f *FSM) emaTrigger(c *Candidate, bar model.Bar, snap model.IndicatorSnapshot) bool {
	if c.Direction == model.Long {
		return bar.Close > snap.EMAFast
	}
	return bar.Close < snap.EMAFast
}

// runFilters evaluates the chain in fixed order and names the first failure.
func (f *FSM) runFilters(c *Candidate, bar model.Bar, snap model.IndicatorSnapshot) string {
	if f.cfg.EMAAlignment && !f.emaAligned(c.Direction, snap) {
		return "ema_alignment"
	}
	if !f.volumeOK(bar, snap) {
		return "volume"
	}
	if !f.regimeOK(c.Direction, snap) {
		return "regime"
	}
	if !f.cfg.Sessions.Allows(bar.TS) {
		return "session"
	}
	if !f.spacingOK(c.Direction, bar.TS) {
		return "spacing"
	}
	return ""
}

func (f *FSM) emaAligned(dir model.Direction, snap model.IndicatorSnapshot) bool {
	tol := snap.EMASlow * f.cfg.EMATolerancePct
	if dir == model.Long {
		return snap.EMAFast > snap.EMASlow-tol
	}
	return snap.EMAFast < snap.EMASlow+tol
}

func (f *FSM) volumeOK(bar model.Bar, snap model.IndicatorSnapshot) bool {
	if f.cfg.VolumeMultiple <= 0 || snap.VolumeSMA <= 0 {
		return true
	}
	return bar.Volume >= f.cfg.VolumeMultiple*snap.VolumeSMA
}

func (f *FSM) regimeOK(dir model.Direction, snap model.IndicatorSnapshot) bool {
	allowed := f.cfg.RegimeLong
	if dir == model.Short {
		allowed = f.cfg.RegimeShort
	}
	if len(allowed) == 0 {
		if dir == model.Long {
			allowed = []model.Regime{model.RegimeBull, model.RegimeNeutral}
		} else {
			allowed = []model.Regime{model.RegimeBear, model.RegimeNeutral}
		}
	}
	for _, r := range allowed {
		if snap.Regime == r {
			return true
		}
	}
	return false
}

func (f *FSM) spacingOK(dir model.Direction, ts time.Time) bool {
	if f.cfg.MinEntrySpacing <= 0 {
		return true
	}
	last, ok := f.lastReady[dir]
	if !ok {
		return true
	}
	return ts.Sub(last) >= f.cfg.MinEntrySpacing
}

// signal builds the emitted signal: entry hint at the close, stop hint at
// the zone's far boundary or the swing extreme over the lookback, whichever
// sits further from the entry.
func (f *FSM) signal(c *Candidate, bar model.Bar, recent *ringbuf.Ring[model.Bar]) *model.Signal {
	stop := c.ZoneBottom
	if c.Direction == model.Short {
		stop = c.ZoneTop
	}

	if recent != nil && f.cfg.SwingLookback > 0 {
		seen := 0
		recent.NewestFirst(func(b model.Bar) bool {
			if c.Direction == model.Long {
				if b.Low < stop {
					stop = b.Low
				}
			} else {
				if b.High > stop {
					stop = b.High
				}
			}
			seen++
			return seen < f.cfg.SwingLookback
		})
	}

	return &model.Signal{
		ID:           model.SignalID(c.ID, bar.TS),
		Direction:    c.Direction,
		EntryHint:    bar.Close,
		StopHint:     stop,
		IssuedAt:     bar.TS,
		SourceZoneID: c.ZoneID,
		ZoneKind:     c.ZoneKind,
		Strength:     c.Strength,
	}
}
