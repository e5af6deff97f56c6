// Package zone watches price interaction with active pools and HLZs and
// emits entry events on the bar that first crosses into a band. The watcher
// holds zone metadata only; pool and HLZ state stay with their owners.
package zone

import (
	"time"

	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/model"
)

// Config holds the zone tracking knobs.
type Config struct {
	PriceTolerance float64 // widens every band symmetrically
	ConfirmClosure bool    // require bar close inside the band
	MinStrength    float64 // zones weaker than this are not tracked
	MaxActiveZones int
}

// DefaultConfig returns the standard watcher settings.
func DefaultConfig() Config {
	return Config{MinStrength: 1.0, MaxActiveZones: 1000}
}

// Meta is the tracked state for one zone.
type Meta struct {
	ID        string
	Kind      model.ZoneKind
	Top       float64
	Bottom    float64
	Strength  float64
	Side      model.Side
	TF        model.Timeframe // zero for HLZ zones
	CreatedAt time.Time

	wasIn bool // bar range intersected the band on the previous bar
}

// Watcher tracks active zones and detects entries.
type Watcher struct {
	cfg   Config
	zones map[string]*Meta
	order []string // insertion order for deterministic event emission
	log   zerolog.Logger

	entries uint64

	// OnCapacity is called when MaxActiveZones refuses a track (optional).
	OnCapacity func()
}

// New creates a zone watcher.
func New(cfg Config, log zerolog.Logger) *Watcher {
	return &Watcher{
		cfg:   cfg,
		zones: make(map[string]*Meta),
		log:   log.With().Str("comp", "zone").Logger(),
	}
}

// OnPoolCreated starts tracking a pool zone.
func (w *Watcher) OnPoolCreated(ev *model.PoolCreatedEvent) {
	w.track(&Meta{
		ID:        ev.PoolID,
		Kind:      model.ZonePool,
		Top:       ev.Pool.Top,
		Bottom:    ev.Pool.Bottom,
		Strength:  ev.Pool.Strength,
		Side:      ev.Pool.Side,
		TF:        ev.Pool.TF,
		CreatedAt: ev.TS,
	})
}

// OnPoolExpired stops tracking the pool's zone.
func (w *Watcher) OnPoolExpired(poolID string) { w.untrack(poolID) }

// OnHLZCreated starts tracking an overlap zone.
func (w *Watcher) OnHLZCreated(ev *model.HLZCreatedEvent) {
	w.track(&Meta{
		ID:        ev.HLZID,
		Kind:      model.ZoneHLZ,
		Top:       ev.HLZ.Top,
		Bottom:    ev.HLZ.Bottom,
		Strength:  ev.HLZ.Strength,
		Side:      ev.HLZ.Side,
		CreatedAt: ev.TS,
	})
}

// OnHLZUpdated refreshes the band and strength of a tracked HLZ.
func (w *Watcher) OnHLZUpdated(ev *model.HLZUpdatedEvent) {
	m, ok := w.zones[ev.HLZID]
	if !ok {
		return
	}
	m.Top = ev.HLZ.Top
	m.Bottom = ev.HLZ.Bottom
	m.Strength = ev.HLZ.Strength
	m.Side = ev.HLZ.Side
}

// OnHLZDissolved stops tracking the zone.
func (w *Watcher) OnHLZDissolved(hlzID string) { w.untrack(hlzID) }

// Get returns a tracked zone's metadata.
func (w *Watcher) Get(id string) (*Meta, bool) {
	m, ok := w.zones[id]
	return m, ok
}

// ActiveCount returns the number of tracked zones.
func (w *Watcher) ActiveCount() int { return len(w.zones) }

// OnBar detects zone entries for one base bar: a zone is entered when the
// bar's [low, high] range intersects the widened band and the previous bar's
// did not. At most one entry per zone per bar; leaving the band re-arms it.
func (w *Watcher) OnBar(bar model.Bar) []*model.ZoneEnteredEvent {
	var events []*model.ZoneEnteredEvent
	for _, id := range w.order {
		m, ok := w.zones[id]
		if !ok {
			continue
		}
		bottom := m.Bottom - w.cfg.PriceTolerance
		top := m.Top + w.cfg.PriceTolerance
		in := bar.Range(bottom, top)

		if in && !m.wasIn {
			if !w.cfg.ConfirmClosure || (bottom <= bar.Close && bar.Close <= top) {
				events = append(events, &model.ZoneEnteredEvent{
					ZoneID:     m.ID,
					ZoneKind:   m.Kind,
					EntryTS:    bar.TS,
					EntryPrice: bar.Close,
					Side:       m.Side,
					Top:        m.Top,
					Bottom:     m.Bottom,
					Strength:   m.Strength,
					TF:         m.TF,
				})
				w.entries++
			}
		}
		m.wasIn = in
	}
	return events
}

func (w *Watcher) track(m *Meta) {
	if m.Strength < w.cfg.MinStrength {
		w.log.Debug().Str("zone", m.ID).Float64("strength", m.Strength).
			Msg("zone below strength floor, not tracked")
		return
	}
	if w.cfg.MaxActiveZones > 0 && len(w.zones) >= w.cfg.MaxActiveZones {
		if w.OnCapacity != nil {
			w.OnCapacity()
		}
		w.log.Debug().Str("zone", m.ID).Msg("zone capacity reached, not tracked")
		return
	}
	if _, ok := w.zones[m.ID]; ok {
		return
	}
	w.zones[m.ID] = m
	w.order = append(w.order, m.ID)
}

func (w *Watcher) untrack(id string) {
	if _, ok := w.zones[id]; !ok {
		return
	}
	delete(w.zones, id)
	// order entries for removed zones are skipped during OnBar and dropped
	// on the next compaction.
	if len(w.order) > 2*len(w.zones)+16 {
		kept := w.order[:0]
		for _, zid := range w.order {
			if _, ok := w.zones[zid]; ok {
				kept = append(kept, zid)
			}
		}
		w.order = kept
	}
}
