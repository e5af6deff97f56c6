// Package pool owns the liquidity-pool lifecycle: creation from detector
// candidates, touch detection, TTL expiry via the timing wheel, and grace
// retention. All other stages reference pools by id only.
package pool

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/model"
	"liquidity-systemv1/internal/ttlwheel"
)

// TFPolicy holds the per-timeframe pool knobs.
type TFPolicy struct {
	TTL           time.Duration
	HitTolerance  float64
	StrengthFloor float64
}

// Config holds registry-wide settings.
type Config struct {
	TFPolicies    map[model.Timeframe]TFPolicy
	DefaultTTL    time.Duration
	GracePeriod   time.Duration
	MaxPoolsPerTF int
}

// DefaultConfig mirrors the standard H1/H4/D1 deployment.
func DefaultConfig() Config {
	return Config{
		TFPolicies: map[model.Timeframe]TFPolicy{
			model.H1: {TTL: 2 * time.Hour, StrengthFloor: 0.1},
			model.H4: {TTL: 6 * time.Hour, StrengthFloor: 0.1},
			model.D1: {TTL: 48 * time.Hour, StrengthFloor: 0.1},
		},
		DefaultTTL:    2 * time.Hour,
		GracePeriod:   5 * time.Minute,
		MaxPoolsPerTF: 10000,
	}
}

func (c Config) policy(tf model.Timeframe) TFPolicy {
	if p, ok := c.TFPolicies[tf]; ok {
		return p
	}
	return TFPolicy{TTL: c.DefaultTTL}
}

// tfIndex keeps one timeframe's pools sorted by (bottom, id) for interval
// queries, plus the live count enforced against MaxPoolsPerTF.
type tfIndex struct {
	sorted []*model.Pool
	live   int // ACTIVE + TOUCHED
}

func (ix *tfIndex) insert(p *model.Pool) {
	i := sort.Search(len(ix.sorted), func(i int) bool {
		s := ix.sorted[i]
		if s.Bottom != p.Bottom {
			return s.Bottom > p.Bottom
		}
		return s.ID > p.ID
	})
	ix.sorted = append(ix.sorted, nil)
	copy(ix.sorted[i+1:], ix.sorted[i:])
	ix.sorted[i] = p
}

func (ix *tfIndex) remove(p *model.Pool) {
	for i, s := range ix.sorted {
		if s.ID == p.ID {
			ix.sorted = append(ix.sorted[:i], ix.sorted[i+1:]...)
			return
		}
	}
}

type graceEntry struct {
	id        string
	cleanupAt time.Time
}

// Registry is the owner of all pools for one symbol.
type Registry struct {
	cfg   Config
	pools map[string]*model.Pool
	byTF  map[model.Timeframe]*tfIndex
	tfs   []model.Timeframe // sorted key list for deterministic iteration
	wheel *ttlwheel.Wheel
	grace []graceEntry
	now   time.Time
	log   zerolog.Logger

	created, touched, expired, purged uint64
}

// New creates a registry anchored at start.
func New(cfg Config, start time.Time, log zerolog.Logger) *Registry {
	return &Registry{
		cfg:   cfg,
		pools: make(map[string]*model.Pool),
		byTF:  make(map[model.Timeframe]*tfIndex),
		wheel: ttlwheel.New(start),
		now:   start,
		log:   log.With().Str("comp", "registry").Logger(),
	}
}

func (r *Registry) index(tf model.Timeframe) *tfIndex {
	ix, ok := r.byTF[tf]
	if !ok {
		ix = &tfIndex{}
		r.byTF[tf] = ix
		r.tfs = append(r.tfs, tf)
		sort.Slice(r.tfs, func(i, j int) bool { return r.tfs[i] < r.tfs[j] })
	}
	return ix
}

// Create inserts a pool from a detector candidate and schedules its expiry.
// Returns (nil, nil) when the candidate is skipped (below the strength floor
// or a duplicate id); returns a CapacityError when the timeframe is full.
func (r *Registry) Create(c *model.PoolCandidateEvent) (*model.PoolCreatedEvent, error) {
	pol := r.cfg.policy(c.TF)
	if c.Strength < pol.StrengthFloor {
		r.log.Debug().Str("tf", c.TF.Name()).Float64("strength", c.Strength).
			Msg("candidate below strength floor")
		return nil, nil
	}

	ix := r.index(c.TF)
	if r.cfg.MaxPoolsPerTF > 0 && ix.live >= r.cfg.MaxPoolsPerTF {
		return nil, &model.CapacityError{Scope: "pools:" + c.TF.Name(), Limit: r.cfg.MaxPoolsPerTF}
	}

	id := model.PoolID(c.TF, c.TS, c.Top, c.Bottom)
	if _, ok := r.pools[id]; ok {
		return nil, nil
	}

	p := &model.Pool{
		ID:           id,
		TF:           c.TF,
		Side:         c.Side,
		Top:          c.Top,
		Bottom:       c.Bottom,
		Strength:     c.Strength,
		State:        model.PoolActive,
		CreatedAt:    c.TS,
		ExpiresAt:    c.TS.Add(pol.TTL),
		HitTolerance: pol.HitTolerance,
	}
	r.wheel.Schedule(id, p.ExpiresAt)
	r.pools[id] = p
	ix.insert(p)
	ix.live++
	r.created++

	return &model.PoolCreatedEvent{PoolID: id, TS: c.TS, Pool: *p}, nil
}

// OnPrice transitions every ACTIVE pool whose band contains price to TOUCHED.
// Touch detection is driven by the bar close only; high/low wicks through a
// band do not count.
func (r *Registry) OnPrice(ts time.Time, price float64) []*model.PoolTouchedEvent {
	var events []*model.PoolTouchedEvent
	for _, tf := range r.tfs {
		ix := r.byTF[tf]
		tol := r.cfg.policy(tf).HitTolerance
		// Pools are sorted by bottom; everything past this bound starts
		// above the price and cannot contain it.
		bound := sort.Search(len(ix.sorted), func(i int) bool {
			return ix.sorted[i].Bottom-tol > price
		})
		for _, p := range ix.sorted[:bound] {
			if p.State != model.PoolActive || !p.ContainsPrice(price) {
				continue
			}
			p.State = model.PoolTouched
			p.LastTouchedAt = ts
			r.touched++
			events = append(events, &model.PoolTouchedEvent{
				PoolID: p.ID, TS: ts, TouchPrice: price,
			})
		}
	}
	return events
}

// AdvanceTime drives the TTL wheel to now, expires due pools, and clears
// pools whose grace retention has elapsed. Forward-idempotent.
func (r *Registry) AdvanceTime(now time.Time) []*model.PoolExpiredEvent {
	r.now = now
	var events []*model.PoolExpiredEvent
	for _, item := range r.wheel.Advance(now) {
		p, ok := r.pools[item.ID]
		if !ok {
			continue
		}
		prior := p.State
		p.State = model.PoolExpired
		p.ExpiredAt = now
		ix := r.byTF[p.TF]
		ix.remove(p)
		ix.live--
		r.expired++
		r.grace = append(r.grace, graceEntry{id: p.ID, cleanupAt: now.Add(r.cfg.GracePeriod)})
		events = append(events, &model.PoolExpiredEvent{
			PoolID: p.ID, TS: now, FinalState: prior,
		})
	}

	// Drop pools whose grace window has elapsed.
	for len(r.grace) > 0 && !r.grace[0].cleanupAt.After(now) {
		g := r.grace[0]
		r.grace = r.grace[1:]
		if p, ok := r.pools[g.id]; ok && p.State == model.PoolExpired {
			p.State = model.PoolGrace
			delete(r.pools, g.id)
		}
	}
	return events
}

// PurgeBefore removes expired pools whose expiry is older than ts. ACTIVE and
// TOUCHED pools are never removed. Returns the number removed.
func (r *Registry) PurgeBefore(ts time.Time) int {
	n := 0
	for id, p := range r.pools {
		if p.State == model.PoolExpired && p.ExpiredAt.Before(ts) {
			delete(r.pools, id)
			n++
		}
	}
	r.purged += uint64(n)
	return n
}

// Get returns a pool by id.
func (r *Registry) Get(id string) (*model.Pool, bool) {
	p, ok := r.pools[id]
	return p, ok
}

// QueryActive returns all ACTIVE pools, ordered by timeframe then band, for
// deterministic downstream consumption.
func (r *Registry) QueryActive() []*model.Pool {
	var out []*model.Pool
	for _, tf := range r.tfs {
		out = append(out, r.QueryActiveTF(tf)...)
	}
	return out
}

// QueryActiveTF returns one timeframe's ACTIVE pools in band order.
func (r *Registry) QueryActiveTF(tf model.Timeframe) []*model.Pool {
	ix, ok := r.byTF[tf]
	if !ok {
		return nil
	}
	out := make([]*model.Pool, 0, len(ix.sorted))
	for _, p := range ix.sorted {
		if p.State == model.PoolActive {
			out = append(out, p)
		}
	}
	return out
}

// Size returns the total number of tracked pools (including grace retention).
func (r *Registry) Size() int { return len(r.pools) }

// CountByState returns how many tracked pools are in the given state.
func (r *Registry) CountByState(state model.PoolState) int {
	n := 0
	for _, p := range r.pools {
		if p.State == state {
			n++
		}
	}
	return n
}

// TouchedCountTF returns TOUCHED pools for one timeframe.
func (r *Registry) TouchedCountTF(tf model.Timeframe) int {
	ix, ok := r.byTF[tf]
	if !ok {
		return 0
	}
	n := 0
	for _, p := range ix.sorted {
		if p.State == model.PoolTouched {
			n++
		}
	}
	return n
}

// LiveCount returns ACTIVE+TOUCHED pools for one timeframe.
func (r *Registry) LiveCount(tf model.Timeframe) int {
	if ix, ok := r.byTF[tf]; ok {
		return ix.live
	}
	return 0
}
