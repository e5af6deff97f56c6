// Package overlap maintains High-Liquidity Zones: intersection bands formed
// when enough overlapping pools reach the weighted strength threshold.
// Members may share a timeframe; no distinct-timeframe check is made. The engine holds pool
// ids only — pool data stays owned by the registry and is looked up on
// demand, never aliased.
package overlap

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/model"
)

// PoolGetter is the read-only view of the registry the engine depends on.
type PoolGetter interface {
	Get(id string) (*model.Pool, bool)
}

// Config holds the HLZ formation rules.
type Config struct {
	MinMembers        int
	MinStrength       float64
	TFWeight          map[model.Timeframe]float64
	MergeTolerance    float64
	SideMixing        bool
	MaxActiveHLZs     int
	RecomputeOnUpdate bool
	DropTouched       bool // drop membership on touch instead of waiting for expiry
}

// DefaultConfig mirrors the standard H1/H4/D1 weighting.
func DefaultConfig() Config {
	return Config{
		MinMembers:  2,
		MinStrength: 3.0,
		TFWeight: map[model.Timeframe]float64{
			model.H1: 1.0,
			model.H4: 2.0,
			model.D1: 3.0,
		},
		MergeTolerance:    0.5,
		SideMixing:        false,
		MaxActiveHLZs:     1000,
		RecomputeOnUpdate: true,
	}
}

func (c Config) weight(tf model.Timeframe) float64 {
	if w, ok := c.TFWeight[tf]; ok {
		return w
	}
	return 1.0
}

// interval is one pool's band in the side-split sorted index.
type interval struct {
	bottom, top float64
	id          string
	side        model.Side
	tf          model.Timeframe
}

// Engine reacts to pool lifecycle events and emits HLZ events.
type Engine struct {
	cfg   Config
	pools PoolGetter

	bull []interval // sorted by (bottom, id)
	bear []interval
	ivs  map[string]interval

	hlzs      map[string]*model.HLZ
	hlzOrder  []string // insertion order, drives deterministic merge scans
	members   map[string]map[string]bool
	poolToHLZ map[string][]string

	created, updated, dissolved uint64
	log                         zerolog.Logger

	// OnCapacity is called when MaxActiveHLZs refuses a create (optional).
	OnCapacity func()
}

// New creates an overlap engine reading pool data from pools.
func New(cfg Config, pools PoolGetter, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		pools:     pools,
		ivs:       make(map[string]interval),
		hlzs:      make(map[string]*model.HLZ),
		members:   make(map[string]map[string]bool),
		poolToHLZ: make(map[string][]string),
		log:       log.With().Str("comp", "overlap").Logger(),
	}
}

// ActiveHLZs returns the live zones in creation order.
func (e *Engine) ActiveHLZs() []*model.HLZ {
	out := make([]*model.HLZ, 0, len(e.hlzOrder))
	for _, id := range e.hlzOrder {
		if h, ok := e.hlzs[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

// OnPoolCreated indexes the new pool and forms or extends HLZs with every
// overlapping same-side pool.
func (e *Engine) OnPoolCreated(p *model.Pool, ts time.Time) []model.Event {
	iv := interval{
		bottom: p.Bottom, top: p.Top,
		id: p.ID, side: p.Side, tf: p.TF,
	}

	hits := e.query(iv)
	e.insert(iv)

	if len(hits) == 0 {
		return nil
	}
	group := make([]string, 0, len(hits)+1)
	for _, h := range hits {
		group = append(group, h.id)
	}
	group = append(group, p.ID)
	return e.processGroup(group, ts)
}

// OnPoolTouched drops the pool's membership when DropTouched is set;
// by default touched pools stay members until they expire.
func (e *Engine) OnPoolTouched(poolID string, ts time.Time) []model.Event {
	if !e.cfg.DropTouched {
		return nil
	}
	return e.removePool(poolID, ts)
}

// OnPoolExpired removes the pool and dissolves or shrinks affected HLZs.
func (e *Engine) OnPoolExpired(poolID string, ts time.Time) []model.Event {
	return e.removePool(poolID, ts)
}

func (e *Engine) removePool(poolID string, ts time.Time) []model.Event {
	if _, ok := e.ivs[poolID]; !ok {
		return nil
	}
	e.remove(poolID)

	affected := e.poolToHLZ[poolID]
	delete(e.poolToHLZ, poolID)

	var events []model.Event
	for _, hlzID := range affected {
		mem, ok := e.members[hlzID]
		if !ok {
			continue
		}
		delete(mem, poolID)

		if len(mem) < e.cfg.MinMembers {
			// Dissolved the same bar membership fell below threshold.
			if _, live := e.hlzs[hlzID]; live {
				events = append(events, &model.HLZDissolvedEvent{
					HLZID: hlzID, TS: ts, FinalMemberCount: len(mem),
				})
				e.dissolved++
			}
			delete(e.hlzs, hlzID)
			delete(e.members, hlzID)
			for id := range mem {
				e.poolToHLZ[id] = removeString(e.poolToHLZ[id], hlzID)
			}
			continue
		}

		if !e.cfg.RecomputeOnUpdate {
			continue
		}
		prev := e.hlzs[hlzID]
		updated := e.build(sortedKeys(mem), ts)
		if updated == nil {
			continue
		}
		updated.ID = hlzID // identity survives membership shrink
		e.hlzs[hlzID] = updated
		if prev != nil && updated.Strength != prev.Strength {
			events = append(events, &model.HLZUpdatedEvent{
				HLZID: hlzID, TS: ts, HLZ: *updated, PrevStrength: prev.Strength,
			})
			e.updated++
		}
	}
	return events
}

// processGroup forms a new HLZ from the group or refreshes an existing one.
func (e *Engine) processGroup(group []string, ts time.Time) []model.Event {
	if len(group) < e.cfg.MinMembers {
		return nil
	}
	hlzID := model.HLZID(group)

	if prev, ok := e.hlzs[hlzID]; ok {
		updated := e.build(group, ts)
		if updated == nil || updated.Strength == prev.Strength {
			return nil
		}
		updated.ID = hlzID
		e.hlzs[hlzID] = updated
		e.updated++
		return []model.Event{&model.HLZUpdatedEvent{
			HLZID: hlzID, TS: ts, HLZ: *updated, PrevStrength: prev.Strength,
		}}
	}

	hlz := e.build(group, ts)
	if hlz == nil {
		return nil
	}
	if e.cfg.MaxActiveHLZs > 0 && len(e.hlzs) >= e.cfg.MaxActiveHLZs {
		if e.OnCapacity != nil {
			e.OnCapacity()
		}
		e.log.Debug().Str("hlz", hlzID).Msg("hlz capacity reached, create refused")
		return nil
	}

	e.hlzs[hlzID] = hlz
	e.hlzOrder = append(e.hlzOrder, hlzID)
	mem := make(map[string]bool, len(group))
	for _, id := range group {
		mem[id] = true
		e.poolToHLZ[id] = append(e.poolToHLZ[id], hlzID)
	}
	e.members[hlzID] = mem
	e.created++

	events := []model.Event{&model.HLZCreatedEvent{HLZID: hlzID, TS: ts, HLZ: *hlz}}
	return append(events, e.mergePass(hlzID, ts)...)
}

// build assembles an HLZ from member pool ids, or nil when the group does
// not qualify (no common band, mixed sides, weak strength).
func (e *Engine) build(group []string, ts time.Time) *model.HLZ {
	ids := make([]string, len(group))
	copy(ids, group)
	sort.Strings(ids)

	pools := make([]*model.Pool, 0, len(ids))
	for _, id := range ids {
		p, ok := e.pools.Get(id)
		if !ok {
			return nil
		}
		pools = append(pools, p)
	}

	// Band = intersection of all member bands.
	bottom, top := pools[0].Bottom, pools[0].Top
	for _, p := range pools[1:] {
		if p.Bottom > bottom {
			bottom = p.Bottom
		}
		if p.Top < top {
			top = p.Top
		}
	}
	if bottom >= top {
		return nil
	}

	side := pools[0].Side
	for _, p := range pools[1:] {
		if p.Side != side {
			if !e.cfg.SideMixing {
				return nil
			}
			side = model.SideMixed
		}
	}

	// Weighted strength, folded in sorted-id order for bit-stable sums.
	strength := 0.0
	tfSet := map[model.Timeframe]bool{}
	for _, p := range pools {
		strength += e.cfg.weight(p.TF) * p.Strength
		tfSet[p.TF] = true
	}
	if strength < e.cfg.MinStrength {
		return nil
	}

	tfs := make([]model.Timeframe, 0, len(tfSet))
	for tf := range tfSet {
		tfs = append(tfs, tf)
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i] < tfs[j] })

	return &model.HLZ{
		ID:         model.HLZID(ids),
		Side:       side,
		Top:        top,
		Bottom:     bottom,
		Strength:   strength,
		MemberIDs:  ids,
		Timeframes: tfs,
		CreatedAt:  ts,
	}
}

// mergePass folds the freshly created HLZ into an older same-side HLZ whose
// band lies within the merge tolerance. The union keeps the older identity.
func (e *Engine) mergePass(newID string, ts time.Time) []model.Event {
	if e.cfg.MergeTolerance <= 0 {
		return nil
	}
	fresh, ok := e.hlzs[newID]
	if !ok {
		return nil
	}

	for _, otherID := range e.hlzOrder {
		if otherID == newID {
			continue
		}
		other, live := e.hlzs[otherID]
		if !live || other.Side != fresh.Side {
			continue
		}
		if abs(other.Top-fresh.Top) > e.cfg.MergeTolerance ||
			abs(other.Bottom-fresh.Bottom) > e.cfg.MergeTolerance {
			continue
		}

		union := map[string]bool{}
		for id := range e.members[otherID] {
			union[id] = true
		}
		for id := range e.members[newID] {
			union[id] = true
		}
		merged := e.build(sortedKeys(union), ts)
		if merged == nil {
			continue
		}

		prevStrength := other.Strength
		merged.ID = otherID
		e.hlzs[otherID] = merged
		e.members[otherID] = union
		for id := range union {
			if !contains(e.poolToHLZ[id], otherID) {
				e.poolToHLZ[id] = append(e.poolToHLZ[id], otherID)
			}
			e.poolToHLZ[id] = removeString(e.poolToHLZ[id], newID)
		}
		delete(e.hlzs, newID)
		delete(e.members, newID)
		e.updated++
		e.dissolved++

		return []model.Event{
			&model.HLZDissolvedEvent{HLZID: newID, TS: ts, FinalMemberCount: 0},
			&model.HLZUpdatedEvent{HLZID: otherID, TS: ts, HLZ: *merged, PrevStrength: prevStrength},
		}
	}
	return nil
}

// query returns the indexed intervals overlapping iv, band order.
func (e *Engine) query(iv interval) []interval {
	var out []interval
	switch {
	case iv.side == model.SideBullish && !e.cfg.SideMixing:
		out = overlapsIn(e.bull, iv)
	case iv.side == model.SideBearish && !e.cfg.SideMixing:
		out = overlapsIn(e.bear, iv)
	default:
		out = append(overlapsIn(e.bull, iv), overlapsIn(e.bear, iv)...)
	}
	return out
}

func overlapsIn(list []interval, iv interval) []interval {
	var out []interval
	for _, o := range list {
		if o.bottom >= iv.top {
			break // sorted by bottom: nothing further can overlap
		}
		if o.bottom < iv.top && iv.bottom < o.top {
			out = append(out, o)
		}
	}
	return out
}

func (e *Engine) insert(iv interval) {
	list := e.listFor(iv.side)
	i := sort.Search(len(*list), func(i int) bool {
		o := (*list)[i]
		if o.bottom != iv.bottom {
			return o.bottom > iv.bottom
		}
		return o.id > iv.id
	})
	*list = append(*list, interval{})
	copy((*list)[i+1:], (*list)[i:])
	(*list)[i] = iv
	e.ivs[iv.id] = iv
}

func (e *Engine) remove(id string) {
	iv, ok := e.ivs[id]
	if !ok {
		return
	}
	list := e.listFor(iv.side)
	for i, o := range *list {
		if o.id == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			break
		}
	}
	delete(e.ivs, id)
}

func (e *Engine) listFor(side model.Side) *[]interval {
	if side == model.SideBearish {
		return &e.bear
	}
	return &e.bull
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
