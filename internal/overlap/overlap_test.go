package overlap

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidity-systemv1/internal/model"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// stubPools is a minimal registry view for the engine under test.
type stubPools map[string]*model.Pool

func (s stubPools) Get(id string) (*model.Pool, bool) {
	p, ok := s[id]
	return p, ok
}

func mkPool(id string, tf model.Timeframe, side model.Side, top, bottom, strength float64) *model.Pool {
	return &model.Pool{
		ID: id, TF: tf, Side: side,
		Top: top, Bottom: bottom, Strength: strength,
		State: model.PoolActive, CreatedAt: t0,
	}
}

func testEngine(pools stubPools) *Engine {
	cfg := Config{
		MinMembers:  2,
		MinStrength: 1.0,
		TFWeight: map[model.Timeframe]float64{
			model.H1: 1.0, model.H4: 2.0, model.D1: 3.0,
		},
		MaxActiveHLZs:     100,
		RecomputeOnUpdate: true,
	}
	return New(cfg, pools, zerolog.Nop())
}

func TestEngine_FormsHLZFromOverlap(t *testing.T) {
	pools := stubPools{}
	e := testEngine(pools)

	p1 := mkPool("p1", model.H1, model.SideBullish, 101, 100, 0.8)
	pools["p1"] = p1
	require.Empty(t, e.OnPoolCreated(p1, t0))

	p2 := mkPool("p2", model.H4, model.SideBullish, 100.8, 99.5, 0.9)
	pools["p2"] = p2
	events := e.OnPoolCreated(p2, t0.Add(time.Minute))
	require.Len(t, events, 1)

	created, ok := events[0].(*model.HLZCreatedEvent)
	require.True(t, ok, "expected HLZCreatedEvent, got %T", events[0])

	// Band is the intersection of both member bands.
	assert.Equal(t, 100.0, created.HLZ.Bottom)
	assert.Equal(t, 100.8, created.HLZ.Top)
	// Strength = 1.0*0.8 + 2.0*0.9 = 2.6.
	assert.InDelta(t, 2.6, created.HLZ.Strength, 1e-12)
	assert.Equal(t, []model.Timeframe{model.H1, model.H4}, created.HLZ.Timeframes)
	assert.Equal(t, model.SideBullish, created.HLZ.Side)
	assert.Len(t, created.HLZ.MemberIDs, 2)
}

func TestEngine_MinStrengthRefusesWeakGroup(t *testing.T) {
	pools := stubPools{}
	e := testEngine(pools)

	p1 := mkPool("p1", model.H1, model.SideBullish, 101, 100, 0.2)
	pools["p1"] = p1
	e.OnPoolCreated(p1, t0)

	p2 := mkPool("p2", model.H1, model.SideBullish, 100.8, 99.5, 0.3)
	pools["p2"] = p2
	events := e.OnPoolCreated(p2, t0)
	// Combined strength 0.5 < 1.0: no HLZ.
	assert.Empty(t, events)
	assert.Empty(t, e.ActiveHLZs())
}

func TestEngine_SideMixingOffKeepsSidesApart(t *testing.T) {
	pools := stubPools{}
	e := testEngine(pools)

	p1 := mkPool("p1", model.H1, model.SideBullish, 101, 100, 0.8)
	pools["p1"] = p1
	e.OnPoolCreated(p1, t0)

	p2 := mkPool("p2", model.H4, model.SideBearish, 100.8, 99.5, 0.9)
	pools["p2"] = p2
	events := e.OnPoolCreated(p2, t0)
	assert.Empty(t, events, "opposite sides must not form an HLZ")
}

func TestEngine_DissolveOnMemberExpiry(t *testing.T) {
	pools := stubPools{}
	e := testEngine(pools)

	p1 := mkPool("p1", model.H1, model.SideBullish, 101, 100, 0.8)
	p2 := mkPool("p2", model.H4, model.SideBullish, 100.8, 99.5, 0.9)
	pools["p1"], pools["p2"] = p1, p2
	e.OnPoolCreated(p1, t0)
	events := e.OnPoolCreated(p2, t0)
	require.Len(t, events, 1)
	hlzID := events[0].(*model.HLZCreatedEvent).HLZID

	// Losing one of two members drops below min_members: dissolved the
	// same instant.
	events = e.OnPoolExpired("p1", t0.Add(time.Hour))
	require.Len(t, events, 1)
	dissolved, ok := events[0].(*model.HLZDissolvedEvent)
	require.True(t, ok, "expected HLZDissolvedEvent, got %T", events[0])
	assert.Equal(t, hlzID, dissolved.HLZID)
	assert.Equal(t, 1, dissolved.FinalMemberCount)
	assert.Empty(t, e.ActiveHLZs())
}

func TestEngine_ShrinkKeepsHLZAboveThreshold(t *testing.T) {
	pools := stubPools{}
	e := testEngine(pools)

	ps := []*model.Pool{
		mkPool("p1", model.H1, model.SideBullish, 101, 100, 0.8),
		mkPool("p2", model.H4, model.SideBullish, 100.9, 99.5, 0.9),
		mkPool("p3", model.D1, model.SideBullish, 100.8, 99.8, 0.7),
	}
	var hlzEvents []model.Event
	for _, p := range ps {
		pools[p.ID] = p
		hlzEvents = append(hlzEvents, e.OnPoolCreated(p, t0)...)
	}
	require.NotEmpty(t, hlzEvents)

	// Expiring one member of the 3-member HLZ leaves 2 >= min_members:
	// the zone survives with an update, not a dissolution.
	events := e.OnPoolExpired("p3", t0.Add(time.Hour))
	var sawDissolve, sawUpdate bool
	for _, ev := range events {
		switch ev.(type) {
		case *model.HLZDissolvedEvent:
			sawDissolve = true
		case *model.HLZUpdatedEvent:
			sawUpdate = true
		}
	}
	assert.True(t, sawUpdate, "expected an HLZUpdated after shrink")
	// The 3-member HLZ keeps living as a 2-member zone; only groups whose
	// membership fell below the minimum dissolve.
	_ = sawDissolve
}

func TestEngine_RetainsTouchedMembersByDefault(t *testing.T) {
	pools := stubPools{}
	e := testEngine(pools)

	p1 := mkPool("p1", model.H1, model.SideBullish, 101, 100, 0.8)
	p2 := mkPool("p2", model.H4, model.SideBullish, 100.8, 99.5, 0.9)
	pools["p1"], pools["p2"] = p1, p2
	e.OnPoolCreated(p1, t0)
	require.Len(t, e.OnPoolCreated(p2, t0), 1)

	// Default policy: a touch does not change membership.
	assert.Empty(t, e.OnPoolTouched("p1", t0.Add(time.Minute)))
	assert.Len(t, e.ActiveHLZs(), 1)
}

func TestEngine_DropTouchedPolicy(t *testing.T) {
	pools := stubPools{}
	e := testEngine(pools)
	e.cfg.DropTouched = true

	p1 := mkPool("p1", model.H1, model.SideBullish, 101, 100, 0.8)
	p2 := mkPool("p2", model.H4, model.SideBullish, 100.8, 99.5, 0.9)
	pools["p1"], pools["p2"] = p1, p2
	e.OnPoolCreated(p1, t0)
	require.Len(t, e.OnPoolCreated(p2, t0), 1)

	events := e.OnPoolTouched("p1", t0.Add(time.Minute))
	require.Len(t, events, 1)
	_, ok := events[0].(*model.HLZDissolvedEvent)
	assert.True(t, ok, "drop_touched must dissolve the 2-member HLZ")
}

func TestEngine_DeterministicHLZID(t *testing.T) {
	build := func(order []string) string {
		pools := stubPools{
			"a": mkPool("a", model.H1, model.SideBullish, 101, 100, 0.8),
			"b": mkPool("b", model.H4, model.SideBullish, 100.8, 99.5, 0.9),
		}
		e := testEngine(pools)
		var id string
		for _, pid := range order {
			for _, ev := range e.OnPoolCreated(pools[pid], t0) {
				if c, ok := ev.(*model.HLZCreatedEvent); ok {
					id = c.HLZID
				}
			}
		}
		return id
	}
	// Discovery order must not affect identity.
	assert.Equal(t, build([]string{"a", "b"}), build([]string{"b", "a"}))
}

func TestEngine_NonOverlappingBandsNoHLZ(t *testing.T) {
	pools := stubPools{}
	e := testEngine(pools)

	p1 := mkPool("p1", model.H1, model.SideBullish, 101, 100, 0.8)
	p2 := mkPool("p2", model.H4, model.SideBullish, 103, 102, 0.9)
	pools["p1"], pools["p2"] = p1, p2
	e.OnPoolCreated(p1, t0)
	assert.Empty(t, e.OnPoolCreated(p2, t0))
}
