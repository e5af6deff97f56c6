package zone

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidity-systemv1/internal/model"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func poolCreated(id string, top, bottom, strength float64) *model.PoolCreatedEvent {
	return &model.PoolCreatedEvent{
		PoolID: id,
		TS:     t0,
		Pool: model.Pool{
			ID: id, TF: model.H1, Side: model.SideBullish,
			Top: top, Bottom: bottom, Strength: strength,
			State: model.PoolActive, CreatedAt: t0,
		},
	}
}

func barAt(i int, low, high, close float64) model.Bar {
	return model.Bar{
		Symbol: "BTCUSDT", TF: model.M1,
		TS:   t0.Add(time.Duration(i) * time.Minute),
		Open: close, High: high, Low: low, Close: close, Volume: 1000,
	}
}

func TestWatcher_EntryOnFirstIntersection(t *testing.T) {
	w := New(Config{MinStrength: 0.5, MaxActiveZones: 10}, zerolog.Nop())
	w.OnPoolCreated(poolCreated("p1", 101, 100, 0.9))

	// Bar entirely below the band: no entry.
	require.Empty(t, w.OnBar(barAt(0, 98, 99, 98.5)))

	// Bar range crosses into the band: one entry.
	events := w.OnBar(barAt(1, 99.5, 100.5, 100.2))
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "p1", ev.ZoneID)
	assert.Equal(t, model.ZonePool, ev.ZoneKind)
	assert.Equal(t, 100.2, ev.EntryPrice)
	assert.Equal(t, model.SideBullish, ev.Side)

	// Still inside on the next bar: no repeat entry.
	assert.Empty(t, w.OnBar(barAt(2, 100, 100.8, 100.4)))
}

func TestWatcher_ReArmAfterExit(t *testing.T) {
	w := New(Config{MinStrength: 0.5, MaxActiveZones: 10}, zerolog.Nop())
	w.OnPoolCreated(poolCreated("p1", 101, 100, 0.9))

	require.Len(t, w.OnBar(barAt(0, 99.5, 100.5, 100.2)), 1)
	// Leave the band entirely.
	require.Empty(t, w.OnBar(barAt(1, 97, 98, 97.5)))
	// Re-entry emits again.
	require.Len(t, w.OnBar(barAt(2, 99.5, 100.5, 100.2)), 1)
}

func TestWatcher_ConfirmClosure(t *testing.T) {
	w := New(Config{MinStrength: 0.5, MaxActiveZones: 10, ConfirmClosure: true}, zerolog.Nop())
	w.OnPoolCreated(poolCreated("p1", 101, 100, 0.9))

	// Wick pierces the band but the close is outside: suppressed.
	assert.Empty(t, w.OnBar(barAt(0, 99, 100.5, 99.5)))

	// Leave, then re-enter with the close inside: emitted.
	w.OnBar(barAt(1, 97, 98, 97.5))
	events := w.OnBar(barAt(2, 99, 100.5, 100.3))
	require.Len(t, events, 1)
}

func TestWatcher_PriceTolerance(t *testing.T) {
	w := New(Config{MinStrength: 0.5, MaxActiveZones: 10, PriceTolerance: 0.5}, zerolog.Nop())
	w.OnPoolCreated(poolCreated("p1", 101, 100, 0.9))

	// High 99.6 reaches the widened bottom 99.5.
	events := w.OnBar(barAt(0, 99, 99.6, 99.3))
	require.Len(t, events, 1)
}

func TestWatcher_MinStrengthFloor(t *testing.T) {
	w := New(Config{MinStrength: 1.0, MaxActiveZones: 10}, zerolog.Nop())
	w.OnPoolCreated(poolCreated("weak", 101, 100, 0.4))
	assert.Equal(t, 0, w.ActiveCount())
	assert.Empty(t, w.OnBar(barAt(0, 99.5, 100.5, 100.2)))
}

func TestWatcher_CapacityCap(t *testing.T) {
	w := New(Config{MinStrength: 0.1, MaxActiveZones: 2}, zerolog.Nop())
	refused := 0
	w.OnCapacity = func() { refused++ }

	w.OnPoolCreated(poolCreated("p1", 101, 100, 0.9))
	w.OnPoolCreated(poolCreated("p2", 103, 102, 0.9))
	w.OnPoolCreated(poolCreated("p3", 105, 104, 0.9))

	assert.Equal(t, 2, w.ActiveCount())
	assert.Equal(t, 1, refused)
}

func TestWatcher_ExpiredZoneRemoved(t *testing.T) {
	w := New(Config{MinStrength: 0.5, MaxActiveZones: 10}, zerolog.Nop())
	w.OnPoolCreated(poolCreated("p1", 101, 100, 0.9))
	w.OnPoolExpired("p1")

	assert.Equal(t, 0, w.ActiveCount())
	assert.Empty(t, w.OnBar(barAt(0, 99.5, 100.5, 100.2)))
}

func TestWatcher_HLZLifecycle(t *testing.T) {
	w := New(Config{MinStrength: 0.5, MaxActiveZones: 10}, zerolog.Nop())
	hlz := model.HLZ{
		ID: "hlz_abc", Side: model.SideBullish,
		Top: 101, Bottom: 100.5, Strength: 3.5,
		MemberIDs: []string{"a", "b"}, CreatedAt: t0,
	}
	w.OnHLZCreated(&model.HLZCreatedEvent{HLZID: hlz.ID, TS: t0, HLZ: hlz})

	events := w.OnBar(barAt(0, 100.4, 100.7, 100.6))
	require.Len(t, events, 1)
	assert.Equal(t, model.ZoneHLZ, events[0].ZoneKind)

	// Update shrinks the band; dissolution stops tracking.
	hlz.Bottom = 100.8
	w.OnHLZUpdated(&model.HLZUpdatedEvent{HLZID: hlz.ID, TS: t0, HLZ: hlz, PrevStrength: 3.5})
	m, ok := w.Get(hlz.ID)
	require.True(t, ok)
	assert.Equal(t, 100.8, m.Bottom)

	w.OnHLZDissolved(hlz.ID)
	assert.Equal(t, 0, w.ActiveCount())
}

func TestWatcher_OneEventPerZonePerBar(t *testing.T) {
	w := New(Config{MinStrength: 0.5, MaxActiveZones: 10}, zerolog.Nop())
	w.OnPoolCreated(poolCreated("p1", 101, 100, 0.9))
	w.OnPoolCreated(poolCreated("p2", 100.8, 99.8, 0.9))

	// One bar sweeping both bands: exactly one event per zone.
	events := w.OnBar(barAt(0, 99.9, 100.9, 100.4))
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].ZoneID, events[1].ZoneID)
}
