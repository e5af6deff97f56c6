package engine

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidity-systemv1/internal/candidate"
	"liquidity-systemv1/internal/detector"
	"liquidity-systemv1/internal/indicator"
	"liquidity-systemv1/internal/marketdata/aggregate"
	"liquidity-systemv1/internal/metrics"
	"liquidity-systemv1/internal/model"
	"liquidity-systemv1/internal/overlap"
	"liquidity-systemv1/internal/pool"
	"liquidity-systemv1/internal/risk"
	"liquidity-systemv1/internal/zone"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// testEngineConfig wires short warmups so detectors fire within a few hours
// of synthetic data. Filters that need long warm history are disabled; the
// chain still exercises every stage.
func testEngineConfig() Config {
	return Config{
		Aggregate: aggregate.Config{
			SourceTF:         model.M1,
			Targets:          []model.Timeframe{model.H1},
			OutOfOrderPolicy: aggregate.PolicyDrop,
			StrictOrdering:   true,
		},
		Indicators: indicator.PackConfig{
			EMAFastPeriod: 5, EMASlowPeriod: 10, ATRPeriod: 5,
			VolumeSMAPeriod: 5, RegimeSensitivity: 0.001, ATRFloor: 1e-5,
		},
		Detectors: detector.Config{
			FVG:              detector.FVGConfig{MinGapATR: 0.3},
			Pivot:            detector.PivotConfig{Lookback: 2, MinSigma: 0.5, BandATR: 0.1},
			OutOfOrderPolicy: aggregate.PolicyDrop,
			ATRPeriod:        3,
			VolumeSMAPeriod:  3,
			ATRFloor:         1e-5,
		},
		Registry: pool.Config{
			TFPolicies: map[model.Timeframe]pool.TFPolicy{
				model.H1: {TTL: 4 * time.Hour, StrengthFloor: 0.1},
			},
			DefaultTTL:    4 * time.Hour,
			GracePeriod:   5 * time.Minute,
			MaxPoolsPerTF: 1000,
		},
		Overlap: overlap.Config{
			MinMembers:  2,
			MinStrength: 1.0,
			TFWeight: map[model.Timeframe]float64{
				model.H1: 1.0, model.H4: 2.0,
			},
			MaxActiveHLZs:     100,
			RecomputeOnUpdate: true,
		},
		Zone: zone.Config{MinStrength: 0.1, MaxActiveZones: 100},
		Candidate: candidate.Config{
			Expiry:        4 * time.Hour,
			RegimeLong:    []model.Regime{model.RegimeBull, model.RegimeNeutral, model.RegimeBear},
			RegimeShort:   []model.Regime{model.RegimeBull, model.RegimeNeutral, model.RegimeBear},
			SwingLookback: 5,
		},
		Risk: risk.Config{
			RiskPerTrade: 0.01, SLATRMultiple: 1.5, TPRR: 2.0,
			MinPosition: 0.001, MaxPositionPct: 0.25, MinEquity: 100,
		},
		InitialEquity: 10000,
		RecentBars:    64,
	}
}

func mbar(i int, open, high, low, close, vol float64) model.Bar {
	return model.Bar{
		Symbol: "BTCUSDT", TF: model.M1,
		TS:   start.Add(time.Duration(i) * time.Minute),
		Open: open, High: high, Low: low, Close: close, Volume: vol,
	}
}

// scenarioBars builds a stream that forms a bullish H1 FVG (band [110, 114])
// and then dips into the zone so the full chain fires.
func scenarioBars() []model.Bar {
	var bars []model.Bar
	i := 0
	hour := func(open, high, low, close, vol float64) {
		for m := 0; m < 60; m++ {
			bars = append(bars, mbar(i, open, high, low, close, vol))
			i++
		}
	}

	hour(100, 101, 99, 100, 100) // h0: warmup
	hour(100, 101, 99, 100, 100) // h1
	hour(100, 101, 99, 100, 100) // h2: HTF ATR warm after this closes
	hour(100, 110, 99, 105, 100) // h3: B1, high 110
	hour(110, 113, 110, 112, 300) // h4: B2, displacement up
	hour(114, 116, 114, 115, 100) // h5: B3, low 114 -> gap [110, 114]

	// h6: the h5 close (first bar of h6) creates the pool; then price dips
	// into the band and recovers.
	for m := 0; m < 10; m++ {
		bars = append(bars, mbar(i, 115, 115.2, 114.8, 115, 100))
		i++
	}
	bars = append(bars, mbar(i, 115, 115.2, 111.8, 112, 200)) // zone entry
	i++
	for _, close := range []float64{114, 115, 116, 117, 117.5} {
		bars = append(bars, mbar(i, close-1, close+0.2, close-1.2, close, 150))
		i++
	}
	return bars
}

func newTestEngine() (*Engine, *MemorySink) {
	sink := NewMemorySink()
	met := metrics.New(prometheus.NewRegistry())
	e := NewEngine(testEngineConfig(), sink, sink, met, zerolog.Nop())
	return e, sink
}

func eventTypes(sink *MemorySink) map[string]int {
	counts := map[string]int{}
	for _, ev := range sink.Events {
		counts[ev.Type()]++
	}
	return counts
}

func TestEngine_FullChain(t *testing.T) {
	e, sink := newTestEngine()
	for _, bar := range scenarioBars() {
		require.NoError(t, e.Feed(bar))
	}

	counts := eventTypes(sink)
	assert.GreaterOrEqual(t, counts["bar_closed"], 6)
	require.GreaterOrEqual(t, counts["pool_created"], 1, "expected the FVG pool")
	require.GreaterOrEqual(t, counts["zone_entered"], 1, "expected a zone entry")
	require.GreaterOrEqual(t, counts["signal"], 1, "expected a signal")

	// The h3/h4/h5 gap produces a pool with the exact [110, 114] band.
	var created *model.PoolCreatedEvent
	for _, ev := range sink.Events {
		if c, ok := ev.(*model.PoolCreatedEvent); ok && c.Pool.Bottom == 110.0 {
			created = c
			break
		}
	}
	require.NotNil(t, created, "expected the [110, 114] FVG pool")
	assert.Equal(t, 114.0, created.Pool.Top)
	assert.Equal(t, model.SideBullish, created.Pool.Side)

	// The signal is long out of the bullish zone with the stop at the far
	// boundary of the band.
	require.NotEmpty(t, sink.Intents)
	intent := sink.Intents[0]
	assert.Equal(t, model.Long, intent.Direction)
	assert.InDelta(t, 115.0, intent.EntryPrice, 1e-9)
	assert.InDelta(t, 110.0, intent.StopPrice, 1e-9)
	assert.InDelta(t, 125.0, intent.TakeProfit, 1e-9) // entry + 2*5
	assert.InDelta(t, 20.0, intent.Size, 1e-9)        // 100 risk / 5 stop
}

func TestEngine_StageOrderWithinRun(t *testing.T) {
	e, sink := newTestEngine()
	for _, bar := range scenarioBars() {
		require.NoError(t, e.Feed(bar))
	}

	idx := func(typ string) int {
		for i, ev := range sink.Events {
			if ev.Type() == typ {
				return i
			}
		}
		return -1
	}
	poolIdx, entryIdx, sigIdx := idx("pool_created"), idx("zone_entered"), idx("signal")
	require.NotEqual(t, -1, poolIdx)
	require.NotEqual(t, -1, entryIdx)
	require.NotEqual(t, -1, sigIdx)
	assert.Less(t, poolIdx, entryIdx, "pool lifecycle precedes zone entries")
	assert.Less(t, entryIdx, sigIdx, "zone entries precede signals")
}

func TestEngine_ReplayDeterminism(t *testing.T) {
	// Identical config and bars: the SHA-256 of the ordered event log must
	// be bit-identical across runs.
	run := func() string {
		e, sink := newTestEngine()
		for _, bar := range scenarioBars() {
			require.NoError(t, e.Feed(bar))
		}
		return sink.Digest()
	}
	first := run()
	assert.NotEmpty(t, first)
	assert.Equal(t, first, run())
}

func TestEngine_InvalidBarDropped(t *testing.T) {
	e, sink := newTestEngine()
	require.NoError(t, e.Feed(mbar(0, 100, 101, 99, 100, 100)))

	bad := mbar(1, 100, 99, 101, 100, 100) // high below low
	require.NoError(t, e.Feed(bad))

	var diag *model.DiagnosticEvent
	for _, ev := range sink.Events {
		if d, ok := ev.(*model.DiagnosticEvent); ok {
			diag = d
		}
	}
	require.NotNil(t, diag)
	assert.Equal(t, "invalid_bar", diag.Kind)
}

func TestEngine_SymbolIsolationOnFatal(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Aggregate.OutOfOrderPolicy = aggregate.PolicyRaise
	sink := NewMemorySink()
	met := metrics.New(prometheus.NewRegistry())
	e := NewEngine(cfg, sink, sink, met, zerolog.Nop())

	feedSym := func(sym string, i int) error {
		b := mbar(i, 100, 101, 99, 100, 100)
		b.Symbol = sym
		return e.Feed(b)
	}

	require.NoError(t, feedSym("AAA", 0))
	require.NoError(t, feedSym("AAA", 1))
	require.NoError(t, feedSym("BBB", 5))

	// BBB regresses: fatal for BBB only.
	require.Error(t, feedSym("BBB", 3))
	require.Len(t, e.Failed(), 1)

	// AAA keeps processing; further BBB bars are silently dropped.
	require.NoError(t, feedSym("AAA", 2))
	require.NoError(t, feedSym("BBB", 6))
}

func TestEngine_NoSignalBeforePoolExists(t *testing.T) {
	// Warmup-only stream: no detector hits, no pools, no signals.
	e, sink := newTestEngine()
	for i := 0; i < 120; i++ {
		require.NoError(t, e.Feed(mbar(i, 100, 101, 99, 100, 100)))
	}
	counts := eventTypes(sink)
	assert.Zero(t, counts["pool_created"])
	assert.Zero(t, counts["signal"])
	assert.Empty(t, sink.Intents)
}
