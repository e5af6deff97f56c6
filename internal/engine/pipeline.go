// Package engine wires the stages into the per-symbol pipeline and drives
// one bar end-to-end before accepting the next. Within a bar the stage order
// is fixed: indicator update, closed HTF emission, detector candidates, pool
// lifecycle, HLZ maintenance, zone entries, candidate transitions, signals,
// sizing. The whole path is single-threaded and deterministic.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/candidate"
	"liquidity-systemv1/internal/detector"
	"liquidity-systemv1/internal/indicator"
	"liquidity-systemv1/internal/marketdata/aggregate"
	"liquidity-systemv1/internal/metrics"
	"liquidity-systemv1/internal/model"
	"liquidity-systemv1/internal/overlap"
	"liquidity-systemv1/internal/pool"
	"liquidity-systemv1/internal/ringbuf"
	"liquidity-systemv1/internal/risk"
	"liquidity-systemv1/internal/zone"
)

// Config assembles every stage's settings for one symbol pipeline.
type Config struct {
	Aggregate     aggregate.Config
	Indicators    indicator.PackConfig
	Detectors     detector.Config
	DetectorTFs   []model.Timeframe // subset of aggregate targets; nil = all
	Registry      pool.Config
	Overlap       overlap.Config
	Zone          zone.Config
	Candidate     candidate.Config
	Risk          risk.Config
	InitialEquity float64
	RecentBars    int // ring capacity for the swing lookback
}

// Pipeline processes bars for a single symbol. Shared-nothing: a symbol owns
// every stage instance.
type Pipeline struct {
	symbol string
	cfg    Config

	indicators *indicator.Pack
	agg        *aggregate.Aggregator
	detectors  map[model.Timeframe]*detector.Set
	registry   *pool.Registry
	overlap    *overlap.Engine
	watcher    *zone.Watcher
	fsm        *candidate.FSM
	sizer      *risk.Sizer

	candidates []*candidate.Candidate
	recent     *ringbuf.Ring[model.Bar]
	lastSnap   model.IndicatorSnapshot
	equity     float64
	started    bool

	events  EventSink
	intents IntentSink
	met     *metrics.Metrics
	log     zerolog.Logger
}

// NewPipeline builds a pipeline for one symbol. The registry's clock anchors
// on the first bar fed, so construction itself takes no time source.
func NewPipeline(symbol string, cfg Config, events EventSink, intents IntentSink,
	met *metrics.Metrics, log zerolog.Logger) *Pipeline {

	plog := log.With().Str("symbol", symbol).Logger()
	p := &Pipeline{
		symbol:     symbol,
		cfg:        cfg,
		indicators: indicator.NewPack(cfg.Indicators),
		agg:        aggregate.New(cfg.Aggregate, plog),
		detectors:  make(map[model.Timeframe]*detector.Set),
		watcher:    zone.New(cfg.Zone, plog),
		fsm:        candidate.NewFSM(cfg.Candidate, plog),
		sizer:      risk.New(cfg.Risk, plog),
		recent:     ringbuf.New[model.Bar](max(cfg.RecentBars, cfg.Candidate.SwingLookback)),
		equity:     cfg.InitialEquity,
		events:     events,
		intents:    intents,
		met:        met,
		log:        plog.With().Str("comp", "pipeline").Logger(),
	}

	tfs := cfg.DetectorTFs
	if tfs == nil {
		tfs = cfg.Aggregate.Targets
	}
	for _, tf := range tfs {
		p.detectors[tf] = detector.NewSet(tf, cfg.Detectors, plog)
	}
	return p
}

// Feed runs one base bar through every stage. Recoverable conditions surface
// as diagnostics and metrics; a returned error is fatal for this symbol.
func (p *Pipeline) Feed(bar model.Bar) error {
	if err := bar.Validate(); err != nil {
		p.met.BarsInvalidTotal.WithLabelValues(p.symbol).Inc()
		p.events.Emit(&model.DiagnosticEvent{
			TS: bar.TS, Stage: "ingress", Kind: "invalid_bar", Detail: err.Error(),
		})
		return nil
	}

	if !p.started {
		// Anchor the registry clock on the first bar.
		p.registry = pool.New(p.cfg.Registry, bar.TS, p.log)
		p.overlap = overlap.New(p.cfg.Overlap, p.registry, p.log)
		p.overlap.OnCapacity = func() {
			p.met.CapacityExceededTotal.WithLabelValues(p.symbol, "hlz").Inc()
		}
		p.watcher.OnCapacity = func() {
			p.met.CapacityExceededTotal.WithLabelValues(p.symbol, "zones").Inc()
		}
		p.agg.OnOutOfOrder = func(b model.Bar) {
			p.met.AggregatorDropped.WithLabelValues(p.symbol).Inc()
			p.events.Emit(&model.DiagnosticEvent{
				TS: b.TS, Stage: "aggregate", Kind: "out_of_order", Detail: "bar dropped",
			})
		}
		p.started = true
	}

	p.met.BarsInTotal.WithLabelValues(p.symbol).Inc()

	// 1. Indicators advance first; every decision on this bar sees the
	//    post-update snapshot.
	stageStart := time.Now()
	snap := p.indicators.Update(bar)
	p.lastSnap = snap
	p.observe("indicators", stageStart)

	// 2. Close higher-timeframe buckets.
	stageStart = time.Now()
	closed, err := p.agg.Update(bar)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	p.observe("aggregate", stageStart)

	// 3. Detectors run on closed HTF bars; candidates become pools.
	for _, c := range closed {
		p.met.AggregatorEmitted.WithLabelValues(p.symbol, c.TF.Name()).Inc()
		p.events.Emit(&model.BarClosedEvent{TF: c.TF, Bar: c.Bar})

		det, ok := p.detectors[c.TF]
		if !ok {
			continue
		}
		cands, err := det.Update(c.Bar)
		if err != nil {
			return fmt.Errorf("detector %s: %w", c.TF.Name(), err)
		}
		for _, cand := range cands {
			if err := p.createPool(cand); err != nil {
				return err
			}
		}
	}

	// 4. Pool lifecycle: expiries, then touches at the bar close.
	stageStart = time.Now()
	for _, ev := range p.registry.AdvanceTime(bar.TS) {
		p.met.PoolsExpiredTotal.WithLabelValues(p.symbol, poolTF(p, ev.PoolID)).Inc()
		p.events.Emit(ev)
		p.routeHLZ(p.overlap.OnPoolExpired(ev.PoolID, ev.TS))
		p.watcher.OnPoolExpired(ev.PoolID)
	}
	for _, ev := range p.registry.OnPrice(bar.TS, bar.Close) {
		p.events.Emit(ev)
		p.routeHLZ(p.overlap.OnPoolTouched(ev.PoolID, ev.TS))
	}
	p.observe("lifecycle", stageStart)

	// 5. Zone entries spawn candidates.
	stageStart = time.Now()
	for _, entry := range p.watcher.OnBar(bar) {
		p.met.ZoneEntriesTotal.WithLabelValues(p.symbol, string(entry.ZoneKind)).Inc()
		p.events.Emit(entry)

		c := p.fsm.Spawn(entry)
		p.candidates = append(p.candidates, c)
		p.met.CandidatesSpawnedTotal.WithLabelValues(p.symbol).Inc()
		p.events.Emit(&model.CandidateEvent{
			CandidateID: c.ID, ZoneID: c.ZoneID, TS: bar.TS, State: c.State.String(),
		})
	}

	p.observe("zones", stageStart)

	// 6. Advance candidates; READY ones produce signals and sized intents.
	stageStart = time.Now()
	kept := p.candidates[:0]
	for _, c := range p.candidates {
		res := p.fsm.Process(c, bar, snap, p.recent)
		switch {
		case res.Expired:
			p.met.CandidatesExpiredTotal.WithLabelValues(p.symbol).Inc()
			p.events.Emit(&model.CandidateEvent{
				CandidateID: c.ID, ZoneID: c.ZoneID, TS: bar.TS, State: c.State.String(),
			})
		case res.Signal != nil:
			p.met.CandidatesReadyTotal.WithLabelValues(p.symbol).Inc()
			p.events.Emit(&model.CandidateEvent{
				CandidateID: c.ID, ZoneID: c.ZoneID, TS: bar.TS, State: c.State.String(),
			})
			p.events.Emit(res.Signal)
			p.size(res.Signal, snap)
		default:
			kept = append(kept, c)
		}
	}
	p.candidates = kept
	p.observe("candidates", stageStart)

	// 7. The bar joins the swing lookback only after every decision on it.
	p.recent.Push(bar)
	p.updateGauges()
	return nil
}

// observe records wall-clock stage latency. Metrics never feed back into
// pipeline state, so timing does not affect determinism.
func (p *Pipeline) observe(stage string, start time.Time) {
	p.met.StageLatency.WithLabelValues(p.symbol, stage).
		Observe(float64(time.Since(start).Nanoseconds()))
}

func (p *Pipeline) createPool(cand *model.PoolCandidateEvent) error {
	created, err := p.registry.Create(cand)
	if err != nil {
		var capErr *model.CapacityError
		if errors.As(err, &capErr) {
			p.met.CapacityExceededTotal.WithLabelValues(p.symbol, capErr.Scope).Inc()
			p.events.Emit(&model.DiagnosticEvent{
				TS: cand.TS, Stage: "registry", Kind: "capacity_exceeded", Detail: capErr.Scope,
			})
			return nil
		}
		return fmt.Errorf("registry: %w", err)
	}
	if created == nil {
		return nil
	}

	p.met.PoolsCreatedTotal.WithLabelValues(p.symbol, cand.TF.Name(), cand.Kind).Inc()
	p.events.Emit(created)

	if live, ok := p.registry.Get(created.PoolID); ok {
		p.routeHLZ(p.overlap.OnPoolCreated(live, created.TS))
	}
	p.watcher.OnPoolCreated(created)
	return nil
}

// routeHLZ forwards overlap-engine output to the sink and the zone watcher.
func (p *Pipeline) routeHLZ(events []model.Event) {
	for _, ev := range events {
		p.events.Emit(ev)
		switch e := ev.(type) {
		case *model.HLZCreatedEvent:
			p.met.HLZCreatedTotal.WithLabelValues(p.symbol).Inc()
			p.watcher.OnHLZCreated(e)
		case *model.HLZUpdatedEvent:
			p.watcher.OnHLZUpdated(e)
		case *model.HLZDissolvedEvent:
			p.met.HLZDissolvedTotal.WithLabelValues(p.symbol).Inc()
			p.watcher.OnHLZDissolved(e.HLZID)
		}
	}
}

func (p *Pipeline) size(sig *model.Signal, snap model.IndicatorSnapshot) {
	intent, rejected := p.sizer.Size(sig, p.equity, snap)
	if rejected != nil {
		p.met.SignalsRejectedTotal.WithLabelValues(p.symbol, rejected.Reason).Inc()
		p.intents.EmitRejected(rejected)
		return
	}
	p.met.SignalsEmittedTotal.WithLabelValues(p.symbol).Inc()
	p.intents.EmitIntent(intent)
}

func (p *Pipeline) updateGauges() {
	for _, tf := range p.cfg.Aggregate.Targets {
		p.met.ActivePools.WithLabelValues(p.symbol, tf.Name()).
			Set(float64(len(p.registry.QueryActiveTF(tf))))
		p.met.TouchedPools.WithLabelValues(p.symbol, tf.Name()).
			Set(float64(p.registry.TouchedCountTF(tf)))
	}
	p.met.HLZActive.WithLabelValues(p.symbol).Set(float64(len(p.overlap.ActiveHLZs())))
}

// Snapshot returns the indicator state after the last fed bar.
func (p *Pipeline) Snapshot() model.IndicatorSnapshot { return p.lastSnap }

// Equity returns the account equity used for sizing.
func (p *Pipeline) Equity() float64 { return p.equity }

// SetEquity updates the equity between bars (broker feedback loop).
func (p *Pipeline) SetEquity(equity float64) { p.equity = equity }

func poolTF(p *Pipeline, poolID string) string {
	if pl, ok := p.registry.Get(poolID); ok {
		return pl.TF.Name()
	}
	return "unknown"
}
