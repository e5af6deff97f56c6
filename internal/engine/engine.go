package engine

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/metrics"
	"liquidity-systemv1/internal/model"
)

// Engine routes bars to shared-nothing per-symbol pipelines. A fatal error
// terminates only the offending symbol; other symbols keep processing.
type Engine struct {
	cfg     Config
	events  EventSink
	intents IntentSink
	met     *metrics.Metrics
	log     zerolog.Logger

	pipelines map[string]*Pipeline
	failed    map[string]error
}

// NewEngine creates the multi-symbol driver.
func NewEngine(cfg Config, events EventSink, intents IntentSink,
	met *metrics.Metrics, log zerolog.Logger) *Engine {

	return &Engine{
		cfg:       cfg,
		events:    events,
		intents:   intents,
		met:       met,
		log:       log.With().Str("comp", "engine").Logger(),
		pipelines: make(map[string]*Pipeline),
		failed:    make(map[string]error),
	}
}

// Feed processes one bar end-to-end before returning. Bars for a failed
// symbol are dropped; the symbol's first fatal error is returned once and
// remembered.
func (e *Engine) Feed(bar model.Bar) error {
	if _, dead := e.failed[bar.Symbol]; dead {
		return nil
	}

	p, ok := e.pipelines[bar.Symbol]
	if !ok {
		p = NewPipeline(bar.Symbol, e.cfg, e.events, e.intents, e.met, e.log)
		e.pipelines[bar.Symbol] = p
	}

	if err := p.Feed(bar); err != nil {
		e.failed[bar.Symbol] = err
		e.log.Error().Err(err).Str("symbol", bar.Symbol).
			Time("bar_ts", bar.TS).Msg("symbol terminated")
		return fmt.Errorf("symbol %s: %w", bar.Symbol, err)
	}
	return nil
}

// Pipeline returns the pipeline for a symbol, if one exists.
func (e *Engine) Pipeline(symbol string) (*Pipeline, bool) {
	p, ok := e.pipelines[symbol]
	return p, ok
}

// Failed returns a copy of the map from each symbol terminated by a fatal
// error to that error.
func (e *Engine) Failed() map[string]error {
	out := make(map[string]error, len(e.failed))
	for k, v := range e.failed {
		out[k] = v
	}
	return out
}

// Symbols returns the known symbols in sorted order.
func (e *Engine) Symbols() []string {
	out := make([]string, 0, len(e.pipelines))
	for s := range e.pipelines {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
