// Package config loads the pipeline configuration from YAML with defaults
// and validation, and maps it onto the typed component configs. The core
// stages never read files or env themselves; this package is the boundary.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"liquidity-systemv1/internal/candidate"
	"liquidity-systemv1/internal/detector"
	"liquidity-systemv1/internal/engine"
	"liquidity-systemv1/internal/indicator"
	"liquidity-systemv1/internal/marketdata/aggregate"
	"liquidity-systemv1/internal/model"
	"liquidity-systemv1/internal/overlap"
	"liquidity-systemv1/internal/pool"
	"liquidity-systemv1/internal/risk"
	"liquidity-systemv1/internal/zone"
)

// Config is the full configuration tree. Field groups mirror the pipeline
// stages; every recognized option lives here.
type Config struct {
	LogLevel    string `yaml:"log_level" default:"info"`
	MetricsAddr string `yaml:"metrics_addr" default:":9090"`

	Equity float64 `yaml:"equity" default:"10000" validate:"gt=0"`

	Aggregation AggregationConfig `yaml:"aggregation"`
	Indicators  IndicatorsConfig  `yaml:"indicators"`
	Detectors   DetectorsConfig   `yaml:"detectors"`
	Pools       PoolsConfig       `yaml:"pools"`
	HLZ         HLZConfig         `yaml:"hlz"`
	ZoneWatcher ZoneWatcherConfig `yaml:"zone_watcher"`
	Candidate   CandidateConfig   `yaml:"candidate"`
	Risk        RiskConfig        `yaml:"risk"`

	// Optional sink endpoints (external collaborators).
	RedisAddr   string `yaml:"redis_addr"`
	RedisStream string `yaml:"redis_stream" default:"pipeline:events"`
	WebhookURL  string `yaml:"webhook_url"`
}

// AggregationConfig mirrors the aggregation.* options.
type AggregationConfig struct {
	SourceTFMinutes  int    `yaml:"source_tf_minutes" default:"1" validate:"gt=0"`
	TargetTFMinutes  []int  `yaml:"target_timeframes_minutes" default:"[60,240,1440]" validate:"min=1"`
	BufferSize       int    `yaml:"buffer_size" default:"1500" validate:"gt=0"`
	OutOfOrderPolicy string `yaml:"out_of_order_policy" default:"drop"`
	MaxClockSkewSecs int    `yaml:"max_clock_skew_seconds" default:"300" validate:"gte=0"`
	StrictOrdering   bool   `yaml:"enable_strict_ordering" default:"true"`
}

// IndicatorsConfig mirrors the indicators.* options.
type IndicatorsConfig struct {
	EMAFastPeriod     int     `yaml:"ema_fast_period" default:"21" validate:"gt=0"`
	EMASlowPeriod     int     `yaml:"ema_slow_period" default:"50" validate:"gt=0"`
	ATRPeriod         int     `yaml:"atr_period" default:"14" validate:"gt=0"`
	VolumeSMAPeriod   int     `yaml:"volume_sma_period" default:"20" validate:"gt=0"`
	RegimeSensitivity float64 `yaml:"regime_sensitivity" default:"0.001" validate:"gte=0"`
	ATRFloor          float64 `yaml:"atr_floor" default:"0.00001" validate:"gt=0"`
}

// DetectorsConfig mirrors the detectors.* options.
type DetectorsConfig struct {
	FVG struct {
		MinGapATR float64 `yaml:"min_gap_atr" default:"0.3" validate:"gte=0"`
		MinGapPct float64 `yaml:"min_gap_pct" default:"0.05" validate:"gte=0"`
		MinRelVol float64 `yaml:"min_rel_vol" default:"1.2" validate:"gte=0"`
	} `yaml:"fvg"`
	Pivot struct {
		Lookback int     `yaml:"lookback" default:"5" validate:"gte=2,lte=10"`
		MinSigma float64 `yaml:"min_sigma" default:"0.5" validate:"gte=0"`
		BandATR  float64 `yaml:"band_atr" default:"0.1" validate:"gt=0"`
	} `yaml:"pivot"`
	OutOfOrderPolicy string `yaml:"out_of_order_policy" default:"drop"`
	EnabledTFMinutes []int  `yaml:"enabled_timeframes"` // empty = all targets
	ATRPeriod        int    `yaml:"atr_period" default:"14" validate:"gt=0"`
	VolumeSMAPeriod  int    `yaml:"volume_sma_period" default:"20" validate:"gt=0"`
}

// TFPoolConfig is one timeframe's pools.<tf>.* group.
type TFPoolConfig struct {
	TTL           string  `yaml:"ttl" validate:"required"`
	HitTolerance  float64 `yaml:"hit_tolerance" default:"0" validate:"gte=0"`
	StrengthFloor float64 `yaml:"strength_floor" default:"0.1" validate:"gte=0"`
}

// PoolsConfig mirrors the pools.* options.
type PoolsConfig struct {
	PerTF             map[string]TFPoolConfig `yaml:"per_tf"`
	DefaultTTL        string                  `yaml:"default_ttl" default:"2h"`
	StrengthThreshold float64                 `yaml:"strength_threshold" default:"0.1" validate:"gte=0"`
	GracePeriod       string                  `yaml:"grace_period" default:"5m"`
	MaxPoolsPerTF     int                     `yaml:"max_pools_per_tf" default:"10000" validate:"gt=0"`
}

// HLZConfig mirrors the hlz.* options.
type HLZConfig struct {
	MinMembers        int                `yaml:"min_members" default:"2" validate:"gte=2"`
	MinStrength       float64            `yaml:"min_strength" default:"3.0" validate:"gte=0"`
	MergeTolerance    float64            `yaml:"merge_tolerance" default:"0.5" validate:"gte=0"`
	SideMixing        bool               `yaml:"side_mixing" default:"false"`
	MaxActiveHLZs     int                `yaml:"max_active_hlzs" default:"1000" validate:"gt=0"`
	RecomputeOnUpdate bool               `yaml:"recompute_on_update" default:"true"`
	DropTouched       bool               `yaml:"drop_touched" default:"false"`
	TFWeight          map[string]float64 `yaml:"tf_weight"`
}

// ZoneWatcherConfig mirrors the zone_watcher.* options.
type ZoneWatcherConfig struct {
	PriceTolerance float64 `yaml:"price_tolerance" default:"0" validate:"gte=0"`
	ConfirmClosure bool    `yaml:"confirm_closure" default:"false"`
	MinStrength    float64 `yaml:"min_strength" default:"1.0" validate:"gte=0"`
	MaxActiveZones int     `yaml:"max_active_zones" default:"1000" validate:"gt=0"`
}

// CandidateConfig mirrors the candidate.* options.
type CandidateConfig struct {
	Expiry  string `yaml:"expiry" default:"2h"`
	Filters struct {
		EMAAlignment     bool     `yaml:"ema_alignment" default:"true"`
		EMATolerancePct  float64  `yaml:"ema_tolerance_pct" default:"0" validate:"gte=0"`
		VolumeMultiple   float64  `yaml:"volume_multiple" default:"1.2" validate:"gte=0"`
		Sessions         []string `yaml:"sessions"`
		SessionWindows   []string `yaml:"session_windows"` // custom "HH:MM-HH:MM"
		ExcludeLowVolume bool     `yaml:"exclude_low_volume" default:"false"`
		Regime           []string `yaml:"regime"`
		MinEntrySpacing  string   `yaml:"min_entry_spacing" default:"30m"`
	} `yaml:"filters"`
	SwingLookback int `yaml:"swing_lookback" default:"10" validate:"gte=0"`
}

// RiskConfig mirrors the risk.* options.
type RiskConfig struct {
	RiskPerTrade   float64 `yaml:"risk_per_trade" default:"0.01" validate:"gt=0,lte=1"`
	SLATRMultiple  float64 `yaml:"sl_atr_multiple" default:"1.5" validate:"gt=0"`
	TPRR           float64 `yaml:"tp_rr" default:"2.0" validate:"gt=0"`
	MinPosition    float64 `yaml:"min_position" default:"0.0001" validate:"gte=0"`
	MaxPositionPct float64 `yaml:"max_position_pct" default:"0.25" validate:"gt=0,lte=1"`
	MinEquity      float64 `yaml:"min_equity" default:"100" validate:"gte=0"`
	Slippage       struct {
		EntryPct float64 `yaml:"entry_pct" default:"0" validate:"gte=0"`
		ExitPct  float64 `yaml:"exit_pct" default:"0" validate:"gte=0"`
	} `yaml:"slippage"`
}

// Load reads, defaults and validates a YAML config file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config read: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config parse: %w", err)
		}
	}
	// Env overrides for deployment endpoints.
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the tree beyond struct tags: policies, timeframes,
// durations, sessions.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validate: %w", err)
	}

	for _, p := range []string{c.Aggregation.OutOfOrderPolicy, c.Detectors.OutOfOrderPolicy} {
		switch p {
		case "drop", "raise":
		case "recalc":
			// Recalculation semantics are not defined; refuse rather than
			// guess which events would be retracted.
			return fmt.Errorf("out_of_order_policy %q is not supported, use drop or raise", p)
		default:
			return fmt.Errorf("unknown out_of_order_policy %q", p)
		}
	}

	if _, err := c.targets(); err != nil {
		return err
	}
	for name := range c.Pools.PerTF {
		if _, err := tfByName(name); err != nil {
			return err
		}
	}
	for name := range c.HLZ.TFWeight {
		if _, err := tfByName(name); err != nil {
			return err
		}
	}
	for _, r := range c.Candidate.Filters.Regime {
		if _, ok := model.ParseRegime(r); !ok {
			return fmt.Errorf("unknown regime %q", r)
		}
	}
	sessions := candidate.SessionConfig{Sessions: c.Candidate.Filters.Sessions}
	if err := sessions.Validate(); err != nil {
		return err
	}
	for _, w := range c.Candidate.Filters.SessionWindows {
		if _, err := candidate.ParseWindow(w); err != nil {
			return err
		}
	}
	for _, d := range []string{c.Pools.DefaultTTL, c.Pools.GracePeriod,
		c.Candidate.Expiry, c.Candidate.Filters.MinEntrySpacing} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("bad duration %q: %w", d, err)
		}
	}
	for name, tf := range c.Pools.PerTF {
		if _, err := time.ParseDuration(tf.TTL); err != nil {
			return fmt.Errorf("pools.%s.ttl: %w", name, err)
		}
	}
	return nil
}

// Pipeline maps the loaded tree onto the engine's component configs.
func (c *Config) Pipeline() (engine.Config, error) {
	targets, err := c.targets()
	if err != nil {
		return engine.Config{}, err
	}

	var detectorTFs []model.Timeframe
	for _, m := range c.Detectors.EnabledTFMinutes {
		tf, err := model.TimeframeFromMinutes(m)
		if err != nil {
			return engine.Config{}, err
		}
		detectorTFs = append(detectorTFs, tf)
	}

	policies := make(map[model.Timeframe]pool.TFPolicy, len(c.Pools.PerTF))
	for name, pc := range c.Pools.PerTF {
		tf, err := tfByName(name)
		if err != nil {
			return engine.Config{}, err
		}
		ttl, err := time.ParseDuration(pc.TTL)
		if err != nil {
			return engine.Config{}, err
		}
		policies[tf] = pool.TFPolicy{
			TTL:           ttl,
			HitTolerance:  pc.HitTolerance,
			StrengthFloor: maxFloat(pc.StrengthFloor, c.Pools.StrengthThreshold),
		}
	}
	defaultTTL, _ := time.ParseDuration(c.Pools.DefaultTTL)
	grace, _ := time.ParseDuration(c.Pools.GracePeriod)
	expiry, _ := time.ParseDuration(c.Candidate.Expiry)
	spacing, _ := time.ParseDuration(c.Candidate.Filters.MinEntrySpacing)

	tfWeight := make(map[model.Timeframe]float64, len(c.HLZ.TFWeight))
	for name, w := range c.HLZ.TFWeight {
		tf, err := tfByName(name)
		if err != nil {
			return engine.Config{}, err
		}
		tfWeight[tf] = w
	}

	var regimeLong []model.Regime
	for _, r := range c.Candidate.Filters.Regime {
		reg, _ := model.ParseRegime(r)
		regimeLong = append(regimeLong, reg)
	}
	var windows []candidate.Window
	for _, w := range c.Candidate.Filters.SessionWindows {
		win, err := candidate.ParseWindow(w)
		if err != nil {
			return engine.Config{}, err
		}
		windows = append(windows, win)
	}

	sourceTF, err := model.TimeframeFromMinutes(c.Aggregation.SourceTFMinutes)
	if err != nil {
		return engine.Config{}, err
	}

	return engine.Config{
		Aggregate: aggregate.Config{
			SourceTF:         sourceTF,
			Targets:          targets,
			OutOfOrderPolicy: aggregate.Policy(c.Aggregation.OutOfOrderPolicy),
			MaxClockSkew:     time.Duration(c.Aggregation.MaxClockSkewSecs) * time.Second,
			StrictOrdering:   c.Aggregation.StrictOrdering,
		},
		Indicators: indicator.PackConfig{
			EMAFastPeriod:     c.Indicators.EMAFastPeriod,
			EMASlowPeriod:     c.Indicators.EMASlowPeriod,
			ATRPeriod:         c.Indicators.ATRPeriod,
			VolumeSMAPeriod:   c.Indicators.VolumeSMAPeriod,
			RegimeSensitivity: c.Indicators.RegimeSensitivity,
			ATRFloor:          c.Indicators.ATRFloor,
		},
		Detectors: detector.Config{
			FVG: detector.FVGConfig{
				MinGapATR: c.Detectors.FVG.MinGapATR,
				MinGapPct: c.Detectors.FVG.MinGapPct,
				MinRelVol: c.Detectors.FVG.MinRelVol,
			},
			Pivot: detector.PivotConfig{
				Lookback: c.Detectors.Pivot.Lookback,
				MinSigma: c.Detectors.Pivot.MinSigma,
				BandATR:  c.Detectors.Pivot.BandATR,
			},
			OutOfOrderPolicy: aggregate.Policy(c.Detectors.OutOfOrderPolicy),
			ATRPeriod:        c.Detectors.ATRPeriod,
			VolumeSMAPeriod:  c.Detectors.VolumeSMAPeriod,
			ATRFloor:         c.Indicators.ATRFloor,
		},
		DetectorTFs: detectorTFs,
		Registry: pool.Config{
			TFPolicies:    policies,
			DefaultTTL:    defaultTTL,
			GracePeriod:   grace,
			MaxPoolsPerTF: c.Pools.MaxPoolsPerTF,
		},
		Overlap: overlap.Config{
			MinMembers:        c.HLZ.MinMembers,
			MinStrength:       c.HLZ.MinStrength,
			TFWeight:          tfWeight,
			MergeTolerance:    c.HLZ.MergeTolerance,
			SideMixing:        c.HLZ.SideMixing,
			MaxActiveHLZs:     c.HLZ.MaxActiveHLZs,
			RecomputeOnUpdate: c.HLZ.RecomputeOnUpdate,
			DropTouched:       c.HLZ.DropTouched,
		},
		Zone: zone.Config{
			PriceTolerance: c.ZoneWatcher.PriceTolerance,
			ConfirmClosure: c.ZoneWatcher.ConfirmClosure,
			MinStrength:    c.ZoneWatcher.MinStrength,
			MaxActiveZones: c.ZoneWatcher.MaxActiveZones,
		},
		Candidate: candidate.Config{
			Expiry:          expiry,
			EMAAlignment:    c.Candidate.Filters.EMAAlignment,
			EMATolerancePct: c.Candidate.Filters.EMATolerancePct,
			VolumeMultiple:  c.Candidate.Filters.VolumeMultiple,
			Sessions: candidate.SessionConfig{
				Sessions:         c.Candidate.Filters.Sessions,
				Custom:           windows,
				ExcludeLowVolume: c.Candidate.Filters.ExcludeLowVolume,
			},
			RegimeLong:      regimeLong,
			MinEntrySpacing: spacing,
			SwingLookback:   c.Candidate.SwingLookback,
		},
		Risk: risk.Config{
			RiskPerTrade:     c.Risk.RiskPerTrade,
			SLATRMultiple:    c.Risk.SLATRMultiple,
			TPRR:             c.Risk.TPRR,
			MinPosition:      c.Risk.MinPosition,
			MaxPositionPct:   c.Risk.MaxPositionPct,
			EntrySlippagePct: c.Risk.Slippage.EntryPct,
			ExitSlippagePct:  c.Risk.Slippage.ExitPct,
			MinEquity:        c.Risk.MinEquity,
		},
		InitialEquity: c.Equity,
		RecentBars:    c.Aggregation.BufferSize,
	}, nil
}

func (c *Config) targets() ([]model.Timeframe, error) {
	targets := make([]model.Timeframe, 0, len(c.Aggregation.TargetTFMinutes))
	for _, m := range c.Aggregation.TargetTFMinutes {
		tf, err := model.TimeframeFromMinutes(m)
		if err != nil {
			return nil, err
		}
		if tf <= model.Timeframe(c.Aggregation.SourceTFMinutes) {
			return nil, fmt.Errorf("target timeframe %s must exceed the source timeframe", tf)
		}
		targets = append(targets, tf)
	}
	return targets, nil
}

func tfByName(name string) (model.Timeframe, error) {
	for _, tf := range []model.Timeframe{model.M1, model.M5, model.M15, model.M30, model.H1, model.H4, model.D1} {
		if tf.Name() == name {
			return tf, nil
		}
	}
	return 0, fmt.Errorf("unknown timeframe %q", name)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
