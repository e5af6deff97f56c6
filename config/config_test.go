package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidity-systemv1/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.Aggregation.SourceTFMinutes)
	assert.Equal(t, []int{60, 240, 1440}, cfg.Aggregation.TargetTFMinutes)
	assert.Equal(t, "drop", cfg.Aggregation.OutOfOrderPolicy)
	assert.Equal(t, 21, cfg.Indicators.EMAFastPeriod)
	assert.Equal(t, 0.3, cfg.Detectors.FVG.MinGapATR)
	assert.Equal(t, 2, cfg.HLZ.MinMembers)

	pc, err := cfg.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, []model.Timeframe{model.H1, model.H4, model.D1}, pc.Aggregate.Targets)
	assert.Equal(t, 2*time.Hour, pc.Candidate.Expiry)
	assert.Equal(t, 10000.0, pc.InitialEquity)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
aggregation:
  target_timeframes_minutes: [60, 240]
  out_of_order_policy: raise
pools:
  per_tf:
    H1:
      ttl: 120m
      hit_tolerance: 0.5
    H4:
      ttl: 6h
hlz:
  tf_weight:
    H1: 1.0
    H4: 2.0
candidate:
  expiry: 90m
  filters:
    sessions: [london, newyork]
    volume_multiple: 1.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	pc, err := cfg.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, []model.Timeframe{model.H1, model.H4}, pc.Aggregate.Targets)
	assert.Equal(t, 2*time.Hour, pc.Registry.TFPolicies[model.H1].TTL)
	assert.Equal(t, 0.5, pc.Registry.TFPolicies[model.H1].HitTolerance)
	assert.Equal(t, 6*time.Hour, pc.Registry.TFPolicies[model.H4].TTL)
	assert.Equal(t, 90*time.Minute, pc.Candidate.Expiry)
	assert.Equal(t, 1.5, pc.Candidate.VolumeMultiple)
	assert.Equal(t, 2.0, pc.Overlap.TFWeight[model.H4])
}

func TestLoad_RejectsRecalcPolicy(t *testing.T) {
	path := writeConfig(t, `
aggregation:
  out_of_order_policy: recalc
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recalc")
}

func TestLoad_RejectsUnknownTimeframe(t *testing.T) {
	path := writeConfig(t, `
aggregation:
  target_timeframes_minutes: [90]
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsUnknownSession(t *testing.T) {
	path := writeConfig(t, `
candidate:
  filters:
    sessions: [tokyo]
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
candidate:
  expiry: soon
`)
	_, err := Load(path)
	require.Error(t, err)
}
