package model

import (
	"encoding/json"
	"time"
)

// Event is the common surface of everything the pipeline emits. Events are
// immutable, carry the driving bar's timestamp, and are delivered in the
// fixed per-bar stage order (indicators, closed HTF bars, pool lifecycle,
// HLZ changes, zone entries, candidate transitions, signals).
type Event interface {
	Type() string
	EventTS() time.Time
}

// MarshalEvent returns the canonical JSON payload used for event-log hashing.
// Struct field order is fixed, so identical events serialize identically.
func MarshalEvent(e Event) []byte {
	buf, _ := json.Marshal(e)
	return buf
}

// Direction is a trading signal direction.
type Direction int8

const (
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	if d == Short {
		return "short"
	}
	return "long"
}

// ZoneKind distinguishes single pools from overlap zones.
type ZoneKind string

const (
	ZonePool ZoneKind = "pool"
	ZoneHLZ  ZoneKind = "hlz"
)

// BarClosedEvent is emitted for every closed higher-timeframe bar.
type BarClosedEvent struct {
	TF  Timeframe `json:"tf"`
	Bar Bar       `json:"bar"`
}

func (e *BarClosedEvent) Type() string       { return "bar_closed" }
func (e *BarClosedEvent) EventTS() time.Time { return e.Bar.TS }

// PoolCandidateEvent is a detector hit that may become a pool. Kind is the
// detector that produced it ("fvg" or "pivot").
type PoolCandidateEvent struct {
	TS       time.Time `json:"ts"`
	TF       Timeframe `json:"tf"`
	Kind     string    `json:"kind"`
	Side     Side      `json:"side"`
	Top      float64   `json:"top"`
	Bottom   float64   `json:"bottom"`
	Strength float64   `json:"strength"` // normalized to [0, 1]
}

func (e *PoolCandidateEvent) Type() string       { return "pool_candidate" }
func (e *PoolCandidateEvent) EventTS() time.Time { return e.TS }

// PoolCreatedEvent is emitted when the registry accepts a pool.
type PoolCreatedEvent struct {
	PoolID string    `json:"pool_id"`
	TS     time.Time `json:"ts"`
	Pool   Pool      `json:"pool"`
}

func (e *PoolCreatedEvent) Type() string       { return "pool_created" }
func (e *PoolCreatedEvent) EventTS() time.Time { return e.TS }

// PoolTouchedEvent is emitted when price enters an active pool's band.
type PoolTouchedEvent struct {
	PoolID     string    `json:"pool_id"`
	TS         time.Time `json:"ts"`
	TouchPrice float64   `json:"touch_price"`
}

func (e *PoolTouchedEvent) Type() string       { return "pool_touched" }
func (e *PoolTouchedEvent) EventTS() time.Time { return e.TS }

// PoolExpiredEvent is emitted when a pool's TTL elapses.
type PoolExpiredEvent struct {
	PoolID     string    `json:"pool_id"`
	TS         time.Time `json:"ts"`
	FinalState PoolState `json:"final_state"` // state before expiry
}

func (e *PoolExpiredEvent) Type() string       { return "pool_expired" }
func (e *PoolExpiredEvent) EventTS() time.Time { return e.TS }

// HLZCreatedEvent is emitted when enough pools overlap to form a zone.
type HLZCreatedEvent struct {
	HLZID string    `json:"hlz_id"`
	TS    time.Time `json:"ts"`
	HLZ   HLZ       `json:"hlz"`
}

func (e *HLZCreatedEvent) Type() string       { return "hlz_created" }
func (e *HLZCreatedEvent) EventTS() time.Time { return e.TS }

// HLZUpdatedEvent is emitted when an HLZ's membership or strength changes.
type HLZUpdatedEvent struct {
	HLZID        string    `json:"hlz_id"`
	TS           time.Time `json:"ts"`
	HLZ          HLZ       `json:"hlz"`
	PrevStrength float64   `json:"prev_strength"`
}

func (e *HLZUpdatedEvent) Type() string       { return "hlz_updated" }
func (e *HLZUpdatedEvent) EventTS() time.Time { return e.TS }

// HLZDissolvedEvent is emitted the same bar membership drops below threshold.
type HLZDissolvedEvent struct {
	HLZID            string    `json:"hlz_id"`
	TS               time.Time `json:"ts"`
	FinalMemberCount int       `json:"final_member_count"`
}

func (e *HLZDissolvedEvent) Type() string       { return "hlz_dissolved" }
func (e *HLZDissolvedEvent) EventTS() time.Time { return e.TS }

// ZoneEnteredEvent is emitted when a bar first enters a tracked zone.
type ZoneEnteredEvent struct {
	ZoneID     string    `json:"zone_id"`
	ZoneKind   ZoneKind  `json:"zone_kind"`
	EntryTS    time.Time `json:"entry_ts"`
	EntryPrice float64   `json:"entry_price"`
	Side       Side      `json:"side"`
	Top        float64   `json:"top"`
	Bottom     float64   `json:"bottom"`
	Strength   float64   `json:"strength"`
	TF         Timeframe `json:"tf,omitempty"` // zero for HLZ zones
}

func (e *ZoneEnteredEvent) Type() string       { return "zone_entered" }
func (e *ZoneEnteredEvent) EventTS() time.Time { return e.EntryTS }

// CandidateEvent records a candidate FSM transition.
type CandidateEvent struct {
	CandidateID string    `json:"candidate_id"`
	ZoneID      string    `json:"zone_id"`
	TS          time.Time `json:"ts"`
	State       string    `json:"state"`
}

func (e *CandidateEvent) Type() string       { return "candidate" }
func (e *CandidateEvent) EventTS() time.Time { return e.TS }

// Signal is a fully filtered trading signal, pre-sizing.
type Signal struct {
	ID           string    `json:"id"`
	Direction    Direction `json:"direction"`
	EntryHint    float64   `json:"entry_hint_price"`
	StopHint     float64   `json:"stop_hint_price"`
	IssuedAt     time.Time `json:"issued_at"`
	SourceZoneID string    `json:"source_zone_id"`
	ZoneKind     ZoneKind  `json:"zone_kind"`
	Strength     float64   `json:"strength"`
}

func (s *Signal) Type() string       { return "signal" }
func (s *Signal) EventTS() time.Time { return s.IssuedAt }

// OrderIntent is a sized order handed to the broker layer. The pipeline never
// executes it.
type OrderIntent struct {
	SignalID   string    `json:"signal_id"`
	Direction  Direction `json:"direction"`
	Size       float64   `json:"size"`
	EntryPrice float64   `json:"entry_price"`
	StopPrice  float64   `json:"stop_price"`
	TakeProfit float64   `json:"take_profit_price"`
	RiskAmount float64   `json:"risk_amount"`
	TS         time.Time `json:"ts"`
}

func (o *OrderIntent) Type() string       { return "order_intent" }
func (o *OrderIntent) EventTS() time.Time { return o.TS }

// RejectedIntent is emitted instead of an OrderIntent when sizing refuses.
type RejectedIntent struct {
	SignalID string    `json:"signal_id"`
	Reason   string    `json:"reason"`
	TS       time.Time `json:"ts"`
}

func (r *RejectedIntent) Type() string       { return "rejected" }
func (r *RejectedIntent) EventTS() time.Time { return r.TS }

// DiagnosticEvent reports a recoverable error (drop, refused create) without
// interrupting the stream.
type DiagnosticEvent struct {
	TS     time.Time `json:"ts"`
	Stage  string    `json:"stage"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail"`
}

func (d *DiagnosticEvent) Type() string       { return "diagnostic" }
func (d *DiagnosticEvent) EventTS() time.Time { return d.TS }
