package engine

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/model"
)

// EventSink receives the ordered event stream of one run.
type EventSink interface {
	Emit(ev model.Event)
}

// IntentSink receives sized order intents and sizing rejections.
type IntentSink interface {
	EmitIntent(intent *model.OrderIntent)
	EmitRejected(rejected *model.RejectedIntent)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Emit(model.Event)                   {}
func (NopSink) EmitIntent(*model.OrderIntent)      {}
func (NopSink) EmitRejected(*model.RejectedIntent) {}

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Emit(ev model.Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// MemorySink records the ordered event log and maintains a running SHA-256
// digest over the canonical serialization. Two runs over identical input and
// config produce identical digests — the replay-determinism check.
type MemorySink struct {
	Events  []model.Event
	Intents []*model.OrderIntent
	Rejects []*model.RejectedIntent

	hash [32]byte
}

// NewMemorySink creates an empty recording sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Emit(ev model.Event) {
	m.Events = append(m.Events, ev)
	m.fold(ev)
}

func (m *MemorySink) EmitIntent(intent *model.OrderIntent) {
	m.Intents = append(m.Intents, intent)
	m.fold(intent)
}

func (m *MemorySink) EmitRejected(rejected *model.RejectedIntent) {
	m.Rejects = append(m.Rejects, rejected)
	m.fold(rejected)
}

// fold chains the digest: h = sha256(h || type || payload).
func (m *MemorySink) fold(ev model.Event) {
	h := sha256.New()
	h.Write(m.hash[:])
	h.Write([]byte(ev.Type()))
	h.Write(model.MarshalEvent(ev))
	copy(m.hash[:], h.Sum(nil))
}

// Digest returns the hex digest of the event log so far.
func (m *MemorySink) Digest() string { return hex.EncodeToString(m.hash[:]) }

// LogSink writes every event as a structured debug line.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink logging at debug level.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("comp", "events").Logger()}
}

func (s *LogSink) Emit(ev model.Event) {
	s.log.Debug().
		Str("event", ev.Type()).
		Time("ts", ev.EventTS()).
		RawJSON("payload", model.MarshalEvent(ev)).
		Msg("event")
}

func (s *LogSink) EmitIntent(intent *model.OrderIntent) { s.Emit(intent) }

func (s *LogSink) EmitRejected(rejected *model.RejectedIntent) { s.Emit(rejected) }
