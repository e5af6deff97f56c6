// Package stream publishes the pipeline's event log to a Redis stream so
// external consumers (dashboards, recorders) can tail it. The publisher is
// an EventSink adapter; the core never depends on Redis being reachable.
package stream

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/model"
)

// Stream trimming keeps roughly a day of events at typical signal rates.
const streamMaxLen = 100000

// Config configures the Redis publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	Stream   string // stream key, e.g. "pipeline:events"
}

// Publisher writes events to a Redis stream via XADD.
type Publisher struct {
	client *goredis.Client
	stream string
	log    zerolog.Logger

	dropped uint64
}

// New creates a publisher and pings the server.
func New(cfg Config, log zerolog.Logger) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := &Publisher{
		client: client,
		stream: cfg.Stream,
		log:    log.With().Str("comp", "stream").Logger(),
	}
	p.log.Info().Str("addr", cfg.Addr).Str("stream", cfg.Stream).Msg("connected")
	return p, nil
}

// Emit publishes one event. Failures are counted and logged, never
// propagated: the in-process pipeline stays authoritative.
func (p *Publisher) Emit(ev model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":    ev.Type(),
			"ts":      ev.EventTS().Format(time.RFC3339Nano),
			"payload": string(model.MarshalEvent(ev)),
		},
	}).Err()
	if err != nil {
		p.dropped++
		p.log.Warn().Err(err).Str("event", ev.Type()).Msg("publish failed")
	}
}

// Dropped returns how many events failed to publish.
func (p *Publisher) Dropped() uint64 { return p.dropped }

// Close releases the connection.
func (p *Publisher) Close() error { return p.client.Close() }
