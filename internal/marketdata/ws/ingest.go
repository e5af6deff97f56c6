// Package ws provides a live BarSource: a websocket client that streams
// JSON-encoded base-timeframe bars into the pipeline. Reconnects with
// backoff; ordering guardrails stay in the aggregator, not here.
package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/model"
)

// barMsg is the wire format of one bar.
type barMsg struct {
	Symbol string  `json:"symbol"`
	TS     int64   `json:"ts"` // unix seconds
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Feed streams bars from a websocket endpoint.
type Feed struct {
	url    string
	symbol string // fallback when the message carries no symbol
	log    zerolog.Logger

	// ReadTimeout bounds how long a connection may stay silent before it is
	// considered dead. Default: 90s.
	ReadTimeout time.Duration

	// OnInvalid is called for messages dropped by validation (optional).
	OnInvalid func(err error)
	// OnReconnect is called before each reconnection attempt (optional).
	OnReconnect func(attempt int)
}

// New creates a feed for the given endpoint.
func New(url, symbol string, log zerolog.Logger) *Feed {
	return &Feed{
		url:         url,
		symbol:      symbol,
		log:         log.With().Str("comp", "ws").Logger(),
		ReadTimeout: 90 * time.Second,
	}
}

// Run connects and forwards every bar through fn until ctx is cancelled or
// fn returns an error. Connection failures trigger reconnects with capped
// exponential backoff.
func (f *Feed) Run(ctx context.Context, fn func(model.Bar) error) error {
	backoff := time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if attempt > 0 {
			if f.OnReconnect != nil {
				f.OnReconnect(attempt)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
		attempt++

		err := f.consume(ctx, fn)
		switch {
		case err == nil:
			return nil // server closed cleanly
		case ctx.Err() != nil:
			return ctx.Err()
		case isFatal(err):
			return err
		default:
			f.log.Warn().Err(err).Int("attempt", attempt).Msg("connection lost")
		}
	}
}

func (f *Feed) consume(ctx context.Context, fn func(model.Bar) error) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	f.log.Info().Str("url", f.url).Msg("connected")

	// Unblock the read loop when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		if f.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(f.ReadTimeout))
		}
		var msg barMsg
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		bar := model.Bar{
			Symbol: msg.Symbol,
			TF:     model.M1,
			TS:     time.Unix(msg.TS, 0).UTC(),
			Open:   msg.Open,
			High:   msg.High,
			Low:    msg.Low,
			Close:  msg.Close,
			Volume: msg.Volume,
		}
		if bar.Symbol == "" {
			bar.Symbol = f.symbol
		}
		if err := bar.Validate(); err != nil {
			if f.OnInvalid != nil {
				f.OnInvalid(err)
			}
			f.log.Debug().Err(err).Msg("message dropped")
			continue
		}

		if err := fn(bar); err != nil {
			return &consumerError{err}
		}
	}
}

// consumerError marks errors from the pipeline itself; those are fatal and
// must not trigger reconnects.
type consumerError struct{ err error }

func (e *consumerError) Error() string { return e.err.Error() }
func (e *consumerError) Unwrap() error { return e.err }

func isFatal(err error) bool {
	_, ok := err.(*consumerError)
	return ok
}
