// Package notification delivers emitted order intents to external channels.
// Notifiers return delivery errors to the caller; the runners ignore them, so
// a failed notification never stops or reorders the event stream. Delivery
// is synchronous: a slow endpoint delays the bar being processed for up to
// the client timeout.
package notification

import (
	"context"

	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/model"
)

// Notifier is the interface for all notification backends.
type Notifier interface {
	// NotifyIntent delivers a sized order intent.
	NotifyIntent(ctx context.Context, intent *model.OrderIntent) error
	// NotifyRejected delivers a sizing rejection.
	NotifyRejected(ctx context.Context, rejected *model.RejectedIntent) error
}

// LogNotifier writes intents to the structured log (useful in development).
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("comp", "notify").Logger()}
}

func (n *LogNotifier) NotifyIntent(_ context.Context, intent *model.OrderIntent) error {
	n.log.Info().
		Str("signal", intent.SignalID).
		Str("direction", intent.Direction.String()).
		Float64("size", intent.Size).
		Float64("entry", intent.EntryPrice).
		Float64("stop", intent.StopPrice).
		Msg("order intent")
	return nil
}

func (n *LogNotifier) NotifyRejected(_ context.Context, rejected *model.RejectedIntent) error {
	n.log.Info().
		Str("signal", rejected.SignalID).
		Str("reason", rejected.Reason).
		Msg("intent rejected")
	return nil
}
