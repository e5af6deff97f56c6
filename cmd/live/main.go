// cmd/live runs the signal pipeline against a websocket bar feed, logs every
// event and, when redis_addr is set, publishes events to Redis. Intended for
// paper wiring: the produced order intents go to the configured webhook (or
// to the log when no webhook is set), not to a broker.
//
// Usage:
//
//	go run ./cmd/live --ws=ws://feed.local/bars --symbol=BTCUSDT --config=config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"liquidity-systemv1/config"
	"liquidity-systemv1/internal/engine"
	"liquidity-systemv1/internal/marketdata/ws"
	"liquidity-systemv1/internal/metrics"
	"liquidity-systemv1/internal/model"
	"liquidity-systemv1/internal/notification"
	"liquidity-systemv1/internal/stream"
	"liquidity-systemv1/internal/util"
)

func main() {
	wsURL := flag.String("ws", "", "Websocket bar feed URL (required)")
	symbol := flag.String("symbol", "BTCUSDT", "Default symbol for messages without one")
	cfgPath := flag.String("config", "", "Path to the YAML config (defaults used when empty)")
	flag.Parse()

	if *wsURL == "" {
		fmt.Fprintln(os.Stderr, "live: --ws is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "live: %v\n", err)
		os.Exit(2)
	}
	log := util.NewLogger(cfg.LogLevel)

	pipelineCfg, err := cfg.Pipeline()
	if err != nil {
		log.Fatal().Err(err).Msg("config mapping failed")
	}

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	metricsSrv := metrics.Serve(cfg.MetricsAddr, reg)
	defer metricsSrv.Close()

	var events engine.MultiSink
	events = append(events, engine.NewLogSink(log))
	if cfg.RedisAddr != "" {
		pub, err := stream.New(stream.Config{
			Addr:   cfg.RedisAddr,
			Stream: cfg.RedisStream,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect failed")
		}
		defer pub.Close()
		events = append(events, pub)
	}

	var notifier notification.Notifier = notification.NewLogNotifier(log)
	if cfg.WebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.WebhookURL, log)
	}

	eng := engine.NewEngine(pipelineCfg, events, &notifierSink{notifier: notifier}, met, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feed := ws.New(*wsURL, *symbol, log)
	feed.OnReconnect = func(attempt int) {
		log.Warn().Int("attempt", attempt).Msg("reconnecting")
	}

	if err := feed.Run(ctx, eng.Feed); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("feed terminated")
	}
}

// notifierSink adapts a Notifier to the engine's intent sink.
type notifierSink struct {
	notifier notification.Notifier
}

func (s *notifierSink) EmitIntent(intent *model.OrderIntent) {
	_ = s.notifier.NotifyIntent(context.Background(), intent)
}

func (s *notifierSink) EmitRejected(rejected *model.RejectedIntent) {
	_ = s.notifier.NotifyRejected(context.Background(), rejected)
}
