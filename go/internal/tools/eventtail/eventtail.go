package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcdev12/colorclash/go/internal/events"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := events.DefaultConsumerConfig()
	flag.StringVar(&cfg.URL, "nats", cfg.URL, "NATS server URL")
	flag.StringVar(&cfg.ConsumerName, "consumer", cfg.ConsumerName, "durable consumer name")
	flag.StringVar(&cfg.SubjectFilter, "subject", cfg.SubjectFilter, "subject filter")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	consumer, err := events.NewConsumer(ctx, func(_ context.Context, e events.Event) {
		if err := enc.Encode(e); err != nil {
			fmt.Fprintf(os.Stderr, "write event: %v\n", err)
		}
	}, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event consumer")
	}
	defer consumer.Stop()

	if err := consumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("event consumer failed")
	}
}
