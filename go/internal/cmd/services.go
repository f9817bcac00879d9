package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/colorclash/go/internal/config"
	"github.com/mcdev12/colorclash/go/internal/events"
	"github.com/mcdev12/colorclash/go/internal/game"
	"github.com/mcdev12/colorclash/go/internal/gamerpc"
	"github.com/mcdev12/colorclash/go/internal/gateway"
	"github.com/mcdev12/colorclash/go/internal/kvstore"
	"github.com/mcdev12/colorclash/go/internal/presence"
	"github.com/mcdev12/colorclash/go/internal/round"
	"github.com/mcdev12/colorclash/go/internal/roundtimer"
	"github.com/mcdev12/colorclash/go/internal/scheduler"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Engine     *round.Engine
	Presence   *presence.Tracker
	Gateway    *gateway.Service
	GameRPC    *gamerpc.Service
	Forwarders []*events.Forwarder

	sched   *scheduler.ClockScheduler
	closers []func() error
}

func setupServices(ctx context.Context, cfg *config.Config, store kvstore.Store) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Repository → App → Engine → Gateway
	clock := clockwork.NewRealClock()
	sched := scheduler.NewClockScheduler(clock)
	bus := events.NewBus()
	s := &Services{sched: sched}

	gameApp := game.NewApp(ctx, game.NewRepository(store), clock, cfg.Tuning.GameConfig())
	timer := roundtimer.NewService(store, clock)
	s.Engine = round.NewEngine(timer, gameApp, sched, clock, bus, round.RandomDraw, cfg.Tuning.RoundConfig())
	s.Presence = presence.NewTracker(store, clock, sched, cfg.Tuning.PresenceConfig())

	var history gateway.History
	if cfg.ArchiveEnabled {
		a, err := setupArchive(ctx, cfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		s.closers = append(s.closers, a.Close)
		history = a
		s.addForwarder(bus, a)
	}

	pub, err := setupPublisher(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, pub.Close)
	s.addForwarder(bus, pub)

	gwCfg := gateway.DefaultConfig()
	gwCfg.Version = version
	s.Gateway = gateway.NewService(gwCfg, gameApp, s.Engine, s.Presence, history, clock)
	bus.Subscribe(s.Gateway.HandleEvent)
	s.GameRPC = gamerpc.NewService(s.Gateway)

	s.Presence.OnCount(func(n int) {
		e, err := events.New(events.EventTypeOnlineCount, 0, clock.Now(), events.OnlineCountPayload{Count: n})
		if err != nil {
			log.Error().Err(err).Msg("failed to build online count event")
			return
		}
		bus.Emit(ctx, e)
	})

	return s, nil
}

// setupPublisher connects to JetStream when NATS_URL is set and otherwise
// falls back to logging events.
func setupPublisher(ctx context.Context, cfg *config.Config) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		log.Info().Msg("NATS_URL not set, game events are only logged")
		return events.LogPublisher{}, nil
	}

	jsCfg := events.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	pub, err := events.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		return nil, fmt.Errorf("connect event stream: %w", err)
	}
	log.Info().Str("url", cfg.NATSURL).Msg("publishing game events to JetStream")
	return pub, nil
}

func (s *Services) addForwarder(bus *events.Bus, pub events.Publisher) {
	fwd := events.NewForwarder(pub, events.DefaultForwarderConfig())
	bus.Subscribe(fwd.Handle)
	s.Forwarders = append(s.Forwarders, fwd)
}

// Close stops the scheduler and releases publishers.
func (s *Services) Close() {
	s.sched.Stop()
	for _, c := range s.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("failed to close resource")
		}
	}
}
