package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"lobby-lab/domain"
	"lobby-lab/internal"
	"lobby-lab/moderation"
	"lobby-lab/runtime/workers"
	"lobby-lab/session"
	"lobby-lab/sink"
	"lobby-lab/transport/lan"
	"lobby-lab/ui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the lobby lifecycle, and
// centralizes error reporting, so all defers execute before exit and the
// wiring stays testable outside of main.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := internal.ValidateNames(internal.NamesRequest{DisplayName: config.DisplayName}); err != nil {
		return fmt.Errorf("invalid display name: %w", err)
	}
	if config.Identity == "" {
		config.Identity = uuid.NewString()
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Moderation (host-side chat censoring)
	var moderator *moderation.Moderator
	if config.EnableModeration {
		replacement, err := internal.CharacterRune(config.CensorReplacement)
		if err != nil {
			return err
		}
		moderator, err = moderation.NewModerator(replacement)
		if err != nil {
			return fmt.Errorf("moderation setup failed: %w", err)
		}
		log.Info("Moderation enabled", "languages", moderator.Languages())
	}

	// 3. Transport & Session Manager
	transport := lan.NewTransport(log, lan.Config{
		BeaconPort:     config.BeaconPort,
		BeaconInterval: config.BeaconInterval,
		LookupTimeout:  config.LookupTimeout,
	})
	manager := session.NewManager(log, transport, moderator, session.Config{
		Identity:       domain.Identity(config.Identity),
		DisplayName:    config.DisplayName,
		CommandBuffer:  config.CommandBufferSize,
		EventBuffer:    config.EventBufferSize,
		HistoryLimit:   config.HistoryLimit,
		ResyncInterval: config.ResyncInterval,
	})

	// 4. Presentation & Sinks
	terminal := ui.NewTerminal(log, manager, transport.SelfID())
	timeline := sink.NewTimeline(config.HistoryLimit)
	fanout := workers.NewEventFanout(log, manager.Events(), config.SinkTimeout, terminal, timeline)
	stats := workers.NewStatsWorker(log, config.StatsInterval, timeline.ParticipantCount)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(manager, fanout, stats, terminal)

	log.Info("Lobby starting", "display_name", config.DisplayName)
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}
