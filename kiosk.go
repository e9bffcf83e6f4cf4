package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"rfidkiosk/display"
	"rfidkiosk/eventpipe"
	"rfidkiosk/input"
	"rfidkiosk/player"
	"rfidkiosk/reader"
	"rfidkiosk/sched"
)

var myBuild string

func main() {
	cfgfile := flag.String("cfg", "rfidkiosk.yaml", "Config file")
	debug := flag.Bool("debug", false, "Debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).With().Timestamp().Logger()

	log.Info().Str("build", myBuild).Msg("rfidkiosk starting")

	cfg, err := LoadConfig(*cfgfile)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	uidMap, err := cfg.ResolveUIDMap(log)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve uid map")
	}
	log.Info().Int("videos", len(uidMap)).Msg("identifier map loaded")

	loop := sched.NewLoop(clockwork.NewRealClock(), log)

	surface, err := display.New(cfg.Display, cfg.HomeImage, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init display")
	}

	factory := player.NewMPVFactory(cfg.Player.MPV, log)
	engine, err := player.NewEngine(cfg.Player, uidMap, surface, factory, loop, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init player")
	}

	channel := reader.New(cfg.Reader, log)
	channel.Open() // first attempt; the controller retries with backoff

	ctrl := NewController(channel, engine, uidMap,
		time.Duration(cfg.PollMS)*time.Millisecond, loop, log)

	// Optional escape-key shutdown.
	watcher, err := input.New(cfg.Input, log, loop.Stop)
	if err != nil {
		log.Warn().Err(err).Msg("init input watcher")
	}

	// Optional named-pipe command injection.
	pipe, err := eventpipe.New(cfg.EventPipe, log, func(cmd string) {
		if cmd == "quit" {
			loop.Stop()
			return
		}
		ctrl.Inject(cmd)
	})
	if err != nil {
		log.Warn().Err(err).Msg("init event pipe")
	}
	if pipe != nil {
		go pipe.Start()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Stringer("signal", sig).Msg("shutting down")
		loop.Stop()
	}()

	ctrl.Start()
	engine.StartWatchdog()
	loop.Run()

	// Guarded shutdown: each step is independent so one failure never
	// skips the next.
	ctrl.Stop()
	engine.Release()
	channel.Close()
	if err := surface.Release(); err != nil {
		log.Error().Err(err).Msg("release display")
	}
	if watcher != nil {
		if err := watcher.Close(); err != nil {
			log.Error().Err(err).Msg("close input watcher")
		}
	}
	if pipe != nil {
		if err := pipe.Close(); err != nil {
			log.Error().Err(err).Msg("close event pipe")
		}
	}

	log.Info().Msg("shutdown complete")
}
