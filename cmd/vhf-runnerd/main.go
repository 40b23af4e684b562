// Command vhf-runnerd is the unattended process: it polls configured
// wind stations, synthesizes and transmits voice announcements over a
// keyed VHF radio, and exposes a minimal health/metrics endpoint. It
// never serves the administrative channel/credential management API —
// that is a separate external process (spec.md §1/§6).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata" // embeds tzdata so internal/provider's Europe/Paris lookup works on minimal images

	"github.com/rs/zerolog"

	"github.com/vhfbalise/runner/internal/clock"
	"github.com/vhfbalise/runner/internal/config"
	"github.com/vhfbalise/runner/internal/httpapi"
	"github.com/vhfbalise/runner/internal/metrics"
	"github.com/vhfbalise/runner/internal/provider"
	"github.com/vhfbalise/runner/internal/ptt"
	"github.com/vhfbalise/runner/internal/runner"
	"github.com/vhfbalise/runner/internal/scheduler"
	"github.com/vhfbalise/runner/internal/sequencer"
	"github.com/vhfbalise/runner/internal/store"
	"github.com/vhfbalise/runner/internal/tts"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.DataDir, "data-dir", "", "Data directory root (overrides DATA_DIR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "Status endpoint listen address (overrides HTTP_ADDR)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Str("commit", commit).Str("built", buildTime).Msg("vhf-runnerd starting")

	paths := cfg.Paths()
	if err := paths.EnsureDirs(); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare data directory layout")
	}

	pidLock := runner.NewPIDLock(paths.PIDFile)
	if err := pidLock.Acquire(); err != nil {
		log.Fatal().Err(err).Msg("failed to acquire pid lock")
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, paths.DBPath, log.With().Str("component", "store").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	registry := provider.NewRegistry(log.With().Str("component", "provider").Logger(),
		provider.NewFFVLProvider(), provider.NewOpenWindMapProvider())

	ttsEngine, err := tts.NewPiperEngine(paths.TTSModelsDir, log.With().Str("component", "tts").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize piper engine")
	}
	ttsCache, err := tts.NewCache(paths.AudioCacheDir, ttsEngine, runner.NewTTSStoreAdapter(st), log.With().Str("component", "tts").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audio cache")
	}
	go func() {
		if err := ttsEngine.WatchVoices(ctx); err != nil {
			log.Warn().Err(err).Msg("voice directory watcher stopped")
		}
	}()

	settings, err := st.GetSettings(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read system settings")
	}

	var pttDriver ptt.Driver
	if settings.PTTGPIOPin != nil {
		pttDriver, err = ptt.NewGPIODriver(cfg.GPIOChip, *settings.PTTGPIOPin, settings.PTTActiveLevel)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize gpio ptt driver")
		}
		log.Info().Str("chip", cfg.GPIOChip).Int("pin", *settings.PTTGPIOPin).Msg("ptt driver: gpio")
	} else {
		pttDriver = ptt.NewMockDriver()
		log.Warn().Msg("no ptt_gpio_pin configured, using mock ptt driver — no radio will actually key")
	}
	defer pttDriver.Cleanup()

	sys := clock.System{}
	seq := sequencer.New(pttDriver, log.With().Str("component", "sequencer").Logger())
	sched := scheduler.New(st, registry, sys, log.With().Str("component", "scheduler").Logger())

	r := runner.New(runner.Deps{
		Store:     st,
		Registry:  registry,
		Scheduler: sched,
		TTSCache:  ttsCache,
		Sequencer: seq,
		PTTDriver: pttDriver,
		Clock:     sys,
		Log:       log.With().Str("component", "runner").Logger(),
	})

	if err := r.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("bootstrap cleanup failed")
	}

	collector := metrics.NewCollector(st)
	httpSrv := httpapi.NewServer(httpapi.ServerOptions{
		Addr:      cfg.HTTPAddr,
		Store:     st,
		Collector: collector,
		Version:   version,
		StartTime: startTime,
		Log:       log.With().Str("component", "httpapi").Logger(),
	})

	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- httpSrv.Run(ctx) }()

	go r.Run(ctx)

	select {
	case <-ctx.Done():
	case err := <-httpErrCh:
		if err != nil {
			log.Error().Err(err).Msg("status endpoint exited with error")
		}
	}

	log.Info().Msg("vhf-runnerd shutting down")
}
