// Command audio2text transcribes audio and video files into text, SRT,
// and JSON transcripts using a local whisper.cpp engine. It runs either
// as a one-shot batch over a file, directory, or glob selection, or as a
// drop-folder watcher with -watch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ithan1985/audio2text/internal/api"
	"github.com/ithan1985/audio2text/internal/batch"
	"github.com/ithan1985/audio2text/internal/config"
	"github.com/ithan1985/audio2text/internal/media"
	"github.com/ithan1985/audio2text/internal/metrics"
	"github.com/ithan1985/audio2text/internal/model"
	"github.com/ithan1985/audio2text/internal/output"
	"github.com/ithan1985/audio2text/internal/state"
	"github.com/ithan1985/audio2text/internal/translate"
)

var version = "dev"

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	startTime := time.Now()

	fs := flag.NewFlagSet("audio2text", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: audio2text [flags] <file|directory|glob>\n\n")
		fmt.Fprintf(fs.Output(), "Transcribe media files with a local whisper.cpp engine.\n\nFlags:\n")
		fs.PrintDefaults()
	}

	var ov config.Overrides
	fs.StringVar(&ov.EnvFile, "env-file", "", "path to .env file (default .env)")
	fs.StringVar(&ov.ModelID, "model", "", "whisper model id (tiny, base, small, medium, large-v3, ...)")
	fs.StringVar(&ov.ComputeMode, "compute", "", "compute mode: int8, float16, or float32")
	fs.StringVar(&ov.Language, "lang", "", "source language code (default: auto-detect)")
	fs.StringVar(&ov.TranslateTo, "translate-to", "", "translate transcripts into this language code")
	fs.StringVar(&ov.TranslatePolicy, "translate-policy", "", "translation failure policy: strict or best-effort")
	fs.StringVar(&ov.OutputDir, "out", "", "root directory for output artifacts")
	fs.StringVar(&ov.ModelCacheDir, "model-cache", "", "model cache directory")
	fs.StringVar(&ov.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	fs.StringVar(&ov.StatusAddr, "status-addr", "", "listen address for the watch-mode status server")
	fs.StringVar(&ov.StateDB, "state-db", "", "sqlite run-history database path")
	fs.IntVar(&ov.BeamSize, "beam", 0, "beam search width (>= 1)")
	fs.Float64Var(&ov.ProgressInterval, "progress-interval", 0, "seconds of audio between progress reports")
	vad := fs.Bool("vad", false, "enable voice activity detection")
	watch := fs.Bool("watch", false, "watch the given directory for new files")
	skip := fs.Bool("skip-processed", false, "skip inputs already transcribed successfully")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return exitUsage
	}
	if *showVersion {
		fmt.Println(version)
		return exitOK
	}

	// Boolean flags only override the environment when given explicitly.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "vad":
			ov.VAD = vad
		case "watch":
			ov.Watch = watch
		case "skip-processed":
			ov.SkipProcessed = skip
		}
	})

	early := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}
	selection := fs.Arg(0)

	cfg, err := config.Load(ov)
	if err != nil {
		early.Error().Err(err).Msg("invalid configuration")
		return exitUsage
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Str("model", cfg.ModelID).Str("compute", cfg.ComputeMode).Msg("audio2text starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *state.Store
	if cfg.StateDB != "" {
		store, err = state.Open(cfg.StateDB, log.With().Str("component", "state").Logger())
		if err != nil {
			log.Error().Err(err).Msg("cannot open run-history database")
			return exitFailed
		}
		defer store.Close()
	} else if cfg.SkipProcessed {
		log.Error().Msg("-skip-processed requires a state database (-state-db)")
		return exitUsage
	}

	ingestor := media.NewIngestor(cfg.FFmpegPath, cfg.FFprobePath, log.With().Str("component", "media").Logger())
	models := model.NewManager(cfg.ModelCacheDir, cfg.ModelRepoURL, cfg.WhisperPath, log.With().Str("component", "model").Logger())

	var translator translate.Translator
	if cfg.TranslateTo != "" {
		translator = translate.NewClient(cfg.TranslateURL, 30*time.Second)
	}

	writer := output.NewWriter(log.With().Str("component", "output").Logger())
	orc := batch.NewOrchestrator(cfg, ingestor, models, translator, writer, store, log.With().Str("component", "batch").Logger())

	if cfg.Watch {
		return runWatch(ctx, cfg, orc, store, selection, startTime, log)
	}

	sum, err := orc.Run(ctx, selection)
	if err != nil {
		log.Error().Err(err).Msg("batch run failed")
		return exitUsage
	}
	return sum.ExitCode()
}

// runWatch runs the drop-folder mode until interrupted, optionally
// serving status and metrics over HTTP.
func runWatch(ctx context.Context, cfg *config.Config, orc *batch.Orchestrator, store *state.Store,
	watchDir string, startTime time.Time, log zerolog.Logger) int {
	info, err := os.Stat(watchDir)
	if err != nil || !info.IsDir() {
		log.Error().Str("path", watchDir).Msg("watch mode requires an existing directory")
		return exitUsage
	}

	watcher := batch.NewWatcher(orc, watchDir, log)

	var srv *api.Server
	errCh := make(chan error, 1)
	if cfg.StatusAddr != "" {
		metrics.RegisterCollector(metrics.NewCollector(watcher))
		srv = api.NewServer(cfg, watchDir, watcher, store, version, startTime, log.With().Str("component", "http").Logger())
		go func() {
			errCh <- srv.Start()
		}()
	}

	watchErr := watcher.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("status server shutdown error")
		}
		select {
		case err := <-errCh:
			if err != nil {
				log.Error().Err(err).Msg("status server error")
			}
		default:
		}
	}

	if watchErr != nil {
		log.Error().Err(watchErr).Msg("watcher failed")
		return exitFailed
	}
	if watcher.Failed() > 0 {
		return exitFailed
	}
	return exitOK
}
