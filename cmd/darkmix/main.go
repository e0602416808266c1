package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/firehorse/darkmix"
	"github.com/firehorse/darkmix/engine"
	"github.com/firehorse/darkmix/midi"
	"github.com/firehorse/darkmix/oto"
	"github.com/firehorse/darkmix/transport"
	"github.com/firehorse/darkmix/version"
)

const shutdownTimeout = 2 * time.Second

func main() {
	configFile := flag.String("c", "", "Config file (YAML). The built-in preset is used when empty.")
	assetDir := flag.String("a", ".", "Directory of the ambience WAV files named in the config.")
	noAmbience := flag.Bool("noambience", false, "Run without the ambience and speech tracks.")
	midiPort := flag.String("m", "", "Open the first MIDI input whose name starts with this prefix.")
	noMIDI := flag.Bool("nomidi", false, "Do not open a MIDI input.")
	listMIDI := flag.Bool("lm", false, "List MIDI inputs and exit.")
	logFile := flag.String("l", "darkmix.log", "Log file. The terminal is used for the controls.")
	debug := flag.Bool("d", false, "Log debug messages.")
	play := flag.Bool("p", false, "Start playing immediately.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.String())
		os.Exit(0)
	}
	if *listMIDI {
		ports, err := midi.Ports()
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not list MIDI inputs: %v\n", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		os.Exit(0)
	}
	logger, closeLog, err := openLog(*logFile, *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	if err := run(logger, options{
		configFile: *configFile,
		assetDir:   *assetDir,
		noAmbience: *noAmbience,
		midiPort:   *midiPort,
		noMIDI:     *noMIDI,
		play:       *play,
	}); err != nil {
		logger.Error("darkmix failed", "err", err)
		closeLog()
		fmt.Fprintf(os.Stderr, "darkmix: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configFile string
	assetDir   string
	noAmbience bool
	midiPort   string
	noMIDI     bool
	play       bool
}

func run(logger *slog.Logger, o options) error {
	cfg, err := darkmix.LoadConfig(o.configFile)
	if err != nil {
		return err
	}
	if o.noAmbience {
		cfg.Ambience = nil
	}
	tracks, err := engine.LoadTracks(cfg, o.assetDir)
	if err != nil {
		return err
	}
	e, err := engine.New(cfg, tracks, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	defer e.Close()
	audio, err := oto.NewContext(cfg.SampleRate, oto.DefaultBufferSize)
	if err != nil {
		return err
	}
	defer audio.Close()
	if err := audio.Play(e.Renderer); err != nil {
		return err
	}
	controller, err := transport.New(e, cfg, transport.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	failed := make(chan struct{})
	go func() {
		err := controller.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			close(failed)
		}
		done <- err
	}()

	var wg sync.WaitGroup
	portName := ""
	if !o.noMIDI {
		surface := midi.NewSurface(controller, midi.DefaultMapping(), midi.WithLogger(logger))
		in, err := midi.OpenInput(o.midiPort, surface)
		switch {
		case errors.Is(err, midi.ErrNoInput):
			logger.Info("running without MIDI input", "err", err)
		case err != nil:
			logger.Warn("could not open MIDI input", "err", err)
		default:
			defer in.Close()
			portName = in.String()
			wg.Add(1)
			go func() {
				defer wg.Done()
				surface.Run(ctx)
			}()
		}
	}

	if o.play {
		if err := controller.Start(); err != nil {
			return err
		}
	}

	u, err := newUI(controller, e.Bus, portName)
	if err != nil {
		return err
	}
	u.run(failed)
	u.close()

	cancel()
	runErr, ok := engine.TimeoutReceive(done, shutdownTimeout)
	if !ok {
		logger.Warn("transport did not stop in time")
	}
	wg.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("transport: %w", runErr)
	}
	if err := audio.Err(); err != nil {
		return fmt.Errorf("audio output: %w", err)
	}
	logger.Info("darkmix stopped")
	return nil
}

func openLog(path string, debug bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	var once sync.Once
	return logger, func() { once.Do(func() { f.Close() }) }, nil
}

func printUsage() {
	fmt.Fprintf(flag.CommandLine.Output(), "darkmix plays an endless generative dark techno mix.\nUsage: %s [flags]\n", os.Args[0])
	flag.PrintDefaults()
}
