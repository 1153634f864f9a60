// Command midi-render renders MIDI files to audio with SoundFont banks.
//
// Usage:
//
//	midi-render -sf piano.sf2 song.mid
//	midi-render -sf gm.sf2 -sf drums.sf2 -codec ogg -bitrate 128 songs/
//	midi-render -sf gm.sf2 -concurrency both -parallel 4 -out renders/ a.mid b.mid
//	midi-render -sf gm.sf2 -mode realtime -buffer 10 song.mid   # Simulate a 10 ms output device
//
// Directories are scanned recursively for .mid and .midi files. Defaults come
// from MIDIRENDER_* environment variables; flags override them. Ctrl-C
// cancels the batch and finalizes the files rendered so far.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/pprof"
	"time"

	midirender "github.com/tphakala/go-midi-render"
	"github.com/tphakala/go-midi-render/internal/config"
)

const (
	minRequiredArgs    = 1
	progressEvery      = time.Second
	maxIgnoredVelocity = 127
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.Load()

	var soundfonts stringList
	flag.Var(&soundfonts, "sf", "SoundFont file, repeat for fallbacks in priority order")
	flag.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Output directory")
	flag.StringVar(&cfg.Codec, "codec", cfg.Codec, "Output codec: wav (float), wav16, ogg (vorbis), mp3, opus")
	flag.IntVar(&cfg.Bitrate, "bitrate", cfg.Bitrate, "Lossy bitrate in kb/s")
	rate := flag.Uint("rate", uint(cfg.SampleRate), "Sample rate in Hz")
	channels := flag.Uint("channels", uint(cfg.Channels), "Audio channels: 1 or 2")
	flag.StringVar(&cfg.Mode, "mode", cfg.Mode, "Render mode: standard, realtime")
	flag.StringVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Parallelism: none, items, tracks, both")
	flag.IntVar(&cfg.ParallelMIDIs, "parallel", cfg.ParallelMIDIs, "Files rendered at once when items run in parallel")
	flag.Float64Var(&cfg.BufferMs, "buffer", cfg.BufferMs, "Realtime simulation window in ms")
	flag.IntVar(&cfg.LayerLimit, "layers", cfg.LayerLimit, "Notes held per channel, 0 for unlimited")
	flag.BoolVar(&cfg.DrumsOnly, "drums", cfg.DrumsOnly, "Play every channel on the percussion bank")
	flag.BoolVar(&cfg.Effects, "effects", cfg.Effects, "Enable reverb and chorus")
	flag.IntVar(&cfg.IgnoreLo, "ignore-lo", cfg.IgnoreLo, "Lowest note-on velocity to drop")
	flag.IntVar(&cfg.IgnoreHi, "ignore-hi", cfg.IgnoreHi, "Highest note-on velocity to drop")
	flag.BoolVar(&cfg.Limiter, "limiter", cfg.Limiter, "Enable the output limiter")
	flag.Float64Var(&cfg.ThresholdDB, "threshold", cfg.ThresholdDB, "Limiter ceiling in dBFS")
	verbose := flag.Bool("v", false, "Verbose output")
	cpuprofile := flag.String("cpuprofile", "", "Write CPU profile to file")
	flag.Parse()

	args := flag.Args()
	if len(args) < minRequiredArgs {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] input.mid|dir ...\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		return fmt.Errorf("no input files")
	}
	if len(soundfonts) > 0 {
		cfg.Soundfonts = soundfonts
	}
	cfg.SampleRate = uint32(*rate)
	cfg.Channels = uint16(*channels)
	if cfg.IgnoreHi > maxIgnoredVelocity {
		cfg.IgnoreHi = maxIgnoredVelocity
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = f.Close()
		}()
	}

	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	if err := checkSoundfonts(cfg.Soundfonts); err != nil {
		return err
	}
	inputs, err := collectInputs(args)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(settings.OutputDir, 0o755); err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}

	if *verbose {
		log.Printf("Soundfonts: %v", cfg.Soundfonts)
		log.Printf("Output: %s (%s, %d Hz, %d ch)", settings.OutputDir, settings.Format, settings.SampleRate, settings.AudioChannels)
		log.Printf("Mode: %s, concurrency: %s", settings.Mode, settings.Concurrency)
		for _, in := range inputs {
			log.Printf("Input: %s", in)
		}
	}

	paths := make([]string, len(inputs))
	for i, in := range inputs {
		paths[i] = in.Path
	}
	m, err := midirender.NewManager(settings, cfg.ChannelSettings(), paths)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	progress := newProgressReporter(progressEvery)
	err = m.Run(ctx, cfg.PollInterval, progress.report)
	elapsed := time.Since(start)

	fmt.Print(summarize(&settings, inputs, elapsed))
	if ctx.Err() != nil {
		log.Printf("Cancelled after %s", midirender.FormatDuration(elapsed))
		return nil
	}
	return err
}
