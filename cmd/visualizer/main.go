package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/guidoenr/bandscope/internal/app"
	"github.com/guidoenr/bandscope/internal/audio"
	"github.com/guidoenr/bandscope/internal/clip"
	"github.com/guidoenr/bandscope/internal/params"
	"github.com/guidoenr/bandscope/internal/spectrum"
)

func main() {
	defaults := params.Defaults()
	var (
		deviceName    = flag.String("audio-device", "", "Optional PortAudio device name (substring match)")
		clipPath      = flag.String("clip", "", "Analyze an audio file (wav|aiff|mp3|ogg) in a loop instead of live input")
		noAudio       = flag.Bool("no-audio", false, "Run with synthetic audio (for testing)")
		targetFPS     = flag.Float64("fps", 60, "Target frames per second")
		fftSize       = flag.Int("fft-size", defaults.FFTSize, "FFT size, rounded to a power of two")
		windowName    = flag.String("window", defaults.Window.String(), "Window function (rectangular|triangle|hamming|hanning|blackman|blackmanharris)")
		numBands      = flag.Int("bands", len(defaults.Bands), "Number of frequency bands")
		buffer        = flag.Bool("buffer", defaults.BufferEnabled, "Smooth band decay")
		decreaseStart = flag.Float64("decrease-start", defaults.DecreaseStart, "Initial decay rate per tick")
		decreaseAccel = flag.Float64("decrease-accel", defaults.DecreaseAcceleration, "Decay acceleration per second")
		layout        = flag.String("layout", "bands", "Layout (bands|mirror|bins)")
		palette       = flag.String("palette", "blocks", "Bar glyphs (blocks|shade|ascii|dots)")
		colorMode     = flag.String("color-mode", "chromatic", "Color mode (chromatic|fire|aurora|mono)")
		noiseFloor    = flag.Float64("noise-floor", 0, "Draw bands at or below this level as empty (0 disables)")
		noColor       = flag.Bool("no-color", false, "Disable ANSI color output")
		showStatus    = flag.Bool("status", true, "Display status bar")
		useSDL        = flag.Bool("sdl", false, "Draw in an SDL window (requires -tags sdl)")
		webPort       = flag.Int("web-port", 0, "Serve the web API on this port (0 disables)")
		configPath    = flag.String("config", "", "JSON configuration file (default next to the binary)")
		profilePath   = flag.String("profile", "", "Append per-stage timings to this CSV file")
		listDevs      = flag.Bool("list-audio-devices", false, "List available audio input devices and exit")
		debug         = flag.Bool("debug", false, "Enable verbose logging")
	)

	flag.Parse()

	if *targetFPS <= 0 {
		log.Fatalf("fps must be positive (got %.2f)", *targetFPS)
	}
	if *fftSize <= 0 {
		log.Fatalf("fft-size must be positive (got %d)", *fftSize)
	}
	if *numBands < 0 || *numBands > params.MaxBands {
		log.Fatalf("bands must be between 0 and %d (got %d)", params.MaxBands, *numBands)
	}

	width, height := 80, 24
	if fd := int(os.Stdout.Fd()); fd >= 0 {
		if w, h, err := term.GetSize(fd); err == nil {
			if w > 0 {
				width = w
			}
			if h > 0 {
				height = h
			}
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stdout, "[bandscope] ", log.LstdFlags)
	if !*debug {
		logger.SetOutput(os.Stderr)
		logger.SetFlags(0)
	}

	path := *configPath
	if path == "" {
		path = params.DefaultPath()
	}
	cfg, err := params.LoadFile(path)
	switch {
	case err == nil:
		logger.Printf("loaded configuration from %s", path)
	case errors.Is(err, fs.ErrNotExist) && *configPath == "":
	case errors.Is(err, fs.ErrNotExist):
		logger.Printf("config %s not found, using defaults", path)
	default:
		logger.Fatalf("config: %v", err)
	}
	params.ApplyEnv(&cfg)

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["fft-size"] {
		cfg.SetFFTSize(*fftSize)
	}
	if set["window"] {
		w, ok := params.LookupWindow(*windowName)
		if !ok {
			logger.Fatalf("unknown window %q", *windowName)
		}
		cfg.Window = w
	}
	if set["bands"] {
		cfg.SetNumBands(*numBands)
	}
	if set["buffer"] {
		cfg.BufferEnabled = *buffer
	}
	if set["decrease-start"] {
		cfg.DecreaseStart = *decreaseStart
	}
	if set["decrease-accel"] {
		cfg.DecreaseAcceleration = *decreaseAccel
	}
	cfg.Normalize()

	needAudio := (!*noAudio && *clipPath == "") || *listDevs
	if needAudio {
		if err := audio.Initialize(); err != nil {
			logger.Fatalf("failed to initialize PortAudio: %v", err)
		}
		defer audio.Terminate()
	}

	if *listDevs {
		listDevices(logger)
		return
	}

	var (
		source spectrum.PCM
		label  string
	)
	switch {
	case *clipPath != "":
		c, err := clip.Load(*clipPath)
		if err != nil {
			logger.Fatalf("load clip: %v", err)
		}
		player, err := clip.NewPlayer(c)
		if err != nil {
			logger.Fatalf("clip player: %v", err)
		}
		source = player
		label = "clip:" + c.Name
		logger.Printf("playing %s (%.1fs @ %.0f Hz)", c.Name, c.Duration(), c.SampleRate)
	case !*noAudio:
		capture, err := audio.NewCapture(audio.Config{
			DeviceName: *deviceName,
			BufferSize: params.MaxFFTSize,
			Channels:   2,
		})
		if err != nil {
			logger.Fatalf("audio capture: %v", err)
		}
		source = capture
		label = "input"
		if info := capture.Device(); info != nil {
			label = info.Name
			logger.Printf("audio capture started on %q @ %.0f Hz, %d channel(s)", info.Name, capture.SampleRate(), capture.Channels())
		}
	}

	a, err := app.New(app.Config{
		Store:         params.NewStore(cfg),
		Source:        source,
		SourceLabel:   label,
		Width:         width,
		Height:        height,
		TargetFPS:     *targetFPS,
		ShowStatusBar: *showStatus,
		Palette:       *palette,
		Layout:        *layout,
		ColorMode:     *colorMode,
		NoiseFloor:    *noiseFloor,
		UseANSI:       !*noColor,
		UseSDL:        *useSDL,
		WebPort:       *webPort,
		ConfigPath:    path,
		ProfilePath:   *profilePath,
		Log:           logger,
	})
	if err != nil {
		logger.Fatalf("failed to create app: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup error: %v\n", err)
		}
	}()

	if err := a.Run(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nExiting...")
			return
		}
		logger.Fatalf("runtime error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
}

func listDevices(logger *log.Logger) {
	devices, err := audio.ListInputDevices()
	if err != nil {
		logger.Fatalf("list devices: %v", err)
	}
	fmt.Printf("\n=== Audio Input Devices ===\n\n")
	for _, dev := range devices {
		markers := ""
		if dev.IsDefaultInput {
			markers += " (default)"
		}
		if !dev.Stereo() {
			markers += " (mono)"
		}
		fmt.Printf("- %s [%s]%s\n    inputs:%d sample:%.0f Hz\n",
			dev.Name, dev.HostAPI, markers, dev.MaxInput, dev.DefaultSampleHz)
	}
	if dev, err := audio.AutoDetectDevice(); err == nil && dev != nil {
		fmt.Printf("\nAuto-detected input: %s (%.0f Hz, %d channels)\n", dev.Name, dev.DefaultSampleRate, dev.MaxInputChannels)
	}
}
