package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/eiannone/keyboard"
	"golang.org/x/term"

	"github.com/guidoenr/bandscope/internal/analyzer"
	"github.com/guidoenr/bandscope/internal/params"
	"github.com/guidoenr/bandscope/internal/render"
	"github.com/guidoenr/bandscope/internal/spectrum"
	"github.com/guidoenr/bandscope/internal/web"
)

// Config configures the application runtime.
type Config struct {
	Store *params.Store
	// Source feeds the analyzer. Nil selects the synthetic generator.
	Source        spectrum.PCM
	SourceLabel   string
	Width         int
	Height        int
	TargetFPS     float64
	ShowStatusBar bool
	Palette       string
	Layout        string
	ColorMode     string
	NoiseFloor    float64
	UseANSI       bool
	UseSDL        bool
	WebPort       int
	ConfigPath    string
	ProfilePath   string
	Output        io.Writer
	Log           *log.Logger
}

type inputEvent int

const (
	inputEventQuit inputEvent = iota
	inputEventBandsUp
	inputEventBandsDown
	inputEventDecreaseUp
	inputEventDecreaseDown
	inputEventBufferToggle
	inputEventWindowNext
	inputEventFFTHalve
	inputEventFFTDouble
	inputEventLayoutNext
	inputEventSeekBack
	inputEventSeekForward
)

const (
	// decreaseStep is how far one key press moves the decay start rate.
	decreaseStep = 0.01
	// seekStep is how many seconds one key press moves a clip cursor.
	seekStep = 5.0
)

// advancer is implemented by sources that play back at the loop's pace.
type advancer interface {
	Advance(delta float64)
}

// seeker is implemented by sources with a movable playback cursor.
type seeker interface {
	SampleRate() float64
	Position() int
	Seek(frame int)
}

// App ties together the audio source, analyzer pipeline and renderers.
type App struct {
	cfg      Config
	store    *params.Store
	source   spectrum.PCM
	pipeline *analyzer.Pipeline
	profile  *profiler
	web      *web.Server
	out      io.Writer
	log      *log.Logger

	mu         sync.Mutex
	renderer   *render.Renderer
	snapshot   analyzer.Snapshot
	fps        float64
	noiseFloor float64

	last         time.Time
	width        int
	height       int
	renderHeight int
	inputEvents  chan inputEvent
}

// New constructs the application using the provided configuration.
func New(cfg Config) (*App, error) {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 60
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stdout, "", log.LstdFlags)
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Store == nil {
		cfg.Store = params.NewStore(params.Defaults())
	}
	if cfg.Width <= 0 {
		cfg.Width = 80
	}
	if cfg.Height <= 0 {
		cfg.Height = 24
	}
	renderHeight := cfg.Height
	if cfg.ShowStatusBar && renderHeight > 1 {
		renderHeight--
	}

	renderer, err := render.New(cfg.Width, renderHeight, cfg.Palette, cfg.Layout, cfg.ColorMode, cfg.UseANSI)
	if err != nil {
		return nil, err
	}
	if cfg.UseSDL {
		if err := renderer.EnableSDL(1024, 480); err != nil {
			return nil, fmt.Errorf("sdl: %w", err)
		}
	}

	source := cfg.Source
	if source == nil {
		source = newSynthSource()
		cfg.SourceLabel = "synthetic"
		cfg.Log.Println("audio disabled, using synthetic generator")
	}
	if cfg.SourceLabel == "" {
		cfg.SourceLabel = "input"
	}
	cfg.Store.Update(func(p *params.Parameters) {
		p.SetSampleRate(source.SampleRate())
	})

	app := &App{
		cfg:          cfg,
		store:        cfg.Store,
		source:       source,
		renderer:     renderer,
		out:          cfg.Output,
		log:          cfg.Log,
		width:        cfg.Width,
		height:       cfg.Height,
		renderHeight: renderHeight,
	}
	app.SetNoiseFloor(cfg.NoiseFloor)
	app.profile = newProfiler(cfg.ProfilePath, cfg.Log)

	opts := []analyzer.Option{analyzer.WithLogger(cfg.Log)}
	if app.profile != nil {
		opts = append(opts, analyzer.WithStageHook(app.profile.markStage))
	}
	app.pipeline = analyzer.NewPipeline(cfg.Store, spectrum.New(source), opts...)

	if cfg.WebPort > 0 {
		app.web = web.NewServer(app, cfg.Store,
			web.WithLogger(cfg.Log),
			web.WithConfigPath(cfg.ConfigPath),
		)
	}

	app.last = time.Now()
	return app, nil
}

// Run starts the render loop until context cancellation.
func (a *App) Run(ctx context.Context) error {
	frameSeconds := 1.0 / a.cfg.TargetFPS
	frameDuration := time.Duration(frameSeconds * float64(time.Second))
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.web != nil {
		go func() {
			if err := a.web.Start(ctx, a.cfg.WebPort); err != nil {
				a.log.Printf("[web] server stopped: %v", err)
			}
		}()
	}

	terminal := !a.renderer.Windowed()
	if terminal {
		enterAltScreen(a.out)
		clearScreen(a.out)
		hideCursor(a.out)
		defer func() {
			showCursor(a.out)
			exitAltScreen(a.out)
		}()
	}

	a.startInputListener(ctx)
	a.ensureDimensions()

	for {
		select {
		case <-ctx.Done():
			if terminal {
				moveCursorHome(a.out)
			}
			return ctx.Err()
		case evt, ok := <-a.inputEvents:
			if !ok {
				a.inputEvents = nil
				continue
			}
			if evt == inputEventQuit {
				return nil
			}
			a.handleInput(evt)
		case <-ticker.C:
			if err := a.step(); err != nil {
				if errors.Is(err, render.ErrRendererQuit) {
					return nil
				}
				return err
			}
		}
	}
}

// Close releases held resources.
func (a *App) Close() error {
	var errs []error
	if c, ok := a.source.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, a.profile.Close())
	a.mu.Lock()
	errs = append(errs, a.renderer.Close())
	a.mu.Unlock()
	return errors.Join(errs...)
}

func (a *App) step() error {
	a.ensureDimensions()

	now := time.Now()
	delta := now.Sub(a.last).Seconds()
	if delta <= 0 {
		delta = 1.0 / a.cfg.TargetFPS
	}
	a.last = now

	if adv, ok := a.source.(advancer); ok {
		adv.Advance(delta)
	}

	a.profile.beginFrame()
	// Failures are logged by the pipeline and the previous output is kept.
	snap, _ := a.pipeline.Tick(delta)

	a.mu.Lock()
	a.snapshot = snap.Clone()
	a.fps = 1.0 / delta
	view := snap
	if a.noiseFloor > 0 {
		view = snap.Gate(a.noiseFloor)
	}
	frame := a.renderer.Render(view, a.fps)
	a.mu.Unlock()
	a.profile.markStage("render")

	status := a.statusText(frame.Status)
	var err error
	if frame.Present != nil {
		err = frame.Present(status)
	} else {
		moveCursorHome(a.out)
		for _, line := range frame.Lines {
			fmt.Fprintln(a.out, line)
		}
		if a.cfg.ShowStatusBar {
			fmt.Fprintln(a.out, statusBar(status, a.width))
		}
	}
	a.profile.markStage("present")
	a.profile.endFrame()
	return err
}

func (a *App) statusText(base string) string {
	p := a.store.Parameters()
	text := fmt.Sprintf("%s | fft %d win %s decay %.2f/%.2f | src=%s",
		base, p.FFTSize, p.Window, p.DecreaseStart, p.DecreaseAcceleration, a.cfg.SourceLabel)
	if s, ok := a.source.(seeker); ok && s.SampleRate() > 0 {
		text += fmt.Sprintf(" @%.1fs", float64(s.Position())/s.SampleRate())
	}
	return text
}

// handleInput applies a key command to the configuration or renderer.
func (a *App) handleInput(evt inputEvent) {
	if evt == inputEventLayoutNext {
		a.mu.Lock()
		next := render.NextLayout(a.renderer.LayoutName())
		a.renderer.SetLayout(next)
		a.mu.Unlock()
		a.log.Printf("layout -> %s", next)
		return
	}
	if evt == inputEventSeekBack || evt == inputEventSeekForward {
		s, ok := a.source.(seeker)
		if !ok {
			return
		}
		offset := int(seekStep * s.SampleRate())
		if evt == inputEventSeekBack {
			offset = -offset
		}
		s.Seek(s.Position() + offset)
		return
	}
	p := a.store.Update(func(p *params.Parameters) {
		applyControl(p, evt)
	})
	a.log.Printf("controls -> fft=%d window=%s bands=%d buffer=%t decrease=%.2f",
		p.FFTSize, p.Window, len(p.Bands), p.BufferEnabled, p.DecreaseStart)
}

// applyControl maps a configuration key command onto p.
func applyControl(p *params.Parameters, evt inputEvent) {
	switch evt {
	case inputEventBandsUp:
		p.SetNumBands(len(p.Bands) + 1)
	case inputEventBandsDown:
		if len(p.Bands) > 1 {
			p.SetNumBands(len(p.Bands) - 1)
		}
	case inputEventDecreaseUp:
		p.DecreaseStart += decreaseStep
	case inputEventDecreaseDown:
		p.DecreaseStart = max(0, p.DecreaseStart-decreaseStep)
	case inputEventBufferToggle:
		p.BufferEnabled = !p.BufferEnabled
	case inputEventWindowNext:
		p.Window = p.Window.Next()
	case inputEventFFTHalve:
		p.SetFFTSize(p.FFTSize / 2)
	case inputEventFFTDouble:
		p.SetFFTSize(p.FFTSize * 2)
	}
}

// keyEvent translates a key press; ok is false for unbound keys.
func keyEvent(char rune, key keyboard.Key) (inputEvent, bool) {
	if key == keyboard.KeyEsc || key == keyboard.KeyCtrlC {
		return inputEventQuit, true
	}
	switch char {
	case 'q', 'Q':
		return inputEventQuit, true
	case '+', '=':
		return inputEventBandsUp, true
	case '-', '_':
		return inputEventBandsDown, true
	case ']':
		return inputEventDecreaseUp, true
	case '[':
		return inputEventDecreaseDown, true
	case 'b', 'B':
		return inputEventBufferToggle, true
	case 'w', 'W':
		return inputEventWindowNext, true
	case 'f':
		return inputEventFFTHalve, true
	case 'F':
		return inputEventFFTDouble, true
	case 'l', 'L':
		return inputEventLayoutNext, true
	case ',', '<':
		return inputEventSeekBack, true
	case '.', '>':
		return inputEventSeekForward, true
	}
	return 0, false
}

// Snapshot returns a copy of the latest snapshot.
func (a *App) Snapshot() analyzer.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot.Clone()
}

// FPS returns the frame rate measured on the last tick.
func (a *App) FPS() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fps
}

// Source names the active audio source.
func (a *App) Source() string { return a.cfg.SourceLabel }

// Rendering reports the renderer settings.
func (a *App) Rendering() web.RendererStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return web.RendererStatus{
		Layout:    a.renderer.LayoutName(),
		Palette:   a.renderer.PaletteName(),
		ColorMode: a.renderer.ColorModeName(),
	}
}

// SetRendering reconfigures the renderer.
func (a *App) SetRendering(s web.RendererStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.renderer.Configure(s.Palette, s.Layout, s.ColorMode)
}

// NoiseFloor returns the level at or below which bands render empty.
func (a *App) NoiseFloor() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.noiseFloor
}

// SetNoiseFloor sets the render gate, clamped to [0, 0.99].
func (a *App) SetNoiseFloor(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.noiseFloor = min(max(v, 0), 0.99)
}

func (a *App) ensureDimensions() {
	if a.renderer.Windowed() {
		return
	}
	fd := int(os.Stdout.Fd())
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return
	}

	renderHeight := h
	if a.cfg.ShowStatusBar && renderHeight > 1 {
		renderHeight--
	}
	if w == a.width && h == a.height && renderHeight == a.renderHeight {
		return
	}

	a.width = w
	a.height = h
	a.renderHeight = renderHeight
	a.mu.Lock()
	a.renderer.Resize(w, renderHeight)
	a.mu.Unlock()
}

func (a *App) startInputListener(ctx context.Context) {
	if err := keyboard.Open(); err != nil {
		a.log.Printf("keyboard input disabled: %v", err)
		a.inputEvents = nil
		return
	}

	events := make(chan inputEvent, 16)
	a.inputEvents = events

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = keyboard.Close()
		})
	}()

	go func() {
		defer close(events)
		defer closeOnce.Do(func() {
			_ = keyboard.Close()
		})
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			evt, ok := keyEvent(char, key)
			if !ok {
				continue
			}
			if evt == inputEventQuit {
				events <- evt
				return
			}
			select {
			case events <- evt:
			default:
			}
		}
	}()
}

func statusBar(text string, width int) string {
	if width <= 0 {
		return text
	}
	if len(text) >= width {
		return text[:width]
	}
	return text + strings.Repeat(" ", width-len(text))
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\x1b[2J")
	moveCursorHome(w)
}

func moveCursorHome(w io.Writer) { fmt.Fprint(w, "\x1b[H") }

func hideCursor(w io.Writer) { fmt.Fprint(w, "\x1b[?25l") }

func showCursor(w io.Writer) { fmt.Fprint(w, "\x1b[?25h") }

func enterAltScreen(w io.Writer) { fmt.Fprint(w, "\x1b[?1049h") }

func exitAltScreen(w io.Writer) { fmt.Fprint(w, "\x1b[?1049l\x1b[0m") }
