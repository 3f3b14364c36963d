package analyzer

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/guidoenr/bandscope/internal/params"
	"github.com/guidoenr/bandscope/internal/series"
)

// Channel selects the left or right input channel.
type Channel int

const (
	ChannelLeft Channel = iota
	ChannelRight
)

func (c Channel) String() string {
	if c == ChannelRight {
		return "right"
	}
	return "left"
}

// ErrAcquisition wraps failures reported by the spectrum source.
var ErrAcquisition = errors.New("analyzer: spectrum acquisition failed")

// ConfigSource provides the configuration read at the start of every tick.
type ConfigSource interface {
	Parameters() params.Parameters
}

// SpectrumSource produces n non-negative magnitudes for one channel.
type SpectrumSource interface {
	Spectrum(ch Channel, window params.Window, n int) ([]float64, error)
}

// Stage names reported to a stage hook, in execution order.
const (
	StageReconfigure = "reconfigure"
	StageAcquire     = "acquire"
	StageAggregate   = "aggregate"
	StageSmooth      = "smooth"
)

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for recoverable failures.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithCapacity overrides the maximum bin and band counts.
func WithCapacity(bins, bands int) Option {
	return func(p *Pipeline) {
		p.maxBins = bins
		p.maxBands = bands
	}
}

// WithStageHook registers fn to be called after each stage of a tick.
func WithStageHook(fn func(stage string)) Option {
	return func(p *Pipeline) {
		p.stageHook = fn
	}
}

// Pipeline owns the bin buffer, aggregator and smoother and advances them once per tick.
type Pipeline struct {
	cfg ConfigSource
	src SpectrumSource
	log *log.Logger

	maxBins  int
	maxBands int

	bins     *series.Stereo
	agg      *Aggregator
	smoother *Smoother

	snapshot  Snapshot
	ticks     uint64
	lastErr   string
	stageHook func(stage string)
}

// NewPipeline wires a pipeline to its collaborators.
func NewPipeline(cfg ConfigSource, src SpectrumSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		src:      src,
		log:      log.New(os.Stderr, "", log.LstdFlags),
		maxBins:  params.MaxFFTSize,
		maxBands: params.MaxBands,
	}
	for _, opt := range opts {
		opt(p)
	}
	initial := cfg.Parameters()
	p.bins = series.NewStereo(p.maxBins)
	p.agg = NewAggregator(p.maxBands)
	p.smoother = NewSmoother(p.maxBands, initial.DecreaseStart)
	return p
}

// Tick runs one full update of dt seconds and publishes a new snapshot.
//
// A bin or band resize that exceeds capacity aborts the tick and returns the
// previous snapshot. An acquisition failure keeps the old bins, still runs
// aggregation and smoothing, and is returned wrapped in ErrAcquisition.
func (p *Pipeline) Tick(dt float64) (Snapshot, error) {
	cfg := p.cfg.Parameters()

	if cfg.FFTSize != p.bins.Size() {
		if err := p.bins.ResizeTo(cfg.FFTSize); err != nil {
			p.report(err)
			return p.snapshot, err
		}
	}
	if len(cfg.Bands) != p.agg.Len() {
		if err := p.resizeBands(len(cfg.Bands)); err != nil {
			p.report(err)
			return p.snapshot, err
		}
	}
	p.smoother.SetBase(cfg.DecreaseStart)
	p.mark(StageReconfigure)

	acqErr := p.acquire(cfg)
	p.mark(StageAcquire)

	p.agg.Aggregate(p.bins, cfg.Bands)
	p.mark(StageAggregate)

	p.smoother.Update(p.agg.Left(), p.agg.Right(), cfg.DecreaseAcceleration, dt)
	p.mark(StageSmooth)

	p.ticks++
	p.snapshot = Snapshot{
		Tick:          p.ticks,
		Resolution:    cfg.Resolution(),
		BufferEnabled: cfg.BufferEnabled,
		BinsLeft:      p.bins.Left().Values(),
		BinsRight:     p.bins.Right().Values(),
		RawLeft:       p.agg.Left().Values(),
		RawRight:      p.agg.Right().Values(),
		BufferedLeft:  p.smoother.Left().Values(),
		BufferedRight: p.smoother.Right().Values(),
	}
	if acqErr == nil {
		p.lastErr = ""
	}
	return p.snapshot, acqErr
}

// Snapshot returns the most recently published output.
func (p *Pipeline) Snapshot() Snapshot {
	return p.snapshot
}

// Bins exposes the bin buffer for read-only inspection.
func (p *Pipeline) Bins() *series.Stereo { return p.bins }

// Smoother exposes the band smoother for read-only inspection.
func (p *Pipeline) Smoother() *Smoother { return p.smoother }

func (p *Pipeline) resizeBands(n int) error {
	if err := p.agg.Resize(n); err != nil {
		return fmt.Errorf("resize bands to %d: %w", n, err)
	}
	if err := p.smoother.Resize(n); err != nil {
		return fmt.Errorf("resize band buffers to %d: %w", n, err)
	}
	return nil
}

func (p *Pipeline) acquire(cfg params.Parameters) error {
	n := p.bins.Size()
	if n == 0 || p.src == nil {
		return nil
	}
	left, err := p.src.Spectrum(ChannelLeft, cfg.Window, n)
	if err != nil {
		return p.report(fmt.Errorf("%w: %s channel: %v", ErrAcquisition, ChannelLeft, err))
	}
	right, err := p.src.Spectrum(ChannelRight, cfg.Window, n)
	if err != nil {
		return p.report(fmt.Errorf("%w: %s channel: %v", ErrAcquisition, ChannelRight, err))
	}
	if err := p.bins.Ingest(left, right); err != nil {
		return p.report(fmt.Errorf("%w: %w", ErrAcquisition, err))
	}
	return nil
}

// report logs err unless the previous tick already failed the same way.
func (p *Pipeline) report(err error) error {
	msg := err.Error()
	if msg != p.lastErr {
		p.log.Printf("tick %d: %v", p.ticks+1, err)
		p.lastErr = msg
	}
	return err
}

func (p *Pipeline) mark(stage string) {
	if p.stageHook != nil {
		p.stageHook(stage)
	}
}
