package analyzer

import (
	"errors"
	"io"
	"log"
	"math"
	"testing"

	"github.com/guidoenr/bandscope/internal/params"
	"github.com/guidoenr/bandscope/internal/series"
)

const tolerance = 1e-9

type fakeConfig struct {
	p params.Parameters
}

func (f *fakeConfig) Parameters() params.Parameters { return f.p.Clone() }

type constSource struct {
	value float64
	err   error
	calls int
}

func (c *constSource) Spectrum(ch Channel, window params.Window, n int) ([]float64, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = c.value
	}
	return out, nil
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func near(a, b float64) bool { return math.Abs(a-b) < tolerance }

func TestAverageBandRange(t *testing.T) {
	bins := []float64{1, 2, 3, 4, 5}
	start, end, ok := BinRange(params.Band{Min: 1, Max: 3, Resolution: 1})
	if !ok || start != 1 || end != 3 {
		t.Fatalf("BinRange=(%d,%d,%v) want (1,3,true)", start, end, ok)
	}
	if got := Average(bins, start, end); !near(got, 3.0) {
		t.Fatalf("average=%f want=3.0", got)
	}
}

func TestAverageNarrowBandIsZero(t *testing.T) {
	bins := []float64{1, 2, 3, 4, 5}
	start, end, ok := BinRange(params.Band{Min: 1.2, Max: 1.4, Resolution: 1})
	if !ok || start != 2 || end != 1 {
		t.Fatalf("BinRange=(%d,%d,%v) want (2,1,true)", start, end, ok)
	}
	if got := Average(bins, start, end); got != 0 {
		t.Fatalf("average=%f want=0", got)
	}
}

func TestBinRangeUnresolved(t *testing.T) {
	for _, res := range []float64{0, -1, math.NaN()} {
		if _, _, ok := BinRange(params.Band{Min: 0, Max: 100, Resolution: res}); ok {
			t.Fatalf("resolution %f should be unresolved", res)
		}
	}
}

func TestAverageClampsToSlice(t *testing.T) {
	bins := []float64{2, 4, 6}
	if got := Average(bins, -3, 10); !near(got, 4) {
		t.Fatalf("clamped average=%f want=4", got)
	}
	if got := Average(nil, 0, 5); got != 0 {
		t.Fatalf("empty slice average=%f want=0", got)
	}
}

func TestAggregatorUnresolvedBandReportsZero(t *testing.T) {
	bins := series.NewStereo(8)
	_ = bins.ResizeTo(4)
	_ = bins.Ingest([]float64{1, 1, 1, 1}, []float64{2, 2, 2, 2})

	agg := NewAggregator(4)
	_ = agg.Resize(2)
	agg.Aggregate(bins, []params.Band{
		{Min: 0, Max: 3, Resolution: 1},
		{Min: 0, Max: 3, Resolution: 0},
	})
	if agg.Left().At(0) != 1 || agg.Right().At(0) != 2 {
		t.Fatalf("band 0 = (%f,%f) want (1,2)", agg.Left().At(0), agg.Right().At(0))
	}
	if agg.Left().At(1) != 0 || agg.Right().At(1) != 0 {
		t.Fatalf("unresolved band should be zero")
	}
}

func TestStepRising(t *testing.T) {
	buffered, rate := 0.0, 0.05
	for _, raw := range []float64{0.2, 0.5} {
		buffered, rate = Step(raw, buffered, rate*3, 0.05, 0.2, 1)
		if buffered != raw {
			t.Fatalf("buffered=%f want=%f", buffered, raw)
		}
		if rate != 0.05 {
			t.Fatalf("rate=%f want base 0.05", rate)
		}
	}
}

func TestSmootherDecay(t *testing.T) {
	raw := series.NewBounded(1, 0.0)
	_ = raw.Resize(1)
	s := NewSmoother(1, 0.05)
	_ = s.Resize(1)

	raw.Set(0, 0.5)
	s.Update(raw, raw, 0.2, 1)
	if s.Left().At(0) != 0.5 {
		t.Fatalf("rising buffered=%f want=0.5", s.Left().At(0))
	}

	raw.Set(0, 0.1)
	rates, _ := s.Rates()
	want := []struct{ buffered, rate float64 }{
		{0.45, 0.06},
		{0.39, 0.072},
	}
	for i, w := range want {
		s.Update(raw, raw, 0.2, 1)
		if !near(s.Left().At(0), w.buffered) || !near(rates.At(0), w.rate) {
			t.Fatalf("tick %d: buffered=%f rate=%f want %f %f", i+1, s.Left().At(0), rates.At(0), w.buffered, w.rate)
		}
	}

	raw.Set(0, 0)
	prev := s.Left().At(0)
	for i := 0; i < 50; i++ {
		s.Update(raw, raw, 0.2, 1)
		cur := s.Left().At(0)
		if cur > prev {
			t.Fatalf("buffered rose while decaying: %f -> %f", prev, cur)
		}
		if cur < EpsilonFloor {
			t.Fatalf("buffered fell below floor: %f", cur)
		}
		prev = cur
	}
	if prev != EpsilonFloor {
		t.Fatalf("buffered=%f want floor after long decay", prev)
	}
}

func TestStepFloor(t *testing.T) {
	buffered, _ := Step(0, 0.01, 0.05, 0.05, 0.2, 1)
	if buffered != EpsilonFloor {
		t.Fatalf("buffered=%f want floor %f", buffered, EpsilonFloor)
	}
}

func TestStepRecoversFromNonFinite(t *testing.T) {
	buffered, rate := Step(0.3, math.NaN(), 0.05, 0.05, 0.2, 1)
	if buffered != 0.3 || rate != 0.05 {
		t.Fatalf("NaN buffer: got (%f,%f) want (0.3,0.05)", buffered, rate)
	}
	buffered, rate = Step(0, 0.5, math.Inf(1), 0.05, 0.2, 1)
	if buffered != EpsilonFloor || !near(rate, 0.06) {
		t.Fatalf("Inf rate: got (%f,%f) want (%f,0.06)", buffered, rate, EpsilonFloor)
	}
}

func TestPipelineRecoversFromNaNDecrease(t *testing.T) {
	cfg := &fakeConfig{p: params.Defaults()}
	cfg.p.DecreaseStart = math.NaN()
	src := &constSource{value: 1}
	p := NewPipeline(cfg, src, WithLogger(quietLogger()))

	_, _ = p.Tick(1)
	src.value = 0.1
	_, _ = p.Tick(1)

	cfg.p.DecreaseStart = 0.05
	_, _ = p.Tick(1)
	_, _ = p.Tick(1)
	src.value = 0.9
	snap, err := p.Tick(1)
	if err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	for i, v := range snap.BufferedLeft {
		if !near(v, 0.9) {
			t.Fatalf("band %d buffered=%f want 0.9", i, v)
		}
	}
	left, right := p.Smoother().Rates()
	for i := 0; i < left.Len(); i++ {
		if left.At(i) != 0.05 || right.At(i) != 0.05 {
			t.Fatalf("band %d rates=(%f,%f) want base 0.05", i, left.At(i), right.At(i))
		}
	}
}

func TestSmootherSetBaseKeepsAcceleratedRates(t *testing.T) {
	raw := series.NewBounded(2, 0.0)
	_ = raw.Resize(2)
	s := NewSmoother(2, 0.05)
	_ = s.Resize(2)

	raw.Set(0, 1)
	raw.Set(1, 1)
	s.Update(raw, raw, 0.2, 1)
	raw.Set(1, 0)
	s.Update(raw, raw, 0.2, 1)

	left, right := s.Rates()
	if left.At(0) != 0.05 || !near(left.At(1), 0.06) {
		t.Fatalf("unexpected rates before change: %v", left.Values())
	}

	s.SetBase(0.1)
	if left.At(0) != 0.1 || right.At(0) != 0.1 {
		t.Fatalf("rate at old base not reset: left=%v right=%v", left.Values(), right.Values())
	}
	if !near(left.At(1), 0.06) {
		t.Fatalf("accelerated rate overridden: %f", left.At(1))
	}

	_ = s.Resize(0)
	_ = s.Resize(2)
	if left.At(1) != 0.1 {
		t.Fatalf("new slot rate=%f want new base", left.At(1))
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	cfg := &fakeConfig{p: params.Defaults()}
	src := &constSource{value: 1.0}
	p := NewPipeline(cfg, src, WithLogger(quietLogger()))

	snap, err := p.Tick(1.0 / 60)
	if err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if len(snap.BinsLeft) != 512 || snap.Bands() != 8 {
		t.Fatalf("bins=%d bands=%d want 512/8", len(snap.BinsLeft), snap.Bands())
	}
	for i := 0; i < 8; i++ {
		if snap.RawLeft[i] != 1 || snap.RawRight[i] != 1 {
			t.Fatalf("band %d raw=(%f,%f) want 1", i, snap.RawLeft[i], snap.RawRight[i])
		}
		if snap.BufferedLeft[i] != 1 || snap.BufferedRight[i] != 1 {
			t.Fatalf("band %d buffered=(%f,%f) want 1", i, snap.BufferedLeft[i], snap.BufferedRight[i])
		}
	}
	if src.calls != 2 {
		t.Fatalf("spectrum calls=%d want 2", src.calls)
	}
}

func TestPipelineShrinkBands(t *testing.T) {
	cfg := &fakeConfig{p: params.Defaults()}
	src := &constSource{value: 1.0}
	p := NewPipeline(cfg, src, WithLogger(quietLogger()))
	if _, err := p.Tick(0.016); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	cfg.p.SetNumBands(4)
	src.value = 0.5
	snap, err := p.Tick(0.016)
	if err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if snap.Bands() != 4 || len(snap.RawLeft) != 4 || len(snap.BufferedRight) != 4 || p.Smoother().Len() != 4 {
		t.Fatalf("band state not shrunk: snapshot=%d smoother=%d", snap.Bands(), p.Smoother().Len())
	}

	cfg.p.SetNumBands(8)
	snap, _ = p.Tick(0.016)
	for i := 4; i < 8; i++ {
		if snap.BufferedLeft[i] != 0.5 || snap.RawLeft[i] != 0.5 {
			t.Fatalf("band %d regrew with stale state: raw=%f buffered=%f", i, snap.RawLeft[i], snap.BufferedLeft[i])
		}
	}
}

func TestPipelineAcquisitionFailureKeepsBins(t *testing.T) {
	cfg := &fakeConfig{p: params.Defaults()}
	src := &constSource{value: 0.8}
	p := NewPipeline(cfg, src, WithLogger(quietLogger()))
	if _, err := p.Tick(0.016); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	src.err = errors.New("device unplugged")
	snap, err := p.Tick(0.016)
	if !errors.Is(err, ErrAcquisition) {
		t.Fatalf("err=%v want ErrAcquisition", err)
	}
	if snap.Tick != 2 {
		t.Fatalf("downstream stages should still publish, tick=%d", snap.Tick)
	}
	if snap.BinsLeft[0] != 0.8 || snap.RawLeft[0] != 0.8 {
		t.Fatalf("stale bins not retained: bin=%f raw=%f", snap.BinsLeft[0], snap.RawLeft[0])
	}
}

func TestPipelineCapacityExceeded(t *testing.T) {
	cfg := &fakeConfig{p: params.Defaults()}
	src := &constSource{value: 1}
	p := NewPipeline(cfg, src, WithLogger(quietLogger()), WithCapacity(256, 16))

	snap, err := p.Tick(0.016)
	if !errors.Is(err, series.ErrCapacityExceeded) {
		t.Fatalf("err=%v want ErrCapacityExceeded", err)
	}
	if snap.Tick != 0 || src.calls != 0 || p.Bins().Size() != 0 {
		t.Fatalf("tick should abort before acquisition: tick=%d calls=%d size=%d", snap.Tick, src.calls, p.Bins().Size())
	}

	cfg.p.FFTSize = 256
	if _, err := p.Tick(0.016); err != nil {
		t.Fatalf("Tick after fix error: %v", err)
	}
}

func TestPipelineBaseRateChange(t *testing.T) {
	cfg := &fakeConfig{p: params.Defaults()}
	src := &constSource{value: 1}
	p := NewPipeline(cfg, src, WithLogger(quietLogger()))
	_, _ = p.Tick(1)

	cfg.p.DecreaseStart = 0.02
	_, _ = p.Tick(1)
	left, _ := p.Smoother().Rates()
	for i := 0; i < left.Len(); i++ {
		if left.At(i) != 0.02 {
			t.Fatalf("band %d rate=%f want 0.02", i, left.At(i))
		}
	}
}

func TestPipelineStageOrder(t *testing.T) {
	var stages []string
	cfg := &fakeConfig{p: params.Defaults()}
	p := NewPipeline(cfg, &constSource{value: 1}, WithLogger(quietLogger()),
		WithStageHook(func(stage string) { stages = append(stages, stage) }))
	_, _ = p.Tick(0.016)

	want := []string{StageReconfigure, StageAcquire, StageAggregate, StageSmooth}
	if len(stages) != len(want) {
		t.Fatalf("stages=%v want=%v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stages=%v want=%v", stages, want)
		}
	}
}

func TestSnapshotMonoAndGate(t *testing.T) {
	s := Snapshot{
		BufferEnabled: true,
		RawLeft:       []float64{0.2, 0.6},
		RawRight:      []float64{0.4, 0.2},
		BufferedLeft:  []float64{0.5, 1.0},
		BufferedRight: []float64{0.7, 0.6},
	}
	if got := s.Mono(0); !near(got, 0.6) {
		t.Fatalf("buffered mono=%f want=0.6", got)
	}
	s.BufferEnabled = false
	if got := s.Mono(1); !near(got, 0.4) {
		t.Fatalf("raw mono=%f want=0.4", got)
	}
	if got := s.Mono(5); got != 0 {
		t.Fatalf("out of range mono=%f want=0", got)
	}

	gated := s.Gate(0.5)
	if gated.RawLeft[0] != 0 || !near(gated.BufferedLeft[1], 1.0) || !near(gated.BufferedRight[1], 0.2) {
		t.Fatalf("unexpected gate result: %+v", gated)
	}
	if s.RawLeft[0] != 0.2 {
		t.Fatalf("Gate modified the source snapshot")
	}
}
