package audio

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/guidoenr/bandscope/internal/params"
	"github.com/guidoenr/bandscope/internal/spectrum"
)

// Capture wraps a PortAudio input stream and keeps the latest stereo frames in a ring buffer.
type Capture struct {
	stream     *portaudio.Stream
	sampleRate float64
	channels   int
	device     *portaudio.DeviceInfo

	mu    sync.RWMutex
	left  []float64
	right []float64
	index int
}

// Config controls how a Capture instance is created.
type Config struct {
	DeviceName string
	// BufferSize is the ring length in frames; it bounds the largest FFT the capture can feed.
	BufferSize int
	Channels   int
}

const defaultBufferSize = params.MaxFFTSize

// NewCapture opens a PortAudio stream using the provided configuration.
func NewCapture(cfg Config) (*Capture, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}

	device, err := findDevice(cfg.DeviceName)
	if err != nil {
		return nil, err
	}
	if device.MaxInputChannels < cfg.Channels {
		cfg.Channels = device.MaxInputChannels
	}

	inParams := portaudio.StreamDeviceParameters{
		Device:   device,
		Channels: cfg.Channels,
		Latency:  device.DefaultLowInputLatency,
	}

	sampleRate := device.DefaultSampleRate

	capture := &Capture{
		sampleRate: sampleRate,
		left:       make([]float64, cfg.BufferSize),
		right:      make([]float64, cfg.BufferSize),
		channels:   cfg.Channels,
		device:     device,
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input:           inParams,
		Output:          portaudio.StreamDeviceParameters{},
		SampleRate:      sampleRate,
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}, capture.process)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	capture.stream = stream

	if err := capture.stream.Start(); err != nil {
		_ = capture.stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}

	return capture, nil
}

// Close stops and closes the underlying PortAudio stream.
func (c *Capture) Close() error {
	if c.stream == nil {
		return nil
	}
	if err := c.stream.Stop(); err != nil && !errorsIsInvalidStreamState(err) {
		return err
	}
	return c.stream.Close()
}

// SampleRate returns the stream sample rate.
func (c *Capture) SampleRate() float64 {
	return c.sampleRate
}

// Channels returns the number of input channels actually opened.
func (c *Capture) Channels() int {
	return c.channels
}

// Device returns the PortAudio device associated with the capture stream.
func (c *Capture) Device() *portaudio.DeviceInfo {
	return c.device
}

// Frames copies the latest n frames out of the ring, oldest first.
func (c *Capture) Frames(n int) ([]float64, []float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	size := len(c.left)
	if n > size {
		return nil, nil, fmt.Errorf("%w: ring holds %d frames, need %d", spectrum.ErrNotEnoughSamples, size, n)
	}
	left := make([]float64, n)
	right := make([]float64, n)
	start := (c.index - n + size) % size
	for i := 0; i < n; i++ {
		j := (start + i) % size
		left[i] = c.left[j]
		right[i] = c.right[j]
	}
	return left, right, nil
}

func (c *Capture) process(in []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(in)
}

// write splits interleaved samples into the channel rings. Mono input feeds both channels.
func (c *Capture) write(in []float32) {
	channels := c.channels
	if channels <= 0 {
		return
	}
	size := len(c.left)
	frames := len(in) / channels
	for f := 0; f < frames; f++ {
		base := f * channels
		l := float64(in[base])
		r := l
		if channels > 1 {
			r = float64(in[base+1])
		}
		c.left[c.index] = l
		c.right[c.index] = r
		c.index++
		if c.index == size {
			c.index = 0
		}
	}
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	if name != "" {
		return findDeviceByName(name)
	}

	if dev, err := portaudio.DefaultInputDevice(); err == nil && dev != nil && dev.MaxInputChannels > 0 {
		return dev, nil
	}

	if host, err := portaudio.DefaultHostApi(); err == nil {
		if host != nil && host.DefaultInputDevice != nil && host.DefaultInputDevice.MaxInputChannels > 0 {
			return host.DefaultInputDevice, nil
		}
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	candidate := pickBestDevice(devices)
	if candidate != nil {
		return candidate, nil
	}

	return nil, fmt.Errorf("no suitable audio input device found")
}

func findDeviceByName(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	name = strings.ToLower(name)
	for _, device := range devices {
		if device.MaxInputChannels == 0 {
			continue
		}
		deviceName := strings.ToLower(device.Name)
		if strings.Contains(deviceName, name) {
			return device, nil
		}
	}

	return nil, fmt.Errorf("audio device %q not found", name)
}

func pickBestDevice(devices []*portaudio.DeviceInfo) *portaudio.DeviceInfo {
	type scored struct {
		dev   *portaudio.DeviceInfo
		score int
	}

	var (
		results  []scored
		keywords = []string{"monitor", "loopback", "stereo mix", "what u hear", "mix"}
	)

	var defaultInputIndex = -1
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultInputIndex = def.Index
	}

	var defaultHostIndex = -1
	if host, err := portaudio.DefaultHostApi(); err == nil && host != nil && host.DefaultInputDevice != nil {
		defaultHostIndex = host.DefaultInputDevice.Index
	}

	for _, d := range devices {
		if d == nil || d.MaxInputChannels <= 0 {
			continue
		}

		// Separate left and right channels matter more than extra inputs.
		score := min(d.MaxInputChannels, 2) * 15

		if d.Index == defaultInputIndex {
			score += 50
		}
		if d.Index == defaultHostIndex {
			score += 40
		}

		lower := strings.ToLower(d.Name)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score += 20
				break
			}
		}

		if strings.Contains(lower, "default") {
			score += 10
		}

		results = append(results, scored{dev: d, score: score})
	}

	if len(results) == 0 {
		return nil
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score == results[j].score {
			return strings.ToLower(results[i].dev.Name) < strings.ToLower(results[j].dev.Name)
		}
		return results[i].score > results[j].score
	})

	return results[0].dev
}

// errorsIsInvalidStreamState checks if the provided error stems from stopping an already stopped stream.
func errorsIsInvalidStreamState(err error) bool {
	if err == nil {
		return false
	}
	const invalidStateMsg = "PaErrorCode -9986"
	return strings.Contains(err.Error(), invalidStateMsg)
}

// AutoDetectDevice returns the best available input device PortAudio can find.
func AutoDetectDevice() (*portaudio.DeviceInfo, error) {
	return findDevice("")
}
