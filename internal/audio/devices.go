package audio

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	initOnce sync.Once
	termOnce sync.Once
	initErr  error
)

// Initialize starts PortAudio once per process.
func Initialize() error {
	initOnce.Do(func() {
		initErr = portaudio.Initialize()
	})
	return initErr
}

// Terminate balances a successful Initialize.
func Terminate() {
	if initErr != nil {
		return
	}
	termOnce.Do(func() {
		_ = portaudio.Terminate()
	})
}

// Device describes a PortAudio input device.
type Device struct {
	Name            string
	HostAPI         string
	MaxInput        int
	DefaultSampleHz float64
	IsDefaultInput  bool
}

// Stereo reports whether the device can deliver separate left and right channels.
func (d Device) Stereo() bool { return d.MaxInput >= 2 }

// ListInputDevices returns every device with at least one input channel, sorted by host and name.
func ListInputDevices() ([]Device, error) {
	hosts, err := portaudio.HostApis()
	if err != nil {
		return nil, fmt.Errorf("host apis: %w", err)
	}

	defaultInputIndex := -1
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultInputIndex = def.Index
	}

	var devices []Device
	for _, host := range hosts {
		for _, d := range host.Devices {
			if d.MaxInputChannels == 0 {
				continue
			}
			devices = append(devices, Device{
				Name:            d.Name,
				HostAPI:         host.Name,
				MaxInput:        d.MaxInputChannels,
				DefaultSampleHz: d.DefaultSampleRate,
				IsDefaultInput:  d.Index == defaultInputIndex,
			})
		}
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].HostAPI == devices[j].HostAPI {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].HostAPI < devices[j].HostAPI
	})

	return devices, nil
}
