//go:build sdl

package render

import (
	"fmt"

	"github.com/veandco/go-sdl2/sdl"
)

type sdlState struct {
	initialized bool
	window      *sdl.Window
	renderer    *sdl.Renderer
	width       int
	height      int
	windowTitle string
}

func (r *Renderer) initSDL(width, height int) error {
	if r.sdl != nil {
		r.useANSI = false
		return nil
	}
	if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
		return err
	}
	r.sdl = &sdlState{initialized: true}
	r.useANSI = false
	return nil
}

func (r *Renderer) ensureSDLResources() error {
	if r.sdl == nil {
		return fmt.Errorf("SDL backend not initialized")
	}
	state := r.sdl
	if !state.initialized {
		if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
			return err
		}
		state.initialized = true
	}
	if state.window == nil {
		window, err := sdl.CreateWindow(
			"bandscope",
			sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
			int32(r.width), int32(r.height),
			sdl.WINDOW_SHOWN,
		)
		if err != nil {
			return err
		}
		state.window = window
	}
	if state.renderer == nil {
		renderer, err := sdl.CreateRenderer(state.window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
		if err != nil {
			return err
		}
		state.renderer = renderer
	}
	if state.width != r.width || state.height != r.height {
		_ = state.renderer.SetLogicalSize(int32(r.width), int32(r.height))
		state.width = r.width
		state.height = r.height
	}
	return nil
}

func (r *Renderer) renderSDL(lv levels, status string) Frame {
	if err := r.ensureSDLResources(); err != nil {
		return Frame{
			Status: fmt.Sprintf("SDL init error: %v", err),
			Present: func(string) error {
				return err
			},
		}
	}
	state := r.sdl
	width, height := r.width, r.height

	return Frame{
		Status: status,
		Present: func(status string) error {
			if status != "" && status != state.windowTitle && state.window != nil {
				state.window.SetTitle(status)
				state.windowTitle = status
			}
			_ = state.renderer.SetDrawColor(0, 0, 0, 255)
			if err := state.renderer.Clear(); err != nil {
				return err
			}
			columns := len(lv.top)
			if columns > 0 {
				barWidth := width / columns
				gap := 0
				if barWidth > 4 {
					gap = barWidth / 8
				}
				for x := 0; x < columns; x++ {
					left := int32(x*barWidth + gap)
					w := int32(max(1, barWidth-2*gap))
					if lv.bottom == nil {
						h := int32(BarHeight(lv.top[x], height))
						r.setBarColor(state.renderer, x, columns)
						_ = state.renderer.FillRect(&sdl.Rect{X: left, Y: int32(height) - h, W: w, H: h})
						continue
					}
					mid := height / 2
					up := int32(BarHeight(lv.top[x], mid))
					down := int32(BarHeight(lv.bottom[x], height-mid))
					r.setBarColor(state.renderer, x, columns)
					_ = state.renderer.FillRect(&sdl.Rect{X: left, Y: int32(mid) - up, W: w, H: up})
					_ = state.renderer.FillRect(&sdl.Rect{X: left, Y: int32(mid), W: w, H: down})
				}
			}
			state.renderer.Present()
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch event.(type) {
				case *sdl.QuitEvent:
					return ErrRendererQuit
				}
			}
			return nil
		},
	}
}

func (r *Renderer) setBarColor(renderer *sdl.Renderer, x, columns int) {
	pos := 0
	if columns > 1 {
		pos = x * (r.width - 1) / (columns - 1)
	}
	h, s, v := r.colorFor(pos, 1)
	rr, gg, bb := hsvToRGB(h, s, v)
	_ = renderer.SetDrawColor(uint8(clampFloat(rr*255, 0, 255)), uint8(clampFloat(gg*255, 0, 255)), uint8(clampFloat(bb*255, 0, 255)), 255)
}

func (r *Renderer) resizeSDL() {
	if r.sdl == nil {
		return
	}
	r.sdl.width = 0
	r.sdl.height = 0
}

func (r *Renderer) closeSDL() error {
	if r.sdl == nil {
		return nil
	}
	if r.sdl.renderer != nil {
		r.sdl.renderer.Destroy()
		r.sdl.renderer = nil
	}
	if r.sdl.window != nil {
		r.sdl.window.Destroy()
		r.sdl.window = nil
	}
	if r.sdl.initialized {
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		r.sdl.initialized = false
	}
	r.sdl = nil
	return nil
}

func (r *Renderer) windowedSDL() bool {
	return r.sdl != nil
}

func SupportsSDL() bool { return true }
