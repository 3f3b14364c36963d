package render

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/guidoenr/bandscope/internal/analyzer"
)

// ErrRendererQuit is returned by Frame.Present when the user closes the window.
var ErrRendererQuit = errors.New("render: quit requested")

type colorMode string

const (
	colorModeChromatic colorMode = "chromatic"
	colorModeFire      colorMode = "fire"
	colorModeAurora    colorMode = "aurora"
	colorModeMono      colorMode = "mono"
)

var colorModeNames = []string{
	string(colorModeChromatic),
	string(colorModeFire),
	string(colorModeAurora),
	string(colorModeMono),
}

// ColorModeNames returns the supported color modes.
func ColorModeNames() []string {
	out := make([]string, len(colorModeNames))
	copy(out, colorModeNames)
	sort.Strings(out)
	return out
}

func parseColorMode(name string) colorMode {
	switch strings.ToLower(name) {
	case "fire":
		return colorModeFire
	case "aurora", "cool":
		return colorModeAurora
	case "mono", "monochrome", "bw", "gray":
		return colorModeMono
	default:
		return colorModeChromatic
	}
}

// Renderer turns analyzer snapshots into bar frames.
type Renderer struct {
	width         int
	height        int
	palette       []rune
	paletteName   string
	layout        layoutFunc
	layoutName    string
	colorMode     colorMode
	useANSI       bool
	sdl           *sdlState
	statusBuilder strings.Builder
}

// Frame contains the rendered lines and status text. Present is set when a
// windowed backend draws the frame itself.
type Frame struct {
	Lines   []string
	Status  string
	Present func(status string) error
}

var (
	resetANSI       = "\x1b[0m"
	precomputedANSI [256]string
)

func init() {
	for i := range precomputedANSI {
		precomputedANSI[i] = "\x1b[38;5;" + strconv.Itoa(i) + "m"
	}
}

// New creates a Renderer.
func New(width, height int, paletteName, layoutName, colorModeName string, useANSI bool) (*Renderer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d height=%d", width, height)
	}
	r := &Renderer{
		width:   width,
		height:  height,
		useANSI: useANSI,
	}
	r.Configure(paletteName, layoutName, colorModeName)
	return r, nil
}

// Configure updates palette, layout and color mode.
func (r *Renderer) Configure(paletteName, layoutName, colorModeName string) {
	if paletteName == "" {
		paletteName = "blocks"
	}
	r.palette = Palette(paletteName)
	r.paletteName = paletteName

	key := strings.ToLower(layoutName)
	if fn, ok := layoutRegistry[key]; ok {
		r.layout = fn
		r.layoutName = key
	} else {
		r.layout = layoutBands
		r.layoutName = "bands"
	}

	r.colorMode = parseColorMode(colorModeName)
}

// SetLayout switches layout, keeping palette and colors.
func (r *Renderer) SetLayout(name string) {
	r.Configure(r.paletteName, name, string(r.colorMode))
}

// Resize updates the framebuffer dimensions.
func (r *Renderer) Resize(width, height int) {
	changed := false
	if width > 0 && r.width != width {
		r.width = width
		changed = true
	}
	if height > 0 && r.height != height {
		r.height = height
		changed = true
	}
	if changed {
		r.resizeSDL()
	}
}

func (r *Renderer) PaletteName() string   { return r.paletteName }
func (r *Renderer) LayoutName() string    { return r.layoutName }
func (r *Renderer) ColorModeName() string { return string(r.colorMode) }

// EnableSDL switches to the windowed backend at the given pixel size.
func (r *Renderer) EnableSDL(width, height int) error {
	if err := r.initSDL(width, height); err != nil {
		return err
	}
	r.Resize(width, height)
	return nil
}

// Windowed reports whether frames are drawn by the SDL backend.
func (r *Renderer) Windowed() bool { return r.windowedSDL() }

// Close releases backend resources.
func (r *Renderer) Close() error { return r.closeSDL() }

// Render draws snap. The bar height of a level v is v × the available rows.
func (r *Renderer) Render(snap analyzer.Snapshot, fps float64) Frame {
	if r.width <= 0 || r.height <= 0 {
		return Frame{}
	}
	status := r.buildStatus(snap, fps)
	if r.windowedSDL() {
		return r.renderSDL(r.layout(snap, r.sdlColumns(snap)), status)
	}

	lv := r.layout(snap, r.width)
	lines := make([]string, r.height)
	var builder strings.Builder
	for y := 0; y < r.height; y++ {
		builder.Reset()
		builder.Grow(r.width * 8)
		lastColor := -1
		for x := 0; x < r.width; x++ {
			glyph, fill := r.cell(lv, x, y)
			if r.useANSI && glyph != ' ' {
				fg := r.cellColor(x, fill)
				if fg != lastColor {
					builder.WriteString(colorCode(fg))
					lastColor = fg
				}
			}
			builder.WriteRune(glyph)
		}
		if r.useANSI {
			builder.WriteString(resetANSI)
		}
		lines[y] = builder.String()
	}
	return Frame{Lines: lines, Status: status}
}

// sdlColumns is one column per band, or one per four pixels for bins.
func (r *Renderer) sdlColumns(snap analyzer.Snapshot) int {
	if r.layoutName == "bins" {
		return max(1, r.width/4)
	}
	return max(1, snap.Bands())
}

// cell picks the glyph for column x, row y (0 is the top row) and reports how
// high up its bar the cell sits, in [0, 1].
func (r *Renderer) cell(lv levels, x, y int) (rune, float64) {
	if lv.bottom == nil {
		return r.barGlyph(lv.top[x], r.height, r.height-1-y)
	}
	upper := r.height / 2
	if y < upper {
		return r.barGlyph(lv.top[x], upper, upper-1-y)
	}
	return r.barGlyph(lv.bottom[x], r.height-upper, y-upper)
}

// barGlyph returns the glyph for the row-th cell from the base of a bar that
// is level × rows tall.
func (r *Renderer) barGlyph(level float64, rows, row int) (rune, float64) {
	if rows <= 0 {
		return ' ', 0
	}
	height := BarHeight(level, rows)
	cover := height - float64(row)
	fill := float64(row+1) / float64(rows)
	full := len(r.palette) - 1
	switch {
	case cover >= 1:
		return r.palette[full], fill
	case cover <= 0:
		return ' ', 0
	default:
		idx := clampInt(int(cover*float64(full)+0.5), 0, full)
		return r.palette[idx], fill
	}
}

// BarHeight is the bar height in rows for a level in [0, 1].
func BarHeight(level float64, maxHeight int) float64 {
	return clamp01(level) * float64(maxHeight)
}

func (r *Renderer) cellColor(x int, fill float64) int {
	h, s, v := r.colorFor(x, fill)
	return hsvToANSI(h, s, v)
}

// colorFor returns HSV for a cell in column x at relative bar height fill.
func (r *Renderer) colorFor(x int, fill float64) (float64, float64, float64) {
	pos := 0.0
	if r.width > 1 {
		pos = float64(x) / float64(r.width-1)
	}
	switch r.colorMode {
	case colorModeFire:
		return clamp01(0.12 - fill*0.12), clamp01(0.75 + fill*0.25), clamp01(0.55 + fill*0.45)
	case colorModeAurora:
		return clamp01(0.45 + pos*0.3), 0.6, clamp01(0.45 + fill*0.55)
	case colorModeMono:
		return 0, 0, clamp01(0.35 + fill*0.65)
	default:
		return clamp01(pos * 0.8), 0.7, clamp01(0.6 + fill*0.4)
	}
}

func colorCode(index int) string {
	if index < 0 {
		index = 0
	} else if index >= len(precomputedANSI) {
		index = len(precomputedANSI) - 1
	}
	return precomputedANSI[index]
}

func hsvToANSI(h, s, v float64) int {
	r, g, b := hsvToRGB(h, s, v)
	return rgbToANSI(r, g, b)
}

func hsvToRGB(h, s, v float64) (float64, float64, float64) {
	h = clamp01(h)
	s = clamp01(s)
	v = clamp01(v)

	if s == 0 {
		return v, v, v
	}

	hv := h * 6.0
	i := math.Floor(hv)
	f := hv - i
	p := v * (1.0 - s)
	q := v * (1.0 - s*f)
	t := v * (1.0 - s*(1.0-f))

	switch int(i) % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}

func rgbToANSI(r, g, b float64) int {
	r = clamp01(r)
	g = clamp01(g)
	b = clamp01(b)

	// grayscale ramp
	if math.Abs(r-g) < 0.02 && math.Abs(g-b) < 0.02 {
		gray := int(clampFloat(math.Round(r*23), 0, 23))
		return 232 + gray
	}

	ri := int(clampFloat(r*5+0.5, 0, 5))
	gi := int(clampFloat(g*5+0.5, 0, 5))
	bi := int(clampFloat(b*5+0.5, 0, 5))

	return 16 + 36*ri + 6*gi + bi
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (r *Renderer) buildStatus(snap analyzer.Snapshot, fps float64) string {
	builder := &r.statusBuilder
	builder.Reset()
	builder.Grow(128)
	builder.WriteString(strings.ToUpper(r.layoutName))
	builder.WriteString(" | palette=")
	builder.WriteString(r.paletteName)
	builder.WriteString(" color=")
	builder.WriteString(string(r.colorMode))
	builder.WriteString(" | bands ")
	builder.WriteString(strconv.Itoa(snap.Bands()))
	builder.WriteString(" res ")
	appendFloat(builder, snap.Resolution, 1)
	builder.WriteString("Hz")
	if snap.BufferEnabled {
		builder.WriteString(" buf=on")
	} else {
		builder.WriteString(" buf=off")
	}
	builder.WriteString(" fps ")
	appendFloat(builder, fps, 1)
	return builder.String()
}

func appendFloat(builder *strings.Builder, value float64, precision int) {
	var buf [32]byte
	b := strconv.AppendFloat(buf[:0], value, 'f', precision, 64)
	builder.Write(b)
}
