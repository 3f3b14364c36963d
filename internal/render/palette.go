package render

// Glyph ramps for bar cells; the last rune fills a whole cell and the ones
// before it draw a partially covered bar top.
var (
	blocksPalette = []rune(" ▁▂▃▄▅▆▇█")
	shadePalette  = []rune(" ░▒▓█")
	asciiPalette  = []rune(" .:-=+*#")
	dotsPalette   = []rune(" .oO@")
)

// Palette returns the glyph ramp registered under name, defaulting to blocks.
func Palette(name string) []rune {
	switch name {
	case "shade":
		return shadePalette
	case "ascii":
		return asciiPalette
	case "dots":
		return dotsPalette
	default:
		return blocksPalette
	}
}

// PaletteNames returns all palette identifiers.
func PaletteNames() []string {
	return []string{"blocks", "shade", "ascii", "dots"}
}
