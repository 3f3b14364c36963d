package params

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadFile reads a JSON configuration, starting from Defaults so missing fields keep stock values.
func LoadFile(path string) (Parameters, error) {
	p := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}
	p.Normalize()
	return p, nil
}

// SaveFile writes p as indented JSON.
func SaveFile(path string, p Parameters) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultPath returns a config location next to the binary, falling back to the home directory.
func DefaultPath() string {
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), "bandscope-config.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".bandscope-config.json")
}

// ApplyEnv overrides fields from BANDSCOPE_* environment variables.
func ApplyEnv(p *Parameters) {
	if v := envInt("BANDSCOPE_FFT_SIZE", 0); v > 0 {
		p.SetFFTSize(v)
	}
	if v := envStr("BANDSCOPE_WINDOW", ""); v != "" {
		p.Window = ParseWindow(v)
	}
	if v := envInt("BANDSCOPE_BANDS", -1); v >= 0 {
		p.SetNumBands(v)
	}
	if v := envStr("BANDSCOPE_BUFFER", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			p.BufferEnabled = b
		}
	}
	p.DecreaseStart = envFloat("BANDSCOPE_DECREASE_START", p.DecreaseStart)
	p.DecreaseAcceleration = envFloat("BANDSCOPE_DECREASE_ACCEL", p.DecreaseAcceleration)
	p.UpdateResolution()
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && finite(f) {
			return f
		}
	}
	return fallback
}
