package app

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// profiler appends per-stage timings to a CSV file and logs per-stage
// averages when closed. A nil profiler is a no-op.
type profiler struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
	start  time.Time
	last   time.Time
	frames int
	totals map[string]time.Duration
}

func newProfiler(path string, logger *log.Logger) *profiler {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if logger != nil {
			logger.Printf("profiler disabled: %v", err)
		}
		return nil
	}
	p := &profiler{
		file:   f,
		logger: logger,
		totals: make(map[string]time.Duration),
	}
	fmt.Fprintln(p.file, "timestamp,frame,stage,delta_ms")
	return p
}

func (p *profiler) beginFrame() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.start = now
	p.last = now
	p.frames++
}

// markStage records the time since the previous mark under stage. It has the
// shape of an analyzer stage hook.
func (p *profiler) markStage(stage string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	delta := now.Sub(p.last)
	p.last = now
	p.record(stage, delta)
}

func (p *profiler) endFrame() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("frame_total", time.Since(p.start))
}

func (p *profiler) record(stage string, d time.Duration) {
	p.totals[stage] += d
	fmt.Fprintf(p.file, "%s,%d,%s,%.3f\n", time.Now().Format(time.RFC3339Nano), p.frames, stage, d.Seconds()*1000)
}

// summary renders the mean time per frame of every stage, sorted by name.
func (p *profiler) summary() string {
	if p == nil || p.frames == 0 {
		return ""
	}
	stages := make([]string, 0, len(p.totals))
	for stage := range p.totals {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	parts := make([]string, 0, len(stages))
	for _, stage := range stages {
		mean := p.totals[stage].Seconds() * 1000 / float64(p.frames)
		parts = append(parts, fmt.Sprintf("%s=%.3fms", stage, mean))
	}
	return strings.Join(parts, " ")
}

func (p *profiler) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.logger != nil && p.frames > 0 {
		p.logger.Printf("profile over %d frames: %s", p.frames, p.summary())
	}
	return p.file.Close()
}
