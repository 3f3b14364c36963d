package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guidoenr/bandscope/internal/analyzer"
	"github.com/guidoenr/bandscope/internal/params"
)

type fakeApp struct {
	mu        sync.Mutex
	snap      analyzer.Snapshot
	rendering RendererStatus
	floor     float64
}

func (f *fakeApp) Snapshot() analyzer.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.Clone()
}
func (f *fakeApp) FPS() float64   { return 60 }
func (f *fakeApp) Source() string { return "synthetic" }
func (f *fakeApp) Rendering() RendererStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rendering
}
func (f *fakeApp) SetRendering(r RendererStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rendering = r
}

func (f *fakeApp) NoiseFloor() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.floor
}
func (f *fakeApp) SetNoiseFloor(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.floor = v
}

func newTestServer(t *testing.T) (*Server, *fakeApp, *params.Store) {
	t.Helper()
	app := &fakeApp{
		snap: analyzer.Snapshot{
			Tick:          7,
			BufferEnabled: true,
			RawLeft:       []float64{0.1, 0.2},
			RawRight:      []float64{0.1, 0.2},
			BufferedLeft:  []float64{0.3, 0.4},
			BufferedRight: []float64{0.3, 0.4},
		},
		rendering: RendererStatus{Layout: "bands", Palette: "blocks", ColorMode: "chromatic"},
	}
	store := params.NewStore(params.Defaults())
	srv := NewServer(app, store,
		WithLogger(log.New(io.Discard, "", 0)),
		WithConfigPath(filepath.Join(t.TempDir(), "config.json")),
	)
	return srv, app, store
}

func TestStatus(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code=%d", rec.Code)
	}
	var got StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Tick != 7 || got.FFTSize != 512 || got.Bands != 8 || got.Window != params.WindowHanning {
		t.Fatalf("unexpected status %+v", got)
	}
	if got.Resolution != 48_000.0/512 {
		t.Fatalf("resolution=%f", got.Resolution)
	}
	if got.Renderer.Layout != "bands" || got.Source != "synthetic" {
		t.Fatalf("renderer=%+v source=%s", got.Renderer, got.Source)
	}
	if len(got.BandEdges) != 8 {
		t.Fatalf("band edges=%d want 8", len(got.BandEdges))
	}
	if first, last := got.BandEdges[0], got.BandEdges[7]; first.Min != 0 || first.Max != 93.75 || last.Max != 16_031.25 {
		t.Fatalf("edges not snapped to bins: first=%+v last=%+v", first, last)
	}
}

func TestConfigPartialUpdate(t *testing.T) {
	t.Parallel()

	srv, app, store := newTestServer(t)
	body := `{"fftSize": 1000, "window": "blackman", "numBands": 4, "bufferEnabled": false, "layout": "mirror"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}

	p := store.Parameters()
	if p.FFTSize != 1024 {
		t.Fatalf("fft=%d want 1024", p.FFTSize)
	}
	if p.Window != params.WindowBlackman || len(p.Bands) != 4 || p.BufferEnabled {
		t.Fatalf("unexpected params %+v", p)
	}
	if p.DecreaseStart != 0.05 {
		t.Fatalf("untouched field changed: decreaseStart=%f", p.DecreaseStart)
	}
	if r := app.Rendering(); r.Layout != "mirror" || r.Palette != "blocks" {
		t.Fatalf("rendering=%+v", r)
	}
}

func TestConfigRejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"window":   `{"window": "kaiser"}`,
		"fft":      `{"fftSize": 0}`,
		"bands":    `{"numBands": 1000}`,
		"inverted": `{"bands": [{"min": 500, "max": 100}]}`,
		"negative": `{"bands": [{"min": -10, "max": 100}]}`,
		"floor":    `{"noiseFloor": 1}`,
		"garbage":  `{"fftSize":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			srv, _, store := newTestServer(t)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader(body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("code=%d want 400", rec.Code)
			}
			if store.Parameters().FFTSize != 512 {
				t.Fatalf("store changed on rejected update")
			}
		})
	}
}

func TestConfigBandsAndNoiseFloor(t *testing.T) {
	t.Parallel()

	srv, app, store := newTestServer(t)
	body := `{"bands": [{"min": 0, "max": 200}, {"min": 200, "max": 2000}], "noiseFloor": 0.25}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	p := store.Parameters()
	if len(p.Bands) != 2 || p.Bands[1].Max != 2000 || p.Bands[1].Resolution != p.Resolution() {
		t.Fatalf("bands=%+v", p.Bands)
	}
	if app.NoiseFloor() != 0.25 {
		t.Fatalf("noise floor=%f want 0.25", app.NoiseFloor())
	}
}

func TestReloadReplacesConfig(t *testing.T) {
	t.Parallel()

	srv, _, store := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reload", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing file code=%d want 404", rec.Code)
	}

	saved := params.Defaults()
	saved.SetSampleRate(8000)
	saved.SetFFTSize(2048)
	saved.SetNumBands(5)
	if err := params.SaveFile(srv.configPath, saved); err != nil {
		t.Fatal(err)
	}
	store.Update(func(p *params.Parameters) { p.SetSampleRate(44_100) })

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reload", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	p := store.Parameters()
	if p.FFTSize != 2048 || len(p.Bands) != 5 {
		t.Fatalf("reload not applied: fft=%d bands=%d", p.FFTSize, len(p.Bands))
	}
	if p.SampleRate != 44_100 || p.Bands[0].Resolution != 44_100.0/2048 {
		t.Fatalf("reload replaced the live sample rate: %f", p.SampleRate)
	}
}

func TestSaveWritesConfig(t *testing.T) {
	t.Parallel()

	srv, _, store := newTestServer(t)
	store.Update(func(p *params.Parameters) { p.SetNumBands(3) })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/save", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	loaded, err := params.LoadFile(resp["path"])
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(loaded.Bands) != 3 {
		t.Fatalf("saved bands=%d want 3", len(loaded.Bands))
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/save", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET save code=%d", rec.Code)
	}
}

func TestListEndpoints(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/windows", nil))
	var names []string
	if err := json.NewDecoder(rec.Body).Decode(&names); err != nil {
		t.Fatal(err)
	}
	if len(names) != 6 {
		t.Fatalf("windows=%v", names)
	}
}

func TestWebSocketReceivesPublished(t *testing.T) {
	srv, app, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.broadcastLoop(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.mu.RLock()
		n := len(srv.clients)
		srv.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	srv.Publish(StreamMessage{FPS: 30, Snapshot: app.Snapshot()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg StreamMessage
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Snapshot.Tick != 7 || msg.Snapshot.Bands() != 2 || msg.FPS != 30 {
		t.Fatalf("message=%+v", msg)
	}
}
