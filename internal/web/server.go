// Package web exposes the running visualizer over HTTP: status and live
// configuration endpoints plus a websocket stream of band snapshots.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guidoenr/bandscope/internal/analyzer"
	"github.com/guidoenr/bandscope/internal/params"
	"github.com/guidoenr/bandscope/internal/render"
)

//go:embed static
var staticFiles embed.FS

// App is the part of the runtime the web surface reads and steers.
type App interface {
	// Snapshot returns a copy of the latest published snapshot.
	Snapshot() analyzer.Snapshot
	FPS() float64
	Source() string
	Rendering() RendererStatus
	SetRendering(RendererStatus)
	// NoiseFloor is the band level at or below which bars are drawn empty.
	NoiseFloor() float64
	SetNoiseFloor(float64)
}

// Server serves the HTTP API and fans snapshots out to websocket clients.
type Server struct {
	mu         sync.RWMutex
	app        App
	store      *params.Store
	configPath string
	log        *log.Logger
	clients    map[*websocketClient]bool
	broadcast  chan []byte
	upgrader   websocket.Upgrader
	interval   time.Duration
}

type websocketClient struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// RendererStatus names the active renderer settings.
type RendererStatus struct {
	Layout    string `json:"layout"`
	Palette   string `json:"palette"`
	ColorMode string `json:"colorMode"`
}

// StatusResponse is returned by /api/status.
type StatusResponse struct {
	Tick          uint64         `json:"tick"`
	FPS           float64        `json:"fps"`
	Source        string         `json:"source"`
	SampleRate    float64        `json:"sampleRate"`
	Resolution    float64        `json:"resolution"`
	FFTSize       int            `json:"fftSize"`
	Window        params.Window  `json:"window"`
	Bands         int            `json:"bands"`
	BandEdges     []params.Band  `json:"bandEdges"`
	BufferEnabled bool           `json:"bufferEnabled"`
	NoiseFloor    float64        `json:"noiseFloor"`
	Renderer      RendererStatus `json:"renderer"`
}

// ConfigUpdate is a partial change posted to /api/config; nil fields are left alone.
type ConfigUpdate struct {
	FFTSize              *int          `json:"fftSize,omitempty"`
	Window               *string       `json:"window,omitempty"`
	NumBands             *int          `json:"numBands,omitempty"`
	Bands                []params.Band `json:"bands,omitempty"`
	BufferEnabled        *bool         `json:"bufferEnabled,omitempty"`
	DecreaseStart        *float64      `json:"decreaseStart,omitempty"`
	DecreaseAcceleration *float64      `json:"decreaseAcceleration,omitempty"`
	Layout               *string       `json:"layout,omitempty"`
	Palette              *string       `json:"palette,omitempty"`
	ColorMode            *string       `json:"colorMode,omitempty"`
	NoiseFloor           *float64      `json:"noiseFloor,omitempty"`
}

// StreamMessage is what websocket clients receive each interval.
type StreamMessage struct {
	FPS      float64           `json:"fps"`
	Snapshot analyzer.Snapshot `json:"snapshot"`
}

var errInvalidUpdate = errors.New("invalid update")

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithConfigPath sets where /api/save writes and /api/reload reads the configuration.
func WithConfigPath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.configPath = path
		}
	}
}

// WithStreamInterval sets how often snapshots are pushed to websocket clients.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
		}
	}
}

func NewServer(app App, store *params.Store, opts ...Option) *Server {
	s := &Server{
		app:        app,
		store:      store,
		configPath: params.DefaultPath(),
		log:        log.New(os.Stderr, "", log.LstdFlags),
		clients:    make(map[*websocketClient]bool),
		broadcast:  make(chan []byte, 256),
		interval:   100 * time.Millisecond,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	static, _ := fs.Sub(staticFiles, "static")
	mux.Handle("/", http.FileServer(http.FS(static)))
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/save", s.handleSave)
	mux.HandleFunc("/api/reload", s.handleReload)
	mux.HandleFunc("/api/layouts", listHandler(render.LayoutNames))
	mux.HandleFunc("/api/palettes", listHandler(render.PaletteNames))
	mux.HandleFunc("/api/colorModes", listHandler(render.ColorModeNames))
	mux.HandleFunc("/api/windows", listHandler(params.WindowNames))
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start serves on port until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Printf("[web] server starting on http://0.0.0.0%s", addr)

	go s.broadcastLoop(ctx)
	go s.streamLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) status() StatusResponse {
	snap := s.app.Snapshot()
	p := s.store.Parameters()
	res := p.Resolution()
	edges := make([]params.Band, len(p.Bands))
	for i, b := range p.Bands {
		edges[i] = params.Band{
			Min: params.RoundToNearestMultiple(res, b.Min),
			Max: params.RoundToNearestMultiple(res, b.Max),
		}
	}
	return StatusResponse{
		Tick:          snap.Tick,
		FPS:           s.app.FPS(),
		Source:        s.app.Source(),
		SampleRate:    p.SampleRate,
		Resolution:    res,
		FFTSize:       p.FFTSize,
		Window:        p.Window,
		Bands:         len(p.Bands),
		BandEdges:     edges,
		BufferEnabled: p.BufferEnabled,
		NoiseFloor:    s.app.NoiseFloor(),
		Renderer:      s.app.Rendering(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.Parameters())
	case http.MethodPost:
		var req ConfigUpdate
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		updated, err := s.apply(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// apply validates req and merges it into the store and renderer.
func (s *Server) apply(req ConfigUpdate) (params.Parameters, error) {
	if req.FFTSize != nil && *req.FFTSize <= 0 {
		return params.Parameters{}, fmt.Errorf("%w: fftSize %d", errInvalidUpdate, *req.FFTSize)
	}
	if req.NumBands != nil && (*req.NumBands < 0 || *req.NumBands > params.MaxBands) {
		return params.Parameters{}, fmt.Errorf("%w: numBands %d", errInvalidUpdate, *req.NumBands)
	}
	if len(req.Bands) > params.MaxBands {
		return params.Parameters{}, fmt.Errorf("%w: %d bands exceeds %d", errInvalidUpdate, len(req.Bands), params.MaxBands)
	}
	for i, b := range req.Bands {
		if b.Min < 0 || b.Max < 0 || b.Min > b.Max {
			return params.Parameters{}, fmt.Errorf("%w: band %d range [%g, %g]", errInvalidUpdate, i, b.Min, b.Max)
		}
	}
	if req.Window != nil && !validWindow(*req.Window) {
		return params.Parameters{}, fmt.Errorf("%w: window %q", errInvalidUpdate, *req.Window)
	}
	if req.NoiseFloor != nil && (*req.NoiseFloor < 0 || *req.NoiseFloor >= 1) {
		return params.Parameters{}, fmt.Errorf("%w: noiseFloor %g", errInvalidUpdate, *req.NoiseFloor)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := s.store.Update(func(p *params.Parameters) {
		if req.FFTSize != nil {
			p.SetFFTSize(*req.FFTSize)
		}
		if req.Window != nil {
			p.Window = params.ParseWindow(*req.Window)
		}
		if req.Bands != nil {
			p.Bands = append([]params.Band(nil), req.Bands...)
		}
		if req.NumBands != nil {
			p.SetNumBands(*req.NumBands)
		}
		if req.BufferEnabled != nil {
			p.BufferEnabled = *req.BufferEnabled
		}
		if req.DecreaseStart != nil && *req.DecreaseStart >= 0 {
			p.DecreaseStart = *req.DecreaseStart
		}
		if req.DecreaseAcceleration != nil && *req.DecreaseAcceleration >= 0 {
			p.DecreaseAcceleration = *req.DecreaseAcceleration
		}
	})

	if req.Layout != nil || req.Palette != nil || req.ColorMode != nil {
		current := s.app.Rendering()
		if req.Layout != nil {
			current.Layout = *req.Layout
		}
		if req.Palette != nil {
			current.Palette = *req.Palette
		}
		if req.ColorMode != nil {
			current.ColorMode = *req.ColorMode
		}
		s.app.SetRendering(current)
	}
	if req.NoiseFloor != nil {
		s.app.SetNoiseFloor(*req.NoiseFloor)
	}
	return updated, nil
}

func validWindow(name string) bool {
	_, ok := params.LookupWindow(name)
	return ok
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.RLock()
	path := s.configPath
	s.mu.RUnlock()

	if err := params.SaveFile(path, s.store.Parameters()); err != nil {
		http.Error(w, fmt.Sprintf("failed to save config: %v", err), http.StatusInternalServerError)
		return
	}
	s.log.Printf("[web] configuration saved to %s", path)
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "path": path})
}

// handleReload replaces the live configuration with the saved file. The
// sample rate belongs to the running source and is kept.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.RLock()
	path := s.configPath
	s.mu.RUnlock()

	p, err := params.LoadFile(path)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, fs.ErrNotExist) {
			code = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("failed to reload config: %v", err), code)
		return
	}
	p.SetSampleRate(s.store.Parameters().SampleRate)
	s.store.Replace(p)
	s.log.Printf("[web] configuration reloaded from %s", path)
	writeJSON(w, http.StatusOK, s.store.Parameters())
}

func listHandler(names func() []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, names())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("[web] websocket upgrade error: %v", err)
		return
	}

	client := &websocketClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	go client.writePump()
	go client.readPump()
}

// Publish queues msg for every websocket client, dropping it when the queue is full.
func (s *Server) Publish(msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Printf("[web] encode snapshot: %v", err)
		return
	}
	select {
	case s.broadcast <- data:
	default:
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.broadcast:
			s.mu.Lock()
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(s.clients, client)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Server) streamLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			idle := len(s.clients) == 0
			s.mu.RUnlock()
			if idle {
				continue
			}
			s.Publish(StreamMessage{
				FPS:      s.app.FPS(),
				Snapshot: s.app.Snapshot().WithoutBins(),
			})
		}
	}
}

func (c *websocketClient) readPump() {
	defer func() {
		c.server.mu.Lock()
		if _, ok := c.server.clients[c]; ok {
			delete(c.server.clients, c)
			close(c.send)
		}
		c.server.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *websocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
