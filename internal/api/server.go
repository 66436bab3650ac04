// Package api exposes the camera instances over HTTP: status, parameter
// access, acquisition control, PNG snapshots of the last image and a
// websocket stream of parameter changes.
package api

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/camctl/gigecam/internal/config"
	"github.com/camctl/gigecam/internal/driver"
	"github.com/camctl/gigecam/internal/logger"
)

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	registry  *driver.Registry
	configMgr *config.Manager
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

// NewServer creates a new API server
func NewServer(registry *driver.Registry, configMgr *config.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		registry:  registry,
		configMgr: configMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		log: *logger.WithComponent("api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Camera inventory and status
	api.HandleFunc("/cameras", s.handleListCameras).Methods("GET")
	api.HandleFunc("/cameras/{name}", s.handleDescribeCamera).Methods("GET")

	// Session control
	api.HandleFunc("/cameras/{name}/connect", s.handleConnect).Methods("POST")
	api.HandleFunc("/cameras/{name}/disconnect", s.handleDisconnect).Methods("POST")

	// Acquisition control
	api.HandleFunc("/cameras/{name}/start", s.handleStart).Methods("POST")
	api.HandleFunc("/cameras/{name}/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/cameras/{name}/trigger", s.handleTrigger).Methods("POST")
	api.HandleFunc("/cameras/{name}/reset-timer", s.handleResetTimer).Methods("POST")

	// Parameters
	api.HandleFunc("/cameras/{name}/params", s.handleGetParams).Methods("GET")
	api.HandleFunc("/cameras/{name}/params", s.handlePutParam).Methods("PUT")
	api.HandleFunc("/cameras/{name}/params/stream", s.handleParamStream)

	// Last image as PNG
	api.HandleFunc("/cameras/{name}/image", s.handleImage).Methods("GET")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Router returns the configured route handler, e.g. for tests.
func (s *Server) Router() http.Handler {
	return s.enableCORS(s.router)
}

// Start starts the HTTP server
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.log.Info().Str("addr", addr).Msg("Starting API server")
	return http.ListenAndServe(addr, s.enableCORS(s.router))
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// camera resolves the {name} route variable to a driver instance, writing
// the 404 itself when there is none.
func (s *Server) camera(w http.ResponseWriter, r *http.Request) (*driver.Driver, bool) {
	name := mux.Vars(r)["name"]
	d, ok := s.registry.Lookup(name)
	if !ok {
		http.Error(w, fmt.Sprintf("no camera named %q", name), http.StatusNotFound)
		return nil, false
	}
	return d, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// HTTP Handlers

func (s *Server) handleListCameras(w http.ResponseWriter, r *http.Request) {
	drivers := s.registry.Drivers()
	reports := make([]driver.Report, 0, len(drivers))
	for _, d := range drivers {
		reports = append(reports, d.Describe())
	}
	writeJSON(w, reports)
}

func (s *Server) handleDescribeCamera(w http.ResponseWriter, r *http.Request) {
	d, ok := s.camera(w, r)
	if !ok {
		return
	}
	writeJSON(w, d.Describe())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	d, ok := s.camera(w, r)
	if !ok {
		return
	}
	if err := d.Connect(); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"status": "connected"})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	d, ok := s.camera(w, r)
	if !ok {
		return
	}
	if err := d.Disconnect(); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"status": "disconnected"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	d, ok := s.camera(w, r)
	if !ok {
		return
	}
	if err := d.StartAcquisition(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"status": "acquiring"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	d, ok := s.camera(w, r)
	if !ok {
		return
	}
	if err := d.StopAcquisition(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"status": "idle"})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	d, ok := s.camera(w, r)
	if !ok {
		return
	}
	if err := d.SoftwareTrigger(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"status": "triggered"})
}

func (s *Server) handleResetTimer(w http.ResponseWriter, r *http.Request) {
	d, ok := s.camera(w, r)
	if !ok {
		return
	}
	if err := d.ResetTimer(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"status": "reset"})
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	d, ok := s.camera(w, r)
	if !ok {
		return
	}
	writeJSON(w, d.Params().Snapshot())
}

func (s *Server) handlePutParam(w http.ResponseWriter, r *http.Request) {
	d, ok := s.camera(w, r)
	if !ok {
		return
	}

	var req struct {
		Name  string      `json:"name"`
		Value json.Number `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "parameter name is required", http.StatusBadRequest)
		return
	}

	var err error
	if driver.IsFloatParam(req.Name) {
		var v float64
		if v, err = req.Value.Float64(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = d.WriteFloat(req.Name, v)
	} else {
		var v int64
		if v, err = req.Value.Int64(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = d.WriteInt(req.Name, int(v))
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"status": "success"})
}

// paramEvent is one change notification on the websocket stream.
type paramEvent struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func (s *Server) handleParamStream(w http.ResponseWriter, r *http.Request) {
	d, ok := s.camera(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Slow consumers drop updates rather than stall the driver: the
	// subscription callback runs on the path that applied the change.
	updates := make(chan paramEvent, 256)
	cancel := d.Params().Subscribe(func(name string, value any) {
		select {
		case updates <- paramEvent{Name: name, Value: value}:
		default:
		}
	})
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send the full state first so the client starts consistent.
	for name, value := range d.Params().Snapshot() {
		if err := conn.WriteJSON(paramEvent{Name: name, Value: value}); err != nil {
			return
		}
	}

	for {
		select {
		case ev := <-updates:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	d, ok := s.camera(w, r)
	if !ok {
		return
	}

	img := d.LastImage()
	if img == nil {
		http.Error(w, "no image acquired yet", http.StatusNotFound)
		return
	}
	defer img.Release()

	rendered, err := img.ToImage()
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if scaled, err := scaleForQuery(rendered, r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	} else if scaled != nil {
		rendered = scaled
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, rendered); err != nil {
		s.log.Warn().Err(err).Msg("PNG encode failed")
	}
}

// scaleForQuery resizes the snapshot when the request asks for a specific
// width and/or height; a missing axis keeps the aspect ratio. Returns nil
// when no scaling was requested.
func scaleForQuery(src image.Image, r *http.Request) (image.Image, error) {
	wq, hq := r.URL.Query().Get("width"), r.URL.Query().Get("height")
	if wq == "" && hq == "" {
		return nil, nil
	}

	bounds := src.Bounds()
	width, height := 0, 0
	var err error
	if wq != "" {
		if width, err = strconv.Atoi(wq); err != nil || width <= 0 {
			return nil, fmt.Errorf("invalid width %q", wq)
		}
	}
	if hq != "" {
		if height, err = strconv.Atoi(hq); err != nil || height <= 0 {
			return nil, fmt.Errorf("invalid height %q", hq)
		}
	}
	if width == 0 {
		width = bounds.Dx() * height / bounds.Dy()
	}
	if height == 0 {
		height = bounds.Dy() * width / bounds.Dx()
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("degenerate target size %dx%d", width, height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst, nil
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.configMgr.Get())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.configMgr.Update(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "success"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "healthy",
		"cameras": len(s.registry.Drivers()),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>gigecam</title>
</head>
<body>
    <h1>gigecam</h1>
    <p>GigE area camera control server.</p>
    <ul>
        <li><a href="/api/health">/api/health</a> - server health</li>
        <li><a href="/api/cameras">/api/cameras</a> - camera inventory</li>
        <li>/api/cameras/{name}/params - parameter mirror</li>
        <li>/api/cameras/{name}/image - last image as PNG</li>
    </ul>
</body>
</html>`
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}
