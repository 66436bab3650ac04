package api

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/camctl/gigecam/internal/config"
	"github.com/camctl/gigecam/internal/driver"
	"github.com/camctl/gigecam/internal/pvapi"
)

func newTestServer(t *testing.T) (*Server, *pvapi.SimCamera, *driver.Driver) {
	t.Helper()
	cam := pvapi.NewSimCamera(1, "bench")
	sim := pvapi.NewSim()
	sim.AddCamera(cam)
	reg := driver.NewRegistry(sim)
	d, err := driver.New(reg, driver.Options{Name: "bench", CameraID: "1"})
	if err != nil {
		t.Fatalf("New driver: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	cfgMgr, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return NewServer(reg, cfgMgr), cam, d
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestListAndDescribeCameras(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Router()

	rr := doJSON(t, h, "GET", "/api/cameras", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var reports []driver.Report
	if err := json.NewDecoder(rr.Body).Decode(&reports); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(reports) != 1 || reports[0].Name != "bench" || !reports[0].Connected {
		t.Errorf("unexpected inventory: %+v", reports)
	}

	rr = doJSON(t, h, "GET", "/api/cameras/bench", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("describe status = %d", rr.Code)
	}
	var rep driver.Report
	if err := json.NewDecoder(rr.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Model != "GC1380H" {
		t.Errorf("model = %q", rep.Model)
	}

	rr = doJSON(t, h, "GET", "/api/cameras/nosuch", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown camera status = %d, want 404", rr.Code)
	}
}

func TestSessionAndAcquisitionEndpoints(t *testing.T) {
	s, cam, d := newTestServer(t)
	h := s.Router()

	if rr := doJSON(t, h, "POST", "/api/cameras/bench/disconnect", nil); rr.Code != http.StatusOK {
		t.Fatalf("disconnect status = %d", rr.Code)
	}
	if d.Connected() {
		t.Fatal("driver should be disconnected")
	}
	if rr := doJSON(t, h, "POST", "/api/cameras/bench/connect", nil); rr.Code != http.StatusOK {
		t.Fatalf("connect status = %d", rr.Code)
	}
	if !d.Connected() {
		t.Fatal("driver should be connected")
	}

	if rr := doJSON(t, h, "POST", "/api/cameras/bench/start", nil); rr.Code != http.StatusOK {
		t.Fatalf("start status = %d", rr.Code)
	}
	if !cam.Capturing() {
		t.Error("camera should be capturing after start")
	}
	if rr := doJSON(t, h, "POST", "/api/cameras/bench/stop", nil); rr.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rr.Code)
	}
	if cam.Capturing() {
		t.Error("camera should be idle after stop")
	}
	if rr := doJSON(t, h, "POST", "/api/cameras/bench/trigger", nil); rr.Code != http.StatusOK {
		t.Fatalf("trigger status = %d", rr.Code)
	}
}

func TestParamEndpoints(t *testing.T) {
	s, _, d := newTestServer(t)
	h := s.Router()

	rr := doJSON(t, h, "PUT", "/api/cameras/bench/params",
		map[string]any{"name": driver.ParamSizeX, "value": 680})
	if rr.Code != http.StatusOK {
		t.Fatalf("put int param status = %d: %s", rr.Code, rr.Body.String())
	}
	if got := d.Params().Int(driver.ParamSizeX); got != 680 {
		t.Errorf("SizeX = %d, want 680", got)
	}

	rr = doJSON(t, h, "PUT", "/api/cameras/bench/params",
		map[string]any{"name": driver.ParamAcquireTime, "value": 0.02})
	if rr.Code != http.StatusOK {
		t.Fatalf("put float param status = %d: %s", rr.Code, rr.Body.String())
	}
	if got := d.Params().Float(driver.ParamAcquireTime); got != 0.02 {
		t.Errorf("AcquireTime = %v, want 0.02", got)
	}

	rr = doJSON(t, h, "GET", "/api/cameras/bench/params", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get params status = %d", rr.Code)
	}
	var snapshot map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot[driver.ParamModel] != "GC1380H" {
		t.Errorf("snapshot model = %v", snapshot[driver.ParamModel])
	}

	rr = doJSON(t, h, "PUT", "/api/cameras/bench/params", map[string]any{"value": 1})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("nameless put status = %d, want 400", rr.Code)
	}
}

func TestImageEndpoint(t *testing.T) {
	s, cam, _ := newTestServer(t)
	h := s.Router()

	rr := doJSON(t, h, "GET", "/api/cameras/bench/image", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("image before acquisition status = %d, want 404", rr.Code)
	}

	if !cam.DeliverFrame(nil) {
		t.Fatal("no queued frame")
	}

	rr = doJSON(t, h, "GET", "/api/cameras/bench/image", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("image status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	decoded, err := png.Decode(rr.Body)
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	if decoded.Bounds().Dx() != 1360 || decoded.Bounds().Dy() != 1024 {
		t.Errorf("image size = %v", decoded.Bounds())
	}

	rr = doJSON(t, h, "GET", "/api/cameras/bench/image?width=340", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("scaled image status = %d", rr.Code)
	}
	decoded, err = png.Decode(rr.Body)
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	// Height follows from the aspect ratio.
	if decoded.Bounds().Dx() != 340 || decoded.Bounds().Dy() != 256 {
		t.Errorf("scaled size = %v, want 340x256", decoded.Bounds())
	}

	rr = doJSON(t, h, "GET", "/api/cameras/bench/image?width=bogus", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bogus width status = %d, want 400", rr.Code)
	}
}

func TestHealthAndCORS(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Router()

	rr := doJSON(t, h, "GET", "/api/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS origin = %q", got)
	}

	req := httptest.NewRequest("OPTIONS", "/api/cameras", nil)
	pre := httptest.NewRecorder()
	h.ServeHTTP(pre, req)
	if pre.Code != http.StatusOK {
		t.Errorf("preflight status = %d", pre.Code)
	}
}

func TestParamStreamWebsocket(t *testing.T) {
	s, _, d := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/cameras/bench/params/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Drain the initial snapshot until our change arrives.
	if err := d.WriteInt(driver.ParamNumImages, 17); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("set deadline: %v", err)
		}
		var ev struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for NumImages update: %v", err)
		}
		if ev.Name == driver.ParamNumImages && ev.Value == float64(17) {
			return
		}
	}
}
