package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/ScopeGo/internal/debug"
	"github.com/cjeanneret/ScopeGo/internal/hw/camera"
	"github.com/cjeanneret/ScopeGo/internal/hw/motor"
	"github.com/cjeanneret/ScopeGo/internal/logic/calibration"
	"github.com/cjeanneret/ScopeGo/internal/logic/guidance"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// motorStreamPoll is how often /motor/stream drains the controller output.
const motorStreamPoll = 10 * time.Millisecond

// Guide is the guidance controller as seen by the handlers.
type Guide interface {
	Start(p guidance.Params) error
	Stop()
	Status() guidance.Status
	DebugObserve(ctx context.Context, d *camera.Device) (guidance.Report, error)
}

// Calibrator runs one rotation check.
type Calibrator interface {
	Calibrate(ctx context.Context, d *camera.Device, moveCmd, debugDir string) (calibration.Result, error)
}

// Cameras resolves cameras by name.
type Cameras interface {
	Lookup(name string) (*camera.Device, bool)
	Names() []string
}

// GuideDefaults fills the fields a guide request leaves out (from config).
type GuideDefaults struct {
	Camera       string  `json:"camera"`
	IntervalS    float64 `json:"interval_s"`
	ThresholdPct float64 `json:"threshold_pct"`
	StepsCmd     string  `json:"steps_cmd"`
	SpeedCmd     string  `json:"speed_cmd"`
}

// GuideRequest is the body of POST /guide/start. Zero fields take defaults.
type GuideRequest struct {
	Camera       string   `json:"camera"`
	IntervalS    *float64 `json:"interval_s"`
	ThresholdPct *float64 `json:"threshold_pct"`
	StepsCmd     string   `json:"steps_cmd"`
	SpeedCmd     string   `json:"speed_cmd"`
}

// Deps are the collaborators of the handlers. Motor, Guide and Calibrator
// may be nil; their routes then answer 503.
type Deps struct {
	Broadcaster *StatusBroadcaster
	Motor       motor.Channel
	MotorReader motor.Reader
	Guide       Guide
	Calibrator  Calibrator
	Cameras     Cameras
	Defaults    GuideDefaults
	DebugDir    string // where check_rotation?debug=1 saves frames
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Deps
	calibratingMu sync.Mutex
	calibrating   bool
	staticFS      fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(deps Deps, staticFS fs.FS) *Handlers {
	if deps.Broadcaster == nil {
		deps.Broadcaster = NewStatusBroadcaster()
	}
	return &Handlers{Deps: deps, staticFS: staticFS}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandlePing answers GET /ping.
func (h *Handlers) HandlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("pong"))
}

// HandleCameras lists the configured cameras.
func (h *Handlers) HandleCameras(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if h.Cameras != nil {
		names = h.Cameras.Names()
	}
	writeJSON(w, http.StatusOK, map[string]any{"cameras": names, "default": h.Defaults.Camera})
}

// HandleMotorWrite relays ?cmd= to the mount.
func (h *Handlers) HandleMotorWrite(w http.ResponseWriter, r *http.Request) {
	cmd := r.URL.Query().Get("cmd")
	if cmd == "" {
		http.Error(w, "missing cmd", http.StatusBadRequest)
		return
	}
	if h.Motor == nil {
		http.Error(w, "motor not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.Motor.Send(cmd); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, motor.ErrNotOpen) {
			code = http.StatusServiceUnavailable
		}
		http.Error(w, "Error: "+err.Error(), code)
		return
	}
	w.Write([]byte("OK"))
}

// HandleMotorRead returns what the mount printed since the last read.
func (h *Handlers) HandleMotorRead(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if h.MotorReader == nil {
		return
	}
	w.Write([]byte(h.MotorReader.Read()))
}

// HandleMotorStream copies controller output to the client as it arrives,
// until the client goes away. It drains the same buffer as /motor/read.
func (h *Handlers) HandleMotorStream(w http.ResponseWriter, r *http.Request) {
	if h.MotorReader == nil {
		http.Error(w, "motor not configured", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(motorStreamPoll)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if out := h.MotorReader.Read(); out != "" {
				if _, err := w.Write([]byte(out)); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// resolveCamera looks name up, falling back to the default camera.
func (h *Handlers) resolveCamera(name string) (*camera.Device, error) {
	if name == "" {
		name = h.Defaults.Camera
	}
	if h.Cameras == nil {
		return nil, errors.New("no cameras configured")
	}
	d, ok := h.Cameras.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown camera %q", name)
	}
	return d, nil
}

// guideParams merges req over the defaults.
func (h *Handlers) guideParams(req GuideRequest) (guidance.Params, error) {
	d, err := h.resolveCamera(req.Camera)
	if err != nil {
		return guidance.Params{}, err
	}
	interval := h.Defaults.IntervalS
	if req.IntervalS != nil {
		interval = *req.IntervalS
	}
	threshold := h.Defaults.ThresholdPct
	if req.ThresholdPct != nil {
		threshold = *req.ThresholdPct
	}
	if math.IsNaN(interval) || math.IsInf(interval, 0) {
		return guidance.Params{}, fmt.Errorf("%w: interval_s must be finite", guidance.ErrInvalidParams)
	}
	p := guidance.Params{
		Interval:     time.Duration(interval * float64(time.Second)),
		ThresholdPct: threshold,
		StepsCmd:     h.Defaults.StepsCmd,
		SpeedCmd:     h.Defaults.SpeedCmd,
		Camera:       d,
	}
	if req.StepsCmd != "" {
		p.StepsCmd = req.StepsCmd
	}
	if req.SpeedCmd != "" {
		p.SpeedCmd = req.SpeedCmd
	}
	return p, nil
}

// HandleGuideStart handles POST /guide/start.
func (h *Handlers) HandleGuideStart(w http.ResponseWriter, r *http.Request) {
	if h.Guide == nil {
		http.Error(w, "guidance not configured", http.StatusServiceUnavailable)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req GuideRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
	}

	p, err := h.guideParams(req)
	if err != nil {
		code := http.StatusBadRequest
		if !errors.Is(err, guidance.ErrInvalidParams) {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}
	if err := h.Guide.Start(p); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, guidance.ErrClosed) {
			code = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), code)
		return
	}
	h.Broadcaster.BroadcastMsg("Guidance started on " + p.Camera.DisplayName())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleGuideStop handles POST /guide/stop.
func (h *Handlers) HandleGuideStop(w http.ResponseWriter, r *http.Request) {
	if h.Guide == nil {
		http.Error(w, "guidance not configured", http.StatusServiceUnavailable)
		return
	}
	h.Guide.Stop()
	h.Broadcaster.BroadcastMsg("Guidance stopped")
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// HandleGuideStatus handles GET /guide/status.
func (h *Handlers) HandleGuideStatus(w http.ResponseWriter, r *http.Request) {
	if h.Guide == nil {
		http.Error(w, "guidance not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.Guide.Status())
}

// HandleGuideDebug handles GET /guide/debug?camera=.
func (h *Handlers) HandleGuideDebug(w http.ResponseWriter, r *http.Request) {
	if h.Guide == nil {
		http.Error(w, "guidance not configured", http.StatusServiceUnavailable)
		return
	}
	d, err := h.resolveCamera(r.URL.Query().Get("camera"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	rep, err := h.Guide.DebugObserve(r.Context(), d)
	if err != nil {
		http.Error(w, "Error: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleCheckRotation handles GET /cam/check_rotation?camera=&cmd=&debug=1.
// The body is the bare angle in degrees; the median shift goes in the
// X-Rotation-Shift header. It blocks for the whole calibration; only one may
// run at a time.
func (h *Handlers) HandleCheckRotation(w http.ResponseWriter, r *http.Request) {
	if h.Calibrator == nil {
		http.Error(w, "calibration not configured", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	cmd := q.Get("cmd")
	if cmd == "" {
		http.Error(w, "missing cmd", http.StatusBadRequest)
		return
	}
	d, err := h.resolveCamera(q.Get("camera"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	debugDir := ""
	if q.Get("debug") == "1" || q.Get("debug") == "true" {
		debugDir = h.DebugDir
	}

	h.calibratingMu.Lock()
	if h.calibrating {
		h.calibratingMu.Unlock()
		http.Error(w, "calibration already in progress", http.StatusConflict)
		return
	}
	h.calibrating = true
	h.calibratingMu.Unlock()
	defer func() {
		h.calibratingMu.Lock()
		h.calibrating = false
		h.calibratingMu.Unlock()
	}()

	h.Broadcaster.BroadcastMsg("Rotation check on " + d.DisplayName())
	res, err := h.Calibrator.Calibrate(r.Context(), d, cmd, debugDir)
	if err != nil {
		debug.Live("check_rotation: %v", err)
		msg := err.Error()
		if reason := calibration.ReasonOf(err); reason != "" {
			msg = string(reason)
		}
		http.Error(w, "Error: "+msg, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Rotation-Shift", res.Message)
	fmt.Fprintf(w, "%.2f", res.AngleDeg)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
