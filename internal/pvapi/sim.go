package pvapi

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCameraNotFound is returned by camera lookups for unknown IDs/addresses.
var ErrCameraNotFound = errors.New("pvapi: camera not found")

// Sim is an in-memory Transport with scriptable cameras. It backs the test
// suite and `serve --simulate`; frame delivery and link events are invoked
// on the caller's goroutine, standing in for the SDK's callback thread.
type Sim struct {
	mu          sync.Mutex
	cameras     map[uint32]*SimCamera
	links       map[LinkEvent]LinkCallback
	initialized bool
}

// NewSim creates an empty simulated transport.
func NewSim() *Sim {
	return &Sim{
		cameras: make(map[uint32]*SimCamera),
		links:   make(map[LinkEvent]LinkCallback),
	}
}

// AddCamera registers a camera and fires the link-add callback, as the
// discovery engine would when a camera appears on the network.
func (s *Sim) AddCamera(c *SimCamera) {
	s.mu.Lock()
	s.cameras[c.info.UniqueID] = c
	cb := s.links[LinkAdd]
	s.mu.Unlock()

	if cb != nil {
		cb(LinkAdd, c.info.UniqueID)
	}
}

// RemoveCamera drops a camera and fires the link-remove callback.
func (s *Sim) RemoveCamera(uniqueID uint32) {
	s.mu.Lock()
	delete(s.cameras, uniqueID)
	cb := s.links[LinkRemove]
	s.mu.Unlock()

	if cb != nil {
		cb(LinkRemove, uniqueID)
	}
}

// Initialized reports whether the discovery engine is running.
func (s *Sim) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Sim) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return errors.New("pvapi: already initialized")
	}
	s.initialized = true
	return nil
}

func (s *Sim) Uninitialize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
}

func (s *Sim) Version() string { return "1.28-sim" }

func (s *Sim) ListCameras() []CameraInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CameraInfo, 0, len(s.cameras))
	for _, c := range s.cameras {
		out = append(out, c.Info())
	}
	return out
}

func (s *Sim) CameraInfoByID(uniqueID uint32) (CameraInfo, error) {
	s.mu.Lock()
	c, ok := s.cameras[uniqueID]
	s.mu.Unlock()
	if !ok {
		return CameraInfo{}, fmt.Errorf("%w: id %d", ErrCameraNotFound, uniqueID)
	}
	return c.Info(), nil
}

func (s *Sim) CameraInfoByAddr(addr string) (CameraInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cameras {
		if c.Info().Address == addr {
			return c.Info(), nil
		}
	}
	return CameraInfo{}, fmt.Errorf("%w: address %s", ErrCameraNotFound, addr)
}

func (s *Sim) OpenCamera(uniqueID uint32, access AccessFlag) (Handle, error) {
	s.mu.Lock()
	c, ok := s.cameras[uniqueID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrCameraNotFound, uniqueID)
	}
	return c.open(access)
}

func (s *Sim) OpenCameraByAddr(addr string, access AccessFlag) (Handle, error) {
	info, err := s.CameraInfoByAddr(addr)
	if err != nil {
		return nil, err
	}
	return s.OpenCamera(info.UniqueID, access)
}

func (s *Sim) RegisterLinkCallback(event LinkEvent, cb LinkCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[event] = cb
	return nil
}

func (s *Sim) UnregisterLinkCallback(event LinkEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, event)
	return nil
}

type queuedFrame struct {
	frame *Frame
	cb    FrameCallback
}

// SimCamera models one camera's attribute table and capture queue.
type SimCamera struct {
	mu          sync.Mutex
	info        CameraInfo
	uints       map[string]uint32
	floats      map[string]float32
	strings     map[string]string
	enums       map[string]string
	unsupported map[string]bool
	commands    []string

	opened    bool
	capturing bool
	queue     []queuedFrame

	frameSeq uint64
	ticks    uint64
	// TickStep is how far the camera clock advances per delivered frame.
	TickStep uint64
	// Pattern is attached to delivered Bayer frames.
	Pattern BayerPattern
}

// NewSimCamera creates a camera with the attribute table of a typical
// monochrome GigE model, master access permitted.
func NewSimCamera(uniqueID uint32, name string) *SimCamera {
	c := &SimCamera{
		info: CameraInfo{
			UniqueID:        uniqueID,
			CameraName:      name,
			ModelName:       "GC1380H",
			SerialNumber:    fmt.Sprintf("02-%04d", uniqueID),
			FirmwareVersion: "1.54.0",
			PermittedAccess: AccessMonitor | AccessMaster,
			Address:         fmt.Sprintf("10.0.0.%d", uniqueID%250+1),
		},
		uints: map[string]uint32{
			"SensorBits":             12,
			"SensorWidth":            1360,
			"SensorHeight":           1024,
			"TimeStampFrequency":     1000000000,
			"BinningX":               1,
			"BinningY":               1,
			"RegionX":                0,
			"RegionY":                0,
			"Width":                  1360,
			"Height":                 1024,
			"ExposureValue":          10000,
			"GainValue":              0,
			"AcquisitionFrameCount":  1,
			"StreamBytesPerSecond":   115000000,
			"PacketSize":             8228,
			"FrameStartTriggerDelay": 0,
			"Strobe1Delay":           0,
			"Strobe1Duration":        0,
			"SyncInLevels":           0,
			"SyncOutGpoLevels":       0,
			"StatFramesCompleted":    0,
			"StatFramesDropped":      0,
			"StatPacketsErroneous":   0,
			"StatPacketsMissed":      0,
			"StatPacketsReceived":    0,
			"StatPacketsRequested":   0,
			"StatPacketsResent":      0,
		},
		floats: map[string]float32{
			"FrameRate":     10,
			"StatFrameRate": 10,
		},
		strings: map[string]string{
			"DeviceIPAddress":   fmt.Sprintf("10.0.0.%d", uniqueID%250+1),
			"StatFilterVersion": "1.24",
		},
		enums: map[string]string{
			"SensorType":                "Mono",
			"PixelFormat":               "Mono8",
			"AcquisitionMode":           "Continuous",
			"FrameStartTriggerMode":     "Freerun",
			"FrameStartTriggerEvent":    "EdgeRising",
			"FrameStartTriggerOverlap":  "Off",
			"SyncOut1Mode":              "GPO",
			"SyncOut1Invert":            "Off",
			"SyncOut2Mode":              "GPO",
			"SyncOut2Invert":            "Off",
			"SyncOut3Mode":              "GPO",
			"SyncOut3Invert":            "Off",
			"Strobe1Mode":               "AcquisitionTriggerReady",
			"Strobe1ControlledDuration": "Off",
			"ExposureMode":              "Manual",
			"GainMode":                  "Manual",
			"StatDriverType":            "e1000",
		},
		unsupported: make(map[string]bool),
		TickStep:    100000000,
		Pattern:     BayerRGGB,
	}
	return c
}

// Info returns a copy of the camera's discovery record.
func (c *SimCamera) Info() CameraInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// SetAccess overrides the permitted access flags, e.g. to model a camera
// still held by a previous master.
func (c *SimCamera) SetAccess(flags AccessFlag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info.PermittedAccess = flags
}

// SetUnsupported marks attributes as absent on this model; access to them
// returns ErrNotFound.
func (c *SimCamera) SetUnsupported(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		c.unsupported[n] = true
	}
}

// SetEnum overrides an enum attribute, e.g. SensorType for a color model.
func (c *SimCamera) SetEnum(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enums[name] = value
}

// SetUint32 overrides a numeric attribute.
func (c *SimCamera) SetUint32(name string, value uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uints[name] = value
}

// Opened reports whether a handle is open on this camera.
func (c *SimCamera) Opened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

// Capturing reports whether an acquisition is running.
func (c *SimCamera) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Commands returns the commands run on this camera, in order.
func (c *SimCamera) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.commands))
	copy(out, c.commands)
	return out
}

// QueuedFrames reports how many transfer descriptors are armed.
func (c *SimCamera) QueuedFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// DeliverFrame completes the oldest queued frame on the caller's goroutine,
// which plays the part of the SDK callback thread. The frame is populated
// from the current attribute table; mutate (optional) may override any field
// before the callback fires. Returns false if the queue is empty.
func (c *SimCamera) DeliverFrame(mutate func(*Frame)) bool {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return false
	}
	q := c.queue[0]
	c.queue = c.queue[1:]

	c.frameSeq++
	format, _ := ParsePixelFormat(c.enums["PixelFormat"])
	f := q.frame
	f.Status = FrameStatusSuccess
	f.Format = format
	f.BayerPattern = c.Pattern
	f.Width = c.uints["Width"]
	f.Height = c.uints["Height"]
	f.RegionX = c.uints["RegionX"]
	f.RegionY = c.uints["RegionY"]
	f.FrameCount = c.frameSeq
	f.TimestampLo = uint32(c.ticks)
	f.TimestampHi = uint32(c.ticks >> 32)
	c.ticks += c.TickStep
	c.mu.Unlock()

	if mutate != nil {
		mutate(f)
	}
	q.cb(f)
	return true
}

func (c *SimCamera) open(access AccessFlag) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info.PermittedAccess&access != access {
		return nil, fmt.Errorf("pvapi: access %#x not permitted for camera %d", access, c.info.UniqueID)
	}
	c.opened = true
	return &simHandle{c: c}, nil
}

func (c *SimCamera) bytesPerPixel() uint32 {
	var bpp uint32
	switch c.enums["PixelFormat"] {
	case "Mono16", "Bayer16":
		bpp = 2
	case "Rgb24":
		bpp = 3
	case "Rgb48":
		bpp = 6
	default:
		bpp = 1
	}
	return bpp
}

type simHandle struct {
	c      *SimCamera
	closed bool
}

func (h *simHandle) check(name string) error {
	if h.closed {
		return errors.New("pvapi: handle closed")
	}
	if h.c.unsupported[name] {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func (h *simHandle) AttrUint32(name string) (uint32, error) {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if err := h.check(name); err != nil {
		return 0, err
	}
	if name == "TotalBytesPerFrame" {
		return h.c.uints["Width"] * h.c.uints["Height"] * h.c.bytesPerPixel(), nil
	}
	v, ok := h.c.uints[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

func (h *simHandle) SetAttrUint32(name string, value uint32) error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if err := h.check(name); err != nil {
		return err
	}
	if _, ok := h.c.uints[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	h.c.uints[name] = value
	return nil
}

func (h *simHandle) AttrFloat32(name string) (float32, error) {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if err := h.check(name); err != nil {
		return 0, err
	}
	v, ok := h.c.floats[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

func (h *simHandle) SetAttrFloat32(name string, value float32) error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if err := h.check(name); err != nil {
		return err
	}
	if _, ok := h.c.floats[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	h.c.floats[name] = value
	return nil
}

func (h *simHandle) AttrString(name string) (string, error) {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if err := h.check(name); err != nil {
		return "", err
	}
	v, ok := h.c.strings[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

func (h *simHandle) AttrEnum(name string) (string, error) {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if err := h.check(name); err != nil {
		return "", err
	}
	v, ok := h.c.enums[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

func (h *simHandle) SetAttrEnum(name, value string) error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if err := h.check(name); err != nil {
		return err
	}
	if _, ok := h.c.enums[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	h.c.enums[name] = value
	return nil
}

func (h *simHandle) RunCommand(name string) error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if err := h.check(name); err != nil {
		return err
	}
	h.c.commands = append(h.c.commands, name)
	switch name {
	case "AcquisitionStart":
		h.c.capturing = true
	case "AcquisitionAbort":
		h.c.capturing = false
	case "TimeStampReset":
		h.c.ticks = 0
	}
	return nil
}

func (h *simHandle) AdjustPacketSize(max uint32) error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if err := h.check("PacketSize"); err != nil {
		return err
	}
	if h.c.uints["PacketSize"] > max {
		h.c.uints["PacketSize"] = max
	}
	return nil
}

func (h *simHandle) CaptureStart() error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return h.check("")
}

func (h *simHandle) CaptureEnd() error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if h.closed {
		return errors.New("pvapi: handle closed")
	}
	return nil
}

func (h *simHandle) CaptureQueueFrame(f *Frame, cb FrameCallback) error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if h.closed {
		return errors.New("pvapi: handle closed")
	}
	if f.Buffer == nil {
		return errors.New("pvapi: frame has no buffer")
	}
	h.c.queue = append(h.c.queue, queuedFrame{frame: f, cb: cb})
	return nil
}

// CaptureQueueClear delivers every queued frame as cancelled on the
// caller's goroutine before returning, matching the SDK's behavior. The
// callbacks therefore run while the clearing thread still holds whatever
// locks it holds.
func (h *simHandle) CaptureQueueClear() error {
	h.c.mu.Lock()
	flushed := h.c.queue
	h.c.queue = nil
	h.c.mu.Unlock()

	for _, q := range flushed {
		q.frame.Status = FrameStatusCancelled
		q.cb(q.frame)
	}
	return nil
}

func (h *simHandle) Close() error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	h.closed = true
	h.c.opened = false
	h.c.capturing = false
	h.c.queue = nil
	return nil
}
