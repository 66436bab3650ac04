// Package pvapi is the boundary to the vendor capture SDK for Prosilica/AVT
// GigE cameras. The SDK's own network transport, packet resend logic and
// discovery engine are a black box behind the Transport and Handle
// interfaces; the rest of the module only ever talks to these types.
//
// A pure in-memory implementation lives in sim.go. A cgo binding to the real
// PvAPI library would implement the same interfaces.
package pvapi

import "errors"

// ErrNotFound is returned for attributes and commands a particular camera
// model does not implement (unbinned CMOS sensors, single-sync-out models).
// Callers are expected to tolerate it for optional features.
var ErrNotFound = errors.New("pvapi: attribute not found")

// AccessFlag describes the access rights a client holds or requests.
type AccessFlag uint32

const (
	// AccessMonitor grants read-only attribute access.
	AccessMonitor AccessFlag = 1 << iota
	// AccessMaster grants full control of the camera. Only one master
	// may hold a camera at a time.
	AccessMaster
)

// LinkEvent is a discovery-engine event about a camera's link state.
type LinkEvent int

const (
	// LinkAdd fires when a camera appears on the network.
	LinkAdd LinkEvent = iota
	// LinkRemove fires when a camera disappears.
	LinkRemove
)

// FrameStatus is the completion status of a queued frame.
type FrameStatus int

const (
	FrameStatusSuccess FrameStatus = iota
	// FrameStatusCancelled marks frames flushed by a queue clear. The
	// caller of the queue clear already holds its own locks when these
	// are delivered.
	FrameStatusCancelled
	FrameStatusDataMissing
	FrameStatusError
)

// PixelFormat is the on-wire pixel format reported with each frame.
type PixelFormat int

const (
	FormatMono8 PixelFormat = iota
	FormatMono16
	FormatBayer8
	FormatBayer16
	FormatRGB24
	FormatRGB48
)

var pixelFormatNames = map[PixelFormat]string{
	FormatMono8:   "Mono8",
	FormatMono16:  "Mono16",
	FormatBayer8:  "Bayer8",
	FormatBayer16: "Bayer16",
	FormatRGB24:   "Rgb24",
	FormatRGB48:   "Rgb48",
}

func (f PixelFormat) String() string {
	if s, ok := pixelFormatNames[f]; ok {
		return s
	}
	return "Unknown"
}

// ParsePixelFormat maps a wire pixel-format name back to its constant.
func ParsePixelFormat(s string) (PixelFormat, bool) {
	for f, name := range pixelFormatNames {
		if name == s {
			return f, true
		}
	}
	return 0, false
}

// BayerPattern identifies the 2x2 color filter layout of a Bayer sensor.
type BayerPattern int

const (
	BayerRGGB BayerPattern = iota
	BayerGBRG
	BayerGRBG
	BayerBGGR
)

func (p BayerPattern) String() string {
	switch p {
	case BayerRGGB:
		return "RGGB"
	case BayerGBRG:
		return "GBRG"
	case BayerGRBG:
		return "GRBG"
	case BayerBGGR:
		return "BGGR"
	}
	return "Invalid"
}

// CameraInfo is the discovery record for one camera.
type CameraInfo struct {
	UniqueID        uint32
	CameraName      string
	ModelName       string
	SerialNumber    string
	FirmwareVersion string
	PermittedAccess AccessFlag
	Address         string
}

// Frame is one transfer descriptor handed to the capture queue. The SDK
// streams sensor data into Buffer and fills in the remaining fields before
// invoking the completion callback. Buffer must stay valid and fixed-size
// while the frame is queued.
type Frame struct {
	Buffer []byte

	Status       FrameStatus
	Format       PixelFormat
	BayerPattern BayerPattern

	// Geometry of the delivered frame, in binned pixels.
	Width   uint32
	Height  uint32
	RegionX uint32
	RegionY uint32

	// FrameCount is the camera's monotonically increasing frame counter.
	FrameCount uint64

	// 64-bit camera tick timestamp, split per the wire format.
	TimestampLo uint32
	TimestampHi uint32
}

// Ticks returns the frame's camera timestamp as a 64-bit tick count in
// double precision, the way every downstream timestamp derivation wants it.
func (f *Frame) Ticks() float64 {
	return float64(f.TimestampLo) + float64(f.TimestampHi)*4294967296.0
}

// FrameCallback is invoked from an SDK-owned thread when a queued frame
// completes (successfully or not).
type FrameCallback func(*Frame)

// LinkCallback is invoked from an SDK-owned thread when a camera appears or
// disappears.
type LinkCallback func(event LinkEvent, uniqueID uint32)

// Transport is the process-wide face of the SDK: discovery, camera lookup
// and session opening.
type Transport interface {
	// Initialize starts the discovery engine. Calling it twice is an error.
	Initialize() error
	// Uninitialize tears the discovery engine down.
	Uninitialize()
	// Version reports the SDK version string.
	Version() string

	ListCameras() []CameraInfo
	CameraInfoByID(uniqueID uint32) (CameraInfo, error)
	CameraInfoByAddr(addr string) (CameraInfo, error)

	OpenCamera(uniqueID uint32, access AccessFlag) (Handle, error)
	OpenCameraByAddr(addr string, access AccessFlag) (Handle, error)

	RegisterLinkCallback(event LinkEvent, cb LinkCallback) error
	UnregisterLinkCallback(event LinkEvent) error
}

// Handle is an open control/data session with one camera.
type Handle interface {
	AttrUint32(name string) (uint32, error)
	SetAttrUint32(name string, value uint32) error
	AttrFloat32(name string) (float32, error)
	SetAttrFloat32(name string, value float32) error
	AttrString(name string) (string, error)
	AttrEnum(name string) (string, error)
	SetAttrEnum(name, value string) error

	// RunCommand executes a command attribute (AcquisitionStart,
	// AcquisitionAbort, TimeStampReset, ...).
	RunCommand(name string) error

	// AdjustPacketSize negotiates the largest link transfer unit up to max.
	AdjustPacketSize(max uint32) error

	CaptureStart() error
	CaptureEnd() error
	// CaptureQueueFrame arms a frame for the next transfer. The callback
	// fires on an SDK-owned thread.
	CaptureQueueFrame(f *Frame, cb FrameCallback) error
	// CaptureQueueClear cancels all queued frames. Cancelled frames are
	// delivered through their callbacks with FrameStatusCancelled before
	// this call returns.
	CaptureQueueClear() error

	Close() error
}
