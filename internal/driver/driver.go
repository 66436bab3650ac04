// Package driver implements the lifecycle core for network-attached area
// cameras: the connection state machine, the link-event registry, the
// transfer-buffer pool handed to the vendor capture queue, the per-frame
// decoder and the acquisition command surface. One Driver owns one camera.
package driver

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/camctl/gigecam/internal/logger"
	"github.com/camctl/gigecam/internal/params"
	"github.com/camctl/gigecam/internal/pvapi"
)

const driverVersion = "2.5.0"

// Parameter store slot names. Every control and status value the driver
// mirrors lives under one of these.
const (
	ParamManufacturer    = "Manufacturer"
	ParamModel           = "Model"
	ParamSerialNumber    = "SerialNumber"
	ParamFirmwareVersion = "FirmwareVersion"
	ParamSDKVersion      = "SDKVersion"
	ParamDriverVersion   = "DriverVersion"
	ParamAddress         = "Address"
	ParamConnected       = "Connected"

	ParamBinX       = "BinX"
	ParamBinY       = "BinY"
	ParamMinX       = "MinX"
	ParamMinY       = "MinY"
	ParamSizeX      = "SizeX"
	ParamSizeY      = "SizeY"
	ParamMaxSizeX   = "MaxSizeX"
	ParamMaxSizeY   = "MaxSizeY"
	ParamArraySizeX = "ArraySizeX"
	ParamArraySizeY = "ArraySizeY"
	ParamArraySize  = "ArraySize"

	ParamDataType  = "DataType"
	ParamColorMode = "ColorMode"

	ParamImageMode    = "ImageMode"
	ParamNumImages    = "NumImages"
	ParamNumExposures = "NumExposures"
	ParamAcquire      = "Acquire"
	ParamStatus       = "Status"
	ParamShutter      = "Shutter"

	ParamAcquireTime   = "AcquireTime"
	ParamAcquirePeriod = "AcquirePeriod"
	ParamGain          = "Gain"
	ParamExposureMode  = "ExposureMode"
	ParamGainMode      = "GainMode"

	ParamTriggerMode     = "TriggerMode"
	ParamTriggerDelay    = "TriggerDelay"
	ParamTriggerEvent    = "TriggerEvent"
	ParamTriggerOverlap  = "TriggerOverlap"
	ParamTriggerSoftware = "TriggerSoftware"

	ParamSyncIn1Level   = "SyncIn1Level"
	ParamSyncIn2Level   = "SyncIn2Level"
	ParamSyncOut1Mode   = "SyncOut1Mode"
	ParamSyncOut1Level  = "SyncOut1Level"
	ParamSyncOut1Invert = "SyncOut1Invert"
	ParamSyncOut2Mode   = "SyncOut2Mode"
	ParamSyncOut2Level  = "SyncOut2Level"
	ParamSyncOut2Invert = "SyncOut2Invert"
	ParamSyncOut3Mode   = "SyncOut3Mode"
	ParamSyncOut3Level  = "SyncOut3Level"
	ParamSyncOut3Invert = "SyncOut3Invert"

	ParamStrobe1Mode        = "Strobe1Mode"
	ParamStrobe1Delay       = "Strobe1Delay"
	ParamStrobe1CtlDuration = "Strobe1CtlDuration"
	ParamStrobe1Duration    = "Strobe1Duration"

	ParamBayerConvert  = "BayerConvert"
	ParamTimestampMode = "TimestampMode"
	ParamResetTimer    = "ResetTimer"
	ParamReadStats     = "ReadStats"
	ParamArraysEnabled = "ArraysEnabled"

	ParamFrameRate        = "FrameRate"
	ParamByteRate         = "ByteRate"
	ParamPacketSize       = "PacketSize"
	ParamDriverType       = "DriverType"
	ParamFilterVersion    = "FilterVersion"
	ParamFramesCompleted  = "FramesCompleted"
	ParamFramesDropped    = "FramesDropped"
	ParamPacketsErroneous = "PacketsErroneous"
	ParamPacketsMissed    = "PacketsMissed"
	ParamPacketsReceived  = "PacketsReceived"
	ParamPacketsRequested = "PacketsRequested"
	ParamPacketsResent    = "PacketsResent"
	ParamBadFrames        = "BadFrames"
	ParamFrameCounter     = "FrameCounter"
)

// Acquisition status values for ParamStatus.
const (
	StatusIdle = iota
	StatusAcquiring
)

var floatParams = map[string]bool{
	ParamAcquireTime:     true,
	ParamAcquirePeriod:   true,
	ParamGain:            true,
	ParamTriggerDelay:    true,
	ParamStrobe1Delay:    true,
	ParamStrobe1Duration: true,
	ParamFrameRate:       true,
}

// IsFloatParam reports whether a parameter holds a floating point value and
// must be written through WriteFloat.
func IsFloatParam(name string) bool { return floatParams[name] }

// Options configures one camera instance at construction time. None of it
// changes afterwards.
type Options struct {
	// Name identifies the instance to the API and logs.
	Name string
	// CameraID is either a numeric device ID or a network name/address.
	CameraID string
	// FrameBuffers is the transfer descriptor count (default 2).
	FrameBuffers int
	// RetryCount bounds the access-rights polls during connect (default 30).
	RetryCount int
	// RetryInterval is the pause between access polls (default 1s).
	RetryInterval time.Duration
	// OnSession, if set, is signalled on every connect/disconnect
	// transition. It runs under the session lock and must not re-enter
	// the driver.
	OnSession func(connected bool)
}

// Driver owns the full lifecycle of one camera. All mutable session state
// is guarded by a single exclusive lock contended by the command path and
// the vendor callback thread; see disconnectLocked for the one documented
// exception.
type Driver struct {
	mu sync.Mutex

	instanceID uuid.UUID
	name       string
	cameraID   string

	transport pvapi.Transport
	registry  *Registry
	params    *params.Store
	log       zerolog.Logger

	// Resolved identity. uniqueID == 0 means unresolved.
	uniqueID uint32
	addr     string
	byID     bool
	info     pvapi.CameraInfo

	// Live session. handle == nil is the Disconnected state.
	handle       pvapi.Handle
	sensorType   string
	sensorBits   uint32
	sensorWidth  uint32
	sensorHeight uint32
	sensorColor  bool
	tickFreq     uint32
	lastSync     time.Time
	maxFrameSize int

	images *imagePool
	pool   *framePool

	framesRemaining int
	lastImage       *Image
	consumer        func(*Image)
	metadata        map[string]any
	onSession       func(bool)

	retryCount    int
	retryInterval time.Duration

	// Clock hooks, swapped out by tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// New constructs a camera instance, registers it with the registry and
// attempts an initial connect. A failed initial connect is not fatal: the
// camera may be off or owned by someone else and will connect on its next
// link-add event.
func New(reg *Registry, opts Options) (*Driver, error) {
	d := &Driver{
		instanceID:    uuid.New(),
		name:          opts.Name,
		cameraID:      opts.CameraID,
		transport:     reg.transport,
		registry:      reg,
		params:        params.NewStore(),
		metadata:      make(map[string]any),
		onSession:     opts.OnSession,
		retryCount:    opts.RetryCount,
		retryInterval: opts.RetryInterval,
		now:           time.Now,
		sleep:         time.Sleep,
		log:           *logger.WithCamera("driver", opts.Name),
	}
	if d.retryCount <= 0 {
		d.retryCount = defaultRetryCount
	}
	if d.retryInterval <= 0 {
		d.retryInterval = defaultRetryInterval
	}
	d.images = newImagePool()
	d.pool = newFramePool(opts.FrameBuffers, d.images)

	d.params.SetString(ParamDriverVersion, driverVersion)
	d.params.SetInt(ParamConnected, 0)
	d.params.SetInt(ParamBayerConvert, int(BayerConvertNone))
	d.params.SetInt(ParamTimestampMode, int(TimestampTicks))
	d.params.SetInt(ParamArraysEnabled, 1)
	d.params.SetInt(ParamBadFrames, 0)
	d.params.SetInt(ParamFrameCounter, 0)

	if err := reg.register(d); err != nil {
		return nil, err
	}

	if err := d.Connect(); err != nil {
		d.log.Warn().Err(err).
			Str("camera_id", opts.CameraID).
			Msg("Initial connect failed, will retry when the camera appears")
	}
	return d, nil
}

// Close disconnects the camera and removes the instance from the registry.
// When the last instance goes away the registry tears the transport down.
func (d *Driver) Close() error {
	err := d.Disconnect()
	d.registry.unregister(d)
	return err
}

// Name returns the instance name.
func (d *Driver) Name() string { return d.name }

// InstanceID returns the unique ID of this driver instance (not the camera).
func (d *Driver) InstanceID() uuid.UUID { return d.instanceID }

// Params exposes the mirrored parameter store.
func (d *Driver) Params() *params.Store { return d.params }

// Connected reports whether a session is open.
func (d *Driver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle != nil
}

// SetConsumer registers the image consumer. The callback runs on the vendor
// callback thread with the session lock held; it must not re-enter any
// command path on this instance and must Retain the image to keep it past
// the call.
func (d *Driver) SetConsumer(fn func(*Image)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.consumer = fn
}

// AddMetadata attaches a named value to every subsequently decoded image.
func (d *Driver) AddMetadata(name string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metadata[name] = value
}

// LastImage returns the retained "last good" image with an extra reference
// added for the caller, or nil. The caller must Release it.
func (d *Driver) LastImage() *Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastImage == nil {
		return nil
	}
	d.lastImage.Retain()
	return d.lastImage
}

// Report is a point-in-time description of the instance and its camera.
type Report struct {
	Name            string `json:"name"`
	InstanceID      string `json:"instance_id"`
	CameraID        string `json:"camera_id"`
	UniqueID        uint32 `json:"unique_id"`
	Connected       bool   `json:"connected"`
	Address         string `json:"address,omitempty"`
	CameraName      string `json:"camera_name,omitempty"`
	Model           string `json:"model,omitempty"`
	SerialNumber    string `json:"serial_number,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	SDKVersion      string `json:"sdk_version,omitempty"`
	SensorType      string `json:"sensor_type,omitempty"`
	SensorBits      uint32 `json:"sensor_bits,omitempty"`
	SensorWidth     uint32 `json:"sensor_width,omitempty"`
	SensorHeight    uint32 `json:"sensor_height,omitempty"`
	TickFrequency   uint32 `json:"tick_frequency,omitempty"`
	MaxFrameSize    int    `json:"max_frame_size,omitempty"`
	FrameBuffers    int    `json:"frame_buffers"`
}

// Describe reports the instance, mirroring what a human would want from a
// status dump: identity, sensor data and buffer sizing.
func (d *Driver) Describe() Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Report{
		Name:            d.name,
		InstanceID:      d.instanceID.String(),
		CameraID:        d.cameraID,
		UniqueID:        d.uniqueID,
		Connected:       d.handle != nil,
		Address:         d.addr,
		CameraName:      d.info.CameraName,
		Model:           d.info.ModelName,
		SerialNumber:    d.info.SerialNumber,
		FirmwareVersion: d.info.FirmwareVersion,
		SDKVersion:      d.transport.Version(),
		SensorType:      d.sensorType,
		SensorBits:      d.sensorBits,
		SensorWidth:     d.sensorWidth,
		SensorHeight:    d.sensorHeight,
		TickFrequency:   d.tickFreq,
		MaxFrameSize:    d.maxFrameSize,
		FrameBuffers:    d.pool.size(),
	}
}

// StartAcquisition begins collecting frames per the current image mode.
func (d *Driver) StartAcquisition() error { return d.WriteInt(ParamAcquire, 1) }

// StopAcquisition aborts a running acquisition.
func (d *Driver) StopAcquisition() error { return d.WriteInt(ParamAcquire, 0) }

// SoftwareTrigger fires a software frame trigger.
func (d *Driver) SoftwareTrigger() error { return d.WriteInt(ParamTriggerSoftware, 1) }

// ResetTimer re-syncs the camera clock with the host.
func (d *Driver) ResetTimer() error { return d.WriteInt(ParamResetTimer, 1) }
