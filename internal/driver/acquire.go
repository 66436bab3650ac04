package driver

import (
	"errors"
	"fmt"

	"github.com/camctl/gigecam/internal/pvapi"
)

// WriteInt applies one integer parameter: mirror it, route it to the
// hardware operation it maps to, then refresh the whole mirror so stale
// values never survive a command.
func (d *Driver) WriteInt(name string, value int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeIntLocked(name, value)
}

// WriteFloat applies one floating point parameter, same contract as
// WriteInt. Time-valued parameters are in seconds and converted to the
// camera's microsecond attributes here.
func (d *Driver) WriteFloat(name string, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeFloatLocked(name, value)
}

func (d *Driver) writeIntLocked(name string, value int) error {
	d.params.SetInt(name, value)

	// Soft parameters are consumed at decode time and never touch the
	// camera, so they work while disconnected too.
	switch name {
	case ParamBayerConvert, ParamTimestampMode, ParamArraysEnabled:
		return nil
	}

	if d.handle == nil {
		return errNotConnected
	}
	h := d.handle

	var cmdErr error
	switch name {
	case ParamBinX, ParamBinY, ParamMinX, ParamMinY, ParamSizeX, ParamSizeY:
		cmdErr = d.setGeometryLocked()

	case ParamNumImages:
		cmdErr = h.SetAttrUint32("AcquisitionFrameCount", uint32(value))

	case ParamImageMode:
		if wire, ok := wireName(imageModeWire, value); ok {
			cmdErr = h.SetAttrEnum("AcquisitionMode", wire)
		} else {
			cmdErr = fmt.Errorf("invalid image mode %d", value)
		}

	case ParamAcquire:
		cmdErr = d.setAcquireLocked(value != 0)

	case ParamTriggerMode:
		cmdErr = d.setEnumLocked(h, "FrameStartTriggerMode", triggerModeWire, value)
	case ParamTriggerEvent:
		cmdErr = d.setEnumLocked(h, "FrameStartTriggerEvent", triggerEventWire, value)
	case ParamTriggerOverlap:
		cmdErr = d.setEnumLocked(h, "FrameStartTriggerOverlap", triggerOverlapWire, value)
	case ParamTriggerSoftware:
		cmdErr = h.RunCommand("FrameStartTriggerSoftware")

	case ParamByteRate:
		cmdErr = h.SetAttrUint32("StreamBytesPerSecond", uint32(value))

	case ParamReadStats:
		cmdErr = d.readStatsLocked()

	case ParamSyncOut1Mode:
		cmdErr = d.setEnumLocked(h, "SyncOut1Mode", syncOutModeWire, value)
	case ParamSyncOut2Mode:
		cmdErr = d.setEnumLocked(h, "SyncOut2Mode", syncOutModeWire, value)
	case ParamSyncOut3Mode:
		// Not present on two-output cameras.
		cmdErr = ignoreNotFound(d.setEnumLocked(h, "SyncOut3Mode", syncOutModeWire, value))

	case ParamSyncOut1Level:
		cmdErr = d.setGpoLevelLocked(0, value)
	case ParamSyncOut2Level:
		cmdErr = d.setGpoLevelLocked(1, value)
	case ParamSyncOut3Level:
		cmdErr = ignoreNotFound(d.setGpoLevelLocked(2, value))

	case ParamSyncOut1Invert:
		cmdErr = h.SetAttrEnum("SyncOut1Invert", onOff(value != 0))
	case ParamSyncOut2Invert:
		cmdErr = h.SetAttrEnum("SyncOut2Invert", onOff(value != 0))
	case ParamSyncOut3Invert:
		cmdErr = ignoreNotFound(h.SetAttrEnum("SyncOut3Invert", onOff(value != 0)))

	case ParamStrobe1Mode:
		cmdErr = d.setEnumLocked(h, "Strobe1Mode", strobeModeWire, value)
	case ParamStrobe1CtlDuration:
		cmdErr = h.SetAttrEnum("Strobe1ControlledDuration", onOff(value != 0))

	case ParamDataType, ParamColorMode:
		cmdErr = d.setPixelFormatLocked()

	case ParamResetTimer:
		cmdErr = d.syncClockLocked()

	case ParamExposureMode:
		cmdErr = d.setEnumLocked(h, "ExposureMode", exposureModeWire, value)
	case ParamGainMode:
		cmdErr = d.setEnumLocked(h, "GainMode", gainModeWire, value)
	}

	// Read everything back so the mirror reflects what the camera actually
	// accepted, including any values it rounded or rejected.
	if err := d.readParametersLocked(); err != nil {
		d.log.Debug().Err(err).Str("param", name).Msg("Parameter refresh after write incomplete")
	}
	return cmdErr
}

func (d *Driver) writeFloatLocked(name string, value float64) error {
	d.params.SetFloat(name, value)

	if d.handle == nil {
		return errNotConnected
	}
	h := d.handle

	var cmdErr error
	switch name {
	case ParamAcquireTime:
		cmdErr = h.SetAttrUint32("ExposureValue", uint32(value*1e6))

	case ParamAcquirePeriod:
		if value <= 0 {
			value = 0.01
		}
		cmdErr = h.SetAttrFloat32("FrameRate", float32(1/value))

	case ParamGain:
		cmdErr = h.SetAttrUint32("GainValue", uint32(value))

	case ParamTriggerDelay:
		cmdErr = h.SetAttrUint32("FrameStartTriggerDelay", uint32(value*1e6))

	case ParamStrobe1Delay:
		cmdErr = h.SetAttrUint32("Strobe1Delay", uint32(value*1e6))

	case ParamStrobe1Duration:
		cmdErr = h.SetAttrUint32("Strobe1Duration", uint32(value*1e6))
	}

	if err := d.readParametersLocked(); err != nil {
		d.log.Debug().Err(err).Str("param", name).Msg("Parameter refresh after write incomplete")
	}
	return cmdErr
}

// setAcquireLocked starts or aborts an acquisition. The frame countdown is
// armed from the current image mode: one frame, the configured burst, or
// unbounded for continuous.
func (d *Driver) setAcquireLocked(start bool) error {
	h := d.handle
	if !start {
		d.framesRemaining = 0
		d.params.SetInt(ParamStatus, StatusIdle)
		d.params.SetInt(ParamShutter, 0)
		return h.RunCommand("AcquisitionAbort")
	}

	switch ImageMode(d.params.Int(ParamImageMode)) {
	case ImageSingle:
		d.framesRemaining = 1
	case ImageMultiple:
		d.framesRemaining = d.params.Int(ParamNumImages)
	case ImageContinuous:
		d.framesRemaining = -1
	}
	d.params.SetInt(ParamStatus, StatusAcquiring)
	d.params.SetInt(ParamShutter, 1)
	return h.RunCommand("AcquisitionStart")
}

// setEnumLocked writes one closed enumeration by mirror index.
func (d *Driver) setEnumLocked(h pvapi.Handle, attr string, table []string, value int) error {
	wire, ok := wireName(table, value)
	if !ok {
		return fmt.Errorf("invalid %s index %d", attr, value)
	}
	return h.SetAttrEnum(attr, wire)
}

// setGpoLevelLocked flips one bit in the shared GPO level mask without
// disturbing the other outputs.
func (d *Driver) setGpoLevelLocked(bit uint, value int) error {
	h := d.handle
	levels, err := h.AttrUint32("SyncOutGpoLevels")
	if err != nil {
		return err
	}
	mask := uint32(1) << bit
	if value != 0 {
		levels |= mask
	} else {
		levels &^= mask
	}
	return h.SetAttrUint32("SyncOutGpoLevels", levels)
}

// setGeometryLocked pushes the requested readout window to the camera.
// Sizes are clamped so offset+size never exceeds the sensor, and the
// camera takes region and size in binned units. Cameras without binning
// support (CMOS sensors) are tolerated.
func (d *Driver) setGeometryLocked() error {
	h := d.handle
	binX := d.params.Int(ParamBinX)
	if binX < 1 {
		binX = 1
	}
	binY := d.params.Int(ParamBinY)
	if binY < 1 {
		binY = 1
	}
	minX := d.params.Int(ParamMinX)
	minY := d.params.Int(ParamMinY)
	sizeX := d.params.Int(ParamSizeX)
	sizeY := d.params.Int(ParamSizeY)
	maxX := d.params.Int(ParamMaxSizeX)
	maxY := d.params.Int(ParamMaxSizeY)

	if minX+sizeX > maxX {
		sizeX = maxX - minX
		d.params.SetInt(ParamSizeX, sizeX)
	}
	if minY+sizeY > maxY {
		sizeY = maxY - minY
		d.params.SetInt(ParamSizeY, sizeY)
	}

	b := &attrBatch{}
	b.optional("set", "BinningX", h.SetAttrUint32("BinningX", uint32(binX)))
	b.optional("set", "BinningY", h.SetAttrUint32("BinningY", uint32(binY)))
	if b.ok() {
		b.check("set", "RegionX", h.SetAttrUint32("RegionX", uint32(minX/binX)))
		b.check("set", "RegionY", h.SetAttrUint32("RegionY", uint32(minY/binY)))
		b.check("set", "Width", h.SetAttrUint32("Width", uint32(sizeX/binX)))
		b.check("set", "Height", h.SetAttrUint32("Height", uint32(sizeY/binY)))
	}
	return b.err()
}

// getGeometryLocked reads the readout window back into the mirror in
// unbinned sensor units.
func (d *Driver) getGeometryLocked(b *attrBatch) {
	h := d.handle

	binX, binY := 1, 1
	if v, err := h.AttrUint32("BinningX"); err == nil {
		binX = int(v)
	} else {
		b.optional("get", "BinningX", err)
	}
	if v, err := h.AttrUint32("BinningY"); err == nil {
		binY = int(v)
	} else {
		b.optional("get", "BinningY", err)
	}
	if binX < 1 {
		binX = 1
	}
	if binY < 1 {
		binY = 1
	}

	var regionX, regionY, width, height int
	if v, err := h.AttrUint32("RegionX"); b.check("get", "RegionX", err) {
		regionX = int(v)
	}
	if v, err := h.AttrUint32("RegionY"); b.check("get", "RegionY", err) {
		regionY = int(v)
	}
	if v, err := h.AttrUint32("Width"); b.check("get", "Width", err) {
		width = int(v)
	}
	if v, err := h.AttrUint32("Height"); b.check("get", "Height", err) {
		height = int(v)
	}

	d.params.SetInt(ParamBinX, binX)
	d.params.SetInt(ParamBinY, binY)
	d.params.SetInt(ParamMinX, regionX*binX)
	d.params.SetInt(ParamMinY, regionY*binY)
	d.params.SetInt(ParamSizeX, width*binX)
	d.params.SetInt(ParamSizeY, height*binY)
	d.params.SetInt(ParamArraySizeX, width)
	d.params.SetInt(ParamArraySizeY, height)
}

// setPixelFormatLocked maps the mirrored data type and color mode pair to
// the camera's pixel format enum.
func (d *Driver) setPixelFormatLocked() error {
	dt := DataType(d.params.Int(ParamDataType))
	cm := ColorMode(d.params.Int(ParamColorMode))

	var format string
	switch {
	case cm == ColorMono && dt == DataUInt8:
		format = "Mono8"
	case cm == ColorMono && dt == DataUInt16:
		format = "Mono16"
	case cm == ColorBayer && dt == DataUInt8:
		format = "Bayer8"
	case cm == ColorBayer && dt == DataUInt16:
		format = "Bayer16"
	case cm == ColorRGBPixel && dt == DataUInt8:
		format = "Rgb24"
	case cm == ColorRGBPixel && dt == DataUInt16:
		format = "Rgb48"
	default:
		return fmt.Errorf("unsupported data type %v with color mode %v", dt, cm)
	}
	return d.handle.SetAttrEnum("PixelFormat", format)
}

// pixelFormatMirror maps a camera pixel format string back onto the mirror.
var pixelFormatMirror = map[string]struct {
	dt DataType
	cm ColorMode
}{
	"Mono8":   {DataUInt8, ColorMono},
	"Mono16":  {DataUInt16, ColorMono},
	"Bayer8":  {DataUInt8, ColorBayer},
	"Bayer16": {DataUInt16, ColorBayer},
	"Rgb24":   {DataUInt8, ColorRGBPixel},
	"Rgb48":   {DataUInt16, ColorRGBPixel},
}

// readParametersLocked refreshes the control mirror from the camera. Every
// attribute is attempted; failures accumulate in order and come back as one
// AttributeError.
func (d *Driver) readParametersLocked() error {
	if d.handle == nil {
		return errNotConnected
	}
	h := d.handle
	b := &attrBatch{}

	if v, err := h.AttrUint32("TotalBytesPerFrame"); b.check("get", "TotalBytesPerFrame", err) {
		d.params.SetInt(ParamArraySize, int(v))
	}

	if s, err := h.AttrEnum("PixelFormat"); b.check("get", "PixelFormat", err) {
		if m, ok := pixelFormatMirror[s]; ok {
			d.params.SetInt(ParamDataType, int(m.dt))
			d.params.SetInt(ParamColorMode, int(m.cm))
		} else {
			b.check("get", "PixelFormat", fmt.Errorf("unexpected value %q", s))
		}
	}

	d.getGeometryLocked(b)

	if v, err := h.AttrUint32("AcquisitionFrameCount"); b.check("get", "AcquisitionFrameCount", err) {
		d.params.SetInt(ParamNumImages, int(v))
	}

	if s, err := h.AttrEnum("AcquisitionMode"); b.check("get", "AcquisitionMode", err) {
		switch s {
		case "SingleFrame":
			d.params.SetInt(ParamImageMode, int(ImageSingle))
		case "MultiFrame", "Recorder":
			d.params.SetInt(ParamImageMode, int(ImageMultiple))
		case "Continuous":
			d.params.SetInt(ParamImageMode, int(ImageContinuous))
		default:
			d.params.SetInt(ParamImageMode, int(ImageSingle))
			b.check("get", "AcquisitionMode", fmt.Errorf("unexpected value %q", s))
		}
	}

	d.params.SetInt(ParamTriggerMode, d.readEnumLocked(b, "FrameStartTriggerMode", triggerModeWire, false))

	if v, err := h.AttrUint32("ExposureValue"); b.check("get", "ExposureValue", err) {
		d.params.SetFloat(ParamAcquireTime, float64(v)/1e6)
	}

	if v, err := h.AttrFloat32("FrameRate"); b.check("get", "FrameRate", err) {
		f := float64(v)
		if f <= 0 {
			f = 1
		}
		d.params.SetFloat(ParamAcquirePeriod, 1/f)
	}

	if v, err := h.AttrUint32("GainValue"); b.check("get", "GainValue", err) {
		d.params.SetFloat(ParamGain, float64(v))
	}

	d.params.SetInt(ParamExposureMode, d.readEnumLocked(b, "ExposureMode", exposureModeWire, false))
	d.params.SetInt(ParamGainMode, d.readEnumLocked(b, "GainMode", gainModeWire, false))

	return b.err()
}

// readStatsLocked refreshes the stream statistics and I/O status mirror.
// Attributes absent on this camera variant are skipped.
func (d *Driver) readStatsLocked() error {
	if d.handle == nil {
		return errNotConnected
	}
	h := d.handle
	b := &attrBatch{}

	if s, err := h.AttrEnum("StatDriverType"); err == nil {
		d.params.SetString(ParamDriverType, s)
	} else if errors.Is(err, pvapi.ErrNotFound) {
		d.params.SetString(ParamDriverType, "Unsupported")
	} else {
		b.check("get", "StatDriverType", err)
	}

	if s, err := h.AttrString("StatFilterVersion"); err == nil {
		d.params.SetString(ParamFilterVersion, s)
	} else if errors.Is(err, pvapi.ErrNotFound) {
		d.params.SetString(ParamFilterVersion, "Unsupported")
	} else {
		b.check("get", "StatFilterVersion", err)
	}

	if v, err := h.AttrFloat32("StatFrameRate"); b.check("get", "StatFrameRate", err) {
		d.params.SetFloat(ParamFrameRate, float64(v))
	}
	if v, err := h.AttrUint32("StreamBytesPerSecond"); b.check("get", "StreamBytesPerSecond", err) {
		d.params.SetInt(ParamByteRate, int(v))
	}
	if v, err := h.AttrUint32("PacketSize"); b.check("get", "PacketSize", err) {
		d.params.SetInt(ParamPacketSize, int(v))
	}

	for _, s := range []struct {
		attr  string
		param string
	}{
		{"StatFramesCompleted", ParamFramesCompleted},
		{"StatFramesDropped", ParamFramesDropped},
		{"StatPacketsErroneous", ParamPacketsErroneous},
		{"StatPacketsMissed", ParamPacketsMissed},
		{"StatPacketsReceived", ParamPacketsReceived},
		{"StatPacketsRequested", ParamPacketsRequested},
		{"StatPacketsResent", ParamPacketsResent},
	} {
		if v, err := h.AttrUint32(s.attr); b.check("get", s.attr, err) {
			d.params.SetInt(s.param, int(v))
		}
	}

	if v, err := h.AttrUint32("SyncInLevels"); b.check("get", "SyncInLevels", err) {
		d.params.SetInt(ParamSyncIn1Level, int(v&1))
		d.params.SetInt(ParamSyncIn2Level, int(v>>1&1))
	}
	if v, err := h.AttrUint32("SyncOutGpoLevels"); b.check("get", "SyncOutGpoLevels", err) {
		d.params.SetInt(ParamSyncOut1Level, int(v&1))
		d.params.SetInt(ParamSyncOut2Level, int(v>>1&1))
		d.params.SetInt(ParamSyncOut3Level, int(v>>2&1))
	}

	if v, err := h.AttrUint32("FrameStartTriggerDelay"); b.check("get", "FrameStartTriggerDelay", err) {
		d.params.SetFloat(ParamTriggerDelay, float64(v)/1e6)
	}
	d.params.SetInt(ParamTriggerEvent, d.readEnumLocked(b, "FrameStartTriggerEvent", triggerEventWire, false))
	d.params.SetInt(ParamTriggerOverlap, d.readEnumLocked(b, "FrameStartTriggerOverlap", triggerOverlapWire, true))

	d.params.SetInt(ParamSyncOut1Mode, d.readEnumLocked(b, "SyncOut1Mode", syncOutModeWire, false))
	d.params.SetInt(ParamSyncOut2Mode, d.readEnumLocked(b, "SyncOut2Mode", syncOutModeWire, false))
	d.params.SetInt(ParamSyncOut3Mode, d.readEnumLocked(b, "SyncOut3Mode", syncOutModeWire, true))

	d.params.SetInt(ParamSyncOut1Invert, d.readOnOffLocked(b, "SyncOut1Invert", false))
	d.params.SetInt(ParamSyncOut2Invert, d.readOnOffLocked(b, "SyncOut2Invert", false))
	d.params.SetInt(ParamSyncOut3Invert, d.readOnOffLocked(b, "SyncOut3Invert", true))

	d.params.SetInt(ParamStrobe1Mode, d.readEnumLocked(b, "Strobe1Mode", strobeModeWire, false))
	d.params.SetInt(ParamStrobe1CtlDuration, d.readOnOffLocked(b, "Strobe1ControlledDuration", false))
	if v, err := h.AttrUint32("Strobe1Delay"); b.check("get", "Strobe1Delay", err) {
		d.params.SetFloat(ParamStrobe1Delay, float64(v)/1e6)
	}
	if v, err := h.AttrUint32("Strobe1Duration"); b.check("get", "Strobe1Duration", err) {
		d.params.SetFloat(ParamStrobe1Duration, float64(v)/1e6)
	}

	return b.err()
}

// readEnumLocked reads one closed enumeration and maps it to its mirror
// index, defaulting to 0 on failure or, when tolerant, absence.
func (d *Driver) readEnumLocked(b *attrBatch, attr string, table []string, tolerant bool) int {
	s, err := d.handle.AttrEnum(attr)
	if err != nil {
		if tolerant {
			b.optional("get", attr, err)
		} else {
			b.check("get", attr, err)
		}
		return 0
	}
	i, ok := wireIndex(table, s)
	if !ok {
		b.check("get", attr, fmt.Errorf("unexpected value %q", s))
		return 0
	}
	return i
}

// readOnOffLocked reads one On/Off enumeration as 0/1.
func (d *Driver) readOnOffLocked(b *attrBatch, attr string, tolerant bool) int {
	s, err := d.handle.AttrEnum(attr)
	if err != nil {
		if tolerant {
			b.optional("get", attr, err)
		} else {
			b.check("get", attr, err)
		}
		return 0
	}
	v, ok := parseOnOff(s)
	if !ok {
		b.check("get", attr, fmt.Errorf("unexpected value %q", s))
		return 0
	}
	if v {
		return 1
	}
	return 0
}

func ignoreNotFound(err error) error {
	if errors.Is(err, pvapi.ErrNotFound) {
		return nil
	}
	return err
}
