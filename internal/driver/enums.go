package driver

// Closed enumerations for every mode the camera encodes as an enum string
// on the wire, each with a bidirectional mapping table. Wire strings are
// validated here, at the boundary, not in the command handlers.

// TriggerMode selects what starts a frame.
type TriggerMode int

const (
	TriggerFreeRun TriggerMode = iota
	TriggerSyncIn1
	TriggerSyncIn2
	TriggerSyncIn3
	TriggerSyncIn4
	TriggerFixedRate
	TriggerSoftware
)

var triggerModeWire = []string{
	"Freerun",
	"SyncIn1",
	"SyncIn2",
	"SyncIn3",
	"SyncIn4",
	"FixedRate",
	"Software",
}

// TriggerEvent selects the edge/level that fires an external trigger.
type TriggerEvent int

const (
	TriggerEdgeRising TriggerEvent = iota
	TriggerEdgeFalling
	TriggerEdgeAny
	TriggerLevelHigh
	TriggerLevelLow
)

var triggerEventWire = []string{
	"EdgeRising",
	"EdgeFalling",
	"EdgeAny",
	"LevelHigh",
	"LevelLow",
}

// TriggerOverlap selects whether a trigger may overlap the previous frame.
type TriggerOverlap int

const (
	OverlapOff TriggerOverlap = iota
	OverlapPreviousFrame
)

var triggerOverlapWire = []string{
	"Off",
	"PreviousFrame",
}

// SyncOutMode selects the signal driven on a sync output.
type SyncOutMode int

const (
	SyncOutGPO SyncOutMode = iota
	SyncOutAcquisitionTriggerReady
	SyncOutFrameTriggerReady
	SyncOutFrameTrigger
	SyncOutExposing
	SyncOutFrameReadout
	SyncOutImaging
	SyncOutAcquiring
	SyncOutSyncIn1
	SyncOutSyncIn2
	SyncOutSyncIn3
	SyncOutSyncIn4
	SyncOutStrobe1
	SyncOutStrobe2
	SyncOutStrobe3
	SyncOutStrobe4
)

var syncOutModeWire = []string{
	"GPO",
	"AcquisitionTriggerReady",
	"FrameTriggerReady",
	"FrameTrigger",
	"Exposing",
	"FrameReadout",
	"Imaging",
	"Acquiring",
	"SyncIn1",
	"SyncIn2",
	"SyncIn3",
	"SyncIn4",
	"Strobe1",
	"Strobe2",
	"Strobe3",
	"Strobe4",
}

// StrobeMode selects the signal that drives the strobe output.
type StrobeMode int

const (
	StrobeAcquisitionTriggerReady StrobeMode = iota
	StrobeFrameTriggerReady
	StrobeFrameTrigger
	StrobeExposing
	StrobeFrameReadout
	StrobeAcquiring
	StrobeSyncIn1
	StrobeSyncIn2
	StrobeSyncIn3
	StrobeSyncIn4
)

var strobeModeWire = []string{
	"AcquisitionTriggerReady",
	"FrameTriggerReady",
	"FrameTrigger",
	"Exposing",
	"FrameReadout",
	"Acquiring",
	"SyncIn1",
	"SyncIn2",
	"SyncIn3",
	"SyncIn4",
}

// ExposureMode selects manual or automatic exposure control.
type ExposureMode int

const (
	ExposureManual ExposureMode = iota
	ExposureAutoOnce
	ExposureAuto
	ExposureExternal
)

var exposureModeWire = []string{
	"Manual",
	"AutoOnce",
	"Auto",
	"External",
}

// GainMode selects manual or automatic gain control.
type GainMode int

const (
	GainManual GainMode = iota
	GainAutoOnce
	GainAuto
)

var gainModeWire = []string{
	"Manual",
	"AutoOnce",
	"Auto",
}

// ImageMode selects how many frames an acquisition collects.
type ImageMode int

const (
	ImageSingle ImageMode = iota
	ImageMultiple
	ImageContinuous
)

var imageModeWire = []string{
	"SingleFrame",
	"MultiFrame",
	"Continuous",
}

// BayerConvert selects demosaicing of Bayer frames and the RGB plane
// layout it produces.
type BayerConvert int

const (
	// BayerConvertNone passes the raw mosaic through.
	BayerConvertNone BayerConvert = iota
	// BayerConvertRGBPixel produces pixel-interleaved RGB (RGBRGB...).
	BayerConvertRGBPixel
	// BayerConvertRGBRow produces row-interleaved RGB (one R row, one G
	// row, one B row per sensor row).
	BayerConvertRGBRow
	// BayerConvertRGBPlane produces fully planar RGB.
	BayerConvertRGBPlane
)

// TimestampMode selects how the image timestamp is derived from the frame.
type TimestampMode int

const (
	// TimestampTicks: the raw camera tick count.
	TimestampTicks TimestampMode = iota
	// TimestampSeconds: ticks divided by the camera tick frequency.
	TimestampSeconds
	// TimestampPOSIX: seconds since the POSIX epoch, anchored at the last
	// clock sync.
	TimestampPOSIX
	// TimestampEpoch1990: seconds since 1990-01-01 UTC, anchored the same way.
	TimestampEpoch1990
	// TimestampHostClock: the host wall clock at decode time, ignoring
	// camera ticks.
	TimestampHostClock
)

// wireIndex finds s in a wire table.
func wireIndex(table []string, s string) (int, bool) {
	for i, w := range table {
		if w == s {
			return i, true
		}
	}
	return 0, false
}

// wireName returns the wire string for index i, or false if i is outside
// the closed enumeration.
func wireName(table []string, i int) (string, bool) {
	if i < 0 || i >= len(table) {
		return "", false
	}
	return table[i], true
}

// onOff encodes a boolean the way the camera's invert/controlled-duration
// enums want it.
func onOff(v bool) string {
	if v {
		return "On"
	}
	return "Off"
}

// parseOnOff decodes an On/Off enum; anything else is invalid.
func parseOnOff(s string) (bool, bool) {
	switch s {
	case "On":
		return true, true
	case "Off":
		return false, true
	}
	return false, false
}
