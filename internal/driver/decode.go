package driver

import (
	"time"

	"github.com/camctl/gigecam/internal/pvapi"
)

// epoch1990Offset is the POSIX timestamp of 1990-01-01T00:00:00Z, the zero
// point of the Epoch1990 timestamp mode.
const epoch1990Offset = 631152000

// frameCallback runs on the vendor callback thread for every completed
// transfer. It decodes the frame into a canonical image, updates counters
// and delivers the image, then rebinds the slot and requeues it so the
// vendor never runs out of transfer descriptors.
func (d *Driver) frameCallback(f *pvapi.Frame) {
	// Cancellation callbacks arrive synchronously from inside the
	// disconnect teardown. Taking the session lock here would deadlock
	// against it, and there is nothing to do for a cancelled transfer.
	if f.Status == pvapi.FrameStatusCancelled {
		return
	}
	hostTS := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return
	}
	slot := d.pool.slotFor(f)
	if slot == nil {
		d.log.Error().Msg("Completed frame does not belong to this session")
		return
	}

	img := d.pool.take(slot)
	switch {
	case img == nil:
		d.log.Error().Msg("Completed frame had no bound image buffer")

	case f.Status != pvapi.FrameStatusSuccess:
		img.Release()
		d.params.SetInt(ParamBadFrames, d.params.Int(ParamBadFrames)+1)
		d.log.Debug().
			Int("status", int(f.Status)).
			Uint64("frame", f.FrameCount).
			Msg("Dropping failed frame")

	default:
		decoded, err := d.decodeLocked(f, img, hostTS)
		if err != nil {
			img.Release()
			d.params.SetInt(ParamBadFrames, d.params.Int(ParamBadFrames)+1)
			d.log.Debug().Err(err).Uint64("frame", f.FrameCount).Msg("Dropping undecodable frame")
		} else {
			d.finishImageLocked(decoded)
		}
	}

	// Requeue with a fresh buffer regardless of the outcome above.
	d.pool.bind(slot, d.maxFrameSize)
	if err := d.handle.CaptureQueueFrame(slot.frame, d.frameCallback); err != nil {
		d.log.Error().Err(err).Msg("Requeueing transfer buffer failed")
	}
}

// decodeLocked turns a completed transfer into a canonical image. On
// success the returned image owns the caller's reference (possibly a new
// buffer when demosaicing replaced the original).
func (d *Driver) decodeLocked(f *pvapi.Frame, img *Image, hostTS time.Time) (*Image, error) {
	binX := d.params.Int(ParamBinX)
	if binX < 1 {
		binX = 1
	}
	binY := d.params.Int(ParamBinY)
	if binY < 1 {
		binY = 1
	}
	w, h := int(f.Width), int(f.Height)
	rx, ry := int(f.RegionX), int(f.RegionY)

	xDim := Dim{Size: w, Offset: rx, Binning: binX}
	yDim := Dim{Size: h, Offset: ry, Binning: binY}
	rgbDim := Dim{Size: 3, Binning: 1}

	pattern := f.BayerPattern
	if pattern < pvapi.BayerRGGB || pattern > pvapi.BayerBGGR {
		d.log.Warn().
			Int("pattern", int(pattern)).
			Msg("Camera reported an invalid Bayer pattern, assuming RGGB")
		pattern = pvapi.BayerRGGB
	}

	switch f.Format {
	case pvapi.FormatMono8:
		img.DataType = DataUInt8
		img.ColorMode = ColorMono
		img.Dims = []Dim{xDim, yDim}

	case pvapi.FormatMono16:
		img.DataType = DataUInt16
		img.ColorMode = ColorMono
		img.Dims = []Dim{xDim, yDim}

	case pvapi.FormatBayer8, pvapi.FormatBayer16:
		dt := DataUInt8
		if f.Format == pvapi.FormatBayer16 {
			dt = DataUInt16
		}
		convert := BayerConvert(d.params.Int(ParamBayerConvert))
		if convert == BayerConvertNone {
			img.DataType = dt
			img.ColorMode = ColorBayer
			img.Dims = []Dim{xDim, yDim}
			break
		}
		img = d.demosaicLocked(img, dt, convert, pattern, w, h, xDim, yDim, rgbDim)

	case pvapi.FormatRGB24:
		img.DataType = DataUInt8
		img.ColorMode = ColorRGBPixel
		img.Dims = []Dim{rgbDim, xDim, yDim}

	case pvapi.FormatRGB48:
		img.DataType = DataUInt16
		img.ColorMode = ColorRGBPixel
		img.Dims = []Dim{rgbDim, xDim, yDim}

	default:
		return nil, &DecodeError{Format: f.Format}
	}

	img.ID = f.FrameCount
	img.BayerPattern = pattern
	img.Timestamp = d.timestampLocked(f, hostTS)
	img.Attrs["BayerPattern"] = int(pattern)
	img.Attrs["ColorMode"] = img.ColorMode.String()
	for k, v := range d.metadata {
		img.Attrs[k] = v
	}
	return img, nil
}

// demosaicLocked expands a raw mosaic into a three-plane RGB image in the
// requested layout and releases the mosaic buffer.
func (d *Driver) demosaicLocked(raw *Image, dt DataType, convert BayerConvert,
	pattern pvapi.BayerPattern, w, h int, xDim, yDim, rgbDim Dim) *Image {

	out := d.images.alloc(3 * w * h * dt.Size())
	out.DataType = dt

	var rOff, gOff, bOff, pixelPad, rowSkip int
	switch convert {
	case BayerConvertRGBRow:
		rOff, gOff, bOff = 0, w, 2*w
		rowSkip = 2 * w
		out.ColorMode = ColorRGBRow
		out.Dims = []Dim{xDim, rgbDim, yDim}
	case BayerConvertRGBPlane:
		rOff, gOff, bOff = 0, w*h, 2*w*h
		out.ColorMode = ColorRGBPlane
		out.Dims = []Dim{xDim, yDim, rgbDim}
	default: // BayerConvertRGBPixel
		rOff, gOff, bOff = 0, 1, 2
		pixelPad = 2
		out.ColorMode = ColorRGBPixel
		out.Dims = []Dim{rgbDim, xDim, yDim}
	}

	src := raw.Data[:w*h*dt.Size()]
	if dt == DataUInt16 {
		demosaic16(src, w, h, pattern, out.Data, rOff, gOff, bOff, pixelPad, rowSkip)
	} else {
		demosaic8(src, w, h, pattern, out.Data, rOff, gOff, bOff, pixelPad, rowSkip)
	}
	raw.Release()
	return out
}

// timestampLocked derives the image timestamp per the configured mode.
func (d *Driver) timestampLocked(f *pvapi.Frame, hostTS time.Time) float64 {
	ticks := f.Ticks()
	freq := float64(d.tickFreq)
	if freq < 1 {
		freq = 1
	}

	switch TimestampMode(d.params.Int(ParamTimestampMode)) {
	case TimestampSeconds:
		return ticks / freq
	case TimestampPOSIX:
		t := d.lastSync.Add(time.Duration(ticks / freq * float64(time.Second)))
		return float64(t.UnixNano()) / 1e9
	case TimestampEpoch1990:
		t := d.lastSync.Add(time.Duration(ticks / freq * float64(time.Second)))
		return float64(t.UnixNano())/1e9 - epoch1990Offset
	case TimestampHostClock:
		return float64(hostTS.UnixNano()) / 1e9
	default: // TimestampTicks
		return ticks
	}
}

// finishImageLocked publishes a decoded image: deliver to the consumer,
// advance the acquisition countdown and retain it as the last good image.
func (d *Driver) finishImageLocked(img *Image) {
	if d.params.Int(ParamArraysEnabled) != 0 && d.consumer != nil {
		d.consumer(img)
	}

	if d.framesRemaining > 0 {
		d.framesRemaining--
	}
	if d.framesRemaining == 0 {
		d.params.SetInt(ParamShutter, 0)
		d.params.SetInt(ParamAcquire, 0)
		d.params.SetInt(ParamStatus, StatusIdle)
	}

	d.params.SetInt(ParamFrameCounter, d.params.Int(ParamFrameCounter)+1)

	if d.lastImage != nil {
		d.lastImage.Release()
	}
	d.lastImage = img
}
