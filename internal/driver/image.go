package driver

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/camctl/gigecam/internal/pvapi"
)

// DataType is the per-sample type of a canonical image.
type DataType int

const (
	DataUInt8 DataType = iota
	DataUInt16
)

// Size returns the sample size in bytes.
func (t DataType) Size() int {
	if t == DataUInt16 {
		return 2
	}
	return 1
}

func (t DataType) String() string {
	if t == DataUInt16 {
		return "UInt16"
	}
	return "UInt8"
}

// ColorMode describes the plane layout of a canonical image.
type ColorMode int

const (
	ColorMono ColorMode = iota
	ColorBayer
	// ColorRGBPixel is pixel-interleaved RGB, dims [3, X, Y].
	ColorRGBPixel
	// ColorRGBRow is row-interleaved RGB, dims [X, 3, Y].
	ColorRGBRow
	// ColorRGBPlane is fully planar RGB, dims [X, Y, 3].
	ColorRGBPlane
)

func (m ColorMode) String() string {
	switch m {
	case ColorMono:
		return "Mono"
	case ColorBayer:
		return "Bayer"
	case ColorRGBPixel:
		return "RGB1"
	case ColorRGBRow:
		return "RGB2"
	case ColorRGBPlane:
		return "RGB3"
	}
	return "Unknown"
}

// Dim describes one axis of a canonical image.
type Dim struct {
	Size    int `json:"size"`
	Offset  int `json:"offset"`
	Binning int `json:"binning"`
}

// Image is the canonical record produced for each completed frame:
// dimensioned, typed, timestamped sensor data plus attached metadata.
// Images are reference counted; holders beyond the delivery callback must
// Retain and later Release their reference.
type Image struct {
	Data      []byte
	DataType  DataType
	ColorMode ColorMode
	Dims      []Dim

	// ID is the camera's frame counter, monotonically increasing.
	ID uint64
	// Timestamp in the unit selected by the timestamp mode, always
	// double-precision seconds or ticks.
	Timestamp float64

	BayerPattern pvapi.BayerPattern
	Attrs        map[string]any

	refs atomic.Int32
	pool *imagePool
}

// Retain adds a reference.
func (img *Image) Retain() { img.refs.Add(1) }

// Release drops a reference; the buffer returns to the pool when the last
// reference is gone.
func (img *Image) Release() {
	if img.refs.Add(-1) == 0 {
		img.pool.put(img.Data)
		img.Data = nil
	}
}

// Width returns the X axis size, which moves with the plane layout.
func (img *Image) Width() int {
	switch img.ColorMode {
	case ColorRGBPixel:
		return img.Dims[1].Size
	default:
		return img.Dims[0].Size
	}
}

// Height returns the Y axis size.
func (img *Image) Height() int {
	switch img.ColorMode {
	case ColorMono, ColorBayer, ColorRGBPlane:
		return img.Dims[1].Size
	default:
		return img.Dims[2].Size
	}
}

// ToImage converts the canonical image to a standard library image for
// snapshot rendering. 16-bit samples are little-endian in Data.
func (img *Image) ToImage() (image.Image, error) {
	w, h := img.Width(), img.Height()
	switch img.ColorMode {
	case ColorMono, ColorBayer:
		if img.DataType == DataUInt8 {
			out := image.NewGray(image.Rect(0, 0, w, h))
			copy(out.Pix, img.Data[:w*h])
			return out, nil
		}
		out := image.NewGray16(image.Rect(0, 0, w, h))
		for i := 0; i < w*h; i++ {
			v := binary.LittleEndian.Uint16(img.Data[2*i:])
			out.SetGray16(i%w, i/w, color.Gray16{Y: v})
		}
		return out, nil

	case ColorRGBPixel, ColorRGBRow, ColorRGBPlane:
		rOff, gOff, bOff, pixStep, rowStep := img.planeLayout(w, h)
		out := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			base := y * rowStep
			for x := 0; x < w; x++ {
				i := base + x*pixStep
				var r, g, b uint8
				if img.DataType == DataUInt8 {
					r, g, b = img.Data[rOff+i], img.Data[gOff+i], img.Data[bOff+i]
				} else {
					r = uint8(binary.LittleEndian.Uint16(img.Data[2*(rOff+i):]) >> 8)
					g = uint8(binary.LittleEndian.Uint16(img.Data[2*(gOff+i):]) >> 8)
					b = uint8(binary.LittleEndian.Uint16(img.Data[2*(bOff+i):]) >> 8)
				}
				out.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 0xff})
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("no renderer for color mode %v", img.ColorMode)
}

// planeLayout returns channel offsets and strides in samples for the three
// RGB layouts.
func (img *Image) planeLayout(w, h int) (rOff, gOff, bOff, pixStep, rowStep int) {
	switch img.ColorMode {
	case ColorRGBPixel:
		return 0, 1, 2, 3, 3 * w
	case ColorRGBRow:
		return 0, w, 2 * w, 1, 3 * w
	default: // ColorRGBPlane
		return 0, w * h, 2 * w * h, 1, w
	}
}

// imagePool recycles image buffers. Buffers are always allocated at the
// session's maximum frame size, so any recycled buffer fits any request
// from the same session.
type imagePool struct {
	bufs sync.Pool
}

func newImagePool() *imagePool { return &imagePool{} }

// alloc returns a fresh image holding one reference, its buffer sized to
// size bytes.
func (p *imagePool) alloc(size int) *Image {
	var buf []byte
	if v := p.bufs.Get(); v != nil {
		buf = v.([]byte)
	}
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	img := &Image{
		Data:  buf[:size],
		Attrs: make(map[string]any),
		pool:  p,
	}
	img.refs.Store(1)
	return img
}

func (p *imagePool) put(buf []byte) {
	if buf != nil {
		p.bufs.Put(buf[:cap(buf)])
	}
}
