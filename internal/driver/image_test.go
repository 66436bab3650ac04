package driver

import (
	"encoding/binary"
	"image"
	"testing"
)

func TestImageGeometryPerLayout(t *testing.T) {
	x := Dim{Size: 8, Binning: 1}
	y := Dim{Size: 4, Binning: 1}
	rgb := Dim{Size: 3, Binning: 1}

	cases := []struct {
		name string
		mode ColorMode
		dims []Dim
	}{
		{"mono", ColorMono, []Dim{x, y}},
		{"bayer", ColorBayer, []Dim{x, y}},
		{"rgb1", ColorRGBPixel, []Dim{rgb, x, y}},
		{"rgb2", ColorRGBRow, []Dim{x, rgb, y}},
		{"rgb3", ColorRGBPlane, []Dim{x, y, rgb}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			img := &Image{ColorMode: tc.mode, Dims: tc.dims}
			if img.Width() != 8 || img.Height() != 4 {
				t.Errorf("geometry = %dx%d, want 8x4", img.Width(), img.Height())
			}
		})
	}
}

func TestImageRefCounting(t *testing.T) {
	pool := newImagePool()
	img := pool.alloc(16)
	if img.Data == nil || len(img.Data) != 16 {
		t.Fatalf("alloc gave %d bytes, want 16", len(img.Data))
	}

	img.Retain()
	img.Release()
	if img.Data == nil {
		t.Fatal("buffer freed while a reference remains")
	}
	img.Release()
	if img.Data != nil {
		t.Fatal("buffer should return to the pool with the last reference")
	}
}

func TestImagePoolReusesBuffers(t *testing.T) {
	pool := newImagePool()
	a := pool.alloc(64)
	buf := a.Data
	a.Release()

	b := pool.alloc(32)
	defer b.Release()
	if len(b.Data) != 32 {
		t.Fatalf("alloc gave %d bytes, want 32", len(b.Data))
	}
	if &b.Data[0] != &buf[0] {
		t.Error("pool should hand the recycled buffer back")
	}
}

func TestToImageMono8(t *testing.T) {
	img := &Image{
		Data:      []byte{0, 64, 128, 255},
		DataType:  DataUInt8,
		ColorMode: ColorMono,
		Dims:      []Dim{{Size: 2, Binning: 1}, {Size: 2, Binning: 1}},
	}
	out, err := img.ToImage()
	if err != nil {
		t.Fatalf("ToImage: %v", err)
	}
	gray, ok := out.(*image.Gray)
	if !ok {
		t.Fatalf("got %T, want *image.Gray", out)
	}
	if gray.GrayAt(1, 1).Y != 255 || gray.GrayAt(0, 1).Y != 128 {
		t.Errorf("pixel values wrong: %v", gray.Pix)
	}
}

func TestToImageMono16(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[6:], 0xabcd)
	img := &Image{
		Data:      data,
		DataType:  DataUInt16,
		ColorMode: ColorMono,
		Dims:      []Dim{{Size: 2, Binning: 1}, {Size: 2, Binning: 1}},
	}
	out, err := img.ToImage()
	if err != nil {
		t.Fatalf("ToImage: %v", err)
	}
	gray, ok := out.(*image.Gray16)
	if !ok {
		t.Fatalf("got %T, want *image.Gray16", out)
	}
	if gray.Gray16At(1, 1).Y != 0xabcd {
		t.Errorf("pixel (1,1) = %#x, want 0xabcd", gray.Gray16At(1, 1).Y)
	}
}

func TestToImageRGBLayouts(t *testing.T) {
	// One red pixel at (0,0) and one blue at (1,0) in a 2x1 frame, encoded
	// in each layout; the renderer must land them in the same places.
	cases := []struct {
		name string
		mode ColorMode
		dims []Dim
		data []byte
	}{
		{
			"rgb1", ColorRGBPixel,
			[]Dim{{Size: 3, Binning: 1}, {Size: 2, Binning: 1}, {Size: 1, Binning: 1}},
			[]byte{255, 0, 0, 0, 0, 255},
		},
		{
			"rgb2", ColorRGBRow,
			[]Dim{{Size: 2, Binning: 1}, {Size: 3, Binning: 1}, {Size: 1, Binning: 1}},
			[]byte{255, 0, 0, 0, 0, 255},
		},
		{
			"rgb3", ColorRGBPlane,
			[]Dim{{Size: 2, Binning: 1}, {Size: 1, Binning: 1}, {Size: 3, Binning: 1}},
			[]byte{255, 0, 0, 0, 0, 255},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			img := &Image{Data: tc.data, DataType: DataUInt8, ColorMode: tc.mode, Dims: tc.dims}
			out, err := img.ToImage()
			if err != nil {
				t.Fatalf("ToImage: %v", err)
			}
			rgba := out.(*image.RGBA)
			r0 := rgba.RGBAAt(0, 0)
			b1 := rgba.RGBAAt(1, 0)
			if r0.R != 255 || r0.G != 0 || r0.B != 0 {
				t.Errorf("pixel (0,0) = %v, want red", r0)
			}
			if b1.R != 0 || b1.G != 0 || b1.B != 255 {
				t.Errorf("pixel (1,0) = %v, want blue", b1)
			}
		})
	}
}

func TestColorModeNames(t *testing.T) {
	cases := map[ColorMode]string{
		ColorMono:     "Mono",
		ColorBayer:    "Bayer",
		ColorRGBPixel: "RGB1",
		ColorRGBRow:   "RGB2",
		ColorRGBPlane: "RGB3",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", mode, got, want)
		}
	}
}
