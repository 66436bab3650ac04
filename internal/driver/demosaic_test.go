package driver

import (
	"encoding/binary"
	"testing"

	"github.com/camctl/gigecam/internal/pvapi"
)

func TestBayerColorAt(t *testing.T) {
	cases := []struct {
		pattern pvapi.BayerPattern
		// channel at (0,0), (1,0), (0,1), (1,1)
		want [4]int
	}{
		{pvapi.BayerRGGB, [4]int{chanRed, chanGreen, chanGreen, chanBlue}},
		{pvapi.BayerGBRG, [4]int{chanGreen, chanBlue, chanRed, chanGreen}},
		{pvapi.BayerGRBG, [4]int{chanGreen, chanRed, chanBlue, chanGreen}},
		{pvapi.BayerBGGR, [4]int{chanBlue, chanGreen, chanGreen, chanRed}},
	}
	sites := [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	for _, tc := range cases {
		for i, s := range sites {
			if got := bayerColorAt(tc.pattern, s[0], s[1]); got != tc.want[i] {
				t.Errorf("%v at (%d,%d): channel %d, want %d", tc.pattern, s[0], s[1], got, tc.want[i])
			}
		}
		// The pattern tiles with period 2 in both axes.
		if got := bayerColorAt(tc.pattern, 2, 2); got != tc.want[0] {
			t.Errorf("%v at (2,2): channel %d, want %d", tc.pattern, got, tc.want[0])
		}
	}
}

// A mosaic with one constant value per channel must reconstruct to that
// value everywhere, in every output layout.
func flatMosaic8(w, h int, pattern pvapi.BayerPattern, r, g, b byte) []byte {
	src := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			switch bayerColorAt(pattern, x, y) {
			case chanRed:
				src[y*w+x] = r
			case chanGreen:
				src[y*w+x] = g
			default:
				src[y*w+x] = b
			}
		}
	}
	return src
}

func TestDemosaic8PixelInterleaved(t *testing.T) {
	const w, h = 4, 2
	src := flatMosaic8(w, h, pvapi.BayerRGGB, 100, 50, 200)
	dst := make([]byte, 3*w*h)
	demosaic8(src, w, h, pvapi.BayerRGGB, dst, 0, 1, 2, 2, 0)

	for i := 0; i < w*h; i++ {
		if dst[3*i] != 100 || dst[3*i+1] != 50 || dst[3*i+2] != 200 {
			t.Fatalf("pixel %d = (%d,%d,%d), want (100,50,200)", i, dst[3*i], dst[3*i+1], dst[3*i+2])
		}
	}
}

func TestDemosaic8RowInterleaved(t *testing.T) {
	const w, h = 4, 2
	src := flatMosaic8(w, h, pvapi.BayerGBRG, 100, 50, 200)
	dst := make([]byte, 3*w*h)
	demosaic8(src, w, h, pvapi.BayerGBRG, dst, 0, w, 2*w, 0, 2*w)

	// Each sensor row expands to an R row, a G row, then a B row.
	for y := 0; y < h; y++ {
		base := y * 3 * w
		for x := 0; x < w; x++ {
			if dst[base+x] != 100 {
				t.Fatalf("row %d red[%d] = %d, want 100", y, x, dst[base+x])
			}
			if dst[base+w+x] != 50 {
				t.Fatalf("row %d green[%d] = %d, want 50", y, x, dst[base+w+x])
			}
			if dst[base+2*w+x] != 200 {
				t.Fatalf("row %d blue[%d] = %d, want 200", y, x, dst[base+2*w+x])
			}
		}
	}
}

func TestDemosaic8Planar(t *testing.T) {
	const w, h = 4, 4
	src := flatMosaic8(w, h, pvapi.BayerBGGR, 100, 50, 200)
	dst := make([]byte, 3*w*h)
	demosaic8(src, w, h, pvapi.BayerBGGR, dst, 0, w*h, 2*w*h, 0, 0)

	for i := 0; i < w*h; i++ {
		if dst[i] != 100 {
			t.Fatalf("red plane[%d] = %d, want 100", i, dst[i])
		}
		if dst[w*h+i] != 50 {
			t.Fatalf("green plane[%d] = %d, want 50", i, dst[w*h+i])
		}
		if dst[2*w*h+i] != 200 {
			t.Fatalf("blue plane[%d] = %d, want 200", i, dst[2*w*h+i])
		}
	}
}

func TestDemosaic16(t *testing.T) {
	const w, h = 4, 2
	vals := map[int]uint16{chanRed: 1000, chanGreen: 500, chanBlue: 60000}
	src := make([]byte, 2*w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := vals[bayerColorAt(pvapi.BayerRGGB, x, y)]
			binary.LittleEndian.PutUint16(src[2*(y*w+x):], v)
		}
	}
	dst := make([]byte, 2*3*w*h)
	demosaic16(src, w, h, pvapi.BayerRGGB, dst, 0, 1, 2, 2, 0)

	for i := 0; i < w*h; i++ {
		r := binary.LittleEndian.Uint16(dst[2*3*i:])
		g := binary.LittleEndian.Uint16(dst[2*(3*i+1):])
		b := binary.LittleEndian.Uint16(dst[2*(3*i+2):])
		if r != 1000 || g != 500 || b != 60000 {
			t.Fatalf("pixel %d = (%d,%d,%d), want (1000,500,60000)", i, r, g, b)
		}
	}
}

// Sites with no sample of some channel anywhere in their neighborhood must
// come out as zero rather than reading out of bounds. A 1x1 mosaic is the
// extreme case: only the site's own channel exists.
func TestDemosaicDegenerateSize(t *testing.T) {
	dst := make([]byte, 3)
	demosaic8([]byte{77}, 1, 1, pvapi.BayerRGGB, dst, 0, 1, 2, 2, 0)
	if dst[0] != 77 || dst[1] != 0 || dst[2] != 0 {
		t.Errorf("1x1 demosaic = %v, want [77 0 0]", dst)
	}
}
