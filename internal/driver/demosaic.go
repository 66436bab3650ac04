package driver

import (
	"encoding/binary"

	"github.com/camctl/gigecam/internal/pvapi"
)

// Bayer demosaicing by neighborhood averaging: each output channel takes
// the site's own sample when the mosaic color matches, otherwise the mean
// of the matching samples in the 8-neighborhood. Channel offsets, the
// per-pixel step and the extra per-row skip are in samples, which lets the
// same routine fill pixel-interleaved, row-interleaved and planar layouts.

const (
	chanRed = iota
	chanGreen
	chanBlue
)

// bayerColorAt returns which channel the mosaic samples at (x, y).
func bayerColorAt(p pvapi.BayerPattern, x, y int) int {
	var grid [2][2]int
	switch p {
	case pvapi.BayerRGGB:
		grid = [2][2]int{{chanRed, chanGreen}, {chanGreen, chanBlue}}
	case pvapi.BayerGBRG:
		grid = [2][2]int{{chanGreen, chanBlue}, {chanRed, chanGreen}}
	case pvapi.BayerGRBG:
		grid = [2][2]int{{chanGreen, chanRed}, {chanBlue, chanGreen}}
	default: // BayerBGGR
		grid = [2][2]int{{chanBlue, chanGreen}, {chanGreen, chanRed}}
	}
	return grid[y&1][x&1]
}

// demosaic8 expands an 8-bit mosaic of w x h samples into dst.
func demosaic8(src []byte, w, h int, pattern pvapi.BayerPattern,
	dst []byte, rOff, gOff, bOff, pixelPad, rowSkip int) {

	sample := func(x, y int) int { return int(src[y*w+x]) }
	idx := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := interpolate(sample, w, h, pattern, x, y)
			dst[rOff+idx] = byte(r)
			dst[gOff+idx] = byte(g)
			dst[bOff+idx] = byte(b)
			idx += 1 + pixelPad
		}
		idx += rowSkip
	}
}

// demosaic16 expands a 16-bit little-endian mosaic into dst; offsets and
// strides remain in samples.
func demosaic16(src []byte, w, h int, pattern pvapi.BayerPattern,
	dst []byte, rOff, gOff, bOff, pixelPad, rowSkip int) {

	sample := func(x, y int) int {
		return int(binary.LittleEndian.Uint16(src[2*(y*w+x):]))
	}
	idx := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := interpolate(sample, w, h, pattern, x, y)
			binary.LittleEndian.PutUint16(dst[2*(rOff+idx):], uint16(r))
			binary.LittleEndian.PutUint16(dst[2*(gOff+idx):], uint16(g))
			binary.LittleEndian.PutUint16(dst[2*(bOff+idx):], uint16(b))
			idx += 1 + pixelPad
		}
		idx += rowSkip
	}
}

// interpolate reconstructs all three channels at one site.
func interpolate(sample func(x, y int) int, w, h int, pattern pvapi.BayerPattern, x, y int) (r, g, b int) {
	var sum, count [3]int

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			c := bayerColorAt(pattern, nx, ny)
			v := sample(nx, ny)
			if dx == 0 && dy == 0 {
				// The site's own sample wins its channel outright.
				sum[c] = v
				count[c] = -1
				continue
			}
			if count[c] >= 0 {
				sum[c] += v
				count[c]++
			}
		}
	}

	pick := func(c int) int {
		if count[c] == -1 {
			return sum[c]
		}
		if count[c] == 0 {
			return 0
		}
		return sum[c] / count[c]
	}
	return pick(chanRed), pick(chanGreen), pick(chanBlue)
}
