package reconserver

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/draw"

	"github.com/apsbeam/streamrecon/internal/isosurface"
)

// thumbnailSize is the side length of the low-resolution thumbnail
// attached to every payload, cheap enough to decode on an operator
// console's status bar before the full-resolution PNG arrives.
const thumbnailSize = 64

// PayloadKind distinguishes the two streamed payload types GetReconData
// emits (§6: "server-streamed sequence of preview and slice payloads").
type PayloadKind int

const (
	PayloadSlice PayloadKind = iota
	PayloadPreview
)

// Payload is one item of the GetReconData stream: the raw float64
// reconstruction plus a 16-bit grayscale PNG encoding of the same data
// (always attached; empty only if encoding failed) for quick visual
// inspection without a full viewer.
type Payload struct {
	Kind       PayloadKind
	Generation int
	Width, Height, Depth int // Depth is 1 for a slice, previewSize for a preview's mid-plane dump
	Data       []float64
	PNG        []byte
	Thumbnail  []byte // thumbnailSize x thumbnailSize PNG, scaled down via golang.org/x/image/draw
	Mesh       []isosurface.Triangle // nil unless the policy hook approved extraction this refresh
}

// encodeGray16 normalises data's [min,max] range to the full uint16
// span and encodes it as a 16-bit grayscale PNG for the debug dump mode
// (§11 supplemented feature). image/png has no third-party competitor
// anywhere in the retrieval pack, so this stays on the standard library.
func encodeGray16(data []float64, width, height int) ([]byte, error) {
	img := grayImage(data, width, height)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeGray16WithThumbnail is encodeGray16 plus a thumbnailSize x
// thumbnailSize companion PNG for operator consoles that want to render
// a preview before the full-resolution image has downloaded.
func encodeGray16WithThumbnail(data []float64, width, height int) (full, thumb []byte, err error) {
	img := grayImage(data, width, height)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, nil, err
	}
	thumb, err = encodeThumbnail(img)
	if err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), thumb, nil
}

func grayImage(data []float64, width, height int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	if len(data) == 0 {
		return img
	}

	lo, hi := data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	for i, v := range data {
		var norm float64
		if span > 0 {
			norm = (v - lo) / span
		}
		x, y := i%width, i/width
		img.SetGray16(x, y, grayFromNorm(norm))
	}
	return img
}

func grayFromNorm(norm float64) color.Gray16 {
	clamped := math.Max(0, math.Min(1, norm))
	return color.Gray16{Y: uint16(clamped * 65535)}
}

// encodeThumbnail downsamples full (already normalised by encodeGray16)
// to a fixed thumbnailSize x thumbnailSize PNG using a bilinear
// resampler, grounded on x/image/draw's use in the pack for cheap
// resampling rather than hand-rolled box averaging.
func encodeThumbnail(full image.Image) ([]byte, error) {
	dst := image.NewGray16(image.Rect(0, 0, thumbnailSize, thumbnailSize))
	draw.BiLinear.Scale(dst, dst.Bounds(), full, full.Bounds(), draw.Over, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
