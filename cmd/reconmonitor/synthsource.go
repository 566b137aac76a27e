package main

import (
	"context"
	"encoding/json"
	"math"

	"github.com/apsbeam/streamrecon/internal/transport"
)

// syntheticSource is the same self-contained demo transport.FrameSource
// cmd/reconsvc uses: the real detector wire protocol is out of scope
// (§1 Non-goals), so this monitor's own pipeline needs its own phantom
// generator to have something to display. Duplicated rather than shared
// across the two independent main packages, since Go main packages
// cannot import one another.
type syntheticSource struct {
	rows, cols int
	n          int

	emitted int
}

func newSyntheticSource(rows, cols, n int) *syntheticSource {
	return &syntheticSource{rows: rows, cols: cols, n: n}
}

func (s *syntheticSource) Next(ctx context.Context) (transport.Metadata, []byte, error) {
	if err := ctx.Err(); err != nil {
		return transport.Metadata{}, nil, err
	}

	scanIndex, payload := s.nextFrame()
	index := s.emitted
	switch scanIndex {
	case 1:
		index -= calibrationDarkCount
	case 2:
		index -= calibrationDarkCount + calibrationFlatCount
	}
	meta := transport.Metadata{Frame: index, Shape: [2]int{s.rows, s.cols}}
	meta.ImageAttributes.ScanIndex = scanIndex
	s.emitted++

	raw, err := json.Marshal(wireMessage{
		Frame:           meta.Frame,
		ImageAttributes: wireImageAttributes{ScanIndex: scanIndex},
		Shape:           meta.Shape,
	})
	if err != nil {
		return transport.Metadata{}, nil, err
	}
	decoded, err := transport.DecodeMetadata(raw)
	if err != nil {
		return transport.Metadata{}, nil, err
	}
	return decoded, payload, nil
}

type wireImageAttributes struct {
	ScanIndex int `json:"scan_index"`
}

type wireMessage struct {
	Frame           int                 `json:"frame"`
	ImageAttributes wireImageAttributes `json:"image_attributes"`
	Shape           [2]int              `json:"shape"`
}

const (
	calibrationDarkCount = 4
	calibrationFlatCount = 4
)

func (s *syntheticSource) nextFrame() (scanIndex int, payload []byte) {
	pixels := s.rows * s.cols
	out := make([]byte, pixels*2)

	switch {
	case s.emitted < calibrationDarkCount:
		fill16(out, 100)
		return 0, out
	case s.emitted < calibrationDarkCount+calibrationFlatCount:
		fill16(out, 4000)
		return 1, out
	default:
		s.fillPhantom(out)
		return 2, out
	}
}

func fill16(out []byte, v uint16) {
	for i := 0; i < len(out); i += 2 {
		out[i] = byte(v)
		out[i+1] = byte(v >> 8)
	}
}

func (s *syntheticSource) fillPhantom(out []byte) {
	projIdx := s.emitted - calibrationDarkCount - calibrationFlatCount
	angle := float64(projIdx%s.n) * math.Pi / float64(s.n)
	c, sn := math.Cos(angle), math.Sin(angle)

	const radius = 0.3
	for row := 0; row < s.rows; row++ {
		for col := 0; col < s.cols; col++ {
			u := (float64(col) - float64(s.cols)/2) / float64(s.cols)
			v := (float64(row) - float64(s.rows)/2) / float64(s.rows)
			x := u*c - v*sn
			y := u*sn + v*c
			transmission := 4000.0
			if x*x+y*y < radius*radius {
				transmission = 1500.0
			}
			i := (row*s.cols + col) * 2
			val := uint16(transmission)
			out[i] = byte(val)
			out[i+1] = byte(val >> 8)
		}
	}
}
