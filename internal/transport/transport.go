// Package transport models the frame ingest wire format and the viewer
// system boundary (§6): a metadata/payload message pair per frame, the
// FrameSource interface and the process exit codes (the viewer RPC verbs
// live in internal/reconserver). The real network stack (gRPC/ZeroMQ) is explicitly out
// of scope (§1 Non-goals); this package typed the boundary precisely
// enough that a real transport could implement FrameSource without the
// rest of the pipeline changing, grounded on machine_bus.go's
// narrow-interface-over-a-wire-protocol style.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apsbeam/streamrecon/internal/frame"
)

// Metadata is the decoded first message of a frame's two-message pair
// (§6): "a metadata blob with fields {frame, image_attributes.scan_index,
// shape: [rows, cols]}".
type Metadata struct {
	Frame            int
	ImageAttributes  struct {
		ScanIndex int `json:"scan_index"`
	} `json:"image_attributes"`
	Shape [2]int `json:"shape"`
}

// wireMetadata mirrors the wire JSON shape exactly (dotted field name
// flattened into a nested struct); DecodeMetadata copies it into the
// friendlier Metadata above.
type wireMetadata struct {
	Frame           int `json:"frame"`
	ImageAttributes struct {
		ScanIndex int `json:"scan_index"`
	} `json:"image_attributes"`
	Shape [2]int `json:"shape"`
}

// DecodeMetadata parses the wire JSON metadata blob. A malformed payload
// is a protocol error (§7 KindProtocol: "log, drop message") that the
// caller is expected to classify; this function only reports the parse
// failure.
func DecodeMetadata(raw []byte) (Metadata, error) {
	var w wireMetadata
	if err := json.Unmarshal(raw, &w); err != nil {
		return Metadata{}, fmt.Errorf("decode frame metadata: %w", err)
	}
	var m Metadata
	m.Frame = w.Frame
	m.ImageAttributes.ScanIndex = w.ImageAttributes.ScanIndex
	m.Shape = w.Shape
	return m, nil
}

// ToFrame converts a decoded Metadata and the raw payload that followed
// it into a frame.Frame, given the wire sample width in bits. An unknown
// scan_index yields ok=false (§6: "unknown scan_index -> frame dropped,
// warning logged"); the caller owns logging that disposition.
func ToFrame(m Metadata, payload []byte, bitsPerSample int) (f frame.Frame, ok bool, err error) {
	kind, known := frame.KindFromScanIndex(m.ImageAttributes.ScanIndex)
	if !known {
		return frame.Frame{}, false, nil
	}
	shape := frame.Shape{Rows: m.Shape[0], Cols: m.Shape[1]}
	data := make([]float64, shape.Pixels())
	if err := frame.DecodeSamples(payload, bitsPerSample, data); err != nil {
		return frame.Frame{}, false, fmt.Errorf("decode frame %d payload: %w", m.Frame, err)
	}
	return frame.Frame{Kind: kind, Index: m.Frame, Shape: shape, Data: data}, true, nil
}

// FrameSource is the ingest thread's upstream collaborator (§5: "exactly
// one ingest thread blocks on the frame source"). A real implementation
// would read a publish/subscribe or push/pull message stream; here it is
// left as an interface with test doubles, per the Non-goals around the
// real network wire framing.
type FrameSource interface {
	// Next blocks until the next metadata/payload pair is available, or
	// returns an error (including ctx.Err()) on shutdown or a transport
	// failure.
	Next(ctx context.Context) (Metadata, []byte, error)
}

// ExitCode enumerates the process exit codes the entrypoint uses (§6).
type ExitCode int

const (
	ExitOK ExitCode = 0
	// ExitFFTPlanFailure covers an unrecoverable FFT/DSP plan
	// construction failure.
	ExitFFTPlanFailure ExitCode = 1
	// ExitGPUAllocFailure covers a GPU buffer allocation failure.
	ExitGPUAllocFailure ExitCode = 2
	// ExitProtocolFailure covers a wire-protocol parse error at startup
	// (before the pipeline has anything degraded to fall back to).
	ExitProtocolFailure ExitCode = 3
)
