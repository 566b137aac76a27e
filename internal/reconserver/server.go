// server.go wires the state machine, parameter registry, and the
// back-projector driver into the §6 RPC surface. The real network
// transport is out of scope (§1 Non-goals), so the RPC methods below are
// plain Go methods a future gRPC/ZeroMQ handler would call directly; the
// "coroutine-like" streaming response §9 describes is a bounded Go
// channel (Server.broadcast) that the reconstruction goroutines enqueue
// into and GetReconData drains, matching
// coprocessor_manager.go's channel-based status fan-out to its callers.
package reconserver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apsbeam/streamrecon/internal/backproject"
	"github.com/apsbeam/streamrecon/internal/isosurface"
	"github.com/apsbeam/streamrecon/internal/obs"
	"github.com/apsbeam/streamrecon/internal/scripting"
)

// Server is the slice/preview server (§4.10): it owns the lifecycle
// machine, the dynamic parameter registry, and the broadcast channel
// GetReconData streams from.
type Server struct {
	machine  *Machine
	registry *ParameterRegistry
	driver   *backproject.Driver
	policy   *scripting.PolicyHook
	log      *obs.Logger

	broadcast chan Payload

	sliceMu  sync.Mutex
	sliceGen map[string]*atomic.Int64 // per logical slice id, latest request generation
}

// New builds a Server bound to driver for back-projection, with a
// broadcast channel of the given capacity (§9: "backpressure is
// naturally expressed by channel capacity").
func New(mode *Machine, registry *ParameterRegistry, driver *backproject.Driver, policy *scripting.PolicyHook, broadcastCap int, log *obs.Logger) *Server {
	if policy == nil {
		policy = scripting.Default()
	}
	return &Server{
		machine:   mode,
		registry:  registry,
		driver:    driver,
		policy:    policy,
		log:       log,
		broadcast: make(chan Payload, broadcastCap),
		sliceGen:  make(map[string]*atomic.Int64),
	}
}

// SetServerState implements the SetServerState RPC.
func (s *Server) SetServerState(state State) error {
	return s.machine.SetServerState(state)
}

// SetScanMode implements the SetScanMode RPC.
func (s *Server) SetScanMode(mode ScanMode, updateInterval float64) Config {
	return s.registry.Apply("SetScanMode", func(c *Config) {
		c.ScanMode = mode
		c.UpdateInterval = time.Duration(updateInterval * float64(time.Second))
	})
}

// SetDownsamplingParams implements the SetDownsamplingParams RPC.
func (s *Server) SetDownsamplingParams(colStride, rowStride int) Config {
	return s.registry.Apply("SetDownsamplingParams", func(c *Config) {
		c.ColStride = colStride
		c.RowStride = rowStride
	})
}

// SetProjectionFilter implements the SetProjectionFilter RPC. name must
// be "shepp", "ramlak", or "custom"; for "custom", the custom argument is
// the filter array itself (§11 filter-from-file) and is copied into the
// Config.
func (s *Server) SetProjectionFilter(name string, custom []float64) (Config, error) {
	switch name {
	case "shepp", "ramlak", "custom":
	default:
		return Config{}, fmt.Errorf("reconserver: unknown filter %q", name)
	}
	return s.registry.Apply("SetProjectionFilter", func(c *Config) {
		c.FilterName = name
		if name == "custom" {
			c.CustomFilter = append([]float64(nil), custom...)
		}
	}), nil
}

// SetSlice implements the SetSlice RPC and immediately schedules a
// reconstruction for it, publishing the result to the broadcast
// channel. sliceID identifies "the same logical slice" for supersession
// purposes (§5: "a new request for the same logical slice identifier
// arriving while an old one is in flight" returns only the latest
// result); orientation is the wire's 9-float basis, read as two in-plane
// row vectors (axis1, axis2) with the origin fixed at the volume centre
// — the spec leaves the origin's encoding within `orientation` open, so
// this is this module's resolved convention.
func (s *Server) SetSlice(ctx context.Context, sliceID string, timestamp float64, orientation [9]float64) {
	s.registry.Apply("SetSlice", func(c *Config) {
		c.SliceTimestamp = timestamp
		c.SliceOrientation = orientation
	})

	s.sliceMu.Lock()
	gen, ok := s.sliceGen[sliceID]
	if !ok {
		gen = &atomic.Int64{}
		s.sliceGen[sliceID] = gen
	}
	mine := gen.Add(1)
	s.sliceMu.Unlock()

	req := backproject.SliceRequest{
		Axis1: [3]float64{orientation[0], orientation[1], orientation[2]},
		Axis2: [3]float64{orientation[3], orientation[4], orientation[5]},
	}

	go func() {
		img, err := s.driver.ReconstructSlice(ctx, req)
		if err != nil {
			s.log.Backpressure("slice reconstruction failed for %q: %v", sliceID, err)
			return
		}
		if gen.Load() != mine {
			// Superseded by a newer request for the same slice id;
			// drop this result per §5.
			return
		}
		s.publishSlice(img)
	}()
}

func (s *Server) publishSlice(img []float64) {
	size := isqrt(len(img))
	png, thumb, err := encodeGray16WithThumbnail(img, size, size)
	if err != nil {
		s.log.Backpressure("slice PNG encode failed: %v", err)
	}
	select {
	case s.broadcast <- Payload{Kind: PayloadSlice, Width: size, Height: size, Depth: 1, Data: img, PNG: png, Thumbnail: thumb}:
	default:
		s.log.Backpressure("broadcast channel full, dropping slice payload")
	}
}

// PublishPreview is called by the pipeline's uploader/preview stage
// after a successful reconstruct_preview + (policy-gated)
// extract_isosurface. It advances the state machine and, if the policy
// hook approves, runs iso-surface extraction before broadcasting.
func (s *Server) PublishPreview(vol []float64, dim int, refresh scripting.RefreshContext) {
	s.machine.PreviewRefreshed()

	var tris []isosurface.Triangle
	if s.policy.ShouldExtract(refresh) {
		tris = isosurface.Extract(vol, dim, dim, dim, 0.5, 1, 1, 1)
	}

	mid := vol[dim/2*dim*dim : (dim/2+1)*dim*dim]
	png, thumb, err := encodeGray16WithThumbnail(mid, dim, dim)
	if err != nil {
		s.log.Backpressure("preview PNG encode failed: %v", err)
	}
	select {
	case s.broadcast <- Payload{Kind: PayloadPreview, Width: dim, Height: dim, Depth: dim, Data: vol, PNG: png, Thumbnail: thumb, Mesh: tris}:
	default:
		s.log.Backpressure("broadcast channel full, dropping preview payload")
	}
}

// GetReconData implements the GetReconData RPC: a server-streamed
// sequence of preview and slice payloads (§6), modelled as a read-only
// channel a real transport handler would range over.
func (s *Server) GetReconData() <-chan Payload { return s.broadcast }

func isqrt(n int) int {
	r := 0
	for r*r < n {
		r++
	}
	return r
}
