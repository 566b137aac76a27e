package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/apsbeam/streamrecon/internal/backproject"
	"github.com/apsbeam/streamrecon/internal/calib"
	"github.com/apsbeam/streamrecon/internal/classify"
	"github.com/apsbeam/streamrecon/internal/frame"
	"github.com/apsbeam/streamrecon/internal/gpubuf"
	"github.com/apsbeam/streamrecon/internal/obs"
	"github.com/apsbeam/streamrecon/internal/preprocess"
	"github.com/apsbeam/streamrecon/internal/reconserver"
	"github.com/apsbeam/streamrecon/internal/ring"
	"github.com/apsbeam/streamrecon/internal/scripting"
	"github.com/apsbeam/streamrecon/internal/sino"
	"github.com/apsbeam/streamrecon/internal/transport"
)

// pipelineConfig is this demo viewer's fixed geometry. The monitor is a
// local, in-process stand-in for a real viewer that would instead speak
// to a running reconsvc over the network transport excluded by §1
// Non-goals; it builds its own copy of the ingest-to-preview pipeline so
// GetReconData has live payloads to stream into the ebiten window.
var pipelineConfig = struct {
	rows, cols, n, groupSize, capacity, sliceSize, previewSize, workers int
}{rows: 48, cols: 48, n: 24, groupSize: 4, capacity: 3, sliceSize: 48, previewSize: 24, workers: 2}

// stats tracks the dashboard's live counters. All fields are updated by
// the pipeline goroutines and read by the terminal dashboard, so every
// field is an atomic.
type stats struct {
	framesIngested  atomic.Int64
	framesDropped   atomic.Int64
	revolutions     atomic.Int64
	ringOccupancy   atomic.Int64
	bufferFlips     atomic.Int64
	previewPayloads atomic.Int64
	slicePayloads   atomic.Int64
}

// runPipeline builds the full pipeline and returns the server whose
// GetReconData channel feeds the viewer, plus the live stats block the
// dashboard reads. It runs everything as background goroutines and
// returns immediately.
func runPipeline(ctx context.Context) (*reconserver.Server, *stats) {
	cfg := pipelineConfig
	st := &stats{}

	log := obs.New("reconmonitor")
	calibAgg := calib.New(cfg.rows*cfg.cols, 16, 16, obs.New("calib"))
	rawRing := ring.New(cfg.groupSize, cfg.capacity, cfg.rows, cfg.cols, obs.New("ring"))
	classifier := classify.New(frame.Shape{Rows: cfg.rows, Cols: cfg.cols}, calibAgg, rawRing, obs.New("classify"))

	pool, err := preprocess.New(preprocess.Config{
		Rows: cfg.rows, Cols: cfg.cols,
		FilterName: "shepp",
		Workers:    cfg.workers,
	}, calibAgg, rawRing.Out(), obs.New("preprocess"))
	if err != nil {
		log.Fatal("preprocess pool: %v", err)
	}

	transposer := sino.New(sino.Alternating, cfg.rows, cfg.cols, cfg.n, cfg.groupSize, pool.Out(), obs.New("sino"))

	backend := gpubuf.NewVulkanBackend()
	buf, err := gpubuf.New(sino.Alternating, cfg.rows, cfg.n, cfg.cols, cfg.previewSize, cfg.sliceSize, backend, obs.New("gpubuf"))
	if err != nil {
		log.Fatal("gpu double buffer: %v", err)
	}

	geom := backproject.DefaultParallelGeometry(cfg.rows, cfg.cols, cfg.sliceSize, cfg.previewSize, cfg.n, backproject.Half)
	driver := backproject.NewParallel(geom, buf, softwareBackprojector{}, obs.New("backproject"))

	machine := reconserver.NewMachine(sino.Alternating, obs.New("reconserver"))
	registry := reconserver.NewParameterRegistry(reconserver.Config{FilterName: "shepp"}, obs.New("reconserver"))
	server := reconserver.New(machine, registry, driver, scripting.Default(), 16, obs.New("reconserver"))

	machine.SetServerState(reconserver.StateReady)

	go runIngest(ctx, newSyntheticSource(cfg.rows, cfg.cols, cfg.n), classifier, machine, calibAgg, st, log)
	go runUploader(ctx, transposer, buf, machine, rawRing, st)
	go runPreview(ctx, driver, server, cfg.previewSize, 500*time.Millisecond, st, log)
	go func() {
		if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
			log.Backpressure("preprocessor pool exited: %v", err)
		}
	}()
	go func() {
		_ = transposer.Run(ctx)
	}()

	return server, st
}

func runIngest(ctx context.Context, source *syntheticSource, classifier *classify.Classifier, machine *reconserver.Machine, calibAgg *calib.Aggregator, st *stats, log *obs.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		meta, payload, err := source.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Protocol("frame source error: %v", err)
			}
			return
		}
		f, ok, err := transport.ToFrame(meta, payload, 16)
		if err != nil {
			st.framesDropped.Add(1)
			continue
		}
		if !ok {
			st.framesDropped.Add(1)
			continue
		}
		if err := classifier.Accept(f); err != nil {
			st.framesDropped.Add(1)
			continue
		}
		if f.Kind != frame.KindProjection {
			machine.NewCalibration()
			continue
		}
		if calibAgg.Ready() {
			machine.CalibrationReady()
		}
		st.framesIngested.Add(1)
	}
}

func runUploader(ctx context.Context, transposer *sino.Transposer, buf *gpubuf.DoubleBuffer, machine *reconserver.Machine, rawRing *ring.Ring, st *stats) {
	for {
		update, ok := transposer.Out().WaitAndPop(100 * time.Millisecond)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			st.ringOccupancy.Store(int64(len(rawRing.LiveGenerations())))
			continue
		}
		buf.Apply(update)
		machine.RevolutionComplete()
		st.revolutions.Add(1)
		st.bufferFlips.Add(1)
		st.ringOccupancy.Store(int64(len(rawRing.LiveGenerations())))
	}
}

func runPreview(ctx context.Context, driver *backproject.Driver, server *reconserver.Server, previewSize int, interval time.Duration, st *stats, log *obs.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			vol, err := driver.ReconstructPreview()
			if err != nil {
				log.Backpressure("preview reconstruction failed: %v", err)
				continue
			}
			server.PublishPreview(vol, previewSize, scripting.RefreshContext{})
			st.previewPayloads.Add(1)
		}
	}
}
