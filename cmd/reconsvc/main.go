// main.go wires the ingest-to-preview pipeline together: frame source,
// classifier, calibration aggregator, raw ring, preprocessor pool,
// sinogram transposer, GPU double buffer, back-projector driver, and
// the reconserver RPC surface. Flag parsing and component construction
// follow the teacher's flag-free, hard-coded-struct style in main.go,
// generalised only as far as this service's geometry actually needs to
// be configurable from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
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
	"github.com/apsbeam/streamrecon/internal/sonify"
	"github.com/apsbeam/streamrecon/internal/transport"
)

func main() {
	rows := flag.Int("rows", 64, "detector rows")
	cols := flag.Int("cols", 64, "detector columns")
	n := flag.Int("projections", 32, "projections per revolution")
	groupSize := flag.Int("group-size", 4, "projections per ring group")
	capacity := flag.Int("ring-capacity", 3, "live generations kept in the raw ring")
	sliceSize := flag.Int("slice-size", 64, "reconstructed slice side length")
	previewSize := flag.Int("preview-size", 32, "preview volume side length")
	workers := flag.Int("workers", 4, "preprocessor worker count")
	filterName := flag.String("filter", "shepp", "projection filter: shepp, ramlak")
	continuous := flag.Bool("continuous", false, "run in continuous (sliding window) mode instead of alternating")
	previewInterval := flag.Duration("preview-interval", 2*time.Second, "preview refresh interval")
	flag.Parse()

	mode := sino.Alternating
	if *continuous {
		mode = sino.Continuous
	}

	log := obs.New("reconsvc")

	calibAgg := calib.New(*rows * *cols, 16, 16, obs.New("calib"))
	rawRing := ring.New(*groupSize, *capacity, *rows, *cols, obs.New("ring"))
	classifier := classify.New(frame.Shape{Rows: *rows, Cols: *cols}, calibAgg, rawRing, obs.New("classify"))

	pool, err := preprocess.New(preprocess.Config{
		Rows: *rows, Cols: *cols,
		FilterName: *filterName,
		Workers:    *workers,
	}, calibAgg, rawRing.Out(), obs.New("preprocess"))
	if err != nil {
		fatal(transport.ExitFFTPlanFailure, "preprocess pool: %v", err)
	}

	transposer := sino.New(mode, *rows, *cols, *n, *groupSize, pool.Out(), obs.New("sino"))

	backend := gpubuf.NewVulkanBackend()
	buf, err := gpubuf.New(mode, *rows, *n, *cols, *previewSize, *sliceSize, backend, obs.New("gpubuf"))
	if err != nil {
		fatal(transport.ExitGPUAllocFailure, "gpu double buffer: %v", err)
	}

	geom := backproject.DefaultParallelGeometry(*rows, *cols, *sliceSize, *previewSize, *n, backproject.Half)
	driver := backproject.NewParallel(geom, buf, softwareBackprojector{}, obs.New("backproject"))

	machine := reconserver.NewMachine(mode, obs.New("reconserver"))
	registry := reconserver.NewParameterRegistry(reconserver.Config{FilterName: *filterName}, obs.New("reconserver"))
	server := reconserver.New(machine, registry, driver, nil, 16, obs.New("reconserver"))

	monitor := sonify.NewMonitor(20) // 20 backpressure events/sec saturates the tone

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	machine.SetServerState(reconserver.StateReady)

	go runUploader(ctx, transposer, buf, machine)
	go runPreview(ctx, driver, server, *previewSize, *previewInterval, log)
	go runSonifyTicker(ctx, monitor)

	source := newSyntheticSource(*rows, *cols, *n)
	go runIngest(ctx, source, classifier, machine, calibAgg, monitor, log)
	go func() {
		_ = transposer.Run(ctx)
	}()

	if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
		fatal(transport.ExitFFTPlanFailure, "preprocessor pool exited: %v", err)
	}

	os.Exit(int(transport.ExitOK))
}

func runIngest(ctx context.Context, source *syntheticSource, classifier *classify.Classifier, machine *reconserver.Machine, calibAgg *calib.Aggregator, monitor *sonify.Monitor, log *obs.Logger) {
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
			log.Protocol("frame %d decode failed: %v", meta.Frame, err)
			monitor.RecordDrop()
			continue
		}
		if !ok {
			log.Protocol("frame %d: unknown scan_index %d, dropped", meta.Frame, meta.ImageAttributes.ScanIndex)
			monitor.RecordDrop()
			continue
		}
		if err := classifier.Accept(f); err != nil {
			log.Transient("frame %d rejected: %v", f.Index, err)
			monitor.RecordDrop()
			continue
		}
		if f.Kind != frame.KindProjection {
			machine.NewCalibration()
			continue
		}
		if calibAgg.Ready() {
			machine.CalibrationReady()
		}
	}
}

func runUploader(ctx context.Context, transposer *sino.Transposer, buf *gpubuf.DoubleBuffer, machine *reconserver.Machine) {
	for {
		update, ok := transposer.Out().WaitAndPop(100 * time.Millisecond)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		buf.Apply(update)
		machine.RevolutionComplete()
	}
}

func runPreview(ctx context.Context, driver *backproject.Driver, server *reconserver.Server, previewSize int, interval time.Duration, log *obs.Logger) {
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
		}
	}
}

func runSonifyTicker(ctx context.Context, monitor *sonify.Monitor) {
	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			monitor.Tick(500 * time.Millisecond)
		}
	}
}

func fatal(code transport.ExitCode, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(int(code))
}
