// Package preprocess implements the preprocessor (§4.4): a fixed pool of
// worker goroutines pulling individual projection tasks from a shared
// job channel — the idiomatic Go stand-in for the original's
// task-stealing thread pool (SPEC_FULL.md §5) — applying flat-field
// correction, optional Paganin phase retrieval or plain neg-log, the
// row-wise ramp filter, and optional FDK cone-beam weighting in place.
// Grounded on recon/src/worker_pool.cpp's fixed-worker/shared-queue
// design and recon/src/filter.cpp's per-worker scratch discipline.
package preprocess

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/apsbeam/streamrecon/internal/calib"
	"github.com/apsbeam/streamrecon/internal/daqqueue"
	"github.com/apsbeam/streamrecon/internal/dsp"
	"github.com/apsbeam/streamrecon/internal/obs"
	"github.com/apsbeam/streamrecon/internal/reconerr"
	"github.com/apsbeam/streamrecon/internal/ring"
)

// Config is the preprocessor's per-generation configuration snapshot
// (§9 design note: "typed field in a configuration struct", no
// monkey-patching). Workers read a Config captured once at Pool
// construction and keep it for the Pool's lifetime; nothing rebuilds the
// Pool when the viewer changes a parameter (filter choice, phase
// retrieval toggle).
type Config struct {
	Rows, Cols int

	// PhaseRetrieval and AlreadyLinear are mutually exclusive: when
	// PhaseRetrieval is set the Paganin branch supplies its own
	// thickness-image log step; AlreadyLinear skips neg-log entirely
	// because the source already delivers linearised projections.
	PhaseRetrieval bool
	AlreadyLinear  bool

	// FilterName selects the ramp filter: "shepp" (default), "ramlak",
	// or "custom" (CustomFilter, one value per detector column).
	FilterName   string
	CustomFilter []float64
	// GaussianSigma, when > 0, windows the ramp filter by a Gaussian
	// low-pass of this standard deviation (§4.9).
	GaussianSigma float64

	// Paganin phase-retrieval parameters (§4.9).
	Lambda, Delta, Beta, Distance, PixelSize float64

	// ConeBeam enables the FDK pre-weight step; FDKWeights must have
	// Rows*Cols entries when set.
	ConeBeam   bool
	FDKWeights []float64

	// Workers is the worker pool size (T in the original).
	Workers int
}

func (c Config) rampFilter() ([]float64, error) {
	var h []float64
	switch c.FilterName {
	case "", "shepp":
		h = dsp.ShepLogan(c.Cols)
	case "ramlak":
		h = dsp.RamLak(c.Cols)
	case "custom":
		if len(c.CustomFilter) != c.Cols {
			return nil, fmt.Errorf("custom filter length %d != cols %d", len(c.CustomFilter), c.Cols)
		}
		h = append([]float64(nil), c.CustomFilter...)
	default:
		return nil, fmt.Errorf("unknown filter %q", c.FilterName)
	}
	if c.GaussianSigma > 0 {
		dsp.ApplyLowpass(h, c.GaussianSigma)
	}
	return h, nil
}

type projTask struct {
	pg  *pendingGroup
	idx int
}

type pendingGroup struct {
	group     *ring.Group
	remaining atomic.Int32
}

// Pool is the preprocessor worker pool: it drains complete groups from
// a ring's output queue and pushes preprocessed groups (same shape,
// filtered data, still in projection/row/col order) to its own output
// queue for the sinogram transposer.
type Pool struct {
	cfg    Config
	calib  *calib.Aggregator
	in     *daqqueue.Queue[*ring.Group]
	out    *daqqueue.Queue[*ring.Group]
	jobs   chan projTask
	log    *obs.Logger
	filter []float64
	kernel []float64 // Paganin kernel, rows*cols, only set if PhaseRetrieval
}

// New validates cfg and builds a Pool. It returns an FftPlanError
// (§4.4: "Fails with FftPlanError if initial plan construction fails")
// if the ramp filter table or FDK weight table is malformed.
func New(cfg Config, calibAgg *calib.Aggregator, in *daqqueue.Queue[*ring.Group], log *obs.Logger) (*Pool, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	filter, err := cfg.rampFilter()
	if err != nil {
		return nil, reconerr.FftPlanError("ramp filter construction", err)
	}
	if cfg.ConeBeam && len(cfg.FDKWeights) != cfg.Rows*cfg.Cols {
		return nil, reconerr.FftPlanError("FDK weight table",
			fmt.Errorf("expected %d entries, got %d", cfg.Rows*cfg.Cols, len(cfg.FDKWeights)))
	}

	p := &Pool{
		cfg:    cfg,
		calib:  calibAgg,
		in:     in,
		out:    daqqueue.New[*ring.Group](0),
		jobs:   make(chan projTask, cfg.Workers*2),
		log:    log,
		filter: filter,
	}
	if cfg.PhaseRetrieval {
		p.kernel = dsp.Paganin2D(cfg.Rows, cfg.Cols, cfg.PixelSize, cfg.Lambda, cfg.Delta, cfg.Beta, cfg.Distance)
	}
	return p, nil
}

// Out returns the preprocessed-group queue the sinogram transposer drains.
func (p *Pool) Out() *daqqueue.Queue[*ring.Group] { return p.out }

// Run launches the dispatcher and the worker pool and blocks until ctx
// is cancelled or a worker returns an error (a plan or arithmetic
// failure deep enough to be treated as a resource error, §7).
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error { return p.worker(gctx) })
	}
	g.Go(func() error { return p.dispatch(gctx) })
	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (p *Pool) dispatch(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		group, ok := p.in.WaitAndPop(100 * time.Millisecond)
		if !ok {
			continue
		}
		pg := &pendingGroup{group: group}
		pg.remaining.Store(int32(group.GroupSize))
		for s := 0; s < group.GroupSize; s++ {
			select {
			case p.jobs <- projTask{pg: pg, idx: s}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (p *Pool) worker(ctx context.Context) error {
	ramp := dsp.NewPlan1D(p.cfg.Cols, p.filter)
	rampScratch := ramp.NewScratch()

	var paganin *dsp.Plan2D
	var paganinScratch []dsp.Complex
	if p.cfg.PhaseRetrieval {
		paganin = dsp.NewPlan2D(p.cfg.Rows, p.cfg.Cols, p.kernel)
		paganinScratch = paganin.NewScratch()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-p.jobs:
			if !ok {
				return nil
			}
			p.processProjection(t, ramp, rampScratch, paganin, paganinScratch)
			if t.pg.remaining.Add(-1) == 0 {
				p.out.TryPush(t.pg.group)
			}
		}
	}
}

func (p *Pool) processProjection(t projTask, ramp *dsp.Plan1D, rampScratch []dsp.Complex, paganin *dsp.Plan2D, paganinScratch []dsp.Complex) {
	g := t.pg.group
	pixels := g.Rows * g.Cols
	proj := g.Data[t.idx*pixels : (t.idx+1)*pixels]

	darkMean, reciprocal := p.calib.Snapshot()
	for i := range proj {
		proj[i] = (proj[i] - darkMean[i]) * reciprocal[i]
	}

	switch {
	case p.cfg.PhaseRetrieval:
		paganin.Apply(proj, paganinScratch)
		scale := p.cfg.Lambda / (4 * math.Pi * p.cfg.Beta)
		for i, v := range proj {
			if v < 0 {
				v = 0
			}
			proj[i] = -math.Log(v) * scale
		}
	case !p.cfg.AlreadyLinear:
		for i, v := range proj {
			if v <= 0 {
				proj[i] = 0
			} else {
				proj[i] = -math.Log(v)
			}
		}
	}

	for r := 0; r < g.Rows; r++ {
		row := proj[r*g.Cols : (r+1)*g.Cols]
		ramp.Apply(row, rampScratch)
	}

	if p.cfg.ConeBeam {
		for i := range proj {
			proj[i] *= p.cfg.FDKWeights[i]
		}
	}
}
