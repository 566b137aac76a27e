package reconserver

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/apsbeam/streamrecon/internal/obs"
)

// ScanMode selects the viewer-requested acquisition mode (§6
// SetScanMode).
type ScanMode int

const (
	ScanStatic ScanMode = iota
	ScanDynamic
	ScanContinuous
)

func (m ScanMode) String() string {
	switch m {
	case ScanStatic:
		return "static"
	case ScanDynamic:
		return "dynamic"
	case ScanContinuous:
		return "continuous"
	default:
		return "unknown"
	}
}

// Config is the service's entire dynamic, viewer-settable parameter
// surface (§9 design note: "typed field in a configuration struct with a
// version counter"). The preprocessor workers do not read it: they run
// on the preprocess.Config their Pool was built with, so a change applied
// here does not reach them.
type Config struct {
	Version uint64

	ScanMode       ScanMode
	UpdateInterval time.Duration

	ColStride, RowStride int

	FilterName   string
	CustomFilter []float64

	SliceTimestamp  float64
	SliceOrientation [9]float64
}

// Listener is notified after every Apply, with the pre- and post-change
// snapshots (§11 supplemented feature: the original's
// Reconstructor::listeners_ fan-out).
type Listener func(old, updated Config)

// ParameterRegistry owns the live Config, bumps Version on every change,
// logs an old/new diff before notifying, and fans the change out to
// registered listeners — the Go realisation of
// Reconstructor::parameterChanged plus addListener.
type ParameterRegistry struct {
	mu        sync.RWMutex
	cfg       Config
	listeners []Listener
	log       *obs.Logger
}

// NewParameterRegistry builds a registry seeded with initial (Version 0).
func NewParameterRegistry(initial Config, log *obs.Logger) *ParameterRegistry {
	return &ParameterRegistry{cfg: initial, log: log}
}

// Snapshot returns a copy of the current configuration.
func (r *ParameterRegistry) Snapshot() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// AddListener registers l to be called after every successful Apply.
func (r *ParameterRegistry) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Apply runs mutate against a copy of the current config, commits it
// with Version bumped by one, logs the changed fields, and notifies
// listeners outside the lock. desc names the RPC driving the change
// (e.g. "SetProjectionFilter") for the log line.
func (r *ParameterRegistry) Apply(desc string, mutate func(*Config)) Config {
	r.mu.Lock()
	old := r.cfg
	next := r.cfg
	mutate(&next)
	next.Version = old.Version + 1
	r.cfg = next
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	if diff := fieldDiff(old, next); diff != "" {
		r.log.Info("parameter change (%s) v%d -> v%d: %s", desc, old.Version, next.Version, diff)
	}
	for _, l := range listeners {
		l(old, next)
	}
	return next
}

// fieldDiff renders only the top-level fields that changed between old
// and updated, so the log line stays proportional to the actual change
// instead of dumping the whole struct on every RPC.
func fieldDiff(old, updated Config) string {
	ov := reflect.ValueOf(old)
	nv := reflect.ValueOf(updated)
	t := ov.Type()
	out := ""
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Name
		if name == "Version" {
			continue
		}
		of, nf := ov.Field(i).Interface(), nv.Field(i).Interface()
		if reflect.DeepEqual(of, nf) {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%s: %v -> %v", name, of, nf)
	}
	return out
}
