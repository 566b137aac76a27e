// Package reconserver implements the slice/preview server and its
// global state machine (§4.10): it serves on-demand oblique slice
// requests, broadcasts preview updates, and tracks the
// IDLE/READY/ACQUIRING/RECONSTRUCTING lifecycle the rest of the
// pipeline's events drive it through. Grounded on
// coprocessor_manager.go's explicit state-enum-plus-mutex machine
// (CoprocessorManager's Running/Paused/Stopped handling) rather than a
// generic FSM library — no example repo in the retrieval pack imports
// one.
package reconserver

import (
	"fmt"
	"sync"

	"github.com/apsbeam/streamrecon/internal/obs"
	"github.com/apsbeam/streamrecon/internal/sino"
)

// State is one node of the service's global lifecycle (§4.10).
type State int

const (
	StateIdle State = iota
	StateReady
	StateAcquiring
	StateReconstructing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateAcquiring:
		return "acquiring"
	case StateReconstructing:
		return "reconstructing"
	default:
		return "unknown"
	}
}

// Machine implements the state diagram from §4.10:
//
//	IDLE --set_mode--> READY --calibration_ok--> ACQUIRING --nproj==N(alt)--> RECONSTRUCTING
//	                      ^                            |
//	                      +------- new dark/flat -------+
//
// RECONSTRUCTING loops back to ACQUIRING after each preview refresh; in
// continuous mode there is no distinct RECONSTRUCTING state, so
// RevolutionComplete is a no-op there and PreviewRefreshed never needs
// to fire a transition.
type Machine struct {
	mu    sync.Mutex
	state State
	mode  sino.Mode
	log   *obs.Logger
}

// NewMachine builds a Machine starting in StateIdle.
func NewMachine(mode sino.Mode, log *obs.Logger) *Machine {
	return &Machine{mode: mode, log: log}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetServerState implements the SetServerState RPC (§6): the viewer may
// only request IDLE, READY, or ACQUIRING directly; RECONSTRUCTING is an
// internal transition driven by revolution completion.
func (m *Machine) SetServerState(target State) error {
	if target == StateReconstructing {
		return fmt.Errorf("reconserver: RECONSTRUCTING is not a viewer-settable state")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.state
	m.state = target
	m.log.Info("server state %s -> %s (viewer request)", old, target)
	return nil
}

// CalibrationReady fires the READY -> ACQUIRING edge once the
// calibration aggregator has a usable reciprocal map.
func (m *Machine) CalibrationReady() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return
	}
	m.state = StateAcquiring
	m.log.Info("server state ready -> acquiring (calibration ok)")
}

// NewCalibration fires the "new dark/flat" edge back from ACQUIRING to
// READY, so the next projection waits for CalibrationReady again.
func (m *Machine) NewCalibration() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAcquiring && m.state != StateReconstructing {
		return
	}
	old := m.state
	m.state = StateReady
	m.log.Info("server state %s -> ready (new dark/flat)", old)
}

// RevolutionComplete fires the ACQUIRING -> RECONSTRUCTING edge when N
// projections have been incorporated in alternating mode. It is a no-op
// in continuous mode, which has no distinct RECONSTRUCTING state.
func (m *Machine) RevolutionComplete() {
	if m.mode == sino.Continuous {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAcquiring {
		return
	}
	m.state = StateReconstructing
	m.log.Info("server state acquiring -> reconstructing (revolution complete)")
}

// PreviewRefreshed fires the RECONSTRUCTING -> ACQUIRING loop-back after
// a preview update has been broadcast.
func (m *Machine) PreviewRefreshed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReconstructing {
		return
	}
	m.state = StateAcquiring
	m.log.Info("server state reconstructing -> acquiring (preview refreshed)")
}
