package scripting

import "testing"

func TestDefaultAlwaysExtracts(t *testing.T) {
	h := Default()
	if !h.ShouldExtract(RefreshContext{}) {
		t.Fatal("Default policy should always extract")
	}
}

func TestLoadRejectsInvalidScript(t *testing.T) {
	if _, err := Load("this is not lua("); err == nil {
		t.Fatal("expected an error loading an invalid script")
	}
}

func TestLoadedScriptCanVetoExtraction(t *testing.T) {
	h, err := Load(`should_extract = ring_occupancy > 100`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.ShouldExtract(RefreshContext{RingOccupancy: 5}) {
		t.Error("expected veto when ring_occupancy is below the script's threshold")
	}
	if !h.ShouldExtract(RefreshContext{RingOccupancy: 200}) {
		t.Error("expected approval when ring_occupancy exceeds the script's threshold")
	}
}

func TestShouldExtractDegradesToTrueOnRuntimeError(t *testing.T) {
	// Bypass Load's validation to exercise ShouldExtract's own runtime
	// error handling directly.
	h := &PolicyHook{script: "error('boom')"}
	if !h.ShouldExtract(RefreshContext{}) {
		t.Error("expected degrade-to-true on a script evaluation error")
	}
}

func TestEvalExposesRefreshContextFields(t *testing.T) {
	h, err := Load(`should_extract = projections_incorporated >= 10 and revolution_count >= 1 and eviction_rate < 0.5`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx := RefreshContext{ProjectionsIncorporated: 10, RevolutionCount: 1, EvictionRate: 0.1}
	if !h.ShouldExtract(ctx) {
		t.Error("expected extraction approved with all thresholds satisfied")
	}
	ctx.EvictionRate = 0.9
	if h.ShouldExtract(ctx) {
		t.Error("expected extraction vetoed once eviction_rate exceeds the script's threshold")
	}
}
