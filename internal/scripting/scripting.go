// Package scripting embeds a small Lua predicate, evaluated once per
// preview refresh, that decides whether the server should also run
// iso-surface extraction on that refresh (§11 supplemented feature: the
// teacher repo depends on github.com/yuin/gopher-lua for user scripting;
// this package repurposes the same engine as a cheap operator policy
// hook instead of a recompiled binary). The default policy, when no
// script is configured, always extracts.
package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// RefreshContext is exposed to the script as Lua globals before
// evaluation, giving it enough state to make a policy decision without
// granting it access to the pipeline itself.
type RefreshContext struct {
	ProjectionsIncorporated int
	RevolutionCount         int
	RingOccupancy           int
	EvictionRate            float64
}

// PolicyHook evaluates an operator-supplied Lua expression against a
// RefreshContext to decide whether extract_isosurface should run this
// refresh.
type PolicyHook struct {
	script string
}

// Default returns a PolicyHook that always extracts (no script loaded).
func Default() *PolicyHook { return &PolicyHook{} }

// Load compiles and sanity-checks src so load-time errors surface
// immediately rather than on the first refresh.
func Load(src string) (*PolicyHook, error) {
	h := &PolicyHook{script: src}
	if _, err := h.eval(RefreshContext{}); err != nil {
		return nil, fmt.Errorf("scripting: invalid policy script: %w", err)
	}
	return h, nil
}

// ShouldExtract runs the policy for ctx. A script error degrades to
// "always extract" rather than failing the refresh, since this hook is
// an operator-console nicety and never sits on the reconstruction
// critical path.
func (h *PolicyHook) ShouldExtract(ctx RefreshContext) bool {
	if h.script == "" {
		return true
	}
	v, err := h.eval(ctx)
	if err != nil {
		return true
	}
	return v
}

func (h *PolicyHook) eval(ctx RefreshContext) (bool, error) {
	if h.script == "" {
		return true, nil
	}
	L := lua.NewState()
	defer L.Close()

	L.SetGlobal("projections_incorporated", lua.LNumber(ctx.ProjectionsIncorporated))
	L.SetGlobal("revolution_count", lua.LNumber(ctx.RevolutionCount))
	L.SetGlobal("ring_occupancy", lua.LNumber(ctx.RingOccupancy))
	L.SetGlobal("eviction_rate", lua.LNumber(ctx.EvictionRate))
	L.SetGlobal("should_extract", lua.LBool(true))

	if err := L.DoString(h.script); err != nil {
		return false, err
	}
	result := L.GetGlobal("should_extract")
	return lua.LVAsBool(result), nil
}
