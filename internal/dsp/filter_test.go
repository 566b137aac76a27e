package dsp

import "testing"

func almostEqual(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

// TestRamLakShepLoganExactValues encodes the ramp-filter scenario: ramlak(4)
// and shepp(5) must match these tables to 1e-6.
func TestRamLakShepLoganExactValues(t *testing.T) {
	wantRamLak4 := []float64{0, .125, .25, .125}
	gotRamLak4 := RamLak(4)
	for i, want := range wantRamLak4 {
		if !almostEqual(gotRamLak4[i], want, 1e-6) {
			t.Errorf("ramlak(4)[%d] = %v, want %v", i, gotRamLak4[i], want)
		}
	}

	wantShepp5 := []float64{0, 0.074839, 0.121092, 0.121092, 0.074839}
	gotShepp5 := ShepLogan(5)
	for i, want := range wantShepp5 {
		if !almostEqual(gotShepp5[i], want, 1e-6) {
			t.Errorf("shepp(5)[%d] = %v, want %v", i, gotShepp5[i], want)
		}
	}
}

// TestRampFilterSymmetry covers invariant 4 of §8: ramlak(n) and shepp(n)
// are symmetric about mid = (n+1)/2 within floating-point epsilon, for a
// spread of odd and even lengths.
func TestRampFilterSymmetry(t *testing.T) {
	for _, n := range []int{4, 5, 6, 7, 8, 16, 17} {
		rl := RamLak(n)
		sl := ShepLogan(n)
		for i := 1; i < n; i++ {
			j := n - i
			if !almostEqual(rl[i], rl[j], 1e-9) {
				t.Errorf("ramlak(%d) not symmetric: [%d]=%v [%d]=%v", n, i, rl[i], j, rl[j])
			}
			if !almostEqual(sl[i], sl[j], 1e-9) {
				t.Errorf("shepp(%d) not symmetric: [%d]=%v [%d]=%v", n, i, sl[i], j, sl[j])
			}
		}
	}
}

func TestApplyLowpassAttenuatesHighFrequencies(t *testing.T) {
	filter := RamLak(16)
	before := append([]float64(nil), filter...)
	ApplyLowpass(filter, 0.3)
	for i := range filter {
		if filter[i] > before[i]+1e-12 {
			t.Fatalf("ApplyLowpass increased filter[%d]: %v > %v", i, filter[i], before[i])
		}
	}
	// The Nyquist bin (index n/2, the highest frequency for even n) must
	// be attenuated more than the lowest nonzero bin.
	mid := len(filter) / 2
	if before[1] == 0 || before[mid] == 0 {
		t.Fatal("expected nonzero ramp values to compare attenuation against")
	}
	lowRatio := filter[1] / before[1]
	highRatio := filter[mid] / before[mid]
	if highRatio > lowRatio {
		t.Fatalf("Gaussian lowpass should attenuate high frequency bin %d more than bin 1: highRatio=%v lowRatio=%v", mid, highRatio, lowRatio)
	}
}

func TestPaganin2DSymmetricAboutOrigin(t *testing.T) {
	const rows, cols = 4, 6
	k := Paganin2D(rows, cols, 1.0, 1e-10, 1.0, 1e-3, 1.0)
	if len(k) != rows*cols {
		t.Fatalf("Paganin2D length = %d, want %d", len(k), rows*cols)
	}
	// DC component (row 0, col 0) must be the kernel's maximum: the
	// denominator 1+distance*lambda*delta*kSquared is minimised at
	// kSquared=0.
	dc := k[0]
	for i, v := range k {
		if v > dc+1e-12 {
			t.Fatalf("Paganin2D[%d] = %v exceeds DC value %v", i, v, dc)
		}
	}
}
