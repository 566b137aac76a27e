package dsp

import "testing"

// TestPlan1DRamLakFilterRow encodes the Ram-Lak row-filter scenario:
// filtering {1.1,0.2,3.5,2.7,1.3} with ramlak(5) must match this table
// to 1e-6.
func TestPlan1DRamLakFilterRow(t *testing.T) {
	row := []float64{1.1, 0.2, 3.5, 2.7, 1.3}
	plan := NewPlan1D(5, RamLak(5))
	scratch := plan.NewScratch()
	plan.Apply(row, scratch)

	want := []float64{0.024381, -0.989666, 0.999279, 0.250950, -0.284944}
	for i, w := range want {
		if !almostEqual(row[i], w, 1e-6) {
			t.Errorf("filtered row[%d] = %v, want %v", i, row[i], w)
		}
	}
}

func TestPlan1DSetFilterSwapsTable(t *testing.T) {
	plan := NewPlan1D(4, RamLak(4))
	scratch := plan.NewScratch()

	row1 := []float64{1, 2, 3, 4}
	plan.Apply(row1, scratch)

	plan.SetFilter(ShepLogan(4))
	row2 := []float64{1, 2, 3, 4}
	plan.Apply(row2, scratch)

	same := true
	for i := range row1 {
		if !almostEqual(row1[i], row2[i], 1e-9) {
			same = false
		}
	}
	if same {
		t.Fatal("SetFilter had no effect: identical filtered output for different filter tables")
	}
}

// TestPlan2DIdentityKernelRecoversScaledInput checks that a kernel of all
// ones (passthrough in the frequency domain) reproduces n*x at the origin
// structure expected from the unnormalised forward/inverse FFT pair, i.e.
// Apply with an all-ones kernel acts as the identity scaled by rows*cols.
func TestPlan2DIdentityKernelRecoversScaledInput(t *testing.T) {
	const rows, cols = 2, 4
	kernel := make([]float64, rows*cols)
	for i := range kernel {
		kernel[i] = 1
	}
	plan := NewPlan2D(rows, cols, kernel)
	scratch := plan.NewScratch()

	img := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	orig := append([]float64(nil), img...)
	plan.Apply(img, scratch)

	scale := float64(rows * cols)
	for i := range img {
		want := orig[i] * scale
		if !almostEqual(img[i], want, 1e-6) {
			t.Errorf("Plan2D identity-kernel result[%d] = %v, want %v", i, img[i], want)
		}
	}
}
