package reconerr

import (
	"errors"
	"testing"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindTransient:    "transient",
		KindBackpressure: "backpressure",
		KindCalibration:  "calibration",
		KindResource:     "resource",
		KindProtocol:     "protocol",
		Kind(99):         "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestNewWithoutWrappedError(t *testing.T) {
	e := New(KindProtocol, "classify", "unknown frame kind", nil)
	if e.Kind != KindProtocol || e.Operation != "classify" || e.Details != "unknown frame kind" {
		t.Fatalf("unexpected Error fields: %+v", e)
	}
	if e.Unwrap() != nil {
		t.Fatalf("Unwrap() = %v, want nil", e.Unwrap())
	}
	want := "protocol: classify failed: unknown frame kind"
	if e.Error() != want {
		t.Fatalf("Error() = %q, want %q", e.Error(), want)
	}
}

func TestNewWrapsUnderlyingError(t *testing.T) {
	inner := errors.New("plan construction failed")
	e := FftPlanError("ramp filter construction", inner)

	if e.Kind != KindResource {
		t.Fatalf("FftPlanError kind = %v, want KindResource", e.Kind)
	}
	if !errors.Is(e, inner) {
		t.Fatal("errors.Is should see through Unwrap to the wrapped error")
	}
	var got *Error
	if !errors.As(e, &got) {
		t.Fatal("errors.As should match *Error")
	}
}

func TestErrShapeMismatchIsTransient(t *testing.T) {
	if ErrShapeMismatch.Kind != KindTransient {
		t.Fatalf("ErrShapeMismatch.Kind = %v, want KindTransient", ErrShapeMismatch.Kind)
	}
}
