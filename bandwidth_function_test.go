package bwm

import "testing"

func TestBandwidthFunctionOriginVertex(t *testing.T) {
	bf := NewBandwidthFunction()
	if got := bf.Bandwidth(0); got != 0 {
		t.Fatalf("Bandwidth(0) = %v, want 0", got)
	}
}

func TestBandwidthFunctionLinearInterpolation(t *testing.T) {
	bf := NewBandwidthFunction()
	if ok := bf.AddVertex(10, 100); !ok {
		t.Fatal("AddVertex(10, 100) rejected")
	}
	if ok := bf.AddVertex(20, 300); !ok {
		t.Fatal("AddVertex(20, 300) rejected")
	}

	if got := bf.Bandwidth(5); !fpEqual(got, 50) {
		t.Errorf("Bandwidth(5) = %v, want 50", got)
	}
	if got := bf.Bandwidth(15); !fpEqual(got, 200) {
		t.Errorf("Bandwidth(15) = %v, want 200", got)
	}
	if got := bf.Bandwidth(20); !fpEqual(got, 300) {
		t.Errorf("Bandwidth(20) = %v, want 300", got)
	}
}

func TestBandwidthFunctionInfSentinel(t *testing.T) {
	bf := NewBandwidthFunction()
	bf.AddVertex(10, 100)

	if got := bf.Bandwidth(Inf); got != 100 {
		t.Errorf("Bandwidth(Inf) = %v, want 100 (last vertex)", got)
	}
	if got := bf.FairShare(Inf); got != Inf {
		t.Errorf("FairShare(Inf) = %v, want Inf", got)
	}
	if got := bf.FairShare(1000); got != Inf {
		t.Errorf("FairShare(1000) = %v, want Inf (beyond last vertex)", got)
	}
}

func TestBandwidthFunctionRejectsNonMonotonic(t *testing.T) {
	bf := NewBandwidthFunction()
	bf.AddVertex(10, 100)
	if ok := bf.AddVertex(20, 50); ok {
		t.Fatal("AddVertex accepted a decreasing bandwidth, breaking monotonicity")
	}
}

func TestBandwidthFunctionStepResolution(t *testing.T) {
	bf := NewBandwidthFunction()
	bf.AddVertex(10, 100)
	bf.AddVertex(10, 200) // a step: two vertices sharing fs=10

	if got := bf.Bandwidth(10); got != 200 {
		t.Errorf("Bandwidth(10) at a step = %v, want 200 (resolves to the higher vertex)", got)
	}
}

func TestBandwidthFunctionForwardInverseRoundTrip(t *testing.T) {
	bf := NewBandwidthFunction()
	bf.AddVertex(10, 100)
	bf.AddVertex(30, 500)
	bf.AddVertex(50, 900)

	for _, fs := range []float64{2, 10, 17.5, 30, 44, 50} {
		bw := bf.Bandwidth(fs)
		back := bf.FairShare(bw)
		if !fpEqual(back, fs) {
			t.Errorf("FairShare(Bandwidth(%v)) = %v, want %v", fs, back, fs)
		}
	}
}

func TestBandwidthFunctionNextVertexByFS(t *testing.T) {
	bf := NewBandwidthFunction()
	bf.AddVertex(10, 100)
	bf.AddVertex(30, 500)

	if got := bf.NextVertexByFS(0); got != 10 {
		t.Errorf("NextVertexByFS(0) = %v, want 10", got)
	}
	if got := bf.NextVertexByFS(10); got != 30 {
		t.Errorf("NextVertexByFS(10) = %v, want 30", got)
	}
	if got := bf.NextVertexByFS(30); got != Inf {
		t.Errorf("NextVertexByFS(30) = %v, want Inf (no vertex beyond the last)", got)
	}
}

func TestBandwidthFunctionNextVertexByBW(t *testing.T) {
	bf := NewBandwidthFunction()
	bf.AddVertex(10, 100)
	bf.AddVertex(30, 500)

	if got := bf.NextVertexByBW(0); got != 100 {
		t.Errorf("NextVertexByBW(0) = %v, want 100", got)
	}
	if got := bf.NextVertexByBW(500); got != Inf {
		t.Errorf("NextVertexByBW(500) = %v, want Inf", got)
	}
}

func TestParseBandwidthFunctionRoundTrip(t *testing.T) {
	bf := NewBandwidthFunction()
	bf.AddVertex(10, 100)
	bf.AddVertex(30, 500)

	s := bf.String()
	parsed, err := ParseBandwidthFunction(s)
	if err != nil {
		t.Fatalf("ParseBandwidthFunction(%q): %v", s, err)
	}
	for _, fs := range []float64{0, 10, 20, 30} {
		if got, want := parsed.Bandwidth(fs), bf.Bandwidth(fs); !fpEqual(got, want) {
			t.Errorf("round-tripped Bandwidth(%v) = %v, want %v", fs, got, want)
		}
	}
}

func TestParseBandwidthFunctionRejectsMalformedVertex(t *testing.T) {
	if _, err := ParseBandwidthFunction("0,0 garbage"); err == nil {
		t.Fatal("expected an error parsing a malformed vertex")
	}
	if _, err := ParseBandwidthFunction("0,0 10,abc"); err == nil {
		t.Fatal("expected an error parsing a non-numeric bandwidth")
	}
}

func TestParseBandwidthFunctionRejectsNonMonotonic(t *testing.T) {
	if _, err := ParseBandwidthFunction("0,0 10,100 20,50"); err == nil {
		t.Fatal("expected an error for a decreasing bandwidth sequence")
	}
}
