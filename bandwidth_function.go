package bwm

// bandwidth_function.go implements the piecewise-linear monotonic map from
// fair share to bandwidth used throughout the bandwidth manager: every
// unit flow, every tenant, and the coordinator's aggregation algorithm all
// operate through this one abstraction.  Grounded on
// src/bandwidth-manager/model/bandwidth-function.{h,cc},
// re-expressed in the style of mrnes's small value-type helpers.

import (
	"fmt"
	"strconv"
	"strings"
)

// Inf is the sentinel returned when a query lands above every vertex of a
// BandwidthFunction.  ns-3's bandwidth-function.{h,cc} uses -1 for the
// same purpose; this keeps the same sentinel value so wire/trace
// formats round-trip identically.
const Inf float64 = -1

// vertex is one (fairShare, bandwidth) point of a BandwidthFunction.
type vertex struct {
	fs float64
	bw float64
}

// BandwidthFunction is a non-empty, monotonically non-decreasing sequence
// of (fairShare, bandwidth) vertices, with the first vertex fixed at
// (0, 0).  Values between vertices are linearly interpolated.
type BandwidthFunction struct {
	vertices []vertex
}

// NewBandwidthFunction returns a BandwidthFunction seeded with the
// mandatory (0, 0) origin vertex.
func NewBandwidthFunction() *BandwidthFunction {
	bf := &BandwidthFunction{vertices: make([]vertex, 0, 4)}
	bf.vertices = append(bf.vertices, vertex{fs: 0, bw: 0})
	return bf
}

// AddVertex appends a new vertex to the tail of the function.  The append
// is rejected (returns false) if it would make the bandwidth sequence
// decrease, preserving the monotonicity invariant.
func (bf *BandwidthFunction) AddVertex(fairShare, bandwidth float64) bool {
	if len(bf.vertices) > 0 && bandwidth < bf.vertices[len(bf.vertices)-1].bw {
		return false
	}
	bf.vertices = append(bf.vertices, vertex{fs: fairShare, bw: bandwidth})
	return true
}

// Bandwidth interpolates the function forward: fair share -> bandwidth.
// fairShare == Inf returns the bandwidth of the last vertex.  Two
// consecutive vertices sharing the same fair share (a step) resolve to
// the second, higher vertex.
func (bf *BandwidthFunction) Bandwidth(fairShare float64) float64 {
	if fairShare == Inf {
		return bf.vertices[len(bf.vertices)-1].bw
	}

	for i, v := range bf.vertices {
		if v.fs == fairShare {
			if i+1 < len(bf.vertices) && bf.vertices[i+1].fs == v.fs {
				return bf.vertices[i+1].bw
			}
			return v.bw
		}

		if i+1 < len(bf.vertices) {
			next := bf.vertices[i+1]
			if fairShare < next.fs {
				frac := (fairShare - v.fs) / (next.fs - v.fs)
				return v.bw + frac*(next.bw-v.bw)
			}
		} else {
			return v.bw
		}
	}

	return 0.0
}

// FairShare interpolates the function backward: bandwidth -> the smallest
// fair share achieving it.  Returns Inf when bandwidth exceeds every
// vertex.  Duplicate-bandwidth segments collapse to the smaller fair
// share, the mirror image of Bandwidth's step resolution.
func (bf *BandwidthFunction) FairShare(bandwidth float64) float64 {
	if bandwidth == Inf {
		return Inf
	}

	for i, v := range bf.vertices {
		if v.bw == bandwidth {
			return v.fs
		}

		if i+1 < len(bf.vertices) {
			next := bf.vertices[i+1]
			if bandwidth < next.bw {
				frac := (bandwidth - v.bw) / (next.bw - v.bw)
				return v.fs + frac*(next.fs-v.fs)
			}
		} else {
			return Inf
		}
	}

	return 0.0
}

// NextVertexByFS returns the smallest vertex fair share strictly greater
// than currentFairShare, or Inf if none exists.
func (bf *BandwidthFunction) NextVertexByFS(currentFairShare float64) float64 {
	for _, v := range bf.vertices {
		if v.fs > currentFairShare {
			return v.fs
		}
	}
	return Inf
}

// NextVertexByBW returns the smallest vertex bandwidth strictly greater
// than currentBandwidth, or Inf if none exists.
func (bf *BandwidthFunction) NextVertexByBW(currentBandwidth float64) float64 {
	for _, v := range bf.vertices {
		if v.bw > currentBandwidth {
			return v.bw
		}
	}
	return Inf
}

// fpEqual compares floats with the tolerance the aggregation algorithm
// uses throughout: 1e-3.
func fpEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-3
}

// String renders the vertex sequence as "fs1,bw1 fs2,bw2 ...", matching
// ns-3's BandwidthFunction::operator<< and the tenant-config file's BF
// encoding.
func (bf *BandwidthFunction) String() string {
	parts := make([]string, 0, len(bf.vertices))
	for _, v := range bf.vertices {
		parts = append(parts, fmt.Sprintf("%v,%v", v.fs, v.bw))
	}
	return strings.Join(parts, " ")
}

// ParseBandwidthFunction parses the "fs1,bw1 fs2,bw2 ..." vertex-list
// encoding used by the tenant configuration file format.
// The caller is expected to supply the leading (0,0) vertex explicitly
// (ReadTenantConfig prepends it to the tenant file's BF line); unlike
// NewBandwidthFunction this does not seed an implicit origin, so
// Parse(String(bf)) round-trips exactly.
func ParseBandwidthFunction(s string) (*BandwidthFunction, error) {
	bf := &BandwidthFunction{vertices: make([]vertex, 0, 4)}
	for _, pair := range strings.Fields(s) {
		split := strings.SplitN(pair, ",", 2)
		if len(split) != 2 {
			return nil, fmt.Errorf("bwm: malformed bandwidth function vertex %q", pair)
		}
		fs, err := strconv.ParseFloat(split[0], 64)
		if err != nil {
			return nil, fmt.Errorf("bwm: bad fair share in vertex %q: %w", pair, err)
		}
		bwVal, err := strconv.ParseFloat(split[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bwm: bad bandwidth in vertex %q: %w", pair, err)
		}
		if !bf.AddVertex(fs, bwVal) {
			return nil, fmt.Errorf("bwm: vertex %q breaks bandwidth monotonicity", pair)
		}
	}
	return bf, nil
}
