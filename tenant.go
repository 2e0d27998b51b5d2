package bwm

// tenant.go implements Tenant and the BwE-style bandwidth-function
// aggregation/transformation algorithm. Grounded on the Tenant class in
// src/bandwidth-manager/model/bwm-coordinator.{h,cc},
// specifically TransformComponentialBF; the min-heap merge pattern
// follows mrnes's own use of container/heap-shaped merges in
// routes.go's shortest-path frontier handling, adapted here to merge
// per-flow "next interesting fair share" vertices instead of graph
// edges.

import (
	"container/heap"
	"fmt"
)

// Tenant is a customer's share of the network: a set of unit flows, the
// operator-configured tenant BF, and per-host weight overrides used when
// auto-configuring a flow's BF at registration time. The tenant BF is
// set once at configuration time and never mutated thereafter; flows
// may be added dynamically but never removed.
type Tenant struct {
	TenantID uint32

	bf          *BandwidthFunction
	flows       map[uint32]*UnitFlow // flowId -> UnitFlow
	hostWeights map[uint32]float64   // hostId -> weight, default 1.0
}

// NewTenant constructs an empty Tenant bound to the given tenant
// bandwidth function. bf must not be nil; it is the tenant's fixed
// allocation curve for the lifetime of the Tenant.
func NewTenant(tenantID uint32, bf *BandwidthFunction) *Tenant {
	return &Tenant{
		TenantID:    tenantID,
		bf:          bf,
		flows:       make(map[uint32]*UnitFlow),
		hostWeights: make(map[uint32]float64),
	}
}

// BF returns the tenant's configured bandwidth function.
func (t *Tenant) BF() *BandwidthFunction { return t.bf }

// HostWeight returns the configured weight for hostId, defaulting to
// 1.0 when no override was registered.
func (t *Tenant) HostWeight(hostID uint32) float64 {
	if w, ok := t.hostWeights[hostID]; ok {
		return w
	}
	return 1.0
}

// SetHostWeight installs a per-host weight override, as read from the
// tenant configuration file's third record line.
func (t *Tenant) SetHostWeight(hostID uint32, weight float64) {
	t.hostWeights[hostID] = weight
}

// Flow looks up a unit flow by id.
func (t *Tenant) Flow(flowID uint32) (*UnitFlow, bool) {
	uf, ok := t.flows[flowID]
	return uf, ok
}

// Flows returns every unit flow owned by the tenant, in no particular
// order.
func (t *Tenant) Flows() []*UnitFlow {
	out := make([]*UnitFlow, 0, len(t.flows))
	for _, uf := range t.flows {
		out = append(out, uf)
	}
	return out
}

// AddFlow attaches a unit flow to the tenant and re-runs the BF
// transformation so every flow's transformed BF reflects the new
// componential set.
func (t *Tenant) AddFlow(uf *UnitFlow) {
	t.flows[uf.FlowID] = uf
	t.TransformComponentialBF()
}

// ActualFairShare is the inverse of the tenant BF applied to the sum of
// every owned flow's last-reported usage.
func (t *Tenant) ActualFairShare() float64 {
	var total float64
	for _, uf := range t.flows {
		total += uf.Usage()
	}
	return t.bf.FairShare(total)
}

// aggItem is one entry of the min-heap used to merge per-flow
// "next interesting fair share vertex" queries into a single
// increasing sequence.
type aggItem struct {
	x        float64
	flow     int
	vertex   int
}

type aggHeap []aggItem

func (h aggHeap) Len() int            { return len(h) }
func (h aggHeap) Less(i, j int) bool  { return h[i].x < h[j].x }
func (h aggHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *aggHeap) Push(x interface{}) { *h = append(*h, x.(aggItem)) }
func (h *aggHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// aggregateComponentialBF builds the aggregate BF A over the union of
// every configured flow BF's interesting fair-share points, via a
// min-heap merge: at each extracted x, A(x) = sum of every B_j(x).
func aggregateComponentialBF(bfs []*BandwidthFunction) *BandwidthFunction {
	agg := NewBandwidthFunction()
	if len(bfs) == 0 {
		return agg
	}

	h := &aggHeap{}
	heap.Init(h)
	for fi, bf := range bfs {
		nx := bf.NextVertexByFS(0)
		if nx != Inf {
			heap.Push(h, aggItem{x: nx, flow: fi})
		}
	}

	for h.Len() > 0 {
		x := (*h)[0].x

		// Drain every heap entry sitting at this same fair share,
		// advancing each contributing flow to its own next vertex, so
		// flows that happen to share an interesting point don't cause
		// A to be visited twice at the same x.
		for h.Len() > 0 && (*h)[0].x == x {
			it := heap.Pop(h).(aggItem)
			nx := bfs[it.flow].NextVertexByFS(it.x)
			if nx != Inf {
				heap.Push(h, aggItem{x: nx, flow: it.flow})
			}
		}

		var sum float64
		for _, bf := range bfs {
			sum += bf.Bandwidth(x)
		}
		agg.AddVertex(x, sum)
	}

	return agg
}

// transformPoint is one (x_agg, x_tenant) pair of the transform map
// built by buildTransformMap.
type transformPoint struct {
	xAgg, xTenant float64
}

// buildTransformMap walks A and T.nextVertexByBW in lockstep, taking
// at each step the smaller of the two candidate bandwidths, so that
// every "interesting" bandwidth value produces one (x_agg, x_tenant)
// pair with A(x_agg) == T(x_tenant) (within fpEqual tolerance).
func buildTransformMap(agg, tenantBF *BandwidthFunction) []transformPoint {
	points := []transformPoint{{xAgg: 0, xTenant: 0}}

	y := 0.0
	for {
		nextAgg := agg.NextVertexByBW(y)
		nextTenant := tenantBF.NextVertexByBW(y)

		if nextAgg == Inf && nextTenant == Inf {
			break
		}

		var next float64
		switch {
		case nextAgg == Inf:
			next = nextTenant
		case nextTenant == Inf:
			next = nextAgg
		case nextAgg < nextTenant:
			next = nextAgg
		default:
			next = nextTenant
		}

		xAgg := agg.FairShare(next)
		xTenant := tenantBF.FairShare(next)
		if xAgg == Inf || xTenant == Inf {
			// One side has already exhausted its vertices at this
			// bandwidth; any further step would pair a finite fair share
			// against the unbounded tail, breaking x-monotonicity, so the
			// walk stops here exactly as the aggregate or tenant curve
			// saturates.
			break
		}
		points = append(points, transformPoint{xAgg: xAgg, xTenant: xTenant})
		y = next
	}

	return points
}

// bandwidthAtAgg returns the child flow's configured bandwidth at the
// aggregate fair share x_agg, i.e. childBF.Bandwidth(xAgg); the points
// argument is not consulted.
func bandwidthAtAgg(points []transformPoint, xAgg float64, childBF *BandwidthFunction) float64 {
	return childBF.Bandwidth(xAgg)
}

// TransformComponentialBF runs the full aggregation/transformation
// pass: it builds the aggregate BF from every owned flow's configured
// BF, derives the transform map against the tenant BF, and
// re-expresses each flow's configured BF in the tenant's fair-share
// space, installing the result as that flow's transformed BF.
// Idempotent: calling it twice with no flow additions produces equal
// transformed BFs.
func (t *Tenant) TransformComponentialBF() {
	flows := t.Flows()
	bfs := make([]*BandwidthFunction, 0, len(flows))
	for _, uf := range flows {
		if uf.ConfiguredBF() != nil {
			bfs = append(bfs, uf.ConfiguredBF())
		}
	}

	agg := aggregateComponentialBF(bfs)
	tmap := buildTransformMap(agg, t.bf)

	for _, uf := range flows {
		cbf := uf.ConfiguredBF()
		if cbf == nil {
			continue
		}

		transformed := NewBandwidthFunction()
		for _, p := range tmap {
			if p.xTenant == 0 && p.xAgg == 0 {
				continue // origin is already seeded by NewBandwidthFunction
			}
			transformed.AddVertex(p.xTenant, bandwidthAtAgg(tmap, p.xAgg, cbf))
		}
		uf.SetTransformedBF(transformed)
	}
}

// fixpointHolds is a test helper checking the transformation's
// fixpoint property: for a fair share phi at or below the aggregate
// BF's last vertex, the sum of every flow's transformed BF evaluated
// at T.fairShare(A(phi)) equals A(phi) within fpEqual tolerance.
func (t *Tenant) fixpointHolds(phi float64) (bool, error) {
	flows := t.Flows()
	bfs := make([]*BandwidthFunction, 0, len(flows))
	for _, uf := range flows {
		if uf.ConfiguredBF() != nil {
			bfs = append(bfs, uf.ConfiguredBF())
		}
	}
	agg := aggregateComponentialBF(bfs)

	aPhi := agg.Bandwidth(phi)
	xTenant := t.bf.FairShare(aPhi)

	var sum float64
	for _, uf := range flows {
		tbf := uf.TransformedBF()
		if tbf == nil {
			return false, fmt.Errorf("bwm: flow %d has no transformed BF", uf.FlowID)
		}
		sum += tbf.Bandwidth(xTenant)
	}

	return fpEqual(sum, aPhi), nil
}
