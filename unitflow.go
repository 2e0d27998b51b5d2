package bwm

// unitflow.go implements UnitFlow, the smallest control granule of the
// bandwidth manager. Grounded on the UnitFlow class in
// src/bandwidth-manager/model/bwm-coordinator.{h,cc};
// restructured as a plain Go value type following mrnes's convention
// of small records with id-keyed ownership (compare mrnes's
// endptDev/routerDev records in net.go).

// UnitFlow is a per-flow control record: the operator's configured
// bandwidth function, the effective (tenant-transformed) bandwidth
// function, the allocated fair share, the last measured usage, and the
// CAWC congestion factor. It is owned by a Tenant and referenced by
// pointer, without ownership, from a LocalAgent's flow table.
type UnitFlow struct {
	TenantID uint32
	FlowID   uint32

	// TraceID is an opaque identifier used only for telemetry; it need
	// not be related to FlowID.
	TraceID uint32

	configuredBF  *BandwidthFunction
	transformedBF *BandwidthFunction

	usage            float64 // bits/s, last reported
	allocatedFS      float64
	congestionFactor float64
}

// NewUnitFlow constructs an empty UnitFlow; callers must attach a
// configured BF via SetConfiguredBF before the flow participates in
// tenant aggregation.
func NewUnitFlow(tenantID, flowID, traceID uint32) *UnitFlow {
	return &UnitFlow{TenantID: tenantID, FlowID: flowID, TraceID: traceID}
}

// ConfiguredBF returns the operator-intent bandwidth function.
func (uf *UnitFlow) ConfiguredBF() *BandwidthFunction { return uf.configuredBF }

// SetConfiguredBF installs the operator-intent bandwidth function. It does
// not check for (and will silently replace) a previously configured BF.
func (uf *UnitFlow) SetConfiguredBF(bf *BandwidthFunction) { uf.configuredBF = bf }

// TransformedBF returns the effective allocation curve produced by the
// tenant's most recent aggregation pass.
func (uf *UnitFlow) TransformedBF() *BandwidthFunction { return uf.transformedBF }

// SetTransformedBF installs the effective allocation curve. Called only
// by Tenant.TransformComponentialBF.
func (uf *UnitFlow) SetTransformedBF(bf *BandwidthFunction) { uf.transformedBF = bf }

// SetUsage records the measured usage rate (bits/s) for the last report
// interval.
func (uf *UnitFlow) SetUsage(bps float64) { uf.usage = bps }

// Usage returns the last reported usage rate (bits/s).
func (uf *UnitFlow) Usage() float64 { return uf.usage }

// SetAllocatedFS records the controller's current allocated fair share.
func (uf *UnitFlow) SetAllocatedFS(fs float64) { uf.allocatedFS = fs }

// AllocatedFS returns the controller's current allocated fair share.
func (uf *UnitFlow) AllocatedFS() float64 { return uf.allocatedFS }

// SetCongestionFactor records the most recently received CAWC congestion
// factor, a value in [0,1].
func (uf *UnitFlow) SetCongestionFactor(factor float64) { uf.congestionFactor = factor }

// CongestionFactor returns the most recently received CAWC congestion
// factor.
func (uf *UnitFlow) CongestionFactor() float64 { return uf.congestionFactor }

// AllocatedRate uses the transformed bandwidth function to convert the
// currently allocated fair share into a rate in bits/s. Returns 0 if the
// flow has not yet been through tenant transformation.
func (uf *UnitFlow) AllocatedRate() float64 {
	if uf.transformedBF == nil {
		return 0
	}
	return uf.transformedBF.Bandwidth(uf.allocatedFS)
}
