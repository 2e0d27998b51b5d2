package bwm

// congestion.go implements the congestion-control variant trait: a
// small interface capturing window growth and slow-start threshold
// reduction, with four weighted Reno-family variants. These sit
// outside the core control loop; they exist here because a complete
// repo needs somewhere for a sender-side emulation to plug in a
// weighted-AIMD policy, and mrnes shows the same "small interface, one
// struct per variant" shape throughout (e.g. its NetworkMedia
// dispatch). Grounded on tcp-multcp.{h,cc}, tcp-ewtcp.{h,cc},
// tcp-wreno_md.{h,cc}, tcp-wreno_ai.{h,cc}.

// CongestionState is the minimal per-flow state a CongestionOps
// implementation reads and mutates: congestion window and slow-start
// threshold (both in the same unit the caller passes segAcked in), and
// the flow's configured weight.
type CongestionState struct {
	Cwnd     float64
	SSThresh float64
	Weight   float64
}

// CongestionOps is the variant trait: window growth and slow-start
// threshold reduction, both parameterized by the flow's weight w.
type CongestionOps interface {
	// IncreaseWindow grows cwnd for segAcked newly acknowledged units:
	// by slow start while Cwnd is below SSThresh, by congestion
	// avoidance otherwise.
	IncreaseWindow(state *CongestionState, segAcked float64)

	// SSThreshOnLoss computes the new slow-start threshold following a
	// loss event, given the flow's current bytes-in-flight bif.
	SSThreshOnLoss(state *CongestionState, bif float64) float64

	// SlowStart grows cwnd exponentially, as in unmodified Reno.
	SlowStart(state *CongestionState, segAcked float64)

	// CongestionAvoidance grows cwnd additively, scaled by the
	// variant's weight policy.
	CongestionAvoidance(state *CongestionState, segAcked float64)
}

// MulTCP scales both additive increase and the ssThresh ratio by the
// flow's weight, per tcp-multcp.cc: ssThresh uses (w-0.5)/w.
type MulTCP struct{}

func (MulTCP) IncreaseWindow(state *CongestionState, segAcked float64) {
	if state.Cwnd < state.SSThresh {
		state.SlowStartShared(segAcked)
		return
	}
	state.CongestionAvoidanceShared(segAcked, state.Weight)
}

func (MulTCP) SSThreshOnLoss(state *CongestionState, bif float64) float64 {
	w := state.Weight
	if w <= 0 {
		w = 1
	}
	ratio := (w - 0.5) / w
	if ratio < 0 {
		ratio = 0
	}
	return bif * ratio
}

func (MulTCP) SlowStart(state *CongestionState, segAcked float64) {
	state.SlowStartShared(segAcked)
}

func (MulTCP) CongestionAvoidance(state *CongestionState, segAcked float64) {
	state.CongestionAvoidanceShared(segAcked, state.Weight)
}

// EWTCP halves cwnd on loss regardless of weight, per tcp-ewtcp.cc,
// but still scales the additive-increase rate by weight.
type EWTCP struct{}

func (EWTCP) IncreaseWindow(state *CongestionState, segAcked float64) {
	if state.Cwnd < state.SSThresh {
		state.SlowStartShared(segAcked)
		return
	}
	state.CongestionAvoidanceShared(segAcked, state.Weight)
}

func (EWTCP) SSThreshOnLoss(state *CongestionState, bif float64) float64 {
	return bif / 2
}

func (EWTCP) SlowStart(state *CongestionState, segAcked float64) {
	state.SlowStartShared(segAcked)
}

func (EWTCP) CongestionAvoidance(state *CongestionState, segAcked float64) {
	state.CongestionAvoidanceShared(segAcked, state.Weight)
}

// WrenoMD uses a gentler multiplicative-decrease ratio than EWTCP,
// 1 - 0.5/w, per tcp-wreno_md.cc.
type WrenoMD struct{}

func (WrenoMD) IncreaseWindow(state *CongestionState, segAcked float64) {
	if state.Cwnd < state.SSThresh {
		state.SlowStartShared(segAcked)
		return
	}
	state.CongestionAvoidanceShared(segAcked, state.Weight)
}

func (WrenoMD) SSThreshOnLoss(state *CongestionState, bif float64) float64 {
	w := state.Weight
	if w <= 0 {
		w = 1
	}
	ratio := 1 - 0.5/w
	if ratio < 0 {
		ratio = 0
	}
	return bif * ratio
}

func (WrenoMD) SlowStart(state *CongestionState, segAcked float64) {
	state.SlowStartShared(segAcked)
}

func (WrenoMD) CongestionAvoidance(state *CongestionState, segAcked float64) {
	state.CongestionAvoidanceShared(segAcked, state.Weight)
}

// WrenoAI keeps the standard Reno multiplicative decrease (halving)
// but scales the linear-increase rate of congestion avoidance by
// weight, per tcp-wreno_ai.cc.
type WrenoAI struct{}

func (WrenoAI) IncreaseWindow(state *CongestionState, segAcked float64) {
	if state.Cwnd < state.SSThresh {
		state.SlowStartShared(segAcked)
		return
	}
	state.CongestionAvoidanceShared(segAcked, state.Weight)
}

func (WrenoAI) SSThreshOnLoss(state *CongestionState, bif float64) float64 {
	return bif / 2
}

func (WrenoAI) SlowStart(state *CongestionState, segAcked float64) {
	state.SlowStartShared(segAcked)
}

func (WrenoAI) CongestionAvoidance(state *CongestionState, segAcked float64) {
	state.CongestionAvoidanceShared(segAcked, state.Weight)
}

// SlowStartShared grows cwnd by one full segment per ack, the
// unmodified Reno slow-start rule every variant shares.
func (s *CongestionState) SlowStartShared(segAcked float64) {
	s.Cwnd += segAcked
}

// CongestionAvoidanceShared grows cwnd additively by segAcked^2/cwnd,
// scaled by weight w, the shared linear-increase shape every weighted
// variant builds on. All four variants call it with the flow's own
// weight, so their additive increase is identical; they differ only in
// SSThreshOnLoss.
func (s *CongestionState) CongestionAvoidanceShared(segAcked, weight float64) {
	if weight <= 0 {
		weight = 1
	}
	if s.Cwnd <= 0 {
		s.Cwnd = segAcked
		return
	}
	s.Cwnd += weight * segAcked * segAcked / s.Cwnd
}
