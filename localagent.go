package bwm

// localagent.go implements LocalAgent, the per-host controller: the
// Tuner and Reporter periodic tasks, the CAWC feedback side-channel,
// and flow admission with sibling rate expropriation. Grounded on the
// BwmLocalAgent class in
// src/bandwidth-manager/model/bwm-local-agent.{h,cc};
// the periodic-task self-rescheduling pattern follows mrnes's own
// bgfPcktArrivals in flow.go (a handler that does its work, then calls
// evtMgr.Schedule on itself for the next tick).

import (
	"fmt"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// Default controller parameters.
const (
	DefaultLearningRate    = 0.05
	DefaultReportCycle     = 0.005
	DefaultTuneCycle       = 0.001
	DefaultFeedbackCycle   = 0.001
	minFairShareFloor      = 10
)

// LocalFlow pairs a UnitFlow with the queue disc class enforcing its
// rate; the agent's flow table is a slice of these pairs.
type LocalFlow struct {
	Flow  *UnitFlow
	Class *BwmQueueDiscClass
}

// LocalAgent is the per-host controller: it holds the device's flow
// table, its device rate ceiling, its rate-limit-engaged flag, its
// CAWC scoreboard, and the last-received global target fair share.
type LocalAgent struct {
	HostID          uint32
	DeviceRateLimit float64 // bits/s

	K             float64 // learning rate, default 0.05
	ReportCycle   float64 // seconds, default 0.005
	TuneCycle     float64 // seconds, default 0.001
	FeedbackCycle float64 // seconds, default 0.001
	CAWCEnabled   bool

	coordinator *Coordinator
	qdisc       *BwmQueueDisc
	scoreboard  *Scoreboard

	flows     []*LocalFlow
	flowIndex map[uint32]int // flowId -> index into flows

	target      float64
	rateLimited bool
}

// NewLocalAgent constructs an agent bound to a coordinator and the
// queue disc enforcing its device's outbound rate, with the default
// controller parameters.
func NewLocalAgent(coordinator *Coordinator, qdisc *BwmQueueDisc, deviceRateLimit float64) *LocalAgent {
	return &LocalAgent{
		DeviceRateLimit: deviceRateLimit,
		K:               DefaultLearningRate,
		ReportCycle:     DefaultReportCycle,
		TuneCycle:       DefaultTuneCycle,
		FeedbackCycle:   DefaultFeedbackCycle,
		coordinator:     coordinator,
		qdisc:           qdisc,
		scoreboard:      NewScoreboard(),
		flowIndex:       make(map[uint32]int),
	}
}

// SetNewTargetStatus installs the coordinator's latest target fair
// share. It is fire-and-forget: the agent simply overwrites its
// stored target, to be consulted by the next Tuner tick.
func (a *LocalAgent) SetNewTargetStatus(target float64) {
	a.target = target
}

// QueueDisc returns the queue disc enforcing this host's device rate,
// so a caller driving traffic through the host can push packets
// through the same Enqueue/Dequeue path the control loop accounts
// usage on.
func (a *LocalAgent) QueueDisc() *BwmQueueDisc {
	return a.qdisc
}

// Flows returns every locally admitted flow's UnitFlow and queue disc
// class, in admission order.
func (a *LocalAgent) Flows() []*LocalFlow {
	return a.flows
}

// siblingsOf returns every local flow belonging to tenantID.
func (a *LocalAgent) siblingsOf(tenantID uint32) []*LocalFlow {
	var out []*LocalFlow
	for _, lf := range a.flows {
		if lf.Flow.TenantID == tenantID {
			out = append(out, lf)
		}
	}
	return out
}

// AdmitFlow registers the flow with the coordinator, appends it to the
// agent's flow table, and sets its initial class rate. With no local
// sibling of the same tenant, the initial rate is deviceRateLimit/10;
// otherwise it is the siblings' average rate, proportionally
// expropriated back from each sibling (in proportion to its current
// rate) so the device's total allocation stays near-conserved at
// admission, clamped at a floor of deviceRateLimit/100 so
// expropriation can never drive a sibling negative.
func (a *LocalAgent) AdmitFlow(tenantID, flowID, traceID, srcHost, dstHost uint32) (*UnitFlow, *BwmQueueDiscClass, bool) {
	if _, exists := a.flowIndex[flowID]; exists {
		lf := a.flows[a.flowIndex[flowID]]
		return lf.Flow, lf.Class, true
	}

	uf, ok := a.coordinator.RegisterFlow(tenantID, flowID, traceID, srcHost, dstHost, a.DeviceRateLimit)
	if !ok {
		return nil, nil, false
	}

	siblings := a.siblingsOf(tenantID)

	var initialRate float64
	if len(siblings) == 0 {
		initialRate = a.DeviceRateLimit / 10
	} else {
		var siblingSum float64
		for _, lf := range siblings {
			siblingSum += lf.Class.Rate()
		}
		initialRate = siblingSum / float64(len(siblings))

		floor := a.DeviceRateLimit / 100
		if siblingSum > 0 {
			for _, lf := range siblings {
				share := lf.Class.Rate() / siblingSum
				newRate := lf.Class.Rate() - initialRate*share
				if newRate < floor {
					newRate = floor
				}
				lf.Class.SetRate(newRate)
			}
		}
	}

	class := a.qdisc.slotFor(flowID, traceID, initialRate)
	class.SetRate(initialRate)

	lf := &LocalFlow{Flow: uf, Class: class}
	a.flows = append(a.flows, lf)
	a.flowIndex[flowID] = len(a.flows) - 1

	return uf, class, true
}

// tune is the Tuner task body: for each local flow it advances the fair share toward the target (or opportunistically
// expands it, under CAWC), converts to a rate, enforces the device
// ceiling by uniform down-scaling, and pushes the result to each
// flow's queue disc class.
func (a *LocalAgent) tune() {
	if len(a.flows) == 0 {
		return
	}

	rates := make([]float64, len(a.flows))
	var total float64

	for i, lf := range a.flows {
		fsOld := lf.Flow.AllocatedFS()
		if fsOld < minFairShareFloor {
			fsOld = minFairShareFloor
		}
		var fsNew float64

		controllerInCharge := !a.CAWCEnabled || lf.Flow.CongestionFactor() >= CongestionThreshold || a.rateLimited

		if controllerInCharge {
			fsNew = fsOld + a.K*(a.target-fsOld)
		} else if lf.Flow.Usage() != 0 {
			expansion := 1 + 1/(a.ReportCycle/a.TuneCycle)
			fsNew = fsOld * expansion
		} else {
			fsNew = fsOld
		}

		lf.Flow.SetAllocatedFS(fsNew)

		tbf := lf.Flow.TransformedBF()
		var rate float64
		if tbf != nil {
			rate = tbf.Bandwidth(fsNew)
		}
		rates[i] = rate
		total += rate
	}

	if total <= 0 {
		// Every flow's transformed BF evaluated to zero demand this
		// tick; leave every class's rate untouched rather than divide
		// by zero below.
		return
	}

	if total > a.DeviceRateLimit {
		scale := a.DeviceRateLimit / total
		for i := range rates {
			rates[i] *= scale
		}
		a.rateLimited = true
	} else {
		a.rateLimited = false
	}

	for i, lf := range a.flows {
		lf.Class.SetRate(rates[i])
	}
}

// report is the Reporter task body: for every local flow it computes
// usage_bps from the class's accumulated byte counter,
// publishes it to the flow object, resets the counter, and returns
// the list handed to the coordinator.
func (a *LocalAgent) report() []FlowUsage {
	usages := make([]FlowUsage, 0, len(a.flows))
	for _, lf := range a.flows {
		usageBPS := float64(lf.Class.Usage()*8) / a.ReportCycle
		lf.Flow.SetUsage(usageBPS)
		usages = append(usages, FlowUsage{
			TenantID: lf.Flow.TenantID,
			FlowID:   lf.Flow.FlowID,
			UsageBPS: usageBPS,
		})
		lf.Class.ResetUsage()
	}
	return usages
}

// ingestCongestionFactor stores the most recently delivered CAWC
// factor for the flow identified by flowID. CAWC feedback is
// correlated back to a flow by traceId; that identity is carried on
// the same FlowIDTag rather than a second wire tag, since no external
// format here defines a separate trace-id field.
func (a *LocalAgent) ingestCongestionFactor(flowID uint32, factor float64) {
	idx, ok := a.flowIndex[flowID]
	if !ok {
		fmt.Printf("bwm: CAWC feedback for unknown flow %d, dropping\n", flowID)
		return
	}
	a.flows[idx].Flow.SetCongestionFactor(factor)
}

// ReceivePacket is the CAWC feedback side-channel receive path. CAWC
// feedback datagrams (protocol 0xFD,
// TOS 0x80) are decoded and ingested directly; ordinary datagrams
// update the scoreboard and, once SPC reaches FeedbackThreshold,
// produce a PendingFeedback for the caller to transmit back to
// srcHost.
func (a *LocalAgent) ReceivePacket(pkt Packet, srcHost uint32, now float64) *PendingFeedback {
	if pkt.Tags.IsCAWCFeedback() {
		factor, err := DecodeCAWCFeedback(pkt.Payload)
		if err != nil {
			fmt.Printf("bwm: malformed CAWC feedback payload: %v\n", err)
			return nil
		}
		a.ingestCongestionFactor(pkt.Tags.Flow.FlowID, factor)
		return nil
	}

	emit, factor := a.scoreboard.RecordSample(pkt.Tags.Flow.FlowID, srcHost, int(pkt.Size), pkt.Tags.ECNCE, now)
	if !emit {
		return nil
	}
	return &PendingFeedback{FlowID: pkt.Tags.Flow.FlowID, SrcHost: srcHost, Factor: factor}
}

// SweepScoreboard runs the feedbackCycle periodic scan: stale entries
// are cleared, and entries with SPC > 0.2*N_fb emit one more feedback
// packet so slow flows are not starved of signal.
func (a *LocalAgent) SweepScoreboard(now float64) []PendingFeedback {
	return a.scoreboard.Sweep(now, a.FeedbackCycle)
}

// StartTuner schedules the recurring Tuner task on clock, ticking
// every TuneCycle.
func (a *LocalAgent) StartTuner(clock Clock) {
	clock.Schedule(a, nil, tunerTick, a.TuneCycle)
}

func tunerTick(evtMgr *evtm.EventManager, context any, data any) any {
	agent := context.(*LocalAgent)
	agent.tune()
	evtMgr.Schedule(agent, nil, tunerTick, vrtime.SecondsToTime(agent.TuneCycle))
	return nil
}

// StartReporter schedules the recurring Reporter task on clock,
// ticking every ReportCycle.
func (a *LocalAgent) StartReporter(clock Clock) {
	clock.Schedule(a, nil, reporterTick, a.ReportCycle)
}

func reporterTick(evtMgr *evtm.EventManager, context any, data any) any {
	agent := context.(*LocalAgent)
	usages := agent.report()
	agent.coordinator.UpdateUsage(agent, usages)
	evtMgr.Schedule(agent, nil, reporterTick, vrtime.SecondsToTime(agent.ReportCycle))
	return nil
}

// StartFeedbackSweeper schedules the recurring scoreboard sweep on
// clock, ticking every FeedbackCycle. emit is called once per
// PendingFeedback the sweep produces, so the caller can hand it to
// whatever transport carries CAWC feedback packets back to their
// source.
func (a *LocalAgent) StartFeedbackSweeper(clock Clock, emit func(PendingFeedback)) {
	clock.Schedule(&feedbackSweepState{agent: a, emit: emit}, nil, feedbackSweepTick, a.FeedbackCycle)
}

type feedbackSweepState struct {
	agent *LocalAgent
	emit  func(PendingFeedback)
}

func feedbackSweepTick(evtMgr *evtm.EventManager, context any, data any) any {
	state := context.(*feedbackSweepState)
	now := evtMgr.CurrentSeconds()
	for _, pf := range state.agent.SweepScoreboard(now) {
		if state.emit != nil {
			state.emit(pf)
		}
	}
	evtMgr.Schedule(state, nil, feedbackSweepTick, vrtime.SecondsToTime(state.agent.FeedbackCycle))
	return nil
}
