// Command bwmsim is the scenario driver: it reads the four external
// file formats, assembles a coordinator, one local agent per host, and
// a queue disc per host link, runs the simulation clock, and writes
// the eight required trace streams. It does not port ns-3's IP/TCP
// stack; outbound
// packets come from a minimal per-flow sender emulation that grows a
// congestion window once per sampling tick and pushes it through the
// host's queue disc as MTU-sized packets, just enough to exercise the
// control loop end to end and to give the rx/cwnd/rtt trace streams
// something real to report.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/iti/bwm"
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

func main() {
	scenarioPath := flag.String("scenario", "", "YAML scenario file (alternative to the individual path flags below)")
	bwmConfigPath := flag.String("bwmconfig", "", "BwM configuration file")
	tenantConfigPath := flag.String("tenants", "", "tenant configuration file")
	topologyPath := flag.String("topology", "", "topology file")
	flowsPath := flag.String("flows", "", "flow file")
	duration := flag.Float64("duration", 1.0, "simulated duration, seconds")
	traceDir := flag.String("tracedir", ".", "directory to write trace CSVs into")
	alpha := flag.Float64("alpha", 0.1, "coordinator progress factor")
	minFS := flag.Float64("minfs", 10, "coordinator minimum fair share")
	enCAWC := flag.Bool("encawc", false, "enable CAWC opportunistic expansion on every local agent")
	flag.Parse()

	if *scenarioPath != "" {
		sf, err := readScenarioFile(*scenarioPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bwmsim: %v\n", err)
			os.Exit(1)
		}
		*bwmConfigPath, *tenantConfigPath = sf.BwmConfig, sf.TenantConfig
		*topologyPath, *flowsPath = sf.Topology, sf.Flows
		if sf.Duration > 0 {
			*duration = sf.Duration
		}
		if sf.TraceDir != "" {
			*traceDir = sf.TraceDir
		}
		*alpha, *minFS = sf.Alpha, sf.MinFairShare
		*enCAWC = sf.EnCAWC
	}

	if *bwmConfigPath == "" || *tenantConfigPath == "" || *topologyPath == "" || *flowsPath == "" {
		fmt.Fprintln(os.Stderr, "bwmsim: -bwmconfig, -tenants, -topology, and -flows are all required (directly or via -scenario)")
		os.Exit(1)
	}

	sim, err := buildScenario(*bwmConfigPath, *tenantConfigPath, *topologyPath, *flowsPath, *alpha, *minFS, *traceDir, *enCAWC)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bwmsim: %v\n", err)
		os.Exit(1)
	}

	sim.run(*duration)

	if err := sim.trace.WriteAll(*traceDir); err != nil {
		fmt.Fprintf(os.Stderr, "bwmsim: writing traces: %v\n", err)
		os.Exit(1)
	}
}

// scenario bundles everything buildScenario assembles, so run and the
// sampler can reach it without a pile of loose package-level globals.
type scenario struct {
	coordinator *bwm.Coordinator
	agents      map[int]*bwm.LocalAgent // host id -> agent
	hostGraph   *bwm.HostGraph
	trace       *bwm.TraceManager
	senders     []*senderEmulation
}

// buildScenario reads all four configuration files and wires up a
// Coordinator, one LocalAgent and BwmQueueDisc per
// host, and one senderEmulation per flow. enCAWC toggles opportunistic
// expansion on every agent, mirroring the enCAWC command-line switch
// scratch/bwm-test.cc exposes for its own run.
func buildScenario(bwmConfigPath, tenantConfigPath, topologyPath, flowsPath string, alpha, minFS float64, traceDir string, enCAWC bool) (*scenario, error) {
	bwmCfg, err := bwm.ReadBwmConfig(bwmConfigPath)
	if err != nil {
		return nil, err
	}
	tenantCfgs, err := bwm.ReadTenantConfig(tenantConfigPath)
	if err != nil {
		return nil, err
	}
	topo, err := bwm.ReadTopology(topologyPath)
	if err != nil {
		return nil, err
	}
	flows, err := bwm.ReadFlowFile(flowsPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(traceDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating trace directory: %w", err)
	}

	coordinator := bwm.NewCoordinator(alpha, minFS)
	for _, tc := range tenantCfgs {
		t := bwm.NewTenant(tc.TenantID, tc.BF)
		for host, weight := range tc.HostWeights {
			t.SetHostWeight(host, weight)
		}
		coordinator.RegisterTenant(t)
	}

	hostGraph := bwm.BuildHostGraph(topo)

	deviceRate := make(map[int]float64)
	for _, link := range topo.Links {
		if link.DataRate > deviceRate[link.Src] {
			deviceRate[link.Src] = link.DataRate
		}
		if link.DataRate > deviceRate[link.Dst] {
			deviceRate[link.Dst] = link.DataRate
		}
	}
	qdiscSize := make(map[int]int)
	for _, link := range topo.Links {
		if link.QdiscSize > qdiscSize[link.Src] {
			qdiscSize[link.Src] = link.QdiscSize
		}
		if link.QdiscSize > qdiscSize[link.Dst] {
			qdiscSize[link.Dst] = link.QdiscSize
		}
	}

	agents := make(map[int]*bwm.LocalAgent)
	for _, hostID := range bwmCfg.Hosts {
		rate := deviceRate[hostID]
		if rate <= 0 {
			rate = 1e9
		}
		size := qdiscSize[hostID]
		if size <= 0 {
			size = 1000
		}
		qdisc := bwm.NewBwmQueueDisc(rate, size, fmt.Sprintf("host-%d", hostID))
		agent := bwm.NewLocalAgent(coordinator, qdisc, rate)
		agent.CAWCEnabled = enCAWC
		coordinator.RegisterHost(agent)
		agents[hostID] = agent
	}

	trace := bwm.NewTraceManager(true)

	var senders []*senderEmulation
	for _, fr := range flows {
		srcAgent, ok := agents[fr.Src]
		if !ok {
			fmt.Fprintf(os.Stderr, "bwmsim: flow %d references unknown host %d, skipping\n", fr.FlowID, fr.Src)
			continue
		}
		uf, class, ok := srcAgent.AdmitFlow(fr.TenantID, fr.FlowID, fr.FlowID, uint32(fr.Src), uint32(fr.Dst))
		if !ok {
			continue
		}

		rttBase := 0.0
		if route, err := hostGraph.ShortestPath(fr.Src, fr.Dst); err == nil {
			rttBase = pathDelay(topo, route)
		}

		senders = append(senders, &senderEmulation{
			flow:    uf,
			class:   class,
			disc:    srcAgent.QueueDisc(),
			flowID:  fr.FlowID,
			rttBase: rttBase,
			ops:     bwm.EWTCP{},
			state:   &bwm.CongestionState{Cwnd: 10, SSThresh: 1000, Weight: 1},
			start:   fr.StartTime,
			stop:    fr.StopTime,
		})
	}

	return &scenario{
		coordinator: coordinator,
		agents:      agents,
		hostGraph:   hostGraph,
		trace:       trace,
		senders:     senders,
	}, nil
}

// pathDelay sums the link delay of every hop on route.
func pathDelay(topo *bwm.Topology, route []int) float64 {
	delayBetween := make(map[[2]int]float64)
	for _, link := range topo.Links {
		delayBetween[[2]int{link.Src, link.Dst}] = link.LinkDelay
		delayBetween[[2]int{link.Dst, link.Src}] = link.LinkDelay
	}
	var total float64
	for i := 1; i < len(route); i++ {
		total += delayBetween[[2]int{route[i-1], route[i]}]
	}
	return total
}

// senderMTU is the packet size synthetic traffic is chopped into
// before it is pushed through a class's Enqueue/Dequeue path.
const senderMTU = 1500

// senderEmulation is a minimal stand-in for a real IP/TCP sender: it
// advances a congestion window via a CongestionOps variant and pushes
// that window's worth of bytes, as MTU-sized packets, through the
// host's queue disc each tick, without implementing real packet
// transport.
type senderEmulation struct {
	flow   *bwm.UnitFlow
	class  *bwm.BwmQueueDiscClass
	disc   *bwm.BwmQueueDisc
	flowID uint32

	rttBase float64
	ops     bwm.CongestionOps
	state   *bwm.CongestionState

	start, stop float64
}

// enqueue grows the sender's congestion window by one tick's worth of
// acks, scaled by the class's currently enforced rate, and pushes that
// many MTU-sized packets into the class via the host's queue disc.
// Admission and shaping are left entirely to Enqueue/Dequeue: this
// never reads the flow's allocated rate directly.
func (s *senderEmulation) enqueue(now float64) {
	if now < s.start || now > s.stop {
		return
	}
	segAcked := s.class.Rate() / 8 * sampleInterval
	s.ops.IncreaseWindow(s.state, segAcked)

	for sent := 0.0; sent < s.state.Cwnd; sent += senderMTU {
		size := int64(senderMTU)
		if remaining := s.state.Cwnd - sent; remaining < senderMTU {
			size = int64(remaining)
		}
		if size <= 0 {
			break
		}
		s.disc.Enqueue(bwm.Packet{
			Tags: bwm.PacketTags{Flow: bwm.FlowIDTag{FlowID: s.flowID}},
			Size: size,
		}, s.class)
	}
}

// recordTrace writes this tick's rx/cwnd/rtt and flow-level trace
// events, after the queue disc has had a chance to drain whatever was
// enqueued this tick.
func (s *senderEmulation) recordTrace(now float64, trace *bwm.TraceManager) {
	if now < s.start || now > s.stop {
		return
	}
	queueDelay := 0.0
	if s.class.Rate() > 0 {
		queueDelay = float64(s.class.Len()) * senderMTU * 8 / s.class.Rate()
	}
	rtt := s.rttBase*2 + queueDelay

	id := fmt.Sprintf("%d", s.flowID)
	trace.AddTrace(bwm.TraceRx, now, id, float64(s.class.Usage()))
	trace.AddTrace(bwm.TraceCwnd, now, id, s.state.Cwnd)
	trace.AddTrace(bwm.TraceRTT, now, id, rtt)
	trace.AddTrace(bwm.TraceFlowAllocatedFairShare, now, id, s.flow.AllocatedFS())
	trace.AddTrace(bwm.TraceFlowUsage, now, id, s.flow.Usage())
}

// drainQueueDisc dequeues every packet disc currently admits, so a
// tick's worth of enqueued traffic is shaped and accounted before the
// next tick's trace is recorded.
func drainQueueDisc(disc *bwm.BwmQueueDisc, nowSec float64) {
	for {
		if _, ok := disc.Dequeue(nowSec); !ok {
			return
		}
	}
}

// deliverFeedback routes a CAWC feedback packet produced by one host's
// scoreboard sweep back to the flow's source host's ReceivePacket,
// mirroring the receive-side-to-sender feedback path
// bwm-local-agent.cc's SweepScoreboard drives.
func (sim *scenario) deliverFeedback(pf bwm.PendingFeedback, now float64) {
	srcAgent, ok := sim.agents[int(pf.SrcHost)]
	if !ok {
		return
	}
	payload := bwm.EncodeCAWCFeedback(pf.Factor)
	pkt := bwm.Packet{
		Tags: bwm.PacketTags{
			Flow:     bwm.FlowIDTag{FlowID: pf.FlowID},
			Protocol: bwm.CAWCProtocol,
			TOS:      bwm.CAWCTOS,
		},
		Size:    int64(len(payload)),
		Payload: payload,
	}
	srcAgent.ReceivePacket(pkt, pf.SrcHost, now)
}

// run drives the evtm event loop: it starts every agent's Tuner,
// Reporter, and feedback sweeper, starts a sampler for trace
// collection, and runs the clock for duration seconds.
func (sim *scenario) run(duration float64) {
	evtMgr := evtm.New()

	clock := bwm.EvtmClock{Mgr: evtMgr}
	for _, agent := range sim.agents {
		agent.StartTuner(clock)
		agent.StartReporter(clock)
		agent.StartFeedbackSweeper(clock, func(pf bwm.PendingFeedback) {
			sim.deliverFeedback(pf, clock.Now())
		})
	}

	startSampler(evtMgr, sim)

	evtMgr.Run(duration)
}

const sampleInterval = 0.005

func startSampler(evtMgr *evtm.EventManager, sim *scenario) {
	evtMgr.Schedule(sim, nil, samplerTick, vrtime.SecondsToTime(sampleInterval))
}

func samplerTick(evtMgr *evtm.EventManager, context any, data any) any {
	sim := context.(*scenario)
	now := evtMgr.CurrentSeconds()

	for _, s := range sim.senders {
		s.enqueue(now)
	}
	for _, agent := range sim.agents {
		drainQueueDisc(agent.QueueDisc(), now)
	}
	for _, s := range sim.senders {
		s.recordTrace(now, sim.trace)
	}
	for _, t := range sim.coordinator.Tenants() {
		id := fmt.Sprintf("%d", t.TenantID)
		sim.trace.AddTrace(bwm.TraceTenantActualFairShare, now, id, t.ActualFairShare())
	}
	for _, agent := range sim.agents {
		for _, lf := range agent.Flows() {
			id := fmt.Sprintf("%d", lf.Class.FlowID)
			sim.trace.AddTrace(bwm.TraceQdiscClassRate, now, id, lf.Class.Rate())
			sim.trace.AddTrace(bwm.TraceQdiscClassUsage, now, id, float64(lf.Class.Usage()))
		}
	}

	evtMgr.Schedule(sim, nil, samplerTick, vrtime.SecondsToTime(sampleInterval))
	return nil
}
