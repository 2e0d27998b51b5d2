package bwm

import "testing"

func newTestAgent(t *testing.T, deviceRate float64) (*Coordinator, *LocalAgent) {
	t.Helper()
	c := NewCoordinator(0.1, 10)
	tenantBF := NewBandwidthFunction()
	tenantBF.AddVertex(1000, deviceRate)
	tenant := NewTenant(1, tenantBF)
	c.RegisterTenant(tenant)

	qd := NewBwmQueueDisc(deviceRate, 100, "test-agent-rng")
	agent := NewLocalAgent(c, qd, deviceRate)
	c.RegisterHost(agent)
	return c, agent
}

func TestLocalAgentAdmitFlowFirstFlowGetsTenthOfDeviceRate(t *testing.T) {
	_, agent := newTestAgent(t, 1e7)
	_, class, ok := agent.AdmitFlow(1, 1, 1, 10, 20)
	if !ok {
		t.Fatal("AdmitFlow failed for a registered tenant")
	}
	if class.Rate() != 1e6 {
		t.Errorf("first flow's initial rate = %v, want deviceRateLimit/10 (1e6)", class.Rate())
	}
}

func TestLocalAgentAdmitFlowIsIdempotent(t *testing.T) {
	_, agent := newTestAgent(t, 1e7)
	uf1, class1, ok := agent.AdmitFlow(1, 5, 5, 10, 20)
	if !ok {
		t.Fatal("first AdmitFlow failed")
	}
	uf2, class2, ok := agent.AdmitFlow(1, 5, 5, 10, 20)
	if !ok {
		t.Fatal("second AdmitFlow for the same flow id failed")
	}
	if uf1 != uf2 || class1 != class2 {
		t.Error("re-admitting an already-admitted flow id should return the same flow and class")
	}
}

func TestLocalAgentAdmitFlowExpropriatesFromSiblings(t *testing.T) {
	_, agent := newTestAgent(t, 1e7)
	_, classA, _ := agent.AdmitFlow(1, 1, 1, 10, 20)
	rateBefore := classA.Rate()

	_, classB, ok := agent.AdmitFlow(1, 2, 2, 10, 30)
	if !ok {
		t.Fatal("second AdmitFlow failed")
	}

	if classA.Rate() >= rateBefore {
		t.Errorf("sibling flow's rate should shrink on a new admission: before=%v after=%v", rateBefore, classA.Rate())
	}
	if classB.Rate() <= 0 {
		t.Errorf("new flow's initial rate should be positive, got %v", classB.Rate())
	}
}

func TestLocalAgentAdmitFlowSiblingFloor(t *testing.T) {
	_, agent := newTestAgent(t, 1e6)
	floor := agent.DeviceRateLimit / 100

	// Repeatedly admit new siblings so existing ones get expropriated
	// down toward the floor and never below it.
	for i := uint32(1); i <= 10; i++ {
		agent.AdmitFlow(1, i, i, 10, 20+i)
	}
	for _, lf := range agent.flows {
		if lf.Class.Rate() < floor-1e-6 {
			t.Errorf("flow %d rate %v fell below the expropriation floor %v", lf.Flow.FlowID, lf.Class.Rate(), floor)
		}
	}
}

func TestLocalAgentTuneMovesTowardTarget(t *testing.T) {
	_, agent := newTestAgent(t, 1e7)
	uf, class, _ := agent.AdmitFlow(1, 1, 1, 10, 20)
	uf.SetAllocatedFS(100)
	agent.SetNewTargetStatus(1000)

	agent.tune()

	if uf.AllocatedFS() <= 100 {
		t.Errorf("AllocatedFS after tune = %v, want it to move toward the target (1000)", uf.AllocatedFS())
	}
	if uf.AllocatedFS() >= 1000 {
		t.Errorf("AllocatedFS after one tune tick = %v, should not overshoot straight to the target", uf.AllocatedFS())
	}
	if class.Rate() <= 0 {
		t.Errorf("class rate after tune = %v, want positive", class.Rate())
	}
}

func TestLocalAgentTuneEnforcesDeviceCeiling(t *testing.T) {
	c, agent := newTestAgent(t, 1e6) // small device rate, easy to exceed
	// Replace the default tenant with one whose BF tops out at twice the
	// device rate, so the transformed BFs are not capped at the ceiling.
	tenantBF := NewBandwidthFunction()
	tenantBF.AddVertex(1000, 2e6)
	c.RegisterTenant(NewTenant(1, tenantBF))
	uf1, class1, _ := agent.AdmitFlow(1, 1, 1, 10, 20)
	uf2, class2, _ := agent.AdmitFlow(1, 2, 2, 10, 30)

	// Past the tenant BF's last finite vertex (fs=1000), each flow's
	// transformed BF saturates at its full configured bandwidth (1e6);
	// with two siblings that sums to twice the device ceiling.
	uf1.SetAllocatedFS(1001)
	uf2.SetAllocatedFS(1001)
	agent.SetNewTargetStatus(1001)

	agent.tune()

	total := class1.Rate() + class2.Rate()
	if total > agent.DeviceRateLimit+1e-3 {
		t.Errorf("total rate after tune = %v, exceeds device ceiling %v", total, agent.DeviceRateLimit)
	}
	if !agent.rateLimited {
		t.Error("rateLimited should be set once total demand exceeds the device ceiling")
	}
}

func TestLocalAgentTuneNoFlowsIsNoOp(t *testing.T) {
	_, agent := newTestAgent(t, 1e7)
	agent.SetNewTargetStatus(500)
	agent.tune() // must not panic with an empty flow table
}

func TestLocalAgentTuneFloorsOldFairShareBeforeUpdating(t *testing.T) {
	_, agent := newTestAgent(t, 1e7)
	uf, _, _ := agent.AdmitFlow(1, 1, 1, 10, 20)
	uf.SetAllocatedFS(0)
	agent.SetNewTargetStatus(5)

	agent.tune()

	want := 10.0 + agent.K*(5-10.0)
	if !fpEqual(uf.AllocatedFS(), want) {
		t.Errorf("AllocatedFS after tune = %v, want %v (floor applied to fsOld, not fsNew)", uf.AllocatedFS(), want)
	}
	if fpEqual(uf.AllocatedFS(), minFairShareFloor) {
		t.Error("AllocatedFS snapped exactly to the floor; the floor should apply to fsOld before the update, not clamp the result")
	}
}

func TestLocalAgentTuneCAWCExpansionSkipsIdleFlows(t *testing.T) {
	_, agent := newTestAgent(t, 1e7)
	agent.CAWCEnabled = true
	uf, _, _ := agent.AdmitFlow(1, 1, 1, 10, 20)
	uf.SetAllocatedFS(50)
	uf.SetUsage(0)
	agent.SetNewTargetStatus(1000)

	agent.tune()

	if uf.AllocatedFS() != 50 {
		t.Errorf("AllocatedFS after tune on an idle flow = %v, want unchanged 50", uf.AllocatedFS())
	}
}

func TestLocalAgentTuneCAWCExpansionGrowsActiveFlows(t *testing.T) {
	_, agent := newTestAgent(t, 1e7)
	agent.CAWCEnabled = true
	uf, _, _ := agent.AdmitFlow(1, 1, 1, 10, 20)
	uf.SetAllocatedFS(50)
	uf.SetUsage(1000)
	agent.SetNewTargetStatus(1000)

	agent.tune()

	expansion := 1 + 1/(agent.ReportCycle/agent.TuneCycle)
	want := 50 * expansion
	if !fpEqual(uf.AllocatedFS(), want) {
		t.Errorf("AllocatedFS after tune on an active flow under CAWC = %v, want %v", uf.AllocatedFS(), want)
	}
}

func TestLocalAgentTuneCAWCDefersToControllerAboveCongestionThreshold(t *testing.T) {
	_, agent := newTestAgent(t, 1e7)
	agent.CAWCEnabled = true
	uf, _, _ := agent.AdmitFlow(1, 1, 1, 10, 20)
	uf.SetAllocatedFS(50)
	uf.SetUsage(1000)
	uf.SetCongestionFactor(CongestionThreshold)
	agent.SetNewTargetStatus(1000)

	agent.tune()

	want := 50 + agent.K*(1000-50)
	if !fpEqual(uf.AllocatedFS(), want) {
		t.Errorf("AllocatedFS after tune at/above the congestion threshold = %v, want %v (controller in charge, not expansion)", uf.AllocatedFS(), want)
	}
}

func TestLocalAgentReportComputesUsageFromByteCounter(t *testing.T) {
	_, agent := newTestAgent(t, 1e7)
	uf, class, _ := agent.AdmitFlow(1, 1, 1, 10, 20)
	class.AddUsage(625) // 625 bytes = 5000 bits

	usages := agent.report()
	if len(usages) != 1 {
		t.Fatalf("report() returned %d entries, want 1", len(usages))
	}
	want := 5000.0 / agent.ReportCycle
	if !fpEqual(usages[0].UsageBPS, want) {
		t.Errorf("reported UsageBPS = %v, want %v", usages[0].UsageBPS, want)
	}
	if class.Usage() != 0 {
		t.Error("report() should reset the class's byte counter")
	}
	if uf.Usage() != want {
		t.Errorf("report() should publish usage onto the UnitFlow, got %v want %v", uf.Usage(), want)
	}
}

func TestLocalAgentReceivePacketOrdinaryDatagramUpdatesScoreboard(t *testing.T) {
	_, agent := newTestAgent(t, 1e7)
	agent.AdmitFlow(1, 1, 1, 10, 20)

	pkt := Packet{Tags: PacketTags{Flow: FlowIDTag{FlowID: 1}}, Size: 1000}
	pf := agent.ReceivePacket(pkt, 10, 0)
	if pf != nil {
		t.Fatal("a single ordinary packet should not reach FeedbackThreshold")
	}
}

func TestLocalAgentReceivePacketCAWCFeedbackIngestsDirectly(t *testing.T) {
	_, agent := newTestAgent(t, 1e7)
	uf, _, _ := agent.AdmitFlow(1, 1, 1, 10, 20)

	payload := EncodeCAWCFeedback(0.42)
	pkt := Packet{
		Tags: PacketTags{
			Flow:     FlowIDTag{FlowID: 1},
			Protocol: CAWCProtocol,
			TOS:      CAWCTOS,
		},
		Payload: payload,
	}
	pf := agent.ReceivePacket(pkt, 10, 0)
	if pf != nil {
		t.Fatal("a CAWC feedback datagram should not itself trigger a PendingFeedback")
	}
	if !fpEqual(uf.CongestionFactor(), 0.42) {
		t.Errorf("CongestionFactor after ingesting CAWC feedback = %v, want 0.42", uf.CongestionFactor())
	}
}

func TestLocalAgentReceivePacketEmitsFeedbackAtThreshold(t *testing.T) {
	_, agent := newTestAgent(t, 1e7)
	agent.AdmitFlow(1, 1, 1, 10, 20)

	var last *PendingFeedback
	for i := 0; i < FeedbackThreshold; i++ {
		pkt := Packet{Tags: PacketTags{Flow: FlowIDTag{FlowID: 1}}, Size: 1000}
		last = agent.ReceivePacket(pkt, 10, float64(i))
	}
	if last == nil {
		t.Fatal("expected a PendingFeedback once SPC reaches FeedbackThreshold")
	}
	if last.FlowID != 1 || last.SrcHost != 10 {
		t.Errorf("PendingFeedback = %+v, want flow 1 from host 10", last)
	}
}
