package bwm

import "testing"

func TestWfqQueueDiscServesHigherWeightFlowMoreOften(t *testing.T) {
	q := NewWfqQueueDisc(1000)

	// Flow 1 gets weight 2, flow 2 gets weight 1; feed each the same
	// number of equal-size packets and count how many of the first N
	// dequeues go to each flow. The higher-weight flow should win more.
	for i := 0; i < 20; i++ {
		q.Enqueue(Packet{Tags: PacketTags{Flow: FlowIDTag{FlowID: 1}}, Size: 1000}, 2)
		q.Enqueue(Packet{Tags: PacketTags{Flow: FlowIDTag{FlowID: 2}}, Size: 1000}, 1)
	}

	counts := map[uint32]int{}
	for i := 0; i < 20; i++ {
		p, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue %d found nothing", i)
		}
		counts[p.Tags.Flow.FlowID]++
	}

	if counts[1] <= counts[2] {
		t.Errorf("expected flow 1 (weight 2) to be served more often than flow 2 (weight 1); got %v", counts)
	}
}

func TestWfqQueueDiscFIFOWithinAFlow(t *testing.T) {
	q := NewWfqQueueDisc(1000)
	for i := 0; i < 5; i++ {
		q.Enqueue(Packet{Tags: PacketTags{Flow: FlowIDTag{FlowID: 1}}, Size: 500, Payload: []byte{byte(i)}}, 1)
	}
	for i := 0; i < 5; i++ {
		p, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue %d found nothing", i)
		}
		if len(p.Payload) != 1 || p.Payload[0] != byte(i) {
			t.Errorf("dequeue %d returned payload %v, want [%d] (FIFO order within one flow)", i, p.Payload, i)
		}
	}
}

func TestWfqQueueDiscFlowGoesInactiveWhenDrained(t *testing.T) {
	q := NewWfqQueueDisc(1000)
	q.Enqueue(Packet{Tags: PacketTags{Flow: FlowIDTag{FlowID: 1}}, Size: 500}, 1)
	if _, ok := q.Dequeue(); !ok {
		t.Fatal("expected one packet to dequeue")
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected the queue to be empty after draining the only flow")
	}
	f := q.flows[1]
	if f.status != Inactive {
		t.Error("flow should transition back to Inactive once its queue drains")
	}
}

func TestWfqQueueDiscOverflowDropsLongestTail(t *testing.T) {
	q := NewWfqQueueDisc(2)
	q.Enqueue(Packet{Tags: PacketTags{Flow: FlowIDTag{FlowID: 1}}, Size: 100, Payload: []byte{0}}, 1)
	q.Enqueue(Packet{Tags: PacketTags{Flow: FlowIDTag{FlowID: 1}}, Size: 100, Payload: []byte{1}}, 1)
	// A third enqueue pushes size to 3, over MaxSize 2, triggering one
	// longest-virtual-tail eviction and settling at size 2. tailTs before
	// the drop is 300 (three 100-byte, weight-1 packets from v=0).
	q.Enqueue(Packet{Tags: PacketTags{Flow: FlowIDTag{FlowID: 1}}, Size: 100, Payload: []byte{2}}, 1)

	if q.size != 2 {
		t.Errorf("queue size after overflow = %d, want 2 (MaxSize)", q.size)
	}

	f := q.flows[1]
	if f.tailTs != 200 {
		t.Errorf("tailTs after overflow drop = %v, want 200 (300 minus the dropped packet's own s/w)", f.tailTs)
	}
	if len(f.queue) != 2 || f.queue[0].Payload[0] != 1 || f.queue[1].Payload[0] != 2 {
		t.Errorf("surviving packets after overflow drop = %v, want payloads [1 2] (head/oldest packet dropped, FIFO order kept)", f.queue)
	}
}

func TestWfqQueueDiscPeekDoesNotMutate(t *testing.T) {
	q := NewWfqQueueDisc(1000)
	q.Enqueue(Packet{Tags: PacketTags{Flow: FlowIDTag{FlowID: 1}}, Size: 500}, 1)

	vBefore := q.v
	if _, ok := q.Peek(); !ok {
		t.Fatal("Peek found nothing")
	}
	if q.v != vBefore {
		t.Error("Peek mutated the virtual clock")
	}
	if q.size != 1 {
		t.Error("Peek mutated queue size")
	}
}
