package bwm

// queuedisc.go implements BwmQueueDisc and BwmQueueDiscClass, the
// multi-class rate-limiting queue discipline. Grounded on
// bwm-queue-disc.{h,cc} in src/bandwidth-manager/model/, with the
// flow-hash classifier following the same "Hash32(text key)" shape
// bwm-queue-disc.cc uses for AssignFlowId. The hash itself is delegated
// to github.com/cespare/xxhash/v2, a fast non-cryptographic hash well
// suited to this kind of flow/key hashing, rather than a hand-rolled
// 32-bit mix.

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/iti/rngstream"
)

// DefaultFlows is the default number of classification slots.
const DefaultFlows = 1031

// DefaultClassSlot is the sentinel slot index for the default
// unlimited class, used for packets missing a tenant/flow tag.
const DefaultClassSlot = -1

// Packet is the minimal shape the queue discs operate on: a byte size
// and its out-of-band tags. The core never interprets payload bytes.
type Packet struct {
	Tags    PacketTags
	Size    int64 // bytes
	Payload []byte
}

// AssignFlowID hashes a flow's classification key into a 32-bit flow
// id, the same (tenantId, src, dst) -> id mapping bwm-queue-disc.cc's
// AssignFlowId computes as Hash32(concat as text).
func AssignFlowID(tenantID uint32, src, dst string) uint32 {
	key := fmt.Sprintf("%d|%s|%s", tenantID, src, dst)
	return uint32(xxhash.Sum64String(key))
}

// BwmQueueDiscClass is one classification slot: a traced rate, a
// traced byte-usage counter, the flow/trace identity it was assigned
// to, and the token-bucket child that actually shapes the class's
// packets.
type BwmQueueDiscClass struct {
	FlowID  uint32
	TraceID uint32
	tb      *TokenBucket
	queue   []Packet
	usage   int64 // bytes since last ResetUsage
}

// NewBwmQueueDiscClass constructs a class at the given initial rate.
func NewBwmQueueDiscClass(flowID, traceID uint32, rate float64, burst, mtu int64) *BwmQueueDiscClass {
	return &BwmQueueDiscClass{
		FlowID:  flowID,
		TraceID: traceID,
		tb:      NewTokenBucket(rate, burst, mtu),
	}
}

// SetRate updates the class's token-bucket rate. Invalid rates (<=0)
// are refused and the previous rate kept, logging the refusal.
func (c *BwmQueueDiscClass) SetRate(rate float64) {
	if !c.tb.SetRate(rate) {
		fmt.Printf("bwm: queue disc class %d refused invalid rate %v, keeping %v\n", c.FlowID, rate, c.tb.Rate())
	}
}

// Rate returns the class's current traced rate.
func (c *BwmQueueDiscClass) Rate() float64 { return c.tb.Rate() }

// Usage returns the byte count accumulated since the last ResetUsage.
func (c *BwmQueueDiscClass) Usage() int64 { return c.usage }

// AddUsage accounts size bytes against the class's usage counter.
func (c *BwmQueueDiscClass) AddUsage(size int64) { c.usage += size }

// ResetUsage zeroes the usage counter, called once per reportCycle by
// the owning LocalAgent.
func (c *BwmQueueDiscClass) ResetUsage() { c.usage = 0 }

// Len reports the number of packets currently queued in the class.
func (c *BwmQueueDiscClass) Len() int { return len(c.queue) }

// enqueue appends a packet to the class's own FIFO; the outer queue
// disc's MaxSize bound is enforced by the caller, not here.
func (c *BwmQueueDiscClass) enqueue(p Packet) {
	c.queue = append(c.queue, p)
}

// dequeue pops the head packet if the token bucket currently admits
// it, shaping the class to its configured rate. Usage is accounted
// here, on dequeue, rather than on enqueue.
func (c *BwmQueueDiscClass) dequeue(nowSec float64) (Packet, bool) {
	if len(c.queue) == 0 {
		return Packet{}, false
	}
	head := c.queue[0]
	if !c.tb.Allow(nowSec, head.Size) {
		return Packet{}, false
	}
	c.queue = c.queue[1:]
	c.AddUsage(head.Size)
	return head, true
}

// dropHead removes and returns the head packet of the class's queue,
// used by the overflow-drop policy.
func (c *BwmQueueDiscClass) dropHead() (Packet, bool) {
	if len(c.queue) == 0 {
		return Packet{}, false
	}
	p := c.queue[0]
	c.queue = c.queue[1:]
	return p, true
}

// BwmQueueDisc is the multi-class rate-limiting queue discipline:
// hashed flow classification into a fixed number of slots,
// deficit-free round-robin dequeue, and random overflow drop.
type BwmQueueDisc struct {
	Flows      int
	MaxSize    int
	DeviceRate float64 // bits/s, used to size the default unlimited class

	slots      map[int]*BwmQueueDiscClass // classification slot -> class
	order      []int                      // slot insertion order, for round robin
	flowToSlot map[uint32]int

	nextFlow int // m_nextFlow, index into order
	size     int // total packets across all classes

	rng *rngstream.RngStream
}

// NewBwmQueueDisc constructs an empty queue disc with the default
// unlimited class pre-seeded at 50% of deviceRate.
func NewBwmQueueDisc(deviceRate float64, maxSize int, rngName string) *BwmQueueDisc {
	qd := &BwmQueueDisc{
		Flows:      DefaultFlows,
		MaxSize:    maxSize,
		DeviceRate: deviceRate,
		slots:      make(map[int]*BwmQueueDiscClass),
		flowToSlot: make(map[uint32]int),
		rng:        rngstream.New(rngName),
	}
	defaultClass := NewBwmQueueDiscClass(0, 0, deviceRate*0.5, defaultBurstBytes(deviceRate), defaultMTU)
	qd.slots[DefaultClassSlot] = defaultClass
	qd.order = append(qd.order, DefaultClassSlot)
	return qd
}

const defaultMTU = 1500

// defaultBurstBytes sizes a class's token-bucket burst at roughly
// 10ms worth of its rate, a conventional TBF sizing.
func defaultBurstBytes(rate float64) int64 {
	return int64(rate*0.010/8) + int64(defaultMTU)
}

// slotFor resolves the classification slot for a (tenantId, flowId)
// pair, creating a new class at the given rate if this is the first
// packet seen for that flow id. Linear probing resolves collisions
// where a slot is occupied by a different flow id.
func (qd *BwmQueueDisc) slotFor(flowID, traceID uint32, initialRate float64) *BwmQueueDiscClass {
	if slot, ok := qd.flowToSlot[flowID]; ok {
		return qd.slots[slot]
	}

	n := qd.Flows
	if n <= 0 {
		n = DefaultFlows
	}
	start := int(flowID % uint32(n))
	slot := start
	for {
		existing, occupied := qd.slots[slot]
		if !occupied {
			break
		}
		if existing.FlowID == flowID {
			qd.flowToSlot[flowID] = slot
			return existing
		}
		slot = (slot + 1) % n
		if slot == start {
			// Every slot occupied by a different flow; this should not
			// happen with Flows sized well above expected flow counts,
			// but fall back to co-locating on the starting slot's
			// class rather than losing the packet's classification.
			qd.flowToSlot[flowID] = start
			return qd.slots[start]
		}
	}

	class := NewBwmQueueDiscClass(flowID, traceID, initialRate, defaultBurstBytes(initialRate), defaultMTU)
	qd.slots[slot] = class
	qd.flowToSlot[flowID] = slot
	qd.order = append(qd.order, slot)
	return class
}

// Classify resolves the destination class for a packet: if both the
// TenantIDTag and FlowIDTag are absent, route to the default unlimited
// class; otherwise hash (tenantId, src, dst) into a flow id and
// resolve its slot. initialRate is used only if this is the first
// packet of a previously unseen flow id.
func (qd *BwmQueueDisc) Classify(tags PacketTags, src, dst string, initialRate float64) *BwmQueueDiscClass {
	if tags.Tenant.TenantID == 0 && tags.Flow.FlowID == 0 {
		return qd.slots[DefaultClassSlot]
	}
	flowID := AssignFlowID(tags.Tenant.TenantID, src, dst)
	return qd.slotFor(flowID, tags.Flow.FlowID, initialRate)
}

// ClassByFlowID returns the class already assigned to flowID, if any.
func (qd *BwmQueueDisc) ClassByFlowID(flowID uint32) (*BwmQueueDiscClass, bool) {
	slot, ok := qd.flowToSlot[flowID]
	if !ok {
		return nil, false
	}
	return qd.slots[slot], true
}

// Enqueue admits a packet into its classified class; only a queue
// already over MaxSize before this packet rejects it outright, so an
// admission that pushes size past MaxSize always goes through and
// triggers overflowDrop instead.
func (qd *BwmQueueDisc) Enqueue(p Packet, class *BwmQueueDiscClass) bool {
	if qd.size > qd.MaxSize {
		return false
	}
	class.enqueue(p)
	qd.size++
	if qd.size > qd.MaxSize {
		qd.overflowDrop()
	}
	return true
}

// overflowDrop implements the overflow-drop policy: while over
// MaxSize, uniformly-randomly pick a non-empty class and drop from its
// head.
func (qd *BwmQueueDisc) overflowDrop() {
	for qd.size > qd.MaxSize {
		nonEmpty := make([]int, 0, len(qd.order))
		for _, slot := range qd.order {
			if qd.slots[slot].Len() > 0 {
				nonEmpty = append(nonEmpty, slot)
			}
		}
		if len(nonEmpty) == 0 {
			return
		}
		victimSlot := nonEmpty[int(qd.rng.RandU01()*float64(len(nonEmpty)))%len(nonEmpty)]
		victim := qd.slots[victimSlot]
		if _, ok := victim.dropHead(); ok {
			qd.size--
		}
	}
}

// Dequeue implements deficit-free round robin: starting from
// m_nextFlow, try each class in turn, advancing the
// pointer regardless of success so an empty class never stalls the
// rotation, stopping after one full revolution.
func (qd *BwmQueueDisc) Dequeue(nowSec float64) (Packet, bool) {
	n := len(qd.order)
	if n == 0 {
		return Packet{}, false
	}

	for i := 0; i < n; i++ {
		idx := qd.nextFlow % n
		slot := qd.order[idx]
		qd.nextFlow = (qd.nextFlow + 1) % n

		class := qd.slots[slot]
		if p, ok := class.dequeue(nowSec); ok {
			qd.size--
			return p, true
		}
	}
	return Packet{}, false
}
