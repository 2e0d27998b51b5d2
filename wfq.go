package bwm

// wfq.go implements WfqQueueDisc and WfqFlow, the virtual-time
// weighted fair queueing scheduler offered as an alternative link-share
// discipline. Grounded on wfq-queue-disc.{h,cc} in
// src/bandwidth-manager/model/.

import "golang.org/x/exp/slices"

// FlowStatus is a WfqFlow's activity state.
type FlowStatus int

const (
	Inactive FlowStatus = iota
	Active
)

// WfqFlow is one flow's virtual-time bookkeeping: the finish
// timestamp of its head and tail packets, its activity status, and
// its weight.
type WfqFlow struct {
	FlowID uint32
	Weight float64

	headTs float64
	tailTs float64
	status FlowStatus
	queue  []Packet
}

// NewWfqFlow constructs an inactive, empty flow with the given default
// weight (used whenever a packet carries no FlowWeightTag override).
func NewWfqFlow(flowID uint32, weight float64) *WfqFlow {
	if weight <= 0 {
		weight = 1
	}
	return &WfqFlow{FlowID: flowID, Weight: weight}
}

// Len reports how many packets are queued for this flow.
func (f *WfqFlow) Len() int { return len(f.queue) }

// weightFor resolves the effective weight for a packet: its
// FlowWeightTag override if present, else the flow's default.
func (f *WfqFlow) weightFor(p Packet) float64 {
	if p.Tags.WeightTag != nil && p.Tags.WeightTag.Weight > 0 {
		return p.Tags.WeightTag.Weight
	}
	return f.Weight
}

// WfqQueueDisc is the virtual-time scheduler: a global virtual clock
// V, a set of WfqFlow children, and an active set used to pick the
// minimum-headTs flow at dequeue time.
type WfqQueueDisc struct {
	MaxSize int

	v      float64 // global virtual clock
	flows  map[uint32]*WfqFlow
	active []uint32 // flow ids currently ACTIVE
	size   int
}

// NewWfqQueueDisc constructs an empty WFQ scheduler.
func NewWfqQueueDisc(maxSize int) *WfqQueueDisc {
	return &WfqQueueDisc{
		MaxSize: maxSize,
		flows:   make(map[uint32]*WfqFlow),
	}
}

// flowFor returns the flow for flowID, creating one at the given
// default weight on first reference.
func (q *WfqQueueDisc) flowFor(flowID uint32, defaultWeight float64) *WfqFlow {
	f, ok := q.flows[flowID]
	if !ok {
		f = NewWfqFlow(flowID, defaultWeight)
		q.flows[flowID] = f
	}
	return f
}

// Enqueue implements the WFQ enqueue rule: activating an inactive flow
// sets headTs = V + s/w; in all cases tailTs advances by
// s/w. Enforces the overall size bound by evicting from the flow with
// the largest tailTs (the "longest virtual tail" drop) until within
// limit.
func (q *WfqQueueDisc) Enqueue(p Packet, defaultWeight float64) bool {
	f := q.flowFor(p.Tags.Flow.FlowID, defaultWeight)
	w := f.weightFor(p)
	s := float64(p.Size)

	if f.status == Inactive {
		f.status = Active
		f.headTs = q.v + s/w
		f.tailTs = q.v
		q.active = append(q.active, f.FlowID)
	}
	f.tailTs += s / w
	f.queue = append(f.queue, p)
	q.size++

	for q.size > q.MaxSize {
		q.dropLongestTail()
	}
	return true
}

// dropLongestTail evicts the head (oldest, FIFO-front) packet of
// whichever active flow currently has the largest tailTs, and shrinks
// that flow's tailTs by the dropped packet's own s/w so it stays
// consistent with the now-shorter queue.
func (q *WfqQueueDisc) dropLongestTail() {
	if len(q.active) == 0 {
		return
	}
	var worst *WfqFlow
	for _, fid := range q.active {
		f := q.flows[fid]
		if len(f.queue) == 0 {
			continue
		}
		if worst == nil || f.tailTs > worst.tailTs {
			worst = f
		}
	}
	if worst == nil || len(worst.queue) == 0 {
		return
	}
	dropped := worst.queue[0]
	worst.queue = worst.queue[1:]
	q.size--
	worst.tailTs -= float64(dropped.Size) / worst.weightFor(dropped)
	if len(worst.queue) == 0 {
		worst.status = Inactive
		worst.headTs = 0
		worst.tailTs = 0
		q.removeFromActive(worst.FlowID)
	}
}

// removeFromActive drops flowID from the active-set slice.
func (q *WfqQueueDisc) removeFromActive(flowID uint32) {
	idx := slices.Index(q.active, flowID)
	if idx < 0 {
		return
	}
	q.active = slices.Delete(q.active, idx, idx+1)
}

// Dequeue implements the WFQ dequeue rule: among active flows, select
// the minimum headTs, advance that flow's headTs for
// its new head packet (or deactivate it if now empty), and advance
// the global virtual clock to at least that headTs.
func (q *WfqQueueDisc) Dequeue() (Packet, bool) {
	fid, minHeadTs, ok := q.peekMin()
	if !ok {
		return Packet{}, false
	}

	f := q.flows[fid]
	p := f.queue[0]
	f.queue = f.queue[1:]
	q.size--

	if q.v < minHeadTs {
		q.v = minHeadTs
	}

	if len(f.queue) == 0 {
		f.status = Inactive
		f.headTs = 0
		f.tailTs = 0
		q.removeFromActive(fid)
	} else {
		w := f.weightFor(f.queue[0])
		f.headTs += float64(f.queue[0].Size) / w
	}

	return p, true
}

// Peek implements the same selection as Dequeue, without mutating V or
// any flow's timestamps.
func (q *WfqQueueDisc) Peek() (Packet, bool) {
	fid, _, ok := q.peekMin()
	if !ok {
		return Packet{}, false
	}
	return q.flows[fid].queue[0], true
}

// peekMin scans the active set for the flow with the smallest headTs.
func (q *WfqQueueDisc) peekMin() (flowID uint32, headTs float64, ok bool) {
	best := -1.0
	found := false
	var bestID uint32
	for _, fid := range q.active {
		f := q.flows[fid]
		if len(f.queue) == 0 {
			continue
		}
		if !found || f.headTs < best {
			found = true
			best = f.headTs
			bestID = fid
		}
	}
	return bestID, best, found
}
