package bwm

// cawc.go implements the congestion-aware work-conserving feedback
// side-channel: a receive-side scoreboard that samples ECN marks and
// emits a compact congestion-factor packet back to the sender.
// Grounded on cawc-tag.{h,cc} and the receive-side scoreboard handling
// in bwm-local-agent.cc's ReceivePacket/SweepScoreboard.

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FeedbackThreshold is N_fb, the sampled-packet count that triggers an
// immediate feedback emission.
const FeedbackThreshold = 50

// CongestionThreshold is theta, the congestion factor at or above which
// the tuner falls back to coordinator control even with CAWC enabled.
const CongestionThreshold = 0.2

// ScoreboardEntry tallies the receive-side counters CAWC uses to
// derive a congestion factor for one flow: SPC (sampled packet
// count), CEB (congestion-experienced bytes), NMB (normal bytes), LMT
// (last-modified time, seconds), and SRC (the source host this
// feedback should be sent back to).
type ScoreboardEntry struct {
	SPC int
	CEB int64
	NMB int64
	LMT float64
	SRC uint32
}

// congestionFactor computes CEB/(CEB+NMB), the value a feedback packet
// carries. Degenerate 0/0 (no bytes sampled at all) reports a factor
// of 0 rather than dividing by zero.
func (e *ScoreboardEntry) congestionFactor() float64 {
	total := e.CEB + e.NMB
	if total == 0 {
		return 0
	}
	return float64(e.CEB) / float64(total)
}

// reset clears the sampling counters after a feedback packet has been
// emitted, leaving LMT and SRC untouched so a stale-entry sweep can
// still find the flow's source.
func (e *ScoreboardEntry) reset() {
	e.SPC = 0
	e.CEB = 0
	e.NMB = 0
}

// EncodeCAWCFeedback renders a congestion factor as the little-endian
// float32 payload the feedback wire format uses.
func EncodeCAWCFeedback(factor float64) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(factor)))
	return buf
}

// DecodeCAWCFeedback parses a CAWC feedback payload into a congestion
// factor in [0,1].
func DecodeCAWCFeedback(b []byte) (float64, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("bwm: short CAWC feedback payload (%d bytes)", len(b))
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
}

// Scoreboard is the per-host map of flowId -> ScoreboardEntry a
// LocalAgent maintains to drive CAWC feedback. It is not safe for
// concurrent use; callers rely on the single-threaded event-loop
// discipline the rest of the agent follows.
type Scoreboard struct {
	entries map[uint32]*ScoreboardEntry
}

// NewScoreboard returns an empty scoreboard.
func NewScoreboard() *Scoreboard {
	return &Scoreboard{entries: make(map[uint32]*ScoreboardEntry)}
}

// entryFor returns the scoreboard entry for flowId, creating one on
// first reference.
func (s *Scoreboard) entryFor(flowID uint32) *ScoreboardEntry {
	e, ok := s.entries[flowID]
	if !ok {
		e = &ScoreboardEntry{}
		s.entries[flowID] = e
	}
	return e
}

// RecordSample updates the scoreboard entry for flowID on receipt of
// one ordinary (non-CAWC-feedback) datagram: ECN congestion-experienced
// bytes accrue to CEB, everything else to NMB, SPC counts the sample,
// and LMT is stamped with now. It reports
// whether SPC has reached FeedbackThreshold, i.e. whether a feedback
// packet should be emitted immediately.
func (s *Scoreboard) RecordSample(flowID, srcHost uint32, size int, ecnCE bool, now float64) (emit bool, factor float64) {
	e := s.entryFor(flowID)
	e.SRC = srcHost
	if ecnCE {
		e.CEB += int64(size)
	} else {
		e.NMB += int64(size)
	}
	e.SPC++
	e.LMT = now

	if e.SPC >= FeedbackThreshold {
		factor = e.congestionFactor()
		e.reset()
		return true, factor
	}
	return false, 0
}

// Sweep implements the feedbackCycle periodic scan: entries older than
// feedbackCycle have their sampling counters cleared (so a stalled
// flow doesn't accumulate a stale congestion factor forever), and
// entries with SPC > 0.2*N_fb emit one last feedback packet so slow
// flows are not starved of signal. The returned slice lists (flowID,
// srcHost, factor) for every entry that should emit feedback as a
// result of this sweep. The scoreboard's own entries are mutated in
// place, not iterated by value.
func (s *Scoreboard) Sweep(now, feedbackCycle float64) []PendingFeedback {
	var pending []PendingFeedback

	for flowID, e := range s.entries {
		stale := now-e.LMT > feedbackCycle
		slow := float64(e.SPC) > 0.2*FeedbackThreshold

		if slow {
			pending = append(pending, PendingFeedback{
				FlowID:  flowID,
				SrcHost: e.SRC,
				Factor:  e.congestionFactor(),
			})
		}

		switch {
		case stale:
			e.reset()
		case slow:
			// Slow-but-active flows only have SPC reset after emitting;
			// CEB/NMB keep accumulating across cycles so the congestion
			// factor reflects a longer window than one feedbackCycle.
			e.SPC = 0
		}
	}

	return pending
}

// PendingFeedback is one feedback packet the sweeper has decided to
// emit on behalf of a flow.
type PendingFeedback struct {
	FlowID  uint32
	SrcHost uint32
	Factor  float64
}
