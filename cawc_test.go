package bwm

import "testing"

func TestScoreboardRecordSampleAccumulates(t *testing.T) {
	sb := NewScoreboard()
	for i := 0; i < FeedbackThreshold-1; i++ {
		emit, _ := sb.RecordSample(1, 99, 1000, false, float64(i))
		if emit {
			t.Fatalf("sample %d emitted feedback before reaching FeedbackThreshold", i)
		}
	}
}

func TestScoreboardRecordSampleEmitsAtThreshold(t *testing.T) {
	sb := NewScoreboard()
	var emitted bool
	var factor float64
	for i := 0; i < FeedbackThreshold; i++ {
		ecn := i%2 == 0 // half the bytes marked congestion-experienced
		emitted, factor = sb.RecordSample(1, 99, 1000, ecn, float64(i))
	}
	if !emitted {
		t.Fatal("expected feedback emission once SPC reaches FeedbackThreshold")
	}
	if factor <= 0 || factor >= 1 {
		t.Errorf("congestion factor = %v, want a value strictly between 0 and 1 for a 50/50 ECN split", factor)
	}
}

func TestScoreboardRecordSampleResetsAfterEmission(t *testing.T) {
	sb := NewScoreboard()
	for i := 0; i < FeedbackThreshold; i++ {
		sb.RecordSample(1, 99, 1000, true, float64(i))
	}
	e := sb.entryFor(1)
	if e.SPC != 0 || e.CEB != 0 || e.NMB != 0 {
		t.Errorf("scoreboard entry not reset after emission: %+v", e)
	}
}

func TestScoreboardCongestionFactorDegenerateZero(t *testing.T) {
	e := &ScoreboardEntry{}
	if got := e.congestionFactor(); got != 0 {
		t.Errorf("congestionFactor() on an empty entry = %v, want 0", got)
	}
}

func TestScoreboardCongestionFactorAllCongested(t *testing.T) {
	e := &ScoreboardEntry{CEB: 1000, NMB: 0}
	if got := e.congestionFactor(); got != 1 {
		t.Errorf("congestionFactor() with CEB only = %v, want 1", got)
	}
}

func TestCAWCFeedbackRoundTrip(t *testing.T) {
	want := 0.375
	encoded := EncodeCAWCFeedback(want)
	got, err := DecodeCAWCFeedback(encoded)
	if err != nil {
		t.Fatalf("DecodeCAWCFeedback: %v", err)
	}
	if !fpEqual(got, want) {
		t.Errorf("round-tripped factor = %v, want %v", got, want)
	}
}

func TestDecodeCAWCFeedbackRejectsShortPayload(t *testing.T) {
	if _, err := DecodeCAWCFeedback([]byte{1, 2}); err == nil {
		t.Fatal("expected an error decoding a too-short payload")
	}
}

func TestScoreboardSweepEmitsForSlowFlow(t *testing.T) {
	sb := NewScoreboard()
	// A flow that has only sampled a few packets (above 20% of
	// FeedbackThreshold but nowhere near the threshold itself) should
	// still get one feedback packet out of a sweep.
	slowCount := int(0.2*FeedbackThreshold) + 1
	for i := 0; i < slowCount; i++ {
		sb.RecordSample(5, 77, 500, false, 0)
	}

	pending := sb.Sweep(1.0, 100.0) // well within feedbackCycle, not stale
	if len(pending) != 1 {
		t.Fatalf("Sweep returned %d pending entries, want 1", len(pending))
	}
	if pending[0].FlowID != 5 || pending[0].SrcHost != 77 {
		t.Errorf("Sweep pending entry = %+v, want flow 5 from host 77", pending[0])
	}
}

func TestScoreboardSweepSlowFlowPreservesCEBAndNMB(t *testing.T) {
	sb := NewScoreboard()
	slowCount := int(0.2*FeedbackThreshold) + 1
	for i := 0; i < slowCount; i++ {
		sb.RecordSample(5, 77, 500, i%2 == 0, 0) // mix of congestion-experienced and normal bytes
	}
	e := sb.entryFor(5)
	cebBefore, nmbBefore := e.CEB, e.NMB
	if cebBefore == 0 || nmbBefore == 0 {
		t.Fatal("test setup: expected both CEB and NMB to be nonzero before the sweep")
	}

	pending := sb.Sweep(1.0, 100.0) // well within feedbackCycle, not stale
	if len(pending) != 1 {
		t.Fatalf("Sweep returned %d pending entries, want 1", len(pending))
	}
	if e.SPC != 0 {
		t.Errorf("SPC after a slow-only sweep = %d, want 0", e.SPC)
	}
	if e.CEB != cebBefore || e.NMB != nmbBefore {
		t.Errorf("CEB/NMB after a slow-only sweep = %d/%d, want unchanged %d/%d (only SPC resets when slow but not stale)", e.CEB, e.NMB, cebBefore, nmbBefore)
	}
}

func TestScoreboardSweepResetsStaleEntries(t *testing.T) {
	sb := NewScoreboard()
	sb.RecordSample(9, 1, 100, false, 0) // one sample, below the 20% slow threshold

	pending := sb.Sweep(1000.0, 1.0) // far past feedbackCycle: stale
	if len(pending) != 0 {
		t.Fatalf("Sweep returned %d pending entries for a single-sample flow, want 0", len(pending))
	}
	e := sb.entryFor(9)
	if e.SPC != 0 || e.CEB != 0 || e.NMB != 0 {
		t.Errorf("a stale entry should have SPC, CEB, and NMB all reset, got %+v", e)
	}
}
