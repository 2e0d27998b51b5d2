package bwm

// tokenbucket.go implements the two-bucket token-bucket filter each
// BwmQueueDiscClass wraps internally. Grounded on the embedded TBF
// referenced from
// bwm-queue-disc.cc, which reuses ns-3's traffic-control TBF queue
// disc (src/traffic-control/model/tbf-queue-disc.{h,cc}): a steady
// token bucket refilling at rate, and a second peak bucket refilling
// at peakRate = 2*rate. Both are capped at the same burst size and a
// packet must fit in both, so the faster-filling peak bucket never
// admits less than the steady one. Time is expressed in simulated seconds, the same
// unit vrtime.Time.Seconds() returns, so the bucket never touches the
// wall clock.

// TokenBucket is a two-bucket rate shaper: a steady bucket refilling
// at rate bits/s and a peak bucket refilling at peakRate = 2*rate,
// both capped at burst bytes. A packet may be sent only if both
// buckets hold enough tokens.
type TokenBucket struct {
	rate     float64 // bits/s
	peakRate float64 // bits/s, always 2*rate
	burst    int64   // bytes
	mtu      int64   // bytes

	tokens     float64 // bytes currently in the steady bucket
	peakTokens float64 // bytes currently in the peak bucket
	lastSec    float64
	primed     bool
}

// NewTokenBucket constructs a token bucket at the given rate, with
// peakRate fixed at 2*rate and both buckets sized to hold burst bytes.
// burst and mtu are exposed as constructor parameters rather than
// hard-coded, since they follow the embedded two-bucket TBF
// definition's own configuration surface.
func NewTokenBucket(rate float64, burst, mtu int64) *TokenBucket {
	return &TokenBucket{
		rate:       rate,
		peakRate:   2 * rate,
		burst:      burst,
		mtu:        mtu,
		tokens:     float64(burst),
		peakTokens: float64(burst),
	}
}

// SetRate updates the steady rate and recomputes peakRate = 2*rate.
// Invalid rates (<=0) are refused, logging nothing here since the
// caller (BwmQueueDiscClass.SetRate) owns the log-and-refuse policy.
func (tb *TokenBucket) SetRate(rate float64) bool {
	if rate <= 0 {
		return false
	}
	tb.rate = rate
	tb.peakRate = 2 * rate
	return true
}

// Rate returns the current steady rate in bits/s.
func (tb *TokenBucket) Rate() float64 { return tb.rate }

// refill tops up both buckets for the simulated time elapsed since the
// last refill, capping each at burst bytes.
func (tb *TokenBucket) refill(nowSec float64) {
	if !tb.primed {
		tb.lastSec = nowSec
		tb.primed = true
		return
	}
	elapsed := nowSec - tb.lastSec
	if elapsed <= 0 {
		return
	}
	tb.tokens += tb.rate * elapsed / 8
	tb.peakTokens += tb.peakRate * elapsed / 8
	if tb.tokens > float64(tb.burst) {
		tb.tokens = float64(tb.burst)
	}
	if tb.peakTokens > float64(tb.burst) {
		tb.peakTokens = float64(tb.burst)
	}
	tb.lastSec = nowSec
}

// Allow reports whether a packet of sizeBytes may be sent at nowSec
// (simulated seconds), consuming tokens from both buckets if so.
func (tb *TokenBucket) Allow(nowSec float64, sizeBytes int64) bool {
	tb.refill(nowSec)
	size := float64(sizeBytes)
	if tb.tokens < size || tb.peakTokens < size {
		return false
	}
	tb.tokens -= size
	tb.peakTokens -= size
	return true
}
