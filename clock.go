package bwm

// clock.go provides the small seam through which LocalAgent's periodic
// tasks are started: StartTuner, StartReporter and StartFeedbackSweeper
// take a Clock as an explicit argument rather than reaching for a
// process-wide singleton. Grounded on mrnes's own
// evtm.EventManager usage throughout flow.go/net.go:
// every periodic task there is a function scheduled via
// evtMgr.Schedule(context, data, handler, vrtime.SecondsToTime(delay))
// that re-schedules itself at the end of its own handler body. Clock
// covers only the first scheduling of each task; the tick handlers in
// localagent.go re-arm themselves through the *evtm.EventManager they
// are called with.

import (
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// Clock is the abstract timer service the core consumes: a minimal
// schedule-and-read-current-time seam. *evtm.EventManager does not
// satisfy it directly (its Schedule takes a vrtime.Time and it has no
// Now method); EvtmClock below adapts it. It exists as a named type so
// core code can be built and tested against a fake.
type Clock interface {
	// Schedule arranges for handler to run after delaySeconds of
	// simulated time, passing context and data through unchanged.
	Schedule(context any, data any, handler evtm.EventHandlerFunction, delaySeconds float64) any

	// Now returns the current simulated time in seconds.
	Now() float64
}

// EvtmClock adapts an *evtm.EventManager to the Clock interface.
type EvtmClock struct {
	Mgr *evtm.EventManager
}

// Schedule implements Clock.
func (c EvtmClock) Schedule(context any, data any, handler evtm.EventHandlerFunction, delaySeconds float64) any {
	eventID, _ := c.Mgr.Schedule(context, data, handler, vrtime.SecondsToTime(delaySeconds))
	return eventID
}

// Now implements Clock.
func (c EvtmClock) Now() float64 {
	return c.Mgr.CurrentSeconds()
}
