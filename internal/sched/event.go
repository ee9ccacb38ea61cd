package sched

import "os"

// EventKind partitions every signal the loop can observe into its reaction.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventTerminate
	EventTimerTick
	EventChildExit
	EventClick
	EventRealTime
	EventDeprecated
)

func (k EventKind) String() string {
	switch k {
	case EventTerminate:
		return "terminate"
	case EventTimerTick:
		return "tick"
	case EventChildExit:
		return "child-exit"
	case EventClick:
		return "click"
	case EventRealTime:
		return "realtime"
	case EventDeprecated:
		return "deprecated"
	default:
		return "unknown"
	}
}

// Event is one classified signal delivery. Offset is only meaningful for
// EventRealTime: the distance above the reserved real-time minimum, which
// is how configuration addresses individual blocks.
type Event struct {
	Kind   EventKind
	Signal os.Signal
	Offset int
}
