package model

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Interval is a block's scheduling cadence in whole seconds. Positive values
// repeat on the shared timer; the non-positive sentinels never do.
type Interval int

const (
	// IntervalUnset is the zero value: the block runs once at startup and
	// is never re-scheduled by the timer. Global defaults may override it.
	IntervalUnset Interval = 0
	// IntervalPersist marks a long-lived block whose output is streamed.
	IntervalPersist Interval = -1
	// IntervalOnce is the explicit "once" keyword. Unlike IntervalUnset it
	// survives a global interval default.
	IntervalOnce Interval = -2
)

// Repeats reports whether the block is re-run by the shared timer.
func (i Interval) Repeats() bool {
	return i > 0
}

// Persistent reports whether the block runs as a long-lived process.
func (i Interval) Persistent() bool {
	return i == IntervalPersist
}

func (i Interval) String() string {
	switch {
	case i == IntervalPersist:
		return "persist"
	case i <= 0:
		return "once"
	default:
		return strconv.Itoa(int(i)) + "s"
	}
}

func (i *Interval) UnmarshalYAML(value *yaml.Node) error {
	switch value.Value {
	case "once":
		*i = IntervalOnce
		return nil
	case "persist":
		*i = IntervalPersist
		return nil
	}
	n, err := strconv.Atoi(value.Value)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid interval %q: want seconds, \"once\" or \"persist\"", value.Value)
	}
	*i = Interval(n)
	return nil
}
