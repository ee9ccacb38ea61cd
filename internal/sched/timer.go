package sched

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// armTimer starts the repeating interval timer. The expiry arrives as
// SIGALRM through the signal source, keeping all wakeups on one ordered
// stream. A zero period arms nothing.
func armTimer(period int) error {
	if period <= 0 {
		return nil
	}
	tv := unix.NsecToTimeval(int64(period) * int64(time.Second))
	itv := unix.Itimerval{Interval: tv, Value: tv}
	if _, err := unix.Setitimer(unix.ItimerReal, itv); err != nil {
		return fmt.Errorf("arm %ds timer: %w", period, err)
	}
	return nil
}

func disarmTimer() {
	unix.Setitimer(unix.ItimerReal, unix.Itimerval{})
}
