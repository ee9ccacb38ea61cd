package sched

import (
	"fmt"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
)

// enableClickInput switches the descriptor to signal-driven reads: the
// process is registered as its I/O owner, so readable data raises SIGIO,
// and reads never block. An interactive terminal is left untouched; clicks
// only flow when the bar pipes events into us. Reports whether click input
// is active.
func enableClickInput(fd int) (bool, error) {
	if isatty.IsTerminal(uintptr(fd)) {
		return false, nil
	}

	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETOWN, unix.Getpid()); err != nil {
		return false, fmt.Errorf("set click input owner: %w", err)
	}
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return false, fmt.Errorf("click input flags: %w", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_ASYNC|unix.O_NONBLOCK); err != nil {
		return false, fmt.Errorf("enable click input signaling: %w", err)
	}
	return true, nil
}
