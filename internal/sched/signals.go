package sched

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/Zopieux/i3blocks/internal/logging"
	"github.com/Zopieux/i3blocks/internal/model"
)

// rtSigMin matches the C library's SIGRTMIN on Linux. The kernel range
// starts at 32 but the first two slots are reserved for threading
// internals, so usable real-time signals run from 35 (offset 1) through
// 64 (offset model.MaxSignalOffset).
const rtSigMin = 34

// signalBuffer bounds the pending-signal queue. When the buffer is full
// further notifications of an already-pending signal are dropped, which
// coalesces bursts the same way the kernel coalesces standard signals;
// every reaction re-checks actual state, so a dropped duplicate is
// harmless.
const signalBuffer = 64

// SignalSource turns asynchronous signal delivery into one readable,
// ordered channel. While it is installed none of the watched signals can
// interrupt the process; they are only observable by reading C.
type SignalSource struct {
	ch  chan os.Signal
	log *logging.Logger
}

func NewSignalSource(log *logging.Logger) *SignalSource {
	s := &SignalSource{
		ch:  make(chan os.Signal, signalBuffer),
		log: log,
	}
	signal.Notify(s.ch, watchedSignals()...)
	return s
}

func watchedSignals() []os.Signal {
	sigs := []os.Signal{
		// Control signals.
		unix.SIGTERM,
		unix.SIGINT,
		// Timer signal.
		unix.SIGALRM,
		// Block updates (forks).
		unix.SIGCHLD,
		// Deprecated signals.
		unix.SIGUSR1,
		unix.SIGUSR2,
		// Click signal.
		unix.SIGIO,
	}
	// Real-time signals for blocks.
	for off := 1; off <= model.MaxSignalOffset; off++ {
		sigs = append(sigs, unix.Signal(rtSigMin+off))
	}
	return sigs
}

// C yields one record per pending signal, in delivery order.
func (s *SignalSource) C() <-chan os.Signal {
	return s.ch
}

// Classify maps a delivered signal onto its loop reaction.
func (s *SignalSource) Classify(sig os.Signal) Event {
	switch sig {
	case unix.SIGTERM, unix.SIGINT:
		return Event{Kind: EventTerminate, Signal: sig}
	case unix.SIGALRM:
		return Event{Kind: EventTimerTick, Signal: sig}
	case unix.SIGCHLD:
		return Event{Kind: EventChildExit, Signal: sig}
	case unix.SIGIO:
		return Event{Kind: EventClick, Signal: sig}
	case unix.SIGUSR1, unix.SIGUSR2:
		return Event{Kind: EventDeprecated, Signal: sig}
	}
	if u, ok := sig.(unix.Signal); ok {
		if off := int(u) - rtSigMin; off >= 1 && off <= model.MaxSignalOffset {
			return Event{Kind: EventRealTime, Signal: sig, Offset: off}
		}
	}
	return Event{Kind: EventUnknown, Signal: sig}
}

// Teardown stops notification and restores default delivery, so blocking
// calls made afterwards are interruptible again.
func (s *SignalSource) Teardown() {
	signal.Stop(s.ch)
}
