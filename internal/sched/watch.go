package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/Zopieux/i3blocks/internal/logging"
	"github.com/Zopieux/i3blocks/internal/model"
)

// errNoReadiness reports an infinite wait returning with nothing ready,
// which should be unreachable and is worth surfacing loudly.
var errNoReadiness = errors.New("poll returned no ready descriptor under infinite timeout")

// readiness is one batch of pipe activity: streams with pending data and
// streams whose write side is gone. A non-nil err is fatal to the loop.
type readiness struct {
	ready  map[int]model.Streams
	closed map[int]model.Streams
	err    error
}

func (r *readiness) add(m *map[int]model.Streams, block int, stream model.Streams) {
	if *m == nil {
		*m = make(map[int]model.Streams)
	}
	(*m)[block] |= stream
}

func (r *readiness) empty() bool {
	return len(r.ready) == 0 && len(r.closed) == 0 && r.err == nil
}

// streamRef locates one watched descriptor.
type streamRef struct {
	block  int
	stream model.Streams
}

// PipeWatcher runs the kernel wait over persistent blocks' output
// descriptors in a helper goroutine and hands readiness batches to the
// loop. The protocol is lockstep: after every batch the watcher blocks
// until the loop acknowledges it, naming the descriptors to drop, so a
// descriptor is never polled while the loop is still reading it. The
// watched set is fixed at construction and only ever shrinks.
type PipeWatcher struct {
	fds  []unix.PollFd
	refs []streamRef
	log  *logging.Logger

	events chan readiness
	resume chan []int

	wakeR    int
	wakeW    int
	wakeOnce sync.Once
}

func NewPipeWatcher(pipes []model.BlockPipes, log *logging.Logger) (*PipeWatcher, error) {
	var wake [2]int
	if err := unix.Pipe2(wake[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("wake pipe: %w", err)
	}

	w := &PipeWatcher{
		log:    log.Named("watch"),
		events: make(chan readiness),
		resume: make(chan []int),
		wakeR:  wake[0],
		wakeW:  wake[1],
	}
	w.fds = append(w.fds, unix.PollFd{Fd: int32(wake[0]), Events: unix.POLLIN})
	for _, p := range pipes {
		w.fds = append(w.fds, unix.PollFd{Fd: int32(p.Stdout), Events: unix.POLLIN})
		w.refs = append(w.refs, streamRef{block: p.Block, stream: model.StreamStdout})
		w.fds = append(w.fds, unix.PollFd{Fd: int32(p.Stderr), Events: unix.POLLIN})
		w.refs = append(w.refs, streamRef{block: p.Block, stream: model.StreamStderr})
	}
	return w, nil
}

// Events yields one readiness batch per kernel wait return.
func (w *PipeWatcher) Events() <-chan readiness {
	return w.events
}

// Resume acknowledges the last batch. The descriptors in drop leave the
// watched set for good.
func (w *PipeWatcher) Resume(drop []int) {
	w.resume <- drop
}

// Wake interrupts the kernel wait so Run can observe cancellation.
func (w *PipeWatcher) Wake() {
	w.wakeOnce.Do(func() { unix.Close(w.wakeW) })
}

// Run polls until woken or until nothing watchable remains. It owns the
// wake pipe's read side.
func (w *PipeWatcher) Run(ctx context.Context) error {
	defer unix.Close(w.wakeR)
	defer w.Wake()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if w.active() == 0 {
			return nil
		}

		n, err := unix.Poll(w.fds, -1)
		if err == unix.EINTR {
			// Expected interruption, e.g. the bar being hidden.
			continue
		}

		var batch readiness
		switch {
		case err != nil:
			// A failed wait does not kill the loop: probe each watched
			// descriptor on its own and fault the broken ones.
			w.log.Errorf("poll: %v", err)
			w.probe(&batch)
		case n == 0:
			batch.err = errNoReadiness
		default:
			if w.fds[0].Revents != 0 {
				return nil
			}
			w.collect(&batch)
		}

		if batch.empty() {
			continue
		}

		select {
		case w.events <- batch:
		case <-ctx.Done():
			return nil
		}
		if batch.err != nil {
			// The loop is exiting, nothing is left to watch.
			return nil
		}

		select {
		case drop := <-w.resume:
			for _, fd := range drop {
				w.drop(fd)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// collect translates one poll return into a batch. Pending data and a
// closed write side can arrive together; both are reported so the loop
// drains before it drops.
func (w *PipeWatcher) collect(batch *readiness) {
	for i := 1; i < len(w.fds); i++ {
		re := w.fds[i].Revents
		if w.fds[i].Fd < 0 || re == 0 {
			continue
		}
		ref := w.refs[i-1]
		if re&unix.POLLIN != 0 {
			batch.add(&batch.ready, ref.block, ref.stream)
		}
		if re&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			batch.add(&batch.closed, ref.block, ref.stream)
		}
	}
}

// probe checks every watched descriptor individually after a failed wait
// and reports the broken ones as closed.
func (w *PipeWatcher) probe(batch *readiness) {
	for i := 1; i < len(w.fds); i++ {
		if w.fds[i].Fd < 0 {
			continue
		}
		one := []unix.PollFd{{Fd: w.fds[i].Fd, Events: unix.POLLIN}}
		_, err := unix.Poll(one, 0)
		for err == unix.EINTR {
			_, err = unix.Poll(one, 0)
		}
		if err != nil || one[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			ref := w.refs[i-1]
			w.log.Errorf("block %d: broken stdout/err", ref.block)
			batch.add(&batch.closed, ref.block, ref.stream)
		}
	}
}

// drop removes one descriptor from the watched set. The kernel skips
// negative entries, the poll analogue of clearing an fd_set slot.
func (w *PipeWatcher) drop(fd int) {
	for i := 1; i < len(w.fds); i++ {
		if int(w.fds[i].Fd) == fd {
			w.fds[i].Fd = -1
			return
		}
	}
}

func (w *PipeWatcher) active() int {
	n := 0
	for i := 1; i < len(w.fds); i++ {
		if w.fds[i].Fd >= 0 {
			n++
		}
	}
	return n
}
