// Package bar owns the block set: configuration, processes, output and
// display state. The scheduler drives it exclusively through the reaction
// methods, all on the loop goroutine; nothing here is safe for concurrent
// use and nothing may block once a child is running.
package bar

import (
	"io"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Zopieux/i3blocks/internal/i3bar"
	"github.com/Zopieux/i3blocks/internal/logging"
	"github.com/Zopieux/i3blocks/internal/model"
)

type Bar struct {
	blocks []*Block
	log    *logging.Logger

	decoder      i3bar.Decoder
	clickFD      int
	clicksClosed bool
}

func New(cfg model.Config, log *logging.Logger) *Bar {
	blog := log.Named("bar")
	blocks := make([]*Block, 0, len(cfg.Blocks))
	for _, spec := range cfg.Blocks {
		blocks = append(blocks, newBlock(spec, blog))
	}
	return &Bar{blocks: blocks, log: blog}
}

// StatusLine is the bar's current wire representation, in display order.
func (bar *Bar) StatusLine() []i3bar.Block {
	line := make([]i3bar.Block, 0, len(bar.blocks))
	for _, b := range bar.blocks {
		line = append(line, b.View())
	}
	return line
}

// Intervals lists every block's cadence for the shared timer computation.
func (bar *Bar) Intervals() []model.Interval {
	ivs := make([]model.Interval, 0, len(bar.blocks))
	for _, b := range bar.blocks {
		ivs = append(ivs, b.Interval)
	}
	return ivs
}

// PollTimed runs the startup pass: every block with a command is spawned,
// whatever its cadence. One-shot blocks get their single run here.
func (bar *Bar) PollTimed() {
	for _, b := range bar.blocks {
		if err := b.spawn(nil); err != nil {
			bar.log.Errorf("block %s: %v", b.label(), err)
		}
	}
}

// PollOutdated re-runs every repeating block whose period has elapsed. The
// check is absolute, so coalesced or spurious ticks are harmless.
func (bar *Bar) PollOutdated() {
	now := time.Now()
	for _, b := range bar.blocks {
		if !b.Interval.Repeats() {
			continue
		}
		if b.lastRun.IsZero() || now.Sub(b.lastRun) >= time.Duration(b.Interval)*time.Second {
			if err := b.spawn(nil); err != nil {
				bar.log.Errorf("block %s: %v", b.label(), err)
			}
		}
	}
}

// PollExited reaps every child that has exited since the last call.
func (bar *Bar) PollExited() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || pid <= 0 {
			return
		}
		b := bar.byPID(pid)
		if b == nil {
			bar.log.Debugf("reaped unrelated pid=%d", pid)
			continue
		}
		b.reap(ws)
	}
}

// PollClicked drains pending click input and dispatches each event to the
// block it names. A malformed click is logged and dropped, never fatal.
func (bar *Bar) PollClicked() {
	if bar.clicksClosed {
		return
	}
	lines, err := bar.decoder.DrainFD(bar.clickFD)
	if err == io.EOF {
		bar.clicksClosed = true
		bar.log.Debugf("click stream closed")
	} else if err != nil {
		bar.log.Errorf("click input: %v", err)
	}

	for _, line := range lines {
		ev, err := i3bar.DecodeClick(line)
		if err != nil {
			bar.log.Errorf("%v", err)
			continue
		}
		bar.deliverClick(ev, line)
	}
}

func (bar *Bar) deliverClick(ev i3bar.ClickEvent, raw []byte) {
	b := bar.byNameInstance(ev.Name, ev.Instance)
	if b == nil {
		bar.log.Debugf("click for unknown block name=%q instance=%q", ev.Name, ev.Instance)
		return
	}
	if b.Interval.Persistent() && b.state == model.BlockRunning {
		// Long-lived blocks take clicks on their stdin in wire format.
		b.writeStdin(append(raw, '\n'))
		return
	}
	if err := b.spawn(&ev); err != nil {
		bar.log.Errorf("block %s: %v", b.label(), err)
	}
}

// PollSignaled runs every block whose configured signal matches the
// real-time offset.
func (bar *Bar) PollSignaled(offset int) {
	matched := false
	for _, b := range bar.blocks {
		if b.Signal != offset {
			continue
		}
		matched = true
		if err := b.spawn(nil); err != nil {
			bar.log.Errorf("block %s: %v", b.label(), err)
		}
	}
	if !matched {
		bar.log.Debugf("no block configured for signal offset=%d", offset)
	}
}

// ReadStd drains the given ready streams of one persistent block. With
// final set the trailing partial line is flushed, the descriptors are
// closed and the block leaves the watched set for good. Reports whether the
// display changed.
func (bar *Bar) ReadStd(i int, ready model.Streams, final bool) bool {
	if i < 0 || i >= len(bar.blocks) {
		return false
	}
	b := bar.blocks[i]
	updated := false

	if b.stdoutFd >= 0 && (final || ready.Has(model.StreamStdout)) {
		u, closed := b.readStream(b.stdoutFd, false)
		updated = updated || u
		b.outDone = b.outDone || closed
	}
	if b.stderrFd >= 0 && (final || ready.Has(model.StreamStderr)) {
		u, closed := b.readStream(b.stderrFd, true)
		updated = updated || u
		b.errDone = b.errDone || closed
	}

	if final {
		if b.flushPartial() {
			updated = true
		}
		b.closePipes()
		b.streamsDone = true
		if b.state == model.BlockRunning {
			b.log.Warnf("block %s: output stream lost while running", b.label())
			b.setState(model.BlockFaulted)
		} else {
			b.log.Debugf("block %s: output streams ended", b.label())
		}
	}
	return updated
}

// PersistentPipes lists the readable descriptors of every running
// persistent block, in block order.
func (bar *Bar) PersistentPipes() []model.BlockPipes {
	var pipes []model.BlockPipes
	for i, b := range bar.blocks {
		if !b.Interval.Persistent() || b.stdoutFd < 0 {
			continue
		}
		pipes = append(pipes, model.BlockPipes{Block: i, Stdout: b.stdoutFd, Stderr: b.stderrFd})
	}
	return pipes
}

// Terminate stops every still-running block process so the final reap
// cannot hang on a command that ignores its closed pipes. SIGCONT follows
// SIGTERM in case the child was stopped.
func (bar *Bar) Terminate() {
	for _, b := range bar.blocks {
		if b.pid <= 0 {
			continue
		}
		bar.log.Debugf("terminating block %s pid=%d", b.label(), b.pid)
		unix.Kill(b.pid, unix.SIGTERM)
		unix.Kill(b.pid, unix.SIGCONT)
	}
}

func (bar *Bar) byPID(pid int) *Block {
	for _, b := range bar.blocks {
		if b.pid == pid {
			return b
		}
	}
	return nil
}

func (bar *Bar) byNameInstance(name, instance string) *Block {
	for _, b := range bar.blocks {
		if b.Name == name && b.Instance == instance {
			return b
		}
	}
	return nil
}
