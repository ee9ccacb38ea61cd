package bar

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Zopieux/i3blocks/internal/i3bar"
	"github.com/Zopieux/i3blocks/internal/logging"
	"github.com/Zopieux/i3blocks/internal/model"
)

// Exit code contract for block commands: anything else is a failure.
const (
	exitOK     = 0
	exitUrgent = 33
)

// Block is one configured block and, when it has a command, the process
// running on its behalf. Pipe ends are kept as raw descriptors: the
// scheduler polls them directly and every read here is non-blocking.
type Block struct {
	model.BlockSpec
	log *logging.Logger

	state   model.BlockState
	pid     int
	lastRun time.Time

	stdoutFd int
	stderrFd int
	stdinFd  int

	outBuf []byte
	errBuf []byte

	outDone bool
	errDone bool
	// streamsDone marks a persistent block whose pipes are gone for good.
	// The watcher's descriptor set is fixed, so a respawn could never be
	// read again and is refused.
	streamsDone bool

	display i3bar.Block
}

func newBlock(spec model.BlockSpec, log *logging.Logger) *Block {
	b := &Block{
		BlockSpec: spec,
		log:       log,
		state:     model.BlockIdle,
		stdoutFd:  -1,
		stderrFd:  -1,
		stdinFd:   -1,
	}
	b.display = b.baseView()
	return b
}

func (b *Block) label() string {
	if b.Name == "" {
		return b.Command
	}
	if b.Instance == "" {
		return b.Name
	}
	return b.Name + "/" + b.Instance
}

func (b *Block) setState(to model.BlockState) {
	if err := model.ValidateBlockTransition(b.state, to); err != nil {
		b.log.Errorf("block %s: %v", b.label(), err)
	}
	b.state = to
}

// spawn starts the block's command. A block without a command, an already
// running block and a persistent block whose pipes are gone are all no-ops.
func (b *Block) spawn(click *i3bar.ClickEvent) error {
	if b.Command == "" {
		return nil
	}
	if b.state == model.BlockRunning {
		b.log.Debugf("block %s: still running pid=%d, skipping spawn", b.label(), b.pid)
		return nil
	}
	if b.state == model.BlockFaulted || (b.Interval.Persistent() && b.streamsDone) {
		b.log.Debugf("block %s: output no longer watched, skipping spawn", b.label())
		return nil
	}

	var outFds, errFds, inFds [2]int
	if err := unix.Pipe2(outFds[:], unix.O_CLOEXEC); err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := unix.Pipe2(errFds[:], unix.O_CLOEXEC); err != nil {
		closeFds(outFds[:])
		return fmt.Errorf("stderr pipe: %w", err)
	}

	cmd := exec.Command("/bin/sh", "-c", b.Command)
	cmd.Env = b.commandEnv(click)

	// The wrappers exist only to hand the child its ends; the parent keeps
	// the raw read sides.
	outW := os.NewFile(uintptr(outFds[1]), "stdout pipe")
	errW := os.NewFile(uintptr(errFds[1]), "stderr pipe")
	cmd.Stdout = outW
	cmd.Stderr = errW

	var inR *os.File
	persist := b.Interval.Persistent()
	if persist {
		if err := unix.Pipe2(inFds[:], unix.O_CLOEXEC); err != nil {
			outW.Close()
			errW.Close()
			unix.Close(outFds[0])
			unix.Close(errFds[0])
			return fmt.Errorf("stdin pipe: %w", err)
		}
		inR = os.NewFile(uintptr(inFds[0]), "stdin pipe")
		cmd.Stdin = inR

		// Streamed reads must never stall the loop.
		unix.SetNonblock(outFds[0], true)
		unix.SetNonblock(errFds[0], true)
	}

	err := cmd.Start()
	outW.Close()
	errW.Close()
	if inR != nil {
		inR.Close()
	}
	if err != nil {
		unix.Close(outFds[0])
		unix.Close(errFds[0])
		if persist {
			unix.Close(inFds[1])
		}
		return fmt.Errorf("start %q: %w", b.Command, err)
	}

	b.pid = cmd.Process.Pid
	b.stdoutFd = outFds[0]
	b.stderrFd = errFds[0]
	if persist {
		b.stdinFd = inFds[1]
	}
	b.outBuf = nil
	b.errBuf = nil
	b.outDone = false
	b.errDone = false
	b.lastRun = time.Now()
	b.setState(model.BlockRunning)
	b.log.Debugf("block %s: spawned pid=%d interval=%s", b.label(), b.pid, b.Interval)
	return nil
}

// commandEnv mirrors the reference environment contract: the BLOCK_*
// variables are always present, empty unless a click caused the run.
func (b *Block) commandEnv(click *i3bar.ClickEvent) []string {
	var button, x, y, relX, relY, width, height, mods string
	if click != nil {
		button = strconv.Itoa(click.Button)
		x = strconv.Itoa(click.X)
		y = strconv.Itoa(click.Y)
		relX = strconv.Itoa(click.RelativeX)
		relY = strconv.Itoa(click.RelativeY)
		width = strconv.Itoa(click.Width)
		height = strconv.Itoa(click.Height)
		mods = strings.Join(click.Modifiers, ",")
	}
	return append(os.Environ(),
		"BLOCK_NAME="+b.Name,
		"BLOCK_INSTANCE="+b.Instance,
		"BLOCK_BUTTON="+button,
		"BLOCK_X="+x,
		"BLOCK_Y="+y,
		"BLOCK_RELATIVE_X="+relX,
		"BLOCK_RELATIVE_Y="+relY,
		"BLOCK_WIDTH="+width,
		"BLOCK_HEIGHT="+height,
		"BLOCK_MODIFIERS="+mods,
	)
}

// reap consumes the wait status of the block's exited process and, for
// one-shot blocks, turns its output into the new display state.
func (b *Block) reap(ws unix.WaitStatus) {
	pid := b.pid
	b.pid = 0

	code := exitOK
	switch {
	case ws.Exited():
		code = ws.ExitStatus()
	case ws.Signaled():
		code = 128 + int(ws.Signal())
	}
	b.log.Debugf("block %s: pid=%d exited code=%d", b.label(), pid, code)

	if b.stdinFd >= 0 {
		unix.Close(b.stdinFd)
		b.stdinFd = -1
	}

	if b.state == model.BlockFaulted {
		// Process bookkeeping only: the pipes already broke and the block
		// is out of the loop for good.
		return
	}
	b.setState(model.BlockExited)

	if b.Interval.Persistent() {
		// Pick up whatever is buffered now; the watcher delivers the
		// trailing EOF and the descriptors are closed there.
		b.consume(drainPipe(b.stdoutFd), false)
		b.consume(drainPipe(b.stderrFd), true)
		b.setState(model.BlockIdle)
		return
	}

	out := drainPipe(b.stdoutFd)
	errOut := drainPipe(b.stderrFd)
	b.closePipes()
	b.applyExit(out, errOut, code)
	b.setState(model.BlockIdle)
}

func (b *Block) closePipes() {
	if b.stdoutFd >= 0 {
		unix.Close(b.stdoutFd)
		b.stdoutFd = -1
	}
	if b.stderrFd >= 0 {
		unix.Close(b.stderrFd)
		b.stderrFd = -1
	}
	if b.stdinFd >= 0 {
		unix.Close(b.stdinFd)
		b.stdinFd = -1
	}
}

// writeStdin forwards raw bytes to a persistent block's standard input.
func (b *Block) writeStdin(data []byte) {
	if b.stdinFd < 0 {
		b.log.Debugf("block %s: no stdin pipe for click", b.label())
		return
	}
	if _, err := unix.Write(b.stdinFd, data); err != nil {
		b.log.Errorf("block %s: write stdin: %v", b.label(), err)
		unix.Close(b.stdinFd)
		b.stdinFd = -1
	}
}

// readStream drains one non-blocking stream. It reports whether the display
// changed and whether the stream reached its end.
func (b *Block) readStream(fd int, stderrStream bool) (updated, closed bool) {
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			if b.consume(buf[:n], stderrStream) {
				updated = true
			}
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return updated, false
		}
		if err != nil {
			b.log.Errorf("block %s: read: %v", b.label(), err)
		}
		return updated, true
	}
}

// drainPipe reads whatever a dead child left in the pipe. The descriptor is
// switched to non-blocking first so a grandchild still holding the write
// end cannot stall the loop.
func drainPipe(fd int) []byte {
	if fd < 0 {
		return nil
	}
	unix.SetNonblock(fd, true)
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			out = append(out, buf[:n]...)
			continue
		}
		if err == unix.EINTR {
			continue
		}
		return out
	}
}

func closeFds(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}
