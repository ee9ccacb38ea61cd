package sched

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Zopieux/i3blocks/internal/logging"
	"github.com/Zopieux/i3blocks/internal/model"
)

type readCall struct {
	block int
	ready model.Streams
	final bool
}

// fakeRunner records reaction calls. ReadStd drains the test pipes so the
// level-triggered poll does not re-report the same data forever.
type fakeRunner struct {
	timed      int
	outdated   int
	exited     int
	clicked    int
	signaled   []int
	reads      []readCall
	terminated int

	pipes   []model.BlockPipes
	updated bool

	onTimed func()
	onFinal func()
}

func (f *fakeRunner) PollTimed() {
	f.timed++
	if f.onTimed != nil {
		f.onTimed()
	}
}

func (f *fakeRunner) PollOutdated() { f.outdated++ }
func (f *fakeRunner) PollExited()   { f.exited++ }
func (f *fakeRunner) PollClicked()  { f.clicked++ }

func (f *fakeRunner) PollSignaled(offset int) {
	f.signaled = append(f.signaled, offset)
}

func (f *fakeRunner) ReadStd(block int, ready model.Streams, final bool) bool {
	f.reads = append(f.reads, readCall{block: block, ready: ready, final: final})
	for _, p := range f.pipes {
		if p.Block != block {
			continue
		}
		if ready.Has(model.StreamStdout) {
			drainFd(p.Stdout)
		}
		if ready.Has(model.StreamStderr) {
			drainFd(p.Stderr)
		}
	}
	if final && f.onFinal != nil {
		f.onFinal()
	}
	return f.updated
}

func (f *fakeRunner) PersistentPipes() []model.BlockPipes { return f.pipes }
func (f *fakeRunner) Terminate()                          { f.terminated++ }

func testScheduler(f *fakeRunner, render RenderFunc, reload <-chan struct{}) *Scheduler {
	log := logging.New(io.Discard, logging.LevelError)
	if render == nil {
		render = func() error { return nil }
	}
	return &Scheduler{
		runner: f,
		render: render,
		reload: reload,
		log:    log,
		src:    &SignalSource{ch: make(chan os.Signal, signalBuffer), log: log},
	}
}

// runLoop drives a full Run with the given signal feed and returns its
// exit reason. The feed lands in the buffered source channel, so sends
// before the loop starts are processed in order once it does.
func runLoop(t *testing.T, s *Scheduler, drive func(sigs chan<- os.Signal)) ExitReason {
	t.Helper()
	done := make(chan ExitReason, 1)
	go func() { done <- s.Run(context.Background()) }()
	drive(s.src.ch)
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit within 5s")
		return 0
	}
}

func TestScheduler_StartupRendersThenRunsFirstPass(t *testing.T) {
	var order []string
	f := &fakeRunner{onTimed: func() { order = append(order, "first-pass") }}
	s := testScheduler(f, func() error {
		order = append(order, "render")
		return nil
	}, nil)

	r := runLoop(t, s, func(sigs chan<- os.Signal) { sigs <- unix.SIGTERM })
	if r != ExitSignal {
		t.Fatalf("exit reason: got %v, want %v", r, ExitSignal)
	}
	if len(order) < 2 || order[0] != "render" || order[1] != "first-pass" {
		t.Errorf("startup order: got %v", order)
	}
	if f.timed != 1 {
		t.Errorf("first-cycle passes: got %d, want 1", f.timed)
	}
	if f.terminated != 1 {
		t.Errorf("terminate calls: got %d, want 1", f.terminated)
	}
}

func TestScheduler_TickRunsOutdatedWithoutRender(t *testing.T) {
	f := &fakeRunner{}
	renders := 0
	s := testScheduler(f, func() error { renders++; return nil }, nil)

	r := runLoop(t, s, func(sigs chan<- os.Signal) {
		sigs <- unix.SIGALRM
		sigs <- unix.SIGALRM
		sigs <- unix.SIGTERM
	})
	if r != ExitSignal {
		t.Fatalf("exit reason: got %v, want %v", r, ExitSignal)
	}
	if f.outdated != 2 {
		t.Errorf("outdated polls: got %d, want 2", f.outdated)
	}
	if renders != 1 {
		t.Errorf("renders: got %d, want 1 (startup only)", renders)
	}
}

func TestScheduler_ChildExitRendersOncePerEvent(t *testing.T) {
	f := &fakeRunner{}
	renders := 0
	s := testScheduler(f, func() error { renders++; return nil }, nil)

	r := runLoop(t, s, func(sigs chan<- os.Signal) {
		sigs <- unix.SIGCHLD
		sigs <- unix.SIGTERM
	})
	if r != ExitSignal {
		t.Fatalf("exit reason: got %v, want %v", r, ExitSignal)
	}
	if f.exited != 1 {
		t.Errorf("exited polls: got %d, want 1", f.exited)
	}
	if renders != 2 {
		t.Errorf("renders: got %d, want 2 (startup + child exit)", renders)
	}
}

func TestScheduler_ClickSignalPollsClicks(t *testing.T) {
	f := &fakeRunner{}
	s := testScheduler(f, nil, nil)

	r := runLoop(t, s, func(sigs chan<- os.Signal) {
		sigs <- unix.SIGIO
		sigs <- unix.SIGTERM
	})
	if r != ExitSignal {
		t.Fatalf("exit reason: got %v, want %v", r, ExitSignal)
	}
	if f.clicked != 1 {
		t.Errorf("click polls: got %d, want 1", f.clicked)
	}
}

func TestScheduler_RealtimeSignalAddressesOffset(t *testing.T) {
	f := &fakeRunner{}
	s := testScheduler(f, nil, nil)

	r := runLoop(t, s, func(sigs chan<- os.Signal) {
		sigs <- unix.Signal(rtSigMin + 7)
		sigs <- unix.Signal(rtSigMin + 1)
		sigs <- unix.SIGTERM
	})
	if r != ExitSignal {
		t.Fatalf("exit reason: got %v, want %v", r, ExitSignal)
	}
	if len(f.signaled) != 2 || f.signaled[0] != 7 || f.signaled[1] != 1 {
		t.Errorf("signaled offsets: got %v, want [7 1]", f.signaled)
	}
}

func TestScheduler_DeprecatedAndUnknownSignalsChangeNothing(t *testing.T) {
	f := &fakeRunner{}
	renders := 0
	s := testScheduler(f, func() error { renders++; return nil }, nil)

	r := runLoop(t, s, func(sigs chan<- os.Signal) {
		sigs <- unix.SIGUSR1
		sigs <- unix.SIGUSR2
		sigs <- unix.SIGHUP
		sigs <- unix.SIGTERM
	})
	if r != ExitSignal {
		t.Fatalf("exit reason: got %v, want %v", r, ExitSignal)
	}
	if f.outdated != 0 || f.exited != 0 || f.clicked != 0 || len(f.signaled) != 0 {
		t.Errorf("reactions ran: %+v", f)
	}
	if renders != 1 {
		t.Errorf("renders: got %d, want 1 (startup only)", renders)
	}
}

func TestScheduler_InterruptExits(t *testing.T) {
	f := &fakeRunner{}
	s := testScheduler(f, nil, nil)

	r := runLoop(t, s, func(sigs chan<- os.Signal) { sigs <- unix.SIGINT })
	if r != ExitSignal {
		t.Errorf("exit reason: got %v, want %v", r, ExitSignal)
	}
}

func TestScheduler_ReloadExits(t *testing.T) {
	reload := make(chan struct{}, 1)
	reload <- struct{}{}
	f := &fakeRunner{}
	s := testScheduler(f, nil, reload)

	r := runLoop(t, s, func(chan<- os.Signal) {})
	if r != ExitReload {
		t.Errorf("exit reason: got %v, want %v", r, ExitReload)
	}
}

func TestScheduler_SignalsOutrankReload(t *testing.T) {
	reload := make(chan struct{}, 1)
	reload <- struct{}{}
	f := &fakeRunner{}
	s := testScheduler(f, nil, reload)
	s.src.ch <- unix.SIGTERM

	r := runLoop(t, s, func(chan<- os.Signal) {})
	if r != ExitSignal {
		t.Errorf("exit reason: got %v, want %v", r, ExitSignal)
	}
}

func TestScheduler_ContextCancelExits(t *testing.T) {
	f := &fakeRunner{}
	s := testScheduler(f, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan ExitReason, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case r := <-done:
		if r != ExitSignal {
			t.Errorf("exit reason: got %v, want %v", r, ExitSignal)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit within 5s")
	}
}

func TestScheduler_PipeBatchRendersOnce(t *testing.T) {
	pa := newTestPipes(t)
	pb := newTestPipes(t)
	f := &fakeRunner{
		pipes:   []model.BlockPipes{pa.blockPipes(0), pb.blockPipes(1)},
		updated: true,
	}

	renderCh := make(chan struct{}, 16)
	s := testScheduler(f, func() error {
		renderCh <- struct{}{}
		return nil
	}, nil)

	// Both blocks readable before the loop starts: one batch, one render.
	unix.Write(pa.outW, []byte("a\n"))
	unix.Write(pb.outW, []byte("b\n"))

	done := make(chan ExitReason, 1)
	go func() { done <- s.Run(context.Background()) }()

	waitRender(t, renderCh) // startup render
	waitRender(t, renderCh) // the batch's single render
	s.src.ch <- unix.SIGTERM

	select {
	case r := <-done:
		if r != ExitSignal {
			t.Fatalf("exit reason: got %v, want %v", r, ExitSignal)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit within 5s")
	}

	if len(f.reads) != 2 {
		t.Fatalf("reads: got %d, want 2", len(f.reads))
	}
	if f.reads[0].block != 0 || f.reads[1].block != 1 {
		t.Errorf("read order: got %+v", f.reads)
	}
	for _, r := range f.reads {
		if !r.ready.Has(model.StreamStdout) || r.final {
			t.Errorf("read call: got %+v", r)
		}
	}
	if extra := len(renderCh); extra != 0 {
		t.Errorf("extra renders: got %d, want 0", extra)
	}

	for _, fd := range []int{pa.outR, pa.outW, pa.errR, pa.errW, pb.outR, pb.outW, pb.errR, pb.errW} {
		unix.Close(fd)
	}
}

func TestScheduler_BrokenPipeGetsOneTerminalRead(t *testing.T) {
	p := newTestPipes(t)
	f := &fakeRunner{pipes: []model.BlockPipes{p.blockPipes(0)}}

	finals := make(chan struct{}, 4)
	f.onFinal = func() { finals <- struct{}{} }

	renderCh := make(chan struct{}, 16)
	s := testScheduler(f, func() error {
		renderCh <- struct{}{}
		return nil
	}, nil)

	done := make(chan ExitReason, 1)
	go func() { done <- s.Run(context.Background()) }()
	waitRender(t, renderCh)

	// Both write sides vanish; depending on poll timing this arrives as
	// one batch or two, but the terminal read happens exactly once.
	unix.Close(p.outW)
	unix.Close(p.errW)

	select {
	case <-finals:
	case <-time.After(5 * time.Second):
		t.Fatal("no terminal read within 5s")
	}
	s.src.ch <- unix.SIGTERM

	select {
	case r := <-done:
		if r != ExitSignal {
			t.Fatalf("exit reason: got %v, want %v", r, ExitSignal)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit within 5s")
	}

	finalReads := 0
	var seen model.Streams
	for _, r := range f.reads {
		seen |= r.ready
		if r.final {
			finalReads++
			if r != f.reads[len(f.reads)-1] {
				t.Errorf("terminal read not last: %+v", f.reads)
			}
		}
	}
	if finalReads != 1 {
		t.Errorf("terminal reads: got %d, want 1", finalReads)
	}
	if !seen.Has(model.StreamStdout) || !seen.Has(model.StreamStderr) {
		t.Errorf("closed streams never delivered: %+v", f.reads)
	}
	if extra := len(renderCh); extra != 0 {
		t.Errorf("renders for unchanged display: got %d, want 0", extra)
	}

	unix.Close(p.outR)
	unix.Close(p.errR)
}

func TestScheduler_ZeroReadinessIsFatal(t *testing.T) {
	f := &fakeRunner{}
	s := testScheduler(f, nil, nil)

	w := &PipeWatcher{events: make(chan readiness, 1), resume: make(chan []int, 1)}
	w.events <- readiness{err: errNoReadiness}

	if got := s.loop(context.Background(), w); got != ExitError {
		t.Errorf("exit reason: got %v, want %v", got, ExitError)
	}
}

func waitRender(t *testing.T, renderCh <-chan struct{}) {
	t.Helper()
	select {
	case <-renderCh:
	case <-time.After(5 * time.Second):
		t.Fatal("no render within 5s")
	}
}
