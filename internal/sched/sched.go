// Package sched is the heart of the program: a single-threaded event loop
// multiplexing control signals, a shared interval timer, click input and
// persistent block output into one ordered stream of reactions, rendering
// the bar whenever displayed state changed.
//
// Signal discipline makes the loop race-free: every signal of interest is
// funneled through one channel and observed only by explicit reads, so no
// reaction is ever interrupted by another event.
package sched

import (
	"context"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/Zopieux/i3blocks/internal/logging"
	"github.com/Zopieux/i3blocks/internal/model"
)

// ExitReason tells the caller why Run returned. Failure never crosses this
// boundary as an error value; the loop reports, shuts down and returns.
type ExitReason int

const (
	ExitSignal ExitReason = iota
	ExitError
	ExitReload
)

func (r ExitReason) String() string {
	switch r {
	case ExitSignal:
		return "signal"
	case ExitError:
		return "error"
	case ExitReload:
		return "reload"
	default:
		return "unknown"
	}
}

// BlockRunner is the block-execution collaborator driven by the loop. All
// calls happen on the loop goroutine and must not block.
type BlockRunner interface {
	// PollTimed runs the first-cycle pass over every block with a command.
	PollTimed()
	// PollOutdated re-runs blocks whose own interval has elapsed.
	PollOutdated()
	// PollExited reaps finished block processes and updates their state.
	PollExited()
	// PollClicked drains pending click input and delivers the events.
	PollClicked()
	// PollSignaled runs blocks addressed by a real-time signal offset.
	PollSignaled(offset int)
	// ReadStd drains the given ready streams of one persistent block;
	// final marks the terminal read, after which the block is never read
	// again. Reports whether the display changed.
	ReadStd(block int, ready model.Streams, final bool) bool
	// PersistentPipes lists the descriptors to watch, fixed at loop start.
	PersistentPipes() []model.BlockPipes
	// Terminate stops still-running block processes at shutdown.
	Terminate()
}

// RenderFunc serializes the current bar state onto the output protocol.
type RenderFunc func() error

// Config carries the loop's fixed parameters.
type Config struct {
	// Intervals are the per-block cadences merged into the timer period.
	Intervals []model.Interval
	// ClickInput is the descriptor carrying click events, normally stdin.
	ClickInput int
	// Reload, when non-nil, asks the loop to exit with ExitReload.
	Reload <-chan struct{}
}

type Scheduler struct {
	runner BlockRunner
	render RenderFunc
	reload <-chan struct{}
	log    *logging.Logger

	src    *SignalSource
	period int

	// watched tracks which streams of each persistent block are still in
	// the poll set, telling the last closure (the terminal read) apart
	// from the first.
	watched map[int]model.Streams
	pipes   map[int]model.BlockPipes
}

// New installs the process-wide pieces the loop depends on: the signal
// source, the shared repeating timer and signal-driven click input. Any
// failure aborts startup with the partial setup torn down again.
func New(cfg Config, runner BlockRunner, render RenderFunc, log *logging.Logger) (*Scheduler, error) {
	slog := log.Named("sched")

	src := NewSignalSource(slog)

	period := MergePeriod(cfg.Intervals)
	if err := armTimer(period); err != nil {
		src.Teardown()
		return nil, err
	}
	if period > 0 {
		slog.Debugf("starting timer with interval of %d seconds", period)
	} else {
		slog.Debugf("no timer needed")
	}

	clicks, err := enableClickInput(cfg.ClickInput)
	if err != nil {
		disarmTimer()
		src.Teardown()
		return nil, err
	}
	if !clicks {
		slog.Debugf("click input disabled on a terminal")
	}

	return &Scheduler{
		runner: runner,
		render: render,
		reload: cfg.Reload,
		log:    slog,
		src:    src,
		period: period,
	}, nil
}

// Run executes the loop until a control signal, a configuration reload or
// a fatal inconsistency ends it, then shuts down: the timer is disarmed,
// default signal delivery is restored, long-lived blocks are terminated
// and every outstanding child is drained. No zombie survives Run.
func (s *Scheduler) Run(ctx context.Context) ExitReason {
	defer s.teardown()

	// Initial display (static blocks and loading labels), then the first
	// forks for commands with an interval.
	s.renderNow()
	s.runner.PollTimed()

	pipes := s.runner.PersistentPipes()
	s.watched = make(map[int]model.Streams, len(pipes))
	s.pipes = make(map[int]model.BlockPipes, len(pipes))
	for _, p := range pipes {
		s.watched[p.Block] = model.StreamStdout | model.StreamStderr
		s.pipes[p.Block] = p
	}

	watcher, err := NewPipeWatcher(pipes, s.log)
	if err != nil {
		s.log.Errorf("%v", err)
		return ExitError
	}

	wctx, cancel := context.WithCancel(ctx)
	var g errgroup.Group
	g.Go(func() error { return watcher.Run(wctx) })
	defer func() {
		cancel()
		watcher.Wake()
		if err := g.Wait(); err != nil {
			s.log.Errorf("pipe watcher: %v", err)
		}
	}()

	return s.loop(ctx, watcher)
}

func (s *Scheduler) loop(ctx context.Context, watcher *PipeWatcher) ExitReason {
	events := watcher.Events()
	for {
		// Within one wakeup, pending signals outrank pipe readiness.
		select {
		case sig := <-s.src.C():
			if reason, done := s.dispatchSignal(sig); done {
				return reason
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			s.log.Debugf("context cancelled")
			return ExitSignal
		case sig := <-s.src.C():
			if reason, done := s.dispatchSignal(sig); done {
				return reason
			}
		case batch := <-events:
			if batch.err != nil {
				s.log.Errorf("should not happen: %v", batch.err)
				return ExitError
			}
			s.serviceBatch(watcher, batch)
		case <-s.reload:
			s.log.Infof("configuration changed, restarting")
			return ExitReload
		}
	}
}

// dispatchSignal runs one signal's reaction. done reports loop exit.
func (s *Scheduler) dispatchSignal(sig os.Signal) (reason ExitReason, done bool) {
	ev := s.src.Classify(sig)
	s.log.Debugf("received signal %v (%s)", sig, ev.Kind)

	switch ev.Kind {
	case EventTerminate:
		return ExitSignal, true
	case EventTimerTick:
		// The reaction re-checks each block's own elapsed time, so a
		// coalesced tick burst causes no extra runs. Renders follow from
		// the spawned commands exiting, not from the tick itself.
		s.runner.PollOutdated()
	case EventChildExit:
		// A finished block always changes displayed state, errors too.
		s.runner.PollExited()
		s.renderNow()
	case EventClick:
		s.runner.PollClicked()
	case EventRealTime:
		s.runner.PollSignaled(ev.Offset)
	case EventDeprecated:
		s.log.Errorf("signal %v is deprecated, ignoring", sig)
	default:
		s.log.Debugf("unhandled signal %v", sig)
	}
	return 0, false
}

// serviceBatch reacts to one readiness batch: drain every ready stream,
// render at most once for the whole batch, then acknowledge the watcher
// with the descriptors to drop.
func (s *Scheduler) serviceBatch(watcher *PipeWatcher, batch readiness) {
	updated := false
	var drop []int

	for _, i := range batchBlocks(batch) {
		ready := batch.ready[i]
		gone := batch.closed[i]

		remaining := s.watched[i] &^ gone
		final := gone != 0 && remaining == 0
		if s.runner.ReadStd(i, ready|gone, final) {
			updated = true
		}
		s.watched[i] = remaining

		p := s.pipes[i]
		if gone.Has(model.StreamStdout) {
			drop = append(drop, p.Stdout)
		}
		if gone.Has(model.StreamStderr) {
			drop = append(drop, p.Stderr)
		}
	}

	if updated {
		s.renderNow()
	}
	watcher.Resume(drop)
}

func batchBlocks(batch readiness) []int {
	seen := make(map[int]bool, len(batch.ready)+len(batch.closed))
	var blocks []int
	for i := range batch.ready {
		if !seen[i] {
			seen[i] = true
			blocks = append(blocks, i)
		}
	}
	for i := range batch.closed {
		if !seen[i] {
			seen[i] = true
			blocks = append(blocks, i)
		}
	}
	sort.Ints(blocks)
	return blocks
}

func (s *Scheduler) renderNow() {
	if err := s.render(); err != nil {
		s.log.Errorf("render: %v", err)
	}
}

// teardown mirrors init in reverse, then drains children so none are left
// behind: running blocks are asked to stop first, so the drain cannot hang
// on a command that ignores its closed pipes.
func (s *Scheduler) teardown() {
	disarmTimer()
	s.src.Teardown()
	s.runner.Terminate()
	reapAll()
	s.log.Debugf("quit scheduling")
}

func reapAll() {
	for {
		pid, err := unix.Wait4(-1, nil, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || pid <= 0 {
			return
		}
	}
}
