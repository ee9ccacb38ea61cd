package model

import "fmt"

// BlockState is the lifecycle of a block's command process. Only the bar
// mutates it; the scheduler observes blocks purely through reactions.
type BlockState string

const (
	BlockIdle    BlockState = "idle"
	BlockRunning BlockState = "running"
	BlockExited  BlockState = "exited"
	BlockFaulted BlockState = "faulted"
)

var terminalBlockStates = map[BlockState]bool{
	BlockFaulted: true,
}

// Block lifecycle: idle → running → exited → idle, with faulted as the
// dead end for persistent blocks whose pipes broke.
var validBlockTransitions = map[BlockState]map[BlockState]bool{
	BlockIdle: {
		BlockRunning: true,
	},
	BlockRunning: {
		BlockExited:  true,
		BlockFaulted: true,
	},
	BlockExited: {
		BlockIdle:    true,
		BlockFaulted: true, // exited persist block whose drain found a broken pipe
	},
}

func IsBlockTerminal(s BlockState) bool {
	return terminalBlockStates[s]
}

func ValidateBlockTransition(from, to BlockState) error {
	if IsBlockTerminal(from) {
		return fmt.Errorf("cannot transition from terminal block state %q", from)
	}
	allowed, ok := validBlockTransitions[from]
	if !ok {
		return fmt.Errorf("unknown block state %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid block transition: %q → %q", from, to)
	}
	return nil
}
