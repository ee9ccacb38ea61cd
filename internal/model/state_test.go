package model

import "testing"

func TestIsBlockTerminal(t *testing.T) {
	tests := []struct {
		state    BlockState
		terminal bool
	}{
		{BlockIdle, false},
		{BlockRunning, false},
		{BlockExited, false},
		{BlockFaulted, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := IsBlockTerminal(tt.state); got != tt.terminal {
				t.Errorf("IsBlockTerminal(%q) = %v, want %v", tt.state, got, tt.terminal)
			}
		})
	}
}

func TestValidateBlockTransition(t *testing.T) {
	valid := []struct {
		from, to BlockState
	}{
		{BlockIdle, BlockRunning},
		{BlockRunning, BlockExited},
		{BlockRunning, BlockFaulted},
		{BlockExited, BlockIdle},
		{BlockExited, BlockFaulted},
	}
	for _, tt := range valid {
		t.Run(string(tt.from)+"→"+string(tt.to), func(t *testing.T) {
			if err := ValidateBlockTransition(tt.from, tt.to); err != nil {
				t.Errorf("expected valid, got error: %v", err)
			}
		})
	}

	invalid := []struct {
		from, to BlockState
	}{
		{BlockFaulted, BlockIdle},
		{BlockFaulted, BlockRunning},
		{BlockIdle, BlockExited},
		{BlockIdle, BlockFaulted}, // only a spawned block can fault
		{BlockExited, BlockRunning},
	}
	for _, tt := range invalid {
		t.Run("invalid_"+string(tt.from)+"→"+string(tt.to), func(t *testing.T) {
			if err := ValidateBlockTransition(tt.from, tt.to); err == nil {
				t.Errorf("expected error for %q → %q", tt.from, tt.to)
			}
		})
	}
}
