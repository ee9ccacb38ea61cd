package model

// Streams names which output streams of a block are ready for reading.
type Streams uint8

const (
	StreamStdout Streams = 1 << iota
	StreamStderr
)

func (s Streams) Has(w Streams) bool {
	return s&w != 0
}

// BlockPipes carries the readable descriptors of one persistent block, as
// handed to the scheduler's pipe watcher at loop start.
type BlockPipes struct {
	Block  int
	Stdout int
	Stderr int
}
