package i3bar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// ClickEvent is the bar's notification of a pointer click on one block.
type ClickEvent struct {
	Name      string   `json:"name"`
	Instance  string   `json:"instance"`
	Button    int      `json:"button"`
	X         int      `json:"x"`
	Y         int      `json:"y"`
	RelativeX int      `json:"relative_x"`
	RelativeY int      `json:"relative_y"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Modifiers []string `json:"modifiers"`
}

// Decoder reassembles click lines from the non-blocking stdin stream. The
// bar frames events as an infinite JSON array written one element per line,
// so the array wrapper and element separators are stripped and each line
// decodes on its own. Partial lines are buffered across reads.
type Decoder struct {
	buf []byte
}

// Feed appends stream bytes and returns the JSON object lines completed by
// them. Returned slices do not alias the internal buffer.
func (d *Decoder) Feed(p []byte) [][]byte {
	d.buf = append(d.buf, p...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return lines
		}
		line := trimFraming(d.buf[:i])
		d.buf = d.buf[i+1:]
		if len(line) > 0 {
			lines = append(lines, append([]byte(nil), line...))
		}
	}
}

// Pending reports whether an incomplete line is buffered.
func (d *Decoder) Pending() bool {
	return len(d.buf) > 0
}

// DrainFD reads the non-blocking descriptor until it runs dry and returns
// the click lines completed by the read bytes. io.EOF means the bar closed
// its end; any other error leaves already-buffered input intact.
func (d *Decoder) DrainFD(fd int) ([][]byte, error) {
	var lines [][]byte
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			lines = append(lines, d.Feed(buf[:n])...)
		}
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return lines, nil
		case err != nil:
			return lines, fmt.Errorf("read click stream: %w", err)
		case n == 0:
			return lines, io.EOF
		}
	}
}

func trimFraming(line []byte) []byte {
	line = bytes.TrimSpace(line)
	line = bytes.TrimPrefix(line, []byte("["))
	line = bytes.TrimPrefix(line, []byte(","))
	line = bytes.TrimSuffix(line, []byte("]"))
	return bytes.TrimSpace(line)
}

// DecodeClick parses a single stripped click line.
func DecodeClick(line []byte) (ClickEvent, error) {
	var ev ClickEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return ClickEvent{}, fmt.Errorf("decode click %q: %w", line, err)
	}
	return ev, nil
}
