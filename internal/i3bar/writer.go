// Package i3bar implements the status-line wire protocol: the JSON stream
// written to the bar on stdout and the click events it sends back on stdin.
package i3bar

import (
	"encoding/json"
	"fmt"
	"io"
)

// Header is the first object of the protocol stream.
type Header struct {
	Version     int  `json:"version"`
	ClickEvents bool `json:"click_events"`
	StopSignal  int  `json:"stop_signal,omitempty"`
	ContSignal  int  `json:"cont_signal,omitempty"`
}

// Block is one segment of a status line. Field semantics belong to the bar;
// everything here is passed through untouched.
type Block struct {
	FullText            string `json:"full_text"`
	ShortText           string `json:"short_text,omitempty"`
	Color               string `json:"color,omitempty"`
	Background          string `json:"background,omitempty"`
	Border              string `json:"border,omitempty"`
	MinWidth            any    `json:"min_width,omitempty"`
	Align               string `json:"align,omitempty"`
	Name                string `json:"name,omitempty"`
	Instance            string `json:"instance,omitempty"`
	Urgent              bool   `json:"urgent,omitempty"`
	Separator           *bool  `json:"separator,omitempty"`
	SeparatorBlockWidth int    `json:"separator_block_width,omitempty"`
	Markup              string `json:"markup,omitempty"`
}

// Writer emits the protocol stream: one header, then a never-terminated
// array holding one status line per element.
type Writer struct {
	out     io.Writer
	started bool
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WriteHeader emits the protocol header and opens the status-line array.
func (w *Writer) WriteHeader(h Header) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	if _, err := fmt.Fprintf(w.out, "%s\n[\n", data); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// WriteStatusLine emits one element of the status-line array. Blocks with no
// text that do not reserve width are left out of the line entirely.
func (w *Writer) WriteStatusLine(blocks []Block) error {
	visible := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if b.FullText == "" && b.MinWidth == nil {
			continue
		}
		visible = append(visible, b)
	}

	data, err := json.Marshal(visible)
	if err != nil {
		return fmt.Errorf("marshal status line: %w", err)
	}

	sep := ""
	if w.started {
		sep = ","
	}
	w.started = true

	if _, err := fmt.Fprintf(w.out, "%s%s\n", sep, data); err != nil {
		return fmt.Errorf("write status line: %w", err)
	}
	return nil
}
