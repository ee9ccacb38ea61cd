package i3bar

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriter_HeaderAndFirstLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.WriteHeader(Header{Version: 1, ClickEvents: true}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := w.WriteStatusLine(nil); err != nil {
		t.Fatalf("WriteStatusLine: %v", err)
	}

	want := "{\"version\":1,\"click_events\":true}\n[\n[]\n"
	if got := buf.String(); got != want {
		t.Errorf("stream = %q, want %q", got, want)
	}
}

func TestWriter_CommaContinuation(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.WriteStatusLine([]Block{{FullText: "a"}}); err != nil {
		t.Fatalf("first line: %v", err)
	}
	if err := w.WriteStatusLine([]Block{{FullText: "b"}}); err != nil {
		t.Fatalf("second line: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if strings.HasPrefix(lines[0], ",") {
		t.Errorf("first line must not start with a comma: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], ",") {
		t.Errorf("second line must start with a comma: %q", lines[1])
	}
}

func TestWriter_SkipsEmptyBlocks(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	blocks := []Block{
		{Name: "empty"},
		{Name: "visible", FullText: "cpu 42%"},
		{Name: "reserved", MinWidth: "00:00"},
	}
	if err := w.WriteStatusLine(blocks); err != nil {
		t.Fatalf("WriteStatusLine: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "empty") {
		t.Errorf("empty block leaked onto the wire: %q", out)
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "reserved") {
		t.Errorf("expected both visible blocks: %q", out)
	}
}

func TestWriter_SeparatorTriState(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	off := false
	blocks := []Block{
		{FullText: "a"},                  // unset: field stays off the wire
		{FullText: "b", Separator: &off}, // explicit false must survive
	}
	if err := w.WriteStatusLine(blocks); err != nil {
		t.Fatalf("WriteStatusLine: %v", err)
	}

	out := buf.String()
	if got := strings.Count(out, `"separator"`); got != 1 {
		t.Fatalf("expected exactly one separator field, got %d: %q", got, out)
	}
	if !strings.Contains(out, `"separator":false`) {
		t.Errorf("explicit separator:false dropped: %q", out)
	}
}

func TestDecoder_FramingAndPartials(t *testing.T) {
	var d Decoder

	if lines := d.Feed([]byte("[\n")); len(lines) != 0 {
		t.Fatalf("array opener must produce no lines, got %q", lines)
	}

	lines := d.Feed([]byte(`{"name":"vol","button":1}` + "\n"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	ev, err := DecodeClick(lines[0])
	if err != nil {
		t.Fatalf("DecodeClick: %v", err)
	}
	if ev.Name != "vol" || ev.Button != 1 {
		t.Errorf("event = %+v", ev)
	}

	// Continuation lines carry a leading comma; deliver one in two chunks.
	if lines := d.Feed([]byte(`,{"name":"cpu","butt`)); len(lines) != 0 {
		t.Fatalf("partial line completed early: %q", lines)
	}
	if !d.Pending() {
		t.Error("expected pending partial line")
	}
	lines = d.Feed([]byte("on\":3}\n"))
	if len(lines) != 1 {
		t.Fatalf("expected completed line, got %d", len(lines))
	}
	ev, err = DecodeClick(lines[0])
	if err != nil {
		t.Fatalf("DecodeClick: %v", err)
	}
	if ev.Name != "cpu" || ev.Button != 3 {
		t.Errorf("event = %+v", ev)
	}
	if d.Pending() {
		t.Error("buffer should be drained")
	}
}

func TestDecoder_BatchedLines(t *testing.T) {
	var d Decoder

	in := "[\n" +
		`{"name":"a","instance":"1","button":1,"x":10,"y":20,"modifiers":["Shift"]}` + "\n" +
		`,{"name":"b","button":2,"relative_x":5,"width":80,"height":20}` + "\n"
	lines := d.Feed([]byte(in))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	first, err := DecodeClick(lines[0])
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Instance != "1" || first.X != 10 || len(first.Modifiers) != 1 || first.Modifiers[0] != "Shift" {
		t.Errorf("first = %+v", first)
	}

	second, err := DecodeClick(lines[1])
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Name != "b" || second.RelativeX != 5 || second.Width != 80 || second.Height != 20 {
		t.Errorf("second = %+v", second)
	}
}

func TestDecodeClick_Malformed(t *testing.T) {
	if _, err := DecodeClick([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed click")
	}
}
