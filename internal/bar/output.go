package bar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Zopieux/i3blocks/internal/i3bar"
	"github.com/Zopieux/i3blocks/internal/model"
)

// failureColor paints a block whose command failed.
const failureColor = "#FF0000"

// baseView is the display state a fresh run starts from: the configured
// properties plus the block's identity.
func (b *Block) baseView() i3bar.Block {
	p := b.Properties
	return i3bar.Block{
		FullText:            p.FullText,
		ShortText:           p.ShortText,
		Color:               p.Color,
		Background:          p.Background,
		Border:              p.Border,
		MinWidth:            p.MinWidth,
		Align:               p.Align,
		Name:                b.Name,
		Instance:            b.Instance,
		Urgent:              p.Urgent,
		Separator:           p.Separator,
		SeparatorBlockWidth: p.SeparatorBlockWidth,
		Markup:              p.Markup,
	}
}

// View is the block's current wire representation.
func (b *Block) View() i3bar.Block {
	v := b.display
	if v.FullText != "" && b.Label != "" {
		v.FullText = b.Label + v.FullText
	}
	return v
}

// applyExit turns a finished one-shot run into display state.
func (b *Block) applyExit(out, errOut []byte, code int) {
	if len(errOut) > 0 {
		b.log.Debugf("block %s stderr: %s", b.label(), bytes.TrimSpace(errOut))
	}

	b.display = b.baseView()

	if code != exitOK && code != exitUrgent {
		b.log.Errorf("block %s: command failed code=%d", b.label(), code)
		b.display.FullText = fmt.Sprintf("[%s] exit %d", b.label(), code)
		b.display.ShortText = ""
		b.display.Color = failureColor
		return
	}

	if b.Format == model.FormatJSON {
		if line := bytes.TrimSpace(out); len(line) > 0 {
			if err := b.applyJSON(line); err != nil {
				b.log.Errorf("block %s: %v", b.label(), err)
			}
		}
	} else {
		b.applyPlain(out)
	}
	if code == exitUrgent {
		b.display.Urgent = true
	}
}

// applyPlain maps output lines onto display fields: full text, short text,
// color, in that order. No output leaves the configured base view in place.
func (b *Block) applyPlain(out []byte) {
	trimmed := strings.TrimRight(string(out), "\n")
	if trimmed == "" {
		return
	}
	lines := strings.Split(trimmed, "\n")
	b.display.FullText = lines[0]
	if len(lines) > 1 {
		b.display.ShortText = lines[1]
	}
	if len(lines) > 2 && lines[2] != "" {
		b.display.Color = lines[2]
	}
}

// applyJSON merges one JSON object over the display. The block's identity
// is pinned: output may not re-route clicks by overriding name or instance.
func (b *Block) applyJSON(line []byte) error {
	if len(line) == 0 {
		b.display.FullText = ""
		return nil
	}
	name, instance := b.display.Name, b.display.Instance
	if err := json.Unmarshal(line, &b.display); err != nil {
		return fmt.Errorf("parse json output: %w", err)
	}
	b.display.Name = name
	b.display.Instance = instance
	return nil
}

// consume buffers stream bytes and handles every line they complete. Stdout
// lines become display updates; stderr lines are logged. Reports whether
// the display changed.
func (b *Block) consume(data []byte, stderrStream bool) bool {
	if len(data) == 0 {
		return false
	}
	buf := &b.outBuf
	if stderrStream {
		buf = &b.errBuf
	}
	*buf = append(*buf, data...)

	updated := false
	for {
		i := bytes.IndexByte(*buf, '\n')
		if i < 0 {
			return updated
		}
		line := string((*buf)[:i])
		*buf = (*buf)[i+1:]
		if stderrStream {
			b.log.Warnf("block %s stderr: %s", b.label(), line)
			continue
		}
		if b.applyLine(line) {
			updated = true
		}
	}
}

// applyLine handles one complete stdout line of a persistent block.
func (b *Block) applyLine(line string) bool {
	b.display = b.baseView()
	if b.Format == model.FormatJSON {
		if err := b.applyJSON([]byte(line)); err != nil {
			b.log.Errorf("block %s: %v", b.label(), err)
			return false
		}
		return true
	}
	b.display.FullText = line
	return true
}

// flushPartial promotes an unterminated trailing line when the stream ends.
func (b *Block) flushPartial() bool {
	updated := false
	if len(b.outBuf) > 0 {
		updated = b.applyLine(string(b.outBuf))
		b.outBuf = nil
	}
	if len(b.errBuf) > 0 {
		b.log.Warnf("block %s stderr: %s", b.label(), b.errBuf)
		b.errBuf = nil
	}
	return updated
}
